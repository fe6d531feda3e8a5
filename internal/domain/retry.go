package domain

import (
	"fmt"
	"strings"
	"time"
)

// RetryStatus represents the lifecycle state of a retry record.
type RetryStatus string

const (
	RetryStatusPending  RetryStatus = "pending"
	RetryStatusRetrying RetryStatus = "retrying"
	RetryStatusFailed   RetryStatus = "failed"
	RetryStatusSuccess  RetryStatus = "success"
)

func (s RetryStatus) String() string { return string(s) }

func (s RetryStatus) IsValid() bool {
	switch s {
	case RetryStatusPending, RetryStatusRetrying, RetryStatusFailed, RetryStatusSuccess:
		return true
	}
	return false
}

// IsTerminal reports whether no further delivery attempts may happen.
func (s RetryStatus) IsTerminal() bool {
	return s == RetryStatusFailed || s == RetryStatusSuccess
}

func ParseRetryStatusFromString(s string) (RetryStatus, error) {
	st := RetryStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid retry status %q", ErrValidation, s)
	}
	return st, nil
}

// NotificationType classifies what event produced a notification.
type NotificationType string

const (
	TypeTaskReminder  NotificationType = "task_reminder"
	TypeTaskAssigned  NotificationType = "task_assigned"
	TypeTaskCompleted NotificationType = "task_completed"
	TypeMention       NotificationType = "mention"
	TypeNewComment    NotificationType = "new_comment"
	TypeSystem        NotificationType = "system"
)

func (t NotificationType) String() string { return string(t) }

func (t NotificationType) IsValid() bool {
	switch t {
	case TypeTaskReminder, TypeTaskAssigned, TypeTaskCompleted, TypeMention, TypeNewComment, TypeSystem:
		return true
	}
	return false
}

func ParseNotificationTypeFromString(s string) (NotificationType, error) {
	t := NotificationType(strings.ToLower(strings.TrimSpace(s)))
	if !t.IsValid() {
		return "", fmt.Errorf("%w: invalid notification type %q", ErrValidation, s)
	}
	return t, nil
}

// NotificationTypes lists every valid notification type.
func NotificationTypes() []NotificationType {
	return []NotificationType{
		TypeTaskReminder,
		TypeTaskAssigned,
		TypeTaskCompleted,
		TypeMention,
		TypeNewComment,
		TypeSystem,
	}
}

// Payload is the message content delivered to a device.
type Payload struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

func (p Payload) Validate() error {
	if strings.TrimSpace(p.Title) == "" {
		return fmt.Errorf("%w: payload title is required", ErrValidation)
	}
	if strings.TrimSpace(p.Body) == "" {
		return fmt.Errorf("%w: payload body is required", ErrValidation)
	}
	return nil
}

// DeliveryError captures the classified outcome of a failed delivery attempt.
type DeliveryError struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// DefaultMaxAttempts bounds delivery attempts when the producer does not set one.
const DefaultMaxAttempts = 3

// RetryRecord is a unit of work tracking one notification that must
// eventually be delivered. It is mutated only by the retry processor.
type RetryRecord struct {
	ID               string
	UserID           string
	NotificationID   string
	Type             NotificationType
	Payload          Payload
	DestinationToken string
	Status           RetryStatus
	Attempts         int
	MaxAttempts      int
	NextRetryAt      time.Time
	LastError        *DeliveryError
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (r *RetryRecord) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if strings.TrimSpace(r.NotificationID) == "" {
		return fmt.Errorf("%w: notification id is required", ErrValidation)
	}
	if strings.TrimSpace(r.DestinationToken) == "" {
		return fmt.Errorf("%w: destination token is required", ErrValidation)
	}
	if !r.Type.IsValid() {
		return fmt.Errorf("%w: invalid notification type %q", ErrValidation, r.Type)
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("%w: invalid retry status %q", ErrValidation, r.Status)
	}
	if err := r.Payload.Validate(); err != nil {
		return err
	}
	if r.MaxAttempts <= 0 {
		return fmt.Errorf("%w: max attempts must be positive", ErrValidation)
	}
	if r.Attempts < 0 || r.Attempts > r.MaxAttempts {
		return fmt.Errorf("%w: attempts %d out of range [0,%d]", ErrValidation, r.Attempts, r.MaxAttempts)
	}
	return nil
}

// RetryStats counts a user's retry records grouped by status.
type RetryStats struct {
	Pending  int `json:"pending"`
	Retrying int `json:"retrying"`
	Failed   int `json:"failed"`
	Success  int `json:"success"`
}
