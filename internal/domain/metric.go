package domain

import (
	"fmt"
	"strings"
	"time"
)

// MetricStatus is the outcome class of one delivery attempt.
type MetricStatus string

const (
	MetricStatusSent      MetricStatus = "sent"
	MetricStatusDelivered MetricStatus = "delivered"
	MetricStatusClicked   MetricStatus = "clicked"
	MetricStatusFailed    MetricStatus = "failed"
)

func (s MetricStatus) String() string { return string(s) }

func (s MetricStatus) IsValid() bool {
	switch s {
	case MetricStatusSent, MetricStatusDelivered, MetricStatusClicked, MetricStatusFailed:
		return true
	}
	return false
}

func ParseMetricStatusFromString(s string) (MetricStatus, error) {
	st := MetricStatus(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid metric status %q", ErrValidation, s)
	}
	return st, nil
}

// DeviceInfo describes the device a notification was sent to.
type DeviceInfo struct {
	Platform  string `json:"platform"`
	UserAgent string `json:"userAgent"`
}

// Metric is an immutable fact about one delivery attempt outcome.
// Metrics are append-only; they are never mutated after recording.
type Metric struct {
	ID               string
	UserID           string
	NotificationID   string
	Type             NotificationType
	Status           MetricStatus
	Timestamp        time.Time
	ResponseTimeMs   *int
	ErrorCode        *string
	ErrorMessage     *string
	DestinationToken *string
	DeviceInfo       *DeviceInfo
}

func (m *Metric) Validate() error {
	if strings.TrimSpace(m.UserID) == "" {
		return fmt.Errorf("%w: user id is required", ErrValidation)
	}
	if strings.TrimSpace(m.NotificationID) == "" {
		return fmt.Errorf("%w: notification id is required", ErrValidation)
	}
	if !m.Type.IsValid() {
		return fmt.Errorf("%w: invalid notification type %q", ErrValidation, m.Type)
	}
	if !m.Status.IsValid() {
		return fmt.Errorf("%w: invalid metric status %q", ErrValidation, m.Status)
	}
	return nil
}
