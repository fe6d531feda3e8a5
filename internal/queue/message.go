package queue

import (
	"fmt"
	"strings"

	"github.com/taskhive/pushguard/internal/domain"
)

// RetryEnqueueMessage is the broker payload asking the engine to track a
// failed delivery for retry.
type RetryEnqueueMessage struct {
	UserID           string                  `json:"userId"`
	NotificationID   string                  `json:"notificationId"`
	CorrelationID    string                  `json:"correlationId,omitempty"`
	Type             domain.NotificationType `json:"type"`
	Title            string                  `json:"title"`
	Body             string                  `json:"body"`
	Data             map[string]string       `json:"data,omitempty"`
	DestinationToken string                  `json:"destinationToken"`
	MaxAttempts      int                     `json:"maxAttempts,omitempty"`
}

func (m RetryEnqueueMessage) Validate() error {
	if strings.TrimSpace(m.UserID) == "" {
		return fmt.Errorf("userId is required")
	}
	if strings.TrimSpace(m.NotificationID) == "" {
		return fmt.Errorf("notificationId is required")
	}
	if !m.Type.IsValid() {
		return fmt.Errorf("invalid notification type %q", m.Type)
	}
	if strings.TrimSpace(m.Title) == "" {
		return fmt.Errorf("title is required")
	}
	if strings.TrimSpace(m.Body) == "" {
		return fmt.Errorf("body is required")
	}
	if strings.TrimSpace(m.DestinationToken) == "" {
		return fmt.Errorf("destinationToken is required")
	}
	if m.MaxAttempts < 0 {
		return fmt.Errorf("maxAttempts must not be negative")
	}
	return nil
}

// Payload converts the message body fields into a delivery payload.
func (m RetryEnqueueMessage) Payload() domain.Payload {
	return domain.Payload{
		Title: m.Title,
		Body:  m.Body,
		Data:  m.Data,
	}
}
