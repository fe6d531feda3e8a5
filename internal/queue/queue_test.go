package queue

import (
	"errors"
	"fmt"
	"testing"

	"github.com/taskhive/pushguard/internal/domain"
)

func validMessage() RetryEnqueueMessage {
	return RetryEnqueueMessage{
		UserID:           "user-1",
		NotificationID:   "notif-1",
		Type:             domain.TypeTaskReminder,
		Title:            "Task due",
		Body:             "Finish the report",
		DestinationToken: "token-1",
	}
}

func TestRetryEnqueueMessageValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(m *RetryEnqueueMessage)
		wantErr bool
	}{
		{name: "valid", mutate: func(m *RetryEnqueueMessage) {}},
		{name: "valid with max attempts", mutate: func(m *RetryEnqueueMessage) { m.MaxAttempts = 5 }},
		{name: "missing user id", mutate: func(m *RetryEnqueueMessage) { m.UserID = "" }, wantErr: true},
		{name: "missing notification id", mutate: func(m *RetryEnqueueMessage) { m.NotificationID = "" }, wantErr: true},
		{name: "invalid type", mutate: func(m *RetryEnqueueMessage) { m.Type = "carrier_pigeon" }, wantErr: true},
		{name: "missing title", mutate: func(m *RetryEnqueueMessage) { m.Title = "  " }, wantErr: true},
		{name: "missing body", mutate: func(m *RetryEnqueueMessage) { m.Body = "" }, wantErr: true},
		{name: "missing token", mutate: func(m *RetryEnqueueMessage) { m.DestinationToken = "" }, wantErr: true},
		{name: "negative max attempts", mutate: func(m *RetryEnqueueMessage) { m.MaxAttempts = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := validMessage()
			tt.mutate(&msg)

			err := msg.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected validation error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestRetryEnqueueMessagePayload(t *testing.T) {
	msg := validMessage()
	msg.Data = map[string]string{"taskId": "t-42"}

	payload := msg.Payload()
	if payload.Title != msg.Title || payload.Body != msg.Body {
		t.Fatalf("payload = %+v, want title/body from message", payload)
	}
	if payload.Data["taskId"] != "t-42" {
		t.Fatalf("payload data = %v, want taskId t-42", payload.Data)
	}
}

func TestRequeueableDistinguishesMessageFate(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "store failure is requeued", err: errors.New("connection refused"), want: true},
		{name: "wrapped store failure is requeued", err: fmt.Errorf("failed to enqueue retry record: %w", errors.New("timeout")), want: true},
		{name: "validation failure is dead", err: fmt.Errorf("%w: destination token is required", domain.ErrValidation), want: false},
		{name: "conflict is dead", err: fmt.Errorf("%w: record already tracked", domain.ErrConflict), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := requeueable(tt.err); got != tt.want {
				t.Fatalf("requeueable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestQueueNames(t *testing.T) {
	if EnqueueQueueName != "retry.enqueue" {
		t.Fatalf("EnqueueQueueName = %s, want retry.enqueue", EnqueueQueueName)
	}
	if EnqueueDLQName != "dlq.retry.enqueue" {
		t.Fatalf("EnqueueDLQName = %s, want dlq.retry.enqueue", EnqueueDLQName)
	}
}
