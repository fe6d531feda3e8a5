package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/taskhive/pushguard/internal/backoff"
	"github.com/taskhive/pushguard/internal/domain"
	"go.uber.org/zap"
)

func newTestIntake(t *testing.T, retries *fakeRetryRepo) *Intake {
	t.Helper()

	i, err := NewIntake(retries, backoff.Config{}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewIntake() error = %v", err)
	}
	return i
}

func TestEnqueueCreatesPendingRecordDueNow(t *testing.T) {
	t.Parallel()

	retries := newFakeRetryRepo()
	i := newTestIntake(t, retries)

	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	i.now = func() time.Time { return fixed }

	record, err := i.Enqueue(context.Background(), EnqueueRequest{
		UserID:           "user-1",
		NotificationID:   "notif-1",
		Type:             domain.TypeMention,
		Payload:          domain.Payload{Title: "You were mentioned", Body: "in the sprint review"},
		DestinationToken: "token-1",
	})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	if record.ID == "" {
		t.Fatal("record id should be assigned")
	}
	if record.Status != domain.RetryStatusPending {
		t.Fatalf("status = %s, want pending", record.Status)
	}
	if record.Attempts != 0 {
		t.Fatalf("attempts = %d, want 0", record.Attempts)
	}
	if record.MaxAttempts != domain.DefaultMaxAttempts {
		t.Fatalf("maxAttempts = %d, want %d", record.MaxAttempts, domain.DefaultMaxAttempts)
	}
	if !record.NextRetryAt.Equal(fixed) {
		t.Fatalf("nextRetryAt = %v, want %v (due immediately)", record.NextRetryAt, fixed)
	}

	if _, exists := retries.get(record.ID); !exists {
		t.Fatal("record should be persisted")
	}
}

func TestEnqueueHonorsCustomMaxAttempts(t *testing.T) {
	t.Parallel()

	i := newTestIntake(t, newFakeRetryRepo())

	record, err := i.Enqueue(context.Background(), EnqueueRequest{
		UserID:           "user-1",
		NotificationID:   "notif-1",
		Type:             domain.TypeSystem,
		Payload:          domain.Payload{Title: "Maintenance", Body: "tonight at 02:00"},
		DestinationToken: "token-1",
		MaxAttempts:      5,
	})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	if record.MaxAttempts != 5 {
		t.Fatalf("maxAttempts = %d, want 5", record.MaxAttempts)
	}
}

func TestEnqueueRejectsInvalidRequest(t *testing.T) {
	t.Parallel()

	retries := newFakeRetryRepo()
	i := newTestIntake(t, retries)

	_, err := i.Enqueue(context.Background(), EnqueueRequest{
		NotificationID:   "notif-1",
		Type:             domain.TypeMention,
		Payload:          domain.Payload{Title: "t", Body: "b"},
		DestinationToken: "token-1",
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
	if len(retries.records) != 0 {
		t.Fatal("invalid request must not be persisted")
	}
}

func TestEnqueuePropagatesStoreFailure(t *testing.T) {
	t.Parallel()

	retries := newFakeRetryRepo()
	retries.createErr = errors.New("database unavailable")
	i := newTestIntake(t, retries)

	_, err := i.Enqueue(context.Background(), EnqueueRequest{
		UserID:           "user-1",
		NotificationID:   "notif-1",
		Type:             domain.TypeMention,
		Payload:          domain.Payload{Title: "t", Body: "b"},
		DestinationToken: "token-1",
	})
	if err == nil {
		t.Fatal("expected store failure to surface")
	}
}
