package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/taskhive/pushguard/internal/backoff"
	"github.com/taskhive/pushguard/internal/domain"
	"github.com/taskhive/pushguard/internal/recorder"
	"github.com/taskhive/pushguard/internal/sender"
	"go.uber.org/zap"
)

func newTestProcessor(t *testing.T, retries *fakeRetryRepo, metrics *fakeMetricRepo) *Processor {
	t.Helper()

	rec := recorder.NewRecorder(metrics, zap.NewNop())
	p, err := NewProcessor(retries, rec, backoff.Config{}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewProcessor() error = %v", err)
	}
	return p
}

func TestProcessRetrySuccessResolvesAndDeletesRecord(t *testing.T) {
	t.Parallel()

	retries := newFakeRetryRepo()
	metrics := &fakeMetricRepo{}
	record := pendingRecord("r1", "user-1")
	retries.put(record)

	p := newTestProcessor(t, retries, metrics)
	clock := newStepClock(record.NextRetryAt, 250*time.Millisecond)
	p.now = clock.Now

	ok := p.ProcessRetry(context.Background(), record, func(ctx context.Context, token string, payload domain.Payload) error {
		if token != record.DestinationToken {
			t.Fatalf("token = %q, want %q", token, record.DestinationToken)
		}
		return nil
	})

	if !ok {
		t.Fatal("successful delivery should resolve the record")
	}
	if _, exists := retries.get("r1"); exists {
		t.Fatal("delivered record should be deleted")
	}

	appended := metrics.all()
	if len(appended) != 1 {
		t.Fatalf("metrics appended = %d, want 1", len(appended))
	}
	if appended[0].Status != domain.MetricStatusDelivered {
		t.Fatalf("metric status = %s, want delivered", appended[0].Status)
	}
	if appended[0].ResponseTimeMs == nil || *appended[0].ResponseTimeMs != 250 {
		t.Fatalf("responseTimeMs = %v, want 250", appended[0].ResponseTimeMs)
	}
}

func TestProcessRetryFailureSchedulesBackoff(t *testing.T) {
	t.Parallel()

	retries := newFakeRetryRepo()
	metrics := &fakeMetricRepo{}
	record := pendingRecord("r1", "user-1")
	retries.put(record)

	p := newTestProcessor(t, retries, metrics)
	fixed := record.NextRetryAt
	p.now = func() time.Time { return fixed }

	ok := p.ProcessRetry(context.Background(), record, func(ctx context.Context, token string, payload domain.Payload) error {
		return &sender.SendError{Code: sender.CodeProviderUnavailable, Message: "gateway down", Transient: true}
	})

	if ok {
		t.Fatal("failed delivery should not resolve the record")
	}

	stored, exists := retries.get("r1")
	if !exists {
		t.Fatal("record should survive a failed attempt")
	}
	if stored.Status != domain.RetryStatusPending {
		t.Fatalf("status = %s, want pending", stored.Status)
	}
	if stored.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", stored.Attempts)
	}
	if want := fixed.Add(5 * time.Second); !stored.NextRetryAt.Equal(want) {
		t.Fatalf("nextRetryAt = %v, want %v", stored.NextRetryAt, want)
	}
	if stored.LastError == nil || stored.LastError.Code != sender.CodeProviderUnavailable {
		t.Fatalf("lastError = %+v, want code %s", stored.LastError, sender.CodeProviderUnavailable)
	}

	appended := metrics.all()
	if len(appended) != 1 || appended[0].Status != domain.MetricStatusFailed {
		t.Fatalf("metrics = %+v, want one failed metric", appended)
	}
	if appended[0].ErrorCode == nil || *appended[0].ErrorCode != sender.CodeProviderUnavailable {
		t.Fatalf("metric errorCode = %v, want %s", appended[0].ErrorCode, sender.CodeProviderUnavailable)
	}
}

func TestProcessRetryExhaustionMarksFailed(t *testing.T) {
	t.Parallel()

	retries := newFakeRetryRepo()
	record := pendingRecord("r1", "user-1")
	record.Attempts = record.MaxAttempts - 1
	retries.put(record)

	p := newTestProcessor(t, retries, &fakeMetricRepo{})

	ok := p.ProcessRetry(context.Background(), record, func(ctx context.Context, token string, payload domain.Payload) error {
		return errors.New("still failing")
	})

	if ok {
		t.Fatal("exhausted record should not resolve")
	}

	stored, _ := retries.get("r1")
	if stored.Status != domain.RetryStatusFailed {
		t.Fatalf("status = %s, want failed", stored.Status)
	}
	if stored.Attempts != record.MaxAttempts {
		t.Fatalf("attempts = %d, want %d", stored.Attempts, record.MaxAttempts)
	}
	if stored.LastError == nil || stored.LastError.Code != sender.CodeUnknown {
		t.Fatalf("lastError = %+v, want code %s", stored.LastError, sender.CodeUnknown)
	}
}

func TestProcessRetrySkipsUnclaimableRecord(t *testing.T) {
	t.Parallel()

	retries := newFakeRetryRepo()
	record := pendingRecord("r1", "user-1")
	record.Status = domain.RetryStatusSuccess
	retries.put(record)

	sent := false
	p := newTestProcessor(t, retries, &fakeMetricRepo{})

	ok := p.ProcessRetry(context.Background(), record, func(ctx context.Context, token string, payload domain.Payload) error {
		sent = true
		return nil
	})

	if ok {
		t.Fatal("unclaimable record must not resolve")
	}
	if sent {
		t.Fatal("unclaimable record must not be sent")
	}
}

// A live record at the attempt cap can exist when a terminal write was
// lost mid-sweep. It must be finalized without another send, otherwise it
// is reloaded by every sweep forever.
func TestProcessRetryFinalizesStuckExhaustedRecord(t *testing.T) {
	t.Parallel()

	retries := newFakeRetryRepo()
	record := pendingRecord("r1", "user-1")
	record.Status = domain.RetryStatusRetrying
	record.Attempts = record.MaxAttempts
	record.LastError = &domain.DeliveryError{Code: sender.CodeTimeout, Message: "push timeout"}
	retries.put(record)

	p := newTestProcessor(t, retries, &fakeMetricRepo{})

	if ok := p.ProcessRetry(context.Background(), record, func(ctx context.Context, token string, payload domain.Payload) error {
		t.Fatal("finalizing an exhausted record must not send")
		return nil
	}); ok {
		t.Fatal("exhausted record must not resolve")
	}

	stored, _ := retries.get("r1")
	if stored.Status != domain.RetryStatusFailed {
		t.Fatalf("status = %s, want failed", stored.Status)
	}
	if stored.Attempts != record.MaxAttempts {
		t.Fatalf("attempts = %d, want %d", stored.Attempts, record.MaxAttempts)
	}
	if stored.LastError == nil || stored.LastError.Code != sender.CodeTimeout {
		t.Fatalf("lastError = %+v, want preserved code %s", stored.LastError, sender.CodeTimeout)
	}
}

func TestProcessRetryClaimErrorLeavesRecordUntouched(t *testing.T) {
	t.Parallel()

	retries := newFakeRetryRepo()
	retries.markRetryingErr = errors.New("connection reset")
	record := pendingRecord("r1", "user-1")
	retries.put(record)

	p := newTestProcessor(t, retries, &fakeMetricRepo{})

	if ok := p.ProcessRetry(context.Background(), record, func(ctx context.Context, token string, payload domain.Payload) error {
		t.Fatal("send must not run when the claim fails")
		return nil
	}); ok {
		t.Fatal("claim failure must not resolve the record")
	}

	stored, _ := retries.get("r1")
	if stored.Status != domain.RetryStatusPending || stored.Attempts != 0 {
		t.Fatalf("record = %+v, want untouched pending record", stored)
	}
}

// Full lifecycle: 3 failing attempts walk the 5s/10s backoff schedule and
// end terminally failed.
func TestProcessRetryExponentialScheduleToExhaustion(t *testing.T) {
	t.Parallel()

	retries := newFakeRetryRepo()
	metrics := &fakeMetricRepo{}
	record := pendingRecord("r1", "user-1")
	retries.put(record)

	p := newTestProcessor(t, retries, metrics)
	fixed := record.NextRetryAt
	p.now = func() time.Time { return fixed }

	failing := func(ctx context.Context, token string, payload domain.Payload) error {
		return &sender.SendError{Code: sender.CodeTimeout, Message: "push timeout", Transient: true}
	}

	wantDelays := []time.Duration{5 * time.Second, 10 * time.Second}
	for attempt := 1; attempt <= record.MaxAttempts; attempt++ {
		current, _ := retries.get("r1")
		if ok := p.ProcessRetry(context.Background(), current, failing); ok {
			t.Fatalf("attempt %d: failing send should not resolve", attempt)
		}

		stored, _ := retries.get("r1")
		if stored.Attempts != attempt {
			t.Fatalf("attempt %d: attempts = %d", attempt, stored.Attempts)
		}

		if attempt < record.MaxAttempts {
			if stored.Status != domain.RetryStatusPending {
				t.Fatalf("attempt %d: status = %s, want pending", attempt, stored.Status)
			}
			want := fixed.Add(wantDelays[attempt-1])
			if !stored.NextRetryAt.Equal(want) {
				t.Fatalf("attempt %d: nextRetryAt = %v, want %v", attempt, stored.NextRetryAt, want)
			}
		} else if stored.Status != domain.RetryStatusFailed {
			t.Fatalf("final status = %s, want failed", stored.Status)
		}
	}

	if got := len(metrics.all()); got != record.MaxAttempts {
		t.Fatalf("failed metrics = %d, want %d", got, record.MaxAttempts)
	}
}
