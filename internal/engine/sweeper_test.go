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

func newTestSweeper(t *testing.T, retries *fakeRetryRepo, send sender.SendFunc) *Sweeper {
	t.Helper()

	rec := recorder.NewRecorder(&fakeMetricRepo{}, zap.NewNop())
	p, err := NewProcessor(retries, rec, backoff.Config{}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewProcessor() error = %v", err)
	}

	s, err := NewSweeper(retries, p, send, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSweeper() error = %v", err)
	}
	s.sleep = func(ctx context.Context, d time.Duration) error { return nil }
	return s
}

func TestSweepCountsMatchOutcomes(t *testing.T) {
	t.Parallel()

	retries := newFakeRetryRepo()
	retries.put(pendingRecord("ok-1", "user-1"))
	retries.put(pendingRecord("ok-2", "user-1"))
	retries.put(pendingRecord("bad-1", "user-2"))

	send := func(ctx context.Context, token string, payload domain.Payload) error {
		if token == "token-bad-1" {
			return errors.New("device unreachable")
		}
		return nil
	}

	s := newTestSweeper(t, retries, send)
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	result := s.ProcessAllPendingRetries(context.Background())

	if result.Processed != 3 {
		t.Fatalf("processed = %d, want 3", result.Processed)
	}
	if result.Successful != 2 {
		t.Fatalf("successful = %d, want 2", result.Successful)
	}
	if result.Failed != 1 {
		t.Fatalf("failed = %d, want 1", result.Failed)
	}
	if result.Processed != result.Successful+result.Failed {
		t.Fatalf("processed %d != successful %d + failed %d", result.Processed, result.Successful, result.Failed)
	}
}

func TestSweepPacesBetweenRecords(t *testing.T) {
	t.Parallel()

	retries := newFakeRetryRepo()
	retries.put(pendingRecord("r1", "user-1"))
	retries.put(pendingRecord("r2", "user-1"))
	retries.put(pendingRecord("r3", "user-1"))

	send := func(ctx context.Context, token string, payload domain.Payload) error { return nil }
	s := newTestSweeper(t, retries, send)
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	var sleeps []time.Duration
	s.sleep = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}

	s.ProcessAllPendingRetries(context.Background())

	if len(sleeps) != 2 {
		t.Fatalf("sleeps = %d, want 2 (between 3 records)", len(sleeps))
	}
	for _, d := range sleeps {
		if d != defaultRecordDelay {
			t.Fatalf("sleep = %v, want %v", d, defaultRecordDelay)
		}
	}
}

func TestSweepExcludesUnclaimableRecords(t *testing.T) {
	t.Parallel()

	retries := newFakeRetryRepo()
	retries.put(pendingRecord("r1", "user-1"))
	retries.markRetryingErr = errors.New("database unavailable")

	send := func(ctx context.Context, token string, payload domain.Payload) error {
		t.Fatal("send must not run for unclaimed records")
		return nil
	}

	s := newTestSweeper(t, retries, send)
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	result := s.ProcessAllPendingRetries(context.Background())
	if result != (SweepResult{}) {
		t.Fatalf("result = %+v, want all zero for unclaimed records", result)
	}
}

func TestSweepLoadFailureYieldsEmptyResult(t *testing.T) {
	t.Parallel()

	retries := newFakeRetryRepo()
	retries.listDueErr = errors.New("database unavailable")

	send := func(ctx context.Context, token string, payload domain.Payload) error {
		t.Fatal("send must not run when loading due records fails")
		return nil
	}

	s := newTestSweeper(t, retries, send)

	result := s.ProcessAllPendingRetries(context.Background())
	if result != (SweepResult{}) {
		t.Fatalf("result = %+v, want empty", result)
	}
}

func TestSweepSkipsRecordsNotYetDue(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	retries := newFakeRetryRepo()
	due := pendingRecord("due", "user-1")
	future := pendingRecord("future", "user-1")
	future.NextRetryAt = now.Add(time.Minute)
	retries.put(due)
	retries.put(future)

	send := func(ctx context.Context, token string, payload domain.Payload) error { return nil }
	s := newTestSweeper(t, retries, send)
	s.now = func() time.Time { return now }

	result := s.ProcessAllPendingRetries(context.Background())
	if result.Processed != 1 {
		t.Fatalf("processed = %d, want only the due record", result.Processed)
	}
	if _, exists := retries.get("future"); !exists {
		t.Fatal("future record should be untouched")
	}
}

func TestSweepStopsWhenContextCanceled(t *testing.T) {
	t.Parallel()

	retries := newFakeRetryRepo()
	retries.put(pendingRecord("r1", "user-1"))
	retries.put(pendingRecord("r2", "user-1"))
	retries.put(pendingRecord("r3", "user-1"))

	send := func(ctx context.Context, token string, payload domain.Payload) error { return nil }
	s := newTestSweeper(t, retries, send)
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	s.sleep = func(ctx context.Context, d time.Duration) error { return context.Canceled }

	result := s.ProcessAllPendingRetries(context.Background())
	if result.Processed != 1 {
		t.Fatalf("processed = %d, want 1 before cancellation", result.Processed)
	}
}

func TestCleanupOldRetriesDeletesTerminalRecords(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	retries := newFakeRetryRepo()
	old := pendingRecord("old-failed", "user-1")
	old.Status = domain.RetryStatusFailed
	old.CreatedAt = now.AddDate(0, 0, -10)
	retries.put(old)

	recent := pendingRecord("recent-failed", "user-1")
	recent.Status = domain.RetryStatusFailed
	recent.CreatedAt = now.AddDate(0, 0, -2)
	retries.put(recent)

	live := pendingRecord("old-pending", "user-1")
	live.CreatedAt = now.AddDate(0, 0, -30)
	retries.put(live)

	send := func(ctx context.Context, token string, payload domain.Payload) error { return nil }
	s := newTestSweeper(t, retries, send)
	s.now = func() time.Time { return now }

	deleted, err := s.CleanupOldRetries(context.Background(), 0)
	if err != nil {
		t.Fatalf("CleanupOldRetries() error = %v", err)
	}
	if deleted != 1 {
		t.Fatalf("deleted = %d, want 1", deleted)
	}
	if want := now.AddDate(0, 0, -defaultCleanupDays); !retries.cleanupCutoff.Equal(want) {
		t.Fatalf("cutoff = %v, want %v", retries.cleanupCutoff, want)
	}
	if _, exists := retries.get("old-pending"); !exists {
		t.Fatal("live records must survive cleanup regardless of age")
	}
	if _, exists := retries.get("recent-failed"); !exists {
		t.Fatal("recent terminal records must survive cleanup")
	}
}

func TestUserRetryStatsRequiresUserID(t *testing.T) {
	t.Parallel()

	send := func(ctx context.Context, token string, payload domain.Payload) error { return nil }
	s := newTestSweeper(t, newFakeRetryRepo(), send)

	if _, err := s.UserRetryStats(context.Background(), ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}
