package engine

import (
	"context"
	"sync"
	"time"

	"github.com/taskhive/pushguard/internal/domain"
)

// fakeRetryRepo is an in-memory RetryRepository with the same conditional
// claim semantics as the SQL implementation.
type fakeRetryRepo struct {
	mu      sync.Mutex
	records map[string]*domain.RetryRecord

	listDueErr      error
	markRetryingErr error
	scheduleErr     error
	createErr       error
	deleteTerminal  int64
	cleanupCutoff   time.Time
}

func newFakeRetryRepo() *fakeRetryRepo {
	return &fakeRetryRepo{records: map[string]*domain.RetryRecord{}}
}

func (f *fakeRetryRepo) put(r domain.RetryRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := r
	f.records[r.ID] = &clone
}

func (f *fakeRetryRepo) get(id string) (domain.RetryRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok {
		return domain.RetryRecord{}, false
	}
	return *r, true
}

func (f *fakeRetryRepo) Create(ctx context.Context, r *domain.RetryRecord) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.put(*r)
	return nil
}

func (f *fakeRetryRepo) GetByID(ctx context.Context, id string) (*domain.RetryRecord, error) {
	r, ok := f.get(id)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &r, nil
}

func (f *fakeRetryRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.RetryRecord, error) {
	if f.listDueErr != nil {
		return nil, f.listDueErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var due []domain.RetryRecord
	for _, r := range f.records {
		if !r.Status.IsTerminal() && !r.NextRetryAt.After(now) {
			due = append(due, *r)
		}
	}
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (f *fakeRetryRepo) ListByUser(ctx context.Context, userID string) ([]domain.RetryRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []domain.RetryRecord
	for _, r := range f.records {
		if r.UserID == userID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeRetryRepo) MarkRetrying(ctx context.Context, id string) (bool, error) {
	if f.markRetryingErr != nil {
		return false, f.markRetryingErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.records[id]
	if !ok || r.Status.IsTerminal() || r.Attempts >= r.MaxAttempts {
		return false, nil
	}
	r.Status = domain.RetryStatusRetrying
	r.Attempts++
	return true, nil
}

func (f *fakeRetryRepo) MarkSucceeded(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.records[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.Status = domain.RetryStatusSuccess
	return nil
}

func (f *fakeRetryRepo) MarkFailed(ctx context.Context, id string, lastErr domain.DeliveryError) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.records[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.Status = domain.RetryStatusFailed
	r.LastError = &lastErr
	return nil
}

func (f *fakeRetryRepo) ScheduleRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr domain.DeliveryError) error {
	if f.scheduleErr != nil {
		return f.scheduleErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	r, ok := f.records[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.Status = domain.RetryStatusPending
	r.NextRetryAt = nextRetryAt
	r.LastError = &lastErr
	return nil
}

func (f *fakeRetryRepo) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if _, ok := f.records[id]; !ok {
		return domain.ErrNotFound
	}
	delete(f.records, id)
	return nil
}

func (f *fakeRetryRepo) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.cleanupCutoff = cutoff

	var deleted int64
	for id, r := range f.records {
		if r.Status.IsTerminal() && r.CreatedAt.Before(cutoff) {
			delete(f.records, id)
			deleted++
		}
	}
	f.deleteTerminal = deleted
	return deleted, nil
}

func (f *fakeRetryRepo) CountByStatusForUser(ctx context.Context, userID string) (domain.RetryStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var stats domain.RetryStats
	for _, r := range f.records {
		if r.UserID != userID {
			continue
		}
		switch r.Status {
		case domain.RetryStatusPending:
			stats.Pending++
		case domain.RetryStatusRetrying:
			stats.Retrying++
		case domain.RetryStatusFailed:
			stats.Failed++
		case domain.RetryStatusSuccess:
			stats.Success++
		}
	}
	return stats, nil
}

// fakeMetricRepo captures appended delivery metrics.
type fakeMetricRepo struct {
	mu      sync.Mutex
	metrics []domain.Metric
}

func (f *fakeMetricRepo) Append(ctx context.Context, m *domain.Metric) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metrics = append(f.metrics, *m)
	return nil
}

func (f *fakeMetricRepo) QueryWindow(ctx context.Context, scope string, since time.Time, limit int) ([]domain.Metric, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Metric(nil), f.metrics...), nil
}

func (f *fakeMetricRepo) all() []domain.Metric {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Metric(nil), f.metrics...)
}

// stepClock returns a strictly increasing fake time.
type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func newStepClock(start time.Time, step time.Duration) *stepClock {
	return &stepClock{now: start, step: step}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	current := c.now
	c.now = c.now.Add(c.step)
	return current
}

func pendingRecord(id, userID string) domain.RetryRecord {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return domain.RetryRecord{
		ID:               id,
		UserID:           userID,
		NotificationID:   "notif-" + id,
		Type:             domain.TypeTaskReminder,
		Payload:          domain.Payload{Title: "Task due", Body: "Finish the report"},
		DestinationToken: "token-" + id,
		Status:           domain.RetryStatusPending,
		Attempts:         0,
		MaxAttempts:      domain.DefaultMaxAttempts,
		NextRetryAt:      now,
		CreatedAt:        now,
	}
}
