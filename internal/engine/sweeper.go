package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/taskhive/pushguard/internal/domain"
	"github.com/taskhive/pushguard/internal/observability"
	"github.com/taskhive/pushguard/internal/repository"
	"github.com/taskhive/pushguard/internal/sender"
	"go.uber.org/zap"
)

const (
	defaultSweepBatchLimit = 100
	defaultRecordDelay     = 100 * time.Millisecond
	defaultCleanupDays     = 7
)

// SweepResult summarizes one pass over due retry records.
type SweepResult struct {
	Processed  int `json:"processed"`
	Successful int `json:"successful"`
	Failed     int `json:"failed"`
}

// Sweeper walks due retry records sequentially and hands each one to the
// processor, pacing attempts so a large backlog cannot stampede the push
// gateway.
type Sweeper struct {
	retries     repository.RetryRepository
	processor   *Processor
	send        sender.SendFunc
	logger      *zap.Logger
	metrics     *observability.Metrics
	batchLimit  int
	recordDelay time.Duration
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewSweeper(
	retries repository.RetryRepository,
	processor *Processor,
	send sender.SendFunc,
	logger *zap.Logger,
) (*Sweeper, error) {
	if retries == nil {
		return nil, fmt.Errorf("retry repository is required")
	}
	if processor == nil {
		return nil, fmt.Errorf("processor is required")
	}
	if send == nil {
		return nil, fmt.Errorf("send func is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Sweeper{
		retries:     retries,
		processor:   processor,
		send:        send,
		logger:      logger,
		batchLimit:  defaultSweepBatchLimit,
		recordDelay: defaultRecordDelay,
		now:         time.Now,
		sleep:       sleepWithContext,
	}, nil
}

func (s *Sweeper) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// SetBatchLimit caps how many due records a single sweep loads.
func (s *Sweeper) SetBatchLimit(limit int) {
	if s == nil || limit <= 0 {
		return
	}
	s.batchLimit = limit
}

// SetRecordDelay sets the pause between consecutive records in a sweep.
func (s *Sweeper) SetRecordDelay(delay time.Duration) {
	if s == nil || delay < 0 {
		return
	}
	s.recordDelay = delay
}

// ProcessAllPendingRetries runs one sweep pass. A store read failure is
// logged and yields an empty result; per-record failures are absorbed by
// the processor, so the pass always covers every record it loaded.
func (s *Sweeper) ProcessAllPendingRetries(ctx context.Context) SweepResult {
	s.metrics.IncSweep()

	due, err := s.retries.ListDue(ctx, s.now(), s.batchLimit)
	if err != nil {
		s.logger.Error("failed to load due retry records", zap.Error(err))
		return SweepResult{}
	}

	result := SweepResult{}
	for i, record := range due {
		if i > 0 {
			if err := s.sleep(ctx, s.recordDelay); err != nil {
				s.logger.Warn("sweep interrupted",
					zap.Int("remaining", len(due)-i),
					zap.Error(err),
				)
				break
			}
		}

		s.metrics.IncSweepInFlight()
		outcome := s.processor.process(ctx, record, s.send)
		s.metrics.DecSweepInFlight()

		// Records another sweeper claimed first are not counted: only
		// attempted records enter the tally.
		switch outcome {
		case outcomeResolved:
			result.Processed++
			result.Successful++
		case outcomeFailed:
			result.Processed++
			result.Failed++
		}
	}

	s.logger.Info("sweep completed",
		zap.Int("processed", result.Processed),
		zap.Int("successful", result.Successful),
		zap.Int("failed", result.Failed),
	)
	return result
}

// CleanupOldRetries deletes terminal records older than daysOld days and
// returns the number removed. Non-positive daysOld falls back to the
// default retention window.
func (s *Sweeper) CleanupOldRetries(ctx context.Context, daysOld int) (int64, error) {
	if daysOld <= 0 {
		daysOld = defaultCleanupDays
	}

	cutoff := s.now().AddDate(0, 0, -daysOld)
	deleted, err := s.retries.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old retry records: %w", err)
	}

	s.logger.Info("old retry records cleaned up",
		zap.Int64("deleted", deleted),
		zap.Int("daysOld", daysOld),
	)
	return deleted, nil
}

// UserRetryStats returns the per-status retry counts for one user.
func (s *Sweeper) UserRetryStats(ctx context.Context, userID string) (domain.RetryStats, error) {
	if userID == "" {
		return domain.RetryStats{}, fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	return s.retries.CountByStatusForUser(ctx, userID)
}

// UserRetries returns one user's retry records, newest first.
func (s *Sweeper) UserRetries(ctx context.Context, userID string) ([]domain.RetryRecord, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	return s.retries.ListByUser(ctx, userID)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
