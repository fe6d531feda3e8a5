package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/taskhive/pushguard/internal/backoff"
	"github.com/taskhive/pushguard/internal/domain"
	"github.com/taskhive/pushguard/internal/observability"
	"github.com/taskhive/pushguard/internal/recorder"
	"github.com/taskhive/pushguard/internal/repository"
	"github.com/taskhive/pushguard/internal/sender"
	"go.uber.org/zap"
)

// Processor drives the retry state machine for a single record:
// pending|retrying -> retrying -> success | pending (rescheduled) | failed.
type Processor struct {
	retries  repository.RetryRepository
	recorder *recorder.Recorder
	cfg      backoff.Config
	logger   *zap.Logger
	metrics  *observability.Metrics
	now      func() time.Time
}

func NewProcessor(
	retries repository.RetryRepository,
	rec *recorder.Recorder,
	cfg backoff.Config,
	logger *zap.Logger,
) (*Processor, error) {
	if retries == nil {
		return nil, fmt.Errorf("retry repository is required")
	}
	if rec == nil {
		return nil, fmt.Errorf("metric recorder is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Processor{
		retries:  retries,
		recorder: rec,
		cfg:      cfg.Normalize(),
		logger:   logger,
		now:      time.Now,
	}, nil
}

func (p *Processor) SetMetrics(metrics *observability.Metrics) {
	if p == nil {
		return
	}
	p.metrics = metrics
}

// outcome distinguishes records the processor resolved or failed from
// records it never attempted (already claimed elsewhere, terminal, or the
// claim write itself failed).
type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeResolved
	outcomeFailed
)

// ProcessRetry attempts one delivery for the record and returns true when
// the record was resolved successfully. Every persistence failure is
// contained here: the record is left for a later sweep, so one broken
// record never aborts a sweep.
func (p *Processor) ProcessRetry(ctx context.Context, record domain.RetryRecord, send sender.SendFunc) bool {
	return p.process(ctx, record, send) == outcomeResolved
}

func (p *Processor) process(ctx context.Context, record domain.RetryRecord, send sender.SendFunc) outcome {
	log := p.logger.With(
		zap.String("retryId", record.ID),
		zap.String("notificationId", record.NotificationID),
		zap.String("userId", record.UserID),
	)

	// A live record already at the attempt cap means a previous terminal
	// write was lost: it can never be claimed again, so finalize it here
	// instead of reloading it forever.
	if record.Attempts >= record.MaxAttempts && !record.Status.IsTerminal() {
		return p.finalizeExhausted(ctx, record, log)
	}

	// The retrying transition is persisted before the send so a crash
	// mid-send is observable, and it is conditional so a concurrent
	// sweeper cannot claim the same record twice.
	claimed, err := p.retries.MarkRetrying(ctx, record.ID)
	if err != nil {
		log.Error("failed to claim retry record", zap.Error(err))
		return outcomeSkipped
	}
	if !claimed {
		log.Debug("retry record no longer claimable, skipping")
		return outcomeSkipped
	}

	record.Status = domain.RetryStatusRetrying
	record.Attempts++

	typeLabel := record.Type.String()
	start := p.now()
	sendErr := send(ctx, record.DestinationToken, record.Payload)
	elapsed := p.now().Sub(start)
	p.metrics.ObserveSendDuration(typeLabel, elapsed)

	if sendErr == nil {
		return p.resolveSuccess(ctx, record, elapsed, log)
	}

	return p.resolveFailure(ctx, record, sendErr, log)
}

func (p *Processor) finalizeExhausted(ctx context.Context, record domain.RetryRecord, log *zap.Logger) outcome {
	lastErr := domain.DeliveryError{
		Code:      sender.CodeUnknown,
		Message:   "retry attempts exhausted",
		Timestamp: p.now().UTC(),
	}
	if record.LastError != nil {
		lastErr = *record.LastError
	}

	if err := p.retries.MarkFailed(ctx, record.ID, lastErr); err != nil {
		log.Error("failed to finalize exhausted retry record", zap.Error(err))
		return outcomeSkipped
	}

	log.Warn("finalized exhausted retry record",
		zap.Int("attempts", record.Attempts),
		zap.String("errorCode", lastErr.Code),
	)
	return outcomeFailed
}

func (p *Processor) resolveSuccess(ctx context.Context, record domain.RetryRecord, elapsed time.Duration, log *zap.Logger) outcome {
	p.metrics.IncDeliveryAttempt(record.Type.String(), "delivered")

	if err := p.retries.MarkSucceeded(ctx, record.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		log.Error("failed to mark retry record as succeeded", zap.Error(err))
	}

	p.recorder.RecordDelivered(ctx, record.UserID, record.NotificationID, record.Type, int(elapsed.Milliseconds()))

	// Delivered records are dropped; the delivered metric row keeps the
	// audit trail.
	if err := p.retries.Delete(ctx, record.ID); err != nil && !errors.Is(err, domain.ErrNotFound) {
		log.Error("failed to delete delivered retry record", zap.Error(err))
	}

	log.Info("notification delivered after retry",
		zap.Int("attempts", record.Attempts),
		zap.Int64("elapsedMs", elapsed.Milliseconds()),
	)
	return outcomeResolved
}

func (p *Processor) resolveFailure(ctx context.Context, record domain.RetryRecord, sendErr error, log *zap.Logger) outcome {
	typeLabel := record.Type.String()
	code, message := sender.Classify(sendErr)

	p.metrics.IncDeliveryAttempt(typeLabel, "failed")
	p.recorder.RecordFailed(ctx, record.UserID, record.NotificationID, record.Type, code, message)

	lastErr := domain.DeliveryError{
		Code:      code,
		Message:   message,
		Timestamp: p.now().UTC(),
	}

	if record.Attempts >= record.MaxAttempts {
		if err := p.retries.MarkFailed(ctx, record.ID, lastErr); err != nil {
			log.Error("failed to mark retry record as failed", zap.Error(err))
		}
		p.metrics.IncRetryExhausted(typeLabel)
		log.Warn("retry attempts exhausted",
			zap.Int("attempts", record.Attempts),
			zap.String("errorCode", code),
		)
		return outcomeFailed
	}

	nextRetryAt := p.now().Add(backoff.NextDelay(record.Attempts, p.cfg))
	if err := p.retries.ScheduleRetry(ctx, record.ID, nextRetryAt, lastErr); err != nil {
		log.Error("failed to reschedule retry record", zap.Error(err))
		return outcomeFailed
	}

	p.metrics.IncRetryScheduled(typeLabel)
	log.Info("delivery failed, retry scheduled",
		zap.Int("attempts", record.Attempts),
		zap.String("errorCode", code),
		zap.Time("nextRetryAt", nextRetryAt),
	)
	return outcomeFailed
}
