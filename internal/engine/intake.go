package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/taskhive/pushguard/internal/backoff"
	"github.com/taskhive/pushguard/internal/domain"
	"github.com/taskhive/pushguard/internal/observability"
	"github.com/taskhive/pushguard/internal/repository"
	"go.uber.org/zap"
)

// EnqueueRequest describes a failed delivery that should enter the retry
// queue. MaxAttempts is optional; zero means the engine default.
type EnqueueRequest struct {
	UserID           string
	NotificationID   string
	Type             domain.NotificationType
	Payload          domain.Payload
	DestinationToken string
	MaxAttempts      int
}

// Intake turns enqueue requests, from HTTP or the message queue, into
// pending retry records due for the next sweep.
type Intake struct {
	retries repository.RetryRepository
	cfg     backoff.Config
	logger  *zap.Logger
	now     func() time.Time
}

func NewIntake(retries repository.RetryRepository, cfg backoff.Config, logger *zap.Logger) (*Intake, error) {
	if retries == nil {
		return nil, fmt.Errorf("retry repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Intake{
		retries: retries,
		cfg:     cfg.Normalize(),
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Enqueue validates the request and persists a pending record that is due
// immediately.
func (i *Intake) Enqueue(ctx context.Context, req EnqueueRequest) (*domain.RetryRecord, error) {
	maxAttempts := req.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = i.cfg.MaxAttempts
	}

	now := i.now().UTC()
	record := &domain.RetryRecord{
		ID:               uuid.NewString(),
		UserID:           req.UserID,
		NotificationID:   req.NotificationID,
		Type:             req.Type,
		Payload:          req.Payload,
		DestinationToken: req.DestinationToken,
		Status:           domain.RetryStatusPending,
		Attempts:         0,
		MaxAttempts:      maxAttempts,
		NextRetryAt:      now,
		CreatedAt:        now,
	}

	if err := record.Validate(); err != nil {
		return nil, err
	}

	if err := i.retries.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to enqueue retry record: %w", err)
	}

	observability.WithContextLogger(i.logger, ctx).Info("retry record enqueued",
		zap.String("retryId", record.ID),
		zap.String("notificationId", record.NotificationID),
		zap.String("type", record.Type.String()),
		zap.Int("maxAttempts", record.MaxAttempts),
	)
	return record, nil
}
