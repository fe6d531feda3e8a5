package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/taskhive/pushguard/internal/domain"
	"github.com/taskhive/pushguard/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultWindowDays = 30

	userQueryLimit   = 1000
	systemQueryLimit = 5000
)

// Service computes analytics over the delivery metric store. Reads fail
// open: when the store is unreachable the service returns the zero
// snapshot instead of an error, so dashboards degrade to empty rather
// than breaking.
type Service struct {
	metrics    repository.MetricRepository
	logger     *zap.Logger
	windowDays int
	now        func() time.Time
}

func NewService(metrics repository.MetricRepository, logger *zap.Logger) (*Service, error) {
	if metrics == nil {
		return nil, fmt.Errorf("metric repository is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Service{
		metrics:    metrics,
		logger:     logger,
		windowDays: defaultWindowDays,
		now:        time.Now,
	}, nil
}

// SetWindow overrides the trailing window used when a caller does not ask
// for a specific number of days. Non-positive values are ignored.
func (s *Service) SetWindow(days int) {
	if s == nil || days <= 0 {
		return
	}
	s.windowDays = days
}

// UserAnalytics aggregates one user's metrics over the trailing window.
// Non-positive days falls back to the default window.
func (s *Service) UserAnalytics(ctx context.Context, userID string, days int) (domain.AnalyticsSnapshot, error) {
	if userID == "" {
		return domain.AnalyticsSnapshot{}, fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	return s.snapshot(ctx, userID, days, userQueryLimit), nil
}

// SystemAnalytics aggregates metrics across all users over the trailing
// window.
func (s *Service) SystemAnalytics(ctx context.Context, days int) (domain.AnalyticsSnapshot, error) {
	return s.snapshot(ctx, domain.SystemScope, days, systemQueryLimit), nil
}

// SystemHealth evaluates the system-wide snapshot against the delivery
// health thresholds.
func (s *Service) SystemHealth(ctx context.Context, days int) (domain.AnalyticsSnapshot, ThresholdReport, error) {
	snapshot, err := s.SystemAnalytics(ctx, days)
	if err != nil {
		return domain.AnalyticsSnapshot{}, ThresholdReport{}, err
	}
	return snapshot, CheckPerformanceThresholds(snapshot), nil
}

func (s *Service) snapshot(ctx context.Context, scope string, days int, limit int) domain.AnalyticsSnapshot {
	if days <= 0 {
		days = s.windowDays
	}

	since := s.now().AddDate(0, 0, -days)
	metrics, err := s.metrics.QueryWindow(ctx, scope, since, limit)
	if err != nil {
		s.logger.Warn("metric store read failed, serving empty analytics",
			zap.String("scope", scope),
			zap.Int("days", days),
			zap.Error(err),
		)
		return Compute(nil)
	}

	return Compute(metrics)
}
