package recorder

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/taskhive/pushguard/internal/domain"
	"github.com/taskhive/pushguard/internal/observability"
	"github.com/taskhive/pushguard/internal/repository"
	"go.uber.org/zap"
)

// Recorder persists delivery-outcome metrics. Metrics are best-effort
// telemetry: a failed append is logged and counted, never returned, so the
// retry/send path can never be aborted by the metric store.
type Recorder struct {
	metrics repository.MetricRepository
	logger  *zap.Logger
	prom    *observability.Metrics
	now     func() time.Time
}

func NewRecorder(metrics repository.MetricRepository, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Recorder{
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

// SetMetrics attaches operational Prometheus collectors.
func (r *Recorder) SetMetrics(prom *observability.Metrics) {
	if r == nil {
		return
	}
	r.prom = prom
}

// Record stamps missing identity/timestamp fields and appends the metric.
func (r *Recorder) Record(ctx context.Context, metric *domain.Metric) {
	if r == nil || metric == nil {
		return
	}

	if metric.ID == "" {
		metric.ID = uuid.NewString()
	}
	if metric.Timestamp.IsZero() {
		metric.Timestamp = r.now().UTC()
	}

	if err := metric.Validate(); err != nil {
		r.logger.Warn("dropping invalid delivery metric",
			zap.String("notificationId", metric.NotificationID),
			zap.Error(err),
		)
		r.prom.IncMetricAppendFailed()
		return
	}

	if err := r.metrics.Append(ctx, metric); err != nil {
		r.logger.Warn("failed to persist delivery metric",
			zap.String("notificationId", metric.NotificationID),
			zap.String("status", metric.Status.String()),
			zap.Error(err),
		)
		r.prom.IncMetricAppendFailed()
	}
}

// RecordSent records that a notification left for the transport.
func (r *Recorder) RecordSent(ctx context.Context, userID, notificationID string, notificationType domain.NotificationType, destinationToken string, device *domain.DeviceInfo) {
	metric := &domain.Metric{
		UserID:         userID,
		NotificationID: notificationID,
		Type:           notificationType,
		Status:         domain.MetricStatusSent,
		DeviceInfo:     device,
	}
	if destinationToken != "" {
		metric.DestinationToken = &destinationToken
	}
	r.Record(ctx, metric)
}

// RecordDelivered records a confirmed delivery and its round-trip time.
func (r *Recorder) RecordDelivered(ctx context.Context, userID, notificationID string, notificationType domain.NotificationType, responseTimeMs int) {
	metric := &domain.Metric{
		UserID:         userID,
		NotificationID: notificationID,
		Type:           notificationType,
		Status:         domain.MetricStatusDelivered,
	}
	if responseTimeMs > 0 {
		metric.ResponseTimeMs = &responseTimeMs
	}
	r.Record(ctx, metric)
}

// RecordClicked records a user interaction with a delivered notification.
func (r *Recorder) RecordClicked(ctx context.Context, userID, notificationID string, notificationType domain.NotificationType) {
	r.Record(ctx, &domain.Metric{
		UserID:         userID,
		NotificationID: notificationID,
		Type:           notificationType,
		Status:         domain.MetricStatusClicked,
	})
}

// RecordFailed records a classified delivery failure.
func (r *Recorder) RecordFailed(ctx context.Context, userID, notificationID string, notificationType domain.NotificationType, errorCode, errorMessage string) {
	metric := &domain.Metric{
		UserID:         userID,
		NotificationID: notificationID,
		Type:           notificationType,
		Status:         domain.MetricStatusFailed,
	}
	if errorCode != "" {
		metric.ErrorCode = &errorCode
	}
	if errorMessage != "" {
		metric.ErrorMessage = &errorMessage
	}
	r.Record(ctx, metric)
}
