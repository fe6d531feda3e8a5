package repository

import (
	"context"
	"errors"
	"time"

	"github.com/taskhive/pushguard/internal/domain"
	"gorm.io/gorm"
)

var liveStatuses = []domain.RetryStatus{domain.RetryStatusPending, domain.RetryStatusRetrying}

var terminalStatuses = []domain.RetryStatus{domain.RetryStatusFailed, domain.RetryStatusSuccess}

type RetryRepository interface {
	Create(ctx context.Context, r *domain.RetryRecord) error
	GetByID(ctx context.Context, id string) (*domain.RetryRecord, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.RetryRecord, error)
	ListByUser(ctx context.Context, userID string) ([]domain.RetryRecord, error)
	// MarkRetrying conditionally claims a record for a delivery attempt:
	// status moves to retrying and attempts is incremented, guarded so a
	// record already claimed, terminal, or out of attempts is not touched.
	MarkRetrying(ctx context.Context, id string) (bool, error)
	MarkSucceeded(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, lastErr domain.DeliveryError) error
	ScheduleRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr domain.DeliveryError) error
	Delete(ctx context.Context, id string) error
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CountByStatusForUser(ctx context.Context, userID string) (domain.RetryStats, error)
}

type GormRetryRepo struct {
	db *gorm.DB
}

func NewGormRetryRepo(db *gorm.DB) *GormRetryRepo {
	return &GormRetryRepo{db: db}
}

func (r *GormRetryRepo) Create(ctx context.Context, record *domain.RetryRecord) error {
	model := retryRecordModelFromDomain(record)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if record != nil {
		*record = *retryRecordModelToDomain(model)
	}
	return nil
}

func (r *GormRetryRepo) GetByID(ctx context.Context, id string) (*domain.RetryRecord, error) {
	var model RetryRecordModel
	err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return retryRecordModelToDomain(&model), nil
}

func (r *GormRetryRepo) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.RetryRecord, error) {
	var models []RetryRecordModel
	err := r.db.WithContext(ctx).
		Where("status IN ? AND next_retry_at <= ?", liveStatuses, now).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	records := make([]domain.RetryRecord, 0, len(models))
	for i := range models {
		records = append(records, *retryRecordModelToDomain(&models[i]))
	}

	return records, nil
}

func (r *GormRetryRepo) ListByUser(ctx context.Context, userID string) ([]domain.RetryRecord, error) {
	var models []RetryRecordModel
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	records := make([]domain.RetryRecord, 0, len(models))
	for i := range models {
		records = append(records, *retryRecordModelToDomain(&models[i]))
	}

	return records, nil
}

func (r *GormRetryRepo) MarkRetrying(ctx context.Context, id string) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&RetryRecordModel{}).
		Where("id = ? AND status IN ? AND attempts < max_attempts", id, liveStatuses).
		Updates(map[string]any{
			"status":   domain.RetryStatusRetrying,
			"attempts": gorm.Expr("attempts + 1"),
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *GormRetryRepo) MarkSucceeded(ctx context.Context, id string) error {
	return r.updateStatus(ctx, id, map[string]any{
		"status": domain.RetryStatusSuccess,
	})
}

func (r *GormRetryRepo) MarkFailed(ctx context.Context, id string, lastErr domain.DeliveryError) error {
	return r.updateStatus(ctx, id, map[string]any{
		"status":             domain.RetryStatusFailed,
		"last_error_code":    lastErr.Code,
		"last_error_message": lastErr.Message,
		"last_error_at":      lastErr.Timestamp,
	})
}

func (r *GormRetryRepo) ScheduleRetry(ctx context.Context, id string, nextRetryAt time.Time, lastErr domain.DeliveryError) error {
	return r.updateStatus(ctx, id, map[string]any{
		"status":             domain.RetryStatusPending,
		"next_retry_at":      nextRetryAt,
		"last_error_code":    lastErr.Code,
		"last_error_message": lastErr.Message,
		"last_error_at":      lastErr.Timestamp,
	})
}

func (r *GormRetryRepo) updateStatus(ctx context.Context, id string, patch map[string]any) error {
	result := r.db.WithContext(ctx).
		Model(&RetryRecordModel{}).
		Where("id = ?", id).
		Updates(patch)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormRetryRepo) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&RetryRecordModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *GormRetryRepo) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("status IN ? AND created_at < ?", terminalStatuses, cutoff).
		Delete(&RetryRecordModel{})
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

type statusCount struct {
	Status domain.RetryStatus `gorm:"column:status"`
	Count  int                `gorm:"column:count"`
}

func (r *GormRetryRepo) CountByStatusForUser(ctx context.Context, userID string) (domain.RetryStats, error) {
	var counts []statusCount
	err := r.db.WithContext(ctx).
		Model(&RetryRecordModel{}).
		Select("status, COUNT(*) as count").
		Where("user_id = ?", userID).
		Group("status").
		Scan(&counts).Error
	if err != nil {
		return domain.RetryStats{}, err
	}

	var stats domain.RetryStats
	for _, c := range counts {
		switch c.Status {
		case domain.RetryStatusPending:
			stats.Pending = c.Count
		case domain.RetryStatusRetrying:
			stats.Retrying = c.Count
		case domain.RetryStatusFailed:
			stats.Failed = c.Count
		case domain.RetryStatusSuccess:
			stats.Success = c.Count
		}
	}

	return stats, nil
}
