package repository

import (
	"context"
	"time"

	"github.com/taskhive/pushguard/internal/domain"
	"gorm.io/gorm"
)

type MetricRepository interface {
	Append(ctx context.Context, m *domain.Metric) error
	// QueryWindow returns metrics since the given instant, newest first,
	// bounded by limit. Scope is a user id or domain.SystemScope.
	QueryWindow(ctx context.Context, scope string, since time.Time, limit int) ([]domain.Metric, error)
}

type GormMetricRepo struct {
	db *gorm.DB
}

func NewGormMetricRepo(db *gorm.DB) *GormMetricRepo {
	return &GormMetricRepo{db: db}
}

func (r *GormMetricRepo) Append(ctx context.Context, metric *domain.Metric) error {
	model := metricModelFromDomain(metric)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if metric != nil {
		*metric = *metricModelToDomain(model)
	}
	return nil
}

func (r *GormMetricRepo) QueryWindow(ctx context.Context, scope string, since time.Time, limit int) ([]domain.Metric, error) {
	query := r.db.WithContext(ctx).
		Model(&MetricModel{}).
		Where("timestamp >= ?", since)

	if scope != domain.SystemScope {
		query = query.Where("user_id = ?", scope)
	}

	var models []MetricModel
	err := query.
		Order("timestamp DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	metrics := make([]domain.Metric, 0, len(models))
	for i := range models {
		metrics = append(metrics, *metricModelToDomain(&models[i]))
	}

	return metrics, nil
}
