package repository

import (
	"time"

	"github.com/taskhive/pushguard/internal/domain"
)

// RetryRecordModel is the persistence model for the retry_records table.
type RetryRecordModel struct {
	ID               string                  `gorm:"type:uuid;primaryKey"`
	UserID           string                  `gorm:"type:varchar(64);not null"`
	NotificationID   string                  `gorm:"type:varchar(64);not null"`
	Type             domain.NotificationType `gorm:"type:varchar(20);not null"`
	Title            string                  `gorm:"type:varchar(255);not null"`
	Body             string                  `gorm:"type:text;not null"`
	Data             map[string]string       `gorm:"type:jsonb;serializer:json"`
	DestinationToken string                  `gorm:"type:text;not null"`
	Status           domain.RetryStatus      `gorm:"type:varchar(10);not null"`
	Attempts         int                     `gorm:"not null;default:0"`
	MaxAttempts      int                     `gorm:"not null;default:3"`
	NextRetryAt      time.Time               `gorm:"type:timestamptz;not null"`
	LastErrorCode    *string                 `gorm:"type:varchar(64)"`
	LastErrorMessage *string                 `gorm:"type:text"`
	LastErrorAt      *time.Time              `gorm:"type:timestamptz"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

func (RetryRecordModel) TableName() string {
	return "retry_records"
}

// MetricModel is the persistence model for the delivery_metrics table.
type MetricModel struct {
	ID               string                  `gorm:"type:uuid;primaryKey"`
	UserID           string                  `gorm:"type:varchar(64);not null"`
	NotificationID   string                  `gorm:"type:varchar(64);not null"`
	Type             domain.NotificationType `gorm:"type:varchar(20);not null"`
	Status           domain.MetricStatus     `gorm:"type:varchar(10);not null"`
	Timestamp        time.Time               `gorm:"type:timestamptz;not null"`
	ResponseTimeMs   *int                    `gorm:"type:int"`
	ErrorCode        *string                 `gorm:"type:varchar(64)"`
	ErrorMessage     *string                 `gorm:"type:text"`
	DestinationToken *string                 `gorm:"type:text"`
	DevicePlatform   *string                 `gorm:"type:varchar(32)"`
	DeviceUserAgent  *string                 `gorm:"type:varchar(255)"`
	CreatedAt        time.Time
}

func (MetricModel) TableName() string {
	return "delivery_metrics"
}

func retryRecordModelFromDomain(r *domain.RetryRecord) *RetryRecordModel {
	if r == nil {
		return nil
	}

	m := &RetryRecordModel{
		ID:               r.ID,
		UserID:           r.UserID,
		NotificationID:   r.NotificationID,
		Type:             r.Type,
		Title:            r.Payload.Title,
		Body:             r.Payload.Body,
		Data:             r.Payload.Data,
		DestinationToken: r.DestinationToken,
		Status:           r.Status,
		Attempts:         r.Attempts,
		MaxAttempts:      r.MaxAttempts,
		NextRetryAt:      r.NextRetryAt,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}

	if r.LastError != nil {
		code := r.LastError.Code
		message := r.LastError.Message
		at := r.LastError.Timestamp
		m.LastErrorCode = &code
		m.LastErrorMessage = &message
		m.LastErrorAt = &at
	}

	return m
}

func retryRecordModelToDomain(m *RetryRecordModel) *domain.RetryRecord {
	if m == nil {
		return nil
	}

	r := &domain.RetryRecord{
		ID:               m.ID,
		UserID:           m.UserID,
		NotificationID:   m.NotificationID,
		Type:             m.Type,
		Payload:          domain.Payload{Title: m.Title, Body: m.Body, Data: m.Data},
		DestinationToken: m.DestinationToken,
		Status:           m.Status,
		Attempts:         m.Attempts,
		MaxAttempts:      m.MaxAttempts,
		NextRetryAt:      m.NextRetryAt,
		CreatedAt:        m.CreatedAt,
		UpdatedAt:        m.UpdatedAt,
	}

	if m.LastErrorCode != nil || m.LastErrorMessage != nil {
		lastErr := &domain.DeliveryError{}
		if m.LastErrorCode != nil {
			lastErr.Code = *m.LastErrorCode
		}
		if m.LastErrorMessage != nil {
			lastErr.Message = *m.LastErrorMessage
		}
		if m.LastErrorAt != nil {
			lastErr.Timestamp = *m.LastErrorAt
		}
		r.LastError = lastErr
	}

	return r
}

func metricModelFromDomain(metric *domain.Metric) *MetricModel {
	if metric == nil {
		return nil
	}

	m := &MetricModel{
		ID:               metric.ID,
		UserID:           metric.UserID,
		NotificationID:   metric.NotificationID,
		Type:             metric.Type,
		Status:           metric.Status,
		Timestamp:        metric.Timestamp,
		ResponseTimeMs:   metric.ResponseTimeMs,
		ErrorCode:        metric.ErrorCode,
		ErrorMessage:     metric.ErrorMessage,
		DestinationToken: metric.DestinationToken,
	}

	if metric.DeviceInfo != nil {
		platform := metric.DeviceInfo.Platform
		userAgent := metric.DeviceInfo.UserAgent
		m.DevicePlatform = &platform
		m.DeviceUserAgent = &userAgent
	}

	return m
}

func metricModelToDomain(m *MetricModel) *domain.Metric {
	if m == nil {
		return nil
	}

	metric := &domain.Metric{
		ID:               m.ID,
		UserID:           m.UserID,
		NotificationID:   m.NotificationID,
		Type:             m.Type,
		Status:           m.Status,
		Timestamp:        m.Timestamp,
		ResponseTimeMs:   m.ResponseTimeMs,
		ErrorCode:        m.ErrorCode,
		ErrorMessage:     m.ErrorMessage,
		DestinationToken: m.DestinationToken,
	}

	if m.DevicePlatform != nil || m.DeviceUserAgent != nil {
		info := &domain.DeviceInfo{}
		if m.DevicePlatform != nil {
			info.Platform = *m.DevicePlatform
		}
		if m.DeviceUserAgent != nil {
			info.UserAgent = *m.DeviceUserAgent
		}
		metric.DeviceInfo = info
	}

	return metric
}
