package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/taskhive/pushguard/internal/domain"
	"github.com/taskhive/pushguard/internal/engine"
	"github.com/taskhive/pushguard/internal/queue"
)

// RetryEnqueuer admits failed deliveries into the retry queue.
type RetryEnqueuer interface {
	Enqueue(ctx context.Context, req engine.EnqueueRequest) (*domain.RetryRecord, error)
}

// RetrySweeper exposes the sweep, cleanup, and per-user read operations.
type RetrySweeper interface {
	ProcessAllPendingRetries(ctx context.Context) engine.SweepResult
	CleanupOldRetries(ctx context.Context, daysOld int) (int64, error)
	UserRetryStats(ctx context.Context, userID string) (domain.RetryStats, error)
	UserRetries(ctx context.Context, userID string) ([]domain.RetryRecord, error)
}

// RetryPublisher hands an enqueue request to the broker instead of writing
// the record inline; the queue consumer admits it on its own schedule.
type RetryPublisher interface {
	Publish(ctx context.Context, queueName string, msg queue.RetryEnqueueMessage) error
}

type RetryHandler struct {
	intake    RetryEnqueuer
	sweeper   RetrySweeper
	publisher RetryPublisher
}

func NewRetryHandler(intake RetryEnqueuer, sweeper RetrySweeper, publisher RetryPublisher) (*RetryHandler, error) {
	if intake == nil {
		return nil, fmt.Errorf("retry enqueuer is required")
	}
	if sweeper == nil {
		return nil, fmt.Errorf("retry sweeper is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("retry publisher is required")
	}
	return &RetryHandler{intake: intake, sweeper: sweeper, publisher: publisher}, nil
}

func RegisterRetryRoutes(router fiber.Router, intake RetryEnqueuer, sweeper RetrySweeper, publisher RetryPublisher) error {
	h, err := NewRetryHandler(intake, sweeper, publisher)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/retries", h.EnqueueRetry)
	v1.Post("/retries/async", h.EnqueueRetryAsync)
	v1.Post("/retries/sweep", h.Sweep)
	v1.Post("/retries/cleanup", h.Cleanup)
	v1.Get("/users/:userId/retries", h.UserRetries)
	v1.Get("/users/:userId/retries/stats", h.UserRetryStats)

	return nil
}

type enqueueRetryRequest struct {
	UserID           string            `json:"userId"`
	NotificationID   string            `json:"notificationId"`
	Type             string            `json:"type"`
	Title            string            `json:"title"`
	Body             string            `json:"body"`
	Data             map[string]string `json:"data,omitempty"`
	DestinationToken string            `json:"destinationToken"`
	MaxAttempts      int               `json:"maxAttempts,omitempty"`
}

type retryRecordResponse struct {
	ID               string            `json:"id"`
	UserID           string            `json:"userId"`
	NotificationID   string            `json:"notificationId"`
	Type             string            `json:"type"`
	Title            string            `json:"title"`
	Body             string            `json:"body"`
	Data             map[string]string `json:"data,omitempty"`
	Status           string            `json:"status"`
	Attempts         int               `json:"attempts"`
	MaxAttempts      int               `json:"maxAttempts"`
	NextRetryAt      time.Time         `json:"nextRetryAt"`
	LastErrorCode    string            `json:"lastErrorCode,omitempty"`
	LastErrorMessage string            `json:"lastErrorMessage,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
}

type userRetriesResponse struct {
	UserID string                `json:"userId"`
	Data   []retryRecordResponse `json:"data"`
}

type cleanupResponse struct {
	Deleted int64 `json:"deleted"`
	DaysOld int   `json:"daysOld"`
}

func (h *RetryHandler) EnqueueRetry(c *fiber.Ctx) error {
	var req enqueueRetryRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	notificationType, err := domain.ParseNotificationTypeFromString(req.Type)
	if err != nil {
		return toHTTPError(err)
	}

	record, err := h.intake.Enqueue(c.Context(), engine.EnqueueRequest{
		UserID:           strings.TrimSpace(req.UserID),
		NotificationID:   strings.TrimSpace(req.NotificationID),
		Type:             notificationType,
		Payload:          domain.Payload{Title: req.Title, Body: req.Body, Data: req.Data},
		DestinationToken: strings.TrimSpace(req.DestinationToken),
		MaxAttempts:      req.MaxAttempts,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusAccepted).JSON(toRetryRecordResponse(record))
}

// EnqueueRetryAsync publishes the request to the broker and returns before
// the record exists; useful for producers that must not block on the store.
func (h *RetryHandler) EnqueueRetryAsync(c *fiber.Ctx) error {
	var req enqueueRetryRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	notificationType, err := domain.ParseNotificationTypeFromString(req.Type)
	if err != nil {
		return toHTTPError(err)
	}

	msg := queue.RetryEnqueueMessage{
		UserID:           strings.TrimSpace(req.UserID),
		NotificationID:   strings.TrimSpace(req.NotificationID),
		Type:             notificationType,
		Title:            req.Title,
		Body:             req.Body,
		Data:             req.Data,
		DestinationToken: strings.TrimSpace(req.DestinationToken),
		MaxAttempts:      req.MaxAttempts,
	}
	if id, ok := c.Locals("requestid").(string); ok {
		msg.CorrelationID = id
	}

	if err := msg.Validate(); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	if err := h.publisher.Publish(c.Context(), queue.EnqueueQueueName, msg); err != nil {
		return fmt.Errorf("failed to queue retry request: %w", err)
	}

	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"status":         "queued",
		"notificationId": msg.NotificationID,
	})
}

func (h *RetryHandler) Sweep(c *fiber.Ctx) error {
	result := h.sweeper.ProcessAllPendingRetries(c.Context())
	return c.Status(fiber.StatusOK).JSON(result)
}

func (h *RetryHandler) Cleanup(c *fiber.Ctx) error {
	daysOld := c.QueryInt("days", 0)
	if daysOld < 0 {
		return toHTTPError(fmt.Errorf("%w: days must not be negative", domain.ErrValidation))
	}

	deleted, err := h.sweeper.CleanupOldRetries(c.Context(), daysOld)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(cleanupResponse{Deleted: deleted, DaysOld: daysOld})
}

func (h *RetryHandler) UserRetries(c *fiber.Ctx) error {
	userID := strings.TrimSpace(c.Params("userId"))

	records, err := h.sweeper.UserRetries(c.Context(), userID)
	if err != nil {
		return toHTTPError(err)
	}

	responses := make([]retryRecordResponse, 0, len(records))
	for i := range records {
		responses = append(responses, toRetryRecordResponse(&records[i]))
	}

	return c.Status(fiber.StatusOK).JSON(userRetriesResponse{UserID: userID, Data: responses})
}

func (h *RetryHandler) UserRetryStats(c *fiber.Ctx) error {
	userID := strings.TrimSpace(c.Params("userId"))

	stats, err := h.sweeper.UserRetryStats(c.Context(), userID)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"userId": userID,
		"stats":  stats,
	})
}

func toRetryRecordResponse(r *domain.RetryRecord) retryRecordResponse {
	if r == nil {
		return retryRecordResponse{}
	}

	resp := retryRecordResponse{
		ID:             r.ID,
		UserID:         r.UserID,
		NotificationID: r.NotificationID,
		Type:           r.Type.String(),
		Title:          r.Payload.Title,
		Body:           r.Payload.Body,
		Data:           r.Payload.Data,
		Status:         r.Status.String(),
		Attempts:       r.Attempts,
		MaxAttempts:    r.MaxAttempts,
		NextRetryAt:    r.NextRetryAt,
		CreatedAt:      r.CreatedAt,
	}

	if r.LastError != nil {
		resp.LastErrorCode = r.LastError.Code
		resp.LastErrorMessage = r.LastError.Message
	}

	return resp
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return fiber.NewError(fiber.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrConflict):
		return fiber.NewError(fiber.StatusConflict, err.Error())
	default:
		return err
	}
}
