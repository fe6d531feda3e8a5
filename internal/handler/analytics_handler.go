package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/taskhive/pushguard/internal/analytics"
	"github.com/taskhive/pushguard/internal/domain"
)

// AnalyticsService computes delivery analytics over the metric store.
type AnalyticsService interface {
	UserAnalytics(ctx context.Context, userID string, days int) (domain.AnalyticsSnapshot, error)
	SystemAnalytics(ctx context.Context, days int) (domain.AnalyticsSnapshot, error)
	SystemHealth(ctx context.Context, days int) (domain.AnalyticsSnapshot, analytics.ThresholdReport, error)
}

type AnalyticsHandler struct {
	service AnalyticsService
}

func NewAnalyticsHandler(service AnalyticsService) (*AnalyticsHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("analytics service is required")
	}
	return &AnalyticsHandler{service: service}, nil
}

func RegisterAnalyticsRoutes(router fiber.Router, service AnalyticsService) error {
	h, err := NewAnalyticsHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Get("/analytics", h.SystemAnalytics)
	v1.Get("/analytics/health", h.SystemHealth)
	v1.Get("/users/:userId/analytics", h.UserAnalytics)

	return nil
}

type healthResponse struct {
	Healthy        bool                     `json:"healthy"`
	Warnings       []string                 `json:"warnings"`
	CriticalIssues []string                 `json:"criticalIssues"`
	Snapshot       domain.AnalyticsSnapshot `json:"snapshot"`
}

func (h *AnalyticsHandler) UserAnalytics(c *fiber.Ctx) error {
	userID := strings.TrimSpace(c.Params("userId"))
	days, err := parseDaysQuery(c)
	if err != nil {
		return toHTTPError(err)
	}

	snapshot, err := h.service.UserAnalytics(c.Context(), userID, days)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(snapshot)
}

func (h *AnalyticsHandler) SystemAnalytics(c *fiber.Ctx) error {
	days, err := parseDaysQuery(c)
	if err != nil {
		return toHTTPError(err)
	}

	snapshot, err := h.service.SystemAnalytics(c.Context(), days)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(snapshot)
}

func (h *AnalyticsHandler) SystemHealth(c *fiber.Ctx) error {
	days, err := parseDaysQuery(c)
	if err != nil {
		return toHTTPError(err)
	}

	snapshot, report, err := h.service.SystemHealth(c.Context(), days)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(healthResponse{
		Healthy:        report.Healthy(),
		Warnings:       report.Warnings,
		CriticalIssues: report.CriticalIssues,
		Snapshot:       snapshot,
	})
}

func parseDaysQuery(c *fiber.Ctx) (int, error) {
	days := c.QueryInt("days", 0)
	if days < 0 {
		return 0, fmt.Errorf("%w: days must not be negative", domain.ErrValidation)
	}
	return days, nil
}
