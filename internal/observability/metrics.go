package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors for the retry engine and HTTP surface.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDuration     *prometheus.HistogramVec
	deliveryAttemptsTotal   *prometheus.CounterVec
	retriesScheduledTotal   *prometheus.CounterVec
	retriesExhaustedTotal   *prometheus.CounterVec
	sendDuration            *prometheus.HistogramVec
	sweepsTotal             prometheus.Counter
	sweepRecordsInFlight    prometheus.Gauge
	metricAppendFailedTotal prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pushguard",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "pushguard",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		deliveryAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pushguard",
				Name:      "delivery_attempts_total",
				Help:      "Total delivery attempts grouped by notification type and outcome.",
			},
			[]string{"type", "outcome"},
		),
		retriesScheduledTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pushguard",
				Name:      "retries_scheduled_total",
				Help:      "Total records rescheduled for a later attempt.",
			},
			[]string{"type"},
		),
		retriesExhaustedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "pushguard",
				Name:      "retries_exhausted_total",
				Help:      "Total records that reached their attempt cap and failed terminally.",
			},
			[]string{"type"},
		),
		sendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "pushguard",
				Name:      "send_duration_seconds",
				Help:      "Push send duration in seconds grouped by notification type.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"type"},
		),
		sweepsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "pushguard",
				Name:      "sweeps_total",
				Help:      "Total sweep passes started.",
			},
		),
		sweepRecordsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "pushguard",
				Name:      "sweep_records_inflight",
				Help:      "Records currently being processed by a sweep.",
			},
		),
		metricAppendFailedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "pushguard",
				Name:      "metric_append_failures_total",
				Help:      "Total delivery metrics dropped because the store append failed.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.deliveryAttemptsTotal,
		m.retriesScheduledTotal,
		m.retriesExhaustedTotal,
		m.sendDuration,
		m.sweepsTotal,
		m.sweepRecordsInFlight,
		m.metricAppendFailedTotal,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncDeliveryAttempt(notificationType string, outcome string) {
	if m == nil {
		return
	}
	m.deliveryAttemptsTotal.WithLabelValues(normalizeLabel(notificationType), normalizeLabel(outcome)).Inc()
}

func (m *Metrics) IncRetryScheduled(notificationType string) {
	if m == nil {
		return
	}
	m.retriesScheduledTotal.WithLabelValues(normalizeLabel(notificationType)).Inc()
}

func (m *Metrics) IncRetryExhausted(notificationType string) {
	if m == nil {
		return
	}
	m.retriesExhaustedTotal.WithLabelValues(normalizeLabel(notificationType)).Inc()
}

func (m *Metrics) ObserveSendDuration(notificationType string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.sendDuration.WithLabelValues(normalizeLabel(notificationType)).Observe(seconds)
}

func (m *Metrics) IncSweep() {
	if m == nil {
		return
	}
	m.sweepsTotal.Inc()
}

func (m *Metrics) IncSweepInFlight() {
	if m == nil {
		return
	}
	m.sweepRecordsInFlight.Inc()
}

func (m *Metrics) DecSweepInFlight() {
	if m == nil {
		return
	}
	m.sweepRecordsInFlight.Dec()
}

func (m *Metrics) IncMetricAppendFailed() {
	if m == nil {
		return
	}
	m.metricAppendFailedTotal.Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}
