package sender

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"github.com/taskhive/pushguard/internal/domain"
)

const defaultGatewayTimeout = 10 * time.Second

type gatewayRequest struct {
	Token string            `json:"token"`
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// WebhookPushSender delivers payloads to an HTTP push gateway. A circuit
// breaker sheds load while the gateway is hard down so sweeps fail fast
// instead of burning the timeout on every record.
type WebhookPushSender struct {
	client   *resty.Client
	endpoint string
	breaker  *gobreaker.CircuitBreaker
}

func NewWebhookPushSender(endpoint string) (*WebhookPushSender, error) {
	client := resty.New()
	client.SetTimeout(defaultGatewayTimeout)
	client.SetRetryCount(0)

	return NewWebhookPushSenderWithClient(endpoint, client)
}

func NewWebhookPushSenderWithClient(endpoint string, client *resty.Client) (*WebhookPushSender, error) {
	trimmedEndpoint := strings.TrimSpace(endpoint)
	if trimmedEndpoint == "" {
		return nil, fmt.Errorf("push gateway endpoint is required")
	}
	if _, err := url.ParseRequestURI(trimmedEndpoint); err != nil {
		return nil, fmt.Errorf("invalid push gateway endpoint: %w", err)
	}
	if client == nil {
		return nil, fmt.Errorf("resty client is required")
	}

	if client.GetClient().Timeout == 0 {
		client.SetTimeout(defaultGatewayTimeout)
	}
	client.SetRetryCount(0)

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "push-gateway",
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
	})

	return &WebhookPushSender{
		client:   client,
		endpoint: trimmedEndpoint,
		breaker:  breaker,
	}, nil
}

func (s *WebhookPushSender) Send(ctx context.Context, destinationToken string, payload domain.Payload) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("sender is not initialized")
	}
	if strings.TrimSpace(destinationToken) == "" {
		return &SendError{Code: CodeInvalidToken, Message: "destination token is empty"}
	}
	if err := payload.Validate(); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	_, err := s.breaker.Execute(func() (any, error) {
		return nil, s.post(ctx, destinationToken, payload)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &SendError{
			Code:      CodeCircuitOpen,
			Message:   "push gateway circuit is open",
			Transient: true,
			Cause:     err,
		}
	}

	return err
}

func (s *WebhookPushSender) post(ctx context.Context, destinationToken string, payload domain.Payload) error {
	reqBody := gatewayRequest{
		Token: destinationToken,
		Title: payload.Title,
		Body:  payload.Body,
		Data:  payload.Data,
	}

	response, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(reqBody).
		Post(s.endpoint)
	if err != nil {
		code := CodeNetwork
		if errors.Is(err, context.DeadlineExceeded) {
			code = CodeTimeout
		}
		return &SendError{
			Code:      code,
			Message:   "push gateway request failed",
			Transient: !errors.Is(err, context.Canceled),
			Cause:     err,
		}
	}
	if response == nil {
		return &SendError{
			Code:      CodeProviderUnavailable,
			Message:   "push gateway returned empty response",
			Transient: true,
		}
	}

	statusCode := response.StatusCode()
	if statusCode >= http.StatusOK && statusCode < http.StatusMultipleChoices {
		return nil
	}

	responseBody := strings.TrimSpace(response.String())
	return &SendError{
		Code:       classifyHTTPStatus(statusCode),
		Message:    gatewayErrorMessage(statusCode, responseBody),
		StatusCode: statusCode,
		Transient:  isTransientHTTPStatus(statusCode),
	}
}

func classifyHTTPStatus(statusCode int) string {
	switch {
	case statusCode == http.StatusNotFound || statusCode == http.StatusGone:
		// Gateways signal expired or unregistered device tokens this way.
		return CodeInvalidToken
	case statusCode == http.StatusTooManyRequests:
		return CodeRateLimited
	case statusCode >= http.StatusInternalServerError:
		return CodeProviderUnavailable
	default:
		return CodeProviderRejected
	}
}

func isTransientHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599)
}

func gatewayErrorMessage(statusCode int, body string) string {
	base := fmt.Sprintf("push gateway returned status %d", statusCode)
	if body == "" {
		return base
	}
	return fmt.Sprintf("%s: %s", base, body)
}
