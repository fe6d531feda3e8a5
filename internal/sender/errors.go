package sender

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Classification codes for send failures without a provider-supplied code.
const (
	CodeUnknown     = "UNKNOWN_ERROR"
	CodeTimeout     = "TIMEOUT"
	CodeCanceled    = "CANCELED"
	CodeNetwork     = "NETWORK_ERROR"
	CodeCircuitOpen = "CIRCUIT_OPEN"

	CodeInvalidToken        = "INVALID_TOKEN"
	CodeRateLimited         = "RATE_LIMITED"
	CodeProviderRejected    = "PROVIDER_REJECTED"
	CodeProviderUnavailable = "PROVIDER_UNAVAILABLE"
)

// SendError classifies a delivery failure.
type SendError struct {
	Code       string
	Message    string
	StatusCode int
	Transient  bool
	Cause      error
}

func (e *SendError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	parts = append(parts, "send error")

	if code := strings.TrimSpace(e.Code); code != "" {
		parts = append(parts, fmt.Sprintf("code=%s", code))
	}
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *SendError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Classify reduces a send failure to a {code, message} pair. A code set on
// a *SendError wins; otherwise well-known error classes are named; anything
// else is UNKNOWN_ERROR. The message is always the full error text.
func Classify(err error) (code string, message string) {
	if err == nil {
		return "", ""
	}

	message = err.Error()

	var sendErr *SendError
	if errors.As(err, &sendErr) && strings.TrimSpace(sendErr.Code) != "" {
		return sendErr.Code, message
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return CodeTimeout, message
	}
	if errors.Is(err, context.Canceled) {
		return CodeCanceled, message
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return CodeNetwork, message
	}

	return CodeUnknown, message
}

// IsTransient reports whether a send failure is worth retrying. Unknown
// errors count as transient; the attempt cap bounds them anyway.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var sendErr *SendError
	if errors.As(err, &sendErr) {
		return sendErr.Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return true
}
