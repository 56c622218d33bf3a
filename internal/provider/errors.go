package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ProviderError is a failed upstream call. StatusCode is zero when no response arrived.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Transient  bool
	Cause      error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 4)
	if e.Provider != "" {
		parts = append(parts, e.Provider+" error")
	} else {
		parts = append(parts, "provider error")
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

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// transportError wraps a call that never produced a response.
func transportError(name string, err error) *ProviderError {
	return &ProviderError{
		Provider:  name,
		Message:   "request failed",
		Transient: !errors.Is(err, context.Canceled),
		Cause:     err,
	}
}

// statusError wraps a non-2xx response. 408, 429 and 5xx are retryable.
func statusError(name string, statusCode int, body string) *ProviderError {
	msg := fmt.Sprintf("provider returned status %d", statusCode)
	if body = strings.TrimSpace(body); body != "" {
		msg = fmt.Sprintf("%s: %s", msg, body)
	}
	return &ProviderError{
		Provider:   name,
		StatusCode: statusCode,
		Message:    msg,
		Transient: statusCode == http.StatusTooManyRequests ||
			statusCode == http.StatusRequestTimeout ||
			statusCode >= http.StatusInternalServerError,
	}
}

// IsTransient reports whether an error should be retried.
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

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

// IsPermanent reports whether err is a provider rejection that must not be retried.
func IsPermanent(err error) bool {
	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return !providerErr.Transient
	}
	return errors.Is(err, context.Canceled)
}

// IsRejected reports whether the upstream answered with an error status, as opposed to being unreachable.
func IsRejected(err error) bool {
	var providerErr *ProviderError
	return errors.As(err, &providerErr) && providerErr.StatusCode > 0
}
