package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// Error kinds recorded on failed deliveries.
const (
	KindTimeout    = "TimeoutError"
	KindCanceled   = "CanceledError"
	KindNetwork    = "NetworkError"
	KindProvider   = "ProviderError"
	KindRateLimit  = "RateLimitError"
	KindPanic      = "PanicError"
	KindUnexpected = "UnexpectedError"
)

// ProviderError describes a transport-level failure of a provider call.
type ProviderError struct {
	Kind       string
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
	parts = append(parts, "provider error")

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

// IsTransient reports whether an error may succeed when retried.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var providerErr *ProviderError
	hasProviderErr := errors.As(err, &providerErr)
	if hasProviderErr && providerErr.Kind == KindRateLimit {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	if hasProviderErr && providerErr.Transient {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}

// ErrorKind maps an error onto a stable classification name.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}

	// An explicit kind wins over whatever caused it.
	var providerErr *ProviderError
	hasProviderErr := errors.As(err, &providerErr)
	if hasProviderErr {
		if kind := strings.TrimSpace(providerErr.Kind); kind != "" {
			return kind
		}
	}

	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindNetwork
	}

	if hasProviderErr {
		return KindProvider
	}

	return KindUnexpected
}
