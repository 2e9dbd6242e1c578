package gateway

import (
	"errors"
	"fmt"
)

// ErrProviderUnavailable marks transient provider failures (timeouts, 429,
// 5xx). Calls wrapped with it are eligible for retry.
var ErrProviderUnavailable = errors.New("provider unavailable")

// RejectedError marks a definitive provider refusal (bad credentials, policy
// rejection, malformed request). Never retried.
type RejectedError struct {
	Provider string
	Reason   string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s rejected request: %s", e.Provider, e.Reason)
}

// Reject wraps a definitive refusal from the named provider.
func Reject(provider, format string, args ...any) error {
	return &RejectedError{Provider: provider, Reason: fmt.Sprintf(format, args...)}
}

// Retryable reports whether err should be retried under the gateway policy.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var rej *RejectedError
	if errors.As(err, &rej) {
		return false
	}
	return true
}

// Unavailable wraps err as a transient provider failure.
func Unavailable(provider string, err error) error {
	return fmt.Errorf("%s: %w: %w", provider, ErrProviderUnavailable, err)
}
