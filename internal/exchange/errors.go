package exchange

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// APIError represents an HTTP-level error from a venue.
type APIError struct {
	Exchange   string
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s api error %d: %s", e.Exchange, e.StatusCode, e.Message)
}

// IsRetryable returns true if the error should trigger a retry.
// Server errors and rate limits are transient; other 4xx are permanent.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// NonRetryableError marks a failure as permanent so retry layers abort
// immediately instead of consuming remaining attempts.
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string {
	return "non-retryable: " + e.Err.Error()
}

func (e *NonRetryableError) Unwrap() error { return e.Err }

// IsRetryable classifies an error for the retry layer. Network failures
// and transient API errors are retryable; permanent API errors, explicit
// NonRetryableError wrappers, and caller cancellation are not.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var nre *NonRetryableError
	if errors.As(err, &nre) {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.IsRetryable()
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	// Transport errors (DNS, refused connection, timeouts) are transient.
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// Unclassified errors default to retryable; the attempt bound still
	// limits the damage of a misclassification.
	return true
}
