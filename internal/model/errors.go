package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable signals that the source explicitly reported a posting as no
// longer available. It is a normal "not discovered" outcome, not a failure:
// the item is excluded from results and never retried within the run.
var ErrUnavailable = errors.New("posting no longer available")

// HTTPError wraps an HTTP status code so retry logic can inspect it.
type HTTPError struct {
	StatusCode int
	RetryAfter time.Duration // from Retry-After header, zero if absent
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("HTTP %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("HTTP %d", e.StatusCode)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}
