package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"syscall"
)

// StatusError marks a response whose status code falls in the retryable set.
// It is surfaced to the caller once retries are exhausted.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request to %s returned retryable status %d", e.URL, e.StatusCode)
}

// isRetryable classifies transport errors. Generic request errors, proxy
// connect failures, timeouts and connection resets are retryable; a
// cancelled context is not.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	// http.Client wraps every transport-level failure in a *url.Error.
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
