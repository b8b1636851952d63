package provider

import (
	"context"
	"errors"
	"net"
	"net/http"
)

// HTTPClient is the slice of *http.Client the adapters need, kept as an
// interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// isTimeout reports whether an HTTP error is a timeout or cancellation.
// Timeouts never classify a payment as failed: the provider may have
// accepted the request even though the answer never reached us.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return false
}
