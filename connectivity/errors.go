package connectivity

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrCircuitOpen is returned when the breaker for a service rejects a call
// without attempting it.
type ErrCircuitOpen struct {
	Service    string
	RetryAfter time.Duration
}

func (e *ErrCircuitOpen) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("connectivity: circuit open: %s (retry in %s)", e.Service, e.RetryAfter.Round(time.Second))
	}
	return fmt.Sprintf("connectivity: circuit open: %s", e.Service)
}

// StatusError is a non-2xx HTTP response.
type StatusError struct {
	Code int
	Body []byte
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200]
	}
	return fmt.Sprintf("connectivity: status %d: %s", e.Code, body)
}

// Retryable reports whether a retry may succeed: rate limiting and server
// errors are retryable, other client errors are not.
func (e *StatusError) Retryable() bool {
	return e.Code == http.StatusTooManyRequests || e.Code >= 500
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	var open *ErrCircuitOpen
	if errors.As(err, &open) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return true
}
