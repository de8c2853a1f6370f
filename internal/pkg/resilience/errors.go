package resilience

import (
	"errors"
	"fmt"
	"time"
)

// NoEndpointError means discovery had nothing registered for the service.
// It is never retried and never counted by the breaker.
type NoEndpointError struct {
	Service string
}

func (e *NoEndpointError) Error() string {
	return fmt.Sprintf("resilience: no endpoint registered for %q", e.Service)
}

// CircuitOpenError is returned without touching the network while the
// service's breaker is open or already probing.
type CircuitOpenError struct {
	Service string
	State   State
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("resilience: circuit for %q is %s", e.Service, e.State)
}

// DownstreamTimeoutError is a single attempt that ran past the per-call timeout.
type DownstreamTimeoutError struct {
	Service string
	Timeout time.Duration
}

func (e *DownstreamTimeoutError) Error() string {
	return fmt.Sprintf("resilience: %q did not answer within %s", e.Service, e.Timeout)
}

// StatusError is a 5xx answer.
type StatusError struct {
	Service    string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("resilience: %q answered %d", e.Service, e.StatusCode)
}

// DownstreamUnavailableError is returned once every permitted attempt failed.
// Err is the last attempt's failure.
type DownstreamUnavailableError struct {
	Service  string
	Attempts int
	Err      error
}

func (e *DownstreamUnavailableError) Error() string {
	return fmt.Sprintf("resilience: %q unavailable after %d attempt(s): %v", e.Service, e.Attempts, e.Err)
}

func (e *DownstreamUnavailableError) Unwrap() error { return e.Err }

// IsUnavailable reports whether err means the downstream could not be
// reached at all, as opposed to answering with a business error.
func IsUnavailable(err error) bool {
	var (
		noEndpoint  *NoEndpointError
		open        *CircuitOpenError
		unavailable *DownstreamUnavailableError
	)
	return errors.As(err, &noEndpoint) || errors.As(err, &open) || errors.As(err, &unavailable)
}
