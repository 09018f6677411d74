// Package clients provides the resilient request client used to call the
// identity API and any other JSON service.
package clients

import "errors"

var (
	// ErrCircuitOpen is the cause of the RequestError returned while the
	// circuit breaker rejects calls.
	ErrCircuitOpen = errors.New("circuit breaker open")

	// ErrTimeout is the cause of the RequestError returned when the per-call
	// deadline expires.
	ErrTimeout = errors.New("request timed out")
)
