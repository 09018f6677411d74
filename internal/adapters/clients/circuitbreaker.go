package clients

import (
	"sync"
	"time"
)

// State is the position of a circuit breaker.
type State int

const (
	// StateClosed lets every call through.
	StateClosed State = iota

	// StateOpen rejects calls until the cool-down has elapsed.
	StateOpen

	// StateHalfOpen lets a limited number of probe calls through.
	StateHalfOpen
)

// String returns a human-readable name for the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures a CircuitBreaker.
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the circuit.
	MaxFailures int

	// Timeout is the cool-down spent open before probing.
	Timeout time.Duration

	// HalfOpenLimit is both the number of concurrent probes and the number of
	// consecutive probe successes that close the circuit again.
	HalfOpenLimit int
}

// Counts is a snapshot of the breaker's counters.
type Counts struct {
	State               State
	ConsecutiveFailures int
	ProbeSuccesses      int
	ProbesInFlight      int
}

// CircuitBreaker stops calls to a downstream that keeps failing. Only
// transport failures, timeouts and 5xx responses should be recorded as
// failures; a 4xx is the caller's problem, not the downstream's.
//
//	closed --MaxFailures failures--> open --Timeout--> half-open
//	half-open --HalfOpenLimit successes--> closed
//	half-open --any failure--> open
type CircuitBreaker struct {
	cfg CircuitBreakerConfig
	now func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	successes int
	probes    int
	openedAt  time.Time
	listener  func(from, to State)
}

// NewCircuitBreaker creates a closed circuit breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		cfg: cfg,
		now: time.Now,
	}
}

// OnStateChange registers fn to be called after every transition. fn runs
// without the breaker's lock held.
func (cb *CircuitBreaker) OnStateChange(fn func(from, to State)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.listener = fn
}

// Allow reports whether a call may proceed. A true result must be followed by
// exactly one RecordSuccess or RecordFailure.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()

	allowed := false
	notify := func() {}

	switch cb.state {
	case StateClosed:
		allowed = true
	case StateOpen:
		if cb.now().Sub(cb.openedAt) >= cb.cfg.Timeout {
			notify = cb.setState(StateHalfOpen)
			cb.probes = 1
			allowed = true
		}
	case StateHalfOpen:
		if cb.probes < cb.cfg.HalfOpenLimit {
			cb.probes++
			allowed = true
		}
	}

	cb.mu.Unlock()
	notify()

	return allowed
}

// RecordSuccess records a healthy downstream response.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()

	notify := func() {}

	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.probes--
		cb.successes++

		if cb.successes >= cb.cfg.HalfOpenLimit {
			notify = cb.setState(StateClosed)
		}
	case StateOpen:
	}

	cb.mu.Unlock()
	notify()
}

// RecordFailure records a downstream failure.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()

	notify := func() {}

	switch cb.state {
	case StateClosed:
		cb.failures++

		if cb.failures >= cb.cfg.MaxFailures {
			notify = cb.setState(StateOpen)
		}
	case StateHalfOpen:
		cb.probes--
		notify = cb.setState(StateOpen)
	case StateOpen:
	}

	cb.mu.Unlock()
	notify()
}

// State returns the current state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return cb.state
}

// Counts returns a snapshot of the counters.
func (cb *CircuitBreaker) Counts() Counts {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return Counts{
		State:               cb.state,
		ConsecutiveFailures: cb.failures,
		ProbeSuccesses:      cb.successes,
		ProbesInFlight:      cb.probes,
	}
}

// setState moves to next and returns the listener call to make once the lock
// is released. The caller must hold mu.
func (cb *CircuitBreaker) setState(next State) func() {
	prev := cb.state
	if prev == next {
		return func() {}
	}

	cb.state = next
	cb.failures = 0
	cb.successes = 0

	if next == StateOpen {
		cb.openedAt = cb.now()
		cb.probes = 0
	}

	listener := cb.listener
	if listener == nil {
		return func() {}
	}

	return func() { listener(prev, next) }
}
