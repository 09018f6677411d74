package ports

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultCheckTimeout bounds a single dependency check.
const DefaultCheckTimeout = 2 * time.Second

// ErrDuplicateChecker is returned when attempting to register a health checker
// with a name that is already registered.
var ErrDuplicateChecker = errors.New("duplicate health checker")

// HealthChecker is implemented by dependencies that can report their health:
// the identity store and the event publisher.
type HealthChecker interface {
	// Name identifies the dependency in readiness reports.
	Name() string

	// Check returns nil when the dependency is usable. It must honour ctx.
	Check(ctx context.Context) error
}

// HealthRegistry aggregates the checks of every registered dependency.
type HealthRegistry interface {
	// Register adds a checker. Names must be unique.
	Register(checker HealthChecker, opts ...RegisterOption) error

	// CheckAll runs every check concurrently, each under its own deadline.
	CheckAll(ctx context.Context) *HealthResult
}

// HealthStatus represents a health state.
type HealthStatus string

const (
	// HealthStatusHealthy indicates every check passed.
	HealthStatusHealthy HealthStatus = "healthy"

	// HealthStatusDegraded indicates only optional dependencies failed. The
	// service still answers identity requests.
	HealthStatusDegraded HealthStatus = "degraded"

	// HealthStatusUnhealthy indicates a critical dependency failed.
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// HealthResult contains the aggregated health check results.
type HealthResult struct {
	Status    HealthStatus            `json:"status"`
	Checks    map[string]*CheckResult `json:"checks"`
	Timestamp time.Time               `json:"timestamp"`
}

// CheckResult contains the result of a single health check.
type CheckResult struct {
	Status   HealthStatus  `json:"status"`
	Critical bool          `json:"critical"`
	Message  string        `json:"message,omitempty"`
	Duration time.Duration `json:"duration"`
}

// RegisterOption configures a single registration.
type RegisterOption func(*registration)

// AsOptional marks a dependency whose failure degrades the service without
// making it unready. Event publishing is optional because sign-ins commit
// without it.
func AsOptional() RegisterOption {
	return func(r *registration) {
		r.critical = false
	}
}

// RegistryOption configures a DefaultHealthRegistry.
type RegistryOption func(*DefaultHealthRegistry)

// WithCheckTimeout overrides DefaultCheckTimeout.
func WithCheckTimeout(d time.Duration) RegistryOption {
	return func(r *DefaultHealthRegistry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

type registration struct {
	checker  HealthChecker
	critical bool
}

// DefaultHealthRegistry is a thread-safe implementation of HealthRegistry.
type DefaultHealthRegistry struct {
	mu      sync.RWMutex
	entries []registration
	timeout time.Duration
	now     func() time.Time
}

// NewHealthRegistry creates an empty registry.
func NewHealthRegistry(opts ...RegistryOption) *DefaultHealthRegistry {
	r := &DefaultHealthRegistry{
		timeout: DefaultCheckTimeout,
		now:     time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Register adds checker. Dependencies are critical unless AsOptional is
// given.
func (r *DefaultHealthRegistry) Register(checker HealthChecker, opts ...RegisterOption) error {
	entry := registration{checker: checker, critical: true}
	for _, opt := range opts {
		opt(&entry)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := checker.Name()
	for _, e := range r.entries {
		if e.checker.Name() == name {
			return fmt.Errorf("%w: %s", ErrDuplicateChecker, name)
		}
	}

	r.entries = append(r.entries, entry)

	return nil
}

// CheckAll runs every check concurrently. The result is unhealthy when a
// critical check fails and degraded when only optional checks fail.
func (r *DefaultHealthRegistry) CheckAll(ctx context.Context) *HealthResult {
	r.mu.RLock()
	entries := append([]registration(nil), r.entries...)
	r.mu.RUnlock()

	results := make([]*CheckResult, len(entries))

	var g errgroup.Group

	for i, e := range entries {
		g.Go(func() error {
			results[i] = r.check(ctx, e)
			return nil
		})
	}

	_ = g.Wait()

	result := &HealthResult{
		Status:    HealthStatusHealthy,
		Checks:    make(map[string]*CheckResult, len(entries)),
		Timestamp: r.now(),
	}

	for i, e := range entries {
		check := results[i]
		result.Checks[e.checker.Name()] = check

		switch {
		case check.Status == HealthStatusHealthy:
		case check.Critical:
			result.Status = HealthStatusUnhealthy
		case result.Status == HealthStatusHealthy:
			result.Status = HealthStatusDegraded
		}
	}

	return result
}

func (r *DefaultHealthRegistry) check(ctx context.Context, e registration) *CheckResult {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := r.now()
	err := e.checker.Check(ctx)

	result := &CheckResult{
		Status:   HealthStatusHealthy,
		Critical: e.critical,
		Duration: time.Since(start),
	}

	if err != nil {
		result.Status = HealthStatusUnhealthy
		result.Message = err.Error()
	}

	return result
}
