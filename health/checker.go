package health

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/jonwraymond/dataops/resilience"
)

// Status represents the health status of a component.
type Status int

const (
	// StatusHealthy indicates the component is functioning normally.
	StatusHealthy Status = iota
	// StatusDegraded indicates the component is functioning but with issues.
	StatusDegraded
	// StatusUnhealthy indicates the component is not functioning properly.
	StatusUnhealthy
)

// String returns the string representation of the status.
func (s Status) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// Result contains the outcome of a health check.
type Result struct {
	Status  Status
	Message string

	// Details contains check-specific metadata such as latency.
	Details map[string]any

	Duration  time.Duration
	Timestamp time.Time
	Error     error
}

// Healthy creates a healthy result.
func Healthy(message string) Result {
	return Result{Status: StatusHealthy, Message: message}
}

// Degraded creates a degraded result.
func Degraded(message string) Result {
	return Result{Status: StatusDegraded, Message: message}
}

// Unhealthy creates an unhealthy result.
func Unhealthy(message string, err error) Result {
	return Result{Status: StatusUnhealthy, Message: message, Error: err}
}

// WithDetails adds details to a result.
func (r Result) WithDetails(details map[string]any) Result {
	r.Details = details
	return r
}

// Checker is the interface for health checks.
//
// Contract:
//   - Concurrency: Check must be safe for concurrent use.
//   - Context: Check must return promptly once ctx is done.
type Checker interface {
	Name() string
	Check(ctx context.Context) Result
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc struct {
	name string
	fn   func(context.Context) Result
}

// NewCheckerFunc creates a new CheckerFunc.
func NewCheckerFunc(name string, fn func(context.Context) Result) *CheckerFunc {
	return &CheckerFunc{name: name, fn: fn}
}

// Name returns the name of this checker.
func (f *CheckerFunc) Name() string {
	return f.name
}

// Check performs the health check.
func (f *CheckerFunc) Check(ctx context.Context) Result {
	return f.fn(ctx)
}

// Pinger is satisfied by cache.Store and warehouse.Warehouse.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingConfig configures a PingChecker.
type PingConfig struct {
	// SlowThreshold marks a successful ping slower than this as degraded.
	// Default: 1 second
	SlowThreshold time.Duration

	// Clock measures latency. Default: real clock.
	Clock clockwork.Clock
}

// PingChecker checks a dependency by pinging it.
type PingChecker struct {
	name   string
	target Pinger
	config PingConfig
}

// NewPingChecker creates a checker named name that pings target.
func NewPingChecker(name string, target Pinger, config PingConfig) *PingChecker {
	if config.SlowThreshold <= 0 {
		config.SlowThreshold = time.Second
	}
	if config.Clock == nil {
		config.Clock = clockwork.NewRealClock()
	}
	return &PingChecker{name: name, target: target, config: config}
}

// Name returns the name of this checker.
func (p *PingChecker) Name() string {
	return p.name
}

// Check pings the target.
func (p *PingChecker) Check(ctx context.Context) Result {
	start := p.config.Clock.Now()
	err := p.target.Ping(ctx)
	latency := p.config.Clock.Since(start)
	details := map[string]any{"latency_ms": latency.Milliseconds()}

	switch {
	case err != nil:
		return Unhealthy(p.name+" unreachable", fmt.Errorf("%w: %w", ErrCheckFailed, err)).WithDetails(details)
	case latency > p.config.SlowThreshold:
		return Degraded(fmt.Sprintf("%s slow: %v", p.name, latency)).WithDetails(details)
	default:
		return Healthy(p.name + " reachable").WithDetails(details)
	}
}

// CircuitChecker reports the state of a circuit breaker. An open circuit
// is unhealthy; a half-open circuit is degraded.
type CircuitChecker struct {
	name string
	cb   *resilience.CircuitBreaker
}

// NewCircuitChecker creates a checker for cb.
func NewCircuitChecker(name string, cb *resilience.CircuitBreaker) *CircuitChecker {
	return &CircuitChecker{name: name, cb: cb}
}

// Name returns the name of this checker.
func (c *CircuitChecker) Name() string {
	return c.name
}

// Check reads the breaker state. It never blocks.
func (c *CircuitChecker) Check(context.Context) Result {
	m := c.cb.Metrics()
	details := map[string]any{
		"state":    m.State.String(),
		"failures": m.Failures,
	}
	switch m.State {
	case resilience.StateOpen:
		return Unhealthy("circuit open", resilience.ErrCircuitOpen).WithDetails(details)
	case resilience.StateHalfOpen:
		return Degraded("circuit half-open").WithDetails(details)
	default:
		return Healthy("circuit closed").WithDetails(details)
	}
}

var (
	_ Checker = (*CheckerFunc)(nil)
	_ Checker = (*PingChecker)(nil)
	_ Checker = (*CircuitChecker)(nil)
)
