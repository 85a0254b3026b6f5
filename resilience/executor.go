package resilience

import (
	"context"
	"time"
)

// Executor composes resilience patterns around an operation.
type Executor struct {
	circuitBreaker *CircuitBreaker
	retry          *Retry
	rateLimiter    *RateLimiter
	bulkhead       *Bulkhead
	timeout        *Timeout
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// NewExecutor creates a new resilience executor.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WithCircuitBreaker adds a circuit breaker to the executor.
func WithCircuitBreaker(cb *CircuitBreaker) ExecutorOption {
	return func(e *Executor) {
		e.circuitBreaker = cb
	}
}

// WithRetry adds retry logic to the executor.
func WithRetry(r *Retry) ExecutorOption {
	return func(e *Executor) {
		e.retry = r
	}
}

// WithRateLimiter adds rate limiting to the executor.
func WithRateLimiter(rl *RateLimiter) ExecutorOption {
	return func(e *Executor) {
		e.rateLimiter = rl
	}
}

// WithBulkhead adds bulkhead isolation to the executor.
func WithBulkhead(b *Bulkhead) ExecutorOption {
	return func(e *Executor) {
		e.bulkhead = b
	}
}

// WithTimeout adds a deadline to each attempt.
func WithTimeout(timeout time.Duration) ExecutorOption {
	return func(e *Executor) {
		e.timeout = NewTimeout(TimeoutConfig{Timeout: timeout})
	}
}

// CircuitBreaker returns the configured breaker, or nil.
func (e *Executor) CircuitBreaker() *CircuitBreaker {
	return e.circuitBreaker
}

// Bulkhead returns the configured bulkhead, or nil.
func (e *Executor) Bulkhead() *Bulkhead {
	return e.bulkhead
}

// Execute runs the operation through all configured patterns.
//
// The execution order, outermost first:
// 1. Rate Limiter - limits request rate
// 2. Bulkhead - limits concurrency
// 3. Circuit Breaker - fails fast while the dependency is down
// 4. Retry - retries on failure
// 5. Timeout - bounds each attempt
func (e *Executor) Execute(ctx context.Context, op func(context.Context) error) error {
	execute := op

	if e.timeout != nil {
		execute = wrap(e.timeout.Execute, execute)
	}
	if e.retry != nil {
		execute = wrap(e.retry.Execute, execute)
	}
	if e.circuitBreaker != nil {
		execute = wrap(e.circuitBreaker.Execute, execute)
	}
	if e.bulkhead != nil {
		execute = wrap(e.bulkhead.Execute, execute)
	}
	if e.rateLimiter != nil {
		execute = wrap(e.rateLimiter.Execute, execute)
	}

	return execute(ctx)
}

type opFunc = func(context.Context) error

func wrap(guard func(context.Context, opFunc) error, inner opFunc) opFunc {
	return func(ctx context.Context) error {
		return guard(ctx, inner)
	}
}
