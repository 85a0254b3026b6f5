package dataset

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/jonwraymond/dataops/cache"
	"github.com/jonwraymond/dataops/observe"
	"github.com/jonwraymond/dataops/resilience"
	"github.com/jonwraymond/dataops/warehouse"
)

// Defaults.
const (
	DefaultPreviewRows          = 10
	DefaultLockWait             = 2 * time.Minute
	DefaultLockPoll             = 250 * time.Millisecond
	DefaultQueryTimeout         = 300 * time.Second
	DefaultMaxConcurrentQueries = 10
)

// Config wires the dataset components. Store is always required; Warehouse
// is required by New.
type Config struct {
	Store     cache.Store
	Warehouse warehouse.Warehouse

	// Policy sets the entry TTL and the in-progress lock TTL.
	// Default: cache.DefaultPolicy()
	Policy cache.Policy

	// Builder builds queries. Default: NewBuilder(BuilderConfig{}).
	Builder *Builder

	// Deriver derives keys. The zero value uses the "dataset" namespace.
	Deriver Deriver

	// PreviewRows bounds the stored preview. Default: 10.
	PreviewRows int

	// LockWait bounds how long a load waits for another load of the same
	// key. Default: 2m.
	LockWait time.Duration

	// LockPoll is the interval between store checks while waiting.
	// Default: 250ms.
	LockPoll time.Duration

	// QueryTimeout bounds each warehouse query. Default: 300s.
	// Ignored when Executor is set.
	QueryTimeout time.Duration

	// MaxConcurrentQueries bounds concurrent warehouse queries. Default: 10.
	// Ignored when Executor is set.
	MaxConcurrentQueries int

	// Executor guards warehouse queries. Default: a bulkhead, a circuit
	// breaker and a QueryTimeout deadline.
	Executor *resilience.Executor

	// Clock stamps entries and drives lock polling. Default: real clock.
	Clock clockwork.Clock

	// Instrument records spans, metrics and logs. Default: no-op.
	Instrument *observe.Middleware
}

func (c Config) withDefaults() Config {
	if c.Policy == (cache.Policy{}) {
		c.Policy = cache.DefaultPolicy()
	}
	if c.Builder == nil {
		c.Builder = NewBuilder(BuilderConfig{})
	}
	if c.PreviewRows <= 0 {
		c.PreviewRows = DefaultPreviewRows
	}
	if c.LockWait <= 0 {
		c.LockWait = DefaultLockWait
	}
	if c.LockPoll <= 0 {
		c.LockPoll = DefaultLockPoll
	}
	if c.QueryTimeout <= 0 {
		c.QueryTimeout = DefaultQueryTimeout
	}
	if c.MaxConcurrentQueries <= 0 {
		c.MaxConcurrentQueries = DefaultMaxConcurrentQueries
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Executor == nil {
		c.Executor = resilience.NewExecutor(
			resilience.WithBulkhead(resilience.NewBulkhead(resilience.BulkheadConfig{
				MaxConcurrent: c.MaxConcurrentQueries,
				MaxWait:       c.QueryTimeout,
			})),
			resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
				IsFailure: isWarehouseFailure,
			})),
			resilience.WithTimeout(c.QueryTimeout),
		)
	}
	if c.Instrument == nil {
		c.Instrument = observe.NopMiddleware()
	}
	return c
}

func (c Config) validate() error {
	if c.Store == nil {
		return ErrNilStore
	}
	return c.Policy.Validate()
}
