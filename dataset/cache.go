package dataset

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/dataops/observe"
	"github.com/jonwraymond/dataops/resilience"
	"github.com/jonwraymond/dataops/warehouse"
)

// Cache loads datasets, executing the warehouse query only on a miss.
// Reads and extensions are served by the embedded Accessor and Extender.
//
// Contract:
//   - Concurrency: safe for concurrent use. Concurrent loads of one key
//     execute the query at most once across processes sharing the store.
//   - Errors: every error is an *Error carrying one of the Err* kinds.
//   - Lookups never refresh an entry's TTL.
type Cache struct {
	*Accessor
	*Extender

	cfg   Config
	group singleflight.Group
}

// New creates a Cache.
func New(cfg Config) (*Cache, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Warehouse == nil {
		return nil, ErrNilWarehouse
	}
	return &Cache{
		Accessor: &Accessor{cfg: cfg},
		Extender: &Extender{cfg: cfg},
		cfg:      cfg,
	}, nil
}

// CircuitBreaker returns the breaker guarding warehouse queries, or nil
// when the executor has none.
func (c *Cache) CircuitBreaker() *resilience.CircuitBreaker {
	return c.cfg.Executor.CircuitBreaker()
}

// Load returns the dataset for req. On a hit the stored entry is returned
// with Cached set; on a miss the query is executed and its result stored
// with the policy TTL. A failed query stores nothing.
func (c *Cache) Load(ctx context.Context, req Request) (*LoadResult, error) {
	var res *LoadResult
	meta := observe.OpMeta{Name: opLoad}
	if err := req.validate(); err != nil {
		return nil, newError(opLoad, "", ErrInvalidRequest, err)
	}
	req = req.Normalize()
	meta.Key = c.cfg.Deriver.Key(req)

	err := c.cfg.Instrument.Run(ctx, meta, func(ctx context.Context) error {
		var err error
		res, err = c.load(ctx, meta.Key, req)
		return err
	})
	return res, err
}

func (c *Cache) load(ctx context.Context, key string, req Request) (*LoadResult, error) {
	if entry, ok, err := c.lookup(ctx, key); err != nil {
		return nil, err
	} else if ok {
		c.logger(key).Debug(ctx, "dataset cache hit")
		return &LoadResult{Key: key, Cached: true, Metadata: entry.Metadata}, nil
	}

	// The shared fill outlives any single caller; each caller still stops
	// waiting when its own ctx is done.
	ch := c.group.DoChan(key, func() (any, error) {
		fillCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.LockWait+c.cfg.QueryTimeout)
		defer cancel()
		return c.fill(fillCtx, key, req)
	})
	select {
	case <-ctx.Done():
		return nil, newError(opLoad, key, nil, ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		res := *r.Val.(*LoadResult)
		return &res, nil
	}
}

// lookup reads and verifies the entry for key. Unreadable entries count as
// a miss so the next execution overwrites them.
func (c *Cache) lookup(ctx context.Context, key string) (*Entry, bool, error) {
	data, ok, err := c.cfg.Store.Get(ctx, key)
	if err != nil {
		return nil, false, newError(opLoad, key, ErrStoreUnavailable, err)
	}
	if ok {
		entry, err := decodeEntry(data)
		if err == nil {
			_, err = decodeTable(entry)
		}
		if err == nil {
			c.cfg.Instrument.Metrics().RecordLookup(ctx, true)
			return entry, true, nil
		}
		c.logger(key).Warn(ctx, "discarding unreadable dataset entry", observe.Field{Key: "error", Value: err.Error()})
	}
	c.cfg.Instrument.Metrics().RecordLookup(ctx, false)
	return nil, false, nil
}

// fill runs under singleflight. It takes the store lock for key, or waits
// for the holder to store the entry.
func (c *Cache) fill(ctx context.Context, key string, req Request) (*LoadResult, error) {
	deadline := c.cfg.Clock.Now().Add(c.cfg.LockWait)

	for {
		lock, acquired, err := tryLock(ctx, c.cfg.Store, key, c.cfg.Policy)
		if err != nil {
			return nil, newError(opLoad, key, ErrStoreUnavailable, err)
		}
		if acquired {
			return c.fillLocked(ctx, key, req, lock)
		}

		if !c.cfg.Clock.Now().Before(deadline) {
			return nil, newError(opLoad, key, ErrStoreUnavailable, errLoadInProgress)
		}
		select {
		case <-ctx.Done():
			return nil, newError(opLoad, key, nil, ctx.Err())
		case <-c.cfg.Clock.After(c.cfg.LockPoll):
		}

		entry, ok, err := c.lookup(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok {
			return &LoadResult{Key: key, Cached: true, Metadata: entry.Metadata}, nil
		}
	}
}

func (c *Cache) fillLocked(ctx context.Context, key string, req Request, lock *loadLock) (*LoadResult, error) {
	defer func() {
		if err := lock.release(ctx); err != nil {
			c.logger(key).Warn(ctx, "failed to release dataset lock", observe.Field{Key: "error", Value: err.Error()})
		}
	}()

	// Another process may have stored the entry between our miss and the lock.
	if entry, ok, err := c.lookup(ctx, key); err != nil {
		return nil, err
	} else if ok {
		return &LoadResult{Key: key, Cached: true, Metadata: entry.Metadata}, nil
	}

	stop := lock.keepAlive(ctx, c.cfg.Clock, c.cfg.Policy.LockTTL, c.logger(key))
	entry, err := c.execute(ctx, key, req)
	stop()
	if err != nil {
		return nil, err
	}

	data, err := encodeEntry(entry)
	if err != nil {
		return nil, newError(opLoad, key, ErrQueryExecutionFailed, err)
	}
	if err := c.cfg.Store.SetWithExpiry(ctx, key, data, c.cfg.Policy.EffectiveTTL(0)); err != nil {
		return nil, newError(opLoad, key, ErrStoreUnavailable, err)
	}

	c.logger(key).Info(ctx, "dataset cached",
		observe.Field{Key: "rows", Value: entry.Shape.Rows},
		observe.Field{Key: "columns", Value: entry.Shape.Columns},
		observe.Field{Key: "size_bytes", Value: entry.SizeBytes},
	)
	return &LoadResult{Key: key, Cached: false, Metadata: entry.Metadata}, nil
}

// execute builds and runs the query and materializes the entry.
func (c *Cache) execute(ctx context.Context, key string, req Request) (*Entry, error) {
	q, err := c.cfg.Builder.Build(req)
	if err != nil {
		return nil, newError(opLoad, key, ErrInvalidRequest, err)
	}

	var result *warehouse.Result
	start := time.Now()
	err = c.cfg.Executor.Execute(ctx, func(ctx context.Context) error {
		r, err := c.cfg.Warehouse.Execute(ctx, q)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	rows := 0
	if err == nil {
		rows = result.RowCount()
	}
	c.cfg.Instrument.Metrics().RecordQuery(ctx, rows, time.Since(start), err)

	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, newError(opLoad, key, nil, err)
		}
		if errors.Is(err, resilience.ErrTimeout) {
			return nil, newError(opLoad, key, ErrQueryTimeout, err)
		}
		return nil, newError(opLoad, key, ErrQueryExecutionFailed, err)
	}

	entry, err := newEntry(req, q, result, c.cfg.PreviewRows, c.cfg.Clock.Now())
	if err != nil {
		return nil, newError(opLoad, key, ErrQueryExecutionFailed, err)
	}
	return entry, nil
}

func (c *Cache) logger(key string) observe.Logger {
	return c.cfg.Instrument.Logger().WithOp(observe.OpMeta{Name: opLoad, Key: key})
}

// isWarehouseFailure decides which errors trip the circuit breaker: those
// that say the warehouse is unreachable or slow, not that a query was bad.
func isWarehouseFailure(err error) bool {
	if errors.Is(err, resilience.ErrTimeout) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
