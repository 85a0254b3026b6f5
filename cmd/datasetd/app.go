package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/jonwraymond/dataops/cache"
	"github.com/jonwraymond/dataops/config"
	"github.com/jonwraymond/dataops/dataset"
	"github.com/jonwraymond/dataops/health"
	"github.com/jonwraymond/dataops/observe"
	"github.com/jonwraymond/dataops/resilience"
	"github.com/jonwraymond/dataops/secret"
	"github.com/jonwraymond/dataops/warehouse"
)

// app holds the wired service components.
type app struct {
	cfg      *config.Config
	observer observe.Observer
	logger   observe.Logger
	store    cache.Store
	cache    *dataset.Cache
	health   *health.Aggregator
	closers  []func(context.Context) error
}

// newApp loads the configuration and connects the store and the warehouse,
// retrying both until they answer or the attempts run out.
func newApp(ctx context.Context, opts *globalOptions) (*app, error) {
	cfg, err := config.Load(ctx, opts.configPath, secret.DefaultResolver())
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, health: health.NewAggregator()}
	ready := false
	defer func() {
		if !ready {
			_ = a.close(context.Background())
		}
	}()

	a.observer, err = observe.NewObserver(ctx, cfg.ObserveConfig(version))
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.observer.Shutdown)
	a.logger = a.observer.Logger()
	for _, w := range cfg.Warnings {
		a.logger.Warn(ctx, w)
	}
	instrument, err := observe.MiddlewareFromObserver(a.observer)
	if err != nil {
		return nil, err
	}

	if err := a.openStore(); err != nil {
		return nil, err
	}

	wcfg := cfg.WarehouseConfig()
	db, err := warehouse.Open(wcfg)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return db.Close() })
	wh, err := warehouse.NewSQLWarehouse(db)
	if err != nil {
		return nil, err
	}

	retry := resilience.NewRetry(resilience.RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Jitter:       true,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			a.logger.Warn(ctx, "dependency not ready",
				observe.Field{Key: "attempt", Value: attempt},
				observe.Field{Key: "retry_in_ms", Value: delay.Milliseconds()},
				observe.Field{Key: "error", Value: err.Error()},
			)
		},
	})
	if err := retry.Execute(ctx, a.store.Ping); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	if err := retry.Execute(ctx, wh.Ping); err != nil {
		return nil, fmt.Errorf("warehouse %s: %w", wcfg.Driver, err)
	}

	a.cache, err = dataset.New(dataset.Config{
		Store:     a.store,
		Warehouse: wh,
		Policy:    cfg.CachePolicy(),
		Builder: dataset.NewBuilder(dataset.BuilderConfig{
			MaxRows:     cfg.Query.MaxRows,
			Placeholder: wcfg.Placeholder(),
		}),
		PreviewRows:          cfg.Cache.PreviewRows,
		LockWait:             cfg.Cache.LockWait,
		QueryTimeout:         cfg.Query.Timeout,
		MaxConcurrentQueries: cfg.Query.MaxConcurrent,
		Instrument:           instrument,
	})
	if err != nil {
		return nil, err
	}

	a.health.Register(
		health.NewPingChecker("store", a.store, health.PingConfig{}),
		health.NewPingChecker("warehouse", wh, health.PingConfig{SlowThreshold: 5 * time.Second}),
	)
	if cb := a.cache.CircuitBreaker(); cb != nil {
		a.health.Register(health.NewCircuitChecker("warehouse_circuit", cb))
	}

	a.logger.Info(ctx, "datasetd ready",
		observe.Field{Key: "warehouse", Value: wcfg.Driver},
		observe.Field{Key: "store", Value: cfg.Store.Backend},
		observe.Field{Key: "ttl_s", Value: cfg.Cache.TTL.Seconds()},
	)
	ready = true
	return a, nil
}

func (a *app) openStore() error {
	switch a.cfg.Store.Backend {
	case config.StoreMemory:
		a.store = cache.NewMemoryStore()
	default:
		client, err := cache.OpenRedis(a.cfg.Store.RedisURL, a.cfg.Store.RedisPassword)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func(context.Context) error { return client.Close() })
		a.store = cache.NewRedisStore(client, cache.RedisConfig{
			Prefix:    a.cfg.Store.Prefix,
			OpTimeout: a.cfg.Store.OpTimeout,
		})
	}
	return nil
}

// close releases resources in reverse order of acquisition.
func (a *app) close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i](ctx))
	}
	a.closers = nil
	return errors.Join(errs...)
}
