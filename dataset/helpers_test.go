package dataset

import (
	"context"
	"database/sql"
	"sync/atomic"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jonwraymond/dataops/cache"
	"github.com/jonwraymond/dataops/warehouse"
)

var ordersRequest = Request{
	Sources:    []string{"orders"},
	Dimensions: []string{"region"},
	Metrics:    []string{"revenue", "units"},
}

func openOrdersDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	stmts := []string{
		`CREATE TABLE orders (region TEXT, channel TEXT, revenue REAL, units INTEGER)`,
		`INSERT INTO orders VALUES
			('EU', 'web', 10.5, 3),
			('US', 'web', 20.0, 5),
			('EU', 'store', 7.25, 1)`,
		`CREATE TABLE returns (region TEXT, channel TEXT, revenue REAL, units INTEGER)`,
		`INSERT INTO returns VALUES ('US', 'web', -5.0, -1)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			t.Fatalf("exec %q: %v", s, err)
		}
	}
	return db
}

// countingWarehouse counts executions and can hold them until gate is closed.
type countingWarehouse struct {
	warehouse.Warehouse
	calls   atomic.Int32
	gate    chan struct{}
	started chan struct{}
}

func newCountingWarehouse(t *testing.T) *countingWarehouse {
	t.Helper()
	w, err := warehouse.NewSQLWarehouse(openOrdersDB(t))
	if err != nil {
		t.Fatalf("NewSQLWarehouse: %v", err)
	}
	return &countingWarehouse{Warehouse: w, started: make(chan struct{}, 16)}
}

func (w *countingWarehouse) Execute(ctx context.Context, q warehouse.Query) (*warehouse.Result, error) {
	w.calls.Add(1)
	w.started <- struct{}{}
	if w.gate != nil {
		select {
		case <-w.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return w.Warehouse.Execute(ctx, q)
}

// hangingWarehouse never answers before ctx is done.
type hangingWarehouse struct{}

func (hangingWarehouse) Execute(ctx context.Context, _ warehouse.Query) (*warehouse.Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (hangingWarehouse) Ping(context.Context) error { return nil }

// downStore fails every operation.
type downStore struct{}

func (downStore) Get(context.Context, string) ([]byte, bool, error) {
	return nil, false, cache.ErrUnavailable
}

func (downStore) SetWithExpiry(context.Context, string, []byte, time.Duration) error {
	return cache.ErrUnavailable
}

func (downStore) Expire(context.Context, string, time.Duration) (bool, error) {
	return false, cache.ErrUnavailable
}

func (downStore) SetIfAbsent(context.Context, string, []byte, time.Duration) (bool, error) {
	return false, cache.ErrUnavailable
}

func (downStore) DeleteIfValue(context.Context, string, []byte) (bool, error) {
	return false, cache.ErrUnavailable
}

func (downStore) Delete(context.Context, string) error { return cache.ErrUnavailable }

func (downStore) Ping(context.Context) error { return cache.ErrUnavailable }

var _ cache.Store = downStore{}

func newTestCache(t *testing.T, cfg Config) *Cache {
	t.Helper()
	if cfg.Store == nil {
		cfg.Store = cache.NewMemoryStore()
	}
	if cfg.Warehouse == nil {
		cfg.Warehouse = newCountingWarehouse(t)
	}
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

// waitFor polls cond until it holds or the test deadline nears.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not reached")
		}
		time.Sleep(time.Millisecond)
	}
}
