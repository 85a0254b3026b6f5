package dataset

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/jonwraymond/dataops/cache"
	"github.com/jonwraymond/dataops/observe"
)

// lockPrefix namespaces in-progress markers: lock:<dataset key>.
const lockPrefix = "lock:"

// loadLock is an in-progress marker held in the store while one process
// executes the query for a key. The holder refreshes it while the query
// runs; it expires on its own after the lock TTL if the holder dies.
type loadLock struct {
	store cache.Store
	key   string
	token []byte
}

// tryLock writes the marker if no live marker exists.
func tryLock(ctx context.Context, store cache.Store, key string, policy cache.Policy) (*loadLock, bool, error) {
	l := &loadLock{
		store: store,
		key:   lockPrefix + key,
		token: []byte(uuid.NewString()),
	}
	ok, err := store.SetIfAbsent(ctx, l.key, l.token, policy.LockTTL)
	if err != nil || !ok {
		return nil, false, err
	}
	return l, true, nil
}

// release removes the marker if it is still ours. A marker that expired
// and was taken over by another process is left alone.
func (l *loadLock) release(ctx context.Context) error {
	_, err := l.store.DeleteIfValue(context.WithoutCancel(ctx), l.key, l.token)
	return err
}

// keepAlive resets the marker TTL every third of ttl until stop is called,
// so a query that runs longer than ttl keeps the lock.
func (l *loadLock) keepAlive(ctx context.Context, clock clockwork.Clock, ttl time.Duration, logger observe.Logger) (stop func()) {
	ticker := clock.NewTicker(max(ttl/3, time.Millisecond))
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				ok, err := l.store.Expire(ctx, l.key, ttl)
				switch {
				case err != nil:
					logger.Warn(ctx, "failed to refresh dataset lock", observe.Field{Key: "error", Value: err.Error()})
				case !ok:
					logger.Warn(ctx, "dataset lock expired while the query was running")
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}
