// Package resilience guards calls to the warehouse and the store.
//
// The dataset cache runs every warehouse query through an Executor composed
// of a Bulkhead (bounded concurrent queries), a CircuitBreaker (fail fast
// while the warehouse is down) and a Timeout (query deadline). Retry is used
// only at process start to wait for dependencies; the core never retries a
// query. RateLimiter throttles the HTTP surface.
//
//	exec := resilience.NewExecutor(
//	    resilience.WithBulkhead(resilience.NewBulkhead(resilience.BulkheadConfig{
//	        MaxConcurrent: 10,
//	        MaxWait:       5 * time.Minute,
//	    })),
//	    resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{})),
//	    resilience.WithTimeout(5*time.Minute),
//	)
//
//	err := exec.Execute(ctx, func(ctx context.Context) error {
//	    res, err = wh.Execute(ctx, q)
//	    return err
//	})
package resilience
