// Package health reports whether the dataset service can reach its
// collaborators.
//
// A Checker reports a Status: Healthy, Degraded or Unhealthy. PingChecker
// adapts anything with a Ping method (the cache store, the warehouse) and
// marks slow answers as degraded; CircuitChecker reports the state of a
// resilience.CircuitBreaker guarding the warehouse.
//
// An Aggregator runs its checkers concurrently under one deadline, and
// Handler exposes the results:
//
//	agg := health.NewAggregator()
//	agg.Register(health.NewPingChecker("store", store, health.PingConfig{}))
//	agg.Register(health.NewPingChecker("warehouse", wh, health.PingConfig{}))
//
//	r.Mount("/", health.Handler(agg))
//
// The handler serves /healthz (liveness), /readyz (plain text readiness),
// /health (JSON detail) and /health/{name} (a single check).
package health
