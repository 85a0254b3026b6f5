// Package cache provides the key-value store that holds serialized datasets.
//
// It defines the Store contract (get, set-with-expiry, expire, plus the
// set-if-absent and compare-and-delete primitives used for in-progress
// markers), an in-memory implementation driven by a clockwork clock, a
// Redis implementation using native TTLs, and the TTL Policy.
package cache
