// Package dataset caches materialized warehouse query results.
//
// A Request names sources, dimensions, metrics and equality filters. The
// Deriver maps it to a stable key, the Builder turns it into parameter-bound
// SQL, and Cache.Load either returns the stored entry or runs the query and
// stores the result with a fixed TTL. The Accessor reads stored entries back
// (full table or metadata only) and the Extender resets an entry's TTL.
//
// Every failure is reported as an *Error whose Kind is one of
// ErrInvalidRequest, ErrQueryExecutionFailed, ErrQueryTimeout,
// ErrStoreUnavailable or ErrDatasetNotFound.
package dataset
