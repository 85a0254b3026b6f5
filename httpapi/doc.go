// Package httpapi exposes the dataset cache over HTTP.
//
// Routes:
//
//	POST /api/datasets/load          load (or reuse) a dataset
//	GET  /api/datasets/{key}         metadata, without the payload
//	GET  /api/datasets/{key}/data    full table
//	POST /api/datasets/{key}/extend  refresh the dataset lifetime
//
// plus the health probes and, when configured, /metrics.
package httpapi
