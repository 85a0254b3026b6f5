package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records dataset service metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must return quickly.
// - Errors: implementations must not panic.
type Metrics interface {
	// RecordOperation records one operation with its duration and outcome.
	RecordOperation(ctx context.Context, meta OpMeta, duration time.Duration, err error)

	// RecordLookup records a store lookup as a hit or a miss.
	RecordLookup(ctx context.Context, hit bool)

	// RecordQuery records one warehouse execution.
	RecordQuery(ctx context.Context, rows int, duration time.Duration, err error)
}

type metricsImpl struct {
	opTotal       metric.Int64Counter
	opErrors      metric.Int64Counter
	opDuration    metric.Float64Histogram
	lookups       metric.Int64Counter
	queryTotal    metric.Int64Counter
	queryErrors   metric.Int64Counter
	queryDuration metric.Float64Histogram
	queryRows     metric.Int64Histogram
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	m := &metricsImpl{}
	var err error

	if m.opTotal, err = meter.Int64Counter(
		"dataset.op.total",
		metric.WithDescription("Total number of dataset operations"),
		metric.WithUnit("{call}"),
	); err != nil {
		return nil, err
	}
	if m.opErrors, err = meter.Int64Counter(
		"dataset.op.errors",
		metric.WithDescription("Total number of failed dataset operations"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, err
	}
	if m.opDuration, err = meter.Float64Histogram(
		"dataset.op.duration_ms",
		metric.WithDescription("Dataset operation duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.lookups, err = meter.Int64Counter(
		"dataset.cache.lookups",
		metric.WithDescription("Dataset store lookups by result"),
		metric.WithUnit("{lookup}"),
	); err != nil {
		return nil, err
	}
	if m.queryTotal, err = meter.Int64Counter(
		"dataset.query.total",
		metric.WithDescription("Total number of warehouse queries"),
		metric.WithUnit("{query}"),
	); err != nil {
		return nil, err
	}
	if m.queryErrors, err = meter.Int64Counter(
		"dataset.query.errors",
		metric.WithDescription("Total number of failed warehouse queries"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, err
	}
	if m.queryDuration, err = meter.Float64Histogram(
		"dataset.query.duration_ms",
		metric.WithDescription("Warehouse query duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}
	if m.queryRows, err = meter.Int64Histogram(
		"dataset.query.rows",
		metric.WithDescription("Rows returned per warehouse query"),
		metric.WithUnit("{row}"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *metricsImpl) RecordOperation(ctx context.Context, meta OpMeta, duration time.Duration, err error) {
	opt := metric.WithAttributes(attribute.String("op.id", meta.OpID()))

	m.opTotal.Add(ctx, 1, opt)
	if err != nil {
		m.opErrors.Add(ctx, 1, opt)
	}
	m.opDuration.Record(ctx, float64(duration.Milliseconds()), opt)
}

func (m *metricsImpl) RecordLookup(ctx context.Context, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}

func (m *metricsImpl) RecordQuery(ctx context.Context, rows int, duration time.Duration, err error) {
	m.queryTotal.Add(ctx, 1)
	if err != nil {
		m.queryErrors.Add(ctx, 1)
		return
	}
	m.queryDuration.Record(ctx, float64(duration.Milliseconds()))
	m.queryRows.Record(ctx, int64(rows))
}

// NopMetrics returns a Metrics that records nothing.
func NopMetrics() Metrics {
	return nopMetrics{}
}

type nopMetrics struct{}

func (nopMetrics) RecordOperation(context.Context, OpMeta, time.Duration, error) {}
func (nopMetrics) RecordLookup(context.Context, bool)                            {}
func (nopMetrics) RecordQuery(context.Context, int, time.Duration, error)        {}
