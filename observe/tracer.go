package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// DefaultComponent is used when OpMeta.Component is empty.
const DefaultComponent = "dataset"

// OpMeta describes an instrumented operation.
type OpMeta struct {
	Component string // Subsystem (optional, defaults to "dataset")
	Name      string // Operation name, e.g. "load" (required)
	Key       string // Dataset key when known (optional)
}

// OpID returns component.name.
func (m OpMeta) OpID() string {
	c := m.Component
	if c == "" {
		c = DefaultComponent
	}
	return c + "." + m.Name
}

// SpanName returns the span name for the operation.
func (m OpMeta) SpanName() string {
	return m.OpID()
}

// Validate reports whether meta names an operation.
func (m OpMeta) Validate() error {
	if m.Name == "" {
		return ErrMissingOpName
	}
	return nil
}

func (m OpMeta) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("op.id", m.OpID()),
		attribute.String("op.name", m.Name),
	}
	if m.Key != "" {
		attrs = append(attrs, attribute.String("dataset.key", m.Key))
	}
	return attrs
}

// Tracer wraps OpenTelemetry tracing with operation spans.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a span for the operation.
	StartSpan(ctx context.Context, meta OpMeta) (context.Context, trace.Span)

	// EndSpan ends the span, recording any error.
	EndSpan(span trace.Span, err error)
}

type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer wraps an OpenTelemetry tracer.
func NewTracer(t trace.Tracer) Tracer {
	if t == nil {
		return NopTracer()
	}
	return &tracerImpl{tracer: t}
}

func (t *tracerImpl) StartSpan(ctx context.Context, meta OpMeta) (context.Context, trace.Span) {
	attrs := append(meta.attributes(), attribute.Bool("op.error", false))
	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("op.error", true))
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// NopTracer returns a tracer whose spans are never recorded.
func NopTracer() Tracer {
	return &nopTracer{noop: tracenoop.NewTracerProvider().Tracer("noop")}
}

type nopTracer struct {
	noop trace.Tracer
}

func (t *nopTracer) StartSpan(ctx context.Context, meta OpMeta) (context.Context, trace.Span) {
	return t.noop.Start(ctx, meta.SpanName())
}

func (t *nopTracer) EndSpan(span trace.Span, _ error) {
	span.End()
}
