package observe

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func newRecordingTracer() (Tracer, *tracetest.SpanRecorder) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	return NewTracer(tp.Tracer("test")), rec
}

func spanAttr(span sdktrace.ReadOnlySpan, key attribute.Key) (attribute.Value, bool) {
	for _, kv := range span.Attributes() {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestOpMeta(t *testing.T) {
	tests := []struct {
		meta OpMeta
		want string
	}{
		{OpMeta{Name: "load"}, "dataset.load"},
		{OpMeta{Component: "httpapi", Name: "extend"}, "httpapi.extend"},
	}
	for _, tt := range tests {
		if got := tt.meta.SpanName(); got != tt.want {
			t.Errorf("SpanName() = %q, want %q", got, tt.want)
		}
	}

	if err := (OpMeta{}).Validate(); !errors.Is(err, ErrMissingOpName) {
		t.Errorf("Validate(empty) = %v, want ErrMissingOpName", err)
	}
}

func TestTracer_SpanAttributes(t *testing.T) {
	tracer, rec := newRecordingTracer()

	_, span := tracer.StartSpan(context.Background(), OpMeta{Name: "load", Key: "dataset:abc"})
	tracer.EndSpan(span, nil)

	spans := rec.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	s := spans[0]
	if s.Name() != "dataset.load" {
		t.Errorf("span name = %q, want dataset.load", s.Name())
	}
	if v, ok := spanAttr(s, "dataset.key"); !ok || v.AsString() != "dataset:abc" {
		t.Errorf("dataset.key = %v, want dataset:abc", v.AsString())
	}
	if s.Status().Code != codes.Ok {
		t.Errorf("status = %v, want Ok", s.Status().Code)
	}
}

func TestTracer_RecordsError(t *testing.T) {
	tracer, rec := newRecordingTracer()

	_, span := tracer.StartSpan(context.Background(), OpMeta{Name: "load"})
	tracer.EndSpan(span, errors.New("warehouse down"))

	s := rec.Ended()[0]
	if s.Status().Code != codes.Error || s.Status().Description != "warehouse down" {
		t.Errorf("status = %+v, want error with message", s.Status())
	}
	if v, _ := spanAttr(s, "op.error"); !v.AsBool() {
		t.Error("op.error should be true")
	}
	if len(s.Events()) == 0 {
		t.Error("expected the error to be recorded as an event")
	}
}

func TestTracer_Nop(t *testing.T) {
	tracer := NopTracer()
	_, span := tracer.StartSpan(context.Background(), OpMeta{Name: "noop"})
	tracer.EndSpan(span, nil)

	if _, ok := NewTracer(nil).(*nopTracer); !ok {
		t.Error("NewTracer(nil) should fall back to the no-op tracer")
	}
}
