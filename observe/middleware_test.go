package observe

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
)

func TestMiddleware_SuccessPath(t *testing.T) {
	tracer, spans := newRecordingTracer()
	reader := sdkmetric.NewManualReader()
	metrics, _ := NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test"))
	var logs bytes.Buffer
	mw := NewMiddleware(tracer, metrics, NewLoggerWithWriter("debug", &logs))

	called := false
	err := mw.Run(context.Background(), OpMeta{Name: "extend", Key: "dataset:abc"}, func(ctx context.Context) error {
		called = true
		return nil
	})
	if err != nil || !called {
		t.Fatalf("Run = %v, called=%v", err, called)
	}

	if got := spans.Ended(); len(got) != 1 || got[0].Name() != "dataset.extend" {
		t.Errorf("unexpected spans: %v", got)
	}
	total := findMetric(collect(t, reader), "dataset.op.total")
	if got := sumValue(t, total, attribute.String("op.id", "dataset.extend")); got != 1 {
		t.Errorf("dataset.op.total{op.id=dataset.extend} = %d, want 1", got)
	}
	if !strings.Contains(logs.String(), "dataset operation completed") {
		t.Errorf("expected completion log, got %s", logs.String())
	}
}

func TestMiddleware_ErrorPath(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	metrics, _ := NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)).Meter("test"))
	var logs bytes.Buffer
	mw := NewMiddleware(nil, metrics, NewLoggerWithWriter("info", &logs))

	wantErr := errors.New("store unavailable")
	err := mw.Run(context.Background(), OpMeta{Name: "load"}, func(context.Context) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Run = %v, want the wrapped error unchanged", err)
	}

	if got := sumValue(t, findMetric(collect(t, reader), "dataset.op.errors")); got != 1 {
		t.Errorf("dataset.op.errors = %d, want 1", got)
	}
	if !strings.Contains(logs.String(), `"error":"store unavailable"`) {
		t.Errorf("expected error log, got %s", logs.String())
	}
}

func TestMiddleware_PassesSpanContext(t *testing.T) {
	tracer, _ := newRecordingTracer()
	mw := NewMiddleware(tracer, nil, nil)

	_ = mw.Run(context.Background(), OpMeta{Name: "load"}, func(ctx context.Context) error {
		if !traceSpanValid(ctx) {
			t.Error("wrapped function should run inside the operation span")
		}
		return nil
	})
}

func TestMiddleware_Nop(t *testing.T) {
	mw := NopMiddleware()
	if mw.Metrics() == nil || mw.Logger() == nil {
		t.Fatal("NopMiddleware should carry no-op components")
	}
	if err := mw.Run(context.Background(), OpMeta{Name: "noop"}, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("Run = %v", err)
	}
}

func traceSpanValid(ctx context.Context) bool {
	return trace.SpanContextFromContext(ctx).IsValid()
}
