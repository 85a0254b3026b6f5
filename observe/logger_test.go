package observe

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("failed to parse log line %q: %v", line, err)
		}
		out = append(out, entry)
	}
	return out
}

func TestLogger_IncludesOpFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf).WithOp(OpMeta{Name: "load", Key: "dataset:abc"})

	logger.Info(context.Background(), "dataset cached", Field{Key: "rows", Value: 3})

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 log line, got %d", len(entries))
	}
	e := entries[0]
	if e["op"] != "dataset.load" {
		t.Errorf("op = %v, want dataset.load", e["op"])
	}
	if e["dataset_key"] != "dataset:abc" {
		t.Errorf("dataset_key = %v, want dataset:abc", e["dataset_key"])
	}
	if e["msg"] != "dataset cached" || e["level"] != "INFO" {
		t.Errorf("unexpected msg/level: %v", e)
	}
	if e["rows"] != float64(3) {
		t.Errorf("rows = %v, want 3", e["rows"])
	}
}

func TestLogger_RedactsSensitiveFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("debug", &buf)

	logger.Info(context.Background(), "connect",
		Field{Key: "password", Value: "hunter2"},
		Field{Key: "DSN", Value: "postgres://u:p@h/db"},
		Field{Key: "filters", Value: map[string]string{"region": "EU"}},
		Field{Key: "driver", Value: "postgres"},
	)

	out := buf.String()
	for _, secret := range []string{"hunter2", "postgres://u:p@h/db", "EU"} {
		if strings.Contains(out, secret) {
			t.Errorf("log output leaked %q: %s", secret, out)
		}
	}
	if !strings.Contains(out, `"driver":"postgres"`) {
		t.Errorf("non-sensitive field missing: %s", out)
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("warn", &buf)
	ctx := context.Background()

	logger.Debug(ctx, "debug")
	logger.Info(ctx, "info")
	logger.Warn(ctx, "warn")
	logger.Error(ctx, "error")

	entries := decodeLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries at warn level, got %d: %s", len(entries), buf.String())
	}
	if entries[0]["msg"] != "warn" || entries[1]["msg"] != "error" {
		t.Errorf("unexpected entries: %v", entries)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLogLevel(tt.in); got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewSlogLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewSlogLogger(slog.New(slog.NewJSONHandler(&buf, nil)))
	logger.Info(context.Background(), "hello")
	if !strings.Contains(buf.String(), `"msg":"hello"`) {
		t.Errorf("unexpected output: %s", buf.String())
	}

	if NewSlogLogger(nil) == nil {
		t.Error("NewSlogLogger(nil) should return a no-op logger")
	}
}

func TestNopLogger(t *testing.T) {
	l := NopLogger()
	l.Info(context.Background(), "ignored", Field{Key: "k", Value: 1})
	if l.WithOp(OpMeta{Name: "load"}) == nil {
		t.Fatal("WithOp should return non-nil logger")
	}
}
