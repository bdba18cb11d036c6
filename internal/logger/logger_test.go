package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/aiarch/aia/internal/config"
)

func TestNew(t *testing.T) {
	cfg := config.Logging{Level: "debug", Service: "test-svc"}
	l, closer := New(cfg)
	defer closer.Close()
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestNewAsyncFlushesOnClose(t *testing.T) {
	var buf bytes.Buffer
	l, closer := NewWithWriter(config.Logging{Level: "info", Service: "test-svc", Async: true}, &buf)
	l.Info("queued")
	closer.Close()
	closer.Close()

	if !bytes.Contains(buf.Bytes(), []byte(`"msg":"queued"`)) {
		t.Fatalf("record not flushed: %s", buf.String())
	}
}

func TestServiceAndRequestID(t *testing.T) {
	var buf bytes.Buffer
	l, closer := NewWithWriter(config.Logging{Level: "info", Service: "aia-test"}, &buf)
	defer closer.Close()

	ctx := WithAgentID(WithRequestID(context.Background(), "req-42"), "a7")
	l.InfoContext(ctx, "task assigned", "task_id", "t1")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v: %s", err, buf.String())
	}
	if rec["service"] != "aia-test" {
		t.Errorf("service = %v", rec["service"])
	}
	if rec["request_id"] != "req-42" {
		t.Errorf("request_id = %v", rec["request_id"])
	}
	if rec["agent_id"] != "a7" {
		t.Errorf("agent_id = %v", rec["agent_id"])
	}
	if rec["task_id"] != "t1" {
		t.Errorf("task_id = %v", rec["task_id"])
	}
}

func TestLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l, _ := NewWithWriter(config.Logging{Level: "warn", Service: "s"}, &buf)
	l.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info logged at warn level: %s", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"debug", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"warning", "WARN"},
		{"ERROR", "ERROR"},
		{"unknown", "INFO"},
		{"", "INFO"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseLevel(tt.input).String()
			if got != tt.want {
				t.Errorf("parseLevel(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestRequestIDContext(t *testing.T) {
	ctx := context.Background()
	if got := RequestID(ctx); got != "" {
		t.Errorf("expected empty request ID, got %q", got)
	}
	ctx = WithRequestID(ctx, "req-123")
	if got := RequestID(ctx); got != "req-123" {
		t.Errorf("expected req-123, got %q", got)
	}
	if got := AgentID(ctx); got != "" {
		t.Errorf("expected empty agent ID, got %q", got)
	}
	ctx = WithAgentID(ctx, "a1")
	if got := AgentID(ctx); got != "a1" || RequestID(ctx) != "req-123" {
		t.Errorf("expected a1 alongside req-123, got %q / %q", got, RequestID(ctx))
	}
}
