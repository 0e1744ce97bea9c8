package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/Strob0t/AgentForge/internal/config"
)

func TestNew(t *testing.T) {
	l, closer := New(config.Logging{Level: "debug", Service: "test-svc"})
	defer closer.Close()
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestNewAsync(t *testing.T) {
	l, closer := New(config.Logging{Level: "debug", Service: "test-svc", Async: true})
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
	closer.Close()
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
			if got := parseLevel(tt.input).String(); got != tt.want {
				t.Errorf("parseLevel(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestContextIDs(t *testing.T) {
	ctx := context.Background()
	if RequestID(ctx) != "" || TaskID(ctx) != "" {
		t.Fatal("expected empty IDs on a bare context")
	}

	ctx = WithRequestID(ctx, "req-123")
	ctx = WithTaskID(ctx, "task-9")
	if got := RequestID(ctx); got != "req-123" {
		t.Errorf("RequestID = %q", got)
	}
	if got := TaskID(ctx); got != "task-9" {
		t.Errorf("TaskID = %q", got)
	}
}

func TestLoggerAttachesContextIDs(t *testing.T) {
	for _, async := range []bool{false, true} {
		var buf bytes.Buffer
		l, closer := newWithWriter(config.Logging{Level: "info", Service: "svc", Async: async}, &buf)

		ctx := WithTaskID(WithRequestID(context.Background(), "req-1"), "task-1")
		l.InfoContext(ctx, "round started", "round", 2)
		closer.Close()

		var rec map[string]any
		if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
			t.Fatalf("async=%v: decode %q: %v", async, buf.String(), err)
		}
		if rec["task_id"] != "task-1" || rec["request_id"] != "req-1" || rec["service"] != "svc" {
			t.Errorf("async=%v: unexpected record %v", async, rec)
		}
	}
}
