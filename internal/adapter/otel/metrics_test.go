package otel

import (
	"context"
	"testing"

	"github.com/Strob0t/AgentForge/internal/config"
)

func TestNewMetricsOnNoopProvider(t *testing.T) {
	m, err := NewMetrics()
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	if m.TasksStarted == nil || m.ToolDuration == nil || m.ValidationFailures == nil {
		t.Fatal("expected all instruments to be created")
	}
	m.Rounds.Add(context.Background(), 1)
}

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.OTEL{ServiceName: "test"})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSpansEnd(t *testing.T) {
	ctx, span := StartTaskSpan(context.Background(), "t1", "docs")
	_, round := StartRoundSpan(ctx, 1, "writer")
	_, call := StartToolCallSpan(ctx, "c1", "search")
	call.End()
	round.End()
	span.End()
}
