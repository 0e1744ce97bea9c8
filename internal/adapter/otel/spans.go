package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "agentforge"

// StartTaskSpan starts the root span of a task.
func StartTaskSpan(ctx context.Context, taskID, team string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "task",
		trace.WithAttributes(
			attribute.String("task.id", taskID),
			attribute.String("team.name", team),
		),
	)
}

// StartRoundSpan starts a span for one agent invocation round.
func StartRoundSpan(ctx context.Context, round int, agent string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "round",
		trace.WithAttributes(
			attribute.Int("round", round),
			attribute.String("agent.name", agent),
		),
	)
}

// StartToolCallSpan starts a span for a tool call within a round.
func StartToolCallSpan(ctx context.Context, callID, tool string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "toolcall",
		trace.WithAttributes(
			attribute.String("toolcall.id", callID),
			attribute.String("toolcall.tool", tool),
		),
	)
}
