// Package otel wires OpenTelemetry metrics and traces for AgentForge.
package otel

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "agentforge"

// Metrics holds all AgentForge metric instruments.
type Metrics struct {
	TasksStarted       metric.Int64Counter
	TasksCompleted     metric.Int64Counter
	TasksFailed        metric.Int64Counter
	Rounds             metric.Int64Counter
	Handoffs           metric.Int64Counter
	ToolCalls          metric.Int64Counter
	ValidationFailures metric.Int64Counter
	TaskDuration       metric.Float64Histogram
	ToolDuration       metric.Float64Histogram
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.TasksStarted, "agentforge.tasks.started", "Number of tasks started"},
		{&m.TasksCompleted, "agentforge.tasks.completed", "Number of tasks completed"},
		{&m.TasksFailed, "agentforge.tasks.failed", "Number of tasks failed, by error kind"},
		{&m.Rounds, "agentforge.rounds", "Number of agent invocations"},
		{&m.Handoffs, "agentforge.handoffs", "Number of agent handoffs"},
		{&m.ToolCalls, "agentforge.toolcalls", "Number of dispatched tool calls"},
		{&m.ValidationFailures, "agentforge.toolcalls.rejected", "Number of tool calls rejected by validation"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
	}

	m.TaskDuration, err = meter.Float64Histogram("agentforge.task.duration_seconds",
		metric.WithDescription("Task duration in seconds"), metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	m.ToolDuration, err = meter.Float64Histogram("agentforge.toolcall.duration_seconds",
		metric.WithDescription("Tool call duration in seconds"), metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return m, nil
}
