// Package agent defines the port through which the orchestrator invokes
// agents. Agents only produce steps; they never execute tools.
package agent

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Strob0t/AgentForge/internal/domain/plan"
	"github.com/Strob0t/AgentForge/internal/domain/step"
)

// Request is everything an agent sees for one invocation.
type Request struct {
	TaskID  string
	Round   int
	History []step.Step
	Tools   []mcp.Tool
	Plan    []plan.Task
}

// Sink receives token-level output while an agent is generating.
type Sink interface {
	Chunk(text string)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(text string)

// Chunk implements Sink.
func (f SinkFunc) Chunk(text string) { f(text) }

// Agent is one team member.
type Agent interface {
	// Name must match the team roster entry.
	Name() string

	// Invoke produces the agent's next step. Implementations must return
	// promptly with ctx.Err() when ctx is cancelled.
	Invoke(ctx context.Context, req Request, sink Sink) (step.Step, error)

	// InvokeWithToolResults continues after the agent's own tool calls.
	// results are also the last entries of req.History.
	InvokeWithToolResults(ctx context.Context, req Request, results []step.ToolResult, sink Sink) (step.Step, error)
}
