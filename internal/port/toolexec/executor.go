// Package toolexec defines the port for external tool execution surfaces
// (shell sandbox, MCP servers). Isolation is the executor's responsibility.
package toolexec

import "context"

// Output is the raw outcome of one execution.
type Output struct {
	Output   any    `json:"output"`
	ExitCode *int   `json:"exit_code,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
}

// Executor runs a named tool with arguments. A returned error means the
// tool could not be run at all.
type Executor interface {
	Execute(ctx context.Context, tool string, args map[string]any) (Output, error)
}
