// Package tool holds value types describing tool call validation outcomes.
package tool

import (
	"fmt"
	"strings"
)

// Issue is one problem found with a tool call's arguments.
type Issue struct {
	Argument string `json:"argument,omitempty"`
	Problem  string `json:"problem"`
}

// ValidationError reports why a call was rejected before dispatch. It is
// returned to the calling agent as data, never raised as a task failure.
type ValidationError struct {
	ToolCallID string  `json:"tool_call_id"`
	ToolName   string  `json:"tool_name"`
	Issues     []Issue `json:"issues"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Issues))
	for _, is := range e.Issues {
		if is.Argument != "" {
			parts = append(parts, fmt.Sprintf("%s: %s", is.Argument, is.Problem))
		} else {
			parts = append(parts, is.Problem)
		}
	}
	return fmt.Sprintf("invalid call to %q: %s", e.ToolName, strings.Join(parts, "; "))
}

// Payload is the structured result appended to history for the agent.
func (e *ValidationError) Payload() map[string]any {
	return map[string]any{
		"error":   "validation_failed",
		"tool":    e.ToolName,
		"issues":  e.Issues,
		"message": e.Error(),
	}
}
