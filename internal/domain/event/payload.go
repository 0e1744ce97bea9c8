package event

import "github.com/Strob0t/AgentForge/internal/domain/step"

// TaskStartPayload accompanies task_start.
type TaskStartPayload struct {
	Team         string `json:"team"`
	InitialAgent string `json:"initial_agent"`
	MaxRounds    int    `json:"max_rounds"`
	StepMode     bool   `json:"step_mode"`
	ResumedFrom  string `json:"resumed_from,omitempty"`
}

// AgentSelectPayload accompanies agent_select.
type AgentSelectPayload struct {
	Agent string `json:"agent"`
}

// ToolCallPayload accompanies tool_call.
type ToolCallPayload struct {
	Call step.ToolCall `json:"call"`
}

// ToolResultPayload accompanies tool_result. Validation is set when the
// call was rejected before dispatch.
type ToolResultPayload struct {
	Result     step.ToolResult `json:"result"`
	ToolName   string          `json:"tool_name"`
	Validation bool            `json:"validation,omitempty"`
	DurationMs int64           `json:"duration_ms"`
}

// HandoffPayload accompanies handoff.
type HandoffPayload struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason"`
}

// StepFinalPayload accompanies step_final, emitted once per appended step.
type StepFinalPayload struct {
	Step step.Step `json:"step"`
}

// TaskCompletePayload accompanies task_complete.
type TaskCompletePayload struct {
	Reason string `json:"reason"`
	Rounds int    `json:"rounds"`
}

// ErrorPayload accompanies the terminal error event.
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// UserInterruptPayload accompanies user_interrupt.
type UserInterruptPayload struct {
	StepID  string `json:"step_id"`
	Message string `json:"message"`
}

// StatusChangePayload accompanies status_change.
type StatusChangePayload struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Reason string `json:"reason,omitempty"`
}
