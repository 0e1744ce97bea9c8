// Package event defines the lifecycle events and content chunks a task
// publishes while it runs.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type identifies the kind of execution event.
type Type string

const (
	TypeTaskStart     Type = "task_start"
	TypeAgentSelect   Type = "agent_select"
	TypeToolCall      Type = "tool_call"
	TypeToolResult    Type = "tool_result"
	TypeHandoff       Type = "handoff"
	TypeStepFinal     Type = "step_final"
	TypeTaskComplete  Type = "task_complete"
	TypeError         Type = "error"
	TypeUserInterrupt Type = "user_interrupt"
	TypeStatusChange  Type = "status_change"
)

// IsValid reports whether t is a known event type.
func (t Type) IsValid() bool {
	switch t {
	case TypeTaskStart, TypeAgentSelect, TypeToolCall, TypeToolResult, TypeHandoff,
		TypeStepFinal, TypeTaskComplete, TypeError, TypeUserInterrupt, TypeStatusChange:
		return true
	}
	return false
}

// IsTerminal reports whether an event of this type ends a task's stream.
func (t Type) IsTerminal() bool {
	return t == TypeTaskComplete || t == TypeError
}

// ExecutionEvent is one immutable lifecycle notification. Seq is shared
// with StreamChunk so causal order across both channels is observable.
type ExecutionEvent struct {
	ID        string          `json:"id"`
	TaskID    string          `json:"task_id"`
	Seq       uint64          `json:"seq"`
	Type      Type            `json:"type"`
	AgentName string          `json:"agent_name,omitempty"`
	Round     int             `json:"round"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// StreamChunk is a token-level text fragment tagged with its emitting agent.
type StreamChunk struct {
	TaskID    string    `json:"task_id"`
	Seq       uint64    `json:"seq"`
	AgentName string    `json:"agent_name"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// New builds an event with the given payload marshalled to JSON. Seq is
// assigned when the event is published.
func New(taskID string, typ Type, agent string, round int, payload any) (ExecutionEvent, error) {
	ev := ExecutionEvent{
		ID:        uuid.New().String(),
		TaskID:    taskID,
		Type:      typ,
		AgentName: agent,
		Round:     round,
		CreatedAt: time.Now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return ExecutionEvent{}, fmt.Errorf("marshal %s payload: %w", typ, err)
		}
		ev.Payload = raw
	}
	return ev, nil
}

// Decode unmarshals the payload into dst.
func (e *ExecutionEvent) Decode(dst any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %s has no payload", e.Type)
	}
	return json.Unmarshal(e.Payload, dst)
}
