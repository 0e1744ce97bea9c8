// Package step defines the append-only conversation history of a task.
package step

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Synthetic authors that are never team members.
const (
	UserAgent = "user" // prompts and interrupts
	ToolAgent = "tool" // results of an agent's tool calls
)

// PartKind tags the variant held by a Part.
type PartKind string

const (
	KindText       PartKind = "text"
	KindToolCall   PartKind = "tool_call"
	KindToolResult PartKind = "tool_result"
)

// ToolCall is a request by an agent to run a tool. ID is unique per
// invocation request.
type ToolCall struct {
	ID       string         `json:"id"`
	ToolName string         `json:"tool_name"`
	Args     map[string]any `json:"args"`
}

// ToolResult correlates to exactly one ToolCall by ToolCallID.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Result     any    `json:"result"`
	IsError    bool   `json:"is_error"`
}

// Part is one element of a Step. Exactly one of Text, ToolCall, ToolResult
// is meaningful, selected by Kind.
type Part struct {
	Kind       PartKind    `json:"kind"`
	Text       string      `json:"text,omitempty"`
	ToolCall   *ToolCall   `json:"tool_call,omitempty"`
	ToolResult *ToolResult `json:"tool_result,omitempty"`
}

// TextPart returns a text part.
func TextPart(text string) Part { return Part{Kind: KindText, Text: text} }

// CallPart returns a tool_call part.
func CallPart(c ToolCall) Part { return Part{Kind: KindToolCall, ToolCall: &c} }

// ResultPart returns a tool_result part.
func ResultPart(r ToolResult) Part { return Part{Kind: KindToolResult, ToolResult: &r} }

// Step is one atomic contribution to history from one agent or the user.
// Steps are immutable once appended.
type Step struct {
	ID        string            `json:"id"`
	ParentID  string            `json:"parent_id,omitempty"`
	AgentName string            `json:"agent_name"`
	Parts     []Part            `json:"parts"`
	CreatedAt time.Time         `json:"created_at"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// New creates a step with a fresh ID and the current time.
func New(agent string, parts ...Part) Step {
	return Step{
		ID:        uuid.New().String(),
		AgentName: agent,
		Parts:     parts,
		CreatedAt: time.Now().UTC(),
	}
}

// Text concatenates all text parts, newline separated.
func (s *Step) Text() string {
	var b strings.Builder
	for _, p := range s.Parts {
		if p.Kind != KindText || p.Text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

// ToolCalls returns the step's tool calls in declaration order.
func (s *Step) ToolCalls() []ToolCall {
	var out []ToolCall
	for _, p := range s.Parts {
		if p.Kind == KindToolCall && p.ToolCall != nil {
			out = append(out, *p.ToolCall)
		}
	}
	return out
}

// ToolResults returns the step's tool results in declaration order.
func (s *Step) ToolResults() []ToolResult {
	var out []ToolResult
	for _, p := range s.Parts {
		if p.Kind == KindToolResult && p.ToolResult != nil {
			out = append(out, *p.ToolResult)
		}
	}
	return out
}

// Validate checks structural well-formedness of a single step.
func (s *Step) Validate() error {
	if s.ID == "" {
		return errors.New("id is required")
	}
	if s.AgentName == "" {
		return errors.New("agent_name is required")
	}
	seen := make(map[string]struct{})
	for i, p := range s.Parts {
		switch p.Kind {
		case KindText:
		case KindToolCall:
			if p.ToolCall == nil || p.ToolCall.ID == "" || p.ToolCall.ToolName == "" {
				return fmt.Errorf("part %d: tool_call requires id and tool_name", i)
			}
			if _, dup := seen[p.ToolCall.ID]; dup {
				return fmt.Errorf("part %d: duplicate tool_call id %q", i, p.ToolCall.ID)
			}
			seen[p.ToolCall.ID] = struct{}{}
		case KindToolResult:
			if p.ToolResult == nil || p.ToolResult.ToolCallID == "" {
				return fmt.Errorf("part %d: tool_result requires tool_call_id", i)
			}
		default:
			return fmt.Errorf("part %d: unknown kind %q", i, p.Kind)
		}
	}
	return nil
}

// ErrOrphanResult is returned by CheckCorrelation.
var ErrOrphanResult = errors.New("tool_result without preceding tool_call")

// CheckCorrelation verifies that every tool_result in history refers to a
// tool_call in the same or an earlier step, and that no call is answered twice.
func CheckCorrelation(history []Step) error {
	calls := make(map[string]bool) // id -> answered
	for i := range history {
		for _, p := range history[i].Parts {
			switch p.Kind {
			case KindToolCall:
				if p.ToolCall != nil {
					if _, ok := calls[p.ToolCall.ID]; !ok {
						calls[p.ToolCall.ID] = false
					}
				}
			case KindToolResult:
				if p.ToolResult == nil {
					continue
				}
				answered, ok := calls[p.ToolResult.ToolCallID]
				if !ok {
					return fmt.Errorf("step %s: %w: %q", history[i].ID, ErrOrphanResult, p.ToolResult.ToolCallID)
				}
				if answered {
					return fmt.Errorf("step %s: tool_call %q answered twice", history[i].ID, p.ToolResult.ToolCallID)
				}
				calls[p.ToolResult.ToolCallID] = true
			}
		}
	}
	return nil
}

// LastByAgent returns the index of the most recent step whose author is not
// a synthetic identity, or -1.
func LastByAgent(history []Step) int {
	for i := len(history) - 1; i >= 0; i-- {
		if a := history[i].AgentName; a != UserAgent && a != ToolAgent {
			return i
		}
	}
	return -1
}
