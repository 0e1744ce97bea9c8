package litellm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Strob0t/AgentForge/internal/domain/step"
	"github.com/Strob0t/AgentForge/internal/domain/team"
	"github.com/Strob0t/AgentForge/internal/port/agent"
)

// ChatAgent is a team member backed by a chat model with function calling.
type ChatAgent struct {
	client *Client
	member team.Member
	model  string
}

// NewChatAgent creates an agent for member. The member's model overrides
// defaultModel.
func NewChatAgent(client *Client, member team.Member, defaultModel string) *ChatAgent {
	model := member.Model
	if model == "" {
		model = defaultModel
	}
	return &ChatAgent{client: client, member: member, model: model}
}

// Name implements agent.Agent.
func (a *ChatAgent) Name() string { return a.member.Name }

// Invoke implements agent.Agent.
func (a *ChatAgent) Invoke(ctx context.Context, req agent.Request, sink agent.Sink) (step.Step, error) {
	return a.complete(ctx, req, sink)
}

// InvokeWithToolResults implements agent.Agent. The results are already the
// tail of req.History, so they reach the model as tool messages.
func (a *ChatAgent) InvokeWithToolResults(ctx context.Context, req agent.Request, _ []step.ToolResult, sink agent.Sink) (step.Step, error) {
	return a.complete(ctx, req, sink)
}

func (a *ChatAgent) complete(ctx context.Context, req agent.Request, sink agent.Sink) (step.Step, error) {
	var onDelta func(string)
	if sink != nil {
		onDelta = sink.Chunk
	}
	msg, err := a.client.ChatCompletionStream(ctx, ChatRequest{
		Model:    a.model,
		Messages: a.messages(req.History),
		Tools:    toolSpecs(req.Tools),
	}, onDelta)
	if err != nil {
		return step.Step{}, err
	}

	var parts []step.Part
	if msg.Content != "" {
		parts = append(parts, step.TextPart(msg.Content))
	}
	for _, tc := range msg.ToolCalls {
		id := tc.ID
		if id == "" {
			id = "call_" + uuid.NewString()
		}
		parts = append(parts, step.CallPart(step.ToolCall{
			ID:       id,
			ToolName: tc.Function.Name,
			Args:     decodeArgs(tc.Function.Arguments),
		}))
	}
	return step.New(a.member.Name, parts...), nil
}

// messages renders history from this agent's point of view: its own steps
// are assistant turns, results of its own calls are tool messages, and
// everyone else speaks as a named user.
func (a *ChatAgent) messages(history []step.Step) []ChatMessage {
	var out []ChatMessage
	if a.member.SystemPrompt != "" {
		out = append(out, ChatMessage{Role: "system", Content: a.member.SystemPrompt})
	}

	owner := make(map[string]string, len(history)) // step ID -> agent
	for _, s := range history {
		owner[s.ID] = s.AgentName
	}

	for i := range history {
		s := &history[i]
		switch {
		case s.AgentName == step.UserAgent:
			out = append(out, ChatMessage{Role: "user", Content: s.Text()})
		case s.AgentName == step.ToolAgent:
			if owner[s.ParentID] != a.member.Name {
				continue
			}
			for _, r := range s.ToolResults() {
				out = append(out, ChatMessage{Role: "tool", ToolCallID: r.ToolCallID, Content: encodeResult(r)})
			}
		case s.AgentName == a.member.Name:
			m := ChatMessage{Role: "assistant", Content: s.Text()}
			for _, c := range s.ToolCalls() {
				args, _ := json.Marshal(c.Args)
				m.ToolCalls = append(m.ToolCalls, ToolCall{
					ID:       c.ID,
					Type:     "function",
					Function: FunctionCall{Name: c.ToolName, Arguments: string(args)},
				})
			}
			out = append(out, m)
		default:
			if text := s.Text(); text != "" {
				out = append(out, ChatMessage{Role: "user", Name: s.AgentName, Content: fmt.Sprintf("[%s] %s", s.AgentName, text)})
			}
		}
	}
	return out
}

func toolSpecs(tools []mcp.Tool) []ToolSpec {
	out := make([]ToolSpec, 0, len(tools))
	for _, t := range tools {
		var params any = t.InputSchema
		if len(t.RawInputSchema) > 0 {
			params = json.RawMessage(t.RawInputSchema)
		}
		out = append(out, ToolSpec{
			Type:     "function",
			Function: FunctionSpec{Name: t.Name, Description: t.Description, Parameters: params},
		})
	}
	return out
}

// decodeArgs parses model-produced arguments. Unparseable input is kept
// verbatim so validation can report it back to the model.
func decodeArgs(raw string) map[string]any {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return map[string]any{}
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return map[string]any{"_raw": raw}
	}
	return args
}

func encodeResult(r step.ToolResult) string {
	if s, ok := r.Result.(string); ok && !r.IsError {
		return s
	}
	data, err := json.Marshal(map[string]any{"result": r.Result, "is_error": r.IsError})
	if err != nil {
		return fmt.Sprint(r.Result)
	}
	return string(data)
}
