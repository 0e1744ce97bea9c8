package litellm_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Strob0t/AgentForge/internal/adapter/litellm"
	"github.com/Strob0t/AgentForge/internal/domain/step"
	"github.com/Strob0t/AgentForge/internal/domain/team"
	"github.com/Strob0t/AgentForge/internal/port/agent"
	"github.com/Strob0t/AgentForge/internal/resilience"
)

// chatServer answers every completion with reply and records requests.
type chatServer struct {
	mu       sync.Mutex
	requests []litellm.ChatRequest
	reply    litellm.ChatMessage
	status   int
}

func (s *chatServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/chat/completions" {
		http.NotFound(w, r)
		return
	}
	var req litellm.ChatRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	s.mu.Lock()
	s.requests = append(s.requests, req)
	status, reply := s.status, s.reply
	s.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":"boom"}`))
		return
	}
	if req.Stream {
		writeSSE(w, reply)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      "cmpl-1",
		"choices": []map[string]any{{"message": reply, "finish_reason": "stop"}},
	})
}

// writeSSE streams reply the way the proxy does: content in three-rune
// deltas, each tool call's arguments split across two deltas.
func writeSSE(w http.ResponseWriter, reply litellm.ChatMessage) {
	w.Header().Set("Content-Type", "text/event-stream")
	send := func(delta map[string]any) {
		data, _ := json.Marshal(map[string]any{"choices": []map[string]any{{"delta": delta}}})
		_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
	}
	send(map[string]any{"role": "assistant"})
	content := []rune(reply.Content)
	for i := 0; i < len(content); i += 3 {
		send(map[string]any{"content": string(content[i:min(i+3, len(content))])})
	}
	for i, tc := range reply.ToolCalls {
		half := len(tc.Function.Arguments) / 2
		send(map[string]any{"tool_calls": []map[string]any{{
			"index": i, "id": tc.ID, "type": "function",
			"function": map[string]any{"name": tc.Function.Name, "arguments": tc.Function.Arguments[:half]},
		}}})
		send(map[string]any{"tool_calls": []map[string]any{{
			"index": i, "function": map[string]any{"arguments": tc.Function.Arguments[half:]},
		}}})
	}
	_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
}

func (s *chatServer) last(t *testing.T) litellm.ChatRequest {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) == 0 {
		t.Fatal("no request recorded")
	}
	return s.requests[len(s.requests)-1]
}

func TestChatCompletion_SendsAuthAndParsesChoice(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hi"}}]}`))
	}))
	defer srv.Close()

	msg, err := litellm.NewClient(srv.URL, "test-key").ChatCompletion(context.Background(), litellm.ChatRequest{Model: "m"})
	if err != nil {
		t.Fatalf("ChatCompletion: %v", err)
	}
	if msg.Content != "hi" {
		t.Errorf("content = %q, want hi", msg.Content)
	}
	if auth != "Bearer test-key" {
		t.Errorf("auth = %q", auth)
	}
}

func TestClient_KeyFuncReadsCurrentKey(t *testing.T) {
	var auth []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = append(auth, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	key := "old"
	c := litellm.NewClient(srv.URL, "static")
	c.SetKeyFunc(func() string { return key })

	_ = c.Health(context.Background())
	key = ""
	_ = c.Health(context.Background())

	if len(auth) != 2 || auth[0] != "Bearer old" || auth[1] != "" {
		t.Errorf("auth headers = %q", auth)
	}
}

func TestChatCompletion_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := litellm.NewClient(srv.URL, "").ChatCompletion(context.Background(), litellm.ChatRequest{})
	if !errors.Is(err, litellm.ErrNoChoices) {
		t.Fatalf("err = %v, want ErrNoChoices", err)
	}
}

func TestChatCompletion_BreakerOpensOnErrors(t *testing.T) {
	s := &chatServer{status: http.StatusBadGateway}
	srv := httptest.NewServer(s)
	defer srv.Close()

	c := litellm.NewClient(srv.URL, "")
	c.SetBreaker(resilience.NewBreaker("litellm", 2, time.Minute))
	ctx := context.Background()

	for range 2 {
		if _, err := c.ChatCompletion(ctx, litellm.ChatRequest{}); err == nil {
			t.Fatal("expected API error")
		}
	}
	_, err := c.ChatCompletion(ctx, litellm.ChatRequest{})
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
}

func TestAnalyzer_Classify(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		want   string
	}{
		{"exact", "reviewer", "reviewer"},
		{"case and punctuation", " Reviewer.", "reviewer"},
		{"none", "none", ""},
		{"unknown agent", "editor", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &chatServer{reply: litellm.ChatMessage{Role: "assistant", Content: tt.answer}}
			srv := httptest.NewServer(s)
			defer srv.Close()

			a := litellm.NewAnalyzer(litellm.NewClient(srv.URL, ""), "small")
			last := step.New("writer", step.TextPart("draft is complete"))
			got, err := a.Classify(context.Background(), last, []string{"reviewer", "publisher"})
			if err != nil {
				t.Fatalf("Classify: %v", err)
			}
			if got != tt.want {
				t.Errorf("Classify = %q, want %q", got, tt.want)
			}
			if req := s.last(t); req.Model != "small" || req.Messages[1].Content != "draft is complete" {
				t.Errorf("request = %+v", req)
			}
		})
	}
}

func TestChatAgent_ParsesToolCalls(t *testing.T) {
	s := &chatServer{reply: litellm.ChatMessage{
		Role:    "assistant",
		Content: "writing",
		ToolCalls: []litellm.ToolCall{
			{ID: "c1", Type: "function", Function: litellm.FunctionCall{Name: "write_file", Arguments: `{"path":"a.txt"}`}},
			{ID: "c2", Type: "function", Function: litellm.FunctionCall{Name: "write_file", Arguments: `not json`}},
		},
	}}
	srv := httptest.NewServer(s)
	defer srv.Close()

	a := litellm.NewChatAgent(litellm.NewClient(srv.URL, ""), team.Member{Name: "writer"}, "default-model")
	var chunks []string
	sink := agent.SinkFunc(func(text string) { chunks = append(chunks, text) })

	tool := mcp.NewTool("write_file", mcp.WithString("path", mcp.Required()))
	out, err := a.Invoke(context.Background(), agent.Request{
		History: []step.Step{step.New(step.UserAgent, step.TextPart("write it"))},
		Tools:   []mcp.Tool{tool},
	}, sink)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}

	if out.AgentName != "writer" || out.Text() != "writing" {
		t.Errorf("step = %+v", out)
	}
	calls := out.ToolCalls()
	if len(calls) != 2 || calls[0].Args["path"] != "a.txt" || calls[1].Args["_raw"] != "not json" {
		t.Errorf("calls = %+v", calls)
	}
	if len(chunks) < 2 || strings.Join(chunks, "") != "writing" {
		t.Errorf("chunks = %q, want several deltas joining to %q", chunks, "writing")
	}

	req := s.last(t)
	if !req.Stream {
		t.Error("agent request was not streamed")
	}
	if req.Model != "default-model" {
		t.Errorf("model = %q", req.Model)
	}
	if len(req.Tools) != 1 || req.Tools[0].Function.Name != "write_file" {
		t.Errorf("tools = %+v", req.Tools)
	}
}

func TestChatAgent_RendersHistoryPerAgent(t *testing.T) {
	s := &chatServer{reply: litellm.ChatMessage{Role: "assistant", Content: "done"}}
	srv := httptest.NewServer(s)
	defer srv.Close()

	member := team.Member{Name: "writer", Model: "big", SystemPrompt: "You write."}
	a := litellm.NewChatAgent(litellm.NewClient(srv.URL, ""), member, "default-model")

	user := step.New(step.UserAgent, step.TextPart("write a poem"))
	own := step.New("writer", step.CallPart(step.ToolCall{ID: "c1", ToolName: "plan_list", Args: map[string]any{}}))
	results := step.New(step.ToolAgent, step.ResultPart(step.ToolResult{ToolCallID: "c1", Result: "[]"}))
	results.ParentID = own.ID
	other := step.New("reviewer", step.TextPart("needs rhyme"), step.CallPart(step.ToolCall{ID: "c2", ToolName: "x"}))
	otherResults := step.New(step.ToolAgent, step.ResultPart(step.ToolResult{ToolCallID: "c2", Result: "ok"}))
	otherResults.ParentID = other.ID

	history := []step.Step{user, own, results, other, otherResults}
	if _, err := a.InvokeWithToolResults(context.Background(), agent.Request{History: history}, nil, nil); err != nil {
		t.Fatalf("InvokeWithToolResults: %v", err)
	}

	req := s.last(t)
	if req.Model != "big" {
		t.Errorf("model = %q, want member override", req.Model)
	}
	roles := make([]string, len(req.Messages))
	for i, m := range req.Messages {
		roles[i] = m.Role
	}
	want := []string{"system", "user", "assistant", "tool", "user"}
	if len(roles) != len(want) {
		t.Fatalf("roles = %v, want %v", roles, want)
	}
	for i := range want {
		if roles[i] != want[i] {
			t.Fatalf("roles = %v, want %v", roles, want)
		}
	}
	if req.Messages[3].ToolCallID != "c1" || req.Messages[3].Content != "[]" {
		t.Errorf("tool message = %+v", req.Messages[3])
	}
	if req.Messages[4].Content != "[reviewer] needs rhyme" {
		t.Errorf("peer message = %q", req.Messages[4].Content)
	}
}

func TestChatCompletionStream_DeliversDeltasInOrder(t *testing.T) {
	s := &chatServer{reply: litellm.ChatMessage{Role: "assistant", Content: "hello, world"}}
	srv := httptest.NewServer(s)
	defer srv.Close()

	var deltas []string
	msg, err := litellm.NewClient(srv.URL, "").ChatCompletionStream(context.Background(),
		litellm.ChatRequest{Model: "m"},
		func(d string) { deltas = append(deltas, d) })
	if err != nil {
		t.Fatalf("ChatCompletionStream: %v", err)
	}
	want := []string{"hel", "lo,", " wo", "rld"}
	if strings.Join(deltas, "|") != strings.Join(want, "|") {
		t.Errorf("deltas = %q, want %q", deltas, want)
	}
	if msg.Content != "hello, world" || len(msg.ToolCalls) != 0 {
		t.Errorf("msg = %+v", msg)
	}
}

func TestChatCompletionStream_ErrorStatus(t *testing.T) {
	s := &chatServer{status: http.StatusBadGateway}
	srv := httptest.NewServer(s)
	defer srv.Close()

	_, err := litellm.NewClient(srv.URL, "").ChatCompletionStream(context.Background(), litellm.ChatRequest{Model: "m"}, nil)
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("err = %v, want a 502 error", err)
	}
}
