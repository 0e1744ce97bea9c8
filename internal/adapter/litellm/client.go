// Package litellm talks to a LiteLLM proxy through its OpenAI-compatible
// chat completions API. It provides the completion analyzer and a chat
// agent backed by any model the proxy serves.
package litellm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Strob0t/AgentForge/internal/resilience"
)

// ChatMessage is one message of a chat completion request or response.
type ChatMessage struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a function call requested by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the function name and JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolSpec advertises a function to the model.
type ToolSpec struct {
	Type     string       `json:"type"`
	Function FunctionSpec `json:"function"`
}

// FunctionSpec describes a callable function with its JSON schema.
type FunctionSpec struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

// ChatRequest is the body of POST /v1/chat/completions.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Tools       []ToolSpec    `json:"tools,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

// ChatResponse is the subset of the completion response we use.
type ChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// ErrNoChoices is returned when the proxy answers without a choice.
var ErrNoChoices = errors.New("litellm: response has no choices")

// Client talks to the LiteLLM proxy.
type Client struct {
	baseURL    string
	masterKey  func() string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient creates a client. Completions can be slow, so the HTTP
// timeout is generous; callers bound individual calls with ctx.
func NewClient(baseURL, masterKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		masterKey:  func() string { return masterKey },
		httpClient: &http.Client{Timeout: 5 * time.Minute},
	}
}

// SetKeyFunc makes the client read the master key on every request, so a
// rotated key takes effect without a restart.
func (c *Client) SetKeyFunc(fn func() string) {
	c.masterKey = fn
}

// SetBreaker guards every outgoing call with b.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// ChatCompletion sends req and returns the first choice's message.
func (c *Client) ChatCompletion(ctx context.Context, req ChatRequest) (ChatMessage, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return ChatMessage{}, fmt.Errorf("marshal chat request: %w", err)
	}
	data, err := c.doRequest(ctx, http.MethodPost, "/v1/chat/completions", body)
	if err != nil {
		return ChatMessage{}, fmt.Errorf("chat completion: %w", err)
	}

	var resp ChatResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return ChatMessage{}, fmt.Errorf("unmarshal chat response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return ChatMessage{}, ErrNoChoices
	}
	return resp.Choices[0].Message, nil
}

// Health reports whether the proxy answers its liveness probe.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.doRequest(ctx, http.MethodGet, "/health/liveliness", nil)
	return err
}

func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key := c.masterKey(); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	return req, nil
}

// guard runs call through the breaker, if one is set.
func (c *Client) guard(call func() error) error {
	if c.breaker == nil {
		return call()
	}
	return c.breaker.Execute(call)
}

func (c *Client) doRequest(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var result []byte
	err := c.guard(func() error {
		req, err := c.newRequest(ctx, method, path, body)
		if err != nil {
			return err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("litellm API error %d: %s", resp.StatusCode, string(data))
		}
		result = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
