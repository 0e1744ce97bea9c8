package litellm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

type toolCallDelta struct {
	Index    int    `json:"index"`
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content   string          `json:"content"`
			ToolCalls []toolCallDelta `json:"tool_calls"`
		} `json:"delta"`
	} `json:"choices"`
}

// ChatCompletionStream sends req with streaming enabled and calls onDelta
// for every content fragment as it arrives. The returned message carries
// the full content and the tool calls assembled from their deltas.
func (c *Client) ChatCompletionStream(ctx context.Context, req ChatRequest, onDelta func(string)) (ChatMessage, error) {
	req.Stream = true
	body, err := json.Marshal(req)
	if err != nil {
		return ChatMessage{}, fmt.Errorf("marshal chat request: %w", err)
	}

	var msg ChatMessage
	err = c.guard(func() error {
		hreq, err := c.newRequest(ctx, http.MethodPost, "/v1/chat/completions", body)
		if err != nil {
			return err
		}
		hreq.Header.Set("Accept", "text/event-stream")

		resp, err := c.httpClient.Do(hreq)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode >= 400 {
			data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
			return fmt.Errorf("litellm API error %d: %s", resp.StatusCode, string(data))
		}
		msg, err = readStream(resp.Body, onDelta)
		return err
	})
	if err != nil {
		return ChatMessage{}, fmt.Errorf("chat completion: %w", err)
	}
	return msg, nil
}

// readStream decodes an OpenAI-style SSE body until [DONE] or EOF.
func readStream(r io.Reader, onDelta func(string)) (ChatMessage, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)

	type toolAcc struct {
		id   string
		name string
		args strings.Builder
	}
	calls := make(map[int]*toolAcc)
	var order []int
	var content strings.Builder

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		payload, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		payload = strings.TrimSpace(payload)
		if payload == "" {
			continue
		}
		if payload == "[DONE]" {
			break
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			slog.Debug("litellm: skipping undecodable stream chunk", "error", err)
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta
		if delta.Content != "" {
			content.WriteString(delta.Content)
			if onDelta != nil {
				onDelta(delta.Content)
			}
		}
		for _, tc := range delta.ToolCalls {
			acc, ok := calls[tc.Index]
			if !ok {
				acc = &toolAcc{}
				calls[tc.Index] = acc
				order = append(order, tc.Index)
			}
			if tc.ID != "" {
				acc.id = tc.ID
			}
			if tc.Function.Name != "" {
				acc.name = tc.Function.Name
			}
			acc.args.WriteString(tc.Function.Arguments)
		}
	}
	if err := scanner.Err(); err != nil {
		return ChatMessage{}, fmt.Errorf("read response stream: %w", err)
	}

	msg := ChatMessage{Role: "assistant", Content: content.String()}
	for _, idx := range order {
		acc := calls[idx]
		msg.ToolCalls = append(msg.ToolCalls, ToolCall{
			ID:       acc.id,
			Type:     "function",
			Function: FunctionCall{Name: acc.name, Arguments: acc.args.String()},
		})
	}
	return msg, nil
}
