package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	mcpclient "github.com/mark3labs/mcp-go/client"
	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/Strob0t/AgentForge/internal/port/toolexec"
)

// ToolClient is the part of an MCP client the executor needs.
type ToolClient interface {
	Initialize(ctx context.Context, req mcplib.InitializeRequest) (*mcplib.InitializeResult, error)
	ListTools(ctx context.Context, req mcplib.ListToolsRequest) (*mcplib.ListToolsResult, error)
	CallTool(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error)
	Close() error
}

// Executor runs tools on an external MCP server. It implements
// toolexec.Executor.
type Executor struct {
	client ToolClient
	name   string
}

// NewExecutor wraps an already started client and performs the MCP
// initialize handshake.
func NewExecutor(ctx context.Context, name string, c ToolClient) (*Executor, error) {
	req := mcplib.InitializeRequest{}
	req.Params.ProtocolVersion = mcplib.LATEST_PROTOCOL_VERSION
	req.Params.ClientInfo = mcplib.Implementation{Name: "agentforge", Version: Version}
	if _, err := c.Initialize(ctx, req); err != nil {
		return nil, fmt.Errorf("mcp %s initialize: %w", name, err)
	}
	return &Executor{client: c, name: name}, nil
}

// NewStdioExecutor spawns command as an MCP stdio server.
func NewStdioExecutor(ctx context.Context, command string, env []string, args ...string) (*Executor, error) {
	c, err := mcpclient.NewStdioMCPClient(command, env, args...)
	if err != nil {
		return nil, fmt.Errorf("mcp start %s: %w", command, err)
	}
	e, err := NewExecutor(ctx, command, c)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	return e, nil
}

// Name identifies the server, e.g. for its circuit breaker.
func (e *Executor) Name() string { return e.name }

// ImportTools returns the server's tool schemas for registration.
func (e *Executor) ImportTools(ctx context.Context) ([]mcplib.Tool, error) {
	res, err := e.client.ListTools(ctx, mcplib.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("mcp %s list tools: %w", e.name, err)
	}
	return res.Tools, nil
}

// Execute calls tool. Transport failures are errors; a tool-level error is
// reported as exit code 1 so that it does not count against the breaker.
func (e *Executor) Execute(ctx context.Context, tool string, args map[string]any) (toolexec.Output, error) {
	req := mcplib.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = args

	res, err := e.client.CallTool(ctx, req)
	if err != nil {
		return toolexec.Output{}, fmt.Errorf("mcp %s call %s: %w", e.name, tool, err)
	}

	out := toolexec.Output{Output: resultValue(res)}
	if res.IsError {
		code := 1
		out.ExitCode = &code
	}
	return out, nil
}

// Close terminates the client and its server process.
func (e *Executor) Close() error {
	return e.client.Close()
}

// resultValue prefers structured content, then JSON text, then plain text.
func resultValue(res *mcplib.CallToolResult) any {
	if res.StructuredContent != nil {
		return res.StructuredContent
	}
	var texts []string
	for _, c := range res.Content {
		if tc, ok := mcplib.AsTextContent(c); ok {
			texts = append(texts, tc.Text)
		}
	}
	text := strings.Join(texts, "\n")
	var v any
	if json.Valid([]byte(text)) && json.Unmarshal([]byte(text), &v) == nil {
		return v
	}
	return text
}
