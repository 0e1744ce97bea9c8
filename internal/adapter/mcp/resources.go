package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"agentforge://team",
			"Team",
			mcplib.WithResourceDescription("Roster, handoff rules and after-work behaviour of the configured team"),
			mcplib.WithMIMEType("application/json"),
		),
		func(_ context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
			return jsonResource(req.Params.URI, s.tasks.Team())
		},
	)
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"agentforge://tasks",
			"Tasks",
			mcplib.WithResourceDescription("Tasks currently held by the server"),
			mcplib.WithMIMEType("application/json"),
		),
		func(_ context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
			return jsonResource(req.Params.URI, s.tasks.List())
		},
	)
}

func jsonResource(uri string, v any) ([]mcplib.ResourceContents, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{URI: uri, MIMEType: "application/json", Text: string(data)},
	}, nil
}
