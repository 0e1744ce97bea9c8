// Package mcp connects AgentForge to the Model Context Protocol in both
// directions: an executor that runs tools on external MCP servers, and a
// server that exposes task control to MCP clients.
package mcp

import (
	"context"
	"net/http"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/AgentForge/internal/domain/orchestration"
	"github.com/Strob0t/AgentForge/internal/domain/team"
	"github.com/Strob0t/AgentForge/internal/service"
)

// Version is reported in MCP handshakes.
const Version = "0.1.0"

// TaskAPI is the task manager surface exposed over MCP.
type TaskAPI interface {
	StartTask(ctx context.Context, req service.StartRequest) (string, error)
	State(ctx context.Context, id string) (orchestration.TaskState, error)
	Interrupt(ctx context.Context, id, message string) error
	Cancel(ctx context.Context, id, reason string) error
	List() []service.TaskInfo
	Team() *team.Team
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Name   string
	APIKey string // empty disables authentication
}

// Server exposes AgentForge tasks as MCP tools and resources.
type Server struct {
	mcpServer *mcpserver.MCPServer
	tasks     TaskAPI
	apiKey    string
}

// NewServer creates the server and registers its tools and resources.
func NewServer(cfg ServerConfig, tasks TaskAPI) *Server {
	if cfg.Name == "" {
		cfg.Name = "agentforge"
	}
	s := &Server{
		mcpServer: mcpserver.NewMCPServer(cfg.Name, Version,
			mcpserver.WithToolCapabilities(false),
			mcpserver.WithResourceCapabilities(false, false),
		),
		tasks:  tasks,
		apiKey: cfg.APIKey,
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server, e.g. for in-process clients.
func (s *Server) MCPServer() *mcpserver.MCPServer { return s.mcpServer }

// Handler serves the streamable HTTP transport behind API key auth.
func (s *Server) Handler() http.Handler {
	return AuthMiddleware(s.apiKey, mcpserver.NewStreamableHTTPServer(s.mcpServer))
}
