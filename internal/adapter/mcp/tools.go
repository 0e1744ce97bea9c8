package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/Strob0t/AgentForge/internal/service"
)

func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		mcpserver.ServerTool{
			Tool: mcplib.NewTool("start_task",
				mcplib.WithDescription("Start a new AgentForge task with the configured team"),
				mcplib.WithString("prompt", mcplib.Required(), mcplib.Description("The user request")),
				mcplib.WithBoolean("step_mode", mcplib.Description("Pause after every round")),
			),
			Handler: s.handleStartTask,
		},
		mcpserver.ServerTool{
			Tool: mcplib.NewTool("get_task",
				mcplib.WithDescription("Get the state and history of a task"),
				mcplib.WithString("task_id", mcplib.Required(), mcplib.Description("Task ID")),
			),
			Handler: s.handleGetTask,
		},
		mcpserver.ServerTool{
			Tool: mcplib.NewTool("interrupt_task",
				mcplib.WithDescription("Inject a user message into a running task"),
				mcplib.WithString("task_id", mcplib.Required(), mcplib.Description("Task ID")),
				mcplib.WithString("message", mcplib.Required(), mcplib.Description("Message to deliver")),
			),
			Handler: s.handleInterruptTask,
		},
		mcpserver.ServerTool{
			Tool: mcplib.NewTool("cancel_task",
				mcplib.WithDescription("Cancel a running task"),
				mcplib.WithString("task_id", mcplib.Required(), mcplib.Description("Task ID")),
				mcplib.WithString("reason", mcplib.Description("Why the task is cancelled")),
			),
			Handler: s.handleCancelTask,
		},
	)
}

func (s *Server) handleStartTask(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	prompt := req.GetString("prompt", "")
	if prompt == "" {
		return mcplib.NewToolResultError("prompt is required"), nil
	}
	start := service.StartRequest{Prompt: prompt}
	if v, ok := req.GetArguments()["step_mode"].(bool); ok {
		start.StepMode = &v
	}
	id, err := s.tasks.StartTask(ctx, start)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to start task", err), nil
	}
	return toolResultJSON(map[string]string{"task_id": id})
}

func (s *Server) handleGetTask(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	id := req.GetString("task_id", "")
	if id == "" {
		return mcplib.NewToolResultError("task_id is required"), nil
	}
	st, err := s.tasks.State(ctx, id)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to get task %s", id), err), nil
	}
	return toolResultJSON(st)
}

func (s *Server) handleInterruptTask(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	id := req.GetString("task_id", "")
	msg := req.GetString("message", "")
	if id == "" || msg == "" {
		return mcplib.NewToolResultError("task_id and message are required"), nil
	}
	if err := s.tasks.Interrupt(ctx, id, msg); err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to interrupt task %s", id), err), nil
	}
	return mcplib.NewToolResultText("interrupt delivered"), nil
}

func (s *Server) handleCancelTask(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	id := req.GetString("task_id", "")
	if id == "" {
		return mcplib.NewToolResultError("task_id is required"), nil
	}
	if err := s.tasks.Cancel(ctx, id, req.GetString("reason", "")); err != nil {
		return mcplib.NewToolResultErrorFromErr(fmt.Sprintf("failed to cancel task %s", id), err), nil
	}
	return mcplib.NewToolResultText("task cancelled"), nil
}

func toolResultJSON(v any) (*mcplib.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal result", err), nil
	}
	return mcplib.NewToolResultText(string(data)), nil
}
