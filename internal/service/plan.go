package service

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Strob0t/AgentForge/internal/domain"
	"github.com/Strob0t/AgentForge/internal/domain/plan"
)

// Built-in plan tool names.
const (
	ToolPlanAdd    = "plan_add_task"
	ToolPlanUpdate = "plan_update_task"
	ToolPlanList   = "plan_list"
)

// PlanTools returns the schemas of the built-in plan tools.
func PlanTools() []mcp.Tool {
	return []mcp.Tool{
		mcp.NewTool(ToolPlanAdd,
			mcp.WithDescription("Append a sub-task to the shared plan"),
			mcp.WithString("description", mcp.Required(), mcp.Description("What needs to be done")),
		),
		mcp.NewTool(ToolPlanUpdate,
			mcp.WithDescription("Change the status or description of a plan sub-task"),
			mcp.WithString("task_id", mcp.Required(), mcp.Description("ID returned by plan_add_task")),
			mcp.WithString("status",
				mcp.Description("New status"),
				mcp.Enum(string(plan.StatusPending), string(plan.StatusInProgress), string(plan.StatusCompleted)),
			),
			mcp.WithString("description", mcp.Description("Replacement description")),
		),
		mcp.NewTool(ToolPlanList,
			mcp.WithDescription("List the plan sub-tasks and their status"),
		),
	}
}

// PlanStore is one task's ordered sub-task list. Plan tools may be
// dispatched concurrently, so access is serialized.
type PlanStore struct {
	mu     sync.Mutex
	tasks  []plan.Task
	nextID int
	dirty  bool
}

// NewPlanStore creates a store seeded with tasks (e.g. from a resumed task).
func NewPlanStore(tasks []plan.Task) *PlanStore {
	p := &PlanStore{tasks: plan.Clone(tasks), nextID: 1}
	for _, t := range tasks {
		if n, err := strconv.Atoi(t.ID); err == nil && n >= p.nextID {
			p.nextID = n + 1
		}
	}
	return p
}

// Add appends a pending task.
func (p *PlanStore) Add(description string, metadata map[string]string) (plan.Task, error) {
	t := plan.Task{Description: description, Status: plan.StatusPending, Metadata: metadata}

	p.mu.Lock()
	defer p.mu.Unlock()
	t.ID = strconv.Itoa(p.nextID)
	if err := t.Validate(); err != nil {
		return plan.Task{}, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	p.nextID++
	p.tasks = append(p.tasks, t)
	p.dirty = true
	return t, nil
}

// Update changes status and/or description. Empty values are left unchanged.
// A status may only move forward: pending, in_progress, completed.
func (p *PlanStore) Update(id string, status plan.Status, description string) (plan.Task, error) {
	if status != "" && !status.IsValid() {
		return plan.Task{}, fmt.Errorf("%w: invalid status %q", domain.ErrValidation, status)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.tasks {
		if p.tasks[i].ID != id {
			continue
		}
		if status != "" {
			if cur := p.tasks[i].Status; !cur.CanBecome(status) {
				return plan.Task{}, fmt.Errorf("%w: plan task %q cannot move from %s to %s", domain.ErrValidation, id, cur, status)
			}
			p.tasks[i].Status = status
		}
		if description != "" {
			p.tasks[i].Description = description
		}
		p.dirty = true
		return p.tasks[i], nil
	}
	return plan.Task{}, fmt.Errorf("plan task %q: %w", id, domain.ErrNotFound)
}

// List returns a copy of the plan.
func (p *PlanStore) List() []plan.Task {
	p.mu.Lock()
	defer p.mu.Unlock()
	return plan.Clone(p.tasks)
}

// Summary aggregates the plan for routing conditions.
func (p *PlanStore) Summary() plan.Summary {
	p.mu.Lock()
	defer p.mu.Unlock()
	return plan.Summarize(p.tasks)
}

// TakeDirty reports whether the plan changed since the last call.
func (p *PlanStore) TakeDirty() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	d := p.dirty
	p.dirty = false
	return d
}

// Handlers binds the plan tools to this store.
func (p *PlanStore) Handlers() map[string]LocalTool {
	return map[string]LocalTool{
		ToolPlanAdd: func(_ context.Context, args map[string]any) (any, error) {
			desc, _ := args["description"].(string)
			return p.Add(desc, nil)
		},
		ToolPlanUpdate: func(_ context.Context, args map[string]any) (any, error) {
			id, _ := args["task_id"].(string)
			status, _ := args["status"].(string)
			desc, _ := args["description"].(string)
			return p.Update(id, plan.Status(status), desc)
		},
		ToolPlanList: func(context.Context, map[string]any) (any, error) {
			tasks := p.List()
			return map[string]any{"tasks": tasks, "summary": plan.Summarize(tasks)}, nil
		},
	}
}
