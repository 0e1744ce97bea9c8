// Package workspace defines the durable, ordered store of task history.
package workspace

import (
	"context"

	"github.com/Strob0t/AgentForge/internal/domain/orchestration"
	"github.com/Strob0t/AgentForge/internal/domain/plan"
	"github.com/Strob0t/AgentForge/internal/domain/step"
)

// Workspace persists task state. Implementations must preserve append order.
type Workspace interface {
	AppendHistory(ctx context.Context, taskID string, s step.Step) error
	// LoadHistory returns steps in append order; empty for unknown tasks.
	LoadHistory(ctx context.Context, taskID string) ([]step.Step, error)
	SavePlan(ctx context.Context, taskID string, tasks []plan.Task) error
	LoadPlan(ctx context.Context, taskID string) ([]plan.Task, error)
	// SaveSnapshot archives the terminal state of a task.
	SaveSnapshot(ctx context.Context, state orchestration.TaskState) error
	// LoadSnapshot returns domain.ErrNotFound if the task never finished.
	LoadSnapshot(ctx context.Context, taskID string) (*orchestration.TaskState, error)
}
