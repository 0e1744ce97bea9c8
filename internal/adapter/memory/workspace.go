// Package memory provides in-process Workspace and EventStore
// implementations used when no database is configured, and in tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/Strob0t/AgentForge/internal/domain"
	"github.com/Strob0t/AgentForge/internal/domain/orchestration"
	"github.com/Strob0t/AgentForge/internal/domain/plan"
	"github.com/Strob0t/AgentForge/internal/domain/step"
)

// Workspace implements workspace.Workspace in memory.
type Workspace struct {
	mu        sync.RWMutex
	history   map[string][]step.Step
	plans     map[string][]plan.Task
	snapshots map[string]orchestration.TaskState
}

// NewWorkspace creates an empty Workspace.
func NewWorkspace() *Workspace {
	return &Workspace{
		history:   make(map[string][]step.Step),
		plans:     make(map[string][]plan.Task),
		snapshots: make(map[string]orchestration.TaskState),
	}
}

// AppendHistory implements workspace.Workspace.
func (w *Workspace) AppendHistory(_ context.Context, taskID string, s step.Step) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, existing := range w.history[taskID] {
		if existing.ID == s.ID {
			return fmt.Errorf("step %s: %w", s.ID, domain.ErrConflict)
		}
	}
	w.history[taskID] = append(w.history[taskID], s)
	return nil
}

// LoadHistory implements workspace.Workspace.
func (w *Workspace) LoadHistory(_ context.Context, taskID string) ([]step.Step, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]step.Step(nil), w.history[taskID]...), nil
}

// SavePlan implements workspace.Workspace.
func (w *Workspace) SavePlan(_ context.Context, taskID string, tasks []plan.Task) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.plans[taskID] = plan.Clone(tasks)
	return nil
}

// LoadPlan implements workspace.Workspace.
func (w *Workspace) LoadPlan(_ context.Context, taskID string) ([]plan.Task, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return plan.Clone(w.plans[taskID]), nil
}

// SaveSnapshot implements workspace.Workspace.
func (w *Workspace) SaveSnapshot(_ context.Context, state orchestration.TaskState) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.snapshots[state.TaskID] = state.Snapshot()
	return nil
}

// LoadSnapshot implements workspace.Workspace.
func (w *Workspace) LoadSnapshot(_ context.Context, taskID string) (*orchestration.TaskState, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	st, ok := w.snapshots[taskID]
	if !ok {
		return nil, fmt.Errorf("snapshot %s: %w", taskID, domain.ErrNotFound)
	}
	cp := st.Snapshot()
	return &cp, nil
}
