package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/AgentForge/internal/domain/orchestration"
	"github.com/Strob0t/AgentForge/internal/domain/plan"
	"github.com/Strob0t/AgentForge/internal/domain/step"
)

// Workspace implements workspace.Workspace. History is append-only: each
// step takes the next sequence number of its task.
type Workspace struct {
	pool *pgxpool.Pool
}

// NewWorkspace creates a Workspace backed by pool.
func NewWorkspace(pool *pgxpool.Pool) *Workspace {
	return &Workspace{pool: pool}
}

// AppendHistory stores s as the task's next step.
func (w *Workspace) AppendHistory(ctx context.Context, taskID string, s step.Step) error {
	body, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal step %s: %w", s.ID, err)
	}
	_, err = w.pool.Exec(ctx,
		`INSERT INTO task_steps (task_id, seq, step_id, agent_name, body, created_at)
		 VALUES ($1, COALESCE((SELECT MAX(seq) FROM task_steps WHERE task_id = $1), 0) + 1, $2, $3, $4, $5)`,
		taskID, s.ID, s.AgentName, body, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("append step %s to task %s: %w", s.ID, taskID, err)
	}
	return nil
}

// LoadHistory returns the task's steps in append order.
func (w *Workspace) LoadHistory(ctx context.Context, taskID string) ([]step.Step, error) {
	rows, err := w.pool.Query(ctx,
		`SELECT body FROM task_steps WHERE task_id = $1 ORDER BY seq ASC`, taskID)
	if err != nil {
		return nil, fmt.Errorf("load history %s: %w", taskID, err)
	}
	steps, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (step.Step, error) {
		var body []byte
		if err := row.Scan(&body); err != nil {
			return step.Step{}, err
		}
		var s step.Step
		err := json.Unmarshal(body, &s)
		return s, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan history %s: %w", taskID, err)
	}
	return steps, nil
}

// SavePlan replaces the task's plan.
func (w *Workspace) SavePlan(ctx context.Context, taskID string, tasks []plan.Task) error {
	body, err := json.Marshal(orEmpty(tasks))
	if err != nil {
		return fmt.Errorf("marshal plan: %w", err)
	}
	_, err = w.pool.Exec(ctx,
		`INSERT INTO task_plans (task_id, tasks, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (task_id) DO UPDATE SET tasks = EXCLUDED.tasks, updated_at = now()`,
		taskID, body)
	if err != nil {
		return fmt.Errorf("save plan %s: %w", taskID, err)
	}
	return nil
}

// LoadPlan returns the task's plan; a task without one has an empty plan.
func (w *Workspace) LoadPlan(ctx context.Context, taskID string) ([]plan.Task, error) {
	var body []byte
	err := w.pool.QueryRow(ctx, `SELECT tasks FROM task_plans WHERE task_id = $1`, taskID).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load plan %s: %w", taskID, err)
	}
	var tasks []plan.Task
	if err := json.Unmarshal(body, &tasks); err != nil {
		return nil, fmt.Errorf("decode plan %s: %w", taskID, err)
	}
	return tasks, nil
}

// SaveSnapshot stores the terminal state of a task.
func (w *Workspace) SaveSnapshot(ctx context.Context, state orchestration.TaskState) error {
	body, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = w.pool.Exec(ctx,
		`INSERT INTO task_snapshots (task_id, status, active_agent, round_count, state, updated_at)
		 VALUES ($1, $2, $3, $4, $5, now())
		 ON CONFLICT (task_id) DO UPDATE SET status = EXCLUDED.status, active_agent = EXCLUDED.active_agent,
		     round_count = EXCLUDED.round_count, state = EXCLUDED.state, updated_at = now()`,
		state.TaskID, string(state.Status), state.ActiveAgent, state.RoundCount, body)
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", state.TaskID, err)
	}
	return nil
}

// LoadSnapshot returns the last saved state or domain.ErrNotFound.
func (w *Workspace) LoadSnapshot(ctx context.Context, taskID string) (*orchestration.TaskState, error) {
	var body []byte
	err := w.pool.QueryRow(ctx, `SELECT state FROM task_snapshots WHERE task_id = $1`, taskID).Scan(&body)
	if err != nil {
		return nil, notFoundWrap(err, "load snapshot %s", taskID)
	}
	var st orchestration.TaskState
	if err := json.Unmarshal(body, &st); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", taskID, err)
	}
	return &st, nil
}
