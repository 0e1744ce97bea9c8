// Package plan defines the ordered sub-task list an agent team maintains
// while working on a task.
package plan

import (
	"errors"
	"fmt"
)

// Status is the progress state of a plan task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

func (s Status) rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusInProgress:
		return 1
	case StatusCompleted:
		return 2
	}
	return -1
}

// CanBecome reports whether a task in status s may move to next. Progress
// only goes forward; staying in place is allowed.
func (s Status) CanBecome(next Status) bool {
	return next.IsValid() && next.rank() >= s.rank()
}

// Task is one entry of a plan.
type Task struct {
	ID          string            `json:"task_id"`
	Description string            `json:"description"`
	Status      Status            `json:"status"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Validate checks that a Task has all required fields.
func (t *Task) Validate() error {
	if t.ID == "" {
		return errors.New("task_id is required")
	}
	if t.Description == "" {
		return errors.New("description is required")
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("invalid status %q", t.Status)
	}
	return nil
}

// Summary aggregates plan progress.
type Summary struct {
	Total        int  `json:"total"`
	Pending      int  `json:"pending"`
	InProgress   int  `json:"in_progress"`
	Completed    int  `json:"completed"`
	AllCompleted bool `json:"all_completed"`
}

// Summarize counts tasks by status. An empty plan is not all_completed.
func Summarize(tasks []Task) Summary {
	s := Summary{Total: len(tasks)}
	for i := range tasks {
		switch tasks[i].Status {
		case StatusPending:
			s.Pending++
		case StatusInProgress:
			s.InProgress++
		case StatusCompleted:
			s.Completed++
		}
	}
	s.AllCompleted = s.Total > 0 && s.Completed == s.Total
	return s
}

// Vars exposes the summary as condition template variables.
func (s Summary) Vars() map[string]any {
	return map[string]any{
		"total":         s.Total,
		"pending":       s.Pending,
		"in_progress":   s.InProgress,
		"completed":     s.Completed,
		"all_completed": s.AllCompleted,
	}
}

// Clone returns a deep copy of tasks.
func Clone(tasks []Task) []Task {
	if tasks == nil {
		return nil
	}
	out := make([]Task, len(tasks))
	for i, t := range tasks {
		out[i] = t
		if t.Metadata != nil {
			out[i].Metadata = make(map[string]string, len(t.Metadata))
			for k, v := range t.Metadata {
				out[i].Metadata[k] = v
			}
		}
	}
	return out
}
