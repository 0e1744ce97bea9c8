package orchestration

import (
	"fmt"

	"github.com/Strob0t/AgentForge/internal/domain/plan"
	"github.com/Strob0t/AgentForge/internal/domain/step"
)

// Status is the task state machine's current state.
type Status string

const (
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

var transitions = map[Status][]Status{
	StatusRunning: {StatusPaused, StatusCompleted, StatusFailed},
	StatusPaused:  {StatusRunning, StatusFailed},
}

// CanTransition reports whether from -> to is a legal transition.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// TaskState is owned by exactly one loop and never shared mutably.
type TaskState struct {
	TaskID      string      `json:"task_id"`
	History     []step.Step `json:"history"`
	ActiveAgent string      `json:"active_agent"`
	RoundCount  int         `json:"round_count"`
	Plan        []plan.Task `json:"plan"`
	Status      Status      `json:"status"`
	Reason      string      `json:"reason,omitempty"`
}

// NewTaskState creates a running task state seeded with history.
func NewTaskState(taskID, initialAgent string, history []step.Step, tasks []plan.Task) *TaskState {
	return &TaskState{
		TaskID:      taskID,
		History:     history,
		ActiveAgent: initialAgent,
		Plan:        tasks,
		Status:      StatusRunning,
	}
}

// Append adds a step to history.
func (s *TaskState) Append(st step.Step) {
	s.History = append(s.History, st)
}

// Latest returns the most recent step, or nil.
func (s *TaskState) Latest() *step.Step {
	if len(s.History) == 0 {
		return nil
	}
	return &s.History[len(s.History)-1]
}

// BeginRound increments the round counter and returns the new value.
func (s *TaskState) BeginRound() int {
	s.RoundCount++
	return s.RoundCount
}

// Transition moves the state machine, rejecting illegal transitions.
func (s *TaskState) Transition(to Status, reason string) error {
	if s.Status == to {
		return nil
	}
	if !CanTransition(s.Status, to) {
		return fmt.Errorf("illegal transition %s -> %s", s.Status, to)
	}
	s.Status = to
	s.Reason = reason
	return nil
}

// Snapshot returns a copy that can be handed to other goroutines. Steps are
// immutable so the history slice is copied shallowly.
func (s *TaskState) Snapshot() TaskState {
	cp := *s
	cp.History = append([]step.Step(nil), s.History...)
	cp.Plan = plan.Clone(s.Plan)
	return cp
}
