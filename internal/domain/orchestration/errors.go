package orchestration

import (
	"errors"
	"fmt"
)

// Task-level failure kinds. Each ends the task in StatusFailed.
var (
	ErrRoundLimitExceeded      = errors.New("round limit exceeded")
	ErrRouting                 = errors.New("routing error")
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
	ErrTaskCancelled           = errors.New("task cancelled")
)

// RoutingError describes why the Router could not produce a decision.
type RoutingError struct {
	FromAgent string
	ToAgent   string
	Msg       string
}

func (e *RoutingError) Error() string {
	if e.ToAgent != "" {
		return fmt.Sprintf("routing from %q to %q: %s", e.FromAgent, e.ToAgent, e.Msg)
	}
	return fmt.Sprintf("routing from %q: %s", e.FromAgent, e.Msg)
}

// Is makes errors.Is(err, ErrRouting) hold for any *RoutingError.
func (e *RoutingError) Is(target error) bool { return target == ErrRouting }

// Unavailable wraps err as a CollaboratorUnavailable failure.
func Unavailable(what string, err error) error {
	return fmt.Errorf("%s: %w: %w", what, ErrCollaboratorUnavailable, err)
}

// ErrorKind classifies a task-level error for the terminal error event.
func ErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrRoundLimitExceeded):
		return "round_limit_exceeded"
	case errors.Is(err, ErrRouting):
		return "routing_error"
	case errors.Is(err, ErrTaskCancelled):
		return "task_cancelled"
	case errors.Is(err, ErrCollaboratorUnavailable):
		return "collaborator_unavailable"
	default:
		return "internal"
	}
}
