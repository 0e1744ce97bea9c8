// Package orchestration holds the state machine types of a running task:
// routing decisions, task state and task-level error kinds.
package orchestration

import "fmt"

// DecisionKind tags a RoutingDecision.
type DecisionKind string

const (
	DecisionContinue DecisionKind = "continue"
	DecisionHandoff  DecisionKind = "handoff"
	DecisionComplete DecisionKind = "complete"
)

// RoutingDecision is the Router's verdict on who acts next.
type RoutingDecision struct {
	Kind    DecisionKind `json:"kind"`
	ToAgent string       `json:"to_agent,omitempty"`
	Reason  string       `json:"reason,omitempty"`
}

// Continue keeps the active agent.
func Continue() RoutingDecision { return RoutingDecision{Kind: DecisionContinue} }

// Handoff switches the active agent.
func Handoff(to, reason string) RoutingDecision {
	return RoutingDecision{Kind: DecisionHandoff, ToAgent: to, Reason: reason}
}

// Complete ends the task.
func Complete(reason string) RoutingDecision {
	return RoutingDecision{Kind: DecisionComplete, Reason: reason}
}

func (d RoutingDecision) String() string {
	switch d.Kind {
	case DecisionHandoff:
		return fmt.Sprintf("handoff(%s: %s)", d.ToAgent, d.Reason)
	case DecisionComplete:
		return fmt.Sprintf("complete(%s)", d.Reason)
	default:
		return string(d.Kind)
	}
}

// Completion reasons produced by the Router and loop.
const (
	ReasonAwaitingUser     = "awaiting user"
	ReasonAfterWork        = "after_work_behavior"
	ReasonTerminationToken = "termination_token"
)
