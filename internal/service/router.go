package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/Strob0t/AgentForge/internal/domain/orchestration"
	"github.com/Strob0t/AgentForge/internal/domain/plan"
	"github.com/Strob0t/AgentForge/internal/domain/step"
	"github.com/Strob0t/AgentForge/internal/domain/team"
	"github.com/Strob0t/AgentForge/internal/port/analyzer"
)

// RouteInput is everything the router looks at. It is a pure function of
// these values and the analyzer's answer.
type RouteInput struct {
	History     []step.Step
	Team        *team.Team
	ActiveAgent string
	Round       int
	Plan        plan.Summary
	Context     map[string]string
}

// Router decides who acts next after each turn.
type Router struct {
	analyzer analyzer.CompletionAnalyzer

	mu         sync.Mutex
	conditions map[string]*team.Condition
}

// NewRouter creates a router. a may be nil, in which case only rules and
// after-work behaviour apply.
func NewRouter(a analyzer.CompletionAnalyzer) *Router {
	return &Router{analyzer: a, conditions: make(map[string]*team.Condition)}
}

// Decide evaluates, in order: handoff rules from the active agent (highest
// priority first), the completion analyzer, then the team's after-work
// behaviour.
func (r *Router) Decide(ctx context.Context, in RouteInput) (orchestration.RoutingDecision, error) {
	var latest *step.Step
	if n := len(in.History); n > 0 {
		latest = &in.History[n-1]
	}
	if latest == nil || latest.AgentName == step.UserAgent || latest.AgentName == step.ToolAgent {
		return orchestration.Continue(), nil
	}

	vars := team.NewVars(in.ActiveAgent, in.Round, latest, in.Plan, in.Context)
	for _, rule := range in.Team.RulesFrom(in.ActiveAgent) {
		cond, err := r.condition(rule.Condition)
		if err != nil {
			return orchestration.RoutingDecision{}, &orchestration.RoutingError{
				FromAgent: rule.FromAgent, ToAgent: rule.ToAgent, Msg: err.Error(),
			}
		}
		ok, err := cond.Eval(latest, vars)
		switch {
		case errors.Is(err, team.ErrUnresolved):
			slog.DebugContext(ctx, "handoff condition unresolved", "condition", rule.Condition, "error", err)
			continue
		case err != nil:
			return orchestration.RoutingDecision{}, &orchestration.RoutingError{
				FromAgent: rule.FromAgent, ToAgent: rule.ToAgent, Msg: err.Error(),
			}
		case !ok:
			continue
		}
		if !in.Team.HasAgent(rule.ToAgent) {
			return orchestration.RoutingDecision{}, &orchestration.RoutingError{
				FromAgent: rule.FromAgent, ToAgent: rule.ToAgent, Msg: "target is not in the team roster",
			}
		}
		return orchestration.Handoff(rule.ToAgent, fmt.Sprintf("rule %q matched", rule.Condition)), nil
	}

	if to := r.classify(ctx, *latest, in); to != "" {
		return orchestration.Handoff(to, "completion analyzer"), nil
	}

	switch in.Team.Behavior() {
	case team.AfterWorkTerminate:
		return orchestration.Complete(orchestration.ReasonAfterWork), nil
	case team.AfterWorkContinue:
		return orchestration.Continue(), nil
	default:
		return orchestration.Complete(orchestration.ReasonAwaitingUser), nil
	}
}

// classify asks the analyzer for a successor. Errors and answers outside
// the candidate set are treated as no opinion.
func (r *Router) classify(ctx context.Context, latest step.Step, in RouteInput) string {
	if r.analyzer == nil {
		return ""
	}
	candidates := make([]string, 0, len(in.Team.Agents))
	for _, name := range in.Team.AgentNames() {
		if name != in.ActiveAgent {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) == 0 {
		return ""
	}

	to, err := r.analyzer.Classify(ctx, latest, candidates)
	if err != nil {
		slog.WarnContext(ctx, "completion analyzer failed", "agent", in.ActiveAgent, "error", err)
		return ""
	}
	for _, c := range candidates {
		if c == to {
			return to
		}
	}
	if to != "" {
		slog.DebugContext(ctx, "completion analyzer named unknown agent", "agent", to)
	}
	return ""
}

func (r *Router) condition(raw string) (*team.Condition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.conditions[raw]; ok {
		return c, nil
	}
	c, err := team.ParseCondition(raw)
	if err != nil {
		return nil, err
	}
	r.conditions[raw] = c
	return c, nil
}
