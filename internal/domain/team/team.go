// Package team defines a team of cooperating agents and the handoff rules
// that move control between them.
package team

import (
	"errors"
	"fmt"
	"sort"

	"github.com/Strob0t/AgentForge/internal/domain/step"
)

// AfterWorkBehavior decides what happens when an agent finishes a turn and
// neither a rule nor the completion analyzer selects a successor.
type AfterWorkBehavior string

const (
	AfterWorkReturnToUser AfterWorkBehavior = "return_to_user"
	AfterWorkTerminate    AfterWorkBehavior = "terminate"
	AfterWorkContinue     AfterWorkBehavior = "continue"
)

// IsValid reports whether b is a known behaviour. Empty means the default.
func (b AfterWorkBehavior) IsValid() bool {
	switch b {
	case "", AfterWorkReturnToUser, AfterWorkTerminate, AfterWorkContinue:
		return true
	}
	return false
}

// DefaultPriority applies to rules that omit a priority.
const DefaultPriority = 1

// Member is one agent in the roster. Model and SystemPrompt configure the
// default chat agent; other agent implementations may ignore them.
type Member struct {
	Name         string `yaml:"name" json:"name"`
	Description  string `yaml:"description,omitempty" json:"description,omitempty"`
	Model        string `yaml:"model,omitempty" json:"model,omitempty"`
	SystemPrompt string `yaml:"system_prompt,omitempty" json:"system_prompt,omitempty"`
}

// HandoffRule moves control from FromAgent to ToAgent when Condition holds
// against the latest step. Higher priority is evaluated first; declaration
// order breaks ties.
type HandoffRule struct {
	FromAgent string `yaml:"from_agent" json:"from_agent"`
	ToAgent   string `yaml:"to_agent" json:"to_agent"`
	Condition string `yaml:"condition" json:"condition"`
	Priority  *int   `yaml:"priority,omitempty" json:"priority,omitempty"`
}

// EffectivePriority returns Priority, or DefaultPriority when unset. An
// explicit zero or negative priority is kept as given.
func (r *HandoffRule) EffectivePriority() int {
	if r.Priority == nil {
		return DefaultPriority
	}
	return *r.Priority
}

// Team is the static configuration shared by every task it runs.
type Team struct {
	Name             string            `yaml:"name" json:"name"`
	Agents           []Member          `yaml:"agents" json:"agents"`
	InitialAgent     string            `yaml:"initial_agent,omitempty" json:"initial_agent"`
	Rules            []HandoffRule     `yaml:"handoff_rules,omitempty" json:"handoff_rules"`
	AfterWork        AfterWorkBehavior `yaml:"after_work_behavior,omitempty" json:"after_work_behavior"`
	TerminationToken string            `yaml:"termination_token,omitempty" json:"termination_token,omitempty"`
	MaxRounds        int               `yaml:"max_rounds,omitempty" json:"max_rounds,omitempty"`
}

// Validate checks roster integrity, rule endpoints and rule conditions.
func (t *Team) Validate() error {
	if t.Name == "" {
		return errors.New("name is required")
	}
	if len(t.Agents) == 0 {
		return errors.New("at least one agent is required")
	}
	seen := make(map[string]struct{}, len(t.Agents))
	for i, a := range t.Agents {
		if a.Name == "" {
			return fmt.Errorf("agents[%d]: name is required", i)
		}
		if a.Name == step.UserAgent || a.Name == step.ToolAgent {
			return fmt.Errorf("agents[%d]: name %q is reserved", i, a.Name)
		}
		if _, dup := seen[a.Name]; dup {
			return fmt.Errorf("agents[%d]: duplicate name %q", i, a.Name)
		}
		seen[a.Name] = struct{}{}
	}
	if t.InitialAgent != "" && !t.HasAgent(t.InitialAgent) {
		return fmt.Errorf("initial_agent %q is not in the roster", t.InitialAgent)
	}
	if !t.AfterWork.IsValid() {
		return fmt.Errorf("invalid after_work_behavior %q", t.AfterWork)
	}
	if t.MaxRounds < 0 {
		return errors.New("max_rounds must be >= 0")
	}
	for i := range t.Rules {
		r := &t.Rules[i]
		if !t.HasAgent(r.FromAgent) {
			return fmt.Errorf("handoff_rules[%d]: from_agent %q is not in the roster", i, r.FromAgent)
		}
		if !t.HasAgent(r.ToAgent) {
			return fmt.Errorf("handoff_rules[%d]: to_agent %q is not in the roster", i, r.ToAgent)
		}
		if r.Condition == "" {
			return fmt.Errorf("handoff_rules[%d]: condition is required", i)
		}
		if _, err := ParseCondition(r.Condition); err != nil {
			return fmt.Errorf("handoff_rules[%d]: %w", i, err)
		}
	}
	return nil
}

// HasAgent reports whether name is in the roster.
func (t *Team) HasAgent(name string) bool {
	for _, a := range t.Agents {
		if a.Name == name {
			return true
		}
	}
	return false
}

// AgentNames returns the roster in declaration order.
func (t *Team) AgentNames() []string {
	out := make([]string, len(t.Agents))
	for i, a := range t.Agents {
		out[i] = a.Name
	}
	return out
}

// Initial returns the configured initial agent, or the first in the roster.
func (t *Team) Initial() string {
	if t.InitialAgent != "" {
		return t.InitialAgent
	}
	if len(t.Agents) > 0 {
		return t.Agents[0].Name
	}
	return ""
}

// Behavior returns the after-work behaviour with the default applied.
func (t *Team) Behavior() AfterWorkBehavior {
	if t.AfterWork == "" {
		return AfterWorkReturnToUser
	}
	return t.AfterWork
}

// RulesFrom returns the rules leaving agent, highest priority first.
// Rules with equal priority keep declaration order.
func (t *Team) RulesFrom(agent string) []HandoffRule {
	var out []HandoffRule
	for _, r := range t.Rules {
		if r.FromAgent == agent {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].EffectivePriority() > out[j].EffectivePriority()
	})
	return out
}
