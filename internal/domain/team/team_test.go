package team_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Strob0t/AgentForge/internal/domain/team"
)

func validTeam() team.Team {
	return team.Team{
		Name:   "docs",
		Agents: []team.Member{{Name: "writer"}, {Name: "reviewer"}},
		Rules: []team.HandoffRule{
			{FromAgent: "writer", ToAgent: "reviewer", Condition: "draft is complete"},
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*team.Team)
		wantErr string
	}{
		{"valid", func(*team.Team) {}, ""},
		{"missing name", func(tm *team.Team) { tm.Name = "" }, "name is required"},
		{"no agents", func(tm *team.Team) { tm.Agents = nil; tm.Rules = nil }, "at least one agent"},
		{"reserved name", func(tm *team.Team) { tm.Agents[0].Name = "user" }, "reserved"},
		{"duplicate agent", func(tm *team.Team) { tm.Agents[1].Name = "writer" }, "duplicate"},
		{"unknown initial", func(tm *team.Team) { tm.InitialAgent = "ghost" }, "initial_agent"},
		{"bad after work", func(tm *team.Team) { tm.AfterWork = "sleep" }, "after_work_behavior"},
		{"rule to stranger", func(tm *team.Team) { tm.Rules[0].ToAgent = "ghost" }, "to_agent"},
		{"rule from stranger", func(tm *team.Team) { tm.Rules[0].FromAgent = "ghost" }, "from_agent"},
		{"empty condition", func(tm *team.Team) { tm.Rules[0].Condition = "" }, "condition is required"},
		{"malformed template", func(tm *team.Team) { tm.Rules[0].Condition = "{{ .round" }, "malformed"},
		{"malformed regexp", func(tm *team.Team) { tm.Rules[0].Condition = "/([a-z/" }, "malformed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tm := validTeam()
			tt.mutate(&tm)
			err := tm.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestDefaults(t *testing.T) {
	tm := validTeam()
	if tm.Initial() != "writer" {
		t.Errorf("Initial() = %q", tm.Initial())
	}
	if tm.Behavior() != team.AfterWorkReturnToUser {
		t.Errorf("Behavior() = %q", tm.Behavior())
	}
	if tm.Rules[0].EffectivePriority() != team.DefaultPriority {
		t.Errorf("EffectivePriority() = %d", tm.Rules[0].EffectivePriority())
	}
}

func priority(n int) *int { return &n }

func TestRulesFromOrdersByPriorityThenDeclaration(t *testing.T) {
	tm := team.Team{Rules: []team.HandoffRule{
		{FromAgent: "a", ToAgent: "x", Condition: "always", Priority: priority(1)},
		{FromAgent: "b", ToAgent: "x", Condition: "always", Priority: priority(9)},
		{FromAgent: "a", ToAgent: "y", Condition: "always", Priority: priority(2)},
		{FromAgent: "a", ToAgent: "z", Condition: "always"},
		{FromAgent: "a", ToAgent: "w", Condition: "always", Priority: priority(2)},
	}}

	got := tm.RulesFrom("a")
	want := []string{"y", "w", "x", "z"}
	if len(got) != len(want) {
		t.Fatalf("RulesFrom = %+v", got)
	}
	for i := range want {
		if got[i].ToAgent != want[i] {
			t.Errorf("rule %d -> %s, want %s", i, got[i].ToAgent, want[i])
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "team.yaml")
	content := `
name: docs
agents:
  - name: writer
    description: drafts documents
  - name: reviewer
initial_agent: writer
after_work_behavior: terminate
termination_token: TERMINATE
max_rounds: 12
handoff_rules:
  - from_agent: writer
    to_agent: reviewer
    condition: draft is complete
    priority: 2
  - from_agent: reviewer
    to_agent: writer
    condition: "/needs (changes|work)/"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	tm, err := team.LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if tm.Name != "docs" || len(tm.Agents) != 2 || tm.MaxRounds != 12 {
		t.Fatalf("unexpected team %+v", tm)
	}
	if tm.Behavior() != team.AfterWorkTerminate || tm.TerminationToken != "TERMINATE" {
		t.Fatalf("unexpected team %+v", tm)
	}
	if len(tm.Rules) != 2 || tm.Rules[0].EffectivePriority() != 2 {
		t.Fatalf("rules = %+v", tm.Rules)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := team.Parse([]byte(`
name: docs
agents: [{name: writer}]
handoff_rules:
  - from_agent: writer
    to: writer
    condition: always
`))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	if _, err := team.LoadFromFile(filepath.Join(t.TempDir(), "none.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestExplicitZeroPriorityIsNotDefaulted(t *testing.T) {
	tm, err := team.Parse([]byte(`
name: docs
agents:
  - name: writer
  - name: reviewer
handoff_rules:
  - from_agent: writer
    to_agent: reviewer
    condition: always
    priority: 0
  - from_agent: writer
    to_agent: reviewer
    condition: "/review/"
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if tm.Rules[0].Priority == nil || tm.Rules[0].EffectivePriority() != 0 {
		t.Fatalf("explicit priority 0 = %v", tm.Rules[0].Priority)
	}
	if tm.Rules[1].Priority != nil || tm.Rules[1].EffectivePriority() != team.DefaultPriority {
		t.Fatalf("omitted priority = %v", tm.Rules[1].Priority)
	}

	got := tm.RulesFrom("writer")
	if got[0].Condition != "/review/" || got[1].Condition != "always" {
		t.Errorf("order = %q, %q; the default-priority rule must rank above priority 0", got[0].Condition, got[1].Condition)
	}
}
