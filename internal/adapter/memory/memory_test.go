package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/Strob0t/AgentForge/internal/domain"
	"github.com/Strob0t/AgentForge/internal/domain/event"
	"github.com/Strob0t/AgentForge/internal/domain/orchestration"
	"github.com/Strob0t/AgentForge/internal/domain/plan"
	"github.com/Strob0t/AgentForge/internal/domain/step"
	"github.com/Strob0t/AgentForge/internal/port/eventstore"
)

func TestWorkspace_History(t *testing.T) {
	ws := NewWorkspace()
	ctx := context.Background()

	a := step.New(step.UserAgent, step.TextPart("hi"))
	b := step.New("writer", step.TextPart("hello"))
	for _, s := range []step.Step{a, b} {
		if err := ws.AppendHistory(ctx, "t1", s); err != nil {
			t.Fatal(err)
		}
	}
	if err := ws.AppendHistory(ctx, "t1", a); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("duplicate append err = %v, want ErrConflict", err)
	}

	got, _ := ws.LoadHistory(ctx, "t1")
	if len(got) != 2 || got[0].ID != a.ID || got[1].ID != b.ID {
		t.Fatalf("history = %+v", got)
	}

	// Returned slices are copies.
	got[0].AgentName = "mutated"
	again, _ := ws.LoadHistory(ctx, "t1")
	if again[0].AgentName != step.UserAgent {
		t.Error("LoadHistory must return a copy")
	}
}

func TestWorkspace_PlanAndSnapshot(t *testing.T) {
	ws := NewWorkspace()
	ctx := context.Background()

	tasks := []plan.Task{{ID: "1", Description: "draft", Status: plan.StatusPending}}
	if err := ws.SavePlan(ctx, "t1", tasks); err != nil {
		t.Fatal(err)
	}
	tasks[0].Status = plan.StatusCompleted
	got, _ := ws.LoadPlan(ctx, "t1")
	if got[0].Status != plan.StatusPending {
		t.Error("SavePlan must store a copy")
	}

	if _, err := ws.LoadSnapshot(ctx, "t1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("LoadSnapshot err = %v, want ErrNotFound", err)
	}
	st := orchestration.NewTaskState("t1", "writer", nil, nil)
	if err := ws.SaveSnapshot(ctx, *st); err != nil {
		t.Fatal(err)
	}
	snap, err := ws.LoadSnapshot(ctx, "t1")
	if err != nil || snap.ActiveAgent != "writer" {
		t.Fatalf("LoadSnapshot = %+v, %v", snap, err)
	}
}

func TestEventStore_Filter(t *testing.T) {
	store := NewEventStore()
	ctx := context.Background()

	types := []event.Type{event.TypeTaskStart, event.TypeToolCall, event.TypeToolResult, event.TypeTaskComplete}
	for i, typ := range types {
		ev, _ := event.New("t1", typ, "", 0, nil)
		ev.Seq = uint64(i + 1)
		if err := store.Append(ctx, &ev); err != nil {
			t.Fatal(err)
		}
	}

	tests := []struct {
		name   string
		filter eventstore.Filter
		want   []event.Type
	}{
		{"all", eventstore.Filter{}, types},
		{"after seq", eventstore.Filter{AfterSeq: 2}, types[2:]},
		{"by type", eventstore.Filter{Types: []event.Type{event.TypeToolCall}}, types[1:2]},
		{"limit", eventstore.Filter{Limit: 1}, types[:1]},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.LoadByTask(ctx, "t1", tt.filter)
			if err != nil {
				t.Fatal(err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].Type != tt.want[i] {
					t.Errorf("[%d] = %s, want %s", i, got[i].Type, tt.want[i])
				}
			}
		})
	}
}
