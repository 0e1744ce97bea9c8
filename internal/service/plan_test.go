package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/Strob0t/AgentForge/internal/domain"
	"github.com/Strob0t/AgentForge/internal/domain/plan"
	"github.com/Strob0t/AgentForge/internal/service"
)

func TestPlanStoreAddAndUpdate(t *testing.T) {
	p := service.NewPlanStore(nil)

	first, err := p.Add("write tests", nil)
	if err != nil {
		t.Fatal(err)
	}
	second, _ := p.Add("fix bugs", nil)
	if first.ID != "1" || second.ID != "2" || first.Status != plan.StatusPending {
		t.Fatalf("added %+v, %+v", first, second)
	}
	if !p.TakeDirty() || p.TakeDirty() {
		t.Error("TakeDirty should report one change then reset")
	}

	got, err := p.Update("1", plan.StatusCompleted, "")
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != plan.StatusCompleted || got.Description != "write tests" {
		t.Errorf("updated = %+v", got)
	}

	s := p.Summary()
	if s.Total != 2 || s.Completed != 1 || s.Pending != 1 || s.AllCompleted {
		t.Errorf("summary = %+v", s)
	}
}

func TestPlanStoreErrors(t *testing.T) {
	p := service.NewPlanStore(nil)
	if _, err := p.Add("", nil); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("empty description: err = %v", err)
	}
	if _, err := p.Update("9", plan.StatusCompleted, ""); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown id: err = %v", err)
	}
	_, _ = p.Add("x", nil)
	if _, err := p.Update("1", "done", ""); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("bad status: err = %v", err)
	}
}

func TestPlanStoreRejectsStatusRegression(t *testing.T) {
	p := service.NewPlanStore(nil)
	_, _ = p.Add("ship it", nil)
	if _, err := p.Update("1", plan.StatusInProgress, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := p.Update("1", plan.StatusCompleted, ""); err != nil {
		t.Fatal(err)
	}
	_ = p.TakeDirty()

	if _, err := p.Update("1", plan.StatusPending, ""); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("completed -> pending: err = %v, want ErrValidation", err)
	}
	if p.TakeDirty() {
		t.Error("rejected update marked the plan dirty")
	}
	if got := p.List(); got[0].Status != plan.StatusCompleted {
		t.Errorf("status = %s after rejected update", got[0].Status)
	}
	// Re-asserting the current status and editing the text are still fine.
	if _, err := p.Update("1", plan.StatusCompleted, "shipped"); err != nil {
		t.Errorf("same status: %v", err)
	}
}

func TestPlanStoreContinuesIDsFromSeed(t *testing.T) {
	p := service.NewPlanStore([]plan.Task{
		{ID: "1", Description: "a", Status: plan.StatusCompleted},
		{ID: "4", Description: "b", Status: plan.StatusPending},
	})
	got, err := p.Add("c", nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "5" {
		t.Errorf("next id = %q, want 5", got.ID)
	}
	if !p.TakeDirty() {
		t.Error("add should mark the plan dirty")
	}
}

func TestPlanHandlers(t *testing.T) {
	p := service.NewPlanStore(nil)
	h := p.Handlers()
	ctx := context.Background()

	res, err := h[service.ToolPlanAdd](ctx, map[string]any{"description": "draft docs"})
	if err != nil {
		t.Fatal(err)
	}
	task, ok := res.(plan.Task)
	if !ok || task.ID != "1" {
		t.Fatalf("add result = %#v", res)
	}

	if _, err := h[service.ToolPlanUpdate](ctx, map[string]any{"task_id": "1", "status": "in_progress"}); err != nil {
		t.Fatal(err)
	}

	res, err = h[service.ToolPlanList](ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	m := res.(map[string]any)
	summary := m["summary"].(plan.Summary)
	if summary.InProgress != 1 || summary.Total != 1 {
		t.Errorf("summary = %+v", summary)
	}

	if _, err := h[service.ToolPlanUpdate](ctx, map[string]any{"task_id": "7"}); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("unknown task: err = %v", err)
	}
}
