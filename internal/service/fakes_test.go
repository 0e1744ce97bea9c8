package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/Strob0t/AgentForge/internal/adapter/memory"
	"github.com/Strob0t/AgentForge/internal/config"
	"github.com/Strob0t/AgentForge/internal/domain/orchestration"
	"github.com/Strob0t/AgentForge/internal/domain/step"
	"github.com/Strob0t/AgentForge/internal/domain/team"
	"github.com/Strob0t/AgentForge/internal/port/agent"
	"github.com/Strob0t/AgentForge/internal/port/analyzer"
	"github.com/Strob0t/AgentForge/internal/port/toolexec"
	"github.com/Strob0t/AgentForge/internal/service"
)

// --- Agents ---

// turn produces one agent step. results is nil for plain invocations.
type turn func(ctx context.Context, req agent.Request, results []step.ToolResult, sink agent.Sink) (step.Step, error)

func say(text string) turn {
	return func(_ context.Context, _ agent.Request, _ []step.ToolResult, sink agent.Sink) (step.Step, error) {
		sink.Chunk(text)
		return step.New("", step.TextPart(text)), nil
	}
}

func callTools(calls ...step.ToolCall) turn {
	return func(context.Context, agent.Request, []step.ToolResult, agent.Sink) (step.Step, error) {
		parts := make([]step.Part, len(calls))
		for i, c := range calls {
			parts[i] = step.CallPart(c)
		}
		return step.New("", parts...), nil
	}
}

// blockUntilCancelled streams a partial chunk, signals started and then
// waits for the invocation to be cancelled.
func blockUntilCancelled(started chan<- struct{}) turn {
	return func(ctx context.Context, _ agent.Request, _ []step.ToolResult, sink agent.Sink) (step.Step, error) {
		sink.Chunk("partial")
		close(started)
		<-ctx.Done()
		return step.Step{}, ctx.Err()
	}
}

func fail(err error) turn {
	return func(context.Context, agent.Request, []step.ToolResult, agent.Sink) (step.Step, error) {
		return step.Step{}, err
	}
}

type invocation struct {
	req     agent.Request
	results []step.ToolResult
}

// scriptedAgent plays its turns in order, then keeps saying "idle".
type scriptedAgent struct {
	name string

	mu    sync.Mutex
	turns []turn
	seen  []invocation
}

func newAgent(name string, turns ...turn) *scriptedAgent {
	return &scriptedAgent{name: name, turns: turns}
}

func (a *scriptedAgent) Name() string { return a.name }

func (a *scriptedAgent) Invoke(ctx context.Context, req agent.Request, sink agent.Sink) (step.Step, error) {
	return a.next(ctx, req, nil, sink)
}

func (a *scriptedAgent) InvokeWithToolResults(ctx context.Context, req agent.Request, results []step.ToolResult, sink agent.Sink) (step.Step, error) {
	return a.next(ctx, req, results, sink)
}

func (a *scriptedAgent) next(ctx context.Context, req agent.Request, results []step.ToolResult, sink agent.Sink) (step.Step, error) {
	a.mu.Lock()
	a.seen = append(a.seen, invocation{req: req, results: results})
	var t turn
	if len(a.turns) > 0 {
		t = a.turns[0]
		a.turns = a.turns[1:]
	}
	a.mu.Unlock()
	if t == nil {
		t = say("idle")
	}
	return t(ctx, req, results, sink)
}

func (a *scriptedAgent) invocations() []invocation {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]invocation(nil), a.seen...)
}

// --- Tool executors ---

// fakeExecutor records calls and answers through fn.
type fakeExecutor struct {
	mu    sync.Mutex
	calls []step.ToolCall
	fn    func(ctx context.Context, tool string, args map[string]any) (toolexec.Output, error)
}

func (e *fakeExecutor) Execute(ctx context.Context, tool string, args map[string]any) (toolexec.Output, error) {
	e.mu.Lock()
	e.calls = append(e.calls, step.ToolCall{ToolName: tool, Args: args})
	fn := e.fn
	e.mu.Unlock()
	if fn == nil {
		return toolexec.Output{Output: "ok"}, nil
	}
	return fn(ctx, tool, args)
}

func (e *fakeExecutor) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

// --- Tool schemas ---

func searchTool() mcp.Tool {
	return mcp.NewTool("search",
		mcp.WithDescription("Search the corpus"),
		mcp.WithString("query", mcp.Required()),
	)
}

func writeFileTool() mcp.Tool {
	return mcp.NewTool("write_file",
		mcp.WithDescription("Write a file"),
		mcp.WithString("path", mcp.Required()),
		mcp.WithString("content", mcp.Required()),
	)
}

// --- Harness ---

type harness struct {
	tasks    *service.TaskManager
	ws       *memory.Workspace
	events   *memory.EventStore
	executor *fakeExecutor
}

type harnessOpts struct {
	team     *team.Team
	agents   []agent.Agent
	analyzer analyzer.CompletionAnalyzer
	cfg      config.Orchestrator
	tools    []mcp.Tool
	executor *fakeExecutor
}

func defaultOrchestrator() config.Orchestrator {
	return config.Orchestrator{
		MaxRounds:        10,
		ToolTimeout:      2 * time.Second,
		MaxParallelTools: 4,
		StreamBuffer:     256,
	}
}

func newHarness(t *testing.T, o harnessOpts) *harness {
	t.Helper()
	if o.cfg.MaxRounds == 0 {
		o.cfg = defaultOrchestrator()
	}
	if o.executor == nil {
		o.executor = &fakeExecutor{}
	}

	registry := service.NewToolRegistry()
	if err := registry.Register(service.PlanTools()...); err != nil {
		t.Fatal(err)
	}
	if err := registry.Register(o.tools...); err != nil {
		t.Fatal(err)
	}
	registry.Seal()

	dispatcher := service.NewDispatcher(o.cfg.ToolTimeout, o.cfg.MaxParallelTools)
	names := make([]string, len(o.tools))
	for i, tl := range o.tools {
		names[i] = tl.Name
	}
	dispatcher.Mount(&service.Surface{Name: "fake", Executor: o.executor}, names...)

	ws := memory.NewWorkspace()
	events := memory.NewEventStore()
	tasks, err := service.NewTaskManager(o.team, o.agents, registry, dispatcher, service.NewRouter(o.analyzer), ws, o.cfg)
	if err != nil {
		t.Fatalf("NewTaskManager: %v", err)
	}
	tasks.SetEventStore(events)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tasks.Shutdown(ctx)
	})
	return &harness{tasks: tasks, ws: ws, events: events, executor: o.executor}
}

func (h *harness) start(t *testing.T, req service.StartRequest) string {
	t.Helper()
	id, err := h.tasks.StartTask(context.Background(), req)
	if err != nil {
		t.Fatalf("StartTask: %v", err)
	}
	return id
}

func (h *harness) wait(t *testing.T, id string) (orchestration.TaskState, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := h.tasks.Wait(ctx, id)
	if ctx.Err() != nil {
		t.Fatalf("task %s did not finish", id)
	}
	return st, err
}

func (h *harness) waitStatus(t *testing.T, id string, want orchestration.Status) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if st, err := h.tasks.State(context.Background(), id); err == nil && st.Status == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("task %s never reached %s", id, want)
}

func soloTeam(name string, behavior team.AfterWorkBehavior) *team.Team {
	return &team.Team{Name: "solo", Agents: []team.Member{{Name: name}}, AfterWork: behavior}
}

// authors lists the agent names of history in order.
func authors(history []step.Step) []string {
	out := make([]string, len(history))
	for i := range history {
		out[i] = history[i].AgentName
	}
	return out
}

func assertAuthors(t *testing.T, history []step.Step, want ...string) {
	t.Helper()
	got := authors(history)
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("history authors = %v, want %v", got, want)
	}
}
