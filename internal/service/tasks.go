package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	cfotel "github.com/Strob0t/AgentForge/internal/adapter/otel"
	"github.com/Strob0t/AgentForge/internal/config"
	"github.com/Strob0t/AgentForge/internal/domain"
	"github.com/Strob0t/AgentForge/internal/domain/event"
	"github.com/Strob0t/AgentForge/internal/domain/orchestration"
	"github.com/Strob0t/AgentForge/internal/domain/plan"
	"github.com/Strob0t/AgentForge/internal/domain/step"
	"github.com/Strob0t/AgentForge/internal/domain/team"
	"github.com/Strob0t/AgentForge/internal/logger"
	"github.com/Strob0t/AgentForge/internal/port/agent"
	"github.com/Strob0t/AgentForge/internal/port/eventstore"
	"github.com/Strob0t/AgentForge/internal/port/workspace"
)

// StartRequest starts a new task.
type StartRequest struct {
	Prompt     string            `json:"prompt"`
	StepMode   *bool             `json:"step_mode,omitempty"`   // overrides the configured default
	ResumeFrom string            `json:"resume_from,omitempty"` // seed history and plan from this task
	Context    map[string]string `json:"context,omitempty"`     // extra condition variables
}

// TaskInfo is a short listing entry.
type TaskInfo struct {
	TaskID      string               `json:"task_id"`
	Status      orchestration.Status `json:"status"`
	ActiveAgent string               `json:"active_agent"`
	RoundCount  int                  `json:"round_count"`
}

type taskRun struct {
	loop   *taskLoop
	cancel context.CancelCauseFunc
}

// TaskManager is the client boundary of the orchestrator: it starts task
// loops and forwards control signals to them.
type TaskManager struct {
	team       *team.Team
	agents     map[string]agent.Agent
	registry   *ToolRegistry
	validator  *Validator
	dispatcher *Dispatcher
	router     *Router
	ws         workspace.Workspace
	events     eventstore.Store
	metrics    *cfotel.Metrics
	cfg        config.Orchestrator
	onStart    []func(taskID string, mux *Multiplexer)

	base       context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	mu    sync.RWMutex
	tasks map[string]*taskRun
}

// NewTaskManager creates a TaskManager. Every roster member of tm must have
// an agent in agents.
func NewTaskManager(
	tm *team.Team,
	agents []agent.Agent,
	registry *ToolRegistry,
	dispatcher *Dispatcher,
	router *Router,
	ws workspace.Workspace,
	cfg config.Orchestrator,
) (*TaskManager, error) {
	if err := tm.Validate(); err != nil {
		return nil, fmt.Errorf("team %q: %w", tm.Name, err)
	}
	byName := make(map[string]agent.Agent, len(agents))
	for _, a := range agents {
		byName[a.Name()] = a
	}
	for _, name := range tm.AgentNames() {
		if _, ok := byName[name]; !ok {
			return nil, fmt.Errorf("team %q: no agent implementation for %q", tm.Name, name)
		}
	}

	base, cancel := context.WithCancel(context.Background())
	return &TaskManager{
		team:       tm,
		agents:     byName,
		registry:   registry,
		validator:  NewValidator(registry),
		dispatcher: dispatcher,
		router:     router,
		ws:         ws,
		cfg:        cfg,
		base:       base,
		baseCancel: cancel,
		tasks:      make(map[string]*taskRun),
	}, nil
}

// SetEventStore sets the audit log for execution events.
func (m *TaskManager) SetEventStore(s eventstore.Store) { m.events = s }

// SetMetrics attaches metric instruments.
func (m *TaskManager) SetMetrics(metrics *cfotel.Metrics) { m.metrics = metrics }

// OnTaskStart registers a hook called with the task's multiplexer before
// the loop starts, so the hook sees every item.
func (m *TaskManager) OnTaskStart(fn func(taskID string, mux *Multiplexer)) {
	m.onStart = append(m.onStart, fn)
}

// Team returns the team shared by all tasks.
func (m *TaskManager) Team() *team.Team { return m.team }

// StartTask creates a task and starts its loop in the background.
func (m *TaskManager) StartTask(ctx context.Context, req StartRequest) (string, error) {
	if req.Prompt == "" && req.ResumeFrom == "" {
		return "", fmt.Errorf("%w: prompt is required", domain.ErrValidation)
	}

	var (
		history []step.Step
		tasks   []plan.Task
	)
	if req.ResumeFrom != "" {
		var err error
		history, err = m.ws.LoadHistory(ctx, req.ResumeFrom)
		if err != nil {
			return "", fmt.Errorf("resume %s: %w", req.ResumeFrom, err)
		}
		if len(history) == 0 {
			return "", fmt.Errorf("resume %s: %w", req.ResumeFrom, domain.ErrNotFound)
		}
		if err := step.CheckCorrelation(history); err != nil {
			return "", fmt.Errorf("resume %s: %w", req.ResumeFrom, err)
		}
		tasks, err = m.ws.LoadPlan(ctx, req.ResumeFrom)
		if err != nil {
			return "", fmt.Errorf("resume %s: %w", req.ResumeFrom, err)
		}
	}

	id := uuid.NewString()

	// Seeded history is copied into the new task's workspace so that the
	// new task can itself be resumed later.
	for _, s := range history {
		if err := m.ws.AppendHistory(ctx, id, s); err != nil {
			return "", fmt.Errorf("seed history: %w", err)
		}
	}

	stepMode := m.cfg.StepMode
	if req.StepMode != nil {
		stepMode = *req.StepMode
	}
	maxRounds := m.cfg.MaxRounds
	if m.team.MaxRounds > 0 {
		maxRounds = m.team.MaxRounds
	}
	token := m.cfg.TerminationToken
	if m.team.TerminationToken != "" {
		token = m.team.TerminationToken
	}

	active := m.team.Initial()
	if i := step.LastByAgent(history); i >= 0 && m.team.HasAgent(history[i].AgentName) {
		active = history[i].AgentName
	}

	plans := NewPlanStore(tasks)
	loop := &taskLoop{
		taskID:     id,
		team:       m.team,
		agents:     m.agents,
		router:     m.router,
		validator:  m.validator,
		dispatcher: m.dispatcher.WithLocal(plans.Handlers()),
		tools:      m.registry.List(),
		plans:      plans,
		ws:         m.ws,
		events:     m.events,
		mux:        NewMultiplexer(id, m.cfg.StreamBuffer),
		ic:         NewInterruptController(stepMode),
		metrics:    m.metrics,
		cfg: loopConfig{
			MaxRounds:        maxRounds,
			TerminationToken: token,
			StepMode:         stepMode,
			ResumedFrom:      req.ResumeFrom,
		},
		vars:  req.Context,
		state: orchestration.NewTaskState(id, active, history, plan.Clone(tasks)),
		done:  make(chan struct{}),
	}

	taskCtx, cancel := context.WithCancelCause(logger.WithTaskID(m.base, id))
	if rid := logger.RequestID(ctx); rid != "" {
		taskCtx = logger.WithRequestID(taskCtx, rid)
	}

	m.mu.Lock()
	m.tasks[id] = &taskRun{loop: loop, cancel: cancel}
	m.mu.Unlock()

	for _, fn := range m.onStart {
		fn(id, loop.mux)
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel(nil)
		_ = loop.run(taskCtx, req.Prompt)
		m.scheduleEviction(id)
	}()

	return id, nil
}

func (m *TaskManager) scheduleEviction(id string) {
	if m.cfg.TaskRetention <= 0 {
		return
	}
	time.AfterFunc(m.cfg.TaskRetention, func() {
		m.mu.Lock()
		delete(m.tasks, id)
		m.mu.Unlock()
	})
}

func (m *TaskManager) get(id string) (*taskRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, domain.ErrNotFound)
	}
	return r, nil
}

// live returns the run for id, or ErrConflict when it already finished.
func (m *TaskManager) live(id string) (*taskRun, error) {
	r, err := m.get(id)
	if err != nil {
		return nil, err
	}
	select {
	case <-r.loop.done:
		return nil, fmt.Errorf("task %s already finished: %w", id, domain.ErrConflict)
	default:
		return r, nil
	}
}

// Step lets a paused task run until it pauses again or terminates. A
// non-empty input is delivered as an interrupt, which also releases the
// pause. The returned channel
// yields every item of that stretch and is closed at its end.
func (m *TaskManager) Step(ctx context.Context, id, input string) (<-chan Item, error) {
	r, err := m.live(id)
	if err != nil {
		return nil, err
	}

	sub := r.loop.mux.Subscribe(FilterAll)
	// A queued interrupt already releases the pause for exactly one round,
	// so input must not also grant a step credit.
	if input != "" {
		r.loop.ic.Interrupt(input)
	} else {
		r.loop.ic.Step()
	}

	out := make(chan Item)
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			select {
			case it, ok := <-sub.Items():
				if !ok {
					return
				}
				select {
				case out <- it:
				case <-ctx.Done():
					return
				}
				if endsStretch(it) {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func endsStretch(it Item) bool {
	if it.Event == nil {
		return false
	}
	if it.Event.Type.IsTerminal() {
		return true
	}
	if it.Event.Type != event.TypeStatusChange {
		return false
	}
	var p event.StatusChangePayload
	if err := it.Event.Decode(&p); err != nil {
		return false
	}
	return p.To == string(orchestration.StatusPaused)
}

// Interrupt delivers a user message to a running or paused task.
func (m *TaskManager) Interrupt(_ context.Context, id, message string) error {
	if message == "" {
		return fmt.Errorf("%w: message is required", domain.ErrValidation)
	}
	r, err := m.live(id)
	if err != nil {
		return err
	}
	r.loop.ic.Interrupt(message)
	return nil
}

// Pause holds the task after its current round.
func (m *TaskManager) Pause(_ context.Context, id string) error {
	r, err := m.live(id)
	if err != nil {
		return err
	}
	r.loop.ic.Pause()
	return nil
}

// Resume releases a hold and leaves step mode.
func (m *TaskManager) Resume(_ context.Context, id string) error {
	r, err := m.live(id)
	if err != nil {
		return err
	}
	r.loop.ic.Resume()
	return nil
}

// Cancel fails the task. In-flight tool calls still complete.
func (m *TaskManager) Cancel(ctx context.Context, id, reason string) error {
	r, err := m.live(id)
	if err != nil {
		return err
	}
	if reason == "" {
		reason = "cancelled by caller"
	}
	slog.InfoContext(ctx, "cancelling task", "task_id", id, "reason", reason)
	r.cancel(fmt.Errorf("%w: %s", orchestration.ErrTaskCancelled, reason))
	return nil
}

// Subscribe attaches a live subscriber to the task stream.
func (m *TaskManager) Subscribe(id string, filter Filter) (*Subscription, error) {
	r, err := m.get(id)
	if err != nil {
		return nil, err
	}
	return r.loop.mux.Subscribe(filter), nil
}

// State returns the task state. Evicted tasks are served from the last
// persisted snapshot.
func (m *TaskManager) State(ctx context.Context, id string) (orchestration.TaskState, error) {
	if r, err := m.get(id); err == nil {
		return r.loop.snapshot(), nil
	}
	snap, err := m.ws.LoadSnapshot(ctx, id)
	if err != nil {
		return orchestration.TaskState{}, fmt.Errorf("task %s: %w", id, err)
	}
	return *snap, nil
}

// Wait blocks until the task finishes and returns its terminal error. An
// evicted task is answered from its snapshot; a failed one then reports its
// recorded reason.
func (m *TaskManager) Wait(ctx context.Context, id string) (orchestration.TaskState, error) {
	r, err := m.get(id)
	if err != nil {
		snap, serr := m.ws.LoadSnapshot(ctx, id)
		if serr != nil {
			return orchestration.TaskState{}, err
		}
		if snap.Status == orchestration.StatusFailed {
			return *snap, fmt.Errorf("task %s failed: %s", id, snap.Reason)
		}
		return *snap, nil
	}
	select {
	case <-r.loop.done:
		return r.loop.snapshot(), r.loop.result()
	case <-ctx.Done():
		return orchestration.TaskState{}, ctx.Err()
	}
}

// Events reads the audit log of a task.
func (m *TaskManager) Events(ctx context.Context, id string, filter eventstore.Filter) ([]event.ExecutionEvent, error) {
	if m.events == nil {
		return nil, errors.New("event store not configured")
	}
	return m.events.LoadByTask(ctx, id, filter)
}

// List returns the tasks still held in memory, ordered by ID.
func (m *TaskManager) List() []TaskInfo {
	m.mu.RLock()
	runs := make([]*taskRun, 0, len(m.tasks))
	for _, r := range m.tasks {
		runs = append(runs, r)
	}
	m.mu.RUnlock()

	out := make([]TaskInfo, 0, len(runs))
	for _, r := range runs {
		s := r.loop.snapshot()
		out = append(out, TaskInfo{
			TaskID:      s.TaskID,
			Status:      s.Status,
			ActiveAgent: s.ActiveAgent,
			RoundCount:  s.RoundCount,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TaskID < out[j].TaskID })
	return out
}

// Shutdown cancels every running task and waits for the loops to exit.
func (m *TaskManager) Shutdown(ctx context.Context) error {
	m.mu.RLock()
	for _, r := range m.tasks {
		r.cancel(fmt.Errorf("%w: server shutting down", orchestration.ErrTaskCancelled))
	}
	m.mu.RUnlock()
	m.baseCancel()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
