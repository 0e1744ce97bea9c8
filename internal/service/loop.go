package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	cfotel "github.com/Strob0t/AgentForge/internal/adapter/otel"
	"github.com/Strob0t/AgentForge/internal/domain/event"
	"github.com/Strob0t/AgentForge/internal/domain/orchestration"
	"github.com/Strob0t/AgentForge/internal/domain/step"
	"github.com/Strob0t/AgentForge/internal/domain/team"
	"github.com/Strob0t/AgentForge/internal/domain/tool"
	"github.com/Strob0t/AgentForge/internal/port/agent"
	"github.com/Strob0t/AgentForge/internal/port/eventstore"
	"github.com/Strob0t/AgentForge/internal/port/workspace"
)

// loopConfig holds the per-task limits resolved from team and config.
type loopConfig struct {
	MaxRounds        int
	TerminationToken string
	StepMode         bool
	ResumedFrom      string
}

// taskLoop drives one task from start to a terminal state. Only the loop
// goroutine mutates state; readers take mu.
type taskLoop struct {
	taskID     string
	team       *team.Team
	agents     map[string]agent.Agent
	router     *Router
	validator  *Validator
	dispatcher *Dispatcher
	tools      []mcp.Tool
	plans      *PlanStore
	ws         workspace.Workspace
	events     eventstore.Store
	mux        *Multiplexer
	ic         *InterruptController
	metrics    *cfotel.Metrics
	cfg        loopConfig
	vars       map[string]string

	mu    sync.Mutex
	state *orchestration.TaskState
	err   error
	done  chan struct{}
}

// snapshot returns a copy of the task state safe to hand out.
func (l *taskLoop) snapshot() orchestration.TaskState {
	l.mu.Lock()
	defer l.mu.Unlock()
	snap := l.state.Snapshot()
	snap.Plan = l.plans.List()
	return snap
}

// result returns the terminal error once done is closed.
func (l *taskLoop) result() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.err
}

// run executes the task. prompt may be empty when resuming a history that
// already ends in a user step.
func (l *taskLoop) run(ctx context.Context, prompt string) (err error) {
	start := time.Now()
	ctx, span := cfotel.StartTaskSpan(ctx, l.taskID, l.team.Name)
	defer span.End()
	defer func() { l.finish(ctx, start, err) }()

	if l.metrics != nil {
		l.metrics.TasksStarted.Add(ctx, 1, metric.WithAttributes(attribute.String("team", l.team.Name)))
	}
	l.emit(ctx, event.TypeTaskStart, "", event.TaskStartPayload{
		Team:         l.team.Name,
		InitialAgent: l.state.ActiveAgent,
		MaxRounds:    l.cfg.MaxRounds,
		StepMode:     l.cfg.StepMode,
		ResumedFrom:  l.cfg.ResumedFrom,
	})
	slog.InfoContext(ctx, "task started", "team", l.team.Name, "agent", l.state.ActiveAgent, "step_mode", l.cfg.StepMode)

	if prompt != "" {
		if err := l.appendStep(ctx, step.New(step.UserAgent, step.TextPart(prompt))); err != nil {
			return err
		}
	}
	if l.ic.shouldPause() {
		if err := l.pause(ctx, "step mode"); err != nil {
			return err
		}
	}

	for {
		if ctx.Err() != nil {
			return l.cancelled(ctx)
		}
		if err := l.drainInterrupts(ctx); err != nil {
			return err
		}

		decision, err := l.router.Decide(ctx, RouteInput{
			History:     l.state.History,
			Team:        l.team,
			ActiveAgent: l.state.ActiveAgent,
			Round:       l.state.RoundCount,
			Plan:        l.plans.Summary(),
			Context:     l.vars,
		})
		if err != nil {
			return err
		}
		switch decision.Kind {
		case orchestration.DecisionComplete:
			return l.complete(ctx, decision.Reason)
		case orchestration.DecisionHandoff:
			l.handoff(ctx, decision)
		}

		if l.state.RoundCount+1 > l.cfg.MaxRounds {
			return fmt.Errorf("%w: limit %d", orchestration.ErrRoundLimitExceeded, l.cfg.MaxRounds)
		}

		out, err := l.round(ctx)
		if err != nil {
			return err
		}
		if out != nil && l.cfg.TerminationToken != "" && strings.Contains(out.Text(), l.cfg.TerminationToken) {
			return l.complete(ctx, orchestration.ReasonTerminationToken)
		}

		if l.ic.shouldPause() {
			if err := l.pause(ctx, "awaiting step"); err != nil {
				return err
			}
		}
	}
}

func (l *taskLoop) handoff(ctx context.Context, d orchestration.RoutingDecision) {
	from := l.state.ActiveAgent
	l.mu.Lock()
	l.state.ActiveAgent = d.ToAgent
	l.mu.Unlock()

	if l.metrics != nil {
		l.metrics.Handoffs.Add(ctx, 1, metric.WithAttributes(
			attribute.String("from", from),
			attribute.String("to", d.ToAgent),
		))
	}
	l.emit(ctx, event.TypeHandoff, d.ToAgent, event.HandoffPayload{From: from, To: d.ToAgent, Reason: d.Reason})
	slog.InfoContext(ctx, "handoff", "from", from, "to", d.ToAgent, "reason", d.Reason)
}

// round invokes the active agent once and processes its tool calls. It
// returns the agent's step, or nil when the invocation was interrupted.
func (l *taskLoop) round(ctx context.Context) (*step.Step, error) {
	active := l.state.ActiveAgent
	ag, ok := l.agents[active]
	if !ok {
		return nil, &orchestration.RoutingError{ToAgent: active, Msg: "no agent registered under this name"}
	}

	l.mu.Lock()
	round := l.state.BeginRound()
	l.mu.Unlock()

	ctx, span := cfotel.StartRoundSpan(ctx, round, active)
	defer span.End()
	if l.metrics != nil {
		l.metrics.Rounds.Add(ctx, 1, metric.WithAttributes(attribute.String("agent", active)))
	}
	l.emit(ctx, event.TypeAgentSelect, active, event.AgentSelectPayload{Agent: active})

	req := agent.Request{
		TaskID:  l.taskID,
		Round:   round,
		History: append([]step.Step(nil), l.state.History...),
		Tools:   l.tools,
		Plan:    l.plans.List(),
	}
	sink := agent.SinkFunc(func(text string) { l.mux.PublishChunk(active, text) })

	ictx := l.ic.beginInvocation(ctx)
	var (
		out step.Step
		err error
	)
	if results, ok := l.pendingResults(active); ok {
		out, err = ag.InvokeWithToolResults(ictx, req, results, sink)
	} else {
		out, err = ag.Invoke(ictx, req, sink)
	}
	cause := context.Cause(ictx)
	l.ic.endInvocation()

	if ctx.Err() != nil {
		return nil, l.cancelled(ctx)
	}
	if errors.Is(cause, errInterrupted) {
		slog.InfoContext(ctx, "agent invocation interrupted", "agent", active, "round", round)
		return nil, nil
	}
	if err != nil {
		return nil, orchestration.Unavailable(fmt.Sprintf("agent %q", active), err)
	}

	if err := l.normalize(&out, active); err != nil {
		return nil, orchestration.Unavailable(fmt.Sprintf("agent %q", active), err)
	}
	if err := l.appendStep(ctx, out); err != nil {
		return nil, err
	}

	if calls := out.ToolCalls(); len(calls) > 0 {
		if err := l.processCalls(ctx, out, calls); err != nil {
			return nil, err
		}
	}
	return &out, nil
}

// pendingResults returns the results awaiting active: the latest step
// carries results for active's own calls.
func (l *taskLoop) pendingResults(active string) ([]step.ToolResult, bool) {
	latest := l.state.Latest()
	if latest == nil || latest.AgentName != step.ToolAgent {
		return nil, false
	}
	h := l.state.History
	for i := len(h) - 1; i >= 0; i-- {
		if h[i].ID == latest.ParentID {
			if h[i].AgentName == active {
				return latest.ToolResults(), true
			}
			break
		}
	}
	return nil, false
}

// normalize fills identity fields of an agent step and rejects output that
// would break call/result correlation.
func (l *taskLoop) normalize(s *step.Step, active string) error {
	s.AgentName = active
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	if latest := l.state.Latest(); s.ParentID == "" && latest != nil {
		s.ParentID = latest.ID
	}
	if err := s.Validate(); err != nil {
		return err
	}
	if len(s.ToolResults()) > 0 {
		return errors.New("agent step must not carry tool results")
	}
	if len(s.ToolCalls()) == 0 {
		return nil
	}
	seen := make(map[string]struct{})
	for i := range l.state.History {
		for _, c := range l.state.History[i].ToolCalls() {
			seen[c.ID] = struct{}{}
		}
	}
	for _, c := range s.ToolCalls() {
		if _, dup := seen[c.ID]; dup {
			return fmt.Errorf("tool call id %q reused", c.ID)
		}
	}
	return nil
}

// processCalls validates every call, dispatches the approved ones and
// appends a single tool step with results in call order. Dispatch is
// detached from cancellation: started tools always finish.
func (l *taskLoop) processCalls(ctx context.Context, parent step.Step, calls []step.ToolCall) error {
	results := make([]step.ToolResult, len(calls))
	durations := make([]time.Duration, len(calls))
	rejected := make([]bool, len(calls))
	var approved []step.ToolCall
	var index []int

	for i, c := range calls {
		l.emit(ctx, event.TypeToolCall, parent.AgentName, event.ToolCallPayload{Call: c})
		err := l.validator.Validate(c)
		if err == nil {
			approved = append(approved, c)
			index = append(index, i)
			continue
		}
		rejected[i] = true
		var verr *tool.ValidationError
		if errors.As(err, &verr) {
			results[i] = step.ToolResult{ToolCallID: c.ID, Result: verr.Payload(), IsError: true}
		} else {
			results[i] = errorResult(c, err.Error())
		}
		if l.metrics != nil {
			l.metrics.ValidationFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("tool", c.ToolName)))
		}
		slog.InfoContext(ctx, "tool call rejected", "tool", c.ToolName, "call_id", c.ID, "error", err)
	}

	for j, d := range l.dispatcher.DispatchAll(context.WithoutCancel(ctx), approved) {
		results[index[j]] = d.Result
		durations[index[j]] = d.Duration
	}

	parts := make([]step.Part, len(calls))
	for i, c := range calls {
		l.emit(ctx, event.TypeToolResult, parent.AgentName, event.ToolResultPayload{
			Result:     results[i],
			ToolName:   c.ToolName,
			Validation: rejected[i],
			DurationMs: durations[i].Milliseconds(),
		})
		parts[i] = step.ResultPart(results[i])
	}

	ts := step.New(step.ToolAgent, parts...)
	ts.ParentID = parent.ID
	if err := l.appendStep(ctx, ts); err != nil {
		return err
	}

	if l.plans.TakeDirty() {
		if err := l.ws.SavePlan(context.WithoutCancel(ctx), l.taskID, l.plans.List()); err != nil {
			return orchestration.Unavailable("workspace", err)
		}
	}
	return nil
}

// appendStep persists s and then makes it visible. Persistence is detached
// from cancellation so a started step is never torn.
func (l *taskLoop) appendStep(ctx context.Context, s step.Step) error {
	if err := l.ws.AppendHistory(context.WithoutCancel(ctx), l.taskID, s); err != nil {
		return orchestration.Unavailable("workspace", err)
	}
	l.mu.Lock()
	l.state.Append(s)
	l.mu.Unlock()
	l.emit(ctx, event.TypeStepFinal, s.AgentName, event.StepFinalPayload{Step: s})
	return nil
}

func (l *taskLoop) drainInterrupts(ctx context.Context) error {
	for _, msg := range l.ic.drain() {
		s := step.New(step.UserAgent, step.TextPart(msg))
		if err := l.appendStep(ctx, s); err != nil {
			return err
		}
		l.emit(ctx, event.TypeUserInterrupt, step.UserAgent, event.UserInterruptPayload{StepID: s.ID, Message: msg})
	}
	return nil
}

// pause parks the loop until resumed, stepped or interrupted.
func (l *taskLoop) pause(ctx context.Context, reason string) error {
	l.transition(ctx, orchestration.StatusPaused, reason)
	if err := l.ic.waitResume(ctx); err != nil {
		return l.cancelled(ctx)
	}
	l.transition(ctx, orchestration.StatusRunning, "resumed")
	return nil
}

// transition moves the state machine. Only pause/resume emit status_change;
// terminal states are announced by task_complete and error.
func (l *taskLoop) transition(ctx context.Context, to orchestration.Status, reason string) {
	l.mu.Lock()
	from := l.state.Status
	err := l.state.Transition(to, reason)
	l.mu.Unlock()
	if err != nil {
		slog.ErrorContext(ctx, "state transition rejected", "from", from, "to", to, "error", err)
		return
	}
	if from == to || to.IsTerminal() {
		return
	}
	l.emit(ctx, event.TypeStatusChange, l.state.ActiveAgent, event.StatusChangePayload{
		From: string(from), To: string(to), Reason: reason,
	})
}

func (l *taskLoop) complete(ctx context.Context, reason string) error {
	l.transition(ctx, orchestration.StatusCompleted, reason)
	l.emit(ctx, event.TypeTaskComplete, l.state.ActiveAgent, event.TaskCompletePayload{
		Reason: reason,
		Rounds: l.state.RoundCount,
	})
	return nil
}

func (l *taskLoop) cancelled(ctx context.Context) error {
	cause := context.Cause(ctx)
	if errors.Is(cause, orchestration.ErrTaskCancelled) {
		return cause
	}
	return fmt.Errorf("%w: %w", orchestration.ErrTaskCancelled, cause)
}

// finish records the terminal outcome. It runs exactly once.
func (l *taskLoop) finish(ctx context.Context, start time.Time, err error) {
	if err != nil {
		l.transition(ctx, orchestration.StatusFailed, err.Error())
		l.emit(ctx, event.TypeError, l.state.ActiveAgent, event.ErrorPayload{
			Kind:    orchestration.ErrorKind(err),
			Message: err.Error(),
		})
		slog.WarnContext(ctx, "task failed", "kind", orchestration.ErrorKind(err), "rounds", l.state.RoundCount, "error", err)
	} else {
		slog.InfoContext(ctx, "task completed", "reason", l.state.Reason, "rounds", l.state.RoundCount)
	}

	if serr := l.ws.SaveSnapshot(context.WithoutCancel(ctx), l.snapshot()); serr != nil {
		slog.ErrorContext(ctx, "save task snapshot", "error", serr)
	}

	if l.metrics != nil {
		attrs := metric.WithAttributes(attribute.String("team", l.team.Name))
		if err != nil {
			l.metrics.TasksFailed.Add(ctx, 1, metric.WithAttributes(
				attribute.String("team", l.team.Name),
				attribute.String("kind", orchestration.ErrorKind(err)),
			))
		} else {
			l.metrics.TasksCompleted.Add(ctx, 1, attrs)
		}
		l.metrics.TaskDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	}

	l.mux.Close()
	l.mu.Lock()
	l.err = err
	l.mu.Unlock()
	close(l.done)
}

// emit publishes an event on the task stream and appends it to the audit
// log. Audit failures are logged, never fatal.
func (l *taskLoop) emit(ctx context.Context, typ event.Type, agentName string, payload any) {
	ev, err := event.New(l.taskID, typ, agentName, l.state.RoundCount, payload)
	if err != nil {
		slog.ErrorContext(ctx, "encode event", "type", typ, "error", err)
		return
	}
	l.mux.PublishEvent(&ev)
	if l.events == nil {
		return
	}
	if err := l.events.Append(context.WithoutCancel(ctx), &ev); err != nil {
		slog.WarnContext(ctx, "append audit event", "type", typ, "error", err)
	}
}
