package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	cfotel "github.com/Strob0t/AgentForge/internal/adapter/otel"
	"github.com/Strob0t/AgentForge/internal/domain/step"
	"github.com/Strob0t/AgentForge/internal/port/toolexec"
	"github.com/Strob0t/AgentForge/internal/resilience"
)

// LocalTool runs in-process. A returned error becomes an is_error result.
type LocalTool func(ctx context.Context, args map[string]any) (any, error)

// Surface is an external execution surface, optionally guarded by a breaker.
type Surface struct {
	Name     string
	Executor toolexec.Executor
	Breaker  *resilience.Breaker
}

// Dispatch is the outcome of one dispatched call.
type Dispatch struct {
	Result   step.ToolResult
	Duration time.Duration
}

// Dispatcher executes approved tool calls. It never returns an error:
// every failure is reported as an is_error ToolResult.
type Dispatcher struct {
	surfaces    map[string]*Surface // tool name -> surface
	local       map[string]LocalTool
	timeout     time.Duration
	maxParallel int
	metrics     *cfotel.Metrics
}

// NewDispatcher creates a Dispatcher with the given per-call timeout and
// per-step concurrency limit.
func NewDispatcher(timeout time.Duration, maxParallel int) *Dispatcher {
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &Dispatcher{
		surfaces:    make(map[string]*Surface),
		local:       make(map[string]LocalTool),
		timeout:     timeout,
		maxParallel: maxParallel,
	}
}

// SetMetrics attaches metric instruments.
func (d *Dispatcher) SetMetrics(m *cfotel.Metrics) { d.metrics = m }

// Mount routes the named tools to an external surface. Startup only.
func (d *Dispatcher) Mount(s *Surface, tools ...string) {
	for _, name := range tools {
		d.surfaces[name] = s
	}
}

// WithLocal returns a copy of d that additionally runs the given in-process
// tools. Used to bind per-task tools such as the plan tools.
func (d *Dispatcher) WithLocal(tools map[string]LocalTool) *Dispatcher {
	cp := *d
	cp.local = make(map[string]LocalTool, len(d.local)+len(tools))
	for k, v := range d.local {
		cp.local[k] = v
	}
	for k, v := range tools {
		cp.local[k] = v
	}
	return &cp
}

// DispatchAll runs calls concurrently, bounded by maxParallel. Results are
// in the order of calls regardless of completion order.
func (d *Dispatcher) DispatchAll(ctx context.Context, calls []step.ToolCall) []Dispatch {
	out := make([]Dispatch, len(calls))
	var g errgroup.Group
	g.SetLimit(d.maxParallel)
	for i := range calls {
		g.Go(func() error {
			out[i] = d.Dispatch(ctx, calls[i])
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// Dispatch runs one approved call under the per-call timeout.
func (d *Dispatcher) Dispatch(ctx context.Context, call step.ToolCall) Dispatch {
	start := time.Now()
	ctx, span := cfotel.StartToolCallSpan(ctx, call.ID, call.ToolName)
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("tool panicked: %v", r)}
			}
		}()
		res, err := d.execute(callCtx, call)
		done <- outcome{result: res, err: err}
	}()

	var res step.ToolResult
	select {
	case o := <-done:
		res = d.normalize(call, o.result, o.err)
	case <-callCtx.Done():
		msg := fmt.Sprintf("tool %q timed out after %s", call.ToolName, d.timeout)
		if !errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			msg = fmt.Sprintf("tool %q cancelled", call.ToolName)
		}
		res = errorResult(call, msg)
	}

	elapsed := time.Since(start)
	if d.metrics != nil {
		attrs := metric.WithAttributes(
			attribute.String("tool", call.ToolName),
			attribute.Bool("error", res.IsError),
		)
		d.metrics.ToolCalls.Add(ctx, 1, attrs)
		d.metrics.ToolDuration.Record(ctx, elapsed.Seconds(), attrs)
	}
	if res.IsError {
		slog.DebugContext(ctx, "tool call failed", "tool", call.ToolName, "call_id", call.ID, "result", res.Result)
	}
	return Dispatch{Result: res, Duration: elapsed}
}

// errSurfaceMissing marks a call with no execution surface.
var errSurfaceMissing = errors.New("no execution surface for tool")

func (d *Dispatcher) execute(ctx context.Context, call step.ToolCall) (any, error) {
	if fn, ok := d.local[call.ToolName]; ok {
		return fn(ctx, call.Args)
	}

	s, ok := d.surfaces[call.ToolName]
	if !ok {
		return nil, fmt.Errorf("%w %q", errSurfaceMissing, call.ToolName)
	}

	var out toolexec.Output
	run := func() error {
		var err error
		out, err = s.Executor.Execute(ctx, call.ToolName, call.Args)
		return err
	}
	var err error
	if s.Breaker != nil {
		err = s.Breaker.Execute(run)
	} else {
		err = run()
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, fmt.Errorf("sandbox unavailable: %s circuit open", s.Name)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *Dispatcher) normalize(call step.ToolCall, raw any, err error) step.ToolResult {
	if err != nil {
		return errorResult(call, err.Error())
	}

	out, external := raw.(toolexec.Output)
	if !external {
		return step.ToolResult{ToolCallID: call.ID, Result: raw}
	}

	result := map[string]any{"output": out.Output}
	if out.ExitCode != nil {
		result["exit_code"] = *out.ExitCode
	}
	if out.Stderr != "" {
		result["stderr"] = out.Stderr
	}
	return step.ToolResult{
		ToolCallID: call.ID,
		Result:     result,
		IsError:    out.ExitCode != nil && *out.ExitCode != 0,
	}
}

func errorResult(call step.ToolCall, msg string) step.ToolResult {
	return step.ToolResult{
		ToolCallID: call.ID,
		Result:     map[string]any{"error": msg},
		IsError:    true,
	}
}
