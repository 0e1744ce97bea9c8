package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Strob0t/AgentForge/internal/domain"
	"github.com/Strob0t/AgentForge/internal/domain/event"
	"github.com/Strob0t/AgentForge/internal/port/eventstore"
	"github.com/Strob0t/AgentForge/internal/service"
)

const healthTimeout = 3 * time.Second

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Tasks    *service.TaskManager
	Registry *service.ToolRegistry
	// Health lists named dependency probes reported by /health.
	Health map[string]func(ctx context.Context) error
	// Idempotent wraps the task start and interrupt routes when set.
	Idempotent func(http.Handler) http.Handler
}

type startResponse struct {
	TaskID string `json:"task_id"`
}

type stepRequest struct {
	Input string `json:"input"`
}

type interruptRequest struct {
	Message string `json:"message"`
}

type cancelRequest struct {
	Reason string `json:"reason"`
}

// StartTask handles POST /api/v1/tasks.
func (h *Handlers) StartTask(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[service.StartRequest](w, r)
	if !ok {
		return
	}
	id, err := h.Tasks.StartTask(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "task to resume not found")
		return
	}
	w.Header().Set("Location", "/api/v1/tasks/"+id)
	writeJSON(w, http.StatusCreated, startResponse{TaskID: id})
}

// ListTasks handles GET /api/v1/tasks.
func (h *Handlers) ListTasks(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Tasks.List())
}

// GetTask handles GET /api/v1/tasks/{id}.
func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	st, err := h.Tasks.State(r.Context(), urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// WaitTask handles GET /api/v1/tasks/{id}/result. It blocks until the task
// is terminal or the client goes away. A failed task is still a 200: the
// failure is carried in the returned state.
func (h *Handlers) WaitTask(w http.ResponseWriter, r *http.Request) {
	st, err := h.Tasks.Wait(r.Context(), urlParam(r, "id"))
	switch {
	case r.Context().Err() != nil:
		return
	case errors.Is(err, domain.ErrNotFound):
		writeDomainError(w, err, "task not found")
	default:
		writeJSON(w, http.StatusOK, st)
	}
}

// StepTask handles POST /api/v1/tasks/{id}/step. The response is an NDJSON
// stream of the items produced until the task pauses again or terminates.
func (h *Handlers) StepTask(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[stepRequest](w, r)
	if !ok {
		return
	}
	items, err := h.Tasks.Step(r.Context(), urlParam(r, "id"), req.Input)
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}

	s := startNDJSON(w)
	for it := range items {
		if err := s.send(it); err != nil {
			return
		}
	}
}

// StreamTask handles GET /api/v1/tasks/{id}/stream?filter=all|chunks|events.
// It streams live items from the moment of subscription until the task
// finishes or the client disconnects.
func (h *Handlers) StreamTask(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r.URL.Query().Get("filter"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sub, err := h.Tasks.Subscribe(urlParam(r, "id"), filter)
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	defer sub.Close()

	s := startNDJSON(w)
	for {
		select {
		case it, ok := <-sub.Items():
			if !ok {
				if err := sub.Err(); err != nil {
					_ = s.send(errorResponse{Error: err.Error()})
				}
				return
			}
			if err := s.send(it); err != nil {
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

// InterruptTask handles POST /api/v1/tasks/{id}/interrupt.
func (h *Handlers) InterruptTask(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[interruptRequest](w, r)
	if !ok {
		return
	}
	if !requireField(w, req.Message, "message") {
		return
	}
	if err := h.Tasks.Interrupt(r.Context(), urlParam(r, "id"), req.Message); err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// PauseTask handles POST /api/v1/tasks/{id}/pause.
func (h *Handlers) PauseTask(w http.ResponseWriter, r *http.Request) {
	if err := h.Tasks.Pause(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ResumeTask handles POST /api/v1/tasks/{id}/resume.
func (h *Handlers) ResumeTask(w http.ResponseWriter, r *http.Request) {
	if err := h.Tasks.Resume(r.Context(), urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// CancelTask handles POST /api/v1/tasks/{id}/cancel.
func (h *Handlers) CancelTask(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[cancelRequest](w, r)
	if !ok {
		return
	}
	if err := h.Tasks.Cancel(r.Context(), urlParam(r, "id"), req.Reason); err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ListEvents handles GET /api/v1/tasks/{id}/events?types=a,b&after_seq=N&limit=N.
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseEventFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	events, err := h.Tasks.Events(r.Context(), urlParam(r, "id"), filter)
	if err != nil {
		writeDomainError(w, err, "task not found")
		return
	}
	if events == nil {
		events = []event.ExecutionEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// GetTeam handles GET /api/v1/team.
func (h *Handlers) GetTeam(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Tasks.Team())
}

// ListTools handles GET /api/v1/tools.
func (h *Handlers) ListTools(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Registry.List())
}

type healthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HealthCheck handles GET /health. Any failing probe turns the response
// into 503.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	status := healthStatus{Status: "ok", Checks: make(map[string]string, len(h.Health))}
	code := http.StatusOK
	for name, probe := range h.Health {
		if err := probe(ctx); err != nil {
			status.Checks[name] = err.Error()
			status.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		status.Checks[name] = "ok"
	}
	writeJSON(w, code, status)
}

func parseFilter(v string) (service.Filter, error) {
	switch v {
	case "", "all":
		return service.FilterAll, nil
	case "chunks":
		return service.FilterChunks, nil
	case "events":
		return service.FilterEvents, nil
	default:
		return 0, fmt.Errorf("unknown filter %q", v)
	}
}

func parseEventFilter(r *http.Request) (eventstore.Filter, error) {
	q := r.URL.Query()
	var f eventstore.Filter
	if v := q.Get("types"); v != "" {
		for _, t := range strings.Split(v, ",") {
			f.Types = append(f.Types, event.Type(strings.TrimSpace(t)))
		}
	}
	if v := q.Get("after_seq"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return f, fmt.Errorf("invalid after_seq %q", v)
		}
		f.AfterSeq = n
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, fmt.Errorf("invalid limit %q", v)
		}
		f.Limit = n
	}
	return f, nil
}
