// Package eventstore defines the port interface for the append-only
// execution event log kept for audit and replay.
package eventstore

import (
	"context"

	"github.com/Strob0t/AgentForge/internal/domain/event"
)

// Filter narrows LoadByTask. Zero value returns everything.
type Filter struct {
	Types    []event.Type `json:"types,omitempty"`
	AfterSeq uint64       `json:"after_seq,omitempty"`
	Limit    int          `json:"limit,omitempty"`
}

// Matches reports whether ev passes the type and sequence filters.
func (f *Filter) Matches(ev *event.ExecutionEvent) bool {
	if ev.Seq <= f.AfterSeq {
		return false
	}
	if len(f.Types) == 0 {
		return true
	}
	for _, t := range f.Types {
		if t == ev.Type {
			return true
		}
	}
	return false
}

// Store is the port interface for appending and loading execution events.
type Store interface {
	// Append persists a new event to the store.
	Append(ctx context.Context, ev *event.ExecutionEvent) error

	// LoadByTask returns the task's events ordered by sequence number.
	LoadByTask(ctx context.Context, taskID string, filter Filter) ([]event.ExecutionEvent, error)
}
