package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/Strob0t/AgentForge/internal/domain/event"
	"github.com/Strob0t/AgentForge/internal/port/eventstore"
)

// EventStore implements eventstore.Store in memory.
type EventStore struct {
	mu     sync.RWMutex
	events map[string][]event.ExecutionEvent
}

// NewEventStore creates an empty EventStore.
func NewEventStore() *EventStore {
	return &EventStore{events: make(map[string][]event.ExecutionEvent)}
}

// Append implements eventstore.Store.
func (s *EventStore) Append(_ context.Context, ev *event.ExecutionEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[ev.TaskID] = append(s.events[ev.TaskID], *ev)
	return nil
}

// LoadByTask implements eventstore.Store.
func (s *EventStore) LoadByTask(_ context.Context, taskID string, filter eventstore.Filter) ([]event.ExecutionEvent, error) {
	s.mu.RLock()
	src := s.events[taskID]
	out := make([]event.ExecutionEvent, 0, len(src))
	for i := range src {
		if filter.Matches(&src[i]) {
			out = append(out, src[i])
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}
