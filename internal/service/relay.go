package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/Strob0t/AgentForge/internal/logger"
	"github.com/Strob0t/AgentForge/internal/port/broadcast"
	"github.com/Strob0t/AgentForge/internal/port/messagequeue"
)

// BroadcastChunk is the hub event type for stream chunks. Execution events
// are broadcast under their own type.
const BroadcastChunk = "stream.chunk"

// EventRelay is a subscriber of every task stream that forwards items to
// the WebSocket hub and the message bus. Either sink may be nil.
type EventRelay struct {
	hub   broadcast.Broadcaster
	queue messagequeue.Queue
	wg    sync.WaitGroup
}

// NewEventRelay creates a relay.
func NewEventRelay(hub broadcast.Broadcaster, queue messagequeue.Queue) *EventRelay {
	return &EventRelay{hub: hub, queue: queue}
}

// Attach subscribes to mux before any item is published and forwards until
// the task ends. The subscription is lossless, so a slow bus delays the
// relay but never drops items. Suitable as a TaskManager.OnTaskStart hook.
func (r *EventRelay) Attach(taskID string, mux *Multiplexer) {
	sub := mux.SubscribeLossless(FilterAll)
	ctx := logger.WithTaskID(context.Background(), taskID)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for it := range sub.Items() {
			r.forward(ctx, taskID, it)
		}
		if err := sub.Err(); err != nil {
			slog.WarnContext(ctx, "event relay disconnected", "error", err)
		}
	}()
}

func (r *EventRelay) forward(ctx context.Context, taskID string, it Item) {
	var (
		kind    string
		subject string
		payload any
	)
	switch {
	case it.Event != nil:
		kind, subject, payload = string(it.Event.Type), messagequeue.SubjectTaskEvents, it.Event
	case it.Chunk != nil:
		kind, subject, payload = BroadcastChunk, messagequeue.SubjectTaskChunks, it.Chunk
	default:
		return
	}

	if r.hub != nil {
		r.hub.BroadcastEvent(ctx, taskID, kind, payload)
	}
	if r.queue == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.ErrorContext(ctx, "marshal relay item", "error", err)
		return
	}
	if err := r.queue.Publish(ctx, messagequeue.TaskSubject(subject, taskID), data); err != nil {
		slog.WarnContext(ctx, "relay publish failed", "subject", subject, "error", err)
	}
}

// Wait blocks until every attached task stream has ended.
func (r *EventRelay) Wait() { r.wg.Wait() }
