package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/AgentForge/internal/domain/event"
	"github.com/Strob0t/AgentForge/internal/port/eventstore"
)

// EventStore implements eventstore.Store on the append-only task_events table.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates an EventStore backed by pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Append inserts ev. Re-appending the same event ID is a no-op.
func (s *EventStore) Append(ctx context.Context, ev *event.ExecutionEvent) error {
	var payload []byte
	if len(ev.Payload) > 0 {
		payload = ev.Payload
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO task_events (id, task_id, seq, event_type, agent_name, round, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (id) DO NOTHING`,
		ev.ID, ev.TaskID, int64(ev.Seq), string(ev.Type), ev.AgentName, ev.Round, payload, ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("append event %s: %w", ev.Type, err)
	}
	return nil
}

// LoadByTask returns the task's events in sequence order.
func (s *EventStore) LoadByTask(ctx context.Context, taskID string, filter eventstore.Filter) ([]event.ExecutionEvent, error) {
	var (
		where = []string{"task_id = $1", "seq > $2"}
		args  = []any{taskID, int64(filter.AfterSeq)}
	)
	if len(filter.Types) > 0 {
		types := make([]string, len(filter.Types))
		for i, t := range filter.Types {
			types[i] = string(t)
		}
		args = append(args, types)
		where = append(where, fmt.Sprintf("event_type = ANY($%d)", len(args)))
	}
	query := `SELECT id, task_id, seq, event_type, agent_name, round, payload, created_at
		FROM task_events WHERE ` + strings.Join(where, " AND ") + ` ORDER BY seq ASC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("load events for task %s: %w", taskID, err)
	}
	defer rows.Close()

	var events []event.ExecutionEvent
	for rows.Next() {
		var (
			ev      event.ExecutionEvent
			seq     int64
			typ     string
			payload []byte
		)
		if err := rows.Scan(&ev.ID, &ev.TaskID, &seq, &typ, &ev.AgentName, &ev.Round, &payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Seq = uint64(seq) //nolint:gosec // seq is assigned from a uint64 counter
		ev.Type = event.Type(typ)
		ev.Payload = payload
		events = append(events, ev)
	}
	return events, rows.Err()
}
