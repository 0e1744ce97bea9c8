// Package broadcast defines the port for pushing task activity to
// connected real-time clients.
package broadcast

import "context"

// Broadcaster sends typed messages to connected clients. Clients may
// restrict themselves to one task; an empty taskID reaches everyone.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, taskID, eventType string, payload any)
}
