// Package broadcast defines the port that pushes domain events to
// dashboards as they happen.
package broadcast

import (
	"context"

	"github.com/aiarch/aia/internal/domain/event"
)

// Broadcaster pushes an event to every subscribed client. It never blocks
// on slow clients and has nothing to report back.
type Broadcaster interface {
	BroadcastEvent(ctx context.Context, eventType event.Type, payload any)
}
