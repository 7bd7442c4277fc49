package out

import (
	"context"

	"mailagent/core/domain"
)

// RealtimePort fans typed events out to subscribed user sessions.
// Delivery is best effort; a slow subscriber never blocks the emitter.
type RealtimePort interface {
	Publish(ctx context.Context, userID string, event *domain.Event) error
	Subscribe(userID string) <-chan *domain.Event
	Unsubscribe(userID string, ch <-chan *domain.Event)
}
