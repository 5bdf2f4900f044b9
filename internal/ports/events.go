package ports

import (
	"context"

	"github.com/ahrav/go-scorekeeper/internal/domain"
)

// EventPublisher hands submission events to the router. Publish returns once
// the event is accepted; processing happens out of band.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.AnswerEvent) error
}

// EventHandler consumes one submission event. Delivery is at-least-once, so
// implementations must be idempotent.
type EventHandler interface {
	Handle(ctx context.Context, event domain.AnswerEvent) error
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(ctx context.Context, event domain.AnswerEvent) error

// Handle calls f(ctx, event).
func (f EventHandlerFunc) Handle(ctx context.Context, event domain.AnswerEvent) error {
	return f(ctx, event)
}
