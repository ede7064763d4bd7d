package processor

import (
	"context"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"
)

// ErrUnhandledEventType marks an event no handler is registered for.
var ErrUnhandledEventType = errors.New("unhandled stripe event type")

// HandlerFunc applies one event's side effects using tx.
type HandlerFunc func(ctx context.Context, tx *gorm.DB, event *stripe.Event) error

// Dispatcher routes events to handlers by type.
type Dispatcher struct {
	handlers map[stripe.EventType]HandlerFunc
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{handlers: map[stripe.EventType]HandlerFunc{}}
}

// Register binds a handler to eventType, replacing any previous binding.
func (d *Dispatcher) Register(eventType stripe.EventType, handler HandlerFunc) {
	if handler == nil {
		return
	}
	d.handlers[eventType] = handler
}

// Handles reports whether eventType has a handler.
func (d *Dispatcher) Handles(eventType stripe.EventType) bool {
	_, ok := d.handlers[eventType]
	return ok
}

// Dispatch invokes the handler registered for event.Type.
func (d *Dispatcher) Dispatch(ctx context.Context, tx *gorm.DB, event *stripe.Event) error {
	if event == nil {
		return errors.New("stripe event required")
	}
	handler, ok := d.handlers[event.Type]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnhandledEventType, event.Type)
	}
	return handler(ctx, tx, event)
}
