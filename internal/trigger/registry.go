package trigger

import (
	"context"
	"errors"
	"fmt"
)

// Registry holds all trigger registrations grouped by event name.
// Handlers are registered at startup, before any Fire.
type Registry struct {
	handlers map[string][]HandlerFunc // event -> handlers
}

// NewRegistry creates an empty trigger Registry.
func NewRegistry(regs ...Registration) *Registry {
	r := &Registry{handlers: make(map[string][]HandlerFunc)}
	for _, reg := range regs {
		r.Register(reg.Event, reg.Handler)
	}
	return r
}

// Register adds a handler for a given event.
func (r *Registry) Register(event string, handler HandlerFunc) {
	r.handlers[event] = append(r.handlers[event], handler)
}

// Events returns all event names that have registered handlers.
func (r *Registry) Events() []string {
	events := make([]string, 0, len(r.handlers))
	for e := range r.handlers {
		events = append(events, e)
	}
	return events
}

// HandlersFor returns the handlers registered for an event.
func (r *Registry) HandlersFor(event string) []HandlerFunc {
	return r.handlers[event]
}

// Fire runs every handler for event in registration order. All handlers run
// even if an earlier one fails; the failures are joined.
func (r *Registry) Fire(ctx context.Context, event, matchID string) error {
	var errs []error
	for i, h := range r.handlers[event] {
		if err := h(ctx, matchID); err != nil {
			errs = append(errs, fmt.Errorf("%s handler %d: %w", event, i, err))
		}
	}
	return errors.Join(errs...)
}
