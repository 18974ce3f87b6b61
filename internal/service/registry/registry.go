package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/corray333/backend-labs/saga/internal/service/models/event"
)

var (
	ErrNoHandler         = errors.New("no handler registered for event")
	ErrDuplicateHandler  = errors.New("handler already registered for event")
	ErrUnroutableHandler = errors.New("registered event cannot be routed")
)

// HandlerFunc runs one saga step for a consumed message.
type HandlerFunc func(ctx context.Context, msg event.Message) error

type queueRouter interface {
	Route(name event.Name) (string, error)
}

type entry struct {
	handler    HandlerFunc
	queue      string
	nextEvents []event.Name
}

// Registry maps event names to the handlers that consume them.
type Registry struct {
	router  queueRouter
	entries map[event.Name]entry
	errs    []error
}

// New creates an empty registry validated against router.
func New(router queueRouter) *Registry {
	return &Registry{
		router:  router,
		entries: make(map[event.Name]entry),
	}
}

// Register binds handler to name. nextEvents lists every event the handler may dispatch.
// Problems are collected and reported by Validate.
func (r *Registry) Register(name event.Name, handler HandlerFunc, nextEvents ...event.Name) *Registry {
	if _, ok := r.entries[name]; ok {
		r.errs = append(r.errs, fmt.Errorf("%w: %s", ErrDuplicateHandler, name))

		return r
	}

	queue, err := r.router.Route(name)
	if err != nil {
		r.errs = append(r.errs, fmt.Errorf("%w: %w", ErrUnroutableHandler, err))
	}

	r.entries[name] = entry{
		handler:    handler,
		queue:      queue,
		nextEvents: nextEvents,
	}

	return r
}

// Validate reports every registration problem: duplicates, handled events without a queue,
// and next events the router does not know.
func (r *Registry) Validate() error {
	errs := append([]error(nil), r.errs...)

	for _, name := range r.names() {
		e := r.entries[name]
		if e.handler == nil {
			errs = append(errs, fmt.Errorf("%w: %s has a nil handler", ErrNoHandler, name))
		}
		for _, next := range e.nextEvents {
			if _, err := r.router.Route(next); err != nil {
				errs = append(errs, fmt.Errorf("%s dispatches %s: %w", name, next, err))
			}
		}
	}

	return errors.Join(errs...)
}

// Lookup returns the handler for name.
func (r *Registry) Lookup(name event.Name) (HandlerFunc, error) {
	e, ok := r.entries[name]
	if !ok || e.handler == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoHandler, name)
	}

	return e.handler, nil
}

// Queues lists the distinct queues that carry registered events, sorted.
func (r *Registry) Queues() []string {
	seen := make(map[string]struct{})
	queues := make([]string, 0)
	for _, e := range r.entries {
		if e.queue == "" {
			continue
		}
		if _, ok := seen[e.queue]; ok {
			continue
		}
		seen[e.queue] = struct{}{}
		queues = append(queues, e.queue)
	}
	sort.Strings(queues)

	return queues
}

// Events lists the registered event names, sorted.
func (r *Registry) Events() []event.Name {
	return r.names()
}

func (r *Registry) names() []event.Name {
	names := make([]event.Name, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	return names
}
