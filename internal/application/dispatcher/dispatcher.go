package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/garyjia/sygfp/internal/domain/event"
)

// Dispatcher fans committed document events out to post-commit subscribers
// (dossier stage mirroring, notifications). Subscribers never affect the
// outcome of the transition that published the event.
type Dispatcher interface {
	// Subscribe registers a named handler. A second subscription with the
	// same name replaces the first.
	Subscribe(eventType event.Type, name string, handler Handler)

	// DispatchAsync runs every subscriber in its own goroutine. Handlers
	// keep running after ctx is cancelled.
	DispatchAsync(ctx context.Context, evt *event.Event)

	// Close refuses new events and waits for running handlers
	Close() error
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type eventDispatcher struct {
	mu     sync.RWMutex
	subs   map[event.Type][]subscription
	logger Logger

	wg     sync.WaitGroup
	closed atomic.Bool
}

// Option configures the dispatcher
type Option func(*eventDispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger Logger) Option {
	return func(d *eventDispatcher) {
		d.logger = logger
	}
}

// NewDispatcher creates a new event dispatcher
func NewDispatcher(opts ...Option) Dispatcher {
	d := &eventDispatcher{
		subs: make(map[event.Type][]subscription),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *eventDispatcher) Subscribe(eventType event.Type, name string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	subs := d.subs[eventType]
	for i := range subs {
		if subs[i].name == name {
			subs[i].handler = handler
			return
		}
	}
	d.subs[eventType] = append(subs, subscription{name: name, handler: handler})

	if d.logger != nil {
		d.logger.Info("Handler registered", "event_type", eventType, "handler_name", name)
	}
}

func (d *eventDispatcher) subscribers(eventType event.Type) []subscription {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]subscription(nil), d.subs[eventType]...)
}

func (d *eventDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	if d.closed.Load() {
		d.logError("Event dropped, dispatcher is closed", evt, "")
		return
	}

	ctx = context.WithoutCancel(ctx)
	for _, sub := range d.subscribers(evt.Type) {
		d.wg.Add(1)
		go func(s subscription) {
			defer d.wg.Done()
			if err := d.run(ctx, evt, s); err != nil {
				d.logError("Event handler failed", evt, s.name, "error", err)
			}
		}(sub)
	}
}

func (d *eventDispatcher) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("dispatcher already closed")
	}
	d.wg.Wait()
	if d.logger != nil {
		d.logger.Info("Dispatcher drained")
	}
	return nil
}

// run executes one handler and turns a panic into an error
func (d *eventDispatcher) run(ctx context.Context, evt *event.Event, s subscription) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return s.handler(ctx, evt)
}

func (d *eventDispatcher) logError(msg string, evt *event.Event, handler string, extra ...interface{}) {
	if d.logger == nil {
		return
	}
	kv := append([]interface{}{
		"event_type", evt.Type,
		"document_id", evt.DocumentID,
		"correlation_id", evt.CorrelationID,
		"handler_name", handler,
	}, extra...)
	d.logger.Error(msg, kv...)
}
