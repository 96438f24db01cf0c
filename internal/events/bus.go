package events

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

// DefaultQueueSize is the per-subscriber buffer used by NewEventBus(0).
const DefaultQueueSize = 1024

// HandlerFunc is a function that handles an event.
type HandlerFunc func(ctx context.Context, event Event) error

// Emitter is the publishing side of the bus, as seen by producers.
type Emitter interface {
	Emit(ctx context.Context, event Event)
}

// EventBus is an asynchronous publish-subscribe bus. Every subscriber owns
// a bounded queue drained by one goroutine, so handlers see events in
// emit order and a slow handler never blocks the emitter: when its queue
// is full the event is dropped for that subscriber only.
type EventBus struct {
	mu        sync.RWMutex
	handlers  map[EventType][]*subscriber
	queueSize int
	stopped   bool
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

type subscriber struct {
	name    string
	handler HandlerFunc
	queue   chan Event
	dropped atomic.Uint64
}

// NewEventBus creates a new EventBus. queueSize <= 0 selects DefaultQueueSize.
func NewEventBus(queueSize int) *EventBus {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &EventBus{
		handlers:  make(map[EventType][]*subscriber),
		queueSize: queueSize,
		stopCh:    make(chan struct{}),
	}
}

// Subscribe registers a handler function for a specific event type and
// starts its worker. The name is used for logging.
func (eb *EventBus) Subscribe(eventType EventType, name string, handler HandlerFunc) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.stopped {
		return
	}

	sub := &subscriber{
		name:    name,
		handler: handler,
		queue:   make(chan Event, eb.queueSize),
	}
	eb.handlers[eventType] = append(eb.handlers[eventType], sub)

	eb.wg.Add(1)
	go eb.run(sub)

	log.Debug().
		Str("event", string(eventType)).
		Str("handler", name).
		Msg("subscribed to event")
}

// run drains one subscriber queue until Stop closes it.
func (eb *EventBus) run(sub *subscriber) {
	defer eb.wg.Done()

	ctx := context.Background()
	for event := range sub.queue {
		eb.dispatch(ctx, sub, event)
	}
}

func (eb *EventBus) dispatch(ctx context.Context, sub *subscriber, event Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("event", string(event.Type)).
				Str("handler", sub.name).
				Interface("panic", r).
				Msg("handler panicked")
		}
	}()

	if err := sub.handler(ctx, event); err != nil {
		log.Error().
			Err(err).
			Str("event", string(event.Type)).
			Str("handler", sub.name).
			Msg("handler returned error")
	}
}

// Emit publishes an event to all subscribed handlers without blocking.
func (eb *EventBus) Emit(ctx context.Context, event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if eb.stopped {
		return
	}

	subs := eb.handlers[event.Type]
	if len(subs) == 0 {
		return
	}

	log.Trace().
		Str("event", string(event.Type)).
		Str("source", event.Source).
		Int("handlers", len(subs)).
		Msg("emitting event")

	for _, sub := range subs {
		select {
		case sub.queue <- event:
		default:
			n := sub.dropped.Add(1)
			log.Warn().
				Str("event", string(event.Type)).
				Str("handler", sub.name).
				Uint64("dropped_total", n).
				Msg("subscriber queue full, event dropped")
		}
	}
}

// Stop stops accepting events, lets every subscriber drain what is
// already queued and waits for them to finish.
func (eb *EventBus) Stop() {
	eb.mu.Lock()
	if eb.stopped {
		eb.mu.Unlock()
		return
	}
	eb.stopped = true
	close(eb.stopCh)
	for _, subs := range eb.handlers {
		for _, sub := range subs {
			close(sub.queue)
		}
	}
	eb.mu.Unlock()

	eb.wg.Wait()
	log.Info().Msg("event bus stopped")
}

// StopCh returns a channel that is closed when the EventBus is stopped.
func (eb *EventBus) StopCh() <-chan struct{} {
	return eb.stopCh
}

// HandlerCount returns the number of handlers registered for a specific event type.
func (eb *EventBus) HandlerCount(eventType EventType) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.handlers[eventType])
}

// Dropped returns how many events the named subscriber has lost to a full queue.
func (eb *EventBus) Dropped(name string) uint64 {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	var total uint64
	for _, subs := range eb.handlers {
		for _, sub := range subs {
			if sub.name == name {
				total += sub.dropped.Load()
			}
		}
	}
	return total
}
