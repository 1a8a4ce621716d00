package streaming

import (
	"context"
	"sync"
	"sync/atomic"

	"civicpulse/pkg/logger"
)

// EventBus distributes lifecycle events to NATS and to in-process subscribers.
// With NATS connected and the relay running, local subscribers receive events
// from every replica through the stream.
type EventBus struct {
	nats     *NATSPublisher
	logger   *logger.Logger
	relaying atomic.Bool

	mu          sync.RWMutex
	subscribers map[int]chan *Event
	nextID      int
}

// NewEventBus creates a new event bus. nats may be nil.
func NewEventBus(nats *NATSPublisher, log *logger.Logger) *EventBus {
	return &EventBus{
		nats:        nats,
		logger:      log.WithComponent("event-bus"),
		subscribers: make(map[int]chan *Event),
	}
}

// Start relays stream events to local subscribers until ctx ends
func (eb *EventBus) Start(ctx context.Context) {
	if eb.nats == nil || !eb.nats.IsConnected() {
		return
	}

	natsCh, err := eb.nats.Subscribe(ctx)
	if err != nil {
		eb.logger.Warn().Err(err).Msg("failed to subscribe to NATS, using local delivery only")
		return
	}

	eb.relaying.Store(true)
	go func() {
		defer eb.relaying.Store(false)
		for event := range natsCh {
			eb.fanout(event)
		}
	}()
}

// Publish publishes an event
func (eb *EventBus) Publish(ctx context.Context, event *Event) error {
	if eb.nats != nil && eb.nats.IsConnected() {
		err := eb.nats.Publish(ctx, event)
		if err == nil && eb.relaying.Load() {
			return nil
		}
		if err != nil {
			eb.logger.Warn().Err(err).Msg("failed to publish to NATS, using local broadcast only")
		}
	}

	eb.fanout(event)
	return nil
}

func (eb *EventBus) fanout(event *Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for id, ch := range eb.subscribers {
		select {
		case ch <- event:
		default:
			eb.logger.Debug().Int("subscriber", id).Msg("subscriber channel full, dropping event")
		}
	}
}

// Subscribe creates a new subscription and returns a channel for events
func (eb *EventBus) Subscribe() (<-chan *Event, func()) {
	eb.mu.Lock()
	eb.nextID++
	id := eb.nextID
	ch := make(chan *Event, 100)
	eb.subscribers[id] = ch
	eb.mu.Unlock()

	eb.logger.Debug().Int("subscriber_id", id).Msg("new subscriber")

	unsubscribe := func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		if _, ok := eb.subscribers[id]; ok {
			close(ch)
			delete(eb.subscribers, id)
			eb.logger.Debug().Int("subscriber_id", id).Msg("subscriber removed")
		}
	}

	return ch, unsubscribe
}

// SubscriberCount returns the number of active subscribers
func (eb *EventBus) SubscriberCount() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subscribers)
}

// Close closes the event bus
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for id, ch := range eb.subscribers {
		close(ch)
		delete(eb.subscribers, id)
	}

	if eb.nats != nil {
		eb.nats.Close()
	}
}
