// Package live is the in-process fan-out for per-route event streams.
// Delivery is best-effort and non-durable; subscribers that disconnect get
// no replay. The broker is the only module-level mutable singleton.
package live

import (
	"context"
	"encoding/json"
	"sync"

	"dispatch/internal/general/logger"
	"dispatch/internal/general/metrics"
)

// Heartbeat and write bounds for the HTTP side of a subscription.
const (
	SubscriberBuffer = 32
)

// Event is one serialized stream event.
type Event struct {
	Name string
	Data []byte
}

// Subscriber is one connected stream consumer. Receive from C until it is
// closed; the broker closes it on eviction or Unsubscribe.
type Subscriber struct {
	C       chan Event
	routeID string
}

// RouteID returns the route this subscriber watches.
func (s *Subscriber) RouteID() string { return s.routeID }

// Broker maps route ids to their subscriber sets.
type Broker struct {
	mu    sync.RWMutex
	rooms map[string]map[*Subscriber]bool
	log   *logger.Logger
}

// NewBroker constructs an empty Broker.
func NewBroker(log *logger.Logger) *Broker {
	return &Broker{
		rooms: make(map[string]map[*Subscriber]bool),
		log:   log,
	}
}

// Subscribe registers a new consumer for the route.
func (b *Broker) Subscribe(routeID string) *Subscriber {
	sub := &Subscriber{
		C:       make(chan Event, SubscriberBuffer),
		routeID: routeID,
	}

	b.mu.Lock()
	room := b.rooms[routeID]
	if room == nil {
		room = make(map[*Subscriber]bool)
		b.rooms[routeID] = room
	}
	room[sub] = true
	b.mu.Unlock()

	metrics.LiveSubscribers.Inc()
	return sub
}

// Unsubscribe removes the consumer and garbage-collects an emptied room.
// Safe to call more than once.
func (b *Broker) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	room, ok := b.rooms[sub.routeID]
	if ok && room[sub] {
		delete(room, sub)
		if len(room) == 0 {
			delete(b.rooms, sub.routeID)
		}
		close(sub.C)
		metrics.LiveSubscribers.Dec()
	}
	b.mu.Unlock()
}

// Broadcast serializes payload once and hands it to every subscriber of the
// route. A subscriber whose buffer is full is evicted: it has stopped
// draining, and one stalled consumer must not hold up the rest.
func (b *Broker) Broadcast(ctx context.Context, routeID, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.log.Error(ctx, "live_marshal_failed", "Failed to serialize stream event", err, map[string]any{"event": event})
		return
	}
	ev := Event{Name: event, Data: data}

	var stalled []*Subscriber
	b.mu.RLock()
	for sub := range b.rooms[routeID] {
		select {
		case sub.C <- ev:
		default:
			stalled = append(stalled, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range stalled {
		b.Unsubscribe(sub)
		metrics.LiveEvictions.Inc()
		b.log.Info(ctx, "live_subscriber_evicted", "Evicted stalled stream subscriber", map[string]any{
			"event": event,
		})
	}
}

// SubscriberCount returns how many consumers watch the route.
func (b *Broker) SubscriberCount(routeID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rooms[routeID])
}
