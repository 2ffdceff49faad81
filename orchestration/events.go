// Package orchestration composes the substrate, protocol, cognitive units,
// topology, self-organisation, batching and learning subsystems behind one
// facade, and owns their lifecycle.
package orchestration

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/2lab-ai/hal9go/core"
)

// EventKind identifies what happened.
type EventKind string

const (
	EventSignalEmitted      EventKind = "signal_emitted"
	EventUnitStateChanged   EventKind = "unit_state_changed"
	EventGradientPropagated EventKind = "gradient_propagated"
	EventTopologyChanged    EventKind = "topology_changed"
)

// Event is one observable occurrence inside the orchestrator. Fields are
// snake_case so events serialise directly for wire-level collaborators.
type Event struct {
	Kind      EventKind              `json:"kind"`
	UnitID    core.UnitID            `json:"unit_id,omitempty"`
	TraceID   string                 `json:"trace_id,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// EventFilter selects which kinds a subscriber receives. An empty filter
// receives everything.
type EventFilter struct {
	Kinds []EventKind
}

func (f EventFilter) matches(kind EventKind) bool {
	if len(f.Kinds) == 0 {
		return true
	}
	for _, k := range f.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Subscription is one subscriber's bounded event stream. Slow subscribers
// lose the oldest events rather than blocking publishers; the loss is
// counted.
type Subscription struct {
	events  chan Event
	filter  EventFilter
	dropped atomic.Uint64
	bus     *eventBus
	id      uint64
	once    sync.Once
}

// Events is the subscriber's receive channel.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Dropped reports how many events this subscriber lost to backpressure.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close detaches the subscription.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.unsubscribe(s.id)
		close(s.events)
	})
}

// eventBus fans events out to subscribers without ever blocking the
// publishing path.
type eventBus struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*Subscription
	buffer int
}

func newEventBus(buffer int) *eventBus {
	if buffer <= 0 {
		buffer = 64
	}
	return &eventBus{
		subs:   make(map[uint64]*Subscription),
		buffer: buffer,
	}
}

func (b *eventBus) subscribe(filter EventFilter) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	sub := &Subscription{
		events: make(chan Event, b.buffer),
		filter: filter,
		bus:    b,
		id:     b.nextID,
	}
	b.subs[sub.id] = sub
	return sub
}

func (b *eventBus) unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

func (b *eventBus) publish(event Event) {
	event.Timestamp = time.Now().UTC()

	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		if !sub.filter.matches(event.Kind) {
			continue
		}
		select {
		case sub.events <- event:
		default:
			// Full buffer: evict the oldest so the stream stays current.
			select {
			case <-sub.events:
				sub.dropped.Add(1)
			default:
			}
			select {
			case sub.events <- event:
			default:
				sub.dropped.Add(1)
			}
		}
	}
}

func (b *eventBus) close() {
	b.mu.Lock()
	subs := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.subs = make(map[uint64]*Subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		sub.once.Do(func() {
			close(sub.events)
		})
	}
}
