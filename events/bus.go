// Package events provides the in-process publish/subscribe bus behind the
// live request feed. State is ephemeral: nothing survives a restart.
package events

import (
	"errors"
	"sync"
)

// Type classifies a request outcome.
type Type string

const (
	// TypeProbe is an unauthenticated request that received a 402 challenge.
	TypeProbe Type = "probe"

	// TypePaid is a request whose payment verified and settled.
	TypePaid Type = "paid"

	// TypeFailed is a request rejected at any stage after the challenge.
	TypeFailed Type = "failed"
)

// Event is one append-only feed entry. Immutable once emitted.
type Event struct {
	ID   string `json:"id"`
	TS   int64  `json:"ts"` // unix milliseconds
	Type Type   `json:"type"`
	From string `json:"from,omitempty"`  // payer address (paid only)
	Tx   string `json:"tx,omitempty"`    // settlement tx hash (paid only)
	Err  string `json:"error,omitempty"` // reason (failed only)
}

const (
	// MaxRecent bounds the replay buffer; oldest entries are evicted first.
	MaxRecent = 50

	// MaxListeners bounds concurrent subscriptions.
	MaxListeners = 100

	// subBuffer is each subscriber's channel capacity. Large enough to hold a
	// full replay plus a burst of live events; a subscriber that falls further
	// behind loses events rather than stalling the emitter.
	subBuffer = 128
)

// ErrAtCapacity is returned by Subscribe when the listener cap is reached.
var ErrAtCapacity = errors.New("events: subscriber limit reached")

// Bus fans out request events to subscribers and retains the MaxRecent most
// recent ones for replay. Safe for concurrent use; emit never blocks on a
// slow subscriber.
type Bus struct {
	mu     sync.Mutex
	recent []Event
	subs   map[int]chan Event
	nextID int
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{
		subs: make(map[int]chan Event),
	}
}

// Emit appends e to the replay buffer and delivers it to every current
// subscriber in subscription order. Delivery is best-effort: a subscriber
// whose buffer is full is skipped, never waited on.
func (b *Bus) Emit(e Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.recent = append(b.recent, e)
	if len(b.recent) > MaxRecent {
		b.recent = b.recent[len(b.recent)-MaxRecent:]
	}

	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Subscriber is not draining; drop rather than block the emitter.
		}
	}
}

// Subscription is one registered observer. Events arrive on C in emission
// order; C is closed when the subscription ends.
type Subscription struct {
	C <-chan Event

	id  int
	bus *Bus
}

// Subscribe registers a new observer. It fails with ErrAtCapacity once
// MaxListeners subscriptions are active; it never blocks and never evicts an
// existing subscriber. A successful subscriber receives the entire current
// replay buffer (oldest first) before any live event.
func (b *Bus) Subscribe() (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.subs) >= MaxListeners {
		return nil, ErrAtCapacity
	}

	ch := make(chan Event, subBuffer)
	for _, e := range b.recent {
		ch <- e
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	return &Subscription{C: ch, id: id, bus: b}, nil
}

// Close releases the subscription slot and closes C. Safe to call more than
// once.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	if ch, ok := s.bus.subs[s.id]; ok {
		delete(s.bus.subs, s.id)
		close(ch)
	}
}

// ListenerCount returns the number of active subscriptions.
func (b *Bus) ListenerCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Recent returns a copy of the current replay buffer, oldest first.
func (b *Bus) Recent() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.recent))
	copy(out, b.recent)
	return out
}
