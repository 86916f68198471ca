// Package eventbus implements an in-process, best-effort broadcast:
// every Store mutation emits one notification naming an entity kind
// and id (never the payload), consumed by the TUI. The bus is a pure
// performance optimization — correctness holds even if every event is
// dropped, because the TUI also refreshes on a timer and on user
// request.
//
// The bounded-buffer, drop-on-overflow shape follows the buffered
// channel plus "select { case ch <- msg: default: ... }" backpressure
// pattern used for client fan-out elsewhere in this codebase, adapted
// so that overflow enqueues a resync token instead of disconnecting
// the (here, single, undetachable) TUI reader.
package eventbus

import "sync"

// Kind names the entity a Notification describes.
type Kind string

const (
	KindSession  Kind = "session"
	KindHook     Kind = "hook"
	KindMessage  Kind = "message"
	KindQuestion Kind = "question"
	KindChain    Kind = "chain"
	KindArtifact Kind = "artifact"
	KindResync   Kind = "resync"
)

// Notification is one bus event: an entity kind and id, never a payload.
// Readers always re-query the Store for authoritative state.
type Notification struct {
	Kind Kind
	ID   string
}

const defaultCapacity = 256

// Bus is a bounded multi-producer, single-consumer broadcast queue.
// On overflow, the oldest queued notification is dropped and replaced
// with a single KindResync token so the consumer performs a full
// refresh instead of acting on stale, partial state.
type Bus struct {
	mu   sync.Mutex
	ch   chan Notification
	cap  int
}

// New creates a Bus with the given capacity (0 uses the default of 256).
func New(capacity int) *Bus {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &Bus{ch: make(chan Notification, capacity), cap: capacity}
}

// Publish enqueues a notification without blocking. On a full queue it
// drops the oldest entry and enqueues KindResync instead of n.
func (b *Bus) Publish(n Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()

	select {
	case b.ch <- n:
		return
	default:
	}

	// Queue is full: drop the oldest entry to make room, then enqueue a
	// resync token rather than n itself, since a consumer that missed
	// events needs a full refresh more than it needs this one signal.
	select {
	case <-b.ch:
	default:
	}
	select {
	case b.ch <- Notification{Kind: KindResync}:
	default:
		// Another producer raced us and refilled the queue; the
		// consumer will still see a resync from that path, or will
		// catch the drop on its own 2s timer
	}
}

// Events exposes the read side for the TUI's select loop.
func (b *Bus) Events() <-chan Notification {
	return b.ch
}
