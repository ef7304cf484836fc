package engine

import (
	"sync"

	"github.com/matthewvogt/contactsd/internal/contact"
)

// EventKind distinguishes the signals the coalescer reacts to.
type EventKind int

const (
	// EventPrivilegedData reports added, changed or removed privileged records.
	EventPrivilegedData EventKind = iota + 1
	// EventPrivilegedPresence reports presence-only privileged changes.
	EventPrivilegedPresence
	// EventNonprivilegedData reports added, changed or removed nonprivileged
	// records. Ignored unless import is enabled.
	EventNonprivilegedData
	// EventSyncRequest queues external sync sources to trigger after the
	// next pass.
	EventSyncRequest
)

func (k EventKind) String() string {
	switch k {
	case EventPrivilegedData:
		return "privileged-data"
	case EventPrivilegedPresence:
		return "privileged-presence"
	case EventNonprivilegedData:
		return "nonprivileged-data"
	case EventSyncRequest:
		return "sync-request"
	default:
		return "unknown"
	}
}

// Event is one queued signal.
type Event struct {
	Kind  EventKind
	Names []string // sync source names, for EventSyncRequest
}

// PrivilegedEvent maps a privileged store notification to an event.
func PrivilegedEvent(n contact.Notification) (Event, bool) {
	switch n.Kind {
	case contact.NotifyAdded, contact.NotifyChanged, contact.NotifyRemoved:
		return Event{Kind: EventPrivilegedData}, true
	case contact.NotifyPresenceChanged:
		return Event{Kind: EventPrivilegedPresence}, true
	case contact.NotifySyncSourcesChanged:
		return Event{Kind: EventSyncRequest, Names: n.Names}, true
	default:
		return Event{}, false
	}
}

// NonprivilegedEvent maps a nonprivileged store notification to an event.
// Presence changes made in the mirror are treated as data changes.
func NonprivilegedEvent(n contact.Notification) (Event, bool) {
	switch n.Kind {
	case contact.NotifyAdded, contact.NotifyChanged, contact.NotifyRemoved, contact.NotifyPresenceChanged:
		return Event{Kind: EventNonprivilegedData}, true
	case contact.NotifySyncSourcesChanged:
		return Event{Kind: EventSyncRequest, Names: n.Names}, true
	default:
		return Event{}, false
	}
}

// eventQueue is a thread-safe FIFO queue for events.
//
// The queue is unbounded so that store listeners, which run on the writing
// goroutine, never block.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // buffered, size 1
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]Event, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	// Non-blocking; the buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (Event{}, false) if queue is empty.
func (q *eventQueue) TryDequeue() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return Event{}, false
	}

	e := q.events[0]
	q.events[0] = Event{}
	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Wait returns a channel that signals when events may be available. The
// channel is closed once the queue is closed.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Close signals that no more events will be enqueued.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
