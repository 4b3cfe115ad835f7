package emit

import "sync"

// BufferedEmitter implements Bus by storing events in memory, grouped by
// execution id, and fanning them out to live subscribers over bounded
// per-subscriber channels. This is the event bus used by tests throughout
// this repository, mirroring the teacher's own BufferedEmitter.
type BufferedEmitter struct {
	mu          sync.RWMutex
	history     map[string][]Event
	subscribers map[string][]*subscription
	queueDepth  int
}

type subscription struct {
	ch     chan Event
	closed bool
}

// NewBufferedEmitter returns an empty BufferedEmitter. queueDepth bounds
// each subscriber's channel; Emit blocks (providing backpressure) once a
// subscriber's channel is full, rather than dropping events.
func NewBufferedEmitter(queueDepth int) *BufferedEmitter {
	if queueDepth <= 0 {
		queueDepth = 64
	}
	return &BufferedEmitter{
		history:     make(map[string][]Event),
		subscribers: make(map[string][]*subscription),
		queueDepth:  queueDepth,
	}
}

// Emit records event in history and delivers it to every current subscriber
// of its execution id, blocking on a full subscriber channel.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	b.history[event.ExecutionID] = append(b.history[event.ExecutionID], event)
	subs := append([]*subscription(nil), b.subscribers[event.ExecutionID]...)
	b.mu.Unlock()

	for _, s := range subs {
		if !s.closed {
			s.ch <- event
		}
	}
}

// EmitBatch emits each event in order; always returns nil (in-memory
// delivery cannot fail).
func (b *BufferedEmitter) EmitBatch(events []Event) error {
	for _, e := range events {
		b.Emit(e)
	}
	return nil
}

// Flush is a no-op: BufferedEmitter has no internal async queue to drain.
func (b *BufferedEmitter) Flush() error { return nil }

// Subscribe returns a live channel of events for executionID plus an
// unsubscribe function. The channel is closed exactly once, on unsubscribe.
func (b *BufferedEmitter) Subscribe(executionID string) (<-chan Event, func()) {
	sub := &subscription{ch: make(chan Event, b.queueDepth)}
	b.mu.Lock()
	b.subscribers[executionID] = append(b.subscribers[executionID], sub)
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub.closed {
			return
		}
		sub.closed = true
		close(sub.ch)
		list := b.subscribers[executionID]
		for i, s := range list {
			if s == sub {
				b.subscribers[executionID] = append(list[:i], list[i+1:]...)
				break
			}
		}
	}
	return sub.ch, unsubscribe
}

// History returns a copy of every event recorded for executionID, in
// emission order.
func (b *BufferedEmitter) History(executionID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	events := b.history[executionID]
	out := make([]Event, len(events))
	copy(out, events)
	return out
}

// Clear discards recorded history for executionID, or all history if
// executionID is empty.
func (b *BufferedEmitter) Clear(executionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if executionID == "" {
		b.history = make(map[string][]Event)
		return
	}
	delete(b.history, executionID)
}
