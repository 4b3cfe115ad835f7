package emit

import (
	"testing"
	"time"
)

func TestBufferedEmitterHistory(t *testing.T) {
	b := NewBufferedEmitter(4)
	b.Emit(Event{Type: ExecutionStart, ExecutionID: "e1", Timestamp: time.Now()})
	b.Emit(Event{Type: NodeStart, ExecutionID: "e1", NodeID: "n1", Timestamp: time.Now()})
	b.Emit(Event{Type: ExecutionStart, ExecutionID: "e2", Timestamp: time.Now()})

	h1 := b.History("e1")
	if len(h1) != 2 {
		t.Fatalf("expected 2 events for e1, got %d", len(h1))
	}
	if len(b.History("e2")) != 1 {
		t.Fatalf("expected 1 event for e2")
	}
}

func TestBufferedEmitterSubscribe(t *testing.T) {
	b := NewBufferedEmitter(4)
	ch, unsubscribe := b.Subscribe("e1")
	defer unsubscribe()

	go b.Emit(Event{Type: NodeComplete, ExecutionID: "e1", NodeID: "n1"})

	select {
	case e := <-ch:
		if e.NodeID != "n1" {
			t.Fatalf("unexpected event: %+v", e)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscribed event")
	}
}

func TestBufferedEmitterUnsubscribeClosesChannel(t *testing.T) {
	b := NewBufferedEmitter(4)
	ch, unsubscribe := b.Subscribe("e1")
	unsubscribe()

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after unsubscribe")
	}
}

func TestBufferedEmitterClear(t *testing.T) {
	b := NewBufferedEmitter(4)
	b.Emit(Event{Type: ExecutionStart, ExecutionID: "e1"})
	b.Clear("e1")
	if len(b.History("e1")) != 0 {
		t.Fatal("expected history to be cleared")
	}
}
