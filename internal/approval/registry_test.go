package approval

import (
	"testing"
	"time"
)

func TestSubmitResolvesExactlyOnce(t *testing.T) {
	r := NewRegistry()
	var got Response
	resolved := make(chan struct{}, 1)
	r.Register("exec-1", "node-1", func(resp Response) {
		got = resp
		resolved <- struct{}{}
	}, func(error) {}, 0, nil)

	if ok := r.Submit("exec-1", "node-1", Response{Approved: true}); !ok {
		t.Fatalf("expected first submit to succeed")
	}
	<-resolved
	if !got.Approved {
		t.Fatalf("expected approved response")
	}
	if ok := r.Submit("exec-1", "node-1", Response{Approved: false}); ok {
		t.Fatalf("expected second submit to fail, entry already resolved")
	}
	if r.Pending("exec-1", "node-1") {
		t.Fatalf("expected entry removed after resolution")
	}
}

func TestSubmitAbsentReturnsFalse(t *testing.T) {
	r := NewRegistry()
	if ok := r.Submit("exec-1", "nope", Response{}); ok {
		t.Fatalf("expected false for absent key")
	}
}

func TestCancelAllRejectsOnlyMatchingExecution(t *testing.T) {
	r := NewRegistry()
	var rejectedA, rejectedB bool
	r.Register("exec-a", "n1", func(Response) {}, func(error) { rejectedA = true }, 0, nil)
	r.Register("exec-b", "n1", func(Response) {}, func(error) { rejectedB = true }, 0, nil)

	r.CancelAll("exec-a")

	if !rejectedA {
		t.Fatalf("expected exec-a entry rejected")
	}
	if rejectedB {
		t.Fatalf("expected exec-b entry untouched")
	}
	if r.Pending("exec-a", "n1") {
		t.Fatalf("expected exec-a entry removed")
	}
	if !r.Pending("exec-b", "n1") {
		t.Fatalf("expected exec-b entry still pending")
	}
}

func TestTimeoutFiresOnce(t *testing.T) {
	r := NewRegistry()
	fired := make(chan struct{}, 1)
	r.Register("exec-1", "n1", func(Response) {}, func(error) {}, 10*time.Millisecond, func() {
		fired <- struct{}{}
	})

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatalf("timeout never fired")
	}
	if r.Pending("exec-1", "n1") {
		t.Fatalf("expected entry removed after timeout")
	}
	if r.Submit("exec-1", "n1", Response{}) {
		t.Fatalf("expected submit after timeout to fail")
	}
}

func TestTimeoutCancelledOnResolution(t *testing.T) {
	r := NewRegistry()
	firedCh := make(chan struct{}, 1)
	r.Register("exec-1", "n1", func(Response) {}, func(error) {}, 50*time.Millisecond, func() {
		firedCh <- struct{}{}
	})
	r.Submit("exec-1", "n1", Response{Approved: true})

	select {
	case <-firedCh:
		t.Fatalf("timeout fired after resolution")
	case <-time.After(100 * time.Millisecond):
	}
}
