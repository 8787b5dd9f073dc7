package sse

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/taskhive/taskhive/internal/auth"
)

// drain collects whatever is buffered on ch after a short settle.
func drain(ch chan []byte) []string {
	time.Sleep(50 * time.Millisecond)
	var out []string
	for {
		select {
		case msg := <-ch:
			out = append(out, string(msg))
		default:
			return out
		}
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	a1 := b.Subscribe("alice")
	a2 := b.Subscribe("alice")
	bob := b.Subscribe("bob")
	if n := b.ClientCount(""); n != 3 {
		t.Fatalf("total = %d, want 3", n)
	}
	if n := b.ClientCount("alice"); n != 2 {
		t.Fatalf("alice = %d, want 2", n)
	}

	b.Unsubscribe(a1)
	b.Unsubscribe(a2)
	b.Unsubscribe(bob)
	if n := b.ClientCount(""); n != 0 {
		t.Fatalf("total after unsubscribe = %d", n)
	}
}

func TestNotify_ScopedToOwner(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	alice := b.Subscribe("alice")
	bob := b.Subscribe("bob")
	defer b.Unsubscribe(alice)
	defer b.Unsubscribe(bob)

	b.Notify("alice", "summary.created", map[string]string{"title": "Q4 Budget Review"})

	got := drain(alice)
	if len(got) != 1 {
		t.Fatalf("alice got %d events, want 1", len(got))
	}
	if !strings.Contains(got[0], "event: summary.created") || !strings.Contains(got[0], `"title":"Q4 Budget Review"`) {
		t.Errorf("frame = %q", got[0])
	}
	if leaked := drain(bob); len(leaked) != 0 {
		t.Errorf("bob saw %v", leaked)
	}
}

func TestNotify_KPIThrottle(t *testing.T) {
	b := NewBroker(500 * time.Millisecond)
	defer b.Close()
	alice := b.Subscribe("alice")
	bob := b.Subscribe("bob")
	defer b.Unsubscribe(alice)
	defer b.Unsubscribe(bob)

	b.Notify("alice", "task.created", map[string]string{"id": "t1"})
	b.Notify("alice", "task.updated", map[string]string{"id": "t1"})
	b.Notify("alice", "summary.created", map[string]string{"id": "s1"})
	b.Notify("bob", "task.created", map[string]string{"id": "t2"})

	count := func(msgs []string) (changes, kpis int) {
		for _, m := range msgs {
			if strings.Contains(m, "event: "+EventKPIs) {
				kpis++
			} else {
				changes++
			}
		}
		return
	}

	changes, kpis := count(drain(alice))
	if changes != 3 || kpis != 1 {
		t.Errorf("alice: changes=%d kpis=%d, want 3 and 1", changes, kpis)
	}
	// Throttle state is per owner.
	changes, kpis = count(drain(bob))
	if changes != 1 || kpis != 1 {
		t.Errorf("bob: changes=%d kpis=%d, want 1 and 1", changes, kpis)
	}
}

func TestServeHTTP_UsesRequestOwner(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	defer b.Close()

	ctx, cancel := context.WithCancel(auth.WithOwner(context.Background(), "alice"))
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		b.ServeHTTP(w, req)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	if n := b.ClientCount("alice"); n != 1 {
		t.Fatalf("alice streams = %d, want 1", n)
	}

	b.Notify("bob", "summary.created", map[string]string{"title": "not yours"})
	b.Notify("alice", "summary.created", map[string]string{"title": "Q4 Budget Review"})
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	if ct := w.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := w.Body.String()
	if !strings.Contains(body, "Q4 Budget Review") {
		t.Errorf("missing own event: %q", body)
	}
	if strings.Contains(body, "not yours") {
		t.Errorf("foreign event leaked: %q", body)
	}

	time.Sleep(50 * time.Millisecond)
	if n := b.ClientCount(""); n != 0 {
		t.Errorf("stream not released after disconnect")
	}
}

func TestPublish_FullBufferDoesNotBlock(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	ch := b.Subscribe("alice")
	defer b.Unsubscribe(ch)

	for i := 0; i < clientBuffer+10; i++ {
		b.Publish(Event{Owner: "alice", Type: "test", Data: i})
	}
	if n := len(drain(ch)); n != clientBuffer {
		t.Errorf("buffered = %d, want %d", n, clientBuffer)
	}
}

func TestClose(t *testing.T) {
	b := NewBroker(100 * time.Millisecond)
	ch := b.Subscribe("alice")

	b.Close()

	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("stream left open")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for close")
	}
	if n := b.ClientCount(""); n != 0 {
		t.Fatalf("count after close = %d", n)
	}

	// no-ops once closed
	b.Close()
	b.Notify("alice", "task.updated", nil)
	if late := b.Subscribe("alice"); late != nil {
		if _, ok := <-late; ok {
			t.Error("subscribe after close returned an open stream")
		}
	}
}
