// Package sse pushes task and summary changes to connected UI clients as
// Server-Sent Events. Every stream belongs to one owner and only sees that
// owner's changes.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/taskhive/taskhive/internal/auth"
)

// EventKPIs hints clients to refetch dashboard counters. It follows task
// changes, at most once per throttle interval per owner.
const EventKPIs = "kpis.updated"

const clientBuffer = 64

// Event is a single message for one owner's streams.
type Event struct {
	Owner string `json:"-"`
	Type  string `json:"type"`
	Data  any    `json:"data"`
}

type client struct {
	owner string
	ch    chan []byte
}

type countReq struct {
	owner string // "" counts every stream
	resp  chan int
}

// Broker fans record changes out to per-owner SSE streams.
//
// A single loop goroutine owns the stream table and the KPI throttle state;
// public methods talk to it over channels.
type Broker struct {
	kpiMin time.Duration

	joinCh  chan client
	leaveCh chan chan []byte
	eventCh chan Event
	countCh chan countReq

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker. kpiThrottle bounds how often kpis.updated is
// sent to one owner; non-positive values mean two seconds.
func NewBroker(kpiThrottle time.Duration) *Broker {
	if kpiThrottle <= 0 {
		kpiThrottle = 2 * time.Second
	}
	b := &Broker{
		kpiMin:  kpiThrottle,
		joinCh:  make(chan client),
		leaveCh: make(chan chan []byte),
		eventCh: make(chan Event, 256),
		countCh: make(chan countReq),
		stopCh:  make(chan struct{}),
		stopped: make(chan struct{}),
	}
	go b.loop()
	return b
}

// frame renders ev in the text/event-stream wire format.
func frame(ev Event) ([]byte, error) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return nil, err
	}
	return fmt.Appendf(nil, "event: %s\ndata: %s\n\n", ev.Type, data), nil
}

func (b *Broker) loop() {
	defer close(b.stopped)

	streams := make(map[string]map[chan []byte]struct{})
	owners := make(map[chan []byte]string)
	lastKPIs := make(map[string]time.Time)

	deliver := func(ev Event) {
		set := streams[ev.Owner]
		if len(set) == 0 {
			return
		}
		msg, err := frame(ev)
		if err != nil {
			return
		}
		for ch := range set {
			select {
			case ch <- msg:
			default:
				// slow reader, drop
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range owners {
				close(ch)
			}
			return

		case c := <-b.joinCh:
			set, ok := streams[c.owner]
			if !ok {
				set = make(map[chan []byte]struct{})
				streams[c.owner] = set
			}
			set[c.ch] = struct{}{}
			owners[c.ch] = c.owner

		case ch := <-b.leaveCh:
			owner, ok := owners[ch]
			if !ok {
				continue
			}
			delete(owners, ch)
			delete(streams[owner], ch)
			if len(streams[owner]) == 0 {
				delete(streams, owner)
				delete(lastKPIs, owner)
			}
			close(ch)

		case ev := <-b.eventCh:
			deliver(ev)
			if !strings.HasPrefix(ev.Type, "task.") {
				continue
			}
			if now := time.Now(); now.Sub(lastKPIs[ev.Owner]) >= b.kpiMin {
				lastKPIs[ev.Owner] = now
				deliver(Event{Owner: ev.Owner, Type: EventKPIs, Data: map[string]string{}})
			}

		case req := <-b.countCh:
			if req.owner == "" {
				req.resp <- len(owners)
			} else {
				req.resp <- len(streams[req.owner])
			}
		}
	}
}

// Close stops the loop and closes every stream. It is safe to call twice.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe opens a stream for owner. The channel is closed by Unsubscribe
// or Close.
func (b *Broker) Subscribe(owner string) chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.joinCh <- client{owner: owner, ch: ch}:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes and closes a stream.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.leaveCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of open streams for owner, or for every
// owner when owner is empty.
func (b *Broker) ClientCount(owner string) int {
	if b.closed.Load() {
		return 0
	}
	resp := make(chan int, 1)
	select {
	case b.countCh <- countReq{owner: owner, resp: resp}:
	case <-b.stopped:
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish queues ev for the streams of ev.Owner.
func (b *Broker) Publish(ev Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.eventCh <- ev:
	case <-b.stopped:
	}
}

// Notify publishes a record change (task.created, task.updated,
// summary.created) to owner's streams. Task changes are followed by a
// throttled kpis.updated.
func (b *Broker) Notify(owner, kind string, payload any) {
	b.Publish(Event{Owner: owner, Type: kind, Data: payload})
}

// ServeHTTP streams the caller's changes (GET /api/events). The owner comes
// from the request context set by the auth middleware.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe(auth.Owner(r.Context()))
	defer b.Unsubscribe(ch)

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
