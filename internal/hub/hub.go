// Package hub implements the per-session event pub/sub: sequence
// assignment, fan-out to live subscribers, replay of events emitted
// earlier in this hub's lifetime, bounded per-subscriber backpressure, and
// handoff to a persistence writer.
//
// Grounded on the teacher's internal/events/bus/memory.go subscription
// bookkeeping (mutex-guarded subscriber map, per-subscriber dispatch),
// adapted from that bus's unbounded goroutine-per-publish fan-out to a
// bounded, drop-on-overflow channel per subscriber as spec requires.
package hub

import (
	"sync"
	"time"

	"github.com/extractumio/agentum/internal/apperr"
	"github.com/extractumio/agentum/internal/eventpb"
)

// DefaultBufferSize is the per-subscriber channel capacity used when a hub
// is constructed without an explicit override.
const DefaultBufferSize = 256

// persistSendTimeout bounds how long Publish waits for room on a full
// persist channel before giving up on persisting that event.
const persistSendTimeout = 5 * time.Second

// Hub is the single in-memory event stream for one session's run. A Hub's
// lifetime spans from session start to its terminal event; it is disposed
// once the stream ends.
type Hub struct {
	sessionID  string
	bufferSize int

	mu      sync.Mutex
	seq     uint64
	history []eventpb.Event
	subs    map[uint64]*subscription
	nextSub uint64
	closed  bool

	persistCh chan eventpb.Event
}

// New constructs a Hub for sessionID. persistCh, if non-nil, receives every
// persistable event for the writer goroutine to commit; the hub never
// blocks publishing on a full persist channel beyond persistSendTimeout.
func New(sessionID string, bufferSize int, persistCh chan eventpb.Event) *Hub {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Hub{
		sessionID:  sessionID,
		bufferSize: bufferSize,
		subs:       make(map[uint64]*subscription),
		persistCh:  persistCh,
	}
}

// subscription is one live subscriber's mailbox.
type subscription struct {
	id      uint64
	ch      chan eventpb.Event
	dropped bool
}

// Subscription is the caller-facing handle returned by Subscribe.
type Subscription struct {
	Events <-chan eventpb.Event
	hub    *Hub
	id     uint64
}

// Close detaches the subscriber. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s.id)
}

// Publish assigns the next sequence number and timestamp, fans the event
// out to every live subscriber, and forwards it to the persistence channel
// if persistable. Returns the finalized Event as recorded in hub history.
// Publish on a closed hub (i.e. after a terminal event) is a no-op
// returning the zero Event, since the spec guarantees no event follows a
// terminal kind.
func (h *Hub) Publish(kind eventpb.Kind, payload any) eventpb.Event {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return eventpb.Event{}
	}

	h.seq++
	ev := eventpb.Event{
		Kind:      kind,
		Sequence:  h.seq,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
	h.history = append(h.history, ev)

	for id, sub := range h.subs {
		if sub.dropped {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			h.dropLocked(id, sub)
		}
	}

	terminal := ev.Terminal()
	h.mu.Unlock()

	if ev.Persistable() && h.persistCh != nil {
		select {
		case h.persistCh <- ev:
		case <-time.After(persistSendTimeout):
			// The writer has fallen more than persistSendTimeout behind;
			// this event is streamed but not persisted.
		}
	}

	if terminal {
		h.closeAll()
	}
	return ev
}

// dropLocked marks sub as lagged, delivers a final SubscriberLagged marker
// in place of its oldest undelivered event, and closes its channel. Caller
// holds h.mu.
func (h *Hub) dropLocked(id uint64, sub *subscription) {
	sub.dropped = true
	lagged := apperr.SubscriberLagged("subscriber buffer overflowed, dropping")
	// The channel is full (that is why sub is being dropped); free one slot
	// so the marker fits as the last event the subscriber receives.
	select {
	case <-sub.ch:
	default:
	}
	select {
	case sub.ch <- eventpb.Event{Kind: eventpb.KindError, Sequence: h.seq, Timestamp: time.Now().UTC(), Payload: eventpb.ErrorPayload{Message: lagged.Message, ErrorType: lagged.Code}}:
	default:
	}
	close(sub.ch)
	delete(h.subs, id)
}

// Subscribe attaches a new subscriber, replaying buffered history with
// Sequence > afterSequence before switching to live delivery. The replay
// and live-registration happen under one lock acquisition so no event
// published concurrently with this call can be missed or duplicated.
func (h *Hub) Subscribe(afterSequence uint64) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	ch := make(chan eventpb.Event, h.bufferSize)
	for _, ev := range h.history {
		if ev.Sequence <= afterSequence {
			continue
		}
		select {
		case ch <- ev:
		default:
			// Replay backlog exceeds the buffer; rather than silently
			// truncate, tell the subscriber it lagged immediately.
			lagged := apperr.SubscriberLagged("replay backlog exceeds subscriber buffer")
			<-ch // make room so the lagged marker is the last event delivered
			ch <- eventpb.Event{Kind: eventpb.KindError, Sequence: ev.Sequence, Timestamp: time.Now().UTC(), Payload: eventpb.ErrorPayload{Message: lagged.Message, ErrorType: lagged.Code}}
			close(ch)
			return &Subscription{Events: ch, hub: h, id: 0}
		}
	}

	if h.closed {
		close(ch)
		return &Subscription{Events: ch, hub: h, id: 0}
	}

	h.nextSub++
	id := h.nextSub
	h.subs[id] = &subscription{id: id, ch: ch}
	return &Subscription{Events: ch, hub: h, id: id}
}

func (h *Hub) unsubscribe(id uint64) {
	if id == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subs[id]; ok {
		delete(h.subs, id)
		if !sub.dropped {
			close(sub.ch)
		}
	}
}

// closeAll closes every live subscriber's channel once the terminal event
// has already been delivered to it.
func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, sub := range h.subs {
		if !sub.dropped {
			close(sub.ch)
		}
		delete(h.subs, id)
	}
}

// SessionID returns the session this hub streams events for.
func (h *Hub) SessionID() string {
	return h.sessionID
}
