// Package realtime fans stored posts out to connected clients.
//
// A Hub delivers each published Event to every subscription registered before
// the publish, at most once, without blocking the publisher. Subscribers that
// fall behind are dropped rather than queued: their channel is closed and the
// transport disconnects them. Clients recover by refetching the feed.
//
// Basic usage:
//
//	hub := realtime.NewHub()
//	defer hub.Close()
//
//	sub, _ := hub.Subscribe()
//	defer sub.Close()
//	for ev := range sub.Events() {
//	    ...
//	}
package realtime

import (
	"errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// DefaultBuffer is the per-subscription event buffer.
const DefaultBuffer = 16

// ErrChannelDegraded is returned when the hub is closed and cannot accept
// subscribers or deliver events.
var ErrChannelDegraded = errors.New("realtime channel degraded")

// Stats is a snapshot of hub counters.
type Stats struct {
	Subscribers int
	Published   uint64
	Delivered   uint64
	Dropped     uint64 // subscriptions dropped for being slow
}

// Hub is the process-wide fan-out point. It is safe for concurrent use.
type Hub struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool

	// pubMu serializes Publish so every subscriber sees events in publish order.
	pubMu sync.Mutex

	buffer int
	log    *zap.Logger

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// Option configures a Hub.
type Option func(*Hub)

// WithBuffer sets the per-subscription buffer size.
func WithBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.buffer = n
		}
	}
}

// WithLogger sets the hub logger.
func WithLogger(l *zap.Logger) Option {
	return func(h *Hub) {
		if l != nil {
			h.log = l
		}
	}
}

// NewHub creates an open hub.
func NewHub(opts ...Option) *Hub {
	h := &Hub{
		subs:   make(map[uint64]*Subscription),
		buffer: DefaultBuffer,
		log:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe registers a new subscription. It receives only events published
// after it was created.
func (h *Hub) Subscribe() (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrChannelDegraded
	}
	h.nextID++
	s := &Subscription{
		id:  h.nextID,
		hub: h,
		ch:  make(chan Event, h.buffer),
	}
	h.subs[s.id] = s
	return s, nil
}

// Publish delivers ev to a snapshot of current subscribers and returns
// without waiting on any of them. A subscriber with a full buffer is dropped.
func (h *Hub) Publish(ev Event) error {
	h.pubMu.Lock()
	defer h.pubMu.Unlock()

	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return ErrChannelDegraded
	}
	snapshot := make([]*Subscription, 0, len(h.subs))
	for _, s := range h.subs {
		snapshot = append(snapshot, s)
	}
	h.mu.RUnlock()

	h.published.Add(1)
	for _, s := range snapshot {
		switch s.deliver(ev) {
		case deliverOK:
			h.delivered.Add(1)
		case deliverFull:
			h.dropped.Add(1)
			h.remove(s.id)
			s.shutdown(true)
			h.log.Warn("dropped slow subscriber",
				zap.Uint64("subscription", s.id),
				zap.String("event", ev.Name()))
		}
	}
	return nil
}

// Stats returns current counters.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	n := len(h.subs)
	h.mu.RUnlock()
	return Stats{
		Subscribers: n,
		Published:   h.published.Load(),
		Delivered:   h.delivered.Load(),
		Dropped:     h.dropped.Load(),
	}
}

// Close ends every subscription. Later calls are no-ops.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	subs := h.subs
	h.subs = make(map[uint64]*Subscription)
	h.mu.Unlock()

	for _, s := range subs {
		s.shutdown(false)
	}
	return nil
}

func (h *Hub) remove(id uint64) {
	h.mu.Lock()
	delete(h.subs, id)
	h.mu.Unlock()
}

type deliverResult int

const (
	deliverOK deliverResult = iota
	deliverFull
	deliverClosed
)

// Subscription is one client's view of the hub.
type Subscription struct {
	id  uint64
	hub *Hub
	ch  chan Event

	mu      sync.Mutex
	closed  bool
	dropped bool
}

// Events yields published events. It is closed when the subscription ends.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Dropped reports whether the hub ended the subscription for falling behind.
func (s *Subscription) Dropped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close deregisters the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s.id)
	s.shutdown(false)
}

func (s *Subscription) deliver(ev Event) deliverResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return deliverClosed
	}
	select {
	case s.ch <- ev:
		return deliverOK
	default:
		return deliverFull
	}
}

func (s *Subscription) shutdown(dropped bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.dropped = dropped
	close(s.ch)
}
