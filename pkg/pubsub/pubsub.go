// Package pubsub fans simulation snapshots out to observers.
//
// Every subscription has a small bounded queue. When an observer falls
// behind, its oldest pending snapshot is discarded so the producer never
// blocks and a slow observer only ever misses intermediate frames.
package pubsub

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/ritzau/agentic-mesh/pkg/logging"
	"github.com/ritzau/agentic-mesh/pkg/model"
)

// ErrClosed is returned when subscribing to a closed hub
var ErrClosed = errors.New("pubsub: hub is closed")

// Queue depth bounds per observer
const (
	MinQueueDepth     = 1
	MaxQueueDepth     = 2
	DefaultQueueDepth = 2
)

// Subscription represents one observer
type Subscription interface {
	// ID identifies the observer in logs
	ID() string

	// Events delivers snapshots in tick order; closed when the subscription ends
	Events() <-chan *model.Snapshot

	// Close ends the subscription. Safe to call more than once.
	Close() error
}

// Hub publishes snapshots to every subscription, latest wins
type Hub struct {
	mu      sync.Mutex
	subs    map[*subscription]struct{}
	latest  *model.Snapshot
	depth   int
	closed  bool
	skipped atomic.Uint64
}

// NewHub creates a hub; depth is clamped to [MinQueueDepth, MaxQueueDepth]
func NewHub(depth int) *Hub {
	return &Hub{
		subs:  make(map[*subscription]struct{}),
		depth: min(max(depth, MinQueueDepth), MaxQueueDepth),
	}
}

// Subscribe registers an observer. The latest snapshot, if any, is queued
// immediately. Cancelling ctx closes the subscription.
func (h *Hub) Subscribe(ctx context.Context) (Subscription, error) {
	id := logging.GetObserverID(ctx)
	if id == "" {
		id = uuid.NewString()
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	sub := &subscription{
		id:     id,
		events: make(chan *model.Snapshot, h.depth),
		hub:    h,
		done:   make(chan struct{}),
	}
	h.subs[sub] = struct{}{}
	if h.latest != nil {
		sub.events <- h.latest
	}
	count := len(h.subs)
	h.mu.Unlock()

	logging.Debug("observer subscribed", "observer", id, "observers", count)

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()

	return sub, nil
}

// Publish offers snap to every observer without blocking.
// A full queue drops its oldest entry to make room.
func (h *Hub) Publish(snap *model.Snapshot) {
	if snap == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.latest = snap

	for sub := range h.subs {
		select {
		case sub.events <- snap:
			continue
		default:
		}
		// Only Publish sends and it holds h.mu, so one receive frees a slot
		select {
		case <-sub.events:
			h.skipped.Add(1)
		default:
		}
		sub.events <- snap
	}
}

// Retain replaces the snapshot replayed to new observers without
// pushing it to the ones already subscribed.
func (h *Hub) Retain(snap *model.Snapshot) {
	if snap == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		h.latest = snap
	}
}

// Latest returns the most recently published or retained snapshot or nil
func (h *Hub) Latest() *model.Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.latest
}

// Len returns the number of live subscriptions
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Skipped returns how many queued snapshots were discarded for slow observers
func (h *Hub) Skipped() uint64 {
	return h.skipped.Load()
}

// Close ends every subscription; later Subscribe calls fail with ErrClosed
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	subs := h.subs
	h.subs = make(map[*subscription]struct{})
	for sub := range subs {
		sub.finish()
	}
	h.mu.Unlock()
	return nil
}

func (h *Hub) unsubscribe(sub *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub]; !ok {
		return
	}
	delete(h.subs, sub)
	sub.finish()
	logging.Debug("observer unsubscribed", "observer", sub.id, "observers", len(h.subs))
}

type subscription struct {
	id     string
	events chan *model.Snapshot
	hub    *Hub
	done   chan struct{}
	once   sync.Once
}

func (s *subscription) ID() string {
	return s.id
}

func (s *subscription) Events() <-chan *model.Snapshot {
	return s.events
}

func (s *subscription) Close() error {
	s.hub.unsubscribe(s)
	return nil
}

// finish closes the channels exactly once; callers hold hub.mu
func (s *subscription) finish() {
	s.once.Do(func() {
		close(s.events)
		close(s.done)
	})
}
