// Package hub fans daemon events out to observers. Each observer gets a
// buffered queue; a slow observer loses events rather than slowing the
// publisher or its peers. New observers receive a replay of recent log
// lines so a UI attaching mid-session has context.
package hub

import (
	"sync"
	"sync/atomic"

	"go.aimuz.me/voxd/internal/types"
)

const (
	// defaultQueue is the per-observer event queue depth.
	defaultQueue = 64
	// logRingSize is how many log events are replayed to new observers.
	logRingSize = 200
)

// Subscription is one observer's attachment to the hub.
type Subscription struct {
	C      <-chan types.Event
	id     uint64
	hub    *Hub
	closed sync.Once
}

// Close detaches the observer and closes C.
func (s *Subscription) Close() {
	s.closed.Do(func() { s.hub.drop(s.id) })
}

type observer struct {
	ch      chan types.Event
	dropped atomic.Uint64
}

// Hub is the event broadcaster.
type Hub struct {
	mu        sync.RWMutex
	observers map[uint64]*observer
	nextID    uint64

	logMu   sync.Mutex
	logRing []types.Event // newest last, bounded by logRingSize
}

// New creates an empty hub.
func New() *Hub {
	return &Hub{observers: make(map[uint64]*observer)}
}

// Subscribe attaches a new observer. Recent log events are preloaded
// into its queue.
func (h *Hub) Subscribe() *Subscription {
	o := &observer{ch: make(chan types.Event, defaultQueue)}

	h.logMu.Lock()
	replay := append([]types.Event(nil), h.logRing...)
	h.logMu.Unlock()
	for _, ev := range replay {
		select {
		case o.ch <- ev:
		default:
		}
	}

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.observers[id] = o
	h.mu.Unlock()

	return &Subscription{C: o.ch, id: id, hub: h}
}

func (h *Hub) drop(id uint64) {
	h.mu.Lock()
	o, ok := h.observers[id]
	delete(h.observers, id)
	h.mu.Unlock()
	if ok {
		close(o.ch)
	}
}

// Observers returns the current observer count.
func (h *Hub) Observers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}

// Publish delivers ev to every observer without blocking. Log events
// also enter the replay ring.
func (h *Hub) Publish(ev types.Event) {
	if ev.Type == types.EventLog {
		h.logMu.Lock()
		h.logRing = append(h.logRing, ev)
		if len(h.logRing) > logRingSize {
			h.logRing = h.logRing[len(h.logRing)-logRingSize:]
		}
		h.logMu.Unlock()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, o := range h.observers {
		select {
		case o.ch <- ev:
		default:
			o.dropped.Add(1)
		}
	}
}
