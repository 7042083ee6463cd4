package tspd

import (
	"sync"

	"github.com/Se7enCodes/TSP-Visual---Hill-Climbing/internal/search"
	"github.com/Se7enCodes/TSP-Visual---Hill-Climbing/pkg/utils"
)

// subscriberBuffer is the per-subscriber channel depth. A subscriber that
// falls further behind than this loses intermediate snapshots.
const subscriberBuffer = 8

// Subscription receives one run's snapshot stream. C is closed when the
// run reaches a terminal state or the subscription is closed.
type Subscription struct {
	C chan search.Snapshot

	id    string
	hub   *StreamHub
	runID string
}

// ID identifies the subscriber, for logging
func (s *Subscription) ID() string {
	return s.id
}

// Close unregisters the subscription and closes C. Safe to call more
// than once.
func (s *Subscription) Close() {
	s.hub.remove(s.runID, s)
}

// StreamHub fans live run snapshots out to stream subscribers.
type StreamHub struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
}

func NewStreamHub() *StreamHub {
	return &StreamHub{
		subs: make(map[string]map[*Subscription]struct{}),
	}
}

// Subscribe registers for a run's snapshots. The caller must Close the
// subscription when done.
func (h *StreamHub) Subscribe(runID string) *Subscription {
	sub := &Subscription{
		C:     make(chan search.Snapshot, subscriberBuffer),
		id:    utils.GenerateClientID(),
		hub:   h,
		runID: runID,
	}

	h.mu.Lock()
	set, ok := h.subs[runID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[runID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Broadcast delivers a snapshot to every subscriber of the run. Sends
// never block; a full subscriber drops the snapshot instead of stalling
// the run loop.
func (h *StreamHub) Broadcast(runID string, snap search.Snapshot) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[runID] {
		select {
		case sub.C <- snap:
		default:
		}
	}
}

// CloseRun closes every subscription of a run, signalling end of stream.
func (h *StreamHub) CloseRun(runID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[runID] {
		close(sub.C)
	}
	delete(h.subs, runID)
}

// SubscriberCount reports how many subscribers a run currently has.
func (h *StreamHub) SubscriberCount(runID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[runID])
}

func (h *StreamHub) remove(runID string, sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[runID]
	if !ok {
		return
	}
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	close(sub.C)
	if len(set) == 0 {
		delete(h.subs, runID)
	}
}
