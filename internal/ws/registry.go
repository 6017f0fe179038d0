package ws

import (
	"context"

	"partyboard/internal/domain"
	"partyboard/internal/metrics"
)

// handle is the cancellable identity of one forwarding task. Events report
// the handle back so a stale completion can never evict a newer task.
type handle struct {
	cancel context.CancelFunc
}

// registry maps channels to the cancel handle of their forwarding task. It
// is owned exclusively by one client's actor goroutine; no locking needed.
type registry struct {
	handles map[domain.Channel]*handle
}

func newRegistry() *registry {
	return &registry{handles: make(map[domain.Channel]*handle)}
}

// insert records a new forwarding task for the channel. Any prior handle for
// the same channel is cancelled first, keeping at most one live task per
// channel even under a racing duplicate subscribe.
func (r *registry) insert(channel domain.Channel, cancel context.CancelFunc) *handle {
	if prior, ok := r.handles[channel]; ok {
		prior.cancel()
	} else {
		metrics.WSActiveSubscriptions.Inc()
	}
	h := &handle{cancel: cancel}
	r.handles[channel] = h
	return h
}

// remove cancels and forgets the channel's task, reporting whether one existed.
func (r *registry) remove(channel domain.Channel) bool {
	h, ok := r.handles[channel]
	if !ok {
		return false
	}
	h.cancel()
	delete(r.handles, channel)
	metrics.WSActiveSubscriptions.Dec()
	return true
}

// removeIf removes the channel's entry only when it still belongs to h.
func (r *registry) removeIf(channel domain.Channel, h *handle) bool {
	if cur, ok := r.handles[channel]; !ok || cur != h {
		return false
	}
	h.cancel()
	delete(r.handles, channel)
	metrics.WSActiveSubscriptions.Dec()
	return true
}

func (r *registry) has(channel domain.Channel) bool {
	_, ok := r.handles[channel]
	return ok
}

func (r *registry) len() int {
	return len(r.handles)
}

// removeAll cancels every task and clears the map. Cancellation is a
// request, not a join: the tasks observe it cooperatively and release their
// bus cursors on their own time. Safe to call repeatedly.
func (r *registry) removeAll() {
	for channel, h := range r.handles {
		h.cancel()
		delete(r.handles, channel)
		metrics.WSActiveSubscriptions.Dec()
	}
}
