// Package bus implements the process-wide broadcast channel that fans
// accepted listing batches out to every live subscriber.
//
// The bus retains a small ring of recent batches. Publishing never blocks:
// a subscriber that falls behind the retained window has its oldest unread
// batches dropped and observes ErrLagged on its next receive instead of
// slowing the producer or any other subscriber down. Drops only skip, they
// never reorder.
package bus

import (
	"context"
	"errors"
	"sync"

	"partyboard/internal/domain"
	"partyboard/internal/metrics"
)

var (
	// ErrLagged reports that the subscriber fell behind the retained window
	// and unread batches were dropped.
	ErrLagged = errors.New("subscriber lagged behind retained window")
	// ErrClosed reports that the bus or the subscriber has been closed and
	// all retained batches were drained.
	ErrClosed = errors.New("bus closed")
)

// Bus is a multi-producer, multi-consumer broadcast channel over batches of
// listings. Batches are shared across subscribers and must not be mutated.
type Bus struct {
	mu       sync.Mutex
	ring     [][]domain.Listing
	capacity uint64
	nextSeq  uint64
	subs     int
	wake     chan struct{}
	closed   bool
}

func New(capacity int) *Bus {
	if capacity < 1 {
		capacity = 1
	}
	return &Bus{
		ring:     make([][]domain.Listing, capacity),
		capacity: uint64(capacity),
		wake:     make(chan struct{}),
	}
}

// Publish appends a batch to the ring and wakes every waiting subscriber.
// Publishing to a bus with no subscribers is not an error; the batch simply
// ages out of the ring.
func (b *Bus) Publish(listings []domain.Listing) {
	if len(listings) == 0 {
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.ring[b.nextSeq%b.capacity] = listings
	b.nextSeq++
	close(b.wake)
	b.wake = make(chan struct{})
	b.mu.Unlock()

	metrics.BusPublishedTotal.Inc()
}

// Close shuts the bus down. Subscribers drain any batches still retained in
// the ring, then observe ErrClosed.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.wake)
}

// Subscribe returns an independent cursor positioned after the most recently
// published batch.
func (b *Bus) Subscribe() *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs++
	metrics.BusSubscribers.Set(float64(b.subs))
	return &Subscriber{bus: b, next: b.nextSeq}
}

// SubscriberCount returns the number of open subscribers.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subs
}

// Subscriber is a single consumer cursor. Not safe for concurrent use by
// multiple goroutines; each forwarding task owns exactly one.
type Subscriber struct {
	bus    *Bus
	next   uint64
	closed bool
}

// Recv blocks until the next batch is available, the context is cancelled,
// or the bus is closed and drained. If the cursor fell out of the retained
// window, Recv fast-forwards past the gap and returns ErrLagged; the batch
// after the gap is delivered by the following call if the subscriber elects
// to continue.
func (s *Subscriber) Recv(ctx context.Context) ([]domain.Listing, error) {
	for {
		s.bus.mu.Lock()
		if s.closed {
			s.bus.mu.Unlock()
			return nil, ErrClosed
		}

		var oldest uint64
		if s.bus.nextSeq > s.bus.capacity {
			oldest = s.bus.nextSeq - s.bus.capacity
		}
		if s.next < oldest {
			dropped := oldest - s.next
			s.next = oldest
			s.bus.mu.Unlock()
			metrics.BusDroppedTotal.Add(float64(dropped))
			return nil, ErrLagged
		}
		if s.next < s.bus.nextSeq {
			batch := s.bus.ring[s.next%s.bus.capacity]
			s.next++
			s.bus.mu.Unlock()
			return batch, nil
		}
		if s.bus.closed {
			s.bus.mu.Unlock()
			return nil, ErrClosed
		}

		wake := s.bus.wake
		s.bus.mu.Unlock()

		select {
		case <-wake:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close releases the cursor. Safe to call more than once.
func (s *Subscriber) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.bus.subs--
	metrics.BusSubscribers.Set(float64(s.bus.subs))
}
