// Package stats keeps a periodically refreshed snapshot of the listing
// aggregates so the stats endpoint never runs the aggregation query inline.
package stats

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"partyboard/internal/domain"
)

// Source produces the aggregates, typically the Postgres listing repository.
type Source interface {
	Stats(ctx context.Context, liveWindow time.Duration) (domain.ListingStats, error)
}

// Snapshot is one refreshed set of aggregates.
type Snapshot struct {
	domain.ListingStats
	RefreshedAt time.Time `json:"refreshed_at"`
}

// Refresher queries the source once at startup and then on a fixed
// interval, holding the latest successful snapshot for readers.
type Refresher struct {
	source     Source
	clock      clockwork.Clock
	interval   time.Duration
	liveWindow time.Duration

	mu       sync.RWMutex
	snapshot *Snapshot
}

func NewRefresher(source Source, clock clockwork.Clock, interval, liveWindow time.Duration) *Refresher {
	return &Refresher{
		source:     source,
		clock:      clock,
		interval:   interval,
		liveWindow: liveWindow,
	}
}

// Run refreshes immediately, then on every tick until ctx is cancelled. A
// failed refresh keeps the previous snapshot in place.
func (r *Refresher) Run(ctx context.Context) {
	r.refresh(ctx)

	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.Chan():
			r.refresh(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Refresher) refresh(ctx context.Context) {
	stats, err := r.source.Stats(ctx, r.liveWindow)
	if err != nil {
		slog.Error("Failed to refresh stats", "error", err)
		return
	}

	r.mu.Lock()
	r.snapshot = &Snapshot{ListingStats: stats, RefreshedAt: r.clock.Now()}
	r.mu.Unlock()
}

// Current returns the latest snapshot, or false when no refresh has
// succeeded yet.
func (r *Refresher) Current() (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.snapshot == nil {
		return Snapshot{}, false
	}
	return *r.snapshot, true
}
