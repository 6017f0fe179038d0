// Package ingest validates freshly submitted listings and forwards the
// accepted ones to the store and the broadcast bus.
package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonboulle/clockwork"

	"partyboard/internal/domain"
	"partyboard/internal/metrics"
)

// Publisher is the broadcast side of the bus, as consumed by the gate.
type Publisher interface {
	Publish(listings []domain.Listing)
}

// Gate accepts listing submissions. Validation happens before any side
// effect; accepted listings are upserted and then published regardless of
// whether any viewer is currently subscribed.
type Gate struct {
	store        domain.ListingStore
	publisher    Publisher
	clock        clockwork.Clock
	worldCeiling uint16
	maxSeconds   uint16
}

func NewGate(store domain.ListingStore, publisher Publisher, clock clockwork.Clock, worldCeiling, maxSeconds int) *Gate {
	return &Gate{
		store:        store,
		publisher:    publisher,
		clock:        clock,
		worldCeiling: uint16(worldCeiling),
		maxSeconds:   uint16(maxSeconds),
	}
}

func (g *Gate) validate(listing *domain.Listing) error {
	if listing.SecondsRemaining > g.maxSeconds {
		return fmt.Errorf("%w: %d > %d", domain.ErrDurationTooLong, listing.SecondsRemaining, g.maxSeconds)
	}
	if listing.CreatedWorld >= g.worldCeiling || listing.HomeWorld >= g.worldCeiling || listing.CurrentWorld >= g.worldCeiling {
		return fmt.Errorf("%w: ceiling %d", domain.ErrWorldOutOfRange, g.worldCeiling)
	}
	return nil
}

// Submit validates and stores one listing, then publishes it as a batch of
// one. The store error, if any, is returned to the submitter — resubmission
// is the client's retry mechanism — but does not suppress publication.
func (g *Gate) Submit(ctx context.Context, listing *domain.Listing) error {
	if err := g.validate(listing); err != nil {
		metrics.SubmissionsTotal.WithLabelValues("rejected").Inc()
		return err
	}
	metrics.SubmissionsTotal.WithLabelValues("accepted").Inc()

	storeErr := g.store.Upsert(ctx, listing, g.clock.Now())
	if storeErr != nil {
		metrics.StoreErrorsTotal.Inc()
		slog.Error("Failed to store listing", "listing_id", listing.ID, "created_world", listing.CreatedWorld, "error", storeErr)
	}

	g.publisher.Publish([]domain.Listing{*listing})

	if storeErr != nil {
		return fmt.Errorf("failed to store listing: %w", storeErr)
	}
	return nil
}

// SubmitMany applies per-item validation, stores each valid listing and
// publishes the valid subset as a single batch. Invalid or failed items are
// skipped, never retried. Returns how many listings were stored.
func (g *Gate) SubmitMany(ctx context.Context, listings []domain.Listing) (accepted int) {
	valid := make([]domain.Listing, 0, len(listings))
	for i := range listings {
		if err := g.validate(&listings[i]); err != nil {
			metrics.SubmissionsTotal.WithLabelValues("rejected").Inc()
			slog.Debug("Rejected listing in batch", "listing_id", listings[i].ID, "error", err)
			continue
		}
		metrics.SubmissionsTotal.WithLabelValues("accepted").Inc()
		valid = append(valid, listings[i])

		if err := g.store.Upsert(ctx, &listings[i], g.clock.Now()); err != nil {
			metrics.StoreErrorsTotal.Inc()
			slog.Error("Failed to store listing", "listing_id", listings[i].ID, "created_world", listings[i].CreatedWorld, "error", err)
			continue
		}
		accepted++
	}

	if len(valid) > 0 {
		g.publisher.Publish(valid)
	}
	return accepted
}
