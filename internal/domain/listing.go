package domain

import (
	"context"
	"encoding/json"
	"time"
)

// SearchAreaPrivate is the search_area bit marking a listing as private.
// Private listings are accepted but never returned by window queries.
const SearchAreaPrivate = 1 << 1

// ListingKey is the identity triple of a listing. A resubmission with the
// same key supersedes the previous payload instead of creating a new record.
type ListingKey struct {
	ID                uint32
	LastServerRestart uint32
	CreatedWorld      uint16
}

// Listing is one recruitment post as submitted by a client. The named fields
// are the envelope this service validates and keys on; the raw frame is kept
// verbatim so storage and redistribution never drop fields the envelope does
// not model.
type Listing struct {
	ID                uint32
	LastServerRestart uint32
	CreatedWorld      uint16
	HomeWorld         uint16
	CurrentWorld      uint16
	SecondsRemaining  uint16
	SearchArea        uint32

	raw json.RawMessage
}

type listingEnvelope struct {
	ID                uint32 `json:"id"`
	LastServerRestart uint32 `json:"last_server_restart"`
	CreatedWorld      uint16 `json:"created_world"`
	HomeWorld         uint16 `json:"home_world"`
	CurrentWorld      uint16 `json:"current_world"`
	SecondsRemaining  uint16 `json:"seconds_remaining"`
	SearchArea        uint32 `json:"search_area"`
}

// UnmarshalJSON decodes the envelope fields and retains the full frame.
func (l *Listing) UnmarshalJSON(data []byte) error {
	var env listingEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	*l = Listing{
		ID:                env.ID,
		LastServerRestart: env.LastServerRestart,
		CreatedWorld:      env.CreatedWorld,
		HomeWorld:         env.HomeWorld,
		CurrentWorld:      env.CurrentWorld,
		SecondsRemaining:  env.SecondsRemaining,
		SearchArea:        env.SearchArea,
		raw:               append(json.RawMessage(nil), data...),
	}
	return nil
}

// MarshalJSON writes the original frame back out unchanged. Listings built
// in code (tests, mostly) fall back to the envelope fields.
func (l Listing) MarshalJSON() ([]byte, error) {
	if l.raw != nil {
		return l.raw, nil
	}
	return json.Marshal(listingEnvelope{
		ID:                l.ID,
		LastServerRestart: l.LastServerRestart,
		CreatedWorld:      l.CreatedWorld,
		HomeWorld:         l.HomeWorld,
		CurrentWorld:      l.CurrentWorld,
		SecondsRemaining:  l.SecondsRemaining,
		SearchArea:        l.SearchArea,
	})
}

func (l *Listing) Key() ListingKey {
	return ListingKey{ID: l.ID, LastServerRestart: l.LastServerRestart, CreatedWorld: l.CreatedWorld}
}

func (l *Listing) Private() bool {
	return l.SearchArea&SearchAreaPrivate != 0
}

// QueriedListing is a stored listing as returned by a window query, with the
// remaining time derived from seconds_remaining and the age of the record.
type QueriedListing struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	TimeLeft  float64   `json:"time_left"`
	Listing   Listing   `json:"listing"`
}

// ListingStore is the persistence boundary. Upsert must be atomic per key:
// the first insert sets created_at, every later accepted resubmission only
// refreshes updated_at and the payload.
type ListingStore interface {
	Upsert(ctx context.Context, listing *Listing, now time.Time) error
	QueryWindow(ctx context.Context, maxAge time.Duration) ([]QueriedListing, error)
}
