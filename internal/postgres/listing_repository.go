package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"partyboard/internal/domain"
)

// ListingRepo implements domain.ListingStore backed by PostgreSQL.
type ListingRepo struct {
	pool *pgxpool.Pool
}

func NewListingRepo(pool *pgxpool.Pool) *ListingRepo {
	return &ListingRepo{pool: pool}
}

// Upsert inserts the listing or, when the key triple already exists,
// replaces the payload and refreshes updated_at. created_at is written only
// on first insert; the ON CONFLICT clause makes the whole operation atomic
// per key.
func (r *ListingRepo) Upsert(ctx context.Context, listing *domain.Listing, now time.Time) error {
	payload, err := json.Marshal(listing)
	if err != nil {
		return fmt.Errorf("failed to encode listing payload: %w", err)
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO listings (listing_id, last_server_restart, created_world, seconds_remaining, search_area, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (listing_id, last_server_restart, created_world) DO UPDATE SET
			seconds_remaining = EXCLUDED.seconds_remaining,
			search_area = EXCLUDED.search_area,
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at`,
		int64(listing.ID), int64(listing.LastServerRestart), int32(listing.CreatedWorld),
		int32(listing.SecondsRemaining), int64(listing.SearchArea), payload, now,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert listing: %w", err)
	}
	return nil
}

// QueryWindow returns listings updated within maxAge, excluding private
// ones, each annotated with the time it has left. Listings whose remaining
// time already ran out are filtered in SQL. Ordering is unspecified; callers
// sort as needed.
func (r *ListingRepo) QueryWindow(ctx context.Context, maxAge time.Duration) ([]domain.QueriedListing, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT created_at, updated_at,
			(seconds_remaining - EXTRACT(EPOCH FROM (now() - updated_at)))::double precision AS time_left,
			payload
		FROM listings
		WHERE updated_at >= now() - $1::interval
			AND (search_area & $2) = 0
			AND seconds_remaining - EXTRACT(EPOCH FROM (now() - updated_at)) >= 0`,
		maxAge, int64(domain.SearchAreaPrivate),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query listings: %w", err)
	}
	defer rows.Close()

	var results []domain.QueriedListing
	for rows.Next() {
		var (
			q       domain.QueriedListing
			payload []byte
		)
		if err := rows.Scan(&q.CreatedAt, &q.UpdatedAt, &q.TimeLeft, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan listing row: %w", err)
		}
		if err := json.Unmarshal(payload, &q.Listing); err != nil {
			return nil, fmt.Errorf("failed to decode listing payload: %w", err)
		}
		results = append(results, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read listing rows: %w", err)
	}
	return results, nil
}

// Stats aggregates the listing table: all records ever kept, records still
// inside the live window, and the number of distinct origin worlds seen.
func (r *ListingRepo) Stats(ctx context.Context, liveWindow time.Duration) (domain.ListingStats, error) {
	var s domain.ListingStats
	err := r.pool.QueryRow(ctx, `
		SELECT count(*),
			count(*) FILTER (WHERE updated_at >= now() - $1::interval),
			count(DISTINCT created_world)
		FROM listings`,
		liveWindow,
	).Scan(&s.TotalRecords, &s.LiveRecords, &s.DistinctWorlds)
	if err != nil {
		return domain.ListingStats{}, fmt.Errorf("failed to aggregate stats: %w", err)
	}
	return s, nil
}
