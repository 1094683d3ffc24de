package pricing

import (
	"context"
	"time"

	"atlas/internal/domain/asset"
)

// HistoryRepository archives accepted quotes for audit and analytics.
// Writes are best-effort: a failed archive never blocks aggregation.
type HistoryRepository interface {
	// InsertQuote records an accepted quote
	InsertQuote(ctx context.Context, q PriceQuote) error

	// QuotesSince returns archived quotes for an asset after a cutoff
	QuotesSince(ctx context.Context, assetID asset.ID, since time.Time) ([]PriceQuote, error)
}

// SnapshotCache caches successful aggregations for read-only consumers
// such as the NAV workers. Issuance never reads from the cache.
type SnapshotCache interface {
	// Put stores an aggregated price snapshot
	Put(ctx context.Context, p AggregatedPrice) error

	// Get returns a cached snapshot if present
	Get(ctx context.Context, assetID asset.ID) (AggregatedPrice, bool, error)
}
