package pricing

import (
	"time"

	"github.com/shopspring/decimal"

	"atlas/internal/domain/asset"
)

// PriceQuote is a single source's latest quote for an asset.
// Quotes are ephemeral: they live only inside the aggregation window.
type PriceQuote struct {
	AssetID         asset.ID        `db:"asset_id"`
	SourceID        string          `db:"source_id"`
	Price           decimal.Decimal `db:"price"`
	Timestamp       time.Time       `db:"timestamp"`
	LiquidityWeight decimal.Decimal `db:"liquidity_weight"`
}

// Fresh reports whether the quote is within the freshness window at now
func (q PriceQuote) Fresh(now time.Time, maxAge time.Duration) bool {
	return now.Sub(q.Timestamp) <= maxAge
}

// AggregatedPrice is the derived consensus price for an asset.
// Invariant: BestPrice <= WeightedPrice <= WorstPrice.
type AggregatedPrice struct {
	AssetID        asset.ID        `json:"asset_id"`
	WeightedPrice  decimal.Decimal `json:"weighted_price"`
	BestPrice      decimal.Decimal `json:"best_price"`
	WorstPrice     decimal.Decimal `json:"worst_price"`
	TotalLiquidity decimal.Decimal `json:"total_liquidity"`
	SourceCount    int             `json:"source_count"`
	Timestamp      time.Time       `json:"timestamp"`
}
