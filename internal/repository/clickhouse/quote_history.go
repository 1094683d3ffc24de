package clickhouse

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/shopspring/decimal"

	"atlas/internal/domain/asset"
	"atlas/internal/domain/pricing"
	"atlas/pkg/errors"
)

// Compile-time check
var _ pricing.HistoryRepository = (*QuoteHistoryRepository)(nil)

// QuoteHistoryRepository implements pricing.HistoryRepository using ClickHouse
type QuoteHistoryRepository struct {
	conn driver.Conn
}

// NewQuoteHistoryRepository creates a new quote history repository
func NewQuoteHistoryRepository(conn driver.Conn) *QuoteHistoryRepository {
	return &QuoteHistoryRepository{conn: conn}
}

// InsertQuote records a single accepted quote
func (r *QuoteHistoryRepository) InsertQuote(ctx context.Context, q pricing.PriceQuote) error {
	return r.InsertQuotes(ctx, []pricing.PriceQuote{q})
}

// InsertQuotes records accepted quotes in batch.
// Prices are stored as strings to keep full fixed-point precision.
func (r *QuoteHistoryRepository) InsertQuotes(ctx context.Context, quotes []pricing.PriceQuote) error {
	if len(quotes) == 0 {
		return nil
	}

	batch, err := r.conn.PrepareBatch(ctx, `
		INSERT INTO price_quotes (
			asset_id, source_id, price, liquidity_weight, quoted_at
		)
	`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare batch")
	}

	for _, q := range quotes {
		err := batch.Append(
			uint32(q.AssetID), q.SourceID,
			q.Price.String(), q.LiquidityWeight.String(), q.Timestamp,
		)
		if err != nil {
			return errors.Wrap(err, "failed to append quote")
		}
	}

	return batch.Send()
}

// QuotesSince returns archived quotes for an asset after a cutoff
func (r *QuoteHistoryRepository) QuotesSince(ctx context.Context, assetID asset.ID, since time.Time) ([]pricing.PriceQuote, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT asset_id, source_id, price, liquidity_weight, quoted_at
		FROM price_quotes
		WHERE asset_id = $1 AND quoted_at >= $2
		ORDER BY quoted_at ASC`,
		uint32(assetID), since,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query quote history")
	}
	defer rows.Close()

	var quotes []pricing.PriceQuote
	for rows.Next() {
		var (
			id        uint32
			sourceID  string
			price     string
			liquidity string
			quotedAt  time.Time
		)
		if err := rows.Scan(&id, &sourceID, &price, &liquidity, &quotedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan quote row")
		}

		p, err := decimal.NewFromString(price)
		if err != nil {
			return nil, errors.Wrapf(err, "corrupt price in history: asset_id=%d source=%s", id, sourceID)
		}
		w, err := decimal.NewFromString(liquidity)
		if err != nil {
			return nil, errors.Wrapf(err, "corrupt liquidity weight in history: asset_id=%d source=%s", id, sourceID)
		}

		quotes = append(quotes, pricing.PriceQuote{
			AssetID:         asset.ID(id),
			SourceID:        sourceID,
			Price:           p,
			LiquidityWeight: w,
			Timestamp:       quotedAt,
		})
	}

	return quotes, rows.Err()
}
