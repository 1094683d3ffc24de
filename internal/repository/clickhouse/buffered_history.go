package clickhouse

import (
	"context"
	"time"

	"atlas/internal/domain/asset"
	"atlas/internal/domain/pricing"
	chwriter "atlas/pkg/clickhouse"
	"atlas/pkg/errors"
)

// Compile-time check
var _ pricing.HistoryRepository = (*BufferedQuoteHistory)(nil)

// BufferedQuoteHistory batches quote archive writes. Quote ingestion is
// high-frequency and single-row ClickHouse inserts are wasteful, so writes
// accumulate and flush on size or age.
type BufferedQuoteHistory struct {
	repo   *QuoteHistoryRepository
	writer *chwriter.BatchWriter
}

// NewBufferedQuoteHistory wraps a quote history repository with a batch writer
func NewBufferedQuoteHistory(repo *QuoteHistoryRepository, maxBatchSize int, maxAge time.Duration) *BufferedQuoteHistory {
	b := &BufferedQuoteHistory{repo: repo}

	b.writer = chwriter.NewBatchWriter(chwriter.BatchWriterConfig{
		FlushFunc:    b.flush,
		TableName:    "price_quotes",
		MaxBatchSize: maxBatchSize,
		MaxAge:       maxAge,
	})

	return b
}

// Start begins the background flush loop
func (b *BufferedQuoteHistory) Start(ctx context.Context) {
	b.writer.Start(ctx)
}

// Stop flushes remaining quotes and shuts the writer down
func (b *BufferedQuoteHistory) Stop(ctx context.Context) error {
	return b.writer.Stop(ctx)
}

// InsertQuote buffers a quote for the next batch flush
func (b *BufferedQuoteHistory) InsertQuote(ctx context.Context, q pricing.PriceQuote) error {
	return b.writer.Add(ctx, q)
}

// QuotesSince reads the archive directly. Buffered quotes that have not
// flushed yet are not visible.
func (b *BufferedQuoteHistory) QuotesSince(ctx context.Context, assetID asset.ID, since time.Time) ([]pricing.PriceQuote, error) {
	return b.repo.QuotesSince(ctx, assetID, since)
}

func (b *BufferedQuoteHistory) flush(ctx context.Context, batch []interface{}) error {
	quotes := make([]pricing.PriceQuote, 0, len(batch))
	for _, item := range batch {
		q, ok := item.(pricing.PriceQuote)
		if !ok {
			return errors.Wrapf(errors.ErrInternal, "unexpected batch item %T", item)
		}
		quotes = append(quotes, q)
	}

	return b.repo.InsertQuotes(ctx, quotes)
}
