package workers

import (
	"context"
	"time"

	"atlas/internal/domain/asset"
	"atlas/internal/domain/pricing"
	"atlas/pkg/errors"
)

// PriceSnapshotWorker pushes the latest aggregation for every registered
// asset into the snapshot cache. Read-only consumers such as dashboards
// read the cache; issuance always aggregates live.
type PriceSnapshotWorker struct {
	*BaseWorker
	registry   *asset.Registry
	aggregator *pricing.Aggregator
	cache      pricing.SnapshotCache
}

// NewPriceSnapshotWorker creates a new snapshot worker
func NewPriceSnapshotWorker(
	registry *asset.Registry,
	aggregator *pricing.Aggregator,
	cache pricing.SnapshotCache,
	interval time.Duration,
) *PriceSnapshotWorker {
	return &PriceSnapshotWorker{
		BaseWorker: NewBaseWorker("price_snapshot", interval, true),
		registry:   registry,
		aggregator: aggregator,
		cache:      cache,
	}
}

// Run refreshes cached snapshots for all aggregatable assets
func (w *PriceSnapshotWorker) Run(ctx context.Context) error {
	start := time.Now()

	var failed int
	for _, a := range w.registry.List() {
		agg, err := w.aggregator.GetAggregatedPrice(a.ID)
		if err != nil {
			// Thin coverage on one asset is expected, not an error
			continue
		}

		if err := w.cache.Put(ctx, agg); err != nil {
			failed++
			w.Log().Warn("Snapshot cache write failed", "asset_id", a.ID, "error", err)
		}
	}

	if failed > 0 {
		err := errors.Wrapf(errors.ErrInternal, "%d snapshot writes failed", failed)
		w.RecordError(err, time.Since(start))
		return err
	}

	w.RecordRun(time.Since(start))
	return nil
}
