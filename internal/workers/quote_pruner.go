package workers

import (
	"context"
	"time"

	"atlas/internal/adapters/config"
	"atlas/internal/domain/pricing"
)

// QuotePrunerWorker evicts expired quotes from the aggregator's working
// set so memory does not grow with dead price sources.
type QuotePrunerWorker struct {
	*BaseWorker
	aggregator *pricing.Aggregator
}

// NewQuotePrunerWorker creates a new quote pruner
func NewQuotePrunerWorker(aggregator *pricing.Aggregator, cfg config.WorkerConfig) *QuotePrunerWorker {
	return &QuotePrunerWorker{
		BaseWorker: NewBaseWorker("quote_pruner", cfg.QuotePrunerInterval, true),
		aggregator: aggregator,
	}
}

// Run drops expired quotes
func (w *QuotePrunerWorker) Run(ctx context.Context) error {
	start := time.Now()

	dropped := w.aggregator.Prune()
	if dropped > 0 {
		w.Log().Debug("Expired quotes pruned", "dropped", dropped)
	}

	w.RecordRun(time.Since(start))
	return nil
}
