package workers

import (
	"context"
	"time"

	"atlas/internal/adapters/config"
	"atlas/internal/domain/fund"
	"atlas/internal/events"
	"atlas/internal/metrics"
	"atlas/pkg/errors"
)

// FundLister lists funds eligible for drift monitoring
type FundLister interface {
	ListActive(ctx context.Context) ([]*fund.Fund, error)
}

// DeviationSource values fund drift against live prices
type DeviationSource interface {
	Deviations(ctx context.Context, fundID fund.ID) ([]fund.Deviation, error)
}

// RebalanceMonitorWorker periodically values every active fund against
// live prices and emits a rebalance signal when composition drift crosses
// a policy threshold. Signals are advisory; ratios change only through an
// explicit rebalance call.
type RebalanceMonitorWorker struct {
	*BaseWorker
	funds      FundLister
	deviations DeviationSource
	publisher  *events.Publisher

	scheduledBps int64
	priorityBps  int64
}

// NewRebalanceMonitorWorker creates a new rebalance monitor
func NewRebalanceMonitorWorker(
	funds FundLister,
	deviations DeviationSource,
	publisher *events.Publisher,
	cfg config.WorkerConfig,
) *RebalanceMonitorWorker {
	return &RebalanceMonitorWorker{
		BaseWorker:   NewBaseWorker("rebalance_monitor", cfg.RebalanceMonitorInterval, true),
		funds:        funds,
		deviations:   deviations,
		publisher:    publisher,
		scheduledBps: int64(cfg.RebalanceScheduledBps),
		priorityBps:  int64(cfg.RebalancePriorityBps),
	}
}

// Run checks drift for every active fund
func (w *RebalanceMonitorWorker) Run(ctx context.Context) error {
	start := time.Now()

	active, err := w.funds.ListActive(ctx)
	if err != nil {
		w.RecordError(err, time.Since(start))
		return errors.Wrap(err, "list active funds")
	}

	var failed int
	for _, f := range active {
		if err := w.checkFund(ctx, f); err != nil {
			// Price gaps on one fund must not starve the rest
			failed++
			w.Log().Warn("Drift check failed", "fund_id", f.ID, "error", err)
		}
	}

	if failed > 0 {
		err := errors.Wrapf(errors.ErrInternal, "%d of %d funds failed drift check", failed, len(active))
		w.RecordError(err, time.Since(start))
		return err
	}

	w.RecordRun(time.Since(start))
	return nil
}

func (w *RebalanceMonitorWorker) checkFund(ctx context.Context, f *fund.Fund) error {
	devs, err := w.deviations.Deviations(ctx, f.ID)
	if err != nil {
		return err
	}

	var maxDrift int64
	for _, d := range devs {
		if d.DriftBps > maxDrift {
			maxDrift = d.DriftBps
		}
	}

	metrics.FundDriftBps.WithLabelValues(string(f.ID)).Set(float64(maxDrift))

	severity := w.classify(maxDrift)
	if severity == events.RebalanceNone {
		return nil
	}

	w.Log().Info("Fund drifted past threshold",
		"fund_id", f.ID,
		"max_drift_bps", maxDrift,
		"severity", severity,
	)

	w.publisher.PublishRebalanceSignal(ctx, events.RebalanceSignalEvent{
		FundID:      f.ID,
		Severity:    severity,
		MaxDriftBps: maxDrift,
		At:          time.Now().UTC(),
	})

	return nil
}

func (w *RebalanceMonitorWorker) classify(driftBps int64) events.RebalanceSeverity {
	switch {
	case driftBps >= w.priorityBps:
		return events.RebalancePriority
	case driftBps >= w.scheduledBps:
		return events.RebalanceScheduled
	default:
		return events.RebalanceNone
	}
}
