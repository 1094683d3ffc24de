package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Ledger metrics
	FundOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atlas_fund_operations_total",
			Help: "Total number of fund ledger operations",
		},
		[]string{"operation", "status"}, // status: success|error
	)

	SharesIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atlas_shares_issued_total",
			Help: "Total shares issued per fund",
		},
		[]string{"fund_id"},
	)

	SharesRedeemed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atlas_shares_redeemed_total",
			Help: "Total shares redeemed per fund",
		},
		[]string{"fund_id"},
	)

	FundDriftBps = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "atlas_fund_drift_bps",
			Help: "Maximum component drift from target ratio in basis points",
		},
		[]string{"fund_id"},
	)

	// Aggregator metrics
	AggregationFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atlas_aggregation_failures_total",
			Help: "Total price aggregation failures by reason",
		},
		[]string{"reason"}, // reason: insufficient_sources|stale_data|unknown_asset
	)

	AggregationSources = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "atlas_aggregation_sources",
			Help:    "Surviving source count per successful aggregation",
			Buckets: []float64{1, 2, 3, 4, 5, 6, 8, 10},
		},
		[]string{"asset_id"},
	)

	// Router metrics
	MessageTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atlas_message_transitions_total",
			Help: "Total message status transitions",
		},
		[]string{"status"}, // sent|received|failed|rejected
	)

	MessageDeliveryLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "atlas_message_delivery_seconds",
			Help:    "Latency from send to terminal state",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 300},
		},
		[]string{"dst_chain"},
	)

	// Worker metrics
	WorkerExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "atlas_worker_executions_total",
			Help: "Total number of worker executions",
		},
		[]string{"worker", "status"}, // status: success|error
	)

	WorkerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "atlas_worker_duration_seconds",
			Help:    "Worker execution duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"worker"},
	)

	WorkerLastRun = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "atlas_worker_last_run_timestamp",
			Help: "Unix timestamp of last worker execution",
		},
		[]string{"worker"},
	)
)

// Register registers all metrics with the default registry
func Register() {
	prometheus.MustRegister(
		FundOperations,
		SharesIssued,
		SharesRedeemed,
		FundDriftBps,
		AggregationFailures,
		AggregationSources,
		MessageTransitions,
		MessageDeliveryLatency,
		WorkerExecutions,
		WorkerDuration,
		WorkerLastRun,
	)
}

// Handler returns the HTTP handler for the /metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveWorker records one worker run
func ObserveWorker(worker string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	WorkerExecutions.WithLabelValues(worker, status).Inc()
	WorkerDuration.WithLabelValues(worker).Observe(time.Since(start).Seconds())
	WorkerLastRun.WithLabelValues(worker).SetToCurrentTime()
}
