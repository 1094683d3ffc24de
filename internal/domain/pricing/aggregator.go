package pricing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"atlas/internal/domain/asset"
	"atlas/pkg/errors"
	"atlas/pkg/logger"
)

var nine = decimal.NewFromInt(9)

// Config holds aggregation policy knobs
type Config struct {
	// MinSources is the hard gate on independent fresh quotes
	MinSources int

	// MaxQuoteAge is the quote freshness window
	MaxQuoteAge time.Duration

	// QuoteRateLimit caps per-source quote writes per second; zero disables
	QuoteRateLimit float64
	QuoteRateBurst int
}

// Aggregator collects per-asset quotes from multiple sources and derives a
// single trustworthy price per asset, or fails explicitly.
//
// Writes are independent per (asset, source); reads never mutate state and
// may run concurrently with ledger writes.
type Aggregator struct {
	mu     sync.RWMutex
	quotes map[asset.ID]map[string]PriceQuote

	limMu    sync.Mutex
	limiters map[string]*rate.Limiter

	cfg     Config
	history HistoryRepository
	now     func() time.Time
	log     *logger.Logger
}

// NewAggregator creates an aggregator. history may be nil to disable the
// quote archive.
func NewAggregator(cfg Config, history HistoryRepository) *Aggregator {
	if cfg.MinSources <= 0 {
		cfg.MinSources = 3
	}
	if cfg.MaxQuoteAge <= 0 {
		cfg.MaxQuoteAge = 5 * time.Minute
	}
	if cfg.QuoteRateBurst <= 0 {
		cfg.QuoteRateBurst = 10
	}

	return &Aggregator{
		quotes:   make(map[asset.ID]map[string]PriceQuote),
		limiters: make(map[string]*rate.Limiter),
		cfg:      cfg,
		history:  history,
		now:      time.Now,
		log:      logger.Get().With("component", "price_aggregator"),
	}
}

// SetClock overrides the time source. Intended for tests.
func (a *Aggregator) SetClock(now func() time.Time) {
	a.now = now
}

// SetQuote records or overwrites a source's latest quote for an asset
func (a *Aggregator) SetQuote(ctx context.Context, q PriceQuote) error {
	if !q.Price.IsPositive() {
		return errors.ErrInvalidPrice
	}
	if q.LiquidityWeight.IsNegative() {
		return errors.Wrap(errors.ErrInvalidInput, "negative liquidity weight")
	}
	if q.SourceID == "" {
		return errors.Wrap(errors.ErrInvalidInput, "source id required")
	}
	if q.Timestamp.IsZero() {
		q.Timestamp = a.now()
	}

	if !a.allowSource(q.SourceID) {
		return errors.Wrapf(errors.ErrRateLimited, "source %s", q.SourceID)
	}

	a.mu.Lock()
	if a.quotes[q.AssetID] == nil {
		a.quotes[q.AssetID] = make(map[string]PriceQuote)
	}
	a.quotes[q.AssetID][q.SourceID] = q
	a.mu.Unlock()

	if a.history != nil {
		// Best-effort archive; aggregation never depends on it
		if err := a.history.InsertQuote(ctx, q); err != nil {
			a.log.Warnw("Quote archive failed", "asset_id", q.AssetID, "source", q.SourceID, "error", err)
		}
	}

	return nil
}

// RemoveQuote drops a source's quote for an asset
func (a *Aggregator) RemoveQuote(assetID asset.ID, sourceID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.quotes[assetID], sourceID)
}

// GetAggregatedPrice derives the consensus price for an asset.
//
// Quotes older than MaxQuoteAge are excluded, not extrapolated. The
// MinSources gate applies both before and after outlier rejection so that a
// single compromised source cannot steer downstream share math.
func (a *Aggregator) GetAggregatedPrice(assetID asset.ID) (AggregatedPrice, error) {
	now := a.now()

	a.mu.RLock()
	bySource, known := a.quotes[assetID]
	fresh := make([]PriceQuote, 0, len(bySource))
	for _, q := range bySource {
		if q.Fresh(now, a.cfg.MaxQuoteAge) {
			fresh = append(fresh, q)
		}
	}
	a.mu.RUnlock()

	if !known {
		return AggregatedPrice{}, errors.ErrUnknownAsset
	}
	if len(fresh) == 0 && len(bySource) > 0 {
		return AggregatedPrice{}, errors.ErrStaleData
	}
	if len(fresh) < a.cfg.MinSources {
		return AggregatedPrice{}, errors.Wrapf(errors.ErrInsufficientSources,
			"asset %d: %d of %d", assetID, len(fresh), a.cfg.MinSources)
	}

	surviving := rejectOutliers(fresh)
	if len(surviving) < a.cfg.MinSources {
		return AggregatedPrice{}, errors.Wrapf(errors.ErrInsufficientSources,
			"asset %d: %d of %d after outlier rejection", assetID, len(surviving), a.cfg.MinSources)
	}

	return aggregate(assetID, surviving, now), nil
}

// GetAssetPrice returns only the weighted price; same failure modes as
// GetAggregatedPrice
func (a *Aggregator) GetAssetPrice(assetID asset.ID) (decimal.Decimal, error) {
	p, err := a.GetAggregatedPrice(assetID)
	if err != nil {
		return decimal.Zero, err
	}
	return p.WeightedPrice, nil
}

// Prune drops quotes older than the freshness window. Called periodically by
// the quote pruner worker; aggregation is correct without it.
func (a *Aggregator) Prune() int {
	now := a.now()
	dropped := 0

	a.mu.Lock()
	defer a.mu.Unlock()
	// emptied asset entries are kept so stale assets stay distinguishable
	// from never-quoted ones
	for _, bySource := range a.quotes {
		for sourceID, q := range bySource {
			if !q.Fresh(now, a.cfg.MaxQuoteAge) {
				delete(bySource, sourceID)
				dropped++
			}
		}
	}
	return dropped
}

func (a *Aggregator) allowSource(sourceID string) bool {
	if a.cfg.QuoteRateLimit <= 0 {
		return true
	}

	a.limMu.Lock()
	lim, ok := a.limiters[sourceID]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(a.cfg.QuoteRateLimit), a.cfg.QuoteRateBurst)
		a.limiters[sourceID] = lim
	}
	a.limMu.Unlock()

	return lim.Allow()
}

// rejectOutliers discards quotes whose deviation from the median exceeds
// three standard deviations. Comparison is done on squared deviations so the
// whole computation stays in decimal arithmetic.
func rejectOutliers(quotes []PriceQuote) []PriceQuote {
	if len(quotes) < 3 {
		return quotes
	}

	med := medianPrice(quotes)

	n := decimal.NewFromInt(int64(len(quotes)))
	mean := decimal.Zero
	for _, q := range quotes {
		mean = mean.Add(q.Price)
	}
	mean = mean.Div(n)

	variance := decimal.Zero
	for _, q := range quotes {
		d := q.Price.Sub(mean)
		variance = variance.Add(d.Mul(d))
	}
	variance = variance.Div(n)

	if variance.IsZero() {
		return quotes
	}

	// (p - median)^2 > 9 * variance  <=>  |p - median| > 3 * stddev
	limit := nine.Mul(variance)
	surviving := make([]PriceQuote, 0, len(quotes))
	for _, q := range quotes {
		d := q.Price.Sub(med)
		if d.Mul(d).LessThanOrEqual(limit) {
			surviving = append(surviving, q)
		}
	}
	return surviving
}

func medianPrice(quotes []PriceQuote) decimal.Decimal {
	prices := make([]decimal.Decimal, len(quotes))
	for i, q := range quotes {
		prices[i] = q.Price
	}
	sort.Slice(prices, func(i, j int) bool { return prices[i].LessThan(prices[j]) })

	mid := len(prices) / 2
	if len(prices)%2 == 1 {
		return prices[mid]
	}
	return prices[mid-1].Add(prices[mid]).Div(decimal.NewFromInt(2))
}

func aggregate(assetID asset.ID, quotes []PriceQuote, now time.Time) AggregatedPrice {
	best := quotes[0].Price
	worst := quotes[0].Price
	totalLiquidity := decimal.Zero
	weightedSum := decimal.Zero

	for _, q := range quotes {
		if q.Price.LessThan(best) {
			best = q.Price
		}
		if q.Price.GreaterThan(worst) {
			worst = q.Price
		}
		totalLiquidity = totalLiquidity.Add(q.LiquidityWeight)
		weightedSum = weightedSum.Add(q.Price.Mul(q.LiquidityWeight))
	}

	var weighted decimal.Decimal
	if totalLiquidity.IsPositive() {
		weighted = weightedSum.Div(totalLiquidity)
	} else {
		// all-zero liquidity degrades to an equal-weight mean
		sum := decimal.Zero
		for _, q := range quotes {
			sum = sum.Add(q.Price)
		}
		weighted = sum.Div(decimal.NewFromInt(int64(len(quotes))))
	}

	return AggregatedPrice{
		AssetID:        assetID,
		WeightedPrice:  weighted,
		BestPrice:      best,
		WorstPrice:     worst,
		TotalLiquidity: totalLiquidity,
		SourceCount:    len(quotes),
		Timestamp:      now,
	}
}
