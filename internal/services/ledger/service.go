package ledger

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"atlas/internal/domain/asset"
	"atlas/internal/domain/fund"
	"atlas/internal/domain/pricing"
	"atlas/internal/events"
	"atlas/internal/metrics"
	"atlas/internal/services/access"
	"atlas/pkg/errors"
	"atlas/pkg/logger"
)

// fundIDRetries bounds the uniqueness-enforcement loop on fund creation
const fundIDRetries = 8

// PriceSource produces trustworthy per-asset prices or fails explicitly.
// Satisfied by pricing.Aggregator.
type PriceSource interface {
	GetAggregatedPrice(assetID asset.ID) (pricing.AggregatedPrice, error)
}

// Config holds ledger policy knobs
type Config struct {
	// MinRedeemShares is the minimum-shares floor per redemption;
	// zero disables it
	MinRedeemShares decimal.Decimal
}

// Service owns fund accounting: it keeps indexTokenSupply backed by the
// exact deposited component amounts and computes mint/redeem deltas
// deterministically.
//
// Operations that mutate a fund serialize on a per-fund mutex; price reads
// run concurrently with ledger writes.
type Service struct {
	funds    fund.Repository
	balances fund.BalanceRepository
	assets   *asset.Registry
	prices   PriceSource
	access   *access.Service
	events   *events.Publisher
	cfg      Config

	lockMu    sync.Mutex
	fundLocks map[fund.ID]*sync.Mutex

	nonceMu      sync.Mutex
	createNonces map[string]uint64

	log *logger.Logger
}

// NewService constructs the fund ledger service
func NewService(
	funds fund.Repository,
	balances fund.BalanceRepository,
	assets *asset.Registry,
	prices PriceSource,
	acl *access.Service,
	publisher *events.Publisher,
	cfg Config,
) *Service {
	return &Service{
		funds:        funds,
		balances:     balances,
		assets:       assets,
		prices:       prices,
		access:       acl,
		events:       publisher,
		cfg:          cfg,
		fundLocks:    make(map[fund.ID]*sync.Mutex),
		createNonces: make(map[string]uint64),
		log:          logger.Get().With("component", "fund_ledger"),
	}
}

// lockFund returns the mutex serializing mutations for one fund
func (s *Service) lockFund(id fund.ID) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()

	mu, ok := s.fundLocks[id]
	if !ok {
		mu = &sync.Mutex{}
		s.fundLocks[id] = mu
	}
	return mu
}

// AuthorizeToken adds a token to the allowlist consulted at fund creation
func (s *Service) AuthorizeToken(ctx context.Context, actor string, token asset.Address) error {
	if err := s.access.CheckRunning(); err != nil {
		return err
	}
	if err := s.access.Require(actor, access.CapAuthorizeToken); err != nil {
		return err
	}
	return s.assets.Authorize(token)
}

// RevokeToken removes a token from the allowlist. Existing funds keep their
// component set; only new fund creation is affected.
func (s *Service) RevokeToken(ctx context.Context, actor string, token asset.Address) error {
	if err := s.access.CheckRunning(); err != nil {
		return err
	}
	if err := s.access.Require(actor, access.CapAuthorizeToken); err != nil {
		return err
	}
	s.assets.Revoke(token)
	return nil
}

// CreateFund registers a new index fund with a content-derived id.
// The component set is fixed for the fund's lifetime.
func (s *Service) CreateFund(ctx context.Context, creator, name, symbol string, components []fund.Component) (fund.ID, error) {
	if err := s.access.CheckRunning(); err != nil {
		return "", err
	}
	if err := s.access.Require(creator, access.CapCreateFund); err != nil {
		return "", err
	}
	if err := fund.ValidateComponents(components); err != nil {
		return "", err
	}
	for _, c := range components {
		if !s.assets.IsAuthorized(c.TokenAddress) {
			return "", errors.Wrapf(errors.ErrUnauthorizedToken, "token %s", c.TokenAddress)
		}
		if _, err := s.assets.Get(c.AssetID); err != nil {
			return "", errors.Wrapf(err, "component asset %d", c.AssetID)
		}
	}

	comps := make([]fund.Component, len(components))
	copy(comps, components)
	for i := range comps {
		comps[i].TokenAddress = comps[i].TokenAddress.Normalized()
		comps[i].DepositedAmount = decimal.Zero
		comps[i].PendingDeposit = decimal.Zero
	}

	now := time.Now()
	f := &fund.Fund{
		Name:             name,
		Symbol:           symbol,
		Creator:          creator,
		Components:       comps,
		IndexTokenSupply: decimal.Zero,
		IsActive:         true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	// Content-derived ids make collisions negligible, but uniqueness is an
	// invariant to enforce, not assume: retry with a bumped nonce on insert
	// conflict.
	var lastErr error
	for attempt := 0; attempt < fundIDRetries; attempt++ {
		f.ID = fund.NewID(creator, name, symbol, s.nextCreateNonce(creator))
		if err := s.funds.Create(ctx, f); err != nil {
			if errors.Is(err, errors.ErrAlreadyExists) {
				lastErr = err
				continue
			}
			metrics.FundOperations.WithLabelValues("create", "error").Inc()
			return "", errors.Wrap(err, "create fund")
		}
		lastErr = nil
		break
	}
	if lastErr != nil {
		metrics.FundOperations.WithLabelValues("create", "error").Inc()
		return "", errors.Wrap(lastErr, "fund id uniqueness exhausted")
	}

	metrics.FundOperations.WithLabelValues("create", "success").Inc()
	s.log.Infow("Fund created",
		"fund_id", f.ID,
		"name", name,
		"symbol", symbol,
		"creator", creator,
		"components", len(comps),
	)
	s.events.PublishFundCreated(ctx, events.FundCreatedEvent{
		FundID:     f.ID,
		Name:       name,
		Symbol:     symbol,
		Creator:    creator,
		Components: len(comps),
		At:         now,
	})

	return f.ID, nil
}

func (s *Service) nextCreateNonce(creator string) uint64 {
	s.nonceMu.Lock()
	defer s.nonceMu.Unlock()
	s.createNonces[creator]++
	return s.createNonces[creator]
}

// DepositComponents stages component deposits. Share issuance is a
// separate, explicit step so multi-asset deposits can be staged before
// conversion.
func (s *Service) DepositComponents(ctx context.Context, fundID fund.ID, tokens []asset.Address, amounts []decimal.Decimal) error {
	if err := s.access.CheckRunning(); err != nil {
		return err
	}
	if len(tokens) == 0 || len(tokens) != len(amounts) {
		return errors.Wrap(errors.ErrInvalidInput, "token and amount arrays must align")
	}

	mu := s.lockFund(fundID)
	mu.Lock()
	defer mu.Unlock()

	f, err := s.funds.GetByID(ctx, fundID)
	if err != nil {
		return errors.Wrap(err, "load fund")
	}
	if !f.IsActive {
		return errors.ErrFundInactive
	}

	// Validate the whole batch before touching state
	for i, token := range tokens {
		if _, ok := f.ComponentIndex(token); !ok {
			return errors.Wrapf(errors.ErrComponentMismatch, "token %s", token)
		}
		if !amounts[i].IsPositive() {
			return errors.Wrap(errors.ErrInvalidInput, "non-positive deposit amount")
		}
	}
	for i, token := range tokens {
		if err := f.StageDeposit(token, amounts[i]); err != nil {
			return err
		}
	}

	if err := s.funds.Update(ctx, f); err != nil {
		metrics.FundOperations.WithLabelValues("deposit", "error").Inc()
		return errors.Wrap(err, "persist deposit")
	}

	metrics.FundOperations.WithLabelValues("deposit", "success").Inc()
	s.log.Infow("Components deposited", "fund_id", fundID, "tokens", len(tokens))
	return nil
}

// IssueShares converts staged deposits into shares at the fund's current
// NAV-per-share. If any component's price is unavailable the whole issuance
// fails with no partial minting.
func (s *Service) IssueShares(ctx context.Context, fundID fund.ID, recipient string) (decimal.Decimal, error) {
	if err := s.access.CheckRunning(); err != nil {
		return decimal.Zero, err
	}
	if recipient == "" {
		return decimal.Zero, errors.Wrap(errors.ErrInvalidInput, "recipient required")
	}

	mu := s.lockFund(fundID)
	mu.Lock()
	defer mu.Unlock()

	f, err := s.funds.GetByID(ctx, fundID)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "load fund")
	}
	if !f.IsActive {
		return decimal.Zero, errors.ErrFundInactive
	}
	if !f.HasPendingDeposits() {
		return decimal.Zero, errors.Wrap(errors.ErrInvalidInput, "no staged deposits to convert")
	}

	// All prices are fetched before any mutation; a single failure aborts
	// the issuance atomically.
	unitPrices, err := s.unitPrices(f)
	if err != nil {
		metrics.FundOperations.WithLabelValues("issue", "error").Inc()
		return decimal.Zero, err
	}

	value, err := f.PendingValue(unitPrices)
	if err != nil {
		return decimal.Zero, err
	}
	nav, err := f.NAVPerShare(unitPrices)
	if err != nil {
		return decimal.Zero, err
	}
	shares := value.Div(nav)
	if !shares.IsPositive() {
		return decimal.Zero, errors.Wrap(errors.ErrInvalidInput, "staged deposits have zero value")
	}

	current, err := s.balances.Balance(ctx, fundID, recipient)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "load share balance")
	}

	f.ConvertPending()
	f.IndexTokenSupply = f.IndexTokenSupply.Add(shares)
	f.UpdatedAt = time.Now()

	// Credit first, bump supply second; if the fund write fails the credit
	// is compensated so supply and the balance sum stay equal
	if err := s.balances.SetBalance(ctx, fundID, recipient, current.Add(shares)); err != nil {
		metrics.FundOperations.WithLabelValues("issue", "error").Inc()
		return decimal.Zero, errors.Wrap(err, "credit shares")
	}
	if err := s.funds.Update(ctx, f); err != nil {
		if rbErr := s.balances.SetBalance(ctx, fundID, recipient, current); rbErr != nil {
			s.log.Errorw("Issuance rollback failed, balances need reconciliation",
				"fund_id", fundID, "recipient", recipient, "error", rbErr)
		}
		metrics.FundOperations.WithLabelValues("issue", "error").Inc()
		return decimal.Zero, errors.Wrap(err, "persist issuance")
	}

	metrics.FundOperations.WithLabelValues("issue", "success").Inc()
	metrics.SharesIssued.WithLabelValues(string(fundID)).Add(sharesFloat(shares))
	s.log.Infow("Shares issued",
		"fund_id", fundID,
		"recipient", recipient,
		"shares", shares,
		"supply", f.IndexTokenSupply,
	)
	s.events.PublishSharesIssued(ctx, events.SharesIssuedEvent{
		FundID:    fundID,
		Recipient: recipient,
		Shares:    shares,
		Supply:    f.IndexTokenSupply,
		At:        f.UpdatedAt,
	})

	return shares, nil
}

// Redeem burns shares and returns the proportional payout vector. The
// caller performs the actual token transfers. Redemption remains available
// on deactivated funds so holders can drain.
func (s *Service) Redeem(ctx context.Context, fundID fund.ID, holder string, shares decimal.Decimal) ([]fund.Payout, error) {
	if err := s.access.CheckRunning(); err != nil {
		return nil, err
	}
	if !shares.IsPositive() {
		return nil, errors.Wrap(errors.ErrInvalidInput, "non-positive share count")
	}
	if s.cfg.MinRedeemShares.IsPositive() && shares.LessThan(s.cfg.MinRedeemShares) {
		return nil, errors.Wrapf(errors.ErrRedemptionTooSmall, "minimum %s shares", s.cfg.MinRedeemShares)
	}

	mu := s.lockFund(fundID)
	mu.Lock()
	defer mu.Unlock()

	f, err := s.funds.GetByID(ctx, fundID)
	if err != nil {
		return nil, errors.Wrap(err, "load fund")
	}
	if !f.IndexTokenSupply.IsPositive() {
		return nil, errors.ErrNothingToRedeem
	}

	balance, err := s.balances.Balance(ctx, fundID, holder)
	if err != nil {
		return nil, errors.Wrap(err, "load share balance")
	}
	if balance.LessThan(shares) {
		return nil, errors.ErrInsufficientShares
	}

	// Payouts are computed against pre-mutation state
	payouts, err := f.RedemptionPayouts(shares)
	if err != nil {
		return nil, err
	}

	f.ApplyRedemption(payouts, shares)

	// Burn first, shrink supply second, mirroring issuance; a failed fund
	// write restores the burned balance
	if err := s.balances.SetBalance(ctx, fundID, holder, balance.Sub(shares)); err != nil {
		metrics.FundOperations.WithLabelValues("redeem", "error").Inc()
		return nil, errors.Wrap(err, "burn shares")
	}
	if err := s.funds.Update(ctx, f); err != nil {
		if rbErr := s.balances.SetBalance(ctx, fundID, holder, balance); rbErr != nil {
			s.log.Errorw("Redemption rollback failed, balances need reconciliation",
				"fund_id", fundID, "holder", holder, "error", rbErr)
		}
		metrics.FundOperations.WithLabelValues("redeem", "error").Inc()
		return nil, errors.Wrap(err, "persist redemption")
	}

	metrics.FundOperations.WithLabelValues("redeem", "success").Inc()
	metrics.SharesRedeemed.WithLabelValues(string(fundID)).Add(sharesFloat(shares))
	s.log.Infow("Shares redeemed",
		"fund_id", fundID,
		"holder", holder,
		"shares", shares,
		"supply", f.IndexTokenSupply,
	)
	s.events.PublishSharesRedeemed(ctx, events.SharesRedeemedEvent{
		FundID: fundID,
		Holder: holder,
		Shares: shares,
		Supply: f.IndexTokenSupply,
		At:     f.UpdatedAt,
	})

	return payouts, nil
}

// Rebalance replaces target ratios without moving funds. Drift thresholds
// and scheduling live outside the ledger.
func (s *Service) Rebalance(ctx context.Context, actor string, fundID fund.ID, newRatios []int64) error {
	if err := s.access.CheckRunning(); err != nil {
		return err
	}
	if err := s.access.Require(actor, access.CapCreateFund); err != nil {
		return err
	}

	mu := s.lockFund(fundID)
	mu.Lock()
	defer mu.Unlock()

	f, err := s.funds.GetByID(ctx, fundID)
	if err != nil {
		return errors.Wrap(err, "load fund")
	}
	if !f.IsActive {
		return errors.ErrFundInactive
	}
	if err := f.SetTargetRatios(newRatios); err != nil {
		return err
	}

	if err := s.funds.Update(ctx, f); err != nil {
		metrics.FundOperations.WithLabelValues("rebalance", "error").Inc()
		return errors.Wrap(err, "persist rebalance")
	}

	metrics.FundOperations.WithLabelValues("rebalance", "success").Inc()
	s.log.Infow("Fund rebalanced", "fund_id", fundID, "actor", actor)
	return nil
}

// Deactivate winds a fund down: deposits and issuance are refused while
// redemptions keep draining remaining holders. One-way.
func (s *Service) Deactivate(ctx context.Context, actor string, fundID fund.ID) error {
	if err := s.access.CheckRunning(); err != nil {
		return err
	}
	if err := s.access.Require(actor, access.CapCreateFund); err != nil {
		return err
	}

	mu := s.lockFund(fundID)
	mu.Lock()
	defer mu.Unlock()

	f, err := s.funds.GetByID(ctx, fundID)
	if err != nil {
		return errors.Wrap(err, "load fund")
	}
	if !f.IsActive {
		return errors.ErrFundInactive
	}
	f.IsActive = false
	f.UpdatedAt = time.Now()

	if err := s.funds.Update(ctx, f); err != nil {
		return errors.Wrap(err, "persist deactivation")
	}

	s.log.Warnw("Fund deactivated", "fund_id", fundID, "actor", actor)
	s.events.PublishFundDeactivated(ctx, events.FundDeactivatedEvent{
		FundID: fundID,
		Actor:  actor,
		At:     f.UpdatedAt,
	})
	return nil
}

// Fund returns a fund with its components
func (s *Service) Fund(ctx context.Context, fundID fund.ID) (*fund.Fund, error) {
	return s.funds.GetByID(ctx, fundID)
}

// Balance returns a holder's share balance
func (s *Service) Balance(ctx context.Context, fundID fund.ID, holder string) (decimal.Decimal, error) {
	return s.balances.Balance(ctx, fundID, holder)
}

// NAVPerShare prices the fund and returns the current NAV per share
func (s *Service) NAVPerShare(ctx context.Context, fundID fund.ID) (decimal.Decimal, error) {
	f, err := s.funds.GetByID(ctx, fundID)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "load fund")
	}
	unitPrices, err := s.unitPrices(f)
	if err != nil {
		return decimal.Zero, err
	}
	return f.NAVPerShare(unitPrices)
}

// Deviations reports per-component drift from target ratios
func (s *Service) Deviations(ctx context.Context, fundID fund.ID) ([]fund.Deviation, error) {
	f, err := s.funds.GetByID(ctx, fundID)
	if err != nil {
		return nil, errors.Wrap(err, "load fund")
	}
	unitPrices, err := s.unitPrices(f)
	if err != nil {
		return nil, err
	}
	return f.Deviations(unitPrices)
}

// unitPrices fetches the base-unit USD price for every component asset.
// Any aggregation failure aborts the whole valuation.
func (s *Service) unitPrices(f *fund.Fund) (map[asset.ID]decimal.Decimal, error) {
	unitPrices := make(map[asset.ID]decimal.Decimal, len(f.Components))
	for i := range f.Components {
		c := &f.Components[i]
		if _, ok := unitPrices[c.AssetID]; ok {
			continue
		}
		a, err := s.assets.Get(c.AssetID)
		if err != nil {
			return nil, errors.Wrapf(err, "component asset %d", c.AssetID)
		}
		agg, err := s.prices.GetAggregatedPrice(c.AssetID)
		if err != nil {
			observeAggregationFailure(err)
			return nil, errors.Wrapf(err, "price asset %d", c.AssetID)
		}
		metrics.AggregationSources.WithLabelValues(assetLabel(c.AssetID)).Observe(float64(agg.SourceCount))
		unitPrices[c.AssetID] = agg.WeightedPrice.Shift(-int32(a.Decimals))
	}
	return unitPrices, nil
}

func observeAggregationFailure(err error) {
	reason := "other"
	switch {
	case errors.Is(err, errors.ErrInsufficientSources):
		reason = "insufficient_sources"
	case errors.Is(err, errors.ErrStaleData):
		reason = "stale_data"
	case errors.Is(err, errors.ErrUnknownAsset):
		reason = "unknown_asset"
	}
	metrics.AggregationFailures.WithLabelValues(reason).Inc()
}

func sharesFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func assetLabel(id asset.ID) string {
	return strconv.FormatUint(uint64(id), 10)
}
