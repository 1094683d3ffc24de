package fund

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeebo/blake3"

	"atlas/internal/domain/asset"
	"atlas/pkg/errors"
)

// TotalRatioBps is the required sum of component target ratios
const TotalRatioBps = 10000

// ID is a content-derived fund identifier
type ID string

// NewID derives a fund id from its creation inputs. Collisions are
// negligible but the ledger still enforces uniqueness on insert.
func NewID(creator, name, symbol string, nonce uint64) ID {
	h := blake3.New()
	fmt.Fprintf(h, "%s|%s|%s|%d", creator, name, symbol, nonce)
	return ID(hex.EncodeToString(h.Sum(nil)))
}

// Component is one leg of the index basket. Owned exclusively by its fund;
// mutated only through deposit, issuance, redemption and rebalance.
type Component struct {
	TokenAddress asset.Address `db:"token_address"`
	AssetID      asset.ID      `db:"asset_id"`

	// TargetRatioBps across a fund's components sums to TotalRatioBps
	TargetRatioBps int64 `db:"target_ratio_bps"`

	// DepositedAmount is the converted backing amount in token base units
	DepositedAmount decimal.Decimal `db:"deposited_amount"`

	// PendingDeposit is staged but not yet converted to shares
	PendingDeposit decimal.Decimal `db:"pending_deposit"`
}

// Fund is an index fund definition plus its live accounting state.
// The component set is fixed at creation; only ratios may change.
type Fund struct {
	ID               ID              `db:"id"`
	Name             string          `db:"name"`
	Symbol           string          `db:"symbol"`
	Creator          string          `db:"creator"`
	Components       []Component     `db:"-"`
	IndexTokenSupply decimal.Decimal `db:"index_token_supply"`
	IsActive         bool            `db:"is_active"`
	CreatedAt        time.Time       `db:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at"`
}

// ShareBalance tracks one holder's shares in one fund. Rows are created on
// first issuance and removed when shares reach zero.
type ShareBalance struct {
	FundID ID              `db:"fund_id"`
	Holder string          `db:"holder"`
	Shares decimal.Decimal `db:"shares"`
}

// Payout is one component's share of a redemption
type Payout struct {
	TokenAddress asset.Address
	AssetID      asset.ID
	Amount       decimal.Decimal
}

// Deviation describes how far a component drifted from its target weight
type Deviation struct {
	TokenAddress asset.Address
	AssetID      asset.ID
	TargetBps    int64
	CurrentBps   int64

	// DriftBps = |CurrentBps - TargetBps|
	DriftBps int64
}

// ValidateComponents checks the creation-time component invariants
func ValidateComponents(components []Component) error {
	if len(components) == 0 {
		return errors.Wrap(errors.ErrInvalidInput, "empty component list")
	}

	var sum int64
	seen := make(map[asset.Address]bool, len(components))
	for _, c := range components {
		if c.TokenAddress.IsZero() {
			return errors.Wrap(errors.ErrInvalidInput, "zero component token address")
		}
		if seen[c.TokenAddress.Normalized()] {
			return errors.Wrapf(errors.ErrInvalidInput, "duplicate component token %s", c.TokenAddress)
		}
		seen[c.TokenAddress.Normalized()] = true
		if c.TargetRatioBps <= 0 {
			return errors.Wrap(errors.ErrInvalidInput, "non-positive target ratio")
		}
		sum += c.TargetRatioBps
	}
	if sum != TotalRatioBps {
		return errors.Wrapf(errors.ErrUnbalancedRatios, "got %d bps", sum)
	}
	return nil
}

// ComponentIndex returns the index of the component holding token
func (f *Fund) ComponentIndex(token asset.Address) (int, bool) {
	norm := token.Normalized()
	for i := range f.Components {
		if f.Components[i].TokenAddress.Normalized() == norm {
			return i, true
		}
	}
	return 0, false
}

// StageDeposit adds amount to a component's pending deposit
func (f *Fund) StageDeposit(token asset.Address, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errors.Wrap(errors.ErrInvalidInput, "non-positive deposit amount")
	}
	i, ok := f.ComponentIndex(token)
	if !ok {
		return errors.Wrapf(errors.ErrComponentMismatch, "token %s", token)
	}
	f.Components[i].PendingDeposit = f.Components[i].PendingDeposit.Add(amount)
	return nil
}

// HasPendingDeposits reports whether any component has staged deposits
func (f *Fund) HasPendingDeposits() bool {
	for i := range f.Components {
		if f.Components[i].PendingDeposit.IsPositive() {
			return true
		}
	}
	return false
}

// PendingValue prices the staged deposits. unitPrices maps asset id to the
// USD price of one token base unit; a missing entry is an error so that an
// unavailable price aborts the whole valuation.
func (f *Fund) PendingValue(unitPrices map[asset.ID]decimal.Decimal) (decimal.Decimal, error) {
	total := decimal.Zero
	for i := range f.Components {
		c := &f.Components[i]
		if !c.PendingDeposit.IsPositive() {
			continue
		}
		price, ok := unitPrices[c.AssetID]
		if !ok {
			return decimal.Zero, errors.Wrapf(errors.ErrUnknownAsset, "asset %d", c.AssetID)
		}
		total = total.Add(c.PendingDeposit.Mul(price))
	}
	return total, nil
}

// HeldValue prices the converted backing amounts
func (f *Fund) HeldValue(unitPrices map[asset.ID]decimal.Decimal) (decimal.Decimal, error) {
	total := decimal.Zero
	for i := range f.Components {
		c := &f.Components[i]
		if !c.DepositedAmount.IsPositive() {
			continue
		}
		price, ok := unitPrices[c.AssetID]
		if !ok {
			return decimal.Zero, errors.Wrapf(errors.ErrUnknownAsset, "asset %d", c.AssetID)
		}
		total = total.Add(c.DepositedAmount.Mul(price))
	}
	return total, nil
}

// NAVPerShare is the held value divided by outstanding shares.
// At zero supply the bootstrap price is 1:1.
func (f *Fund) NAVPerShare(unitPrices map[asset.ID]decimal.Decimal) (decimal.Decimal, error) {
	if f.IndexTokenSupply.IsZero() {
		return decimal.NewFromInt(1), nil
	}
	held, err := f.HeldValue(unitPrices)
	if err != nil {
		return decimal.Zero, err
	}
	return held.Div(f.IndexTokenSupply), nil
}

// ConvertPending moves all staged deposits into the backing amounts.
// Callers mint the corresponding shares in the same mutation.
func (f *Fund) ConvertPending() {
	for i := range f.Components {
		c := &f.Components[i]
		c.DepositedAmount = c.DepositedAmount.Add(c.PendingDeposit)
		c.PendingDeposit = decimal.Zero
	}
}

// RedemptionPayouts computes the proportional payout vector for a share
// count without mutating the fund. Redeeming X% of supply yields exactly
// the floor of X% of every component, never a value-equivalent substitute.
func (f *Fund) RedemptionPayouts(shares decimal.Decimal) ([]Payout, error) {
	if !shares.IsPositive() {
		return nil, errors.Wrap(errors.ErrInvalidInput, "non-positive share count")
	}
	if !f.IndexTokenSupply.IsPositive() {
		return nil, errors.ErrNothingToRedeem
	}
	if shares.GreaterThan(f.IndexTokenSupply) {
		return nil, errors.ErrInsufficientShares
	}

	payouts := make([]Payout, len(f.Components))
	for i := range f.Components {
		c := &f.Components[i]
		payouts[i] = Payout{
			TokenAddress: c.TokenAddress,
			AssetID:      c.AssetID,
			Amount:       c.DepositedAmount.Mul(shares).Div(f.IndexTokenSupply).Floor(),
		}
	}
	return payouts, nil
}

// ApplyRedemption decrements component amounts and supply for a payout
// vector computed by RedemptionPayouts
func (f *Fund) ApplyRedemption(payouts []Payout, shares decimal.Decimal) {
	for i := range f.Components {
		f.Components[i].DepositedAmount = f.Components[i].DepositedAmount.Sub(payouts[i].Amount)
	}
	f.IndexTokenSupply = f.IndexTokenSupply.Sub(shares)
	f.UpdatedAt = time.Now()
}

// SetTargetRatios replaces the target ratios without moving funds
func (f *Fund) SetTargetRatios(newRatios []int64) error {
	if len(newRatios) != len(f.Components) {
		return errors.Wrap(errors.ErrInvalidInput, "ratio count mismatch")
	}
	var sum int64
	for _, r := range newRatios {
		if r <= 0 {
			return errors.Wrap(errors.ErrInvalidInput, "non-positive target ratio")
		}
		sum += r
	}
	if sum != TotalRatioBps {
		return errors.Wrapf(errors.ErrUnbalancedRatios, "got %d bps", sum)
	}
	for i := range f.Components {
		f.Components[i].TargetRatioBps = newRatios[i]
	}
	f.UpdatedAt = time.Now()
	return nil
}

// Deviations reports the drift of every component from its target weight.
// The decision to act on drift is external policy.
func (f *Fund) Deviations(unitPrices map[asset.ID]decimal.Decimal) ([]Deviation, error) {
	held, err := f.HeldValue(unitPrices)
	if err != nil {
		return nil, err
	}

	devs := make([]Deviation, len(f.Components))
	for i := range f.Components {
		c := &f.Components[i]
		currentBps := int64(0)
		if held.IsPositive() {
			value := c.DepositedAmount.Mul(unitPrices[c.AssetID])
			currentBps = value.Mul(decimal.NewFromInt(TotalRatioBps)).Div(held).Round(0).IntPart()
		}
		drift := currentBps - c.TargetRatioBps
		if drift < 0 {
			drift = -drift
		}
		devs[i] = Deviation{
			TokenAddress: c.TokenAddress,
			AssetID:      c.AssetID,
			TargetBps:    c.TargetRatioBps,
			CurrentBps:   currentBps,
			DriftBps:     drift,
		}
	}
	return devs, nil
}
