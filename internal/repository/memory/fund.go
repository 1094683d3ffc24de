package memory

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"atlas/internal/domain/fund"
	"atlas/pkg/errors"
)

// Compile-time checks
var (
	_ fund.Repository        = (*FundRepository)(nil)
	_ fund.BalanceRepository = (*ShareBalanceRepository)(nil)
)

// FundRepository is an in-memory fund store. Used in tests and in
// single-process deployments that run without Postgres.
type FundRepository struct {
	mu    sync.RWMutex
	funds map[fund.ID]*fund.Fund
}

// NewFundRepository creates an empty in-memory fund store
func NewFundRepository() *FundRepository {
	return &FundRepository{
		funds: make(map[fund.ID]*fund.Fund),
	}
}

// Create inserts a fund, rejecting id collisions
func (r *FundRepository) Create(ctx context.Context, f *fund.Fund) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.funds[f.ID]; ok {
		return errors.Wrapf(errors.ErrAlreadyExists, "fund %s", f.ID)
	}

	r.funds[f.ID] = cloneFund(f)
	return nil
}

// GetByID retrieves a fund with its components
func (r *FundRepository) GetByID(ctx context.Context, id fund.ID) (*fund.Fund, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	f, ok := r.funds[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "fund %s", id)
	}

	return cloneFund(f), nil
}

// ListActive retrieves all active funds
func (r *FundRepository) ListActive(ctx context.Context) ([]*fund.Fund, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var active []*fund.Fund
	for _, f := range r.funds {
		if f.IsActive {
			active = append(active, cloneFund(f))
		}
	}

	return active, nil
}

// Update persists component amounts, supply, ratios and activity flag
func (r *FundRepository) Update(ctx context.Context, f *fund.Fund) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.funds[f.ID]; !ok {
		return errors.Wrapf(errors.ErrNotFound, "fund %s", f.ID)
	}

	r.funds[f.ID] = cloneFund(f)
	return nil
}

// cloneFund copies a fund so callers never share component slices
func cloneFund(f *fund.Fund) *fund.Fund {
	c := *f
	c.Components = make([]fund.Component, len(f.Components))
	copy(c.Components, f.Components)
	return &c
}

type balanceKey struct {
	fundID fund.ID
	holder string
}

// ShareBalanceRepository is an in-memory share balance store
type ShareBalanceRepository struct {
	mu       sync.RWMutex
	balances map[balanceKey]decimal.Decimal
}

// NewShareBalanceRepository creates an empty in-memory balance store
func NewShareBalanceRepository() *ShareBalanceRepository {
	return &ShareBalanceRepository{
		balances: make(map[balanceKey]decimal.Decimal),
	}
}

// Balance returns a holder's shares, decimal.Zero when absent
func (r *ShareBalanceRepository) Balance(ctx context.Context, fundID fund.ID, holder string) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if shares, ok := r.balances[balanceKey{fundID, holder}]; ok {
		return shares, nil
	}

	return decimal.Zero, nil
}

// SetBalance upserts a holder's shares; zero removes the row
func (r *ShareBalanceRepository) SetBalance(ctx context.Context, fundID fund.ID, holder string, shares decimal.Decimal) error {
	if shares.IsNegative() {
		return errors.Wrapf(errors.ErrInvalidInput, "negative balance for %s in fund %s", holder, fundID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := balanceKey{fundID, holder}
	if shares.IsZero() {
		delete(r.balances, key)
		return nil
	}

	r.balances[key] = shares
	return nil
}

// TotalShares sums all holder balances for a fund
func (r *ShareBalanceRepository) TotalShares(ctx context.Context, fundID fund.ID) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := decimal.Zero
	for key, shares := range r.balances {
		if key.fundID == fundID {
			total = total.Add(shares)
		}
	}

	return total, nil
}

// Holders lists holders with a non-zero balance
func (r *ShareBalanceRepository) Holders(ctx context.Context, fundID fund.ID) ([]fund.ShareBalance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var holders []fund.ShareBalance
	for key, shares := range r.balances {
		if key.fundID == fundID {
			holders = append(holders, fund.ShareBalance{
				FundID: key.fundID,
				Holder: key.holder,
				Shares: shares,
			})
		}
	}

	return holders, nil
}
