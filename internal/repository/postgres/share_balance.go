package postgres

import (
	"database/sql"

	"context"

	"github.com/shopspring/decimal"

	"atlas/internal/domain/fund"
	"atlas/pkg/errors"
)

// Compile-time check
var _ fund.BalanceRepository = (*ShareBalanceRepository)(nil)

// ShareBalanceRepository implements fund.BalanceRepository using PostgreSQL
type ShareBalanceRepository struct {
	db DBTX
}

// NewShareBalanceRepository creates a new share balance repository
func NewShareBalanceRepository(db DBTX) *ShareBalanceRepository {
	return &ShareBalanceRepository{db: db}
}

// Balance returns a holder's shares, zero when no row exists
func (r *ShareBalanceRepository) Balance(ctx context.Context, fundID fund.ID, holder string) (decimal.Decimal, error) {
	var shares decimal.Decimal

	query := `SELECT shares FROM share_balances WHERE fund_id = $1 AND holder = $2`

	err := r.db.GetContext(ctx, &shares, query, fundID, holder)
	if err == sql.ErrNoRows {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to get share balance")
	}
	return shares, nil
}

// SetBalance upserts a holder's shares; a zero balance removes the row
func (r *ShareBalanceRepository) SetBalance(ctx context.Context, fundID fund.ID, holder string, shares decimal.Decimal) error {
	if shares.IsNegative() {
		return errors.Wrap(errors.ErrInvalidInput, "negative share balance")
	}
	if shares.IsZero() {
		query := `DELETE FROM share_balances WHERE fund_id = $1 AND holder = $2`
		if _, err := r.db.ExecContext(ctx, query, fundID, holder); err != nil {
			return errors.Wrap(err, "failed to clear share balance")
		}
		return nil
	}

	query := `
		INSERT INTO share_balances (fund_id, holder, shares)
		VALUES ($1, $2, $3)
		ON CONFLICT (fund_id, holder) DO UPDATE SET shares = EXCLUDED.shares`

	if _, err := r.db.ExecContext(ctx, query, fundID, holder, shares); err != nil {
		return errors.Wrap(err, "failed to set share balance")
	}
	return nil
}

// TotalShares sums all holder balances for a fund
func (r *ShareBalanceRepository) TotalShares(ctx context.Context, fundID fund.ID) (decimal.Decimal, error) {
	var total decimal.Decimal

	query := `SELECT COALESCE(SUM(shares), 0) FROM share_balances WHERE fund_id = $1`

	if err := r.db.GetContext(ctx, &total, query, fundID); err != nil {
		return decimal.Zero, errors.Wrap(err, "failed to sum share balances")
	}
	return total, nil
}

// Holders lists non-zero balances for a fund
func (r *ShareBalanceRepository) Holders(ctx context.Context, fundID fund.ID) ([]fund.ShareBalance, error) {
	var balances []fund.ShareBalance

	query := `
		SELECT fund_id, holder, shares
		FROM share_balances
		WHERE fund_id = $1
		ORDER BY holder`

	if err := r.db.SelectContext(ctx, &balances, query, fundID); err != nil {
		return nil, errors.Wrap(err, "failed to list holders")
	}
	return balances, nil
}
