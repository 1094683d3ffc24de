package fund

import (
	"context"

	"github.com/shopspring/decimal"
)

// Repository defines operations for fund persistence.
// Funds (with components) and share balances are logically distinct stores
// even when colocated in one database.
type Repository interface {
	// Create inserts a fund with its components; fails with
	// errors.ErrAlreadyExists on a fund id collision
	Create(ctx context.Context, f *Fund) error

	// GetByID retrieves a fund with its components
	GetByID(ctx context.Context, id ID) (*Fund, error)

	// ListActive retrieves all active funds
	ListActive(ctx context.Context) ([]*Fund, error)

	// Update persists component amounts, supply, ratios and activity flag
	Update(ctx context.Context, f *Fund) error
}

// BalanceRepository defines operations for the share balance store
type BalanceRepository interface {
	// Balance returns a holder's shares, decimal.Zero when absent
	Balance(ctx context.Context, fundID ID, holder string) (decimal.Decimal, error)

	// SetBalance upserts a holder's shares; zero removes the row
	SetBalance(ctx context.Context, fundID ID, holder string, shares decimal.Decimal) error

	// TotalShares sums all holder balances for a fund
	TotalShares(ctx context.Context, fundID ID) (decimal.Decimal, error)

	// Holders lists holders with a non-zero balance
	Holders(ctx context.Context, fundID ID) ([]ShareBalance, error)
}
