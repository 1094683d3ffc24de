package postgres

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"atlas/internal/domain/fund"
	"atlas/pkg/errors"
)

// Compile-time check
var _ fund.Repository = (*FundRepository)(nil)

// FundRepository implements fund.Repository using PostgreSQL
type FundRepository struct {
	db DBTX
}

// NewFundRepository creates a new fund repository
func NewFundRepository(db DBTX) *FundRepository {
	return &FundRepository{db: db}
}

// Create inserts a fund and its components
func (r *FundRepository) Create(ctx context.Context, f *fund.Fund) error {
	query := `
		INSERT INTO funds (
			id, name, symbol, creator, index_token_supply, is_active,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.db.ExecContext(ctx, query,
		f.ID, f.Name, f.Symbol, f.Creator, f.IndexTokenSupply, f.IsActive,
		f.CreatedAt, f.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return errors.Wrapf(errors.ErrAlreadyExists, "fund %s", f.ID)
		}
		return errors.Wrap(err, "failed to create fund")
	}

	componentQuery := `
		INSERT INTO fund_components (
			fund_id, position, token_address, asset_id, target_ratio_bps,
			deposited_amount, pending_deposit
		) VALUES ($1, $2, $3, $4, $5, $6, $7)`

	for i, c := range f.Components {
		_, err := r.db.ExecContext(ctx, componentQuery,
			f.ID, i, c.TokenAddress, c.AssetID, c.TargetRatioBps,
			c.DepositedAmount, c.PendingDeposit,
		)
		if err != nil {
			return errors.Wrap(err, "failed to create fund component")
		}
	}

	return nil
}

// GetByID retrieves a fund with its components
func (r *FundRepository) GetByID(ctx context.Context, id fund.ID) (*fund.Fund, error) {
	var f fund.Fund

	query := `
		SELECT id, name, symbol, creator, index_token_supply, is_active,
			   created_at, updated_at
		FROM funds
		WHERE id = $1`

	err := r.db.GetContext(ctx, &f, query, id)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrNotFound, "fund %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get fund")
	}

	components, err := r.components(ctx, id)
	if err != nil {
		return nil, err
	}
	f.Components = components

	return &f, nil
}

// ListActive retrieves all active funds with their components
func (r *FundRepository) ListActive(ctx context.Context) ([]*fund.Fund, error) {
	var funds []*fund.Fund

	query := `
		SELECT id, name, symbol, creator, index_token_supply, is_active,
			   created_at, updated_at
		FROM funds
		WHERE is_active = true
		ORDER BY created_at`

	if err := r.db.SelectContext(ctx, &funds, query); err != nil {
		return nil, errors.Wrap(err, "failed to list active funds")
	}

	for _, f := range funds {
		components, err := r.components(ctx, f.ID)
		if err != nil {
			return nil, err
		}
		f.Components = components
	}

	return funds, nil
}

// Update persists supply, activity flag and component state
func (r *FundRepository) Update(ctx context.Context, f *fund.Fund) error {
	query := `
		UPDATE funds
		SET index_token_supply = $2, is_active = $3, updated_at = $4
		WHERE id = $1`

	res, err := r.db.ExecContext(ctx, query, f.ID, f.IndexTokenSupply, f.IsActive, f.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "failed to update fund")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrapf(errors.ErrNotFound, "fund %s", f.ID)
	}

	componentQuery := `
		UPDATE fund_components
		SET target_ratio_bps = $3, deposited_amount = $4, pending_deposit = $5
		WHERE fund_id = $1 AND position = $2`

	for i, c := range f.Components {
		_, err := r.db.ExecContext(ctx, componentQuery,
			f.ID, i, c.TargetRatioBps, c.DepositedAmount, c.PendingDeposit,
		)
		if err != nil {
			return errors.Wrap(err, "failed to update fund component")
		}
	}

	return nil
}

func (r *FundRepository) components(ctx context.Context, id fund.ID) ([]fund.Component, error) {
	var components []fund.Component

	query := `
		SELECT token_address, asset_id, target_ratio_bps, deposited_amount, pending_deposit
		FROM fund_components
		WHERE fund_id = $1
		ORDER BY position`

	if err := r.db.SelectContext(ctx, &components, query, id); err != nil {
		return nil, errors.Wrap(err, "failed to get fund components")
	}
	return components, nil
}
