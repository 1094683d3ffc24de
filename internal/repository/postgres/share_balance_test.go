package postgres

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atlas/internal/testsupport"
)

func TestShareBalanceRepository(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	testDB := testsupport.NewTestPostgres(t)
	ctx := context.Background()

	f := testFund("Balance Index")
	require.NoError(t, NewFundRepository(testDB.Tx()).Create(ctx, f))

	repo := NewShareBalanceRepository(testDB.Tx())

	// Absent balance reads as zero
	balance, err := repo.Balance(ctx, f.ID, "0xalice")
	require.NoError(t, err)
	assert.True(t, balance.IsZero())

	require.NoError(t, repo.SetBalance(ctx, f.ID, "0xalice", decimal.NewFromInt(100)))
	require.NoError(t, repo.SetBalance(ctx, f.ID, "0xbob", decimal.NewFromInt(50)))

	balance, err = repo.Balance(ctx, f.ID, "0xalice")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(100)))

	// Upsert overwrites rather than accumulates
	require.NoError(t, repo.SetBalance(ctx, f.ID, "0xalice", decimal.NewFromInt(250)))
	balance, err = repo.Balance(ctx, f.ID, "0xalice")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(250)))

	total, err := repo.TotalShares(ctx, f.ID)
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(300)))

	holders, err := repo.Holders(ctx, f.ID)
	require.NoError(t, err)
	assert.Len(t, holders, 2)

	// Zero removes the row
	require.NoError(t, repo.SetBalance(ctx, f.ID, "0xbob", decimal.Zero))
	holders, err = repo.Holders(ctx, f.ID)
	require.NoError(t, err)
	require.Len(t, holders, 1)
	assert.Equal(t, "0xalice", holders[0].Holder)

	total, err = repo.TotalShares(ctx, f.ID)
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.NewFromInt(250)))
}
