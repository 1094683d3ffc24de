package fund

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atlas/internal/domain/asset"
	"atlas/pkg/errors"
)

const (
	tokenA = asset.Address("0xAAAA000000000000000000000000000000000001")
	tokenB = asset.Address("0xBBBB000000000000000000000000000000000002")
)

func twoComponentFund() *Fund {
	return &Fund{
		ID:     NewID("0xCREATOR", "Blue Chip Index", "BCI", 0),
		Name:   "Blue Chip Index",
		Symbol: "BCI",
		Components: []Component{
			{TokenAddress: tokenA, AssetID: 1, TargetRatioBps: 6000},
			{TokenAddress: tokenB, AssetID: 2, TargetRatioBps: 4000},
		},
		IsActive: true,
	}
}

func unitPrice(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

func TestNewID_Deterministic(t *testing.T) {
	a := NewID("0xCREATOR", "Fund", "FND", 0)
	b := NewID("0xCREATOR", "Fund", "FND", 0)
	c := NewID("0xCREATOR", "Fund", "FND", 1)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, string(a), 64)
}

func TestValidateComponents(t *testing.T) {
	tests := []struct {
		name       string
		components []Component
		wantErr    error
	}{
		{
			name: "valid",
			components: []Component{
				{TokenAddress: tokenA, TargetRatioBps: 6000},
				{TokenAddress: tokenB, TargetRatioBps: 4000},
			},
		},
		{
			name:       "empty",
			components: nil,
			wantErr:    errors.ErrInvalidInput,
		},
		{
			name: "ratios under 10000",
			components: []Component{
				{TokenAddress: tokenA, TargetRatioBps: 5000},
				{TokenAddress: tokenB, TargetRatioBps: 4000},
			},
			wantErr: errors.ErrUnbalancedRatios,
		},
		{
			name: "ratios over 10000",
			components: []Component{
				{TokenAddress: tokenA, TargetRatioBps: 6000},
				{TokenAddress: tokenB, TargetRatioBps: 5000},
			},
			wantErr: errors.ErrUnbalancedRatios,
		},
		{
			name: "zero ratio",
			components: []Component{
				{TokenAddress: tokenA, TargetRatioBps: 10000},
				{TokenAddress: tokenB, TargetRatioBps: 0},
			},
			wantErr: errors.ErrInvalidInput,
		},
		{
			name: "zero address",
			components: []Component{
				{TokenAddress: "", TargetRatioBps: 10000},
			},
			wantErr: errors.ErrInvalidInput,
		},
		{
			name: "duplicate token differing only in case",
			components: []Component{
				{TokenAddress: tokenA, TargetRatioBps: 6000},
				{TokenAddress: asset.Address("0xaaaa000000000000000000000000000000000001"), TargetRatioBps: 4000},
			},
			wantErr: errors.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateComponents(tt.components)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStageDeposit(t *testing.T) {
	f := twoComponentFund()

	require.NoError(t, f.StageDeposit(tokenA, decimal.NewFromInt(600)))
	require.NoError(t, f.StageDeposit(tokenA, decimal.NewFromInt(100)))

	assert.True(t, f.Components[0].PendingDeposit.Equal(decimal.NewFromInt(700)))
	assert.True(t, f.HasPendingDeposits())

	err := f.StageDeposit(asset.Address("0xDEAD"), decimal.NewFromInt(1))
	assert.ErrorIs(t, err, errors.ErrComponentMismatch)

	err = f.StageDeposit(tokenA, decimal.Zero)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestPendingValue_MissingPriceAborts(t *testing.T) {
	f := twoComponentFund()
	require.NoError(t, f.StageDeposit(tokenA, decimal.NewFromInt(600)))
	require.NoError(t, f.StageDeposit(tokenB, decimal.NewFromInt(400)))

	prices := map[asset.ID]decimal.Decimal{1: unitPrice(1)}
	_, err := f.PendingValue(prices)
	assert.ErrorIs(t, err, errors.ErrUnknownAsset)

	prices[2] = unitPrice(1)
	v, err := f.PendingValue(prices)
	require.NoError(t, err)
	assert.True(t, v.Equal(decimal.NewFromInt(1000)))
}

func TestNAVPerShare_BootstrapsAtOne(t *testing.T) {
	f := twoComponentFund()

	nav, err := f.NAVPerShare(nil)
	require.NoError(t, err)
	assert.True(t, nav.Equal(decimal.NewFromInt(1)))
}

func TestNAVPerShare_TracksHeldValue(t *testing.T) {
	f := twoComponentFund()
	f.Components[0].DepositedAmount = decimal.NewFromInt(600)
	f.Components[1].DepositedAmount = decimal.NewFromInt(400)
	f.IndexTokenSupply = decimal.NewFromInt(1000)

	prices := map[asset.ID]decimal.Decimal{1: unitPrice(2), 2: unitPrice(1)}

	nav, err := f.NAVPerShare(prices)
	require.NoError(t, err)
	// held = 600*2 + 400*1 = 1600 over 1000 shares
	assert.True(t, nav.Equal(decimal.RequireFromString("1.6")), "nav=%s", nav)
}

func TestConvertPending(t *testing.T) {
	f := twoComponentFund()
	require.NoError(t, f.StageDeposit(tokenA, decimal.NewFromInt(600)))

	f.ConvertPending()

	assert.True(t, f.Components[0].DepositedAmount.Equal(decimal.NewFromInt(600)))
	assert.True(t, f.Components[0].PendingDeposit.IsZero())
	assert.False(t, f.HasPendingDeposits())
}

func TestRedemptionPayouts_Proportional(t *testing.T) {
	f := twoComponentFund()
	f.Components[0].DepositedAmount = decimal.NewFromInt(600)
	f.Components[1].DepositedAmount = decimal.NewFromInt(400)
	f.IndexTokenSupply = decimal.NewFromInt(1000)

	payouts, err := f.RedemptionPayouts(decimal.NewFromInt(100))
	require.NoError(t, err)
	require.Len(t, payouts, 2)

	assert.True(t, payouts[0].Amount.Equal(decimal.NewFromInt(60)), "payout A=%s", payouts[0].Amount)
	assert.True(t, payouts[1].Amount.Equal(decimal.NewFromInt(40)), "payout B=%s", payouts[1].Amount)

	// Payout computation does not mutate
	assert.True(t, f.IndexTokenSupply.Equal(decimal.NewFromInt(1000)))
	assert.True(t, f.Components[0].DepositedAmount.Equal(decimal.NewFromInt(600)))
}

func TestRedemptionPayouts_FloorsFractions(t *testing.T) {
	f := twoComponentFund()
	f.Components[0].DepositedAmount = decimal.NewFromInt(100)
	f.Components[1].DepositedAmount = decimal.NewFromInt(50)
	f.IndexTokenSupply = decimal.NewFromInt(3)

	payouts, err := f.RedemptionPayouts(decimal.NewFromInt(1))
	require.NoError(t, err)

	// 100/3 -> 33, 50/3 -> 16; dust stays in the fund
	assert.True(t, payouts[0].Amount.Equal(decimal.NewFromInt(33)))
	assert.True(t, payouts[1].Amount.Equal(decimal.NewFromInt(16)))
}

func TestRedemptionPayouts_Errors(t *testing.T) {
	f := twoComponentFund()

	_, err := f.RedemptionPayouts(decimal.NewFromInt(1))
	assert.ErrorIs(t, err, errors.ErrNothingToRedeem)

	f.IndexTokenSupply = decimal.NewFromInt(10)
	_, err = f.RedemptionPayouts(decimal.NewFromInt(11))
	assert.ErrorIs(t, err, errors.ErrInsufficientShares)

	_, err = f.RedemptionPayouts(decimal.Zero)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestApplyRedemption(t *testing.T) {
	f := twoComponentFund()
	f.Components[0].DepositedAmount = decimal.NewFromInt(600)
	f.Components[1].DepositedAmount = decimal.NewFromInt(400)
	f.IndexTokenSupply = decimal.NewFromInt(1000)

	shares := decimal.NewFromInt(100)
	payouts, err := f.RedemptionPayouts(shares)
	require.NoError(t, err)

	f.ApplyRedemption(payouts, shares)

	assert.True(t, f.IndexTokenSupply.Equal(decimal.NewFromInt(900)))
	assert.True(t, f.Components[0].DepositedAmount.Equal(decimal.NewFromInt(540)))
	assert.True(t, f.Components[1].DepositedAmount.Equal(decimal.NewFromInt(360)))
}

func TestSetTargetRatios(t *testing.T) {
	f := twoComponentFund()

	require.NoError(t, f.SetTargetRatios([]int64{7000, 3000}))
	assert.Equal(t, int64(7000), f.Components[0].TargetRatioBps)

	assert.ErrorIs(t, f.SetTargetRatios([]int64{7000}), errors.ErrInvalidInput)
	assert.ErrorIs(t, f.SetTargetRatios([]int64{9000, 2000}), errors.ErrUnbalancedRatios)
	assert.ErrorIs(t, f.SetTargetRatios([]int64{10000, 0}), errors.ErrInvalidInput)

	// Ratios never move funds
	assert.True(t, f.Components[0].DepositedAmount.IsZero())
}

func TestDeviations(t *testing.T) {
	f := twoComponentFund()
	f.Components[0].DepositedAmount = decimal.NewFromInt(700)
	f.Components[1].DepositedAmount = decimal.NewFromInt(300)
	f.IndexTokenSupply = decimal.NewFromInt(1000)

	prices := map[asset.ID]decimal.Decimal{1: unitPrice(1), 2: unitPrice(1)}

	devs, err := f.Deviations(prices)
	require.NoError(t, err)
	require.Len(t, devs, 2)

	assert.Equal(t, int64(7000), devs[0].CurrentBps)
	assert.Equal(t, int64(1000), devs[0].DriftBps)
	assert.Equal(t, int64(3000), devs[1].CurrentBps)
	assert.Equal(t, int64(1000), devs[1].DriftBps)
}

func TestDeviations_EmptyFund(t *testing.T) {
	f := twoComponentFund()
	prices := map[asset.ID]decimal.Decimal{1: unitPrice(1), 2: unitPrice(1)}

	devs, err := f.Deviations(prices)
	require.NoError(t, err)

	for _, d := range devs {
		assert.Equal(t, int64(0), d.CurrentBps)
		assert.Equal(t, d.TargetBps, d.DriftBps)
	}
}
