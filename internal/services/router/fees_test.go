package router

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atlas/internal/adapters/config"
	"atlas/pkg/errors"
)

func testChainConfig() config.ChainConfig {
	return config.ChainConfig{
		LocalChainID: 1,
		Family:       "evm",
		BaseFees: map[string]string{
			"8453": "0.0002",
			"10":   "0.0001",
		},
		FeePerByte: "0.000001",
		AltFeeRate: "2",
	}
}

func TestNewFeeSchedule_Validation(t *testing.T) {
	cfg := testChainConfig()
	cfg.FeePerByte = "abc"
	_, err := NewFeeSchedule(cfg)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	cfg = testChainConfig()
	cfg.BaseFees = map[string]string{"notachain": "0.1"}
	_, err = NewFeeSchedule(cfg)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	cfg = testChainConfig()
	cfg.BaseFees = map[string]string{"8453": "-0.1"}
	_, err = NewFeeSchedule(cfg)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestNewFeeSchedule_UnregisteredDestination(t *testing.T) {
	// Parses as a chain id but no such evm chain exists in the selector
	// registry
	cfg := testChainConfig()
	cfg.BaseFees = map[string]string{"123456789123456789": "0.01"}
	_, err := NewFeeSchedule(cfg)
	assert.ErrorIs(t, err, errors.ErrUnknownChain)
}

func TestFeeSchedule_Estimate(t *testing.T) {
	fees, err := NewFeeSchedule(testChainConfig())
	require.NoError(t, err)

	native, alt, err := fees.Estimate(100, 8453)
	require.NoError(t, err)

	// 0.0002 + 100 * 0.000001 = 0.0003
	assert.True(t, native.Equal(decimal.RequireFromString("0.0003")), "native=%s", native)
	assert.True(t, alt.Equal(decimal.RequireFromString("0.0006")), "alt=%s", alt)
}

func TestFeeSchedule_GrowsWithPayload(t *testing.T) {
	fees, err := NewFeeSchedule(testChainConfig())
	require.NoError(t, err)

	small, _, err := fees.Estimate(10, 10)
	require.NoError(t, err)
	large, _, err := fees.Estimate(10_000, 10)
	require.NoError(t, err)

	assert.True(t, large.GreaterThan(small))
}

func TestFeeSchedule_UnknownChain(t *testing.T) {
	fees, err := NewFeeSchedule(testChainConfig())
	require.NoError(t, err)

	_, _, err = fees.Estimate(100, 999)
	assert.ErrorIs(t, err, errors.ErrUnknownChain)

	assert.True(t, fees.Knows(8453))
	assert.False(t, fees.Knows(999))
}
