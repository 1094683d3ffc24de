package message

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atlas/internal/domain/asset"
	"atlas/internal/domain/fund"
	"atlas/pkg/errors"
)

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusPending, StatusSent, true},
		{StatusSent, StatusReceived, true},
		{StatusSent, StatusFailed, true},
		{StatusPending, StatusReceived, false},
		{StatusPending, StatusFailed, false},
		{StatusReceived, StatusFailed, false},
		{StatusReceived, StatusSent, false},
		{StatusFailed, StatusSent, false},
		{StatusSent, StatusPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			m := &CrossChainMessage{Hash: "h", Status: tt.from}
			err := m.Transition(tt.to)
			if tt.allowed {
				require.NoError(t, err)
				assert.Equal(t, tt.to, m.Status)
			} else {
				require.Error(t, err)
				assert.Equal(t, tt.from, m.Status, "failed transition must not mutate")
			}
		})
	}
}

func TestTransition_InvalidStatus(t *testing.T) {
	m := &CrossChainMessage{Status: StatusPending}
	err := m.Transition(Status("teleported"))
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestComputeHash(t *testing.T) {
	payload := []byte(`{"intent":"deposit"}`)

	a := ComputeHash(1, 2, "0xSENDER", 7, payload)
	b := ComputeHash(1, 2, "0xSENDER", 7, payload)
	assert.Equal(t, a, b)

	assert.NotEqual(t, a, ComputeHash(2, 2, "0xSENDER", 7, payload))
	assert.NotEqual(t, a, ComputeHash(1, 3, "0xSENDER", 7, payload))
	assert.NotEqual(t, a, ComputeHash(1, 2, "0xOTHER", 7, payload))
	assert.NotEqual(t, a, ComputeHash(1, 2, "0xSENDER", 8, payload))
	assert.NotEqual(t, a, ComputeHash(1, 2, "0xSENDER", 7, []byte(`{}`)))
}

func TestPayloadRoundTrip(t *testing.T) {
	p := Payload{
		Intent:   IntentDeposit,
		FundID:   fund.ID("abc123"),
		Tokens:   []asset.Address{"0xAAA", "0xBBB"},
		Amounts:  []decimal.Decimal{decimal.NewFromInt(600), decimal.NewFromInt(400)},
		User:     "0xUSER",
		IssuedAt: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}

	data, err := p.Encode()
	require.NoError(t, err)

	got, err := DecodePayload(data)
	require.NoError(t, err)

	assert.Equal(t, p.Intent, got.Intent)
	assert.Equal(t, p.FundID, got.FundID)
	assert.Equal(t, p.Tokens, got.Tokens)
	require.Len(t, got.Amounts, 2)
	assert.True(t, got.Amounts[0].Equal(decimal.NewFromInt(600)))
	assert.True(t, p.IssuedAt.Equal(got.IssuedAt))
}

func TestDecodePayload_Errors(t *testing.T) {
	_, err := DecodePayload([]byte("not json"))
	assert.ErrorIs(t, err, errors.ErrUnknownIntent)

	_, err = DecodePayload([]byte(`{"intent":"liquidate","fund_id":"f"}`))
	assert.ErrorIs(t, err, errors.ErrUnknownIntent)

	_, err = DecodePayload([]byte(`{"intent":"deposit"}`))
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}
