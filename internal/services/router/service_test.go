package router

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atlas/internal/adapters/config"
	"atlas/internal/domain/asset"
	"atlas/internal/domain/fund"
	"atlas/internal/domain/message"
	"atlas/internal/repository/memory"
	"atlas/internal/services/access"
	"atlas/pkg/errors"
)

const (
	admin      = "0xADMIN"
	sender     = "0xSENDER"
	localChain = uint64(1)
	destChain  = uint64(8453)
	testFund   = fund.ID("fund-1")
)

// stubTransport records deliveries and can be told to fail
type stubTransport struct {
	delivered []*message.CrossChainMessage
	err       error
}

func (t *stubTransport) Deliver(ctx context.Context, m *message.CrossChainMessage) error {
	if t.err != nil {
		return t.err
	}
	t.delivered = append(t.delivered, m)
	return nil
}

// stubLedger records dispatches and can be told to fail
type stubLedger struct {
	deposits   int
	issuances  int
	redeems    int
	rebalances int
	err        error
}

func (l *stubLedger) DepositComponents(ctx context.Context, fundID fund.ID, tokens []asset.Address, amounts []decimal.Decimal) error {
	if l.err != nil {
		return l.err
	}
	l.deposits++
	return nil
}

func (l *stubLedger) IssueShares(ctx context.Context, fundID fund.ID, recipient string) (decimal.Decimal, error) {
	if l.err != nil {
		return decimal.Zero, l.err
	}
	l.issuances++
	return decimal.NewFromInt(1000), nil
}

func (l *stubLedger) Redeem(ctx context.Context, fundID fund.ID, holder string, shares decimal.Decimal) ([]fund.Payout, error) {
	if l.err != nil {
		return nil, l.err
	}
	l.redeems++
	return []fund.Payout{}, nil
}

func (l *stubLedger) Rebalance(ctx context.Context, actor string, fundID fund.ID, newRatios []int64) error {
	if l.err != nil {
		return l.err
	}
	l.rebalances++
	return nil
}

type fixture struct {
	svc       *Service
	transport *stubTransport
	ledger    *stubLedger
	acl       *access.Service
	messages  *memory.MessageRepository
	nonces    *memory.NonceRepository
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	fees, err := NewFeeSchedule(config.ChainConfig{
		LocalChainID: localChain,
		Family:       "evm",
		BaseFees:     map[string]string{"8453": "0.0002"},
		FeePerByte:   "0.000001",
		AltFeeRate:   "1",
	})
	require.NoError(t, err)

	fx := &fixture{
		transport: &stubTransport{},
		ledger:    &stubLedger{},
		acl:       access.NewService(admin),
		messages:  memory.NewMessageRepository(),
		nonces:    memory.NewNonceRepository(),
		now:       time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}
	fx.svc = NewService(fx.messages, fx.nonces, fx.transport, fx.ledger, fees, fx.acl, nil, Config{
		LocalChainID: localChain,
	})
	fx.svc.SetClock(func() time.Time { return fx.now })
	return fx
}

func depositPayload(issuedAt time.Time) message.Payload {
	return message.Payload{
		Intent:   message.IntentDeposit,
		FundID:   testFund,
		Tokens:   []asset.Address{"0xAAA"},
		Amounts:  []decimal.Decimal{decimal.NewFromInt(600)},
		User:     "0xUSER",
		IssuedAt: issuedAt,
	}
}

// enoughFee comfortably covers any payload in these tests
var enoughFee = decimal.NewFromInt(1)

// inbound builds a message as the source chain's router would have,
// destined for the local chain
func (fx *fixture) inbound(t *testing.T, nonce uint64, p message.Payload) *message.CrossChainMessage {
	t.Helper()

	data, err := p.Encode()
	require.NoError(t, err)

	return &message.CrossChainMessage{
		Hash:      message.ComputeHash(destChain, localChain, sender, nonce, data),
		Nonce:     nonce,
		SrcChain:  destChain,
		DstChain:  localChain,
		Sender:    sender,
		Payload:   data,
		Status:    message.StatusSent,
		FeePaid:   enoughFee,
		CreatedAt: fx.now.Add(-time.Minute),
		UpdatedAt: fx.now.Add(-time.Minute),
	}
}

func TestSend(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	hash, err := fx.svc.Send(ctx, sender, destChain, depositPayload(fx.now), enoughFee)
	require.NoError(t, err)
	require.Len(t, fx.transport.delivered, 1)

	m := fx.transport.delivered[0]
	assert.Equal(t, hash, m.Hash)
	assert.Equal(t, uint64(1), m.Nonce, "first nonce is 1")
	assert.Equal(t, localChain, m.SrcChain)
	assert.Equal(t, destChain, m.DstChain)

	status, err := fx.svc.MessageStatus(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, message.StatusSent, status)

	// Next send gets the next nonce and a different hash
	hash2, err := fx.svc.Send(ctx, sender, destChain, depositPayload(fx.now), enoughFee)
	require.NoError(t, err)
	assert.NotEqual(t, hash, hash2)
	assert.Equal(t, uint64(2), fx.transport.delivered[1].Nonce)
}

func TestSend_Validation(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Send(ctx, "", destChain, depositPayload(fx.now), enoughFee)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	_, err = fx.svc.Send(ctx, sender, destChain, message.Payload{Intent: "liquidate", FundID: testFund}, enoughFee)
	assert.ErrorIs(t, err, errors.ErrUnknownIntent)

	_, err = fx.svc.Send(ctx, sender, 999, depositPayload(fx.now), enoughFee)
	assert.ErrorIs(t, err, errors.ErrUnknownChain)
}

func TestSend_InsufficientFee(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	_, err := fx.svc.Send(ctx, sender, destChain, depositPayload(fx.now), decimal.RequireFromString("0.0000001"))
	assert.ErrorIs(t, err, errors.ErrInsufficientFee)

	// No nonce was burned on the rejected send
	hash, err := fx.svc.Send(ctx, sender, destChain, depositPayload(fx.now), enoughFee)
	require.NoError(t, err)
	m, err := fx.messages.GetByHash(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), m.Nonce)
}

func TestSend_TransportFailure(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.transport.err = errors.New("broker down")

	hash, err := fx.svc.Send(ctx, sender, destChain, depositPayload(fx.now), enoughFee)
	require.Error(t, err)
	require.NotEmpty(t, hash, "failed sends stay inspectable")

	status, err := fx.svc.MessageStatus(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, message.StatusFailed, status)
}

func TestSend_Paused(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.acl.Pause(admin))

	_, err := fx.svc.Send(context.Background(), sender, destChain, depositPayload(fx.now), enoughFee)
	assert.ErrorIs(t, err, errors.ErrPaused)
}

func TestOnReceive_DispatchesDeposit(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	m := fx.inbound(t, 1, depositPayload(fx.now.Add(-time.Minute)))
	require.NoError(t, fx.svc.OnReceive(ctx, m))

	assert.Equal(t, 1, fx.ledger.deposits)
	assert.Equal(t, 1, fx.ledger.issuances)

	status, err := fx.svc.MessageStatus(ctx, m.Hash)
	require.NoError(t, err)
	assert.Equal(t, message.StatusReceived, status)

	last, err := fx.nonces.LastProcessed(ctx, sender, destChain)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), last)
}

func TestOnReceive_DispatchesRedemptionAndRebalance(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	redeem := message.Payload{
		Intent:   message.IntentRedemption,
		FundID:   testFund,
		Amounts:  []decimal.Decimal{decimal.NewFromInt(100)},
		User:     "0xUSER",
		IssuedAt: fx.now,
	}
	require.NoError(t, fx.svc.OnReceive(ctx, fx.inbound(t, 1, redeem)))
	assert.Equal(t, 1, fx.ledger.redeems)

	rebalance := message.Payload{
		Intent:   message.IntentRebalance,
		FundID:   testFund,
		Ratios:   []int64{5000, 5000},
		User:     "0xUSER",
		IssuedAt: fx.now,
	}
	require.NoError(t, fx.svc.OnReceive(ctx, fx.inbound(t, 2, rebalance)))
	assert.Equal(t, 1, fx.ledger.rebalances)
}

func TestOnReceive_RedemptionRequiresSingleAmount(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	bad := message.Payload{
		Intent:   message.IntentRedemption,
		FundID:   testFund,
		Amounts:  []decimal.Decimal{decimal.NewFromInt(1), decimal.NewFromInt(2)},
		User:     "0xUSER",
		IssuedAt: fx.now,
	}
	m := fx.inbound(t, 1, bad)
	err := fx.svc.OnReceive(ctx, m)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	status, _ := fx.svc.MessageStatus(ctx, m.Hash)
	assert.Equal(t, message.StatusFailed, status)
}

func TestOnReceive_OutOfOrderRejected(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	require.NoError(t, fx.svc.OnReceive(ctx, fx.inbound(t, 1, depositPayload(fx.now))))

	// Nonce 3 arrives before 2
	m3 := fx.inbound(t, 3, depositPayload(fx.now))
	err := fx.svc.OnReceive(ctx, m3)
	assert.ErrorIs(t, err, errors.ErrOutOfOrderMessage)

	// Watermark unchanged, message frozen at Sent, nothing dispatched
	last, _ := fx.nonces.LastProcessed(ctx, sender, destChain)
	assert.Equal(t, uint64(1), last)
	status, err := fx.svc.MessageStatus(ctx, m3.Hash)
	require.NoError(t, err)
	assert.Equal(t, message.StatusSent, status)
	assert.Equal(t, 1, fx.ledger.deposits)

	// Nonce 2 arrives, then 3 is redelivered: both process in order
	require.NoError(t, fx.svc.OnReceive(ctx, fx.inbound(t, 2, depositPayload(fx.now))))
	require.NoError(t, fx.svc.OnReceive(ctx, fx.inbound(t, 3, depositPayload(fx.now))))

	last, _ = fx.nonces.LastProcessed(ctx, sender, destChain)
	assert.Equal(t, uint64(3), last)
	assert.Equal(t, 3, fx.ledger.deposits)
}

func TestOnReceive_ReplayRejected(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	m := fx.inbound(t, 1, depositPayload(fx.now))
	require.NoError(t, fx.svc.OnReceive(ctx, m))

	replay := fx.inbound(t, 1, depositPayload(fx.now))
	err := fx.svc.OnReceive(ctx, replay)
	assert.ErrorIs(t, err, errors.ErrDuplicateMessage)

	// Status is untouched by the replay
	status, err := fx.svc.MessageStatus(ctx, m.Hash)
	require.NoError(t, err)
	assert.Equal(t, message.StatusReceived, status)

	// Dispatched exactly once
	assert.Equal(t, 1, fx.ledger.deposits)
	last, _ := fx.nonces.LastProcessed(ctx, sender, destChain)
	assert.Equal(t, uint64(1), last)
}

func TestOnReceive_TamperedPayloadRejected(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	m := fx.inbound(t, 1, depositPayload(fx.now))
	m.Payload = append(m.Payload, ' ')

	err := fx.svc.OnReceive(ctx, m)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
	assert.Zero(t, fx.ledger.deposits)
}

func TestOnReceive_WrongDestination(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	m := fx.inbound(t, 1, depositPayload(fx.now))
	m.DstChain = 555
	m.Hash = message.ComputeHash(m.SrcChain, m.DstChain, m.Sender, m.Nonce, m.Payload)

	err := fx.svc.OnReceive(ctx, m)
	assert.ErrorIs(t, err, errors.ErrUnknownChain)
}

func TestOnReceive_StaleMessageFails(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	m := fx.inbound(t, 1, depositPayload(fx.now.Add(-time.Hour)))
	err := fx.svc.OnReceive(ctx, m)
	assert.ErrorIs(t, err, errors.ErrStaleMessage)

	// Terminal failure; nothing dispatched, nonce consumed
	status, _ := fx.svc.MessageStatus(ctx, m.Hash)
	assert.Equal(t, message.StatusFailed, status)
	last, _ := fx.nonces.LastProcessed(ctx, sender, destChain)
	assert.Equal(t, uint64(1), last)
	assert.Zero(t, fx.ledger.deposits)
}

func TestOnReceive_DispatchFailureIsTerminal(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.ledger.err = errors.ErrFundInactive

	m := fx.inbound(t, 1, depositPayload(fx.now))
	err := fx.svc.OnReceive(ctx, m)
	assert.ErrorIs(t, err, errors.ErrFundInactive)

	status, _ := fx.svc.MessageStatus(ctx, m.Hash)
	assert.Equal(t, message.StatusFailed, status)
	last, _ := fx.nonces.LastProcessed(ctx, sender, destChain)
	assert.Equal(t, uint64(1), last, "failed nonce is consumed")
}

func TestOnReceive_FailedMessageIsNeverRerun(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	fx.ledger.err = errors.ErrFundInactive
	m := fx.inbound(t, 1, depositPayload(fx.now))
	require.ErrorIs(t, fx.svc.OnReceive(ctx, m), errors.ErrFundInactive)

	// Transport redelivers the same envelope after the ledger recovers.
	// The message already failed terminally and must not reach the ledger.
	fx.ledger.err = nil
	redelivery := fx.inbound(t, 1, depositPayload(fx.now))
	err := fx.svc.OnReceive(ctx, redelivery)
	assert.ErrorIs(t, err, errors.ErrDuplicateMessage)

	status, _ := fx.svc.MessageStatus(ctx, m.Hash)
	assert.Equal(t, message.StatusFailed, status)
	assert.Zero(t, fx.ledger.deposits)
}

func TestOnReceive_FreshNonceLandsAfterFailure(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	// Nonce 1 fails terminally
	stale := fx.inbound(t, 1, depositPayload(fx.now.Add(-time.Hour)))
	require.ErrorIs(t, fx.svc.OnReceive(ctx, stale), errors.ErrStaleMessage)

	// The sender re-issues the intent under the next nonce; the channel
	// is not wedged by the failure
	require.NoError(t, fx.svc.OnReceive(ctx, fx.inbound(t, 2, depositPayload(fx.now))))

	assert.Equal(t, 1, fx.ledger.deposits)
	last, _ := fx.nonces.LastProcessed(ctx, sender, destChain)
	assert.Equal(t, uint64(2), last)
}

func TestOnReceive_Paused(t *testing.T) {
	fx := newFixture(t)
	require.NoError(t, fx.acl.Pause(admin))

	err := fx.svc.OnReceive(context.Background(), fx.inbound(t, 1, depositPayload(fx.now)))
	assert.ErrorIs(t, err, errors.ErrPaused)
	assert.Zero(t, fx.ledger.deposits)
}

func TestEstimateFee(t *testing.T) {
	fx := newFixture(t)

	native, alt, err := fx.svc.EstimateFee(depositPayload(fx.now), destChain)
	require.NoError(t, err)
	assert.True(t, native.IsPositive())
	assert.True(t, alt.Equal(native), "alt rate is 1 in this fixture")

	_, _, err = fx.svc.EstimateFee(depositPayload(fx.now), 999)
	assert.ErrorIs(t, err, errors.ErrUnknownChain)
}
