package router

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"atlas/internal/domain/asset"
	"atlas/internal/domain/fund"
	"atlas/internal/domain/message"
	"atlas/internal/events"
	"atlas/internal/metrics"
	"atlas/internal/services/access"
	"atlas/pkg/errors"
	"atlas/pkg/logger"
)

// Transport is the opaque delivery channel between chains. The router does
// not retransmit; retry policy lives inside the transport adapter.
type Transport interface {
	Deliver(ctx context.Context, m *message.CrossChainMessage) error
}

// Ledger is the destination-side dispatch surface. Satisfied by
// ledger.Service.
type Ledger interface {
	DepositComponents(ctx context.Context, fundID fund.ID, tokens []asset.Address, amounts []decimal.Decimal) error
	IssueShares(ctx context.Context, fundID fund.ID, recipient string) (decimal.Decimal, error)
	Redeem(ctx context.Context, fundID fund.ID, holder string, shares decimal.Decimal) ([]fund.Payout, error)
	Rebalance(ctx context.Context, actor string, fundID fund.ID, newRatios []int64) error
}

// Config holds router policy knobs
type Config struct {
	// LocalChainID is the chain this router instance runs on
	LocalChainID uint64

	// FreshnessWindow bounds replay risk on inbound messages
	FreshnessWindow time.Duration
}

// Service moves fund-affecting intents between chains exactly once, in
// order. Fund ledger mutations are not commutative, so reordering is
// rejected loudly instead of applied silently.
type Service struct {
	messages  message.Repository
	nonces    message.NonceRepository
	transport Transport
	ledger    Ledger
	fees      *FeeSchedule
	access    *access.Service
	events    *events.Publisher
	cfg       Config

	// deliveries for the same (sender, srcChain) pair are serialized so the
	// nonce watermark never races
	recvMu    sync.Mutex
	recvLocks map[string]*sync.Mutex

	now func() time.Time
	log *logger.Logger
}

// NewService constructs a router
func NewService(
	messages message.Repository,
	nonces message.NonceRepository,
	transport Transport,
	ledger Ledger,
	fees *FeeSchedule,
	acl *access.Service,
	publisher *events.Publisher,
	cfg Config,
) *Service {
	if cfg.FreshnessWindow <= 0 {
		cfg.FreshnessWindow = 10 * time.Minute
	}
	return &Service{
		messages:  messages,
		nonces:    nonces,
		transport: transport,
		ledger:    ledger,
		fees:      fees,
		access:    acl,
		events:    publisher,
		cfg:       cfg,
		recvLocks: make(map[string]*sync.Mutex),
		now:       time.Now,
		log:       logger.Get().With("component", "message_router", "chain_id", cfg.LocalChainID),
	}
}

// SetClock overrides the time source. Intended for tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// EstimateFee returns the native and alternative fee for a payload
func (s *Service) EstimateFee(payload message.Payload, dstChain uint64) (native, alt decimal.Decimal, err error) {
	data, err := payload.Encode()
	if err != nil {
		return decimal.Zero, decimal.Zero, errors.Wrap(err, "encode payload")
	}
	return s.fees.Estimate(len(data), dstChain)
}

// Send assigns the next nonce for (sender, dstChain), collects the delivery
// fee and hands the message to transport. The message hash is deterministic
// from nonce and payload, so duplicate sends are detectable.
func (s *Service) Send(ctx context.Context, sender string, dstChain uint64, payload message.Payload, nativeFee decimal.Decimal) (message.Hash, error) {
	if err := s.access.CheckRunning(); err != nil {
		return "", err
	}
	if sender == "" {
		return "", errors.Wrap(errors.ErrInvalidInput, "sender required")
	}
	if !payload.Intent.Valid() {
		return "", errors.Wrapf(errors.ErrUnknownIntent, "%q", payload.Intent)
	}
	if !s.fees.Knows(dstChain) {
		return "", errors.Wrapf(errors.ErrUnknownChain, "chain %d", dstChain)
	}
	if payload.IssuedAt.IsZero() {
		payload.IssuedAt = s.now()
	}

	data, err := payload.Encode()
	if err != nil {
		return "", errors.Wrap(err, "encode payload")
	}

	required, _, err := s.fees.Estimate(len(data), dstChain)
	if err != nil {
		return "", err
	}
	// Underpayment is rejected, never accepted at a discount
	if nativeFee.LessThan(required) {
		return "", errors.Wrapf(errors.ErrInsufficientFee, "need %s, got %s", required, nativeFee)
	}

	nonce, err := s.nonces.NextOutbound(ctx, sender, dstChain)
	if err != nil {
		return "", errors.Wrap(err, "assign nonce")
	}

	now := s.now()
	m := &message.CrossChainMessage{
		Hash:      message.ComputeHash(s.cfg.LocalChainID, dstChain, sender, nonce, data),
		Nonce:     nonce,
		SrcChain:  s.cfg.LocalChainID,
		DstChain:  dstChain,
		Sender:    sender,
		Payload:   data,
		Status:    message.StatusPending,
		FeePaid:   nativeFee,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.messages.Create(ctx, m); err != nil {
		return "", errors.Wrap(err, "record message")
	}

	if err := m.Transition(message.StatusSent); err != nil {
		return "", err
	}
	if err := s.messages.UpdateStatus(ctx, m.Hash, message.StatusSent); err != nil {
		return "", errors.Wrap(err, "mark sent")
	}
	metrics.MessageTransitions.WithLabelValues("sent").Inc()

	if err := s.transport.Deliver(ctx, m); err != nil {
		s.fail(ctx, m, errors.Wrap(err, "transport delivery"))
		return m.Hash, errors.Wrap(err, "deliver message")
	}

	s.log.Infow("Message sent",
		"hash", m.Hash,
		"sender", sender,
		"dst_chain", dstChain,
		"nonce", nonce,
		"intent", payload.Intent,
	)
	s.events.PublishMessageSent(ctx, events.MessageSentEvent{
		Hash:     m.Hash,
		Sender:   sender,
		DstChain: dstChain,
		Nonce:    nonce,
		At:       now,
	})
	return m.Hash, nil
}

// OnReceive is the destination-side entry point. Nonce ordering is a hard
// gate: an out-of-order message is rejected, the original stays frozen at
// Sent so monitoring can alert, and the watermark does not move. A message
// that already reached a terminal state is never re-run, whatever the
// transport redelivers; a terminal failure consumes its nonce so the sender
// can re-issue the intent under a fresh one.
func (s *Service) OnReceive(ctx context.Context, m *message.CrossChainMessage) error {
	if err := s.access.CheckRunning(); err != nil {
		return err
	}
	if m.DstChain != s.cfg.LocalChainID {
		return errors.Wrapf(errors.ErrUnknownChain, "message for chain %d", m.DstChain)
	}

	// Integrity: the hash must match the ordering inputs and payload
	if message.ComputeHash(m.SrcChain, m.DstChain, m.Sender, m.Nonce, m.Payload) != m.Hash {
		metrics.MessageTransitions.WithLabelValues("rejected").Inc()
		return errors.Wrap(errors.ErrInvalidInput, "message hash mismatch")
	}

	mu := s.recvLock(m.Sender, m.SrcChain)
	mu.Lock()
	defer mu.Unlock()

	// Keep inbound messages inspectable on this side too
	if err := s.messages.Create(ctx, m); err != nil {
		if !errors.Is(err, errors.ErrDuplicateMessage) {
			return errors.Wrap(err, "record inbound message")
		}
		stored, lookErr := s.messages.GetByHash(ctx, m.Hash)
		if lookErr != nil {
			return errors.Wrap(lookErr, "load stored message")
		}
		// Received and Failed are terminal: a redelivery must not reach
		// the ledger again
		if stored.Status.Terminal() {
			metrics.MessageTransitions.WithLabelValues("rejected").Inc()
			return errors.Wrapf(errors.ErrDuplicateMessage, "message %s already %s", m.Hash, stored.Status)
		}
	}

	last, err := s.nonces.LastProcessed(ctx, m.Sender, m.SrcChain)
	if err != nil {
		return errors.Wrap(err, "load nonce watermark")
	}
	if m.Nonce != last+1 {
		metrics.MessageTransitions.WithLabelValues("rejected").Inc()
		s.log.Warnw("Out of order message",
			"hash", m.Hash,
			"sender", m.Sender,
			"src_chain", m.SrcChain,
			"nonce", m.Nonce,
			"expected", last+1,
		)
		return errors.Wrapf(errors.ErrOutOfOrderMessage, "nonce %d, expected %d", m.Nonce, last+1)
	}

	payload, err := message.DecodePayload(m.Payload)
	if err != nil {
		s.failInbound(ctx, m, err)
		return err
	}
	if s.now().Sub(payload.IssuedAt) > s.cfg.FreshnessWindow {
		err := errors.Wrapf(errors.ErrStaleMessage, "issued %s ago", s.now().Sub(payload.IssuedAt))
		s.failInbound(ctx, m, err)
		return err
	}

	if err := s.dispatch(ctx, m, payload); err != nil {
		s.failInbound(ctx, m, err)
		return err
	}

	if err := m.Transition(message.StatusReceived); err != nil {
		return err
	}
	if err := s.messages.UpdateStatus(ctx, m.Hash, message.StatusReceived); err != nil {
		return errors.Wrap(err, "mark received")
	}
	if err := s.nonces.SetLastProcessed(ctx, m.Sender, m.SrcChain, m.Nonce); err != nil {
		return errors.Wrap(err, "advance nonce watermark")
	}

	metrics.MessageTransitions.WithLabelValues("received").Inc()
	metrics.MessageDeliveryLatency.WithLabelValues(strconv.FormatUint(m.DstChain, 10)).
		Observe(s.now().Sub(m.CreatedAt).Seconds())
	s.log.Infow("Message received",
		"hash", m.Hash,
		"sender", m.Sender,
		"src_chain", m.SrcChain,
		"nonce", m.Nonce,
		"intent", payload.Intent,
	)
	return nil
}

// MessageStatus returns the delivery state of a message
func (s *Service) MessageStatus(ctx context.Context, hash message.Hash) (message.Status, error) {
	m, err := s.messages.GetByHash(ctx, hash)
	if err != nil {
		return "", err
	}
	return m.Status, nil
}

func (s *Service) dispatch(ctx context.Context, m *message.CrossChainMessage, payload message.Payload) error {
	switch payload.Intent {
	case message.IntentDeposit:
		if err := s.ledger.DepositComponents(ctx, payload.FundID, payload.Tokens, payload.Amounts); err != nil {
			return err
		}
		_, err := s.ledger.IssueShares(ctx, payload.FundID, payload.User)
		return err
	case message.IntentRedemption:
		if len(payload.Amounts) != 1 {
			return errors.Wrap(errors.ErrInvalidInput, "redemption carries exactly one share amount")
		}
		_, err := s.ledger.Redeem(ctx, payload.FundID, payload.User, payload.Amounts[0])
		return err
	case message.IntentRebalance:
		return s.ledger.Rebalance(ctx, m.Sender, payload.FundID, payload.Ratios)
	default:
		return errors.Wrapf(errors.ErrUnknownIntent, "%q", payload.Intent)
	}
}

// failInbound records a terminal failure and advances the watermark past
// the consumed nonce. Without the advance one failed delivery would wedge
// the (sender, srcChain) channel for every later nonce.
func (s *Service) failInbound(ctx context.Context, m *message.CrossChainMessage, cause error) {
	s.fail(ctx, m, cause)
	if err := s.nonces.SetLastProcessed(ctx, m.Sender, m.SrcChain, m.Nonce); err != nil {
		s.log.Errorw("Failed to advance nonce watermark", "hash", m.Hash, "error", err)
	}
}

// fail records a terminal failure. A Failed message is resolved by a new
// message, never by an in-place retry of the same nonce.
func (s *Service) fail(ctx context.Context, m *message.CrossChainMessage, cause error) {
	if err := m.Transition(message.StatusFailed); err != nil {
		s.log.Errorw("Failed to transition message", "hash", m.Hash, "error", err)
		return
	}
	if err := s.messages.UpdateStatus(ctx, m.Hash, message.StatusFailed); err != nil {
		s.log.Errorw("Failed to persist failure", "hash", m.Hash, "error", err)
	}
	metrics.MessageTransitions.WithLabelValues("failed").Inc()
	s.log.Warnw("Message failed", "hash", m.Hash, "reason", cause)
	s.events.PublishMessageFailed(ctx, events.MessageFailedEvent{
		Hash:   m.Hash,
		Sender: m.Sender,
		Reason: cause.Error(),
		At:     s.now(),
	})
}

func (s *Service) recvLock(sender string, srcChain uint64) *sync.Mutex {
	key := fmt.Sprintf("%s|%d", sender, srcChain)

	s.recvMu.Lock()
	defer s.recvMu.Unlock()

	mu, ok := s.recvLocks[key]
	if !ok {
		mu = &sync.Mutex{}
		s.recvLocks[key] = mu
	}
	return mu
}
