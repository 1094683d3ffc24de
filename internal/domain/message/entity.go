package message

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeebo/blake3"

	"atlas/internal/domain/asset"
	"atlas/internal/domain/fund"
	"atlas/pkg/errors"
)

// Status is the delivery state of a cross-chain message.
// Pending -> Sent -> Received (terminal success)
// Sent -> Failed (terminal failure)
// No transition skips Sent.
type Status string

const (
	StatusPending  Status = "pending"
	StatusSent     Status = "sent"
	StatusReceived Status = "received"
	StatusFailed   Status = "failed"
)

// Valid checks if status is valid
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusSent || s == StatusReceived || s == StatusFailed
}

// Terminal reports whether the status admits no further transitions
func (s Status) Terminal() bool {
	return s == StatusReceived || s == StatusFailed
}

// IntentType identifies the fund operation a message carries
type IntentType string

const (
	IntentDeposit    IntentType = "deposit"
	IntentRedemption IntentType = "redemption"
	IntentRebalance  IntentType = "rebalance"
)

// Valid checks if the intent type is known
func (t IntentType) Valid() bool {
	return t == IntentDeposit || t == IntentRedemption || t == IntentRebalance
}

// Payload is the fund-affecting intent carried by a message
type Payload struct {
	Intent IntentType      `json:"intent"`
	FundID fund.ID         `json:"fund_id"`
	Tokens []asset.Address `json:"tokens,omitempty"`

	// Amounts are deposit amounts or the redeemed share count
	Amounts []decimal.Decimal `json:"amounts,omitempty"`

	// Ratios carries new target ratios for rebalance intents
	Ratios []int64 `json:"ratios,omitempty"`

	User     string    `json:"user"`
	IssuedAt time.Time `json:"issued_at"`
}

// Encode serializes the payload for transport
func (p Payload) Encode() ([]byte, error) {
	return json.Marshal(p)
}

// DecodePayload parses a wire payload and validates the intent type
func DecodePayload(data []byte) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return Payload{}, errors.Wrap(errors.ErrUnknownIntent, err.Error())
	}
	if !p.Intent.Valid() {
		return Payload{}, errors.Wrapf(errors.ErrUnknownIntent, "%q", p.Intent)
	}
	if p.FundID == "" {
		return Payload{}, errors.Wrap(errors.ErrInvalidInput, "missing fund id")
	}
	return p, nil
}

// Hash is a deterministic message identifier
type Hash string

// ComputeHash derives the message hash from its ordering inputs and
// payload, so duplicate sends are detectable.
func ComputeHash(srcChain, dstChain uint64, sender string, nonce uint64, payload []byte) Hash {
	h := blake3.New()
	fmt.Fprintf(h, "%d|%d|%s|%d|", srcChain, dstChain, sender, nonce)
	h.Write(payload)
	return Hash(hex.EncodeToString(h.Sum(nil)))
}

// CrossChainMessage is one fund-affecting intent in flight between chains.
// The router is the single writer per nonce; nonces are strictly increasing
// per (sender, destination chain).
type CrossChainMessage struct {
	Hash      Hash            `db:"hash"`
	Nonce     uint64          `db:"nonce"`
	SrcChain  uint64          `db:"src_chain"`
	DstChain  uint64          `db:"dst_chain"`
	Sender    string          `db:"sender"`
	Payload   []byte          `db:"payload"`
	Status    Status          `db:"status"`
	FeePaid   decimal.Decimal `db:"fee_paid"`
	CreatedAt time.Time       `db:"created_at"`
	UpdatedAt time.Time       `db:"updated_at"`
}

// Transition moves the message to a new status, enforcing the state machine
func (m *CrossChainMessage) Transition(to Status) error {
	if !to.Valid() {
		return errors.Wrapf(errors.ErrInvalidInput, "status %q", to)
	}
	if m.Status.Terminal() {
		return errors.Wrapf(errors.ErrInvalidInput, "message %s is terminal (%s)", m.Hash, m.Status)
	}

	ok := false
	switch m.Status {
	case StatusPending:
		ok = to == StatusSent
	case StatusSent:
		ok = to == StatusReceived || to == StatusFailed
	}
	if !ok {
		return errors.Wrapf(errors.ErrInvalidInput, "illegal transition %s -> %s", m.Status, to)
	}

	m.Status = to
	m.UpdatedAt = time.Now()
	return nil
}
