package events

import (
	"time"

	"github.com/shopspring/decimal"

	"atlas/internal/domain/fund"
	"atlas/internal/domain/message"
)

// FundCreatedEvent is emitted once per fund creation
type FundCreatedEvent struct {
	FundID     fund.ID   `json:"fund_id"`
	Name       string    `json:"name"`
	Symbol     string    `json:"symbol"`
	Creator    string    `json:"creator"`
	Components int       `json:"components"`
	At         time.Time `json:"at"`
}

// SharesIssuedEvent is emitted after a successful issuance
type SharesIssuedEvent struct {
	FundID    fund.ID         `json:"fund_id"`
	Recipient string          `json:"recipient"`
	Shares    decimal.Decimal `json:"shares"`
	Supply    decimal.Decimal `json:"supply"`
	At        time.Time       `json:"at"`
}

// SharesRedeemedEvent is emitted after a successful redemption
type SharesRedeemedEvent struct {
	FundID fund.ID         `json:"fund_id"`
	Holder string          `json:"holder"`
	Shares decimal.Decimal `json:"shares"`
	Supply decimal.Decimal `json:"supply"`
	At     time.Time       `json:"at"`
}

// FundDeactivatedEvent is emitted when a fund enters winddown
type FundDeactivatedEvent struct {
	FundID fund.ID   `json:"fund_id"`
	Actor  string    `json:"actor"`
	At     time.Time `json:"at"`
}

// RebalanceSeverity classifies drift against the policy thresholds
type RebalanceSeverity string

const (
	RebalanceNone      RebalanceSeverity = "none"
	RebalanceScheduled RebalanceSeverity = "scheduled"
	RebalancePriority  RebalanceSeverity = "priority"
)

// RebalanceSignalEvent is emitted by the rebalance monitor when a fund
// drifts past a policy threshold
type RebalanceSignalEvent struct {
	FundID      fund.ID           `json:"fund_id"`
	Severity    RebalanceSeverity `json:"severity"`
	MaxDriftBps int64             `json:"max_drift_bps"`
	At          time.Time         `json:"at"`
}

// MessageSentEvent is emitted when the router hands a message to transport
type MessageSentEvent struct {
	Hash     message.Hash `json:"hash"`
	Sender   string       `json:"sender"`
	DstChain uint64       `json:"dst_chain"`
	Nonce    uint64       `json:"nonce"`
	At       time.Time    `json:"at"`
}

// MessageFailedEvent is emitted when a delivery reaches terminal failure
type MessageFailedEvent struct {
	Hash   message.Hash `json:"hash"`
	Sender string       `json:"sender"`
	Reason string       `json:"reason"`
	At     time.Time    `json:"at"`
}
