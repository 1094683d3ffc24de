package kafka

import "fmt"

// Topic definitions for Kafka event streaming
const (
	// Fund lifecycle events
	TopicFundCreated     = "funds.created"
	TopicFundDeactivated = "funds.deactivated"
	TopicSharesIssued    = "funds.shares_issued"
	TopicSharesRedeemed  = "funds.shares_redeemed"

	// Rebalance policy events
	TopicRebalanceSignal = "funds.rebalance_signals"

	// Cross-chain messaging events
	TopicMessageSent   = "messages.sent"
	TopicMessageFailed = "messages.failed"
)

// ChainTopic returns the delivery topic for a destination chain.
// Every chain consumes its own inbound topic.
func ChainTopic(chainID uint64) string {
	return fmt.Sprintf("chains.%d.inbound", chainID)
}
