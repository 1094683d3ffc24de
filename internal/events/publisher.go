package events

import (
	"context"

	"github.com/google/uuid"

	"atlas/internal/adapters/kafka"
	"atlas/pkg/logger"
)

// Publisher publishes engine events to Kafka. Publishing is best-effort:
// a broker failure is logged, never surfaced into ledger or router results.
type Publisher struct {
	producer *kafka.Producer
	log      *logger.Logger
}

// NewPublisher creates a new event publisher
func NewPublisher(producer *kafka.Producer) *Publisher {
	return &Publisher{
		producer: producer,
		log:      logger.Get().With("component", "event_publisher"),
	}
}

// PublishFundCreated publishes a fund created event
func (p *Publisher) PublishFundCreated(ctx context.Context, event FundCreatedEvent) {
	p.publish(ctx, kafka.TopicFundCreated, string(event.FundID), event)
}

// PublishSharesIssued publishes a shares issued event
func (p *Publisher) PublishSharesIssued(ctx context.Context, event SharesIssuedEvent) {
	p.publish(ctx, kafka.TopicSharesIssued, string(event.FundID), event)
}

// PublishSharesRedeemed publishes a shares redeemed event
func (p *Publisher) PublishSharesRedeemed(ctx context.Context, event SharesRedeemedEvent) {
	p.publish(ctx, kafka.TopicSharesRedeemed, string(event.FundID), event)
}

// PublishFundDeactivated publishes a fund deactivated event
func (p *Publisher) PublishFundDeactivated(ctx context.Context, event FundDeactivatedEvent) {
	p.publish(ctx, kafka.TopicFundDeactivated, string(event.FundID), event)
}

// PublishRebalanceSignal publishes a rebalance signal
func (p *Publisher) PublishRebalanceSignal(ctx context.Context, event RebalanceSignalEvent) {
	p.publish(ctx, kafka.TopicRebalanceSignal, string(event.FundID), event)
}

// PublishMessageSent publishes a message sent event
func (p *Publisher) PublishMessageSent(ctx context.Context, event MessageSentEvent) {
	p.publish(ctx, kafka.TopicMessageSent, string(event.Hash), event)
}

// PublishMessageFailed publishes a message failure event
func (p *Publisher) PublishMessageFailed(ctx context.Context, event MessageFailedEvent) {
	p.publish(ctx, kafka.TopicMessageFailed, string(event.Hash), event)
}

// Envelope wraps every published event with a unique id so consumers
// can deduplicate across redeliveries
type Envelope struct {
	EventID string      `json:"event_id"`
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

func (p *Publisher) publish(ctx context.Context, topic, key string, event interface{}) {
	if p == nil || p.producer == nil {
		return
	}

	env := Envelope{
		EventID: uuid.NewString(),
		Type:    topic,
		Payload: event,
	}

	if err := p.producer.Publish(ctx, topic, key, env); err != nil {
		p.log.Warnw("Event publish failed", "topic", topic, "key", key, "error", err)
	}
}
