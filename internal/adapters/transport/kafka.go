package transport

import (
	"context"
	"encoding/json"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/shopspring/decimal"

	"atlas/internal/adapters/kafka"
	"atlas/internal/domain/message"
	"atlas/pkg/errors"
	"atlas/pkg/logger"
)

// envelope is the wire form of a cross-chain message
type envelope struct {
	Hash      message.Hash    `json:"hash"`
	Nonce     uint64          `json:"nonce"`
	SrcChain  uint64          `json:"src_chain"`
	DstChain  uint64          `json:"dst_chain"`
	Sender    string          `json:"sender"`
	Payload   []byte          `json:"payload"`
	FeePaid   decimal.Decimal `json:"fee_paid"`
	CreatedAt time.Time       `json:"created_at"`
}

// KafkaTransport delivers cross-chain messages over per-chain Kafka topics.
// Each destination chain consumes its own inbound topic. Send retries are
// external policy layered on top of the router's state machine.
type KafkaTransport struct {
	producer *kafka.Producer
	attempts uint
	delay    time.Duration
	log      *logger.Logger
}

// NewKafkaTransport creates the transport
func NewKafkaTransport(producer *kafka.Producer, attempts uint, delay time.Duration) *KafkaTransport {
	if attempts == 0 {
		attempts = 3
	}
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	return &KafkaTransport{
		producer: producer,
		attempts: attempts,
		delay:    delay,
		log:      logger.Get().With("component", "kafka_transport"),
	}
}

// Deliver publishes the message to the destination chain's inbound topic
func (t *KafkaTransport) Deliver(ctx context.Context, m *message.CrossChainMessage) error {
	data, err := json.Marshal(envelope{
		Hash:      m.Hash,
		Nonce:     m.Nonce,
		SrcChain:  m.SrcChain,
		DstChain:  m.DstChain,
		Sender:    m.Sender,
		Payload:   m.Payload,
		FeePaid:   m.FeePaid,
		CreatedAt: m.CreatedAt,
	})
	if err != nil {
		return errors.Wrap(err, "encode envelope")
	}

	topic := kafka.ChainTopic(m.DstChain)
	err = retry.Do(
		func() error {
			return t.producer.PublishRaw(ctx, topic, []byte(m.Hash), data)
		},
		retry.Context(ctx),
		retry.Attempts(t.attempts),
		retry.Delay(t.delay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			t.log.Warnw("Delivery retry", "hash", m.Hash, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return errors.Wrapf(err, "deliver %s to chain %d", m.Hash, m.DstChain)
	}
	return nil
}

// decodeEnvelope parses a wire envelope back into a message
func decodeEnvelope(data []byte) (*message.CrossChainMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, errors.Wrap(errors.ErrInvalidInput, err.Error())
	}
	now := time.Now()
	return &message.CrossChainMessage{
		Hash:      env.Hash,
		Nonce:     env.Nonce,
		SrcChain:  env.SrcChain,
		DstChain:  env.DstChain,
		Sender:    env.Sender,
		Payload:   env.Payload,
		Status:    message.StatusSent,
		FeePaid:   env.FeePaid,
		CreatedAt: env.CreatedAt,
		UpdatedAt: now,
	}, nil
}
