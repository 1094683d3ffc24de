package transport

import (
	"context"

	kafkago "github.com/segmentio/kafka-go"

	"atlas/internal/adapters/kafka"
	"atlas/internal/domain/message"
	"atlas/pkg/errors"
	"atlas/pkg/logger"
)

// Receiver is the destination-side router entry point
type Receiver interface {
	OnReceive(ctx context.Context, m *message.CrossChainMessage) error
}

// InboundListener consumes the local chain's inbound topic and hands
// decoded messages to the router. Rejections (out-of-order, stale) are
// logged and left for monitoring; the listener never re-applies them.
type InboundListener struct {
	consumer *kafka.Consumer
	receiver Receiver
	log      *logger.Logger
}

// NewInboundListener creates a listener for the local chain
func NewInboundListener(consumer *kafka.Consumer, receiver Receiver) *InboundListener {
	return &InboundListener{
		consumer: consumer,
		receiver: receiver,
		log:      logger.Get().With("component", "inbound_listener"),
	}
}

// Run consumes until the context is cancelled
func (l *InboundListener) Run(ctx context.Context) error {
	return l.consumer.Consume(ctx, func(ctx context.Context, msg kafkago.Message) error {
		m, err := decodeEnvelope(msg.Value)
		if err != nil {
			l.log.Warnw("Undecodable inbound envelope", "key", string(msg.Key), "error", err)
			return nil
		}

		if err := l.receiver.OnReceive(ctx, m); err != nil {
			// Rejections stay inspectable in the message store; the
			// consumer keeps draining the topic either way.
			if errors.Is(err, errors.ErrOutOfOrderMessage) || errors.Is(err, errors.ErrStaleMessage) {
				l.log.Warnw("Inbound message rejected", "hash", m.Hash, "error", err)
				return nil
			}
			return err
		}
		return nil
	})
}

// Close shuts the underlying consumer down
func (l *InboundListener) Close() error {
	return l.consumer.Close()
}
