package message

import (
	"context"
)

// Repository defines operations for message persistence. Failed and frozen
// messages stay inspectable so operators can diagnose and re-issue.
type Repository interface {
	// Create inserts a message; errors.ErrDuplicateMessage on a known hash
	Create(ctx context.Context, m *CrossChainMessage) error

	// GetByHash retrieves a message
	GetByHash(ctx context.Context, hash Hash) (*CrossChainMessage, error)

	// UpdateStatus persists a status transition
	UpdateStatus(ctx context.Context, hash Hash, status Status) error

	// ListByStatus retrieves messages in a given state
	ListByStatus(ctx context.Context, status Status, limit int) ([]*CrossChainMessage, error)
}

// NonceRepository is the per-(sender, chain) nonce store. The outbound
// counter and the inbound watermark are the one piece of state that must be
// strictly serialized across concurrent deliveries.
type NonceRepository interface {
	// NextOutbound atomically increments and returns the next outbound
	// nonce for (sender, dstChain). The first nonce is 1.
	NextOutbound(ctx context.Context, sender string, dstChain uint64) (uint64, error)

	// LastProcessed returns the inbound watermark for (sender, srcChain);
	// zero when nothing has been processed
	LastProcessed(ctx context.Context, sender string, srcChain uint64) (uint64, error)

	// SetLastProcessed advances the inbound watermark
	SetLastProcessed(ctx context.Context, sender string, srcChain uint64, nonce uint64) error
}
