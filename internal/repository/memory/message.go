package memory

import (
	"context"
	"sync"

	"atlas/internal/domain/message"
	"atlas/pkg/errors"
)

// Compile-time checks
var (
	_ message.Repository      = (*MessageRepository)(nil)
	_ message.NonceRepository = (*NonceRepository)(nil)
)

// MessageRepository is an in-memory message store
type MessageRepository struct {
	mu       sync.RWMutex
	messages map[message.Hash]*message.CrossChainMessage
}

// NewMessageRepository creates an empty in-memory message store
func NewMessageRepository() *MessageRepository {
	return &MessageRepository{
		messages: make(map[message.Hash]*message.CrossChainMessage),
	}
}

// Create inserts a message, rejecting known hashes
func (r *MessageRepository) Create(ctx context.Context, m *message.CrossChainMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.messages[m.Hash]; ok {
		return errors.Wrapf(errors.ErrDuplicateMessage, "message %s", m.Hash)
	}

	c := *m
	r.messages[m.Hash] = &c
	return nil
}

// GetByHash retrieves a message
func (r *MessageRepository) GetByHash(ctx context.Context, hash message.Hash) (*message.CrossChainMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.messages[hash]
	if !ok {
		return nil, errors.Wrapf(errors.ErrNotFound, "message %s", hash)
	}

	c := *m
	return &c, nil
}

// UpdateStatus persists a status transition
func (r *MessageRepository) UpdateStatus(ctx context.Context, hash message.Hash, status message.Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.messages[hash]
	if !ok {
		return errors.Wrapf(errors.ErrNotFound, "message %s", hash)
	}

	m.Status = status
	return nil
}

// ListByStatus retrieves messages in a given state
func (r *MessageRepository) ListByStatus(ctx context.Context, status message.Status, limit int) ([]*message.CrossChainMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*message.CrossChainMessage
	for _, m := range r.messages {
		if m.Status != status {
			continue
		}
		c := *m
		out = append(out, &c)
		if limit > 0 && len(out) >= limit {
			break
		}
	}

	return out, nil
}

type nonceKey struct {
	sender string
	chain  uint64
}

// NonceRepository is an in-memory nonce store
type NonceRepository struct {
	mu       sync.Mutex
	outbound map[nonceKey]uint64
	inbound  map[nonceKey]uint64
}

// NewNonceRepository creates an empty in-memory nonce store
func NewNonceRepository() *NonceRepository {
	return &NonceRepository{
		outbound: make(map[nonceKey]uint64),
		inbound:  make(map[nonceKey]uint64),
	}
}

// NextOutbound atomically increments and returns the next outbound nonce
func (r *NonceRepository) NextOutbound(ctx context.Context, sender string, dstChain uint64) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := nonceKey{sender, dstChain}
	r.outbound[key]++
	return r.outbound[key], nil
}

// LastProcessed returns the inbound watermark, zero when absent
func (r *NonceRepository) LastProcessed(ctx context.Context, sender string, srcChain uint64) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.inbound[nonceKey{sender, srcChain}], nil
}

// SetLastProcessed advances the inbound watermark
func (r *NonceRepository) SetLastProcessed(ctx context.Context, sender string, srcChain uint64, nonce uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.inbound[nonceKey{sender, srcChain}] = nonce
	return nil
}
