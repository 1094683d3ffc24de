package postgres

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"atlas/internal/domain/message"
	"atlas/pkg/errors"
)

// Compile-time checks
var (
	_ message.Repository      = (*MessageRepository)(nil)
	_ message.NonceRepository = (*NonceRepository)(nil)
)

// MessageRepository implements message.Repository using PostgreSQL
type MessageRepository struct {
	db DBTX
}

// NewMessageRepository creates a new message repository
func NewMessageRepository(db DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create inserts a message
func (r *MessageRepository) Create(ctx context.Context, m *message.CrossChainMessage) error {
	query := `
		INSERT INTO cross_chain_messages (
			hash, nonce, src_chain, dst_chain, sender, payload, status,
			fee_paid, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := r.db.ExecContext(ctx, query,
		m.Hash, m.Nonce, m.SrcChain, m.DstChain, m.Sender, m.Payload, m.Status,
		m.FeePaid, m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return errors.Wrapf(errors.ErrDuplicateMessage, "hash %s", m.Hash)
		}
		return errors.Wrap(err, "failed to create message")
	}
	return nil
}

// GetByHash retrieves a message
func (r *MessageRepository) GetByHash(ctx context.Context, hash message.Hash) (*message.CrossChainMessage, error) {
	var m message.CrossChainMessage

	query := `
		SELECT hash, nonce, src_chain, dst_chain, sender, payload, status,
			   fee_paid, created_at, updated_at
		FROM cross_chain_messages
		WHERE hash = $1`

	err := r.db.GetContext(ctx, &m, query, hash)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(errors.ErrNotFound, "message %s", hash)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get message")
	}
	return &m, nil
}

// UpdateStatus persists a status transition
func (r *MessageRepository) UpdateStatus(ctx context.Context, hash message.Hash, status message.Status) error {
	query := `
		UPDATE cross_chain_messages
		SET status = $2, updated_at = NOW()
		WHERE hash = $1`

	res, err := r.db.ExecContext(ctx, query, hash, status)
	if err != nil {
		return errors.Wrap(err, "failed to update message status")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return errors.Wrapf(errors.ErrNotFound, "message %s", hash)
	}
	return nil
}

// ListByStatus retrieves messages in a given state
func (r *MessageRepository) ListByStatus(ctx context.Context, status message.Status, limit int) ([]*message.CrossChainMessage, error) {
	var messages []*message.CrossChainMessage

	query := `
		SELECT hash, nonce, src_chain, dst_chain, sender, payload, status,
			   fee_paid, created_at, updated_at
		FROM cross_chain_messages
		WHERE status = $1
		ORDER BY created_at
		LIMIT $2`

	if err := r.db.SelectContext(ctx, &messages, query, status, limit); err != nil {
		return nil, errors.Wrap(err, "failed to list messages")
	}
	return messages, nil
}

// NonceRepository implements message.NonceRepository using PostgreSQL
type NonceRepository struct {
	db DBTX
}

// NewNonceRepository creates a new nonce repository
func NewNonceRepository(db DBTX) *NonceRepository {
	return &NonceRepository{db: db}
}

// NextOutbound atomically increments the outbound counter for
// (sender, dstChain) and returns the new value
func (r *NonceRepository) NextOutbound(ctx context.Context, sender string, dstChain uint64) (uint64, error) {
	var nonce uint64

	query := `
		INSERT INTO outbound_nonces (sender, dst_chain, nonce)
		VALUES ($1, $2, 1)
		ON CONFLICT (sender, dst_chain) DO UPDATE SET nonce = outbound_nonces.nonce + 1
		RETURNING nonce`

	if err := r.db.QueryRowContext(ctx, query, sender, dstChain).Scan(&nonce); err != nil {
		return 0, errors.Wrap(err, "failed to assign outbound nonce")
	}
	return nonce, nil
}

// LastProcessed returns the inbound watermark, zero when absent
func (r *NonceRepository) LastProcessed(ctx context.Context, sender string, srcChain uint64) (uint64, error) {
	var nonce uint64

	query := `SELECT nonce FROM inbound_nonces WHERE sender = $1 AND src_chain = $2`

	err := r.db.GetContext(ctx, &nonce, query, sender, srcChain)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "failed to get inbound watermark")
	}
	return nonce, nil
}

// SetLastProcessed advances the inbound watermark
func (r *NonceRepository) SetLastProcessed(ctx context.Context, sender string, srcChain uint64, nonce uint64) error {
	query := `
		INSERT INTO inbound_nonces (sender, src_chain, nonce)
		VALUES ($1, $2, $3)
		ON CONFLICT (sender, src_chain) DO UPDATE SET nonce = EXCLUDED.nonce`

	if _, err := r.db.ExecContext(ctx, query, sender, srcChain, nonce); err != nil {
		return errors.Wrap(err, "failed to set inbound watermark")
	}
	return nil
}
