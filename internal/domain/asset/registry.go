package asset

import (
	"sync"

	"atlas/pkg/errors"
	"atlas/pkg/logger"
)

// Registry maintains asset definitions, the cross-chain identity mapping
// from asset ids to token contracts, and the authorized-token allowlist
// consulted at fund creation.
type Registry struct {
	mu sync.RWMutex

	assets     map[ID]Asset
	addresses  map[ID]map[uint64]Address // assetID -> chainID -> token address
	authorized map[Address]bool

	log *logger.Logger
}

// NewRegistry creates an empty asset registry
func NewRegistry() *Registry {
	return &Registry{
		assets:     make(map[ID]Asset),
		addresses:  make(map[ID]map[uint64]Address),
		authorized: make(map[Address]bool),
		log:        logger.Get().With("component", "asset_registry"),
	}
}

// Register adds or replaces an asset definition
func (r *Registry) Register(a Asset) error {
	if a.Symbol == "" {
		return errors.Wrap(errors.ErrInvalidInput, "asset symbol required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.assets[a.ID] = a

	r.log.Infow("Asset registered", "asset_id", a.ID, "symbol", a.Symbol)
	return nil
}

// Get returns an asset definition
func (r *Registry) Get(id ID) (Asset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.assets[id]
	if !ok {
		return Asset{}, errors.ErrUnknownAsset
	}
	return a, nil
}

// List returns all registered assets
func (r *Registry) List() []Asset {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Asset, 0, len(r.assets))
	for _, a := range r.assets {
		out = append(out, a)
	}
	return out
}

// SetTokenAddress maps an asset id to its token contract on a chain.
// Pure lookup table; the only validation is a non-zero address.
func (r *Registry) SetTokenAddress(id ID, chainID uint64, addr Address) error {
	if addr.IsZero() {
		return errors.Wrap(errors.ErrInvalidInput, "zero token address")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.assets[id]; !ok {
		return errors.ErrUnknownAsset
	}
	if r.addresses[id] == nil {
		r.addresses[id] = make(map[uint64]Address)
	}
	r.addresses[id][chainID] = addr.Normalized()
	return nil
}

// TokenAddress returns the token contract for an asset on a chain
func (r *Registry) TokenAddress(id ID, chainID uint64) (Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	addr, ok := r.addresses[id][chainID]
	if !ok {
		return "", errors.ErrNotFound
	}
	return addr, nil
}

// Authorize adds a token address to the allowlist
func (r *Registry) Authorize(addr Address) error {
	if addr.IsZero() {
		return errors.Wrap(errors.ErrInvalidInput, "zero token address")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.authorized[addr.Normalized()] = true
	return nil
}

// Revoke removes a token address from the allowlist
func (r *Registry) Revoke(addr Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.authorized, addr.Normalized())
}

// IsAuthorized reports whether a token address is on the allowlist
func (r *Registry) IsAuthorized(addr Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.authorized[addr.Normalized()]
}
