package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"atlas/internal/domain/asset"
	"atlas/internal/domain/pricing"
	"atlas/pkg/errors"
)

// Compile-time check
var _ pricing.SnapshotCache = (*PriceCache)(nil)

// PriceCache implements pricing.SnapshotCache using Redis
type PriceCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewPriceCache creates a new aggregated price cache
func NewPriceCache(client *redis.Client, ttl time.Duration) *PriceCache {
	return &PriceCache{
		client: client,
		ttl:    ttl,
	}
}

// Put stores an aggregated price snapshot with TTL
func (c *PriceCache) Put(ctx context.Context, p pricing.AggregatedPrice) error {
	data, err := json.Marshal(p)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal price snapshot: asset_id=%d", p.AssetID)
	}

	key := c.getKey(p.AssetID)
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return errors.Wrapf(err, "failed to cache price snapshot: asset_id=%d", p.AssetID)
	}

	return nil
}

// Get returns a cached snapshot if present
func (c *PriceCache) Get(ctx context.Context, assetID asset.ID) (pricing.AggregatedPrice, bool, error) {
	key := c.getKey(assetID)

	data, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return pricing.AggregatedPrice{}, false, nil
	}
	if err != nil {
		return pricing.AggregatedPrice{}, false, errors.Wrapf(err, "failed to read price snapshot: asset_id=%d", assetID)
	}

	var snapshot pricing.AggregatedPrice
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		return pricing.AggregatedPrice{}, false, errors.Wrapf(err, "failed to unmarshal price snapshot: asset_id=%d", assetID)
	}

	return snapshot, true, nil
}

func (c *PriceCache) getKey(assetID asset.ID) string {
	return fmt.Sprintf("price_snapshot:%d", assetID)
}
