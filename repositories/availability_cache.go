package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"card-stock-tracker/domain"
)

// AvailabilityCache stores per-(store, card) listing results with a short
// TTL and full availability snapshots per context without one.
type AvailabilityCache struct {
	redis RedisClient
	ttl   time.Duration
}

func NewAvailabilityCache(redis RedisClient, ttl time.Duration) *AvailabilityCache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &AvailabilityCache{redis: redis, ttl: ttl}
}

func availabilityKey(storeSlug, cardName string) string {
	return fmt.Sprintf(domain.RedisKeyAvailability, storeSlug, cardName)
}

func snapshotKey(context string) string {
	return fmt.Sprintf(domain.RedisKeySnapshot, context)
}

// GetAvailability returns the cached listings for a (store, card) pair.
// A false second return covers both miss and expiry.
func (c *AvailabilityCache) GetAvailability(ctx context.Context, storeSlug, cardName string) ([]domain.Listing, bool, error) {
	raw, found, err := c.redis.Get(ctx, availabilityKey(storeSlug, cardName))
	if err != nil || !found {
		return nil, false, err
	}
	var listings []domain.Listing
	if err := json.Unmarshal([]byte(raw), &listings); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached availability for %s/%s: %w", storeSlug, cardName, err)
	}
	return listings, true, nil
}

func (c *AvailabilityCache) SetAvailability(ctx context.Context, storeSlug, cardName string, listings []domain.Listing) error {
	raw, err := json.Marshal(listings)
	if err != nil {
		return fmt.Errorf("failed to encode availability for %s/%s: %w", storeSlug, cardName, err)
	}
	return c.redis.Set(ctx, availabilityKey(storeSlug, cardName), string(raw), c.ttl)
}

// LoadSnapshot returns the stored snapshot for a context, or an empty one
// when none exists.
func (c *AvailabilityCache) LoadSnapshot(ctx context.Context, snapshotCtx string) (domain.Snapshot, error) {
	raw, found, err := c.redis.Get(ctx, snapshotKey(snapshotCtx))
	if err != nil {
		return domain.Snapshot{}, err
	}
	if !found {
		return domain.Snapshot{Cards: map[string]domain.StoreListings{}}, nil
	}
	var snap domain.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return domain.Snapshot{}, fmt.Errorf("failed to decode snapshot for context %s: %w", snapshotCtx, err)
	}
	if snap.Cards == nil {
		snap.Cards = map[string]domain.StoreListings{}
	}
	return snap, nil
}

func (c *AvailabilityCache) SaveSnapshot(ctx context.Context, snapshotCtx string, snap domain.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot for context %s: %w", snapshotCtx, err)
	}
	return c.redis.Set(ctx, snapshotKey(snapshotCtx), string(raw), 0)
}

// MarkLastUpdate records the wall-clock time of the last sweep.
func (c *AvailabilityCache) MarkLastUpdate(ctx context.Context) error {
	return c.redis.Set(ctx, domain.RedisKeyLastUpdate, fmt.Sprintf("%d", time.Now().Unix()), 0)
}
