package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tourguard-safety/internal/models"

	"go.uber.org/zap"
)

// ZoneStore 区域来源（只读）
type ZoneStore interface {
	List(ctx context.Context, scope models.ZoneScope) ([]models.Zone, error)
}

// CachedZoneStore caches zone lists in the KV store for a short TTL.
// Cache errors fall through to the underlying store.
type CachedZoneStore struct {
	next      ZoneStore
	kv        KV
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewCachedZoneStore 创建带缓存的区域存储
func NewCachedZoneStore(next ZoneStore, kv KV, keyPrefix string, ttl time.Duration, logger *zap.Logger) *CachedZoneStore {
	return &CachedZoneStore{
		next:      next,
		kv:        kv,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		logger:    logger,
	}
}

func (c *CachedZoneStore) key(scope models.ZoneScope) string {
	if scope.Global {
		return fmt.Sprintf("%s%s:global", c.keyPrefix, scope.UserID)
	}
	return c.keyPrefix + scope.UserID
}

// List 获取区域列表（先查缓存）
func (c *CachedZoneStore) List(ctx context.Context, scope models.ZoneScope) ([]models.Zone, error) {
	key := c.key(scope)

	val, err := c.kv.Get(ctx, key)
	if err == nil {
		var zones []models.Zone
		jsonErr := json.Unmarshal([]byte(val), &zones)
		if jsonErr == nil {
			return zones, nil
		}
		c.logger.Warn("Ignoring corrupt zone cache entry", zap.String("key", key), zap.Error(jsonErr))
	} else if !errors.Is(err, ErrMiss) {
		c.logger.Warn("Zone cache read failed", zap.String("key", key), zap.Error(err))
	}

	zones, err := c.next.List(ctx, scope)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(zones)
	if err != nil {
		return zones, nil
	}
	if err := c.kv.Set(ctx, key, string(data), c.ttl); err != nil {
		c.logger.Warn("Zone cache write failed", zap.String("key", key), zap.Error(err))
	}
	return zones, nil
}

// Invalidate drops the cached lists for a user.
func (c *CachedZoneStore) Invalidate(ctx context.Context, userID string) error {
	return c.kv.Delete(ctx,
		c.key(models.ZoneScope{UserID: userID}),
		c.key(models.ZoneScope{UserID: userID, Global: true}),
	)
}
