package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tourguard-safety/internal/models"
	"tourguard-safety/internal/mqtt"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisKV) {
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
	t.Cleanup(func() { redisClient.Close() })
	return mr, NewRedisKV(redisClient)
}

func TestRedisKV(t *testing.T) {
	mr, kv := setupTestRedis(t)
	ctx := context.Background()

	_, err := kv.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, kv.Set(ctx, "k", "v", time.Minute))
	val, err := kv.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", val)

	mr.FastForward(2 * time.Minute)
	_, err = kv.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, kv.Set(ctx, "a", "1", 0))
	require.NoError(t, kv.Delete(ctx, "a", "b"))
	assert.False(t, mr.Exists("a"))
	require.NoError(t, kv.Delete(ctx))
}

// ============================================
// StateManager
// ============================================

func TestStateManager_LoadMissingReturnsZero(t *testing.T) {
	_, kv := setupTestRedis(t)
	sm := NewStateManager(kv, "tourguard:dwell:", 0, zap.NewNop())

	tracker, err := sm.Load(context.Background(), "u1", "d1")
	require.NoError(t, err)
	assert.Equal(t, models.DwellTracker{}, *tracker)
}

func TestStateManager_SaveLoadRoundTrip(t *testing.T) {
	mr, kv := setupTestRedis(t)
	sm := NewStateManager(kv, "tourguard:dwell:", time.Hour, zap.NewNop())
	ctx := context.Background()

	in := &models.DwellTracker{
		LastMovementPosition: models.Coordinate{Latitude: 10, Longitude: 76},
		LastMovementAt:       1000,
		ZoneEntryAt:          2000,
	}
	require.NoError(t, sm.Save(ctx, "u1", "d1", in))
	assert.True(t, mr.Exists("tourguard:dwell:u1:d1"))
	assert.Equal(t, time.Hour, mr.TTL("tourguard:dwell:u1:d1"))

	out, err := sm.Load(ctx, "u1", "d1")
	require.NoError(t, err)
	assert.Equal(t, *in, *out)

	// other devices are independent
	other, err := sm.Load(ctx, "u1", "d2")
	require.NoError(t, err)
	assert.False(t, other.HasMovementFix())
}

func TestStateManager_CorruptValue(t *testing.T) {
	mr, kv := setupTestRedis(t)
	sm := NewStateManager(kv, "tourguard:dwell:", 0, zap.NewNop())
	require.NoError(t, mr.Set("tourguard:dwell:u1:d1", "{not json"))

	tracker, err := sm.Load(context.Background(), "u1", "d1")
	require.NoError(t, err)
	assert.Equal(t, models.DwellTracker{}, *tracker)
}

func TestStateManager_RedisDown(t *testing.T) {
	mr, kv := setupTestRedis(t)
	sm := NewStateManager(kv, "tourguard:dwell:", 0, zap.NewNop())
	mr.Close()

	_, err := sm.Load(context.Background(), "u1", "d1")
	assert.Error(t, err)
}

// ============================================
// FlagStore
// ============================================

func TestFlagStore_Defaults(t *testing.T) {
	mr, kv := setupTestRedis(t)
	fs := NewFlagStore(kv, "tourguard:flags:", zap.NewNop())
	ctx := context.Background()

	flags, err := fs.Load(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, flags.Enabled)

	require.NoError(t, mr.Set("tourguard:flags:u1:ai_sos_enabled", "true"))
	flags, err = fs.Load(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, flags.Enabled)
	assert.Nil(t, flags.Categories)
	assert.True(t, flags.CategoryEnabled(models.CategoryBehavioral))

	require.NoError(t, mr.Set("tourguard:flags:u1:ai_features_config", "oops"))
	flags, err = fs.Load(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, flags.Enabled)
	assert.Nil(t, flags.Categories)
}

func TestFlagStore_SaveLoad(t *testing.T) {
	_, kv := setupTestRedis(t)
	fs := NewFlagStore(kv, "tourguard:flags:", zap.NewNop())
	ctx := context.Background()

	cats := models.DefaultCategories()
	cats[models.CategoryContext] = false
	require.NoError(t, fs.Save(ctx, "u1", models.FeatureFlags{Enabled: true, Categories: cats}))

	flags, err := fs.Load(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, flags.Enabled)
	assert.False(t, flags.CategoryEnabled(models.CategoryContext))
	assert.True(t, flags.CategoryEnabled(models.CategoryBehavioral))

	require.NoError(t, fs.Save(ctx, "u1", models.FeatureFlags{Enabled: false}))
	flags, err = fs.Load(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, flags.Enabled)
}

// ============================================
// CachedZoneStore
// ============================================

type countingZoneStore struct {
	calls int
	zones []models.Zone
	err   error
}

func (s *countingZoneStore) List(_ context.Context, _ models.ZoneScope) ([]models.Zone, error) {
	s.calls++
	return s.zones, s.err
}

func TestCachedZoneStore(t *testing.T) {
	mr, kv := setupTestRedis(t)
	next := &countingZoneStore{zones: []models.Zone{{
		ID: "z1", Name: "Old Market", Center: models.Coordinate{Latitude: 10, Longitude: 76},
		RadiusMeters: 500, Kind: models.ZoneKindDanger, Active: true,
	}}}
	cache := NewCachedZoneStore(next, kv, "tourguard:zones:", time.Minute, zap.NewNop())
	ctx := context.Background()
	scope := models.ZoneScope{UserID: "u1", Global: true}

	zones, err := cache.List(ctx, scope)
	require.NoError(t, err)
	require.Len(t, zones, 1)

	zones, err = cache.List(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, next.zones, zones)
	assert.Equal(t, 1, next.calls)

	mr.FastForward(2 * time.Minute)
	_, err = cache.List(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, 2, next.calls)

	require.NoError(t, cache.Invalidate(ctx, "u1"))
	_, err = cache.List(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, 3, next.calls)
}

func TestCachedZoneStore_ErrorNotCached(t *testing.T) {
	mr, kv := setupTestRedis(t)
	next := &countingZoneStore{err: errors.New("db down")}
	cache := NewCachedZoneStore(next, kv, "tourguard:zones:", time.Minute, zap.NewNop())

	_, err := cache.List(context.Background(), models.ZoneScope{UserID: "u1"})
	assert.Error(t, err)
	assert.False(t, mr.Exists("tourguard:zones:u1"))
}

// ============================================
// MQTTLocationProvider
// ============================================

type fakeBroker struct {
	mu        sync.Mutex
	handlers  map[string]mqtt.MessageHandler
	published map[string][]byte
	subErr    error
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		handlers:  make(map[string]mqtt.MessageHandler),
		published: make(map[string][]byte),
	}
}

func (b *fakeBroker) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	if b.subErr != nil {
		return b.subErr
	}
	b.mu.Lock()
	b.handlers[topic] = handler
	b.mu.Unlock()
	return nil
}

func (b *fakeBroker) Publish(topic string, _ byte, _ bool, payload []byte) error {
	b.mu.Lock()
	b.published[topic] = payload
	b.mu.Unlock()
	return nil
}

func (b *fakeBroker) Unsubscribe(topics ...string) error {
	b.mu.Lock()
	for _, t := range topics {
		delete(b.handlers, t)
	}
	b.mu.Unlock()
	return nil
}

func (b *fakeBroker) deliver(topic string, payload []byte) bool {
	b.mu.Lock()
	h, ok := b.handlers[topic]
	b.mu.Unlock()
	if !ok {
		return false
	}
	_ = h(topic, payload)
	return true
}

func sampleJSON(lat, lon float64, capturedAt time.Time) []byte {
	b, _ := json.Marshal(locationMessage{Latitude: lat, Longitude: lon, Accuracy: 12, CapturedAt: capturedAt.UnixMilli()})
	return b
}
