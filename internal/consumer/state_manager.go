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

// StateManager 危险停留状态管理器（每个设备一个 DwellTracker）
// Writes are read-modify-write without cross-device locking; the last writer wins.
type StateManager struct {
	kv        KV
	keyPrefix string
	ttl       time.Duration
	logger    *zap.Logger
}

// NewStateManager 创建状态管理器
func NewStateManager(kv KV, keyPrefix string, ttl time.Duration, logger *zap.Logger) *StateManager {
	return &StateManager{
		kv:        kv,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		logger:    logger,
	}
}

// GetStateKey 构建状态键
func (s *StateManager) GetStateKey(userID, deviceID string) string {
	return fmt.Sprintf("%s%s:%s", s.keyPrefix, userID, deviceID)
}

// Load returns the stored tracker, or a zero tracker when none exists.
// A corrupt value is logged and replaced by a zero tracker.
func (s *StateManager) Load(ctx context.Context, userID, deviceID string) (*models.DwellTracker, error) {
	key := s.GetStateKey(userID, deviceID)
	val, err := s.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrMiss) {
			return &models.DwellTracker{}, nil
		}
		return nil, fmt.Errorf("failed to get dwell state: %w", err)
	}

	var tracker models.DwellTracker
	if err := json.Unmarshal([]byte(val), &tracker); err != nil {
		s.logger.Warn("Discarding corrupt dwell state",
			zap.String("key", key),
			zap.Error(err),
		)
		return &models.DwellTracker{}, nil
	}
	return &tracker, nil
}

// Save 写回状态
func (s *StateManager) Save(ctx context.Context, userID, deviceID string, tracker *models.DwellTracker) error {
	jsonData, err := json.Marshal(tracker)
	if err != nil {
		return fmt.Errorf("failed to marshal dwell state: %w", err)
	}
	if err := s.kv.Set(ctx, s.GetStateKey(userID, deviceID), string(jsonData), s.ttl); err != nil {
		return fmt.Errorf("failed to set dwell state: %w", err)
	}
	return nil
}
