package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"tourguard-safety/internal/models"

	"go.uber.org/zap"
)

// FlagStore 用户 AI 安全开关存储
// Keys: {prefix}{user_id}:ai_sos_enabled ("true"/"false") and
// {prefix}{user_id}:ai_features_config (JSON object of category -> bool).
type FlagStore struct {
	kv        KV
	keyPrefix string
	logger    *zap.Logger
}

// NewFlagStore 创建开关存储
func NewFlagStore(kv KV, keyPrefix string, logger *zap.Logger) *FlagStore {
	return &FlagStore{
		kv:        kv,
		keyPrefix: keyPrefix,
		logger:    logger,
	}
}

func (f *FlagStore) enabledKey(userID string) string {
	return f.keyPrefix + userID + ":ai_sos_enabled"
}

func (f *FlagStore) configKey(userID string) string {
	return f.keyPrefix + userID + ":ai_features_config"
}

// Load reads the flags for userID. A missing master switch means disabled;
// a missing or unreadable category config means every category is enabled.
func (f *FlagStore) Load(ctx context.Context, userID string) (models.FeatureFlags, error) {
	var flags models.FeatureFlags

	val, err := f.kv.Get(ctx, f.enabledKey(userID))
	switch {
	case errors.Is(err, ErrMiss):
		return flags, nil
	case err != nil:
		return flags, fmt.Errorf("failed to get ai_sos_enabled: %w", err)
	}
	flags.Enabled, _ = strconv.ParseBool(val)
	if !flags.Enabled {
		return flags, nil
	}

	raw, err := f.kv.Get(ctx, f.configKey(userID))
	switch {
	case errors.Is(err, ErrMiss):
		return flags, nil
	case err != nil:
		return flags, fmt.Errorf("failed to get ai_features_config: %w", err)
	}
	var categories map[string]bool
	if err := json.Unmarshal([]byte(raw), &categories); err != nil {
		f.logger.Warn("Ignoring unreadable ai_features_config",
			zap.String("user_id", userID),
			zap.Error(err),
		)
		return flags, nil
	}
	flags.Categories = categories
	return flags, nil
}

// Save 保存开关
func (f *FlagStore) Save(ctx context.Context, userID string, flags models.FeatureFlags) error {
	if err := f.kv.Set(ctx, f.enabledKey(userID), strconv.FormatBool(flags.Enabled), 0); err != nil {
		return fmt.Errorf("failed to set ai_sos_enabled: %w", err)
	}
	if flags.Categories == nil {
		return nil
	}
	data, err := json.Marshal(flags.Categories)
	if err != nil {
		return fmt.Errorf("failed to marshal ai_features_config: %w", err)
	}
	if err := f.kv.Set(ctx, f.configKey(userID), string(data), 0); err != nil {
		return fmt.Errorf("failed to set ai_features_config: %w", err)
	}
	return nil
}
