package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"tourguard-safety/internal/models"

	"go.uber.org/zap"
)

// EmergencyEventRepository 紧急事件仓库（sos_events 表）
type EmergencyEventRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewEmergencyEventRepository 创建紧急事件仓库
func NewEmergencyEventRepository(db *sql.DB, logger *zap.Logger) *EmergencyEventRepository {
	return &EmergencyEventRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new event and returns its id. It never upserts.
func (r *EmergencyEventRepository) Create(ctx context.Context, event *models.EmergencyEvent) (string, error) {
	if event == nil {
		return "", fmt.Errorf("event is required")
	}
	if event.UserID == "" {
		return "", fmt.Errorf("user_id is required")
	}

	deviceInfo := []byte("{}")
	if len(event.DeviceInfo) > 0 {
		b, err := json.Marshal(event.DeviceInfo)
		if err != nil {
			return "", fmt.Errorf("failed to marshal device info: %w", err)
		}
		deviceInfo = b
	}

	query := `
		INSERT INTO sos_events (
			id,
			user_id,
			kind,
			emergency_type,
			description,
			latitude,
			longitude,
			status,
			triggered_at,
			device_info
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
		RETURNING id
	`

	var id string
	err := r.db.QueryRowContext(ctx,
		query,
		event.ID,
		event.UserID,
		string(event.Kind),
		string(event.EmergencyType),
		event.Description,
		event.Position.Latitude,
		event.Position.Longitude,
		event.Status,
		event.TriggeredAt,
		deviceInfo,
	).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return "", fmt.Errorf("sos event %s: %w", event.ID, ErrDuplicate)
		}
		return "", fmt.Errorf("failed to create sos event: %w", err)
	}

	return id, nil
}

// Get 根据 id 获取紧急事件
func (r *EmergencyEventRepository) Get(ctx context.Context, id string) (*models.EmergencyEvent, error) {
	if id == "" {
		return nil, fmt.Errorf("id is required")
	}

	query := `
		SELECT
			id,
			user_id,
			kind,
			emergency_type,
			description,
			latitude,
			longitude,
			status,
			triggered_at,
			device_info
		FROM sos_events
		WHERE id = $1
	`

	var ev models.EmergencyEvent
	var kind, emergencyType string
	var description sql.NullString
	var deviceInfo []byte
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&ev.ID,
		&ev.UserID,
		&kind,
		&emergencyType,
		&description,
		&ev.Position.Latitude,
		&ev.Position.Longitude,
		&ev.Status,
		&ev.TriggeredAt,
		&deviceInfo,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("sos event %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get sos event: %w", err)
	}

	ev.Kind = models.EmergencyKind(kind)
	ev.EmergencyType = models.EmergencyType(emergencyType)
	ev.Description = description.String

	// 处理 JSONB 字段
	if len(deviceInfo) > 0 {
		if err := json.Unmarshal(deviceInfo, &ev.DeviceInfo); err != nil {
			r.logger.Warn("Failed to parse device_info",
				zap.String("event_id", id),
				zap.Error(err),
			)
		}
	}

	return &ev, nil
}
