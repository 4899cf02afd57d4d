package emitter

import (
	"time"

	"tourguard-safety/internal/evaluator"
	"tourguard-safety/internal/models"

	"github.com/google/uuid"
)

// Device info sources recorded on sos_events.device_info.
const (
	SourceLocationTracker = "AI_LOCATION_TRACKER"
	SourceSOSButton       = "SOS_BUTTON"
)

// DeviceInfo 设备信息（写入 device_info）
type DeviceInfo struct {
	DeviceID  string
	UserAgent string
	Platform  string
}

// EventBuilder 紧急事件构建器
type EventBuilder struct {
	userID string
	device DeviceInfo
}

// NewEventBuilder 创建紧急事件构建器
func NewEventBuilder(userID string, device DeviceInfo) *EventBuilder {
	return &EventBuilder{
		userID: userID,
		device: device,
	}
}

// FromTrigger 根据危险触发构建自动事件
func (b *EventBuilder) FromTrigger(trig evaluator.Trigger) *models.EmergencyEvent {
	return b.build(trig.Kind, models.EmergencyTypeOther, trig.Description, trig.Position, trig.At(), SourceLocationTracker)
}

// Manual 构建手动 SOS 事件
// A missing position is recorded as (0, 0).
func (b *EventBuilder) Manual(emergencyType models.EmergencyType, description string, pos *models.Coordinate, at time.Time) *models.EmergencyEvent {
	var coord models.Coordinate
	if pos != nil && pos.Valid() {
		coord = *pos
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return b.build(models.EmergencyKindManual, emergencyType, description, coord, at, SourceSOSButton)
}

func (b *EventBuilder) build(
	kind models.EmergencyKind,
	emergencyType models.EmergencyType,
	description string,
	pos models.Coordinate,
	at time.Time,
	source string,
) *models.EmergencyEvent {
	info := map[string]string{"source": source}
	if b.device.DeviceID != "" {
		info["device_id"] = b.device.DeviceID
	}
	if b.device.UserAgent != "" {
		info["user_agent"] = b.device.UserAgent
	}
	if b.device.Platform != "" {
		info["platform"] = b.device.Platform
	}

	return &models.EmergencyEvent{
		ID:            uuid.New().String(),
		UserID:        b.userID,
		Kind:          kind,
		EmergencyType: emergencyType,
		Description:   description,
		Position:      pos,
		Status:        models.EmergencyStatusTriggered,
		TriggeredAt:   at,
		DeviceInfo:    info,
	}
}
