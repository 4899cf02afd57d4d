package models

import "time"

// EmergencyKind 紧急事件来源
type EmergencyKind string

const (
	EmergencyKindManual         EmergencyKind = "manual"
	EmergencyKindAutoImmobility EmergencyKind = "auto-immobility"
	EmergencyKindAutoRedZone    EmergencyKind = "auto-redzone"
)

// EmergencyType is the user-facing classification stored in sos_events.emergency_type.
type EmergencyType string

const (
	EmergencyTypeMedical  EmergencyType = "medical"
	EmergencyTypeCrime    EmergencyType = "crime"
	EmergencyTypeLost     EmergencyType = "lost"
	EmergencyTypeAccident EmergencyType = "accident"
	EmergencyTypeOther    EmergencyType = "other"
)

// ParseEmergencyType maps free input to a known type, defaulting to other.
func ParseEmergencyType(s string) EmergencyType {
	switch EmergencyType(s) {
	case EmergencyTypeMedical, EmergencyTypeCrime, EmergencyTypeLost, EmergencyTypeAccident:
		return EmergencyType(s)
	}
	return EmergencyTypeOther
}

const EmergencyStatusTriggered = "triggered"

// EmergencyEvent 紧急事件（对应 sos_events 表）
type EmergencyEvent struct {
	ID            string            `json:"id" db:"id"`
	UserID        string            `json:"user_id" db:"user_id"`
	Kind          EmergencyKind     `json:"kind" db:"kind"`
	EmergencyType EmergencyType     `json:"emergency_type" db:"emergency_type"`
	Description   string            `json:"description" db:"description"`
	Position      Coordinate        `json:"position"`
	Status        string            `json:"status" db:"status"`
	TriggeredAt   time.Time         `json:"triggered_at" db:"triggered_at"`
	DeviceInfo    map[string]string `json:"device_info" db:"device_info"`
}

// Summary is the short text handed to the notification collaborator.
func (e *EmergencyEvent) Summary() string {
	if e.Description != "" {
		return e.Description
	}
	return string(e.EmergencyType)
}
