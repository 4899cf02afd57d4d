package models

import "time"

// DwellTracker 两类危险的持续时间状态（按设备持久化）
// Timestamps are unix milliseconds; 0 means "never" / "not in zone".
type DwellTracker struct {
	LastMovementPosition Coordinate `json:"last_movement_position"`
	LastMovementAt       int64      `json:"last_movement_at"`
	LastStaticTriggerAt  int64      `json:"last_static_trigger_at"`

	ZoneEntryAt       int64 `json:"zone_entry_at"`
	LastZoneTriggerAt int64 `json:"last_zone_trigger_at"`
}

// HasMovementFix reports whether a movement anchor was ever recorded.
func (d DwellTracker) HasMovementFix() bool {
	return d.LastMovementAt != 0
}

// InZone reports whether a danger-zone entry is being timed.
func (d DwellTracker) InZone() bool {
	return d.ZoneEntryAt != 0
}

// Millis converts t to the tracker's timestamp unit.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}
