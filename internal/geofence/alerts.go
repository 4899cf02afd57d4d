package geofence

import (
	"fmt"

	"tourguard-safety/internal/models"
)

// DangerVibrationPattern is the cue played on danger-zone entry (ms on/off/on).
var DangerVibrationPattern = []int{200, 100, 200}

// Alert 设备端区域提醒
type Alert struct {
	Level    models.ZoneKind `json:"type"`
	ZoneID   string          `json:"zone_id"`
	ZoneName string          `json:"zone_name"`
	Message  string          `json:"message"`
}

// AlertFor builds the user-facing alert for an entry transition. ok is false
// for informational zones.
func AlertFor(t Transition) (Alert, bool) {
	switch t.Zone.Kind {
	case models.ZoneKindDanger:
		return Alert{
			Level:    models.ZoneKindDanger,
			ZoneID:   t.Zone.ID,
			ZoneName: t.Zone.Name,
			Message:  fmt.Sprintf("You have entered %s. Do not enter!", t.Zone.Name),
		}, true
	case models.ZoneKindMedium:
		return Alert{
			Level:    models.ZoneKindMedium,
			ZoneID:   t.Zone.ID,
			ZoneName: t.Zone.Name,
			Message:  fmt.Sprintf("You are in an Orange Zone (%s). Be careful.", t.Zone.Name),
		}, true
	}
	return Alert{}, false
}
