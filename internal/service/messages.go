package service

import (
	"time"

	"tourguard-safety/internal/geofence"
	"tourguard-safety/internal/models"
)

// Session states carried on the session topic.
const (
	SessionStart = "start"
	SessionStop  = "stop"
)

// sessionMessage {prefix}/{user}/{device}/session
type sessionMessage struct {
	State     string `json:"state"`
	UserAgent string `json:"user_agent,omitempty"`
	Platform  string `json:"platform,omitempty"`
}

// sosMessage {prefix}/{user}/{device}/sos
type sosMessage struct {
	EmergencyType string   `json:"emergency_type"`
	Description   string   `json:"description"`
	Latitude      *float64 `json:"latitude,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty"`
	UserAgent     string   `json:"user_agent,omitempty"`
	Platform      string   `json:"platform,omitempty"`
}

func (m sosMessage) position() *models.Coordinate {
	if m.Latitude == nil || m.Longitude == nil {
		return nil
	}
	return &models.Coordinate{Latitude: *m.Latitude, Longitude: *m.Longitude}
}

// cueMessage {prefix}/{user}/{device}/cue
type cueMessage struct {
	Vibrate []int  `json:"vibrate"`
	Sound   string `json:"sound,omitempty"`
	ZoneID  string `json:"zone_id"`
}

// mapQuery {prefix}/{user}/{device}/map
type mapQuery struct {
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Accuracy   float64 `json:"accuracy"`
	CapturedAt int64   `json:"captured_at"`
}

func (q mapQuery) position() models.Position {
	return models.Position{
		Latitude:       q.Latitude,
		Longitude:      q.Longitude,
		CapturedAt:     time.UnixMilli(q.CapturedAt).UTC(),
		AccuracyMeters: q.Accuracy,
	}
}

// zoneStatus is one entry of the map reply on {prefix}/{user}/{device}/map/zones.
type zoneStatus struct {
	ZoneID         string          `json:"zone_id"`
	Name           string          `json:"name"`
	Kind           models.ZoneKind `json:"kind"`
	DistanceMeters float64         `json:"distance_meters"`
	Inside         bool            `json:"inside"`
}

func zoneStatuses(cs []geofence.Containment) []zoneStatus {
	out := make([]zoneStatus, 0, len(cs))
	for _, c := range cs {
		out = append(out, zoneStatus{
			ZoneID:         c.Zone.ID,
			Name:           c.Zone.Name,
			Kind:           c.Zone.Kind,
			DistanceMeters: c.DistanceMeters,
			Inside:         c.Contained,
		})
	}
	return out
}
