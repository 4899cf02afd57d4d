package models

import "math"

// ZoneKind 区域风险类型
type ZoneKind string

const (
	ZoneKindDanger ZoneKind = "danger"
	ZoneKindMedium ZoneKind = "medium"
	ZoneKindSafe   ZoneKind = "safe"
	ZoneKindPublic ZoneKind = "public"
)

// Valid reports whether k is one of the known kinds.
func (k ZoneKind) Valid() bool {
	switch k {
	case ZoneKindDanger, ZoneKindMedium, ZoneKindSafe, ZoneKindPublic:
		return true
	}
	return false
}

// Disruptive reports whether entering a zone of this kind raises an alert.
// safe and public zones are display-only.
func (k ZoneKind) Disruptive() bool {
	return k == ZoneKindDanger || k == ZoneKindMedium
}

// Zone 圆形地理区域（对应 trusted_zones 表）
type Zone struct {
	ID           string     `json:"id" db:"id"`
	UserID       *string    `json:"user_id,omitempty" db:"user_id"`
	Name         string     `json:"zone_name" db:"zone_name"`
	Center       Coordinate `json:"center"`
	RadiusMeters float64    `json:"radius_meters" db:"radius_meters"`
	Kind         ZoneKind   `json:"zone_type" db:"zone_type"`
	Active       bool       `json:"is_active" db:"is_active"`
}

// ValidRadius reports whether the radius invariant (> 0) holds.
func (z Zone) ValidRadius() bool {
	return !math.IsNaN(z.RadiusMeters) && !math.IsInf(z.RadiusMeters, 0) && z.RadiusMeters > 0
}

// ZoneScope selects which zones a store lists.
type ZoneScope struct {
	UserID string
	// Global lists every active zone regardless of owner (map view).
	Global bool
}
