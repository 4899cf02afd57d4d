package models

import (
	"math"
	"time"

	"github.com/paulmach/orb"
)

// Coordinate 经纬度坐标（度）
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Point converts the coordinate to an orb point (lon, lat order).
func (c Coordinate) Point() orb.Point {
	return orb.Point{c.Longitude, c.Latitude}
}

// IsZero reports whether the coordinate was never set.
func (c Coordinate) IsZero() bool {
	return c.Latitude == 0 && c.Longitude == 0
}

// Valid reports whether both components are finite and in range.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) ||
		math.IsInf(c.Latitude, 0) || math.IsInf(c.Longitude, 0) {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 &&
		c.Longitude >= -180 && c.Longitude <= 180
}

// Position 设备定位样本（来自 Location Provider，不由核心持久化）
type Position struct {
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	CapturedAt     time.Time `json:"captured_at"`
	AccuracyMeters float64   `json:"accuracy"`
}

// Coordinate returns the lat/lon part of the sample.
func (p Position) Coordinate() Coordinate {
	return Coordinate{Latitude: p.Latitude, Longitude: p.Longitude}
}

// Valid reports whether the sample can be evaluated. A sample without a
// usable accuracy or timestamp is treated as missing.
func (p Position) Valid() bool {
	if !p.Coordinate().Valid() {
		return false
	}
	if p.CapturedAt.IsZero() {
		return false
	}
	if math.IsNaN(p.AccuracyMeters) || math.IsInf(p.AccuracyMeters, 0) || p.AccuracyMeters <= 0 {
		return false
	}
	return true
}
