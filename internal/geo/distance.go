package geo

import (
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"

	"tourguard-safety/internal/models"
)

// EarthRadiusMeters 地球半径（米），与客户端地图计算保持一致
const EarthRadiusMeters = 6371000.0

// DistanceMeters 使用 Haversine 公式计算两点间的大圆距离（米）
func DistanceMeters(a, b models.Coordinate) float64 {
	phi1 := a.Latitude * math.Pi / 180
	phi2 := b.Latitude * math.Pi / 180
	deltaPhi := (b.Latitude - a.Latitude) * math.Pi / 180
	deltaLambda := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(deltaPhi/2)*math.Sin(deltaPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*
			math.Sin(deltaLambda/2)*math.Sin(deltaLambda/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMeters * c
}

// boundPadding widens the pre-filter box so that the difference between orb's
// earth radius and ours can never reject a point inside the circle.
const boundPadding = 1.01

// MaybeWithin is a cheap bounding-box test. It returns false only when p is
// certainly farther than radius from center; true means "run the exact check".
func MaybeWithin(p, center models.Coordinate, radiusMeters float64) bool {
	b := orbgeo.NewBoundAroundPoint(center.Point(), radiusMeters*boundPadding+1)
	if b.Min.Lon() > b.Max.Lon() || b.Min.Lon() < -180 || b.Max.Lon() > 180 {
		// box wraps the antimeridian or a pole
		return true
	}
	return b.Contains(orb.Point{p.Longitude, p.Latitude})
}
