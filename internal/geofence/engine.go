package geofence

import (
	"tourguard-safety/internal/geo"
	"tourguard-safety/internal/models"

	"go.uber.org/zap"
)

// AlertState 已进入且已提醒的区域 ID 集合（会话内存状态，不持久化）
type AlertState map[string]struct{}

// NewAlertState creates an empty state.
func NewAlertState() AlertState {
	return make(AlertState)
}

// Has reports whether zoneID is currently marked as entered.
func (s AlertState) Has(zoneID string) bool {
	_, ok := s[zoneID]
	return ok
}

// Clone returns an independent copy.
func (s AlertState) Clone() AlertState {
	out := make(AlertState, len(s))
	for id := range s {
		out[id] = struct{}{}
	}
	return out
}

// Transition 区域进入/离开事件
type Transition struct {
	Zone           models.Zone
	DistanceMeters float64
	// Disruptive is true for danger and medium zones; safe/public are informational.
	Disruptive bool
}

// Result 单次评估结果
type Result struct {
	// Skipped is set when the position was unusable; nothing else is populated
	// except AlertState, which is the input state unchanged.
	Skipped bool

	Entered []Transition
	Exited  []Transition

	// Inside lists every active zone that contains the position.
	Inside       []models.Zone
	InDangerZone bool

	AlertState AlertState
}

// DangerEntered reports whether this sample entered at least one danger zone.
func (r Result) DangerEntered() bool {
	for _, t := range r.Entered {
		if t.Zone.Kind == models.ZoneKindDanger {
			return true
		}
	}
	return false
}

// Engine 地理围栏引擎（纯计算，无 I/O）
// The tracker session and the map view both call it so their containment
// decisions cannot drift.
type Engine struct {
	logger *zap.Logger
}

// NewEngine 创建地理围栏引擎
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{logger: logger}
}

// Evaluate computes containment of pos against zones and returns de-duplicated
// enter/exit transitions relative to state. state is not modified.
func (e *Engine) Evaluate(pos models.Position, zones []models.Zone, state AlertState) Result {
	if state == nil {
		state = NewAlertState()
	}
	if !pos.Valid() {
		e.logger.Debug("Skipping geofence evaluation for invalid position",
			zap.Float64("latitude", pos.Latitude),
			zap.Float64("longitude", pos.Longitude),
			zap.Float64("accuracy", pos.AccuracyMeters),
		)
		return Result{Skipped: true, AlertState: state}
	}

	next := state.Clone()
	res := Result{AlertState: next}
	p := pos.Coordinate()

	for _, zone := range zones {
		if !zone.Active {
			continue
		}
		if !zone.ValidRadius() {
			e.logger.Warn("Skipping zone with invalid radius",
				zap.String("zone_id", zone.ID),
				zap.String("zone_name", zone.Name),
				zap.Float64("radius_meters", zone.RadiusMeters),
			)
			continue
		}

		// the bounding box rejects far zones before the haversine call
		dist := -1.0
		contained := false
		if geo.MaybeWithin(p, zone.Center, zone.RadiusMeters) {
			dist = geo.DistanceMeters(p, zone.Center)
			contained = dist <= zone.RadiusMeters
		}

		if contained {
			res.Inside = append(res.Inside, zone)
			if zone.Kind == models.ZoneKindDanger {
				res.InDangerZone = true
			}
			if !next.Has(zone.ID) {
				next[zone.ID] = struct{}{}
				res.Entered = append(res.Entered, Transition{
					Zone:           zone,
					DistanceMeters: dist,
					Disruptive:     zone.Kind.Disruptive(),
				})
			}
			continue
		}

		if next.Has(zone.ID) {
			if dist < 0 {
				dist = geo.DistanceMeters(p, zone.Center)
			}
			delete(next, zone.ID)
			res.Exited = append(res.Exited, Transition{
				Zone:           zone,
				DistanceMeters: dist,
				Disruptive:     zone.Kind.Disruptive(),
			})
		}
	}

	return res
}

// Containment 地图展示用的单区域包含结果
type Containment struct {
	Zone           models.Zone
	DistanceMeters float64
	Contained      bool
}

// Classify evaluates containment without alert state, for display. Zones that
// Evaluate would skip are omitted. An invalid position yields nil.
func (e *Engine) Classify(pos models.Position, zones []models.Zone) []Containment {
	if !pos.Valid() {
		return nil
	}
	p := pos.Coordinate()
	out := make([]Containment, 0, len(zones))
	for _, zone := range zones {
		if !zone.Active || !zone.ValidRadius() {
			continue
		}
		dist := geo.DistanceMeters(p, zone.Center)
		out = append(out, Containment{
			Zone:           zone,
			DistanceMeters: dist,
			Contained:      dist <= zone.RadiusMeters,
		})
	}
	return out
}
