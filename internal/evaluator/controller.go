package evaluator

import (
	"time"

	"tourguard-safety/internal/geofence"
	"tourguard-safety/internal/models"

	"go.uber.org/zap"
)

// Trigger 一次危险触发，交给事件发射器构建 EmergencyEvent
type Trigger struct {
	Kind        models.EmergencyKind
	Description string
	Position    models.Coordinate
	AtMillis    int64
}

// At returns the trigger time.
func (t Trigger) At() time.Time {
	return time.UnixMilli(t.AtMillis).UTC()
}

// Outcome 单个样本的评估结果
type Outcome struct {
	Triggers []Trigger
	// TrackerChanged tells the caller the dwell tracker must be written back.
	TrackerChanged bool
}

// Controller 异常触发 SOS 控制器
// It owns no state of its own; the caller loads the DwellTracker, passes it
// in, and persists it when TrackerChanged is set.
type Controller struct {
	thresholds Thresholds
	logger     *zap.Logger

	immobility *ImmobilityEvaluator  // 长时间静止
	dwell      *DangerDwellEvaluator // 危险区域停留
}

// NewController 创建控制器
func NewController(thresholds Thresholds, logger *zap.Logger) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Controller{
		thresholds: thresholds,
		logger:     logger,
	}
	c.immobility = NewImmobilityEvaluator(c)
	c.dwell = NewDangerDwellEvaluator(c)
	return c
}

// Thresholds returns the configured thresholds.
func (c *Controller) Thresholds() Thresholds {
	return c.thresholds
}

// Evaluate runs both hazard detectors against one sample. The sample's capture
// time is "now" for every comparison. Both hazards may fire in the same call.
func (c *Controller) Evaluate(pos models.Position, containment geofence.Result, flags models.FeatureFlags, tracker *models.DwellTracker) Outcome {
	var out Outcome
	if tracker == nil || containment.Skipped || !pos.Valid() {
		return out
	}
	if !flags.Enabled {
		return out
	}

	now := models.Millis(pos.CapturedAt)
	coord := pos.Coordinate()

	if flags.CategoryEnabled(models.CategoryBehavioral) {
		trig, changed := c.immobility.Evaluate(now, coord, tracker)
		out.TrackerChanged = out.TrackerChanged || changed
		if trig != nil {
			out.Triggers = append(out.Triggers, *trig)
		}
	}

	if flags.CategoryEnabled(models.CategoryContext) {
		trig, changed := c.dwell.Evaluate(now, coord, containment.InDangerZone, tracker)
		out.TrackerChanged = out.TrackerChanged || changed
		if trig != nil {
			out.Triggers = append(out.Triggers, *trig)
		}
	}

	return out
}
