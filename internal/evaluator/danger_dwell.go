package evaluator

import (
	"fmt"

	"tourguard-safety/internal/models"

	"go.uber.org/zap"
)

// DangerDwellEvaluator 危险区域停留检测
// States: Outside -> Inside -> Triggered -> Inside (after cooldown); exit resets.
type DangerDwellEvaluator struct {
	controller *Controller
}

// NewDangerDwellEvaluator 创建危险区域停留评估器
func NewDangerDwellEvaluator(controller *Controller) *DangerDwellEvaluator {
	return &DangerDwellEvaluator{controller: controller}
}

// Evaluate advances the dwell timer using the engine's containment for the
// same sample.
func (e *DangerDwellEvaluator) Evaluate(now int64, pos models.Coordinate, inDangerZone bool, tracker *models.DwellTracker) (*Trigger, bool) {
	th := e.controller.thresholds

	if !inDangerZone {
		if tracker.InZone() {
			tracker.ZoneEntryAt = 0
			return nil, true
		}
		return nil, false
	}

	if !tracker.InZone() {
		tracker.ZoneEntryAt = now
		return nil, true
	}

	dwell := now - tracker.ZoneEntryAt
	sinceTrigger := now - tracker.LastZoneTriggerAt
	if dwell <= th.ZoneThreshold.Milliseconds() || sinceTrigger <= th.ZoneCooldown.Milliseconds() {
		return nil, false
	}

	tracker.LastZoneTriggerAt = now
	e.controller.logger.Info("Danger zone dwell detected",
		zap.Int64("dwell_ms", dwell),
		zap.Float64("latitude", pos.Latitude),
		zap.Float64("longitude", pos.Longitude),
	)
	return &Trigger{
		Kind:        models.EmergencyKindAutoRedZone,
		Description: fmt.Sprintf("User in high-risk zone for over %s.", humanDuration(th.ZoneThreshold)),
		Position:    pos,
		AtMillis:    now,
	}, true
}
