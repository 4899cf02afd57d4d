package evaluator

import (
	"fmt"

	"tourguard-safety/internal/geo"
	"tourguard-safety/internal/models"

	"go.uber.org/zap"
)

// ImmobilityEvaluator 静止检测：位置长时间未变化，可能被困或受伤
// States: Moving -> Static -> Triggered -> Static (after cooldown).
type ImmobilityEvaluator struct {
	controller *Controller
}

// NewImmobilityEvaluator 创建静止检测评估器
func NewImmobilityEvaluator(controller *Controller) *ImmobilityEvaluator {
	return &ImmobilityEvaluator{controller: controller}
}

// Evaluate advances the immobility state for one sample. It returns a trigger
// when the hazard fires and whether the tracker was modified.
func (e *ImmobilityEvaluator) Evaluate(now int64, pos models.Coordinate, tracker *models.DwellTracker) (*Trigger, bool) {
	th := e.controller.thresholds

	// 首个样本或移动超出半径：记为移动
	if !tracker.HasMovementFix() ||
		geo.DistanceMeters(pos, tracker.LastMovementPosition) > th.MovementRadiusMeters {
		tracker.LastMovementPosition = pos
		tracker.LastMovementAt = now
		return nil, true
	}

	static := now - tracker.LastMovementAt
	sinceTrigger := now - tracker.LastStaticTriggerAt
	if static <= th.StaticThreshold.Milliseconds() || sinceTrigger <= th.StaticCooldown.Milliseconds() {
		return nil, false
	}

	tracker.LastStaticTriggerAt = now
	e.controller.logger.Info("Immobility detected",
		zap.Int64("static_ms", static),
		zap.Float64("latitude", pos.Latitude),
		zap.Float64("longitude", pos.Longitude),
	)
	return &Trigger{
		Kind:        models.EmergencyKindAutoImmobility,
		Description: fmt.Sprintf("User location unchanged for %s. Potential stuck/injured.", humanDuration(th.StaticThreshold)),
		Position:    pos,
		AtMillis:    now,
	}, true
}
