package evaluator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tourguard-safety/internal/geofence"
	"tourguard-safety/internal/models"
)

var start = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func sample(lat, lon float64, offset time.Duration) models.Position {
	return models.Position{Latitude: lat, Longitude: lon, CapturedAt: start.Add(offset), AccuracyMeters: 10}
}

func enabled() models.FeatureFlags {
	return models.FeatureFlags{Enabled: true, Categories: models.DefaultCategories()}
}

func testThresholds() Thresholds {
	return Thresholds{
		StaticThreshold:      300 * time.Second,
		StaticCooldown:       60 * time.Second,
		ZoneThreshold:        120 * time.Second,
		ZoneCooldown:         60 * time.Second,
		MovementRadiusMeters: 100,
	}
}

func outside() geofence.Result  { return geofence.Result{} }
func inDanger() geofence.Result { return geofence.Result{InDangerZone: true} }

func countKind(triggers []Trigger, kind models.EmergencyKind) int {
	n := 0
	for _, t := range triggers {
		if t.Kind == kind {
			n++
		}
	}
	return n
}

func TestImmobility_FiresOnceAfterThresholdAndRespectsCooldown(t *testing.T) {
	c := NewController(testThresholds(), zap.NewNop())
	tracker := &models.DwellTracker{}

	var firedAt []time.Duration
	for s := 0; s <= 310; s++ {
		off := time.Duration(s) * time.Second
		out := c.Evaluate(sample(10.0, 76.0, off), outside(), enabled(), tracker)
		if countKind(out.Triggers, models.EmergencyKindAutoImmobility) > 0 {
			firedAt = append(firedAt, off)
		}
	}

	require.Len(t, firedAt, 1)
	assert.Equal(t, 301*time.Second, firedAt[0])
	assert.Equal(t, models.Millis(start.Add(301*time.Second)), tracker.LastStaticTriggerAt)
}

func TestImmobility_RearmsAfterCooldown(t *testing.T) {
	c := NewController(testThresholds(), zap.NewNop())
	tracker := &models.DwellTracker{}

	fired := 0
	for s := 0; s <= 400; s += 5 {
		out := c.Evaluate(sample(10.0, 76.0, time.Duration(s)*time.Second), outside(), enabled(), tracker)
		fired += countKind(out.Triggers, models.EmergencyKindAutoImmobility)
	}
	// 305 fires, 365 is exactly the cooldown, 370 fires again
	assert.Equal(t, 2, fired)
}

func TestImmobility_MovementResetsTimer(t *testing.T) {
	c := NewController(testThresholds(), zap.NewNop())
	tracker := &models.DwellTracker{}

	c.Evaluate(sample(10.0, 76.0, 0), outside(), enabled(), tracker)
	c.Evaluate(sample(10.0, 76.0, 290*time.Second), outside(), enabled(), tracker)

	// ~220 m north
	out := c.Evaluate(sample(10.002, 76.0, 295*time.Second), outside(), enabled(), tracker)
	assert.Empty(t, out.Triggers)
	assert.True(t, out.TrackerChanged)
	assert.Equal(t, models.Millis(start.Add(295*time.Second)), tracker.LastMovementAt)

	out = c.Evaluate(sample(10.002, 76.0, 400*time.Second), outside(), enabled(), tracker)
	assert.Empty(t, out.Triggers)

	out = c.Evaluate(sample(10.002, 76.0, 596*time.Second), outside(), enabled(), tracker)
	assert.Equal(t, 1, countKind(out.Triggers, models.EmergencyKindAutoImmobility))
}

func TestImmobility_SmallDriftIsStatic(t *testing.T) {
	c := NewController(testThresholds(), zap.NewNop())
	tracker := &models.DwellTracker{}

	c.Evaluate(sample(10.0, 76.0, 0), outside(), enabled(), tracker)
	// ~55 m of GPS jitter
	out := c.Evaluate(sample(10.0005, 76.0, 301*time.Second), outside(), enabled(), tracker)
	assert.Equal(t, 1, countKind(out.Triggers, models.EmergencyKindAutoImmobility))
}

func TestImmobility_FirstSampleAtEquatorIsAnchored(t *testing.T) {
	c := NewController(testThresholds(), zap.NewNop())
	tracker := &models.DwellTracker{}

	out := c.Evaluate(sample(0, 0, 0), outside(), enabled(), tracker)
	assert.True(t, out.TrackerChanged)
	assert.True(t, tracker.HasMovementFix())

	out = c.Evaluate(sample(0, 0, 301*time.Second), outside(), enabled(), tracker)
	assert.Equal(t, 1, countKind(out.Triggers, models.EmergencyKindAutoImmobility))
}

func TestDangerDwell_FiresAfterThresholdGatedByCooldown(t *testing.T) {
	c := NewController(testThresholds(), zap.NewNop())
	tracker := &models.DwellTracker{}

	var firedAt []int
	for s := 0; s <= 240; s++ {
		// move every sample so immobility never interferes
		lat := 10.0 + float64(s%2)*0.002
		out := c.Evaluate(sample(lat, 76.0, time.Duration(s)*time.Second), inDanger(), enabled(), tracker)
		if countKind(out.Triggers, models.EmergencyKindAutoRedZone) > 0 {
			firedAt = append(firedAt, s)
		}
	}
	assert.Equal(t, []int{121, 182}, firedAt)
}

func TestDangerDwell_ExitResetsTimer(t *testing.T) {
	c := NewController(testThresholds(), zap.NewNop())
	tracker := &models.DwellTracker{}

	c.Evaluate(sample(10.0, 76.0, 0), inDanger(), enabled(), tracker)
	c.Evaluate(sample(10.0, 76.0, 100*time.Second), inDanger(), enabled(), tracker)

	out := c.Evaluate(sample(10.0, 76.0, 110*time.Second), outside(), enabled(), tracker)
	assert.True(t, out.TrackerChanged)
	assert.Zero(t, tracker.ZoneEntryAt)

	c.Evaluate(sample(10.0, 76.0, 115*time.Second), inDanger(), enabled(), tracker)
	assert.Equal(t, models.Millis(start.Add(115*time.Second)), tracker.ZoneEntryAt)

	out = c.Evaluate(sample(10.0, 76.0, 200*time.Second), inDanger(), enabled(), tracker)
	assert.Zero(t, countKind(out.Triggers, models.EmergencyKindAutoRedZone))

	out = c.Evaluate(sample(10.0, 76.0, 236*time.Second), inDanger(), enabled(), tracker)
	assert.Equal(t, 1, countKind(out.Triggers, models.EmergencyKindAutoRedZone))
}

func TestController_BothHazardsInSameCycle(t *testing.T) {
	c := NewController(testThresholds(), zap.NewNop())
	tracker := &models.DwellTracker{}

	c.Evaluate(sample(10.0, 76.0, 0), inDanger(), enabled(), tracker)
	out := c.Evaluate(sample(10.0, 76.0, 301*time.Second), inDanger(), enabled(), tracker)

	require.Len(t, out.Triggers, 2)
	assert.Equal(t, models.EmergencyKindAutoImmobility, out.Triggers[0].Kind)
	assert.Equal(t, models.EmergencyKindAutoRedZone, out.Triggers[1].Kind)
	assert.Equal(t, "User location unchanged for 5 minutes. Potential stuck/injured.", out.Triggers[0].Description)
	assert.Equal(t, "User in high-risk zone for over 2 minutes.", out.Triggers[1].Description)
	assert.True(t, start.Add(301*time.Second).Equal(out.Triggers[0].At()))
}

func TestController_MasterFlagOff(t *testing.T) {
	c := NewController(testThresholds(), zap.NewNop())
	tracker := &models.DwellTracker{
		LastMovementPosition: models.Coordinate{Latitude: 10.0, Longitude: 76.0},
		LastMovementAt:       models.Millis(start),
		ZoneEntryAt:          models.Millis(start),
	}
	before := *tracker
	flags := models.FeatureFlags{Enabled: false}

	out := c.Evaluate(sample(10.0, 76.0, 24*time.Hour), inDanger(), flags, tracker)
	assert.Empty(t, out.Triggers)
	assert.False(t, out.TrackerChanged)
	assert.Equal(t, before, *tracker)
}

func TestController_CategoryGating(t *testing.T) {
	c := NewController(testThresholds(), zap.NewNop())
	tracker := &models.DwellTracker{}
	flags := models.FeatureFlags{Enabled: true, Categories: map[string]bool{
		models.CategoryBehavioral: false,
	}}

	c.Evaluate(sample(10.0, 76.0, 0), inDanger(), flags, tracker)
	out := c.Evaluate(sample(10.0, 76.0, 301*time.Second), inDanger(), flags, tracker)

	require.Len(t, out.Triggers, 1)
	assert.Equal(t, models.EmergencyKindAutoRedZone, out.Triggers[0].Kind)
	assert.False(t, tracker.HasMovementFix())

	flags.Categories = map[string]bool{models.CategoryContext: false}
	tracker = &models.DwellTracker{}
	c.Evaluate(sample(10.0, 76.0, 0), inDanger(), flags, tracker)
	out = c.Evaluate(sample(10.0, 76.0, 301*time.Second), inDanger(), flags, tracker)
	require.Len(t, out.Triggers, 1)
	assert.Equal(t, models.EmergencyKindAutoImmobility, out.Triggers[0].Kind)
}

func TestController_SkippedSampleDoesNothing(t *testing.T) {
	c := NewController(testThresholds(), zap.NewNop())
	tracker := &models.DwellTracker{}

	out := c.Evaluate(sample(10.0, 76.0, 0), geofence.Result{Skipped: true}, enabled(), tracker)
	assert.False(t, out.TrackerChanged)
	assert.Equal(t, models.DwellTracker{}, *tracker)

	bad := models.Position{Latitude: 10, Longitude: 76, CapturedAt: start}
	out = c.Evaluate(bad, outside(), enabled(), tracker)
	assert.False(t, out.TrackerChanged)
}

func TestThresholds(t *testing.T) {
	require.NoError(t, DemoThresholds().Validate())
	require.NoError(t, ProductionThresholds().Validate())

	th := DemoThresholds()
	th.ZoneCooldown = 0
	assert.Error(t, th.Validate())

	th = DemoThresholds()
	th.MovementRadiusMeters = -1
	assert.Error(t, th.Validate())

	p, err := ThresholdsForProfile("demo")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, p.StaticThreshold)

	_, err = ThresholdsForProfile("staging")
	assert.Error(t, err)

	assert.Equal(t, "24 hours", humanDuration(24*time.Hour))
	assert.Equal(t, "1 minute", humanDuration(time.Minute))
	assert.Equal(t, "90 seconds", humanDuration(90*time.Second))
}
