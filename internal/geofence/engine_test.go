package geofence

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"tourguard-safety/internal/geo"
	"tourguard-safety/internal/models"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func position(lat, lon float64) models.Position {
	return models.Position{Latitude: lat, Longitude: lon, CapturedAt: t0, AccuracyMeters: 8}
}

func zone(id string, kind models.ZoneKind, lat, lon, radius float64) models.Zone {
	return models.Zone{
		ID:           id,
		Name:         "zone " + id,
		Center:       models.Coordinate{Latitude: lat, Longitude: lon},
		RadiusMeters: radius,
		Kind:         kind,
		Active:       true,
	}
}

func TestEvaluate_ScenarioCenterAndFarPoint(t *testing.T) {
	e := NewEngine(zap.NewNop())
	z := zone("z1", models.ZoneKindDanger, 10.0, 76.0, 500)

	res := e.Evaluate(position(10.0, 76.0), []models.Zone{z}, nil)
	require.False(t, res.Skipped)
	require.Len(t, res.Entered, 1)
	assert.Equal(t, 0.0, res.Entered[0].DistanceMeters)
	assert.True(t, res.InDangerZone)

	res = e.Evaluate(position(10.0054, 76.0), []models.Zone{z}, nil)
	assert.Empty(t, res.Entered)
	assert.Empty(t, res.Inside)
	assert.False(t, res.InDangerZone)
}

func TestEvaluate_BoundaryInclusive(t *testing.T) {
	e := NewEngine(zap.NewNop())
	p := position(10.003, 76.002)
	radius := geo.DistanceMeters(p.Coordinate(), models.Coordinate{Latitude: 10.0, Longitude: 76.0})

	res := e.Evaluate(p, []models.Zone{zone("edge", models.ZoneKindMedium, 10.0, 76.0, radius)}, nil)
	require.Len(t, res.Inside, 1)
	require.Len(t, res.Entered, 1)

	res = e.Evaluate(p, []models.Zone{zone("edge", models.ZoneKindMedium, 10.0, 76.0, math.Nextafter(radius, 0))}, nil)
	assert.Empty(t, res.Inside)
}

func TestEvaluate_DeduplicatesWhileInside(t *testing.T) {
	e := NewEngine(zap.NewNop())
	zones := []models.Zone{zone("z1", models.ZoneKindDanger, 10.0, 76.0, 500)}
	state := NewAlertState()

	entered := 0
	for i := 0; i < 10; i++ {
		res := e.Evaluate(position(10.0+float64(i)*0.0001, 76.0), zones, state)
		entered += len(res.Entered)
		assert.Empty(t, res.Exited)
		state = res.AlertState
	}
	assert.Equal(t, 1, entered)
	assert.True(t, state.Has("z1"))
}

func TestEvaluate_ExitThenReentry(t *testing.T) {
	e := NewEngine(zap.NewNop())
	zones := []models.Zone{zone("z1", models.ZoneKindMedium, 10.0, 76.0, 500)}

	res := e.Evaluate(position(10.0, 76.0), zones, nil)
	require.Len(t, res.Entered, 1)

	res = e.Evaluate(position(10.01, 76.0), zones, res.AlertState)
	require.Len(t, res.Exited, 1)
	assert.Equal(t, "z1", res.Exited[0].Zone.ID)
	assert.Greater(t, res.Exited[0].DistanceMeters, 500.0)
	assert.False(t, res.AlertState.Has("z1"))

	// still outside: nothing
	res = e.Evaluate(position(10.02, 76.0), zones, res.AlertState)
	assert.Empty(t, res.Entered)
	assert.Empty(t, res.Exited)

	res = e.Evaluate(position(10.0, 76.0), zones, res.AlertState)
	assert.Len(t, res.Entered, 1)
}

func TestEvaluate_DoesNotMutateInputState(t *testing.T) {
	e := NewEngine(zap.NewNop())
	state := NewAlertState()
	res := e.Evaluate(position(10.0, 76.0), []models.Zone{zone("z1", models.ZoneKindDanger, 10.0, 76.0, 500)}, state)

	assert.False(t, state.Has("z1"))
	assert.True(t, res.AlertState.Has("z1"))
}

func TestEvaluate_InvalidPositionSkipsEverything(t *testing.T) {
	e := NewEngine(zap.NewNop())
	state := NewAlertState()
	state["z1"] = struct{}{}
	zones := []models.Zone{zone("z1", models.ZoneKindDanger, 10.0, 76.0, 500)}

	for name, p := range map[string]models.Position{
		"no accuracy":  {Latitude: 50, Longitude: 50, CapturedAt: t0},
		"nan latitude": {Latitude: math.NaN(), Longitude: 76, CapturedAt: t0, AccuracyMeters: 5},
		"out of range": {Latitude: 95, Longitude: 76, CapturedAt: t0, AccuracyMeters: 5},
		"no timestamp": {Latitude: 50, Longitude: 50, AccuracyMeters: 5},
	} {
		t.Run(name, func(t *testing.T) {
			res := e.Evaluate(p, zones, state)
			assert.True(t, res.Skipped)
			assert.Empty(t, res.Exited)
			assert.True(t, res.AlertState.Has("z1"))
		})
	}
}

func TestEvaluate_MalformedRadiusSkippedWithWarning(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	e := NewEngine(zap.New(core))
	zones := []models.Zone{
		zone("bad", models.ZoneKindDanger, 10.0, 76.0, 0),
		zone("nan", models.ZoneKindDanger, 10.0, 76.0, math.NaN()),
		zone("good", models.ZoneKindMedium, 10.0, 76.0, 300),
	}

	res := e.Evaluate(position(10.0, 76.0), zones, nil)

	require.Len(t, res.Entered, 1)
	assert.Equal(t, "good", res.Entered[0].Zone.ID)
	assert.False(t, res.InDangerZone)
	assert.Equal(t, 2, logs.FilterMessage("Skipping zone with invalid radius").Len())
}

func TestEvaluate_InactiveZonesIgnored(t *testing.T) {
	e := NewEngine(zap.NewNop())
	z := zone("z1", models.ZoneKindDanger, 10.0, 76.0, 500)
	z.Active = false

	res := e.Evaluate(position(10.0, 76.0), []models.Zone{z}, nil)
	assert.Empty(t, res.Entered)
	assert.False(t, res.InDangerZone)
}

func TestEvaluate_SeverityFlags(t *testing.T) {
	e := NewEngine(zap.NewNop())
	zones := []models.Zone{
		zone("d", models.ZoneKindDanger, 10.0, 76.0, 500),
		zone("m", models.ZoneKindMedium, 10.0, 76.0, 500),
		zone("s", models.ZoneKindSafe, 10.0, 76.0, 500),
		zone("p", models.ZoneKindPublic, 10.0, 76.0, 500),
	}

	res := e.Evaluate(position(10.0, 76.0), zones, nil)
	require.Len(t, res.Entered, 4)

	disruptive := map[string]bool{}
	for _, tr := range res.Entered {
		disruptive[tr.Zone.ID] = tr.Disruptive
	}
	assert.Equal(t, map[string]bool{"d": true, "m": true, "s": false, "p": false}, disruptive)
	assert.True(t, res.DangerEntered())
}

func TestEvaluate_SafeZoneDoesNotCountAsDanger(t *testing.T) {
	e := NewEngine(zap.NewNop())
	res := e.Evaluate(position(10.0, 76.0), []models.Zone{zone("s", models.ZoneKindSafe, 10.0, 76.0, 500)}, nil)
	assert.Len(t, res.Inside, 1)
	assert.False(t, res.InDangerZone)
	assert.False(t, res.DangerEntered())
}

func TestClassify_MatchesEvaluate(t *testing.T) {
	e := NewEngine(zap.NewNop())
	zones := []models.Zone{
		zone("near", models.ZoneKindDanger, 10.0, 76.0, 500),
		zone("far", models.ZoneKindSafe, 10.1, 76.1, 500),
		zone("bad", models.ZoneKindSafe, 10.0, 76.0, -1),
	}
	p := position(10.001, 76.001)

	classified := e.Classify(p, zones)
	require.Len(t, classified, 2)

	res := e.Evaluate(p, zones, nil)
	inside := map[string]bool{}
	for _, z := range res.Inside {
		inside[z.ID] = true
	}
	for _, c := range classified {
		assert.Equal(t, inside[c.Zone.ID], c.Contained, c.Zone.ID)
	}

	assert.Nil(t, e.Classify(models.Position{}, zones))
}

func TestAlertFor(t *testing.T) {
	a, ok := AlertFor(Transition{Zone: models.Zone{ID: "1", Name: "Old Market", Kind: models.ZoneKindDanger}})
	require.True(t, ok)
	assert.Equal(t, "You have entered Old Market. Do not enter!", a.Message)

	a, ok = AlertFor(Transition{Zone: models.Zone{ID: "2", Name: "Harbour", Kind: models.ZoneKindMedium}})
	require.True(t, ok)
	assert.Equal(t, "You are in an Orange Zone (Harbour). Be careful.", a.Message)

	_, ok = AlertFor(Transition{Zone: models.Zone{ID: "3", Name: "Hotel", Kind: models.ZoneKindSafe}})
	assert.False(t, ok)
}
