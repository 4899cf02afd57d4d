package evaluator

import (
	"fmt"
	"time"
)

// Thresholds 危险检测阈值（构造时注入，不使用常量）
type Thresholds struct {
	// StaticThreshold is how long the device must stay within MovementRadiusMeters
	// before an immobility event fires.
	StaticThreshold time.Duration
	StaticCooldown  time.Duration

	// ZoneThreshold is the continuous danger-zone dwell before an auto-redzone event.
	ZoneThreshold time.Duration
	ZoneCooldown  time.Duration

	MovementRadiusMeters float64
}

// DemoThresholds is the short profile used for demonstrations.
func DemoThresholds() Thresholds {
	return Thresholds{
		StaticThreshold:      5 * time.Minute,
		StaticCooldown:       time.Minute,
		ZoneThreshold:        2 * time.Minute,
		ZoneCooldown:         time.Minute,
		MovementRadiusMeters: 100,
	}
}

// ProductionThresholds is the field profile.
func ProductionThresholds() Thresholds {
	return Thresholds{
		StaticThreshold:      24 * time.Hour,
		StaticCooldown:       time.Hour,
		ZoneThreshold:        2 * time.Hour,
		ZoneCooldown:         time.Hour,
		MovementRadiusMeters: 100,
	}
}

// ThresholdsForProfile returns the named profile.
func ThresholdsForProfile(profile string) (Thresholds, error) {
	switch profile {
	case "demo":
		return DemoThresholds(), nil
	case "production", "":
		return ProductionThresholds(), nil
	}
	return Thresholds{}, fmt.Errorf("unknown hazard profile %q", profile)
}

// Validate 校验阈值
func (t Thresholds) Validate() error {
	durations := []struct {
		name string
		d    time.Duration
	}{
		{"static threshold", t.StaticThreshold},
		{"static cooldown", t.StaticCooldown},
		{"zone threshold", t.ZoneThreshold},
		{"zone cooldown", t.ZoneCooldown},
	}
	for _, d := range durations {
		if d.d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", d.name, d.d)
		}
	}
	if !(t.MovementRadiusMeters > 0) {
		return fmt.Errorf("movement radius must be positive, got %v", t.MovementRadiusMeters)
	}
	return nil
}

// humanDuration renders d for event descriptions ("5 minutes", "24 hours").
func humanDuration(d time.Duration) string {
	switch {
	case d >= time.Hour && d%time.Hour == 0:
		return plural(int64(d/time.Hour), "hour")
	case d >= time.Minute && d%time.Minute == 0:
		return plural(int64(d/time.Minute), "minute")
	}
	return plural(int64(d/time.Second), "second")
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
