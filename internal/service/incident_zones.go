package service

import (
	"context"
	"sync"
	"time"

	"tourguard-safety/internal/models"
)

// IncidentSource 近期严重事件来源
type IncidentSource interface {
	ListRecentCritical(ctx context.Context, since time.Time) ([]models.IncidentReport, error)
}

// IncidentZonePrefix marks zone ids synthesized from incident reports.
const IncidentZonePrefix = "incident:"

// IncidentZones turns located incident reports into danger zones of the
// given radius.
func IncidentZones(incidents []models.IncidentReport, radiusMeters float64) []models.Zone {
	zones := make([]models.Zone, 0, len(incidents))
	for _, inc := range incidents {
		if inc.Latitude == nil || inc.Longitude == nil {
			continue
		}
		zones = append(zones, models.Zone{
			ID:           IncidentZonePrefix + inc.ID,
			Name:         "Reported critical incident",
			Center:       models.Coordinate{Latitude: *inc.Latitude, Longitude: *inc.Longitude},
			RadiusMeters: radiusMeters,
			Kind:         models.ZoneKindDanger,
			Active:       true,
		})
	}
	return zones
}

// incidentZoneCache refreshes the incident-derived zones at most once per ttl.
type incidentZoneCache struct {
	source IncidentSource
	radius float64
	window time.Duration
	ttl    time.Duration
	now    func() time.Time

	mu        sync.Mutex
	zones     []models.Zone
	fetchedAt time.Time
}

// get returns the incident zones. A failed refresh returns the last loaded
// zones with the error and retries on the next call; a nil slice means
// nothing has loaded yet.
func (c *incidentZoneCache) get(ctx context.Context) ([]models.Zone, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if !c.fetchedAt.IsZero() && now.Sub(c.fetchedAt) < c.ttl {
		return c.zones, nil
	}
	incidents, err := c.source.ListRecentCritical(ctx, now.Add(-c.window))
	if err != nil {
		return c.zones, err
	}
	c.zones = IncidentZones(incidents, c.radius)
	c.fetchedAt = now
	return c.zones, nil
}
