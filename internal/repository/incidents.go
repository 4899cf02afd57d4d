package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"tourguard-safety/internal/models"

	"go.uber.org/zap"
)

// IncidentRepository 事件报告仓库（incident_reports 表）
type IncidentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewIncidentRepository 创建事件报告仓库
func NewIncidentRepository(db *sql.DB, logger *zap.Logger) *IncidentRepository {
	return &IncidentRepository{
		db:     db,
		logger: logger,
	}
}

// ListRecentCritical returns critical incidents reported since the given time
// that carry a location.
func (r *IncidentRepository) ListRecentCritical(ctx context.Context, since time.Time) ([]models.IncidentReport, error) {
	query := `
		SELECT id, severity, location_latitude, location_longitude, created_at
		FROM incident_reports
		WHERE severity = 'critical'
		  AND created_at >= $1
		  AND location_latitude IS NOT NULL
		  AND location_longitude IS NOT NULL
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to query incidents: %w", err)
	}
	defer rows.Close()

	var out []models.IncidentReport
	for rows.Next() {
		var inc models.IncidentReport
		var lat, lon sql.NullFloat64
		if err := rows.Scan(&inc.ID, &inc.Severity, &lat, &lon, &inc.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan incident: %w", err)
		}
		if lat.Valid {
			inc.Latitude = &lat.Float64
		}
		if lon.Valid {
			inc.Longitude = &lon.Float64
		}
		out = append(out, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate incidents: %w", err)
	}
	return out, nil
}
