package repository

import (
	"context"
	"database/sql"
	"fmt"

	"tourguard-safety/internal/models"

	"github.com/lib/pq"
	"go.uber.org/zap"
)

// ZoneRepository 区域仓库（trusted_zones 表，只读）
type ZoneRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewZoneRepository 创建区域仓库
func NewZoneRepository(db *sql.DB, logger *zap.Logger) *ZoneRepository {
	return &ZoneRepository{
		db:     db,
		logger: logger,
	}
}

// List returns the zones visible to scope: the user's own zones plus, when
// scope.Global is set, zones without an owner. Inactive zones are included so
// the engine can observe exits from deactivated zones consistently.
func (r *ZoneRepository) List(ctx context.Context, scope models.ZoneScope) ([]models.Zone, error) {
	query := `
		SELECT
			id,
			user_id,
			zone_name,
			latitude,
			longitude,
			radius_meters,
			zone_type,
			is_active
		FROM trusted_zones
		WHERE zone_type = ANY($1)
		  AND (user_id = $2 OR ($3 AND user_id IS NULL))
		ORDER BY id
	`
	kinds := []string{
		string(models.ZoneKindDanger),
		string(models.ZoneKindMedium),
		string(models.ZoneKindSafe),
		string(models.ZoneKindPublic),
	}

	rows, err := r.db.QueryContext(ctx, query, pq.Array(kinds), scope.UserID, scope.Global)
	if err != nil {
		return nil, fmt.Errorf("failed to query zones: %w", err)
	}
	defer rows.Close()

	var zones []models.Zone
	for rows.Next() {
		var z models.Zone
		var userID sql.NullString
		var kind string
		if err := rows.Scan(
			&z.ID,
			&userID,
			&z.Name,
			&z.Center.Latitude,
			&z.Center.Longitude,
			&z.RadiusMeters,
			&kind,
			&z.Active,
		); err != nil {
			return nil, fmt.Errorf("failed to scan zone: %w", err)
		}
		if userID.Valid {
			z.UserID = &userID.String
		}
		z.Kind = models.ZoneKind(kind)
		zones = append(zones, z)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate zones: %w", err)
	}

	return zones, nil
}
