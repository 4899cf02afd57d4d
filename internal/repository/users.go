package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"tourguard-safety/internal/models"

	"go.uber.org/zap"
)

// UserRepository 用户仓库
type UserRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewUserRepository 创建用户仓库
func NewUserRepository(db *sql.DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{
		db:     db,
		logger: logger,
	}
}

// Get 获取用户资料
func (r *UserRepository) Get(ctx context.Context, userID string) (*models.User, error) {
	query := `
		SELECT id, name, email, digital_id
		FROM users
		WHERE id = $1
	`

	var u models.User
	var name, email, digitalID sql.NullString
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&u.ID, &name, &email, &digitalID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	u.Name = name.String
	u.Email = email.String
	u.DigitalID = digitalID.String
	return &u, nil
}

// UpdateLocation records the latest known position on the user row.
func (r *UserRepository) UpdateLocation(ctx context.Context, userID string, pos models.Coordinate, at time.Time) error {
	query := `
		UPDATE users
		SET current_latitude = $2,
		    current_longitude = $3,
		    last_location_update = $4
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, userID, pos.Latitude, pos.Longitude, at)
	if err != nil {
		return fmt.Errorf("failed to update user location: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return nil
}

// ListEmergencyContacts 获取用户的紧急联系人
func (r *UserRepository) ListEmergencyContacts(ctx context.Context, userID string) ([]models.EmergencyContact, error) {
	query := `
		SELECT id, user_id, contact_name, contact_email, contact_phone, relationship
		FROM emergency_contacts
		WHERE user_id = $1
		ORDER BY contact_name
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query emergency contacts: %w", err)
	}
	defer rows.Close()

	var contacts []models.EmergencyContact
	for rows.Next() {
		var c models.EmergencyContact
		var email, phone, relationship sql.NullString
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &email, &phone, &relationship); err != nil {
			return nil, fmt.Errorf("failed to scan emergency contact: %w", err)
		}
		c.Email = email.String
		c.Relationship = relationship.String
		if phone.Valid {
			c.Phone = &phone.String
		}
		contacts = append(contacts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate emergency contacts: %w", err)
	}
	return contacts, nil
}
