package repository

import (
	"context"
	"database/sql"
	"fmt"

	"tourguard-safety/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EmailLogRepository 邮件日志仓库（email_logs 表）
type EmailLogRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewEmailLogRepository 创建邮件日志仓库
func NewEmailLogRepository(db *sql.DB, logger *zap.Logger) *EmailLogRepository {
	return &EmailLogRepository{
		db:     db,
		logger: logger,
	}
}

// Create 写入一条邮件发送记录
func (r *EmailLogRepository) Create(ctx context.Context, entry *models.EmailLog) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}

	query := `
		INSERT INTO email_logs (
			id,
			sos_event_id,
			recipient_email,
			recipient_name,
			status,
			error_message,
			sent_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
	`

	_, err := r.db.ExecContext(ctx,
		query,
		entry.ID,
		entry.SOSEventID,
		entry.RecipientEmail,
		entry.RecipientName,
		entry.Status,
		entry.ErrorMessage,
		entry.SentAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create email log: %w", err)
	}
	return nil
}
