package models

import "time"

// User 用户资料中通知所需的字段
type User struct {
	ID        string `json:"id" db:"id"`
	Name      string `json:"name" db:"name"`
	Email     string `json:"email" db:"email"`
	DigitalID string `json:"digital_id" db:"digital_id"`
}

// EmergencyContact 紧急联系人
type EmergencyContact struct {
	ID           string  `json:"id" db:"id"`
	UserID       string  `json:"user_id" db:"user_id"`
	Name         string  `json:"contact_name" db:"contact_name"`
	Email        string  `json:"contact_email" db:"contact_email"`
	Phone        *string `json:"contact_phone,omitempty" db:"contact_phone"`
	Relationship string  `json:"relationship" db:"relationship"`
}

const (
	EmailStatusSent   = "sent"
	EmailStatusFailed = "failed"
)

// EmailLog 邮件发送记录（对应 email_logs 表）
type EmailLog struct {
	ID             string     `json:"id" db:"id"`
	SOSEventID     string     `json:"sos_event_id" db:"sos_event_id"`
	RecipientEmail string     `json:"recipient_email" db:"recipient_email"`
	RecipientName  string     `json:"recipient_name" db:"recipient_name"`
	Status         string     `json:"status" db:"status"`
	ErrorMessage   *string    `json:"error_message,omitempty" db:"error_message"`
	SentAt         *time.Time `json:"sent_at,omitempty" db:"sent_at"`
}

// IncidentReport 事件报告中用于推导危险区域的字段
type IncidentReport struct {
	ID        string    `json:"id" db:"id"`
	Severity  string    `json:"severity" db:"severity"`
	Latitude  *float64  `json:"location_latitude,omitempty" db:"location_latitude"`
	Longitude *float64  `json:"location_longitude,omitempty" db:"location_longitude"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
