package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tourguard-safety/internal/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// EventReader 读取紧急事件
type EventReader interface {
	Get(ctx context.Context, id string) (*models.EmergencyEvent, error)
}

// ContactReader 读取用户资料和紧急联系人
type ContactReader interface {
	Get(ctx context.Context, userID string) (*models.User, error)
	ListEmergencyContacts(ctx context.Context, userID string) ([]models.EmergencyContact, error)
}

// EmailLogWriter 写入邮件日志
type EmailLogWriter interface {
	Create(ctx context.Context, entry *models.EmailLog) error
}

// Mailer 发送邮件
type Mailer interface {
	Send(ctx context.Context, email Email) (string, error)
}

// WorkerConfig 邮件 Worker 配置
type WorkerConfig struct {
	Stream        string
	ConsumerGroup string
	ConsumerName  string
	From          string
	ReplyTo       string
	BatchSize     int64
	Block         time.Duration
}

// DeliveryResult 单个联系人的发送结果
type DeliveryResult struct {
	Email   string
	Success bool
	Err     error
}

// Worker SOS 邮件 Worker（消费通知 Stream）
type Worker struct {
	client   *redis.Client
	cfg      WorkerConfig
	events   EventReader
	contacts ContactReader
	logs     EmailLogWriter
	mailer   Mailer
	logger   *zap.Logger
	now      func() time.Time
}

// NewWorker 创建邮件 Worker
func NewWorker(
	client *redis.Client,
	cfg WorkerConfig,
	events EventReader,
	contacts ContactReader,
	logs EmailLogWriter,
	mailer Mailer,
	logger *zap.Logger,
) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	return &Worker{
		client:   client,
		cfg:      cfg,
		events:   events,
		contacts: contacts,
		logs:     logs,
		mailer:   mailer,
		logger:   logger,
		now:      time.Now,
	}
}

// Start 启动 Worker，直到 ctx 取消
func (w *Worker) Start(ctx context.Context) error {
	if err := CreateConsumerGroup(ctx, w.client, w.cfg.Stream, w.cfg.ConsumerGroup); err != nil {
		return err
	}

	w.logger.Info("SOS email worker started",
		zap.String("stream", w.cfg.Stream),
		zap.String("group", w.cfg.ConsumerGroup),
		zap.String("consumer", w.cfg.ConsumerName),
	)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("SOS email worker stopped")
			return nil
		default:
		}

		if _, err := w.Poll(ctx); err != nil {
			if ctx.Err() != nil {
				w.logger.Info("SOS email worker stopped")
				return nil
			}
			w.logger.Error("Failed to read notification stream", zap.Error(err))
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

// Poll reads one batch, processes it and acknowledges every message. It
// returns the number of messages handled.
func (w *Worker) Poll(ctx context.Context) (int, error) {
	messages, err := ReadFromStream(ctx, w.client, w.cfg.Stream, w.cfg.ConsumerGroup, w.cfg.ConsumerName, w.cfg.BatchSize, w.cfg.Block)
	if err != nil {
		return 0, err
	}

	for _, msg := range messages {
		if err := w.handleMessage(ctx, msg); err != nil {
			w.logger.Error("Failed to process notification",
				zap.String("stream_id", msg.ID),
				zap.Error(err),
			)
			// 不重试：通知为尽力而为
		}
		w.ack(msg.ID)
	}
	return len(messages), nil
}

// ackTimeout bounds one XACK.
const ackTimeout = 2 * time.Second

// ack uses its own context. Entries left pending are never re-read by ">" reads.
func (w *Worker) ack(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), ackTimeout)
	defer cancel()
	if err := w.client.XAck(ctx, w.cfg.Stream, w.cfg.ConsumerGroup, id).Err(); err != nil {
		w.logger.Warn("Failed to ack notification",
			zap.String("stream_id", id),
			zap.Error(err),
		)
	}
}

func (w *Worker) handleMessage(ctx context.Context, msg StreamMessage) error {
	raw, ok := msg.Values["data"].(string)
	if !ok {
		return fmt.Errorf("message %s has no data field", msg.ID)
	}
	var n Notification
	if err := json.Unmarshal([]byte(raw), &n); err != nil {
		return fmt.Errorf("failed to decode notification: %w", err)
	}
	if n.EventID == "" {
		return fmt.Errorf("notification %s is missing sos_event_id", msg.ID)
	}

	results, err := w.Deliver(ctx, n.EventID)
	if err != nil {
		return err
	}

	sent := 0
	for _, r := range results {
		if r.Success {
			sent++
		}
	}
	w.logger.Info("SOS emails processed",
		zap.String("event_id", n.EventID),
		zap.Int("emails_sent", sent),
		zap.Int("emails_failed", len(results)-sent),
	)
	return nil
}

// Deliver sends the alert for one event to every emergency contact of its
// user and records an email_logs row per contact.
func (w *Worker) Deliver(ctx context.Context, eventID string) ([]DeliveryResult, error) {
	event, err := w.events.Get(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sos event: %w", err)
	}
	user, err := w.contacts.Get(ctx, event.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user: %w", err)
	}
	contacts, err := w.contacts.ListEmergencyContacts(ctx, event.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch emergency contacts: %w", err)
	}

	html, text, err := Render(NewAlertView(user, event))
	if err != nil {
		return nil, err
	}
	subject := Subject(user)

	results := make([]DeliveryResult, 0, len(contacts))
	for _, contact := range contacts {
		entry := &models.EmailLog{
			SOSEventID:     eventID,
			RecipientEmail: contact.Email,
			RecipientName:  contact.Name,
		}

		_, sendErr := w.mailer.Send(ctx, Email{
			From:    w.cfg.From,
			To:      contact.Email,
			Subject: subject,
			HTML:    html,
			Text:    text,
			ReplyTo: w.cfg.ReplyTo,
		})
		if sendErr != nil {
			msg := sendErr.Error()
			entry.Status = models.EmailStatusFailed
			entry.ErrorMessage = &msg
			w.logger.Warn("Failed to send SOS email",
				zap.String("event_id", eventID),
				zap.String("recipient", contact.Email),
				zap.Error(sendErr),
			)
		} else {
			sentAt := w.now().UTC()
			entry.Status = models.EmailStatusSent
			entry.SentAt = &sentAt
		}

		if err := w.logs.Create(ctx, entry); err != nil {
			w.logger.Warn("Failed to write email log",
				zap.String("event_id", eventID),
				zap.String("recipient", contact.Email),
				zap.Error(err),
			)
		}
		results = append(results, DeliveryResult{Email: contact.Email, Success: sendErr == nil, Err: sendErr})
	}

	return results, nil
}
