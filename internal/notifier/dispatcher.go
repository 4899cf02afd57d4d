package notifier

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// Notification is the stream payload for one emergency event.
type Notification struct {
	EventID string `json:"sos_event_id"`
	Summary string `json:"summary"`
}

// StreamDispatcher 通知分发器：写入 Redis Stream，由邮件 Worker 异步消费
type StreamDispatcher struct {
	client *redis.Client
	stream string
	logger *zap.Logger
}

// NewStreamDispatcher 创建通知分发器
func NewStreamDispatcher(client *redis.Client, stream string, logger *zap.Logger) *StreamDispatcher {
	return &StreamDispatcher{
		client: client,
		stream: stream,
		logger: logger,
	}
}

// Notify 发布通知
func (d *StreamDispatcher) Notify(ctx context.Context, eventID, summary string) error {
	id, err := PublishJSONToStream(ctx, d.client, d.stream, Notification{
		EventID: eventID,
		Summary: summary,
	})
	if err != nil {
		return fmt.Errorf("failed to publish notification: %w", err)
	}
	d.logger.Debug("Notification queued",
		zap.String("event_id", eventID),
		zap.String("stream_id", id),
	)
	return nil
}
