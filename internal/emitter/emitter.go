package emitter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tourguard-safety/internal/models"

	"go.uber.org/zap"
)

// Sink 紧急事件持久化（只插入，不 upsert）
type Sink interface {
	Create(ctx context.Context, event *models.EmergencyEvent) (string, error)
}

// Dispatcher 通知分发
type Dispatcher interface {
	Notify(ctx context.Context, eventID, summary string) error
}

// Report 两阶段发射结果，每阶段独立报告
type Report struct {
	EventID    string
	Kind       models.EmergencyKind
	Persisted  bool
	PersistErr error
	Notified   bool
	NotifyErr  error
}

// Succeeded reports whether the event reached the sink.
func (r Report) Succeeded() bool {
	return r.Persisted
}

// DefaultTimeout bounds one asynchronous emission.
const DefaultTimeout = 10 * time.Second

// Emitter 紧急事件发射器：persist -> notify
type Emitter struct {
	sink       Sink
	dispatcher Dispatcher
	timeout    time.Duration
	logger     *zap.Logger

	wg sync.WaitGroup
}

// NewEmitter 创建发射器. dispatcher may be nil, in which case the notify phase is skipped.
func NewEmitter(sink Sink, dispatcher Dispatcher, timeout time.Duration, logger *zap.Logger) *Emitter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Emitter{
		sink:       sink,
		dispatcher: dispatcher,
		timeout:    timeout,
		logger:     logger,
	}
}

// Emit persists the event and then notifies. A persistence failure stops
// the protocol for this event; a notification failure never undoes the
// persisted record. Neither phase is retried.
func (e *Emitter) Emit(ctx context.Context, event *models.EmergencyEvent) Report {
	rep := Report{Kind: event.Kind}

	id, err := e.sink.Create(ctx, event)
	if err == nil && id == "" {
		err = errors.New("sink returned empty event id")
	}
	if err != nil {
		rep.PersistErr = fmt.Errorf("failed to persist emergency event: %w", err)
		e.logger.Error("Failed to persist emergency event",
			zap.String("user_id", event.UserID),
			zap.String("kind", string(event.Kind)),
			zap.Error(err),
		)
		return rep
	}
	rep.EventID = id
	rep.Persisted = true
	e.logger.Info("Emergency event created",
		zap.String("event_id", id),
		zap.String("user_id", event.UserID),
		zap.String("kind", string(event.Kind)),
	)

	if e.dispatcher == nil {
		return rep
	}
	if err := e.dispatcher.Notify(ctx, id, event.Summary()); err != nil {
		rep.NotifyErr = fmt.Errorf("failed to dispatch notification: %w", err)
		e.logger.Warn("Failed to dispatch emergency notification",
			zap.String("event_id", id),
			zap.Error(err),
		)
		return rep
	}
	rep.Notified = true
	return rep
}

// EmitAsync runs Emit in the background with its own bounded context so the
// caller's cycle never waits on I/O. done, if set, receives the report.
func (e *Emitter) EmitAsync(event *models.EmergencyEvent, done func(Report)) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
		defer cancel()

		rep := e.Emit(ctx, event)
		if done != nil {
			done(rep)
		}
	}()
}

// Wait blocks until every in-flight emission has finished.
func (e *Emitter) Wait() {
	e.wg.Wait()
}
