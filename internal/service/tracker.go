package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"tourguard-safety/internal/consumer"
	"tourguard-safety/internal/emitter"
	"tourguard-safety/internal/evaluator"
	"tourguard-safety/internal/geofence"
	"tourguard-safety/internal/models"
	"tourguard-safety/internal/mqtt"

	"go.uber.org/zap"
)

// FlagStore 用户 AI 安全开关（每个周期读取一次，设备设置页写入）
type FlagStore interface {
	Load(ctx context.Context, userID string) (models.FeatureFlags, error)
	Save(ctx context.Context, userID string, flags models.FeatureFlags) error
}

// zoneInvalidator is implemented by zone stores that cache per user.
type zoneInvalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// DwellStore 停留状态存储
type DwellStore interface {
	Load(ctx context.Context, userID, deviceID string) (*models.DwellTracker, error)
	Save(ctx context.Context, userID, deviceID string, tracker *models.DwellTracker) error
}

// LocationSink 记录用户最新位置
type LocationSink interface {
	UpdateLocation(ctx context.Context, userID string, pos models.Coordinate, at time.Time) error
}

// Emitter 紧急事件发射
type Emitter interface {
	EmitAsync(event *models.EmergencyEvent, done func(emitter.Report))
	Wait()
}

// ErrStopped is returned when a session is started after Stop.
var ErrStopped = errors.New("tracker service is stopped")

// Deps 追踪服务依赖
type Deps struct {
	Provider   consumer.LocationProvider
	Broker     mqtt.Broker
	Zones      consumer.ZoneStore
	Incidents  IncidentSource // optional
	Flags      FlagStore
	Dwell      DwellStore
	Users      LocationSink
	Emitter    Emitter
	Engine     *geofence.Engine
	Controller *evaluator.Controller
}

// Options 追踪服务选项
type Options struct {
	Topics   mqtt.Topics
	QoS      byte
	Location consumer.Options

	IncidentZones        bool
	IncidentRadiusMeters float64
	IncidentWindow       time.Duration
	IncidentRefresh      time.Duration

	SampleBuffer int
	CycleTimeout time.Duration
}

// TrackerService 位置追踪服务：会话管理 + 每样本评估周期 + 手动 SOS
type TrackerService struct {
	deps   Deps
	opts   Options
	logger *zap.Logger

	incidents *incidentZoneCache

	mu       sync.Mutex
	sessions map[consumer.Target]*session
	closed   bool

	// best-effort device publishes
	publishes sync.WaitGroup
}

// NewTrackerService 创建追踪服务
func NewTrackerService(deps Deps, opts Options, logger *zap.Logger) *TrackerService {
	if opts.SampleBuffer <= 0 {
		opts.SampleBuffer = 16
	}
	if opts.CycleTimeout <= 0 {
		opts.CycleTimeout = 10 * time.Second
	}
	if opts.IncidentRefresh <= 0 {
		opts.IncidentRefresh = time.Minute
	}
	s := &TrackerService{
		deps:     deps,
		opts:     opts,
		logger:   logger,
		sessions: make(map[consumer.Target]*session),
	}
	if opts.IncidentZones && deps.Incidents != nil {
		s.incidents = &incidentZoneCache{
			source: deps.Incidents,
			radius: opts.IncidentRadiusMeters,
			window: opts.IncidentWindow,
			ttl:    opts.IncidentRefresh,
			now:    time.Now,
		}
	}
	return s
}

// Start subscribes to device control topics and blocks until ctx is done.
func (s *TrackerService) Start(ctx context.Context) error {
	handlers := map[string]mqtt.MessageHandler{
		s.opts.Topics.Wildcard(mqtt.SuffixSession): func(topic string, payload []byte) error {
			return s.handleSessionMessage(ctx, topic, payload)
		},
		s.opts.Topics.Wildcard(mqtt.SuffixSOS): func(topic string, payload []byte) error {
			return s.handleSOSMessage(topic, payload)
		},
		s.opts.Topics.Wildcard(SuffixMap): func(topic string, payload []byte) error {
			return s.handleMapQuery(ctx, topic, payload)
		},
		s.opts.Topics.Wildcard(SuffixFlags): func(topic string, payload []byte) error {
			return s.handleFlagsMessage(ctx, topic, payload)
		},
	}
	for topic, h := range handlers {
		if err := s.deps.Broker.Subscribe(topic, s.opts.QoS, h); err != nil {
			return fmt.Errorf("failed to subscribe %s: %w", topic, err)
		}
	}

	s.logger.Info("Tracker service started",
		zap.String("topic_prefix", s.opts.Topics.Prefix),
	)

	<-ctx.Done()
	topics := make([]string, 0, len(handlers))
	for topic := range handlers {
		topics = append(topics, topic)
	}
	if err := s.deps.Broker.Unsubscribe(topics...); err != nil {
		s.logger.Warn("Failed to unsubscribe control topics", zap.Error(err))
	}
	return nil
}

// StartSession begins tracking one device. Starting an active session is a no-op.
func (s *TrackerService) StartSession(ctx context.Context, target consumer.Target, device emitter.DeviceInfo) error {
	s.mu.Lock()
	_, active := s.sessions[target]
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrStopped
	}
	if active {
		return nil
	}

	tracker, err := s.deps.Dwell.Load(ctx, target.UserID, target.DeviceID)
	if err != nil {
		s.logger.Warn("Failed to load dwell state, starting fresh",
			zap.String("user_id", target.UserID),
			zap.String("device_id", target.DeviceID),
			zap.Error(err),
		)
		tracker = &models.DwellTracker{}
	}
	if inv, ok := s.deps.Zones.(zoneInvalidator); ok {
		// 新会话从最新区域开始
		if err := inv.Invalidate(ctx, target.UserID); err != nil {
			s.logger.Warn("Failed to invalidate zone cache",
				zap.String("user_id", target.UserID),
				zap.Error(err),
			)
		}
	}
	sess := newSession(s, target, device, tracker)

	sub, err := s.deps.Provider.Subscribe(target, sess.offer, sess.onError, s.opts.Location)
	if err != nil {
		if errors.Is(err, consumer.ErrAlreadySubscribed) {
			// a concurrent start won
			return nil
		}
		return fmt.Errorf("failed to subscribe location: %w", err)
	}
	sess.sub = sub

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = s.deps.Provider.Unsubscribe(sub)
		return ErrStopped
	}
	s.sessions[target] = sess
	sess.start(ctx)
	s.mu.Unlock()

	s.logger.Info("Tracking session started",
		zap.String("user_id", target.UserID),
		zap.String("device_id", target.DeviceID),
	)
	return nil
}

// StopSession ends tracking for one device and releases its subscription.
func (s *TrackerService) StopSession(target consumer.Target) error {
	s.mu.Lock()
	sess, ok := s.sessions[target]
	delete(s.sessions, target)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return s.teardown(sess)
}

func (s *TrackerService) teardown(sess *session) error {
	err := s.deps.Provider.Unsubscribe(sess.sub)
	sess.stop()
	if err != nil {
		s.logger.Warn("Failed to unsubscribe location",
			zap.String("user_id", sess.target.UserID),
			zap.String("device_id", sess.target.DeviceID),
			zap.Error(err),
		)
	}
	s.logger.Info("Tracking session stopped",
		zap.String("user_id", sess.target.UserID),
		zap.String("device_id", sess.target.DeviceID),
	)
	return err
}

// ActiveSessions 当前会话数
func (s *TrackerService) ActiveSessions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Stop tears down every session and waits for in-flight emissions.
func (s *TrackerService) Stop() {
	s.mu.Lock()
	s.closed = true
	sessions := make([]*session, 0, len(s.sessions))
	for t, sess := range s.sessions {
		sessions = append(sessions, sess)
		delete(s.sessions, t)
	}
	s.mu.Unlock()

	for _, sess := range sessions {
		_ = s.teardown(sess)
	}
	s.deps.Emitter.Wait()
	s.publishes.Wait()
	s.logger.Info("Tracker service stopped")
}

// TriggerManualSOS emits a manual emergency event through the same
// persist-then-notify path as automatic hazards.
func (s *TrackerService) TriggerManualSOS(target consumer.Target, device emitter.DeviceInfo, emergencyType models.EmergencyType, description string, pos *models.Coordinate) {
	builder := emitter.NewEventBuilder(target.UserID, device)
	ev := builder.Manual(emergencyType, description, pos, time.Now().UTC())
	s.logger.Info("Manual SOS received",
		zap.String("user_id", target.UserID),
		zap.String("device_id", target.DeviceID),
		zap.String("emergency_type", string(emergencyType)),
	)
	s.deps.Emitter.EmitAsync(ev, s.onReport)
}

// ZoneStatus classifies a position against the user's zones for display.
// It never changes alert state.
func (s *TrackerService) ZoneStatus(ctx context.Context, userID string, pos models.Position) ([]geofence.Containment, error) {
	zones, err := s.loadZones(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.deps.Engine.Classify(pos, zones), nil
}

func (s *TrackerService) loadZones(ctx context.Context, userID string) ([]models.Zone, error) {
	zones, err := s.deps.Zones.List(ctx, models.ZoneScope{UserID: userID, Global: true})
	if err != nil {
		return nil, fmt.Errorf("failed to list zones: %w", err)
	}
	if s.incidents == nil {
		return zones, nil
	}
	extra, err := s.incidents.get(ctx)
	if err != nil {
		if extra == nil {
			return nil, fmt.Errorf("failed to load incident zones: %w", err)
		}
		s.logger.Warn("Incident zone refresh failed, using last known zones",
			zap.Int("incident_zones", len(extra)),
			zap.Error(err),
		)
	}
	out := make([]models.Zone, 0, len(zones)+len(extra))
	out = append(out, zones...)
	return append(out, extra...), nil
}

func (s *TrackerService) onReport(rep emitter.Report) {
	fields := []zap.Field{
		zap.String("kind", string(rep.Kind)),
		zap.String("event_id", rep.EventID),
		zap.Bool("persisted", rep.Persisted),
		zap.Bool("notified", rep.Notified),
	}
	if !rep.Succeeded() {
		s.logger.Warn("Emergency event not persisted", append(fields, zap.Error(rep.PersistErr))...)
		return
	}
	if rep.NotifyErr != nil {
		fields = append(fields, zap.NamedError("notify_error", rep.NotifyErr))
	}
	s.logger.Info("Emergency event emitted", fields...)
}

// publish sends a best-effort message to one device without blocking the caller.
func (s *TrackerService) publish(target consumer.Target, suffix string, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	topic := s.opts.Topics.Device(target.UserID, target.DeviceID, suffix)
	s.publishes.Add(1)
	go func() {
		defer s.publishes.Done()
		if err := s.deps.Broker.Publish(topic, s.opts.QoS, false, payload); err != nil {
			s.logger.Warn("Failed to publish to device",
				zap.String("topic", topic),
				zap.Error(err),
			)
		}
	}()
}

// ============================================
// MQTT handlers
// ============================================

// SuffixMap is the map-view query topic; replies go to SuffixMapZones.
// SuffixFlags carries the user's AI safety settings.
const (
	SuffixMap      = "map"
	SuffixMapZones = "map/zones"
	SuffixFlags    = "flags"
)

func (s *TrackerService) parseTarget(topic string) (consumer.Target, bool) {
	userID, deviceID, _, ok := s.opts.Topics.Parse(topic)
	if !ok {
		return consumer.Target{}, false
	}
	return consumer.Target{UserID: userID, DeviceID: deviceID}, true
}

func (s *TrackerService) handleSessionMessage(ctx context.Context, topic string, payload []byte) error {
	target, ok := s.parseTarget(topic)
	if !ok {
		return fmt.Errorf("unexpected session topic %s", topic)
	}
	var msg sessionMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("failed to decode session message: %w", err)
	}

	switch msg.State {
	case SessionStart:
		return s.StartSession(ctx, target, emitter.DeviceInfo{
			DeviceID:  target.DeviceID,
			UserAgent: msg.UserAgent,
			Platform:  msg.Platform,
		})
	case SessionStop:
		return s.StopSession(target)
	}
	return fmt.Errorf("unknown session state %q", msg.State)
}

func (s *TrackerService) handleSOSMessage(topic string, payload []byte) error {
	target, ok := s.parseTarget(topic)
	if !ok {
		return fmt.Errorf("unexpected sos topic %s", topic)
	}
	var msg sosMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("failed to decode sos message: %w", err)
	}
	s.TriggerManualSOS(target, emitter.DeviceInfo{
		DeviceID:  target.DeviceID,
		UserAgent: msg.UserAgent,
		Platform:  msg.Platform,
	}, models.ParseEmergencyType(msg.EmergencyType), msg.Description, msg.position())
	return nil
}

func (s *TrackerService) handleMapQuery(ctx context.Context, topic string, payload []byte) error {
	target, ok := s.parseTarget(topic)
	if !ok {
		return fmt.Errorf("unexpected map topic %s", topic)
	}
	var q mapQuery
	if err := json.Unmarshal(payload, &q); err != nil {
		return fmt.Errorf("failed to decode map query: %w", err)
	}

	qctx, cancel := context.WithTimeout(ctx, s.opts.CycleTimeout)
	defer cancel()
	status, err := s.ZoneStatus(qctx, target.UserID, q.position())
	if err != nil {
		return err
	}
	s.publish(target, SuffixMapZones, zoneStatuses(status))
	return nil
}

func (s *TrackerService) handleFlagsMessage(ctx context.Context, topic string, payload []byte) error {
	target, ok := s.parseTarget(topic)
	if !ok {
		return fmt.Errorf("unexpected flags topic %s", topic)
	}
	var flags models.FeatureFlags
	if err := json.Unmarshal(payload, &flags); err != nil {
		return fmt.Errorf("failed to decode flags message: %w", err)
	}

	sctx, cancel := context.WithTimeout(ctx, s.opts.CycleTimeout)
	defer cancel()
	if err := s.deps.Flags.Save(sctx, target.UserID, flags); err != nil {
		return fmt.Errorf("failed to save flags: %w", err)
	}
	s.logger.Info("AI safety settings updated",
		zap.String("user_id", target.UserID),
		zap.Bool("ai_sos_enabled", flags.Enabled),
	)
	return nil
}
