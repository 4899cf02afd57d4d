package consumer

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"tourguard-safety/internal/models"
	"tourguard-safety/internal/mqtt"

	"go.uber.org/zap"
)

// Location errors delivered through the error callback.
var (
	ErrLocationTimeout     = errors.New("location request timed out")
	ErrPermissionDenied    = errors.New("location permission denied")
	ErrPositionUnavailable = errors.New("position unavailable")
	ErrInvalidSample       = errors.New("invalid location sample")

	ErrAlreadySubscribed   = errors.New("target already subscribed")
	ErrUnknownSubscription = errors.New("unknown subscription")
)

// SuffixLocationOptions carries the requested options to the device (retained).
const SuffixLocationOptions = "location/options"

// Options 定位请求选项
type Options struct {
	HighAccuracy bool
	// Timeout is the longest gap between samples before ErrLocationTimeout
	// is reported. Zero disables the watchdog.
	Timeout time.Duration
	// MaxAge rejects samples older than this. Zero accepts only samples
	// newer than the last one delivered.
	MaxAge time.Duration
}

// Target 订阅目标（用户 + 设备）
type Target struct {
	UserID   string
	DeviceID string
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	ID     uint64
	Target Target
}

// PositionCallback receives accepted samples in capture order.
type PositionCallback func(models.Position)

// ErrorCallback receives acquisition errors.
type ErrorCallback func(error)

// LocationProvider 定位数据源
type LocationProvider interface {
	Subscribe(target Target, onPosition PositionCallback, onError ErrorCallback, opts Options) (Subscription, error)
	Unsubscribe(sub Subscription) error
}

// locationMessage is the device payload on {prefix}/{user}/{device}/location.
type locationMessage struct {
	Latitude   float64 `json:"latitude"`
	Longitude  float64 `json:"longitude"`
	Accuracy   float64 `json:"accuracy"`
	CapturedAt int64   `json:"captured_at"` // unix ms
	Error      string  `json:"error,omitempty"`
}

type optionsMessage struct {
	HighAccuracy bool  `json:"high_accuracy"`
	TimeoutMs    int64 `json:"timeout_ms"`
	MaximumAgeMs int64 `json:"maximum_age_ms"`
}

type subscription struct {
	id         uint64
	target     Target
	topic      string
	opts       Options
	onPosition PositionCallback
	onError    ErrorCallback

	mu       sync.Mutex
	active   bool
	lastSeen int64
	watchdog *time.Timer
}

// MQTTLocationProvider 基于 MQTT 的定位数据源
type MQTTLocationProvider struct {
	broker mqtt.Broker
	topics mqtt.Topics
	qos    byte
	logger *zap.Logger
	now    func() time.Time

	mu     sync.Mutex
	nextID uint64
	subs   map[uint64]*subscription
	byKey  map[Target]uint64
}

// NewMQTTLocationProvider 创建定位数据源
func NewMQTTLocationProvider(broker mqtt.Broker, topics mqtt.Topics, qos byte, logger *zap.Logger) *MQTTLocationProvider {
	return &MQTTLocationProvider{
		broker: broker,
		topics: topics,
		qos:    qos,
		logger: logger,
		now:    time.Now,
		subs:   make(map[uint64]*subscription),
		byKey:  make(map[Target]uint64),
	}
}

// Subscribe starts streaming samples for target. Only one subscription per
// target may be active at a time.
func (p *MQTTLocationProvider) Subscribe(target Target, onPosition PositionCallback, onError ErrorCallback, opts Options) (Subscription, error) {
	if target.UserID == "" || target.DeviceID == "" {
		return Subscription{}, fmt.Errorf("user_id and device_id are required")
	}

	p.mu.Lock()
	if _, exists := p.byKey[target]; exists {
		p.mu.Unlock()
		return Subscription{}, fmt.Errorf("%s/%s: %w", target.UserID, target.DeviceID, ErrAlreadySubscribed)
	}
	p.nextID++
	sub := &subscription{
		id:         p.nextID,
		target:     target,
		topic:      p.topics.Device(target.UserID, target.DeviceID, mqtt.SuffixLocation),
		opts:       opts,
		onPosition: onPosition,
		onError:    onError,
		active:     true,
	}
	p.subs[sub.id] = sub
	p.byKey[target] = sub.id
	p.mu.Unlock()

	if err := p.broker.Subscribe(sub.topic, p.qos, func(_ string, payload []byte) error {
		return p.handle(sub, payload)
	}); err != nil {
		p.remove(sub)
		return Subscription{}, err
	}

	p.publishOptions(target, opts)

	if opts.Timeout > 0 {
		sub.mu.Lock()
		sub.watchdog = time.AfterFunc(opts.Timeout, func() { p.timeout(sub) })
		sub.mu.Unlock()
	}

	p.logger.Info("Location subscription started",
		zap.String("user_id", target.UserID),
		zap.String("device_id", target.DeviceID),
		zap.Duration("timeout", opts.Timeout),
	)
	return Subscription{ID: sub.id, Target: target}, nil
}

// Unsubscribe stops the stream and the watchdog. Callbacks are not invoked
// after it returns.
func (p *MQTTLocationProvider) Unsubscribe(s Subscription) error {
	p.mu.Lock()
	sub, ok := p.subs[s.ID]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("subscription %d: %w", s.ID, ErrUnknownSubscription)
	}

	sub.mu.Lock()
	sub.active = false
	if sub.watchdog != nil {
		sub.watchdog.Stop()
	}
	sub.mu.Unlock()

	p.remove(sub)

	if err := p.broker.Unsubscribe(sub.topic); err != nil {
		return err
	}
	p.logger.Info("Location subscription stopped",
		zap.String("user_id", sub.target.UserID),
		zap.String("device_id", sub.target.DeviceID),
	)
	return nil
}

// Active reports the number of live subscriptions.
func (p *MQTTLocationProvider) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

func (p *MQTTLocationProvider) remove(sub *subscription) {
	p.mu.Lock()
	delete(p.subs, sub.id)
	if p.byKey[sub.target] == sub.id {
		delete(p.byKey, sub.target)
	}
	p.mu.Unlock()
}

func (p *MQTTLocationProvider) publishOptions(target Target, opts Options) {
	payload, err := json.Marshal(optionsMessage{
		HighAccuracy: opts.HighAccuracy,
		TimeoutMs:    opts.Timeout.Milliseconds(),
		MaximumAgeMs: opts.MaxAge.Milliseconds(),
	})
	if err != nil {
		return
	}
	topic := p.topics.Device(target.UserID, target.DeviceID, SuffixLocationOptions)
	if err := p.broker.Publish(topic, p.qos, true, payload); err != nil {
		p.logger.Warn("Failed to publish location options",
			zap.String("topic", topic),
			zap.Error(err),
		)
	}
}

func (p *MQTTLocationProvider) handle(sub *subscription, payload []byte) error {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if !sub.active {
		return nil
	}

	var msg locationMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		sub.deliverError(fmt.Errorf("%w: %v", ErrInvalidSample, err))
		return nil
	}
	if msg.Error != "" {
		sub.deliverError(deviceError(msg.Error))
		return nil
	}

	if msg.CapturedAt <= sub.lastSeen {
		p.logger.Debug("Dropping stale or replayed location sample",
			zap.String("device_id", sub.target.DeviceID),
			zap.Int64("captured_at", msg.CapturedAt),
			zap.Int64("last_seen", sub.lastSeen),
		)
		return nil
	}
	capturedAt := time.UnixMilli(msg.CapturedAt).UTC()
	if sub.opts.MaxAge > 0 && p.now().Sub(capturedAt) > sub.opts.MaxAge {
		p.logger.Debug("Dropping location sample older than max age",
			zap.String("device_id", sub.target.DeviceID),
			zap.Time("captured_at", capturedAt),
		)
		return nil
	}
	sub.lastSeen = msg.CapturedAt
	if sub.watchdog != nil {
		sub.watchdog.Reset(sub.opts.Timeout)
	}

	if sub.onPosition != nil {
		sub.onPosition(models.Position{
			Latitude:       msg.Latitude,
			Longitude:      msg.Longitude,
			CapturedAt:     capturedAt,
			AccuracyMeters: msg.Accuracy,
		})
	}
	return nil
}

func (p *MQTTLocationProvider) timeout(sub *subscription) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	if !sub.active {
		return
	}
	p.logger.Warn("Location sample timeout",
		zap.String("user_id", sub.target.UserID),
		zap.String("device_id", sub.target.DeviceID),
	)
	sub.deliverError(ErrLocationTimeout)
	sub.watchdog.Reset(sub.opts.Timeout)
}

func (s *subscription) deliverError(err error) {
	if s.onError != nil {
		s.onError(err)
	}
}

func deviceError(code string) error {
	switch code {
	case "permission_denied":
		return ErrPermissionDenied
	case "timeout":
		return ErrLocationTimeout
	case "position_unavailable":
		return ErrPositionUnavailable
	}
	return fmt.Errorf("%w: device error %q", ErrPositionUnavailable, code)
}
