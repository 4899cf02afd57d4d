package service

import (
	"context"
	"errors"
	"sync"

	"tourguard-safety/internal/consumer"
	"tourguard-safety/internal/emitter"
	"tourguard-safety/internal/geofence"
	"tourguard-safety/internal/models"
	"tourguard-safety/internal/mqtt"

	"go.uber.org/zap"
)

// session 单设备追踪会话
// Samples are processed serially by one goroutine; alert state lives only
// in memory and resets when the session restarts.
type session struct {
	svc     *TrackerService
	target  consumer.Target
	builder *emitter.EventBuilder
	sub     consumer.Subscription

	samples chan models.Position
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once

	// owned by the session goroutine
	alertState geofence.AlertState
	tracker    *models.DwellTracker
}

func newSession(svc *TrackerService, target consumer.Target, device emitter.DeviceInfo, tracker *models.DwellTracker) *session {
	return &session{
		svc:        svc,
		target:     target,
		builder:    emitter.NewEventBuilder(target.UserID, device),
		samples:    make(chan models.Position, svc.opts.SampleBuffer),
		done:       make(chan struct{}),
		alertState: geofence.NewAlertState(),
		tracker:    tracker,
	}
}

func (s *session) start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	go s.run(ctx)
}

// stop cancels the session goroutine and waits for the current cycle.
func (s *session) stop() {
	s.once.Do(func() {
		if s.cancel == nil {
			close(s.done)
			return
		}
		s.cancel()
		<-s.done
	})
}

// offer queues a sample without blocking the provider; a full buffer drops it.
func (s *session) offer(pos models.Position) {
	select {
	case s.samples <- pos:
	default:
		s.svc.logger.Warn("Dropping location sample, session is behind",
			zap.String("user_id", s.target.UserID),
			zap.String("device_id", s.target.DeviceID),
		)
	}
}

func (s *session) onError(err error) {
	level := s.svc.logger.Warn
	if errors.Is(err, consumer.ErrPermissionDenied) {
		level = s.svc.logger.Error
	}
	level("Location acquisition failed, evaluation paused",
		zap.String("user_id", s.target.UserID),
		zap.String("device_id", s.target.DeviceID),
		zap.Error(err),
	)
}

func (s *session) run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case <-ctx.Done():
			return
		case pos := <-s.samples:
			s.process(ctx, pos)
		}
	}
}

// process runs one evaluation cycle: position sync, geofence, device alerts,
// hazard controller, state write-back, asynchronous emission.
func (s *session) process(parent context.Context, pos models.Position) {
	svc := s.svc
	log := svc.logger.With(
		zap.String("user_id", s.target.UserID),
		zap.String("device_id", s.target.DeviceID),
	)
	if !pos.Valid() {
		log.Debug("Skipping invalid location sample")
		return
	}

	ctx, cancel := context.WithTimeout(parent, svc.opts.CycleTimeout)
	defer cancel()

	if err := svc.deps.Users.UpdateLocation(ctx, s.target.UserID, pos.Coordinate(), pos.CapturedAt); err != nil {
		log.Warn("Failed to sync user location", zap.Error(err))
	}

	zones, err := svc.loadZones(ctx, s.target.UserID)
	if err != nil {
		// without zones nothing can be judged; keep alert state as is
		log.Warn("Skipping evaluation, zones unavailable", zap.Error(err))
		return
	}

	res := svc.deps.Engine.Evaluate(pos, zones, s.alertState)
	s.alertState = res.AlertState
	s.notifyTransitions(log, res)

	flags, err := svc.deps.Flags.Load(ctx, s.target.UserID)
	if err != nil {
		log.Warn("Failed to load feature flags, hazards disabled for this sample", zap.Error(err))
		return
	}

	out := svc.deps.Controller.Evaluate(pos, res, flags, s.tracker)
	if out.TrackerChanged {
		if err := svc.deps.Dwell.Save(ctx, s.target.UserID, s.target.DeviceID, s.tracker); err != nil {
			log.Warn("Failed to save dwell state", zap.Error(err))
		}
	}
	for _, trig := range out.Triggers {
		svc.deps.Emitter.EmitAsync(s.builder.FromTrigger(trig), svc.onReport)
	}
}

func (s *session) notifyTransitions(log *zap.Logger, res geofence.Result) {
	for _, t := range res.Entered {
		log.Info("Zone entered",
			zap.String("zone_id", t.Zone.ID),
			zap.String("zone_kind", string(t.Zone.Kind)),
			zap.Float64("distance_meters", t.DistanceMeters),
		)
		if alert, ok := geofence.AlertFor(t); ok {
			s.svc.publish(s.target, mqtt.SuffixAlert, alert)
		}
	}
	// 一个样本最多一次震动提示
	if res.DangerEntered() {
		s.svc.publish(s.target, mqtt.SuffixCue, cueMessage{
			Vibrate: geofence.DangerVibrationPattern,
			Sound:   "alarm",
			ZoneID:  firstDangerEntry(res.Entered),
		})
	}
	for _, t := range res.Exited {
		log.Info("Zone exited",
			zap.String("zone_id", t.Zone.ID),
			zap.Float64("distance_meters", t.DistanceMeters),
		)
	}
}

func firstDangerEntry(entered []geofence.Transition) string {
	for _, t := range entered {
		if t.Zone.Kind == models.ZoneKindDanger {
			return t.Zone.ID
		}
	}
	return ""
}
