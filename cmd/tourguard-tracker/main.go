package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tourguard-safety/internal/config"
	"tourguard-safety/internal/consumer"
	"tourguard-safety/internal/emitter"
	"tourguard-safety/internal/evaluator"
	"tourguard-safety/internal/geofence"
	"tourguard-safety/internal/logger"
	"tourguard-safety/internal/mqtt"
	"tourguard-safety/internal/notifier"
	"tourguard-safety/internal/repository"
	"tourguard-safety/internal/service"

	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const serviceName = "tourguard-tracker"

func main() {
	// 1. 加载 .env（可选）和配置
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Failed to read .env: %v\n", err)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	controller := evaluator.NewController(cfg.Hazard.Thresholds, log)
	th := controller.Thresholds()
	log.Info("Starting tracker",
		zap.String("hazard_profile", cfg.Hazard.Profile),
		zap.Duration("static_threshold", th.StaticThreshold),
		zap.Duration("static_cooldown", th.StaticCooldown),
		zap.Duration("zone_threshold", th.ZoneThreshold),
		zap.Duration("zone_cooldown", th.ZoneCooldown),
		zap.Float64("movement_radius_meters", th.MovementRadiusMeters),
	)

	// 3. 连接 PostgreSQL
	db, err := repository.NewPostgresDB(&cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// 4. 连接 Redis
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = redisClient.Ping(pingCtx).Err()
	pingCancel()
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	// 5. 连接 MQTT
	mqttClient, err := mqtt.NewClient(&cfg.MQTT, log)
	if err != nil {
		log.Fatal("Failed to connect to MQTT broker", zap.Error(err))
	}
	defer mqttClient.Disconnect()

	// 6. 组装组件
	zonesRepo := repository.NewZoneRepository(db, log)
	incidentsRepo := repository.NewIncidentRepository(db, log)
	eventsRepo := repository.NewEmergencyEventRepository(db, log)
	usersRepo := repository.NewUserRepository(db, log)
	emailLogsRepo := repository.NewEmailLogRepository(db, log)

	kv := consumer.NewRedisKV(redisClient)
	topics := mqtt.Topics{Prefix: cfg.Tracker.TopicPrefix}

	emit := emitter.NewEmitter(
		eventsRepo,
		notifier.NewStreamDispatcher(redisClient, cfg.Notifier.Stream, log),
		cfg.Tracker.EmitTimeout,
		log,
	)

	deps := service.Deps{
		Provider:   consumer.NewMQTTLocationProvider(mqttClient, topics, cfg.MQTT.QoS, log),
		Broker:     mqttClient,
		Zones:      consumer.NewCachedZoneStore(zonesRepo, kv, cfg.Tracker.Cache.ZoneKeyPrefix, cfg.Tracker.Cache.ZoneTTL, log),
		Flags:      consumer.NewFlagStore(kv, cfg.Tracker.Cache.FlagsKeyPrefix, log),
		Dwell:      consumer.NewStateManager(kv, cfg.Tracker.Cache.DwellKeyPrefix, cfg.Tracker.Cache.DwellTTL, log),
		Users:      usersRepo,
		Emitter:    emit,
		Engine:     geofence.NewEngine(log),
		Controller: controller,
	}
	if cfg.Tracker.IncidentZones {
		deps.Incidents = incidentsRepo
	}

	tracker := service.NewTrackerService(deps, service.Options{
		Topics: topics,
		QoS:    cfg.MQTT.QoS,
		Location: consumer.Options{
			HighAccuracy: cfg.Tracker.Location.HighAccuracy,
			Timeout:      cfg.Tracker.Location.Timeout,
			MaxAge:       cfg.Tracker.Location.MaxAge,
		},
		IncidentZones:        cfg.Tracker.IncidentZones,
		IncidentRadiusMeters: cfg.Tracker.IncidentRadiusMeters,
		IncidentWindow:       cfg.Tracker.IncidentWindow,
		SampleBuffer:         cfg.Tracker.SampleBuffer,
		CycleTimeout:         cfg.Tracker.EmitTimeout,
	}, log)

	worker := notifier.NewWorker(
		redisClient,
		notifier.WorkerConfig{
			Stream:        cfg.Notifier.Stream,
			ConsumerGroup: cfg.Notifier.ConsumerGroup,
			ConsumerName:  cfg.Notifier.ConsumerName,
			From:          cfg.Notifier.FromAddress,
			ReplyTo:       cfg.Notifier.ReplyTo,
		},
		eventsRepo,
		usersRepo,
		emailLogsRepo,
		notifier.NewResendClient(
			cfg.Notifier.ResendBaseURL,
			cfg.Notifier.ResendAPIKey,
			cfg.Notifier.HTTPTimeout,
			cfg.Notifier.RetryCount,
			log,
		),
		log,
	)
	if cfg.Notifier.ResendAPIKey == "" {
		log.Warn("RESEND_API_KEY not set, SOS emails will be logged as failed")
	}

	// 7. 创建上下文（支持优雅关闭）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 8. 启动服务
	errChan := make(chan error, 2)
	go func() {
		if err := tracker.Start(ctx); err != nil {
			errChan <- fmt.Errorf("tracker: %w", err)
		}
	}()
	go func() {
		if err := worker.Start(ctx); err != nil {
			errChan <- fmt.Errorf("email worker: %w", err)
		}
	}()

	// 9. 等待信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("Received signal, shutting down",
			zap.String("signal", sig.String()),
		)
	case err := <-errChan:
		log.Error("Service error", zap.Error(err))
	}

	cancel()
	tracker.Stop()
	log.Info("Tracker stopped")
}
