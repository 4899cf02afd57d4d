package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"tourguard-safety/internal/evaluator"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
	MaxConns int
	MaxIdle  int
}

// GetDSN 获取数据库连接字符串
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis配置
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// MQTTConfig MQTT配置
type MQTTConfig struct {
	Broker   string
	ClientID string
	Username string
	Password string
	QoS      byte
}

// Config 追踪服务配置
type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	MQTT     MQTTConfig

	Tracker struct {
		TopicPrefix string // MQTT 主题前缀，如 "tourguard"

		// Redis 键
		Cache struct {
			DwellKeyPrefix string        // 停留状态键前缀，如 "tourguard:dwell:"
			DwellTTL       time.Duration // 停留状态 TTL，0 表示不过期
			FlagsKeyPrefix string        // 功能开关键前缀，如 "tourguard:flags:"
			ZoneKeyPrefix  string        // 区域缓存键前缀，如 "tourguard:zones:"
			ZoneTTL        time.Duration // 区域缓存 TTL，默认 60秒
		}

		// 定位请求选项
		Location struct {
			HighAccuracy bool
			Timeout      time.Duration // 默认 10秒
			MaxAge       time.Duration // 默认 0（不使用缓存位置）
		}

		IncidentZones        bool          // 是否将近期严重事件作为危险区域
		IncidentRadiusMeters float64       // 默认 500
		IncidentWindow       time.Duration // 默认 24小时

		EmitTimeout  time.Duration // 单次事件发射超时，默认 10秒
		SampleBuffer int           // 每个会话的样本缓冲
	}

	Hazard struct {
		Profile    string
		Thresholds evaluator.Thresholds
	}

	Notifier struct {
		Stream        string // Redis Stream 名称
		ConsumerGroup string
		ConsumerName  string

		ResendBaseURL string
		ResendAPIKey  string
		FromAddress   string
		ReplyTo       string
		HTTPTimeout   time.Duration
		RetryCount    int
	}

	Log struct {
		Level  string
		Format string
	}
}

// Load 加载配置
func Load() (*Config, error) {
	cfg := &Config{}

	// 从环境变量加载（默认值）
	cfg.Database.Host = getEnv("DB_HOST", "localhost")
	cfg.Database.Port = getEnvInt("DB_PORT", 5432)
	cfg.Database.User = getEnv("DB_USER", "postgres")
	cfg.Database.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.Database.Database = getEnv("DB_NAME", "tourguard")
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", "disable")
	cfg.Database.MaxConns = getEnvInt("DB_MAX_CONNS", 10)
	cfg.Database.MaxIdle = getEnvInt("DB_MAX_IDLE", 5)

	cfg.Redis.Addr = getEnv("REDIS_ADDR", "localhost:6379")
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", "")
	cfg.Redis.DB = getEnvInt("REDIS_DB", 0)

	cfg.MQTT.Broker = getEnv("MQTT_BROKER", "tcp://localhost:1883")
	cfg.MQTT.ClientID = getEnv("MQTT_CLIENT_ID", "tourguard-tracker")
	cfg.MQTT.Username = getEnv("MQTT_USERNAME", "")
	cfg.MQTT.Password = getEnv("MQTT_PASSWORD", "")
	cfg.MQTT.QoS = byte(getEnvInt("MQTT_QOS", 1))

	cfg.Tracker.TopicPrefix = getEnv("TRACKER_TOPIC_PREFIX", "tourguard")
	cfg.Tracker.Cache.DwellKeyPrefix = getEnv("CACHE_DWELL_PREFIX", "tourguard:dwell:")
	cfg.Tracker.Cache.FlagsKeyPrefix = getEnv("CACHE_FLAGS_PREFIX", "tourguard:flags:")
	cfg.Tracker.Cache.ZoneKeyPrefix = getEnv("CACHE_ZONE_PREFIX", "tourguard:zones:")

	var err error
	if cfg.Tracker.Cache.DwellTTL, err = getEnvDuration("CACHE_DWELL_TTL", 0); err != nil {
		return nil, err
	}
	if cfg.Tracker.Cache.ZoneTTL, err = getEnvDuration("CACHE_ZONE_TTL", 60*time.Second); err != nil {
		return nil, err
	}

	cfg.Tracker.Location.HighAccuracy = getEnvBool("LOCATION_HIGH_ACCURACY", true)
	if cfg.Tracker.Location.Timeout, err = getEnvDuration("LOCATION_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.Tracker.Location.MaxAge, err = getEnvDuration("LOCATION_MAX_AGE", 0); err != nil {
		return nil, err
	}

	cfg.Tracker.IncidentZones = getEnvBool("TRACKER_INCIDENT_ZONES", true)
	cfg.Tracker.IncidentRadiusMeters = getEnvFloat("TRACKER_INCIDENT_RADIUS_METERS", 500)
	if cfg.Tracker.IncidentWindow, err = getEnvDuration("TRACKER_INCIDENT_WINDOW", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.Tracker.EmitTimeout, err = getEnvDuration("TRACKER_EMIT_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}
	cfg.Tracker.SampleBuffer = getEnvInt("TRACKER_SAMPLE_BUFFER", 16)

	// 危险阈值：先取 profile 默认值，再允许逐项覆盖
	cfg.Hazard.Profile = getEnv("HAZARD_PROFILE", "production")
	th, err := evaluator.ThresholdsForProfile(cfg.Hazard.Profile)
	if err != nil {
		return nil, err
	}
	if th.StaticThreshold, err = getEnvDuration("HAZARD_STATIC_THRESHOLD", th.StaticThreshold); err != nil {
		return nil, err
	}
	if th.StaticCooldown, err = getEnvDuration("HAZARD_STATIC_COOLDOWN", th.StaticCooldown); err != nil {
		return nil, err
	}
	if th.ZoneThreshold, err = getEnvDuration("HAZARD_ZONE_THRESHOLD", th.ZoneThreshold); err != nil {
		return nil, err
	}
	if th.ZoneCooldown, err = getEnvDuration("HAZARD_ZONE_COOLDOWN", th.ZoneCooldown); err != nil {
		return nil, err
	}
	th.MovementRadiusMeters = getEnvFloat("HAZARD_MOVEMENT_RADIUS_METERS", th.MovementRadiusMeters)
	if err := th.Validate(); err != nil {
		return nil, fmt.Errorf("invalid hazard configuration: %w", err)
	}
	cfg.Hazard.Thresholds = th

	cfg.Notifier.Stream = getEnv("NOTIFY_STREAM", "tourguard:sos:notify")
	cfg.Notifier.ConsumerGroup = getEnv("NOTIFY_CONSUMER_GROUP", "sos-email")
	cfg.Notifier.ConsumerName = getEnv("NOTIFY_CONSUMER_NAME", hostnameOr("sos-email-1"))
	cfg.Notifier.ResendBaseURL = getEnv("RESEND_BASE_URL", "https://api.resend.com")
	cfg.Notifier.ResendAPIKey = getEnv("RESEND_API_KEY", "")
	cfg.Notifier.FromAddress = getEnv("EMAIL_FROM", "TourGuard Emergency <onboarding@resend.dev>")
	cfg.Notifier.ReplyTo = getEnv("EMAIL_REPLY_TO", "noreply@tourguard.app")
	if cfg.Notifier.HTTPTimeout, err = getEnvDuration("RESEND_TIMEOUT", 30*time.Second); err != nil {
		return nil, err
	}
	cfg.Notifier.RetryCount = getEnvInt("RESEND_RETRY_COUNT", 3)

	cfg.Log.Level = getEnv("LOG_LEVEL", "info")
	cfg.Log.Format = getEnv("LOG_FORMAT", "json")

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("90s", "24h") or plain seconds.
func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	return d, nil
}

func hostnameOr(fallback string) string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return fallback
}
