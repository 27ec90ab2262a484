package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv         string
	Port           string
	AllowedOrigins []string
	JWTSecret      string

	LogLevel  string
	LogFormat string

	DatabaseURL string
	DBHost      string
	DBUser      string
	DBPass      string
	DBName      string
	DBPort      string

	RedisURL string

	NATS     NATSConfig
	Consumer ConsumerConfig
	WS       WSConfig
}

type NATSConfig struct {
	URL         string
	Topic       string
	PoisonTopic string
	QueueGroup  string
	Durable     string
	MaxDeliver  int
	AckWait     time.Duration
}

type ConsumerConfig struct {
	MaxRetries   int
	RetryInitial time.Duration
	RetryMax     time.Duration
}

type WSConfig struct {
	PingInterval time.Duration
	PongTimeout  time.Duration
	WriteWait    time.Duration

	// ResyncCooldown of zero disables RESYNC throttling.
	ResyncCooldown time.Duration
}

func Load() (*Config, error) {
	// Don't fail if .env doesn't exist (might be prod env vars)
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:         getEnv("APP_ENV", "development"),
		Port:           getEnv("PORT", "8080"),
		AllowedOrigins: splitList(getEnv("ALLOWED_ORIGINS", "http://localhost:3000")),
		JWTSecret:      os.Getenv("JWT_SECRET"),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		DatabaseURL: os.Getenv("DATABASE_URL"),
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBUser:      getEnv("DB_USER", "postgres"),
		DBPass:      os.Getenv("DB_PASS"),
		DBName:      getEnv("DB_NAME", "notifyhub"),
		DBPort:      getEnv("DB_PORT", "5432"),

		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379/0"),

		NATS: NATSConfig{
			URL:         getEnv("NATS_URL", "nats://localhost:4222"),
			Topic:       getEnv("NOTIFICATION_TOPIC", "notification.events"),
			PoisonTopic: getEnv("NOTIFICATION_POISON_TOPIC", "notification.events.poison"),
			QueueGroup:  getEnv("NATS_QUEUE_GROUP", "notifyhub"),
			Durable:     getEnv("NATS_DURABLE_NAME", "notifyhub"),
		},
	}

	var err error
	if cfg.NATS.MaxDeliver, err = parseInt("NATS_MAX_DELIVER", "10"); err != nil {
		return nil, err
	}
	if cfg.NATS.AckWait, err = parseDuration("NATS_ACK_WAIT", "30s"); err != nil {
		return nil, err
	}
	if cfg.Consumer.MaxRetries, err = parseInt("CONSUMER_MAX_RETRIES", "5"); err != nil {
		return nil, err
	}
	if cfg.Consumer.RetryInitial, err = parseDuration("CONSUMER_RETRY_INITIAL", "1s"); err != nil {
		return nil, err
	}
	if cfg.Consumer.RetryMax, err = parseDuration("CONSUMER_RETRY_MAX", "1m"); err != nil {
		return nil, err
	}
	if cfg.WS.PingInterval, err = parseDuration("WS_PING_INTERVAL", "15s"); err != nil {
		return nil, err
	}
	if cfg.WS.PongTimeout, err = parseDuration("WS_PONG_TIMEOUT", "45s"); err != nil {
		return nil, err
	}
	if cfg.WS.WriteWait, err = parseDuration("WS_WRITE_WAIT", "10s"); err != nil {
		return nil, err
	}

	if cfg.WS.ResyncCooldown, err = time.ParseDuration(getEnv("WS_RESYNC_COOLDOWN", "1s")); err != nil {
		return nil, fmt.Errorf("invalid WS_RESYNC_COOLDOWN: %w", err)
	}

	if cfg.WS.PongTimeout < cfg.WS.PingInterval {
		return nil, fmt.Errorf("WS_PONG_TIMEOUT (%s) must not be shorter than WS_PING_INTERVAL (%s)",
			cfg.WS.PongTimeout, cfg.WS.PingInterval)
	}

	return cfg, nil
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func parseDuration(key, fallback string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s: must be positive", key)
	}
	return d, nil
}

func parseInt(key, fallback string) (int, error) {
	n, err := strconv.Atoi(getEnv(key, fallback))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
