package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	SLA          SLAConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr               string
	Password           string
	DB                 int
	PoolSize           int
	DialTimeoutSeconds int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines bearer token parameters.
type AuthConfig struct {
	JWTSecret             string
	AccessTokenTTLMinutes int
}

// NotificationConfig controls fan-out of stored notifications.
type NotificationConfig struct {
	Channel        string
	PublishEnabled bool
}

// SLAConfig tunes the breach sweep.
type SLAConfig struct {
	SweepIntervalSeconds     int
	SweepBatchSize           int
	ResponseWarningMinutes   int
	ResolutionWarningMinutes int
	WorkerEnabled            bool
	WorkerNotify             bool
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "helpdesk"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:               getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:           os.Getenv("REDIS_PASSWORD"),
			DB:                 redisDB,
			PoolSize:           getEnvAsInt("REDIS_POOL_SIZE", 10),
			DialTimeoutSeconds: getEnvAsInt("REDIS_DIAL_TIMEOUT_SECONDS", 5),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:             getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes: getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
		},
		Notification: NotificationConfig{
			Channel:        getEnv("NOTIFY_CHANNEL", "helpdesk:notifications"),
			PublishEnabled: getEnvAsBool("NOTIFY_PUBLISH_ENABLED", true),
		},
		SLA: SLAConfig{
			SweepIntervalSeconds:     getEnvAsInt("SLA_SWEEP_INTERVAL_SECONDS", 60),
			SweepBatchSize:           getEnvAsInt("SLA_SWEEP_BATCH_SIZE", 200),
			ResponseWarningMinutes:   getEnvAsInt("SLA_RESPONSE_WARNING_MINUTES", 30),
			ResolutionWarningMinutes: getEnvAsInt("SLA_RESOLUTION_WARNING_MINUTES", 60),
			WorkerEnabled:            getEnvAsBool("SLA_WORKER_ENABLED", false),
			WorkerNotify:             getEnvAsBool("SLA_WORKER_NOTIFY", true),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the SLA engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.SLA.SweepIntervalSeconds <= 0 {
		errs = append(errs, errors.New("SLA_SWEEP_INTERVAL_SECONDS must be positive"))
	}
	if c.SLA.SweepBatchSize <= 0 {
		errs = append(errs, errors.New("SLA_SWEEP_BATCH_SIZE must be positive"))
	}
	if c.SLA.ResponseWarningMinutes <= 0 {
		errs = append(errs, errors.New("SLA_RESPONSE_WARNING_MINUTES must be positive"))
	}
	if c.SLA.ResolutionWarningMinutes <= 0 {
		errs = append(errs, errors.New("SLA_RESOLUTION_WARNING_MINUTES must be positive"))
	}
	return errors.Join(errs...)
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// DialTimeout returns the Redis connect timeout; zero keeps the client default.
func (r RedisConfig) DialTimeout() time.Duration {
	if r.DialTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(r.DialTimeoutSeconds) * time.Second
}

// SweepInterval returns the delay between scheduled sweeps.
func (s SLAConfig) SweepInterval() time.Duration {
	return time.Duration(s.SweepIntervalSeconds) * time.Second
}

// ResponseWarningWindow returns the at-risk lookahead for response deadlines.
func (s SLAConfig) ResponseWarningWindow() time.Duration {
	return time.Duration(s.ResponseWarningMinutes) * time.Minute
}

// ResolutionWarningWindow returns the at-risk lookahead for resolution deadlines.
func (s SLAConfig) ResolutionWarningWindow() time.Duration {
	return time.Duration(s.ResolutionWarningMinutes) * time.Minute
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}
