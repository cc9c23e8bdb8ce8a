package config

import (
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
	AI           AIConfig
	IXC          IXCConfig
	Dispatch     DispatchConfig
	Worker       WorkerConfig
	Notification NotificationConfig
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
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AIConfig points at the OpenAI-compatible language capability used for
// classification and diagnosis. When Enabled is false the deterministic
// fallbacks run unconditionally.
type AIConfig struct {
	Enabled        bool
	BaseURL        string
	APIKey         string
	Model          string
	TimeoutSeconds int
}

// IXCConfig configures the outbound billing/ISP integration.
type IXCConfig struct {
	BaseURL        string
	Token          string
	TimeoutSeconds int
	RatePerSecond  float64
	RateBurst      int
}

// DispatchConfig carries the fallback weight policy used when no
// dispatch rule row is active in the database.
type DispatchConfig struct {
	DistanceWeight float64
	QueueWeight    float64
	SkillWeight    float64
	SLAWeight      float64
	QueueCeiling   int
}

// WorkerConfig bounds the periodic pipeline batches.
type WorkerConfig struct {
	IntervalSeconds  int
	DiagnosisBatch   int
	DispatchBatch    int
	ValidationBatch  int
	SLAWindowMinutes int
}

// NotificationConfig holds the webhook sink for domain events.
type NotificationConfig struct {
	WebhookURL string
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
			Name:                  getEnv("APP_NAME", "autonoc-service"),
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
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		AI: AIConfig{
			Enabled:        getEnvAsBool("AI_ENABLED", true),
			BaseURL:        getEnv("AI_BASE_URL", "https://api.openai.com/v1"),
			APIKey:         os.Getenv("AI_API_KEY"),
			Model:          getEnv("AI_MODEL", "gpt-4o"),
			TimeoutSeconds: getEnvAsInt("AI_TIMEOUT_SECONDS", 20),
		},
		IXC: IXCConfig{
			BaseURL:        getEnv("IXC_BASE_URL", ""),
			Token:          os.Getenv("IXC_TOKEN"),
			TimeoutSeconds: getEnvAsInt("IXC_TIMEOUT_SECONDS", 10),
			RatePerSecond:  getEnvAsFloat("IXC_RATE_PER_SECOND", 5),
			RateBurst:      getEnvAsInt("IXC_RATE_BURST", 10),
		},
		Dispatch: DispatchConfig{
			DistanceWeight: getEnvAsFloat("DISPATCH_WEIGHT_DISTANCE", 0.4),
			QueueWeight:    getEnvAsFloat("DISPATCH_WEIGHT_QUEUE", 0.3),
			SkillWeight:    getEnvAsFloat("DISPATCH_WEIGHT_SKILL", 0.2),
			SLAWeight:      getEnvAsFloat("DISPATCH_WEIGHT_SLA", 0.1),
			QueueCeiling:   getEnvAsInt("DISPATCH_QUEUE_CEILING", 5),
		},
		Worker: WorkerConfig{
			IntervalSeconds:  getEnvAsInt("WORKER_INTERVAL_SECONDS", 300),
			DiagnosisBatch:   getEnvAsInt("WORKER_DIAGNOSIS_BATCH", 5),
			DispatchBatch:    getEnvAsInt("WORKER_DISPATCH_BATCH", 10),
			ValidationBatch:  getEnvAsInt("WORKER_VALIDATION_BATCH", 10),
			SLAWindowMinutes: getEnvAsInt("WORKER_SLA_WINDOW_MINUTES", 120),
		},
		Notification: NotificationConfig{
			WebhookURL: getEnv("NOTIFY_WEBHOOK_URL", ""),
		},
	}

	return cfg, nil
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

// Interval returns the periodic worker interval.
func (w WorkerConfig) Interval() time.Duration {
	if w.IntervalSeconds <= 0 {
		return 0
	}
	return time.Duration(w.IntervalSeconds) * time.Second
}

// SLAWindow returns the look-ahead window for SLA alerts.
func (w WorkerConfig) SLAWindow() time.Duration {
	return time.Duration(w.SLAWindowMinutes) * time.Minute
}

// Weights returns the fallback dispatch weight policy.
func (d DispatchConfig) Weights() (distance, queue, skill, sla float64) {
	return d.DistanceWeight, d.QueueWeight, d.SkillWeight, d.SLAWeight
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

func getEnvAsFloat(key string, fallback float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(val, 64)
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
