package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"stocksense/pkg/errors"
)

type Config struct {
	App           AppConfig
	HTTP          HTTPConfig
	Postgres      PostgresConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	AI            AIConfig
	News          NewsConfig
	Market        MarketConfig
	Monitor       MonitorConfig
	RateLimit     RateLimitConfig
	ErrorTracking ErrorTrackingConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"stocksense"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
}

type HTTPConfig struct {
	Host            string        `envconfig:"HTTP_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"HTTP_PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"30s"`
	WriteTimeout    time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"10m"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"30s"`
}

func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type PostgresConfig struct {
	Host     string `envconfig:"POSTGRES_HOST" required:"true"`
	Port     int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User     string `envconfig:"POSTGRES_USER" required:"true"`
	Password string `envconfig:"POSTGRES_PASSWORD" required:"true"`
	Database string `envconfig:"POSTGRES_DB" required:"true"`
	SSLMode  string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns int    `envconfig:"POSTGRES_MAX_CONNS" default:"25"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" required:"true"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type KafkaConfig struct {
	Brokers        []string `envconfig:"KAFKA_BROKERS" required:"true"`
	AlertsTopic    string   `envconfig:"KAFKA_ALERTS_TOPIC" default:"stocksense.alerts"`
	CompletedTopic string   `envconfig:"KAFKA_COMPLETED_TOPIC" default:"stocksense.analysis.completed"`
}

type AIConfig struct {
	OpenAIKey      string        `envconfig:"OPENAI_API_KEY" required:"true"`
	Model          string        `envconfig:"AI_MODEL" default:"gpt-4o"`
	Temperature    float64       `envconfig:"AI_TEMPERATURE" default:"0.3"`
	RequestTimeout time.Duration `envconfig:"AI_REQUEST_TIMEOUT" default:"120s"`
	MaxRetries     int           `envconfig:"AI_MAX_RETRIES" default:"3"`
	RetryBaseDelay time.Duration `envconfig:"AI_RETRY_BASE_DELAY" default:"500ms"`
	RetryMaxDelay  time.Duration `envconfig:"AI_RETRY_MAX_DELAY" default:"8s"`
	MaxIterations  int           `envconfig:"AI_MAX_ITERATIONS" default:"10"`
	EmbeddingModel string        `envconfig:"AI_EMBEDDING_MODEL" default:"text-embedding-3-small"`
}

type NewsConfig struct {
	APIKey       string        `envconfig:"NEWS_API_KEY"`
	BaseURL      string        `envconfig:"NEWS_BASE_URL" default:"https://newsapi.org/v2"`
	MaxHeadlines int           `envconfig:"NEWS_MAX_HEADLINES" default:"10"`
	Timeout      time.Duration `envconfig:"NEWS_TIMEOUT" default:"15s"`
}

type MarketConfig struct {
	APIKey  string        `envconfig:"MARKET_API_KEY"`
	BaseURL string        `envconfig:"MARKET_BASE_URL" default:"https://query1.finance.yahoo.com"`
	Timeout time.Duration `envconfig:"MARKET_TIMEOUT" default:"15s"`
}

type MonitorConfig struct {
	MatchThreshold float64       `envconfig:"MONITOR_MATCH_THRESHOLD" default:"0.6"`
	SweepInterval  time.Duration `envconfig:"MONITOR_SWEEP_INTERVAL" default:"1h"`
	SweepEnabled   bool          `envconfig:"MONITOR_SWEEP_ENABLED" default:"true"`
	DebounceTTL    time.Duration `envconfig:"MONITOR_DEBOUNCE_TTL" default:"1h"`
	Concurrency    int           `envconfig:"MONITOR_CONCURRENCY" default:"2"`
}

type RateLimitConfig struct {
	Enabled           bool          `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerWindow int           `envconfig:"RATE_LIMIT_REQUESTS" default:"30"`
	Window            time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"true"`
	Provider    string `envconfig:"ERROR_TRACKING_PROVIDER" default:"sentry"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not exists)
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	return &cfg, nil
}
