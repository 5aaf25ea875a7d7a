package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/snapprint/snapprint/pkg/config"
)

// Config holds all configuration for the snapprint server.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"SNAPPRINT_HTTP_PORT" envDefault:"8080"`

	// PostgreSQL
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"snapprint"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"snapprint_secret"`
	PostgresDB   string `env:"SNAPPRINT_DB_NAME" envDefault:"snapprint_db"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Auth
	JWTSecret string `env:"JWT_SECRET,required"`
	JWTIssuer string `env:"JWT_ISSUER" envDefault:"snapprint"`

	// Object storage
	StorageBaseURL string `env:"STORAGE_BASE_URL" envDefault:"http://localhost:8080"`

	// Upstream timeouts
	UploadTimeout time.Duration `env:"UPLOAD_TIMEOUT" envDefault:"30s"`
	FetchTimeout  time.Duration `env:"FETCH_TIMEOUT" envDefault:"20s"`

	// Rate limiting (per client IP)
	RateLimitRPS   int `env:"RATE_LIMIT_RPS" envDefault:"20"`
	RateLimitBurst int `env:"RATE_LIMIT_BURST" envDefault:"40"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Tracing
	TracingEnabled    bool    `env:"TRACING_ENABLED" envDefault:"false"`
	OTLPEndpoint      string  `env:"OTLP_ENDPOINT" envDefault:"localhost:4318"`
	TracingSampleRate float64 `env:"TRACING_SAMPLE_RATE" envDefault:"0.1"`

	// Pprof access, CIDR allowlist
	PprofCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"127.0.0.1/32" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load snapprint config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.UploadTimeout <= 0 {
		return fmt.Errorf("upload timeout must be positive, got %s", c.UploadTimeout)
	}
	if c.FetchTimeout <= 0 {
		return fmt.Errorf("fetch timeout must be positive, got %s", c.FetchTimeout)
	}
	if c.RateLimitRPS < 1 {
		return fmt.Errorf("rate limit rps must be at least 1, got %d", c.RateLimitRPS)
	}
	return nil
}

// PostgresDSN returns the PostgreSQL connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPass, c.PostgresHost, c.PostgresPort, c.PostgresDB, c.PostgresSSL,
	)
}
