package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Config struct {
	Server      ServerConfig    `yaml:"server"`
	Database    DatabaseConfig  `yaml:"database"`
	Auth        AuthConfig      `yaml:"auth"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
	Logging     LoggingConfig   `yaml:"logging"`
	Tracing     TracingConfig   `yaml:"tracing"`
	Environment string          `yaml:"environment"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	// Driver selects the store: "postgres" or "sqlite".
	Driver         string `yaml:"driver"`
	URL            string `yaml:"url"`
	MaxConnections int    `yaml:"max_connections"`
	MaxIdle        int    `yaml:"max_idle_connections"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	Issuer    string        `yaml:"issuer"`
	JWTExpiry time.Duration `yaml:"jwt_expiry"`
}

type RateLimitConfig struct {
	AnonymousPerMinute     int      `yaml:"anonymous_per_minute"`
	AuthenticatedPerMinute int      `yaml:"authenticated_per_minute"`
	TrustedProxyCIDRs      []string `yaml:"trusted_proxy_cidrs"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	ServiceName  string  `yaml:"service_name"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:         DriverPostgres,
			MaxConnections: 25,
			MaxIdle:        5,
		},
		Auth: AuthConfig{
			Issuer:    "gatherings",
			JWTExpiry: 24 * time.Hour,
		},
		RateLimit: RateLimitConfig{
			AnonymousPerMinute:     60,
			AuthenticatedPerMinute: 300,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Tracing: TracingConfig{
			Exporter:     "stdout",
			ServiceName:  "gatherings",
			OTLPEndpoint: "localhost:4317",
			SampleRate:   1.0,
		},
		Environment: "development",
	}
}

// Load reads configuration from environment variables.
func Load() (Config, error) {
	return LoadFile("")
}

// LoadFile reads an optional YAML file, then applies environment overrides.
// Environment variables win over file values.
func LoadFile(path string) (Config, error) {
	cfg := defaults()

	if strings.TrimSpace(path) != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Server.Host = getEnv("SERVER_HOST", cfg.Server.Host)
	cfg.Server.Port = getEnvInt("SERVER_PORT", cfg.Server.Port)
	cfg.Server.ReadTimeout = getEnvDuration("SERVER_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getEnvDuration("SERVER_WRITE_TIMEOUT", cfg.Server.WriteTimeout)
	cfg.Server.ShutdownTimeout = getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)

	cfg.Database.Driver = strings.ToLower(getEnv("DATABASE_DRIVER", cfg.Database.Driver))
	cfg.Database.URL = getEnv("DATABASE_URL", cfg.Database.URL)
	cfg.Database.MaxConnections = getEnvInt("DATABASE_MAX_CONNECTIONS", cfg.Database.MaxConnections)
	cfg.Database.MaxIdle = getEnvInt("DATABASE_MAX_IDLE_CONNECTIONS", cfg.Database.MaxIdle)

	cfg.Auth.JWTSecret = getEnv("JWT_SECRET", cfg.Auth.JWTSecret)
	cfg.Auth.Issuer = getEnv("JWT_ISSUER", cfg.Auth.Issuer)
	if hours := getEnvInt("JWT_EXPIRY_HOURS", 0); hours > 0 {
		cfg.Auth.JWTExpiry = time.Duration(hours) * time.Hour
	}

	cfg.RateLimit.AnonymousPerMinute = getEnvInt("RATE_LIMIT_ANONYMOUS", cfg.RateLimit.AnonymousPerMinute)
	cfg.RateLimit.AuthenticatedPerMinute = getEnvInt("RATE_LIMIT_AUTHENTICATED", cfg.RateLimit.AuthenticatedPerMinute)
	if cidrs := getEnv("RATE_LIMIT_TRUSTED_PROXIES", ""); cidrs != "" {
		cfg.RateLimit.TrustedProxyCIDRs = splitList(cidrs)
	}

	cfg.Logging.Level = getEnv("LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnv("LOG_FORMAT", cfg.Logging.Format)

	cfg.Tracing.Enabled = getEnvBool("TRACING_ENABLED", cfg.Tracing.Enabled)
	cfg.Tracing.Exporter = getEnv("TRACING_EXPORTER", cfg.Tracing.Exporter)
	cfg.Tracing.ServiceName = getEnv("TRACING_SERVICE_NAME", cfg.Tracing.ServiceName)
	cfg.Tracing.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Tracing.OTLPEndpoint)
	cfg.Tracing.SampleRate = getEnvFloat("TRACING_SAMPLE_RATE", cfg.Tracing.SampleRate)

	cfg.Environment = getEnv("ENVIRONMENT", cfg.Environment)
}

// Validate checks the settings every command needs.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("DATABASE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, c.Database.Driver)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.IsProduction() && len(c.Auth.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters in production")
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("TRACING_SAMPLE_RATE must be between 0.0 and 1.0")
	}
	return nil
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvInt(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
