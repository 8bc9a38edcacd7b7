package config

import (
	"fmt"
	"slices"
	"time"

	pkgconfig "github.com/utafrali/TrainingPlatform/pkg/config"
	"github.com/utafrali/TrainingPlatform/pkg/database"
	"github.com/utafrali/TrainingPlatform/pkg/tracing"
)

const (
	defaultJWTSecret = "change-this-to-a-secure-secret"
	minSecretLength  = 32

	RegistryPostgres = "postgres"
	RegistryRedis    = "redis"
)

// Config holds all configuration for the auth service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"AUTH_HTTP_PORT" envDefault:"8010"`

	// PostgreSQL; POSTGRES_URL wins over the discrete fields when set.
	PostgresURL  string `env:"POSTGRES_URL"`
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"training"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"training_secret"`
	PostgresDB   string `env:"AUTH_DB_NAME" envDefault:"training_auth"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"2"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINS" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINS" envDefault:"30"`
	SlowQueryThresholdMs  int   `env:"SLOW_QUERY_THRESHOLD_MS" envDefault:"200"`

	// Refresh token registry backend: postgres or redis.
	RefreshRegistry string `env:"REFRESH_REGISTRY" envDefault:"postgres"`

	// Redis, used when RefreshRegistry is redis.
	RedisURL      string `env:"REDIS_URL"`
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Kafka
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"true"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// JWT
	JWTSecret        string `env:"JWT_SECRET" envDefault:"change-this-to-a-secure-secret"`
	JWTIssuer        string `env:"JWT_ISSUER" envDefault:"training-auth"`
	JWTAccessExpiry  string `env:"JWT_ACCESS_TOKEN_EXPIRY" envDefault:"30m"`
	JWTRefreshExpiry string `env:"JWT_REFRESH_TOKEN_EXPIRY" envDefault:"168h"`

	BcryptCost int `env:"BCRYPT_COST" envDefault:"12"`

	// Expired refresh records are purged on this interval; 0 disables.
	JanitorInterval string `env:"REFRESH_JANITOR_INTERVAL" envDefault:"1h"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`

	Tracing tracing.Config

	// Parsed from the string fields above by Load.
	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	JanitorEvery time.Duration
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load auth config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	// Outside development require an explicitly set, strong JWT secret.
	if !c.IsDevelopment() {
		if c.JWTSecret == defaultJWTSecret {
			return fmt.Errorf("JWT_SECRET must be explicitly set via environment variable in %q mode", c.Environment)
		}
		if len(c.JWTSecret) < minSecretLength {
			return fmt.Errorf("JWT_SECRET must be at least %d characters long, got %d", minSecretLength, len(c.JWTSecret))
		}
	}

	var err error
	if c.AccessTTL, err = parsePositive("JWT_ACCESS_TOKEN_EXPIRY", c.JWTAccessExpiry); err != nil {
		return err
	}
	if c.RefreshTTL, err = parsePositive("JWT_REFRESH_TOKEN_EXPIRY", c.JWTRefreshExpiry); err != nil {
		return err
	}
	if c.RefreshTTL <= c.AccessTTL {
		return fmt.Errorf("refresh token expiry %s must exceed access token expiry %s", c.RefreshTTL, c.AccessTTL)
	}
	if c.JanitorEvery, err = time.ParseDuration(c.JanitorInterval); err != nil || c.JanitorEvery < 0 {
		return fmt.Errorf("invalid REFRESH_JANITOR_INTERVAL %q", c.JanitorInterval)
	}

	if !slices.Contains([]string{RegistryPostgres, RegistryRedis}, c.RefreshRegistry) {
		return fmt.Errorf("REFRESH_REGISTRY must be %q or %q, got %q", RegistryPostgres, RegistryRedis, c.RefreshRegistry)
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("invalid BCRYPT_COST: %d", c.BcryptCost)
	}

	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "auth"
	}
	if c.Tracing.Environment == "" || c.Tracing.Environment == "development" {
		c.Tracing.Environment = c.Environment
	}
	return nil
}

func parsePositive(name, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s %q: %w", name, value, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", name, d)
	}
	return d, nil
}

// IsDevelopment reports whether the service runs in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// SecureCookies reports whether the refresh cookie carries the Secure flag.
func (c *Config) SecureCookies() bool {
	return !c.IsDevelopment()
}

// Postgres returns the connection pool configuration.
func (c *Config) Postgres() database.PostgresConfig {
	return database.PostgresConfig{
		URL:             c.PostgresURL,
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: time.Duration(c.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(c.DBMaxConnIdleTimeMins) * time.Minute,
	}
}

// Redis returns the Redis client configuration.
func (c *Config) Redis() database.RedisConfig {
	rc := database.DefaultRedisConfig()
	rc.URL = c.RedisURL
	rc.Host = c.RedisHost
	rc.Port = c.RedisPort
	rc.Password = c.RedisPassword
	rc.DB = c.RedisDB
	return rc
}
