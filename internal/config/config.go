package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// Load .env file if it exists (silent fail if not)
	_ = godotenv.Load()
}

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server        ServerConfig
	App           AppConfig
	Log           LogConfig
	Cache         CacheConfig
	Database      DatabaseConfig
	Feed          FeedConfig
	Subscriptions SubscriptionConfig
	Auth          AuthConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host        string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port        int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"15s"`
	// Push streams are long-lived, so the write timeout stays at zero (disabled).
	WriteTimeout    time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"0s"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"shopsy-inventory-api"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	Version     string `envconfig:"APP_VERSION" default:"1.0.0"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level string `envconfig:"LOG_LEVEL" default:"info"`
}

// CacheConfig holds stock snapshot cache and Redis settings.
type CacheConfig struct {
	Type string        `envconfig:"CACHE_TYPE" default:"memory"` // memory or redis
	TTL  time.Duration `envconfig:"CACHE_TTL" default:"30s"`

	RedisHost      string `envconfig:"REDIS_HOST" default:"localhost"`
	RedisPort      int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword  string `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB        int    `envconfig:"REDIS_DB" default:"0"`
	RedisKeyPrefix string `envconfig:"REDIS_KEY_PREFIX" default:"shopsy:stock"`
}

// DatabaseConfig holds stock database settings.
type DatabaseConfig struct {
	Type string `envconfig:"DB_TYPE" default:"sqlite"` // sqlite, postgres or mysql
	Path string `envconfig:"DB_PATH" default:"./data/inventory.db"`

	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	Name     string `envconfig:"DB_NAME" default:"shopsy"`
	User     string `envconfig:"DB_USER" default:"postgres"`
	Password string `envconfig:"DB_PASS" default:""`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
}

// FeedConfig holds change feed settings.
type FeedConfig struct {
	PollInterval      time.Duration `envconfig:"FEED_POLL_INTERVAL" default:"1s"`
	HeartbeatInterval time.Duration `envconfig:"FEED_HEARTBEAT_INTERVAL" default:"30s"`
	BatchSize         int           `envconfig:"FEED_BATCH_SIZE" default:"500"`
	RecentPerProduct  int           `envconfig:"FEED_RECENT_PER_PRODUCT" default:"10"`
	RecentGlobal      int           `envconfig:"FEED_RECENT_GLOBAL" default:"20"`
	PollWindow        time.Duration `envconfig:"FEED_POLL_DEFAULT_WINDOW" default:"10s"`
	CommitGrace       time.Duration `envconfig:"FEED_COMMIT_GRACE" default:"5s"`
	Notifier          string        `envconfig:"FEED_NOTIFIER" default:"local"` // local or redis
}

// SubscriptionConfig holds orphaned subscription cleanup settings.
type SubscriptionConfig struct {
	StaleAfter    time.Duration `envconfig:"SUBSCRIPTION_STALE_AFTER" default:"10m"`
	SweepInterval time.Duration `envconfig:"SUBSCRIPTION_SWEEP_INTERVAL" default:"5m"`
}

// AuthConfig holds API keys for administrative endpoints.
type AuthConfig struct {
	APIKeys []string `envconfig:"API_KEYS"`
}

// PostgresDSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) PostgresDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// MySQLDSN returns the MySQL data source name.
func (d *DatabaseConfig) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

// Address returns the server address in host:port format.
func (s *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RedisAddress returns the Redis address in host:port format.
func (c *CacheConfig) RedisAddress() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// UsesRedis reports whether any component is configured to use Redis.
func (c *Config) UsesRedis() bool {
	return c.Cache.Type == "redis" || c.Feed.Notifier == "redis"
}

// IsProduction returns true if running in production mode.
func (a *AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

// Validate checks settings envconfig cannot express.
func (c *Config) Validate() error {
	if c.Feed.PollInterval <= 0 {
		return fmt.Errorf("FEED_POLL_INTERVAL must be positive")
	}
	if c.Feed.BatchSize <= 0 {
		return fmt.Errorf("FEED_BATCH_SIZE must be positive")
	}
	switch c.Database.Type {
	case "sqlite", "postgres", "postgresql", "mysql":
	default:
		return fmt.Errorf("unsupported DB_TYPE %q", c.Database.Type)
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration or panics on error.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}
