package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the full runtime configuration of the login guard server.
type Config struct {
	Environment  string `env:"APP_ENV" envDefault:"development"`
	Server       ServerConfig
	Logging      LoggingConfig
	Guard        GuardConfig
	Verification VerificationConfig
	Identity     IdentityConfig
	Backend      BackendConfig
	Storage      StorageConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	Sessions     SessionsConfig
}

type ServerConfig struct {
	Port         int           `env:"SERVER_PORT" envDefault:"8080"`
	ReadTimeout  time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout  time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"60s"`
	EnableTLS    bool          `env:"SERVER_ENABLE_TLS" envDefault:"false"`
	TLSPort      int           `env:"SERVER_TLS_PORT" envDefault:"8443"`
	AutoCert     bool          `env:"SERVER_AUTO_CERT" envDefault:"false"`
	Domain       string        `env:"SERVER_DOMAIN" envDefault:"localhost"`
	CertFile     string        `env:"SERVER_CERT_FILE"`
	KeyFile      string        `env:"SERVER_KEY_FILE"`
	AutoCertDir  string        `env:"SERVER_AUTO_CERT_DIR" envDefault:"./certs"`
	Email        string        `env:"SERVER_ACME_EMAIL"`
	// AllowedOrigins feeds the CORS handler.
	AllowedOrigins []string `env:"SERVER_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
}

type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"console"`
}

// GuardConfig mirrors guard.Config; it is converted once at startup.
type GuardConfig struct {
	MaxAttempts     int           `env:"GUARD_MAX_ATTEMPTS" envDefault:"3"`
	CooldownSeconds int           `env:"GUARD_COOLDOWN_SECONDS" envDefault:"30"`
	TickInterval    time.Duration `env:"GUARD_TICK_INTERVAL" envDefault:"1s"`
	StorePrefix     string        `env:"GUARD_STORE_PREFIX" envDefault:"login_guard"`
}

type VerificationConfig struct {
	// ResendCooldown throttles verification resends on the client side. Zero
	// leaves throttling to the identity provider alone.
	ResendCooldown time.Duration `env:"VERIFICATION_RESEND_COOLDOWN" envDefault:"0s"`
}

type IdentityConfig struct {
	APIKey  string        `env:"IDENTITY_API_KEY"`
	BaseURL string        `env:"IDENTITY_BASE_URL" envDefault:"https://identitytoolkit.googleapis.com/v1"`
	Timeout time.Duration `env:"IDENTITY_TIMEOUT" envDefault:"10s"`
}

type BackendConfig struct {
	BaseURL       string        `env:"BACKEND_BASE_URL" envDefault:"http://localhost:5000"`
	PublicPath    string        `env:"BACKEND_PUBLIC_PATH" envDefault:"/api/public"`
	ProtectedPath string        `env:"BACKEND_PROTECTED_PATH" envDefault:"/api/protected"`
	Timeout       time.Duration `env:"BACKEND_TIMEOUT" envDefault:"10s"`
}

type StorageConfig struct {
	// Driver selects the attempt store: memory, redis or sqlite.
	Driver     string `env:"STORAGE_DRIVER" envDefault:"sqlite"`
	SQLitePath string `env:"STORAGE_SQLITE_PATH" envDefault:"./login_guard.db"`
}

type RedisConfig struct {
	URL      string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
	PoolSize int    `env:"REDIS_POOL_SIZE" envDefault:"20"`
}

type KafkaConfig struct {
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	Topic   string   `env:"KAFKA_LOGIN_EVENTS_TOPIC" envDefault:"login-events"`
}

type SessionsConfig struct {
	Shards     int           `env:"SESSIONS_SHARDS" envDefault:"16"`
	IdleTTL    time.Duration `env:"SESSIONS_IDLE_TTL" envDefault:"30m"`
	CookieName string        `env:"SESSIONS_COOKIE_NAME" envDefault:"lg_client"`
}

// LoadConfig reads an optional .env file and then the process environment.
func LoadConfig() (*Config, error) {
	envFile := os.Getenv("APP_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the guard cannot run with.
func (c *Config) Validate() error {
	if c.Guard.MaxAttempts <= 0 {
		return fmt.Errorf("GUARD_MAX_ATTEMPTS must be positive, got %d", c.Guard.MaxAttempts)
	}
	if c.Guard.CooldownSeconds <= 0 {
		return fmt.Errorf("GUARD_COOLDOWN_SECONDS must be positive, got %d", c.Guard.CooldownSeconds)
	}
	if c.Guard.TickInterval <= 0 {
		return fmt.Errorf("GUARD_TICK_INTERVAL must be positive, got %s", c.Guard.TickInterval)
	}
	if c.Verification.ResendCooldown < 0 {
		return fmt.Errorf("VERIFICATION_RESEND_COOLDOWN must not be negative")
	}
	switch c.Storage.Driver {
	case "memory", "redis", "sqlite":
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage.Driver)
	}
	if c.Sessions.Shards <= 0 {
		return fmt.Errorf("SESSIONS_SHARDS must be positive, got %d", c.Sessions.Shards)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

func (c *Config) GetServerAddress() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// KafkaEnabled reports whether login events should be published.
func (c *Config) KafkaEnabled() bool {
	return len(c.Kafka.Brokers) > 0
}
