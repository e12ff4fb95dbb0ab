package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config aggregates all runtime settings required by the application.
type Config struct {
	AppName     string
	Environment string
	HTTP        HTTPConfig
	Storage     StorageConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Auth        AuthConfig
	Buffer      BufferConfig
	Context     ContextConfig
	Logger      LoggerConfig
	Migrations  MigrationsConfig
}

type HTTPConfig struct {
	Host         string
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	MaxConn      int
}

type StorageConfig struct {
	Driver string
}

type DatabaseConfig struct {
	URL             string
	Host            string
	Port            string
	Name            string
	User            string
	Password        string
	MaxOpenConns    int
	MaxIdleConns    int
	MaxConnLifetime time.Duration
	SSLMode         string
}

type RedisConfig struct {
	Enabled  bool
	URL      string
	Password string
	DB       int
}

// AuthConfig carries the token and credential policy.
type AuthConfig struct {
	Secret            string
	Issuer            string
	TokenTTL          time.Duration
	PasswordMinLength int
	BcryptCost        int
	MaxLoginAttempts  int
	LoginWindow       time.Duration
}

type BufferConfig struct {
	Enabled      bool
	Path         string
	MaxSize      int
	Retention    time.Duration
	SyncInterval time.Duration
	MaxRetry     int
}

type ContextConfig struct {
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

type LoggerConfig struct {
	Level    string
	Encoding string
}

type MigrationsConfig struct {
	Enabled bool
	Path    string
}

// Load reads configuration from environment variables (optionally .env)
// and applies defaults. The result is validated before it is returned.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		AppName:     getString("APP_NAME", "taskflow"),
		Environment: getString("APP_ENV", "development"),
		HTTP: HTTPConfig{
			Host:         getString("SERVER_HOST", "0.0.0.0"),
			Port:         getString("SERVER_PORT", "8080"),
			ReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
			MaxConn:      getInt("SERVER_MAX_CONN", 0),
		},
		Storage: StorageConfig{
			Driver: strings.ToLower(getString("STORAGE_DRIVER", DriverPostgres)),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			Host:            getString("DB_HOST", "localhost"),
			Port:            getString("DB_PORT", "5432"),
			Name:            getString("DB_NAME", "taskflow"),
			User:            getString("DB_USER", "taskflow"),
			Password:        os.Getenv("DB_PASSWORD"),
			MaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 10),
			MaxConnLifetime: getDuration("DB_CONN_LIFETIME", time.Hour),
			SSLMode:         getString("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Enabled:  getBool("REDIS_ENABLED", false),
			URL:      getString("REDIS_URL", "redis://localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getInt("REDIS_DB", 0),
		},
		Auth: AuthConfig{
			Secret:            os.Getenv("JWT_SECRET"),
			Issuer:            getString("JWT_ISSUER", "taskflow"),
			TokenTTL:          getDuration("AUTH_TOKEN_TTL", 24*time.Hour),
			PasswordMinLength: getInt("AUTH_PASSWORD_MIN_LENGTH", 8),
			BcryptCost:        getInt("AUTH_BCRYPT_COST", 0),
			MaxLoginAttempts:  getInt("AUTH_MAX_LOGIN_ATTEMPTS", 5),
			LoginWindow:       getDuration("AUTH_LOGIN_WINDOW", 15*time.Minute),
		},
		Buffer: BufferConfig{
			Enabled:      getBool("BUFFER_ENABLED", true),
			Path:         getString("BOLTDB_PATH", "./data/buffer.db"),
			MaxSize:      getInt("BUFFER_MAX_SIZE", 100_000),
			Retention:    getDuration("BUFFER_RETENTION", 24*time.Hour),
			SyncInterval: getDuration("SYNC_INTERVAL_SECONDS", 30*time.Second),
			MaxRetry:     getInt("MAX_RETRY_ATTEMPTS", 3),
		},
		Context: ContextConfig{
			RequestTimeout:  getDuration("REQUEST_TIMEOUT_SECONDS", 5*time.Second),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT_SECONDS", 15*time.Second),
		},
		Logger: LoggerConfig{
			Level:    getString("LOG_LEVEL", "info"),
			Encoding: getString("LOG_ENCODING", "json"),
		},
		Migrations: MigrationsConfig{
			Enabled: getBool("RUN_MIGRATIONS", true),
			Path:    getString("MIGRATIONS_PATH", "./migrations"),
		},
	}

	if cfg.Database.URL == "" {
		cfg.Database.URL = buildPostgresURL(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad panics if configuration cannot be loaded.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Validate reports every setting the service cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.Secret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.Storage.Driver {
	case DriverPostgres, DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage.Driver))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("AUTH_TOKEN_TTL must be positive"))
	}
	if c.Auth.PasswordMinLength <= 0 {
		errs = append(errs, errors.New("AUTH_PASSWORD_MIN_LENGTH must be positive"))
	}
	if c.Auth.MaxLoginAttempts < 0 {
		errs = append(errs, errors.New("AUTH_MAX_LOGIN_ATTEMPTS must not be negative"))
	}
	return errors.Join(errs...)
}

func buildPostgresURL(cfg *Config) string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)
}

func getString(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

// Address returns the HTTP listen address for the fasthttp server.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%s", c.HTTP.Host, c.HTTP.Port)
}
