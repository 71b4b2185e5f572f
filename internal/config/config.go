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
	Environment string
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Allocation  AllocationConfig
	Log         LogConfig
}

type ServerConfig struct {
	HTTPPort        int
	GRPCPort        int
	ShutdownTimeout time.Duration
	// AllowedOrigins feeds the CORS middleware. Empty allows any origin.
	AllowedOrigins []string
}

type DatabaseConfig struct {
	// Driver is "postgres" or "memory".
	Driver          string
	Host            string
	Port            int
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsPath  string
}

// DSN returns the libpq connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// URL returns the connection string in URL form, as golang-migrate expects.
func (d DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type RedisConfig struct {
	// Addr empty disables event publishing to Redis; events are logged instead.
	Addr     string
	Password string
	DB       int
	Channel  string
}

type AllocationConfig struct {
	DefaultLeaseDays  int
	OperationTimeout  time.Duration
	ReconcileInterval time.Duration
	AllowReconsider   bool
	EventBuffer       int
	PublishTimeout    time.Duration
}

type LogConfig struct {
	Level  string
	Format string // console or json
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	config := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		Server: ServerConfig{
			HTTPPort:        getEnvAsInt("HTTP_PORT", 8081),
			GRPCPort:        getEnvAsInt("GRPC_PORT", 50051),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
			AllowedOrigins:  getEnvAsList("CORS_ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			Driver:          getEnv("STORE_DRIVER", "postgres"),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "admin"),
			Password:        getEnv("DB_PASSWORD", ""),
			Name:            getEnv("DB_NAME", "tenancy_allocation"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns:    getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 25),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			MigrationsPath:  getEnv("MIGRATIONS_PATH", "scripts/migrations"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Channel:  getEnv("REDIS_EVENTS_CHANNEL", "tenancy.events"),
		},
		Allocation: AllocationConfig{
			DefaultLeaseDays:  getEnvAsInt("DEFAULT_LEASE_DAYS", 365),
			OperationTimeout:  getEnvAsDuration("OPERATION_TIMEOUT", 10*time.Second),
			ReconcileInterval: getEnvAsDuration("RECONCILE_INTERVAL", 5*time.Minute),
			AllowReconsider:   getEnvAsBool("ALLOW_RECONSIDER", true),
			EventBuffer:       getEnvAsInt("EVENT_BUFFER", 256),
			PublishTimeout:    getEnvAsDuration("EVENT_PUBLISH_TIMEOUT", 2*time.Second),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "console"),
		},
	}

	return config, config.Validate()
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown store driver %q", c.Database.Driver)
	}

	if c.Database.Driver == "memory" && c.Environment == "production" {
		return fmt.Errorf("memory store is not allowed in production")
	}

	if c.Database.Password == "" && c.Database.Driver == "postgres" && c.Environment == "production" {
		return fmt.Errorf("database password is required in production")
	}

	if c.Allocation.DefaultLeaseDays <= 0 {
		return fmt.Errorf("DEFAULT_LEASE_DAYS must be positive")
	}

	if c.Allocation.OperationTimeout <= 0 {
		return fmt.Errorf("OPERATION_TIMEOUT must be positive")
	}

	if c.Allocation.EventBuffer <= 0 {
		return fmt.Errorf("EVENT_BUFFER must be positive")
	}

	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(strings.ToLower(value)); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvAsList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
