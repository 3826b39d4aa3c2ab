package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all service configuration
type Config struct {
	Service  ServiceConfig
	Engine   EngineConfig
	Redis    RedisConfig
	Database DatabaseConfig
}

// ServiceConfig holds service-specific settings
type ServiceConfig struct {
	Name        string
	Port        int
	Environment string
	LogLevel    string
	LogFormat   string
}

// EngineConfig holds execution engine settings
type EngineConfig struct {
	// Delay between acknowledging a start and running the first node,
	// so observers can attach to the execution's emitter.
	SubscribeGrace time.Duration

	// Default wait for human-interaction nodes without an explicit timeout.
	// Zero means wait forever.
	DefaultHumanTimeout time.Duration

	// Maximum nesting depth of branch/loop constructs before the
	// interpreter fails the execution.
	MaxFlowDepth int

	// How often terminal executions are swept, and how old they must be.
	CleanupInterval time.Duration
	CleanupAge      time.Duration
}

// RedisConfig holds settings for the optional event mirror
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// DatabaseConfig holds Postgres settings for the optional execution history
type DatabaseConfig struct {
	Enabled     bool
	Host        string
	Port        int
	Database    string
	User        string
	Password    string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// Load loads configuration from environment variables
func Load(serviceName string) (*Config, error) {
	cfg := &Config{
		Service: ServiceConfig{
			Name:        serviceName,
			Port:        getEnvInt("PORT", 8080),
			Environment: getEnv("ENVIRONMENT", "development"),
			LogLevel:    getEnv("LOG_LEVEL", "info"),
			LogFormat:   getEnv("LOG_FORMAT", "text"),
		},
		Engine: EngineConfig{
			SubscribeGrace:      getEnvDuration("SUBSCRIBE_GRACE", 100*time.Millisecond),
			DefaultHumanTimeout: getEnvDuration("DEFAULT_HUMAN_TIMEOUT", 0),
			MaxFlowDepth:        getEnvInt("MAX_FLOW_DEPTH", 100),
			CleanupInterval:     getEnvDuration("CLEANUP_INTERVAL", 10*time.Minute),
			CleanupAge:          getEnvDuration("CLEANUP_AGE", time.Hour),
		},
		Redis: RedisConfig{
			Enabled:  getEnvBool("REDIS_ENABLED", false),
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Database: DatabaseConfig{
			Enabled:     getEnvBool("POSTGRES_ENABLED", false),
			Host:        getEnv("POSTGRES_HOST", "localhost"),
			Port:        getEnvInt("POSTGRES_PORT", 5432),
			Database:    getEnv("POSTGRES_DB", "flowscript"),
			User:        getEnv("POSTGRES_USER", "flowscript"),
			Password:    getEnv("POSTGRES_PASSWORD", "flowscript"),
			MaxConns:    getEnvInt("POSTGRES_MAX_CONNS", 20),
			MinConns:    getEnvInt("POSTGRES_MIN_CONNS", 2),
			MaxIdleTime: getEnvDuration("POSTGRES_MAX_IDLE_TIME", 30*time.Minute),
			MaxLifetime: getEnvDuration("POSTGRES_MAX_LIFETIME", time.Hour),
		},
	}

	return cfg, cfg.Validate()
}

// Validate checks if configuration is valid
func (c *Config) Validate() error {
	if c.Service.Port < 1 || c.Service.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Service.Port)
	}

	if c.Engine.SubscribeGrace < 0 {
		return fmt.Errorf("subscribe grace must be >= 0")
	}

	if c.Engine.MaxFlowDepth < 1 {
		return fmt.Errorf("max flow depth must be >= 1")
	}

	if c.Database.Enabled && c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.MaxConns < c.Database.MinConns {
		return fmt.Errorf("max_conns must be >= min_conns")
	}

	return nil
}

// DatabaseURL returns the PostgreSQL connection string
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
	)
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
