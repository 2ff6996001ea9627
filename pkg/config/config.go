package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Audit sinks
const (
	AuditSinkNone     = "none"
	AuditSinkLog      = "log"
	AuditSinkFile     = "file"
	AuditSinkDatabase = "database"
)

// Role cache backends
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Authz         AuthzConfig
	Redis         RedisConfig
	Audit         AuditConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// DatabaseConfig holds PostgreSQL settings
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrateOnStart  bool
	// SeedFile is an optional YAML bootstrap document applied at startup
	SeedFile string
}

// AuthzConfig holds permission evaluation settings
type AuthzConfig struct {
	// AdminRoleID is the global role that bypasses organization scoping. Required.
	AdminRoleID       int64
	FilterConcurrency int
	CacheBackend      string
	CacheTTL          time.Duration
	CacheSize         int
}

// RedisConfig holds Redis connection settings for the shared role cache
type RedisConfig struct {
	URL      string
	Password string
	DB       int
}

// AuditConfig selects where permission changes are recorded
type AuditConfig struct {
	Sinks    []string
	Dir      string
	MaxSize  int64
	MaxFiles int
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel  string
	LogFormat string

	MetricsEnabled bool

	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
	OTelSampleRatio    float64
	OTelExportInterval time.Duration
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Authz:         loadAuthzConfig(),
		Redis:         loadRedisConfig(),
		Audit:         loadAuditConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("GATEHOUSE_HOST", "0.0.0.0"),
		Port:            getEnv("GATEHOUSE_PORT", "8080"),
		ReadTimeout:     getEnvDuration("GATEHOUSE_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("GATEHOUSE_WRITE_TIMEOUT", 15*time.Second),
		IdleTimeout:     getEnvDuration("GATEHOUSE_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("GATEHOUSE_SHUTDOWN_TIMEOUT", 30*time.Second),
		HealthPort:      getEnv("GATEHOUSE_HEALTH_PORT", "9090"),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:             getEnv("GATEHOUSE_DATABASE_URL", ""),
		MaxOpenConns:    getEnvInt("GATEHOUSE_DATABASE_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    getEnvInt("GATEHOUSE_DATABASE_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: getEnvDuration("GATEHOUSE_DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		MigrateOnStart:  getEnvBool("GATEHOUSE_DATABASE_MIGRATE", true),
		SeedFile:        getEnv("GATEHOUSE_SEED_FILE", ""),
	}
}

func loadAuthzConfig() AuthzConfig {
	return AuthzConfig{
		AdminRoleID:       getEnvInt64("GATEHOUSE_ADMIN_ROLE_ID", 0),
		FilterConcurrency: getEnvInt("GATEHOUSE_FILTER_CONCURRENCY", 8),
		CacheBackend:      strings.ToLower(getEnv("GATEHOUSE_ROLE_CACHE", CacheNone)),
		CacheTTL:          getEnvDuration("GATEHOUSE_ROLE_CACHE_TTL", 30*time.Second),
		CacheSize:         getEnvInt("GATEHOUSE_ROLE_CACHE_SIZE", 10000),
	}
}

func loadRedisConfig() RedisConfig {
	return RedisConfig{
		URL:      getEnv("GATEHOUSE_REDIS_URL", ""),
		Password: getEnv("GATEHOUSE_REDIS_PASSWORD", ""),
		DB:       getEnvInt("GATEHOUSE_REDIS_DB", 0),
	}
}

func loadAuditConfig() AuditConfig {
	var sinks []string
	for _, s := range strings.Split(getEnv("GATEHOUSE_AUDIT_SINKS", AuditSinkLog), ",") {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			sinks = append(sinks, s)
		}
	}
	return AuditConfig{
		Sinks:    sinks,
		Dir:      getEnv("GATEHOUSE_AUDIT_DIR", "/var/log/gatehouse/audit"),
		MaxSize:  getEnvInt64("GATEHOUSE_AUDIT_MAX_SIZE", 100*1024*1024),
		MaxFiles: getEnvInt("GATEHOUSE_AUDIT_MAX_FILES", 10),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           getEnv("GATEHOUSE_LOG_LEVEL", "info"),
		LogFormat:          getEnv("GATEHOUSE_LOG_FORMAT", "json"),
		MetricsEnabled:     getEnvBool("GATEHOUSE_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("GATEHOUSE_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("GATEHOUSE_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("GATEHOUSE_OTEL_SERVICE_NAME", "gatehouse"),
		OTelServiceVersion: getEnv("GATEHOUSE_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("GATEHOUSE_OTEL_INSECURE", true),
		OTelSampleRatio:    getEnvFloat("GATEHOUSE_OTEL_SAMPLE_RATIO", 1),
		OTelExportInterval: getEnvDuration("GATEHOUSE_OTEL_EXPORT_INTERVAL", 10*time.Second),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("database URL is required")
	}

	if c.Authz.AdminRoleID <= 0 {
		return fmt.Errorf("admin role id is required (GATEHOUSE_ADMIN_ROLE_ID)")
	}
	if c.Authz.FilterConcurrency < 1 {
		return fmt.Errorf("filter concurrency must be at least 1")
	}
	switch c.Authz.CacheBackend {
	case CacheNone:
	case CacheMemory:
		if c.Authz.CacheSize < 1 {
			return fmt.Errorf("role cache size must be positive for the memory cache")
		}
	case CacheRedis:
		if c.Redis.URL == "" {
			return fmt.Errorf("redis URL is required for the redis role cache")
		}
	default:
		return fmt.Errorf("invalid role cache backend: %s (must be none, memory, or redis)", c.Authz.CacheBackend)
	}
	if c.Authz.CacheBackend != CacheNone && c.Authz.CacheTTL <= 0 {
		return fmt.Errorf("role cache TTL must be positive")
	}

	for _, sink := range c.Audit.Sinks {
		switch sink {
		case AuditSinkNone, AuditSinkLog, AuditSinkDatabase:
		case AuditSinkFile:
			if c.Audit.Dir == "" {
				return fmt.Errorf("audit directory is required for the file audit sink")
			}
		default:
			return fmt.Errorf("invalid audit sink: %s (must be none, log, file, or database)", sink)
		}
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvInt64 returns an int64 environment variable or a default
func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
