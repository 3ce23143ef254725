package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/digital-twin-risk-engine/internal/domain"
)

// EnvPrefix is the prefix for environment overrides, e.g. RISKENGINE_STORAGE_DRIVER.
const EnvPrefix = "RISKENGINE"

// Manager loads the engine configuration using Viper
type Manager struct {
	v          *viper.Viper
	config     *domain.Config
	configFile string
}

// Option customizes a Manager before loading
type Option func(*Manager)

// WithConfigFile reads the given file instead of searching the default paths.
func WithConfigFile(path string) Option {
	return func(m *Manager) {
		m.configFile = path
	}
}

// NewManager creates a new configuration manager
func NewManager(opts ...Option) (*Manager, error) {
	m := &Manager{}
	for _, opt := range opts {
		opt(m)
	}
	if err := m.loadConfig(); err != nil {
		return nil, domain.NewConfigurationError("config", m.configFile, err)
	}
	return m, nil
}

// loadConfig loads configuration from .env, the config file and the environment
func (m *Manager) loadConfig() error {
	// .env is optional; variables already set in the process win
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("error reading .env file: %w", err)
	}

	v := viper.New()
	if m.configFile != "" {
		v.SetConfigFile(m.configFile)
	} else {
		v.SetConfigName("riskengine")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/riskengine/")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	config := &domain.Config{}
	if err := v.Unmarshal(config); err != nil {
		return fmt.Errorf("error unmarshaling config: %w", err)
	}
	resolvePaths(config)

	m.v = v
	m.config = config
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", DefaultDataDir())

	// Storage defaults
	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.sqlite_path", "")
	v.SetDefault("storage.postgres.host", "localhost")
	v.SetDefault("storage.postgres.port", 5432)
	v.SetDefault("storage.postgres.database", "riskengine")
	v.SetDefault("storage.postgres.username", "postgres")
	v.SetDefault("storage.postgres.password", "")
	v.SetDefault("storage.postgres.ssl_mode", "disable")
	v.SetDefault("storage.postgres.max_conns", 10)
	v.SetDefault("storage.postgres.min_conns", 0)
	v.SetDefault("storage.postgres.conn_max_lifetime", "1h")
	v.SetDefault("storage.postgres.conn_max_idle_time", "30m")

	// Model artifact defaults
	v.SetDefault("models.dir", "models")
	v.SetDefault("models.heart", "heart.json")
	v.SetDefault("models.diabetes", "diabetes.json")
	v.SetDefault("models.hypertension", "hypertension.json")
	v.SetDefault("models.cache_size", 16)

	// Report defaults
	v.SetDefault("report.dir", "")
	v.SetDefault("report.format", "pdf")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")
	v.SetDefault("logging.privacy", true)

	// Auth defaults
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.code_ttl", 5*time.Minute)
	v.SetDefault("auth.max_attempts", 3)
	v.SetDefault("auth.rate_per_minute", 10)
	v.SetDefault("auth.outbox_path", "")
}

// GetConfig returns the complete configuration
func (m *Manager) GetConfig() *domain.Config {
	return m.config
}

// GetStorageConfig returns storage configuration
func (m *Manager) GetStorageConfig() *domain.StorageConfig {
	return &m.config.Storage
}

// GetLoggingConfig returns logging configuration
func (m *Manager) GetLoggingConfig() domain.LoggingConfig {
	return m.config.Logging
}

// ConfigFileUsed reports which file was read, or "" when running on defaults.
func (m *Manager) ConfigFileUsed() string {
	return m.v.ConfigFileUsed()
}

// Reload reloads the configuration
func (m *Manager) Reload() error {
	return m.loadConfig()
}

// Validate validates the configuration
func (m *Manager) Validate() error {
	if err := Validate(m.config); err != nil {
		return domain.NewConfigurationError("config", m.ConfigFileUsed(), err)
	}
	return nil
}

// Validate checks a loaded configuration for values the engine cannot run with.
func Validate(config *domain.Config) error {
	if config.DataDir == "" {
		return fmt.Errorf("data directory is required")
	}

	switch config.Storage.Driver {
	case "sqlite":
		if config.Storage.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required")
		}
	case "postgres":
		pg := config.Storage.Postgres
		if pg.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if pg.Port <= 0 || pg.Port > 65535 {
			return fmt.Errorf("invalid database port: %d", pg.Port)
		}
		if pg.Database == "" {
			return fmt.Errorf("database name is required")
		}
		if pg.Username == "" {
			return fmt.Errorf("database username is required")
		}
		if pg.MinConns > pg.MaxConns && pg.MaxConns > 0 {
			return fmt.Errorf("min_conns %d exceeds max_conns %d", pg.MinConns, pg.MaxConns)
		}
	default:
		return fmt.Errorf("unsupported storage driver: %q", config.Storage.Driver)
	}

	for _, c := range domain.Conditions() {
		if config.Models.ArtifactPath(c) == "" {
			return fmt.Errorf("model artifact for %s is required", c)
		}
	}
	if config.Models.CacheSize < 0 {
		return fmt.Errorf("invalid model cache size: %d", config.Models.CacheSize)
	}

	switch config.Report.Format {
	case "pdf", "text":
	default:
		return fmt.Errorf("unsupported report format: %q", config.Report.Format)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(config.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", config.Logging.Level)
	}
	switch config.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s", config.Logging.Format)
	}

	if config.Auth.Enabled {
		if len(config.Auth.Users) == 0 {
			return fmt.Errorf("auth is enabled but no users are configured")
		}
		if config.Auth.CodeTTL <= 0 {
			return fmt.Errorf("invalid auth code ttl: %s", config.Auth.CodeTTL)
		}
		if config.Auth.MaxAttempts <= 0 {
			return fmt.Errorf("invalid auth max attempts: %d", config.Auth.MaxAttempts)
		}
		if config.Auth.RatePerMinute <= 0 {
			return fmt.Errorf("invalid auth rate: %d", config.Auth.RatePerMinute)
		}
	}

	return nil
}
