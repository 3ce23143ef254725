package domain

import (
	"path/filepath"
	"time"
)

// Challenge is a pending one-time-code verification for an operator
type Challenge struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Session is an authorized operator session
type Session struct {
	ID         string    `json:"id"`
	Username   string    `json:"username"`
	VerifiedAt time.Time `json:"verified_at"`
}

// Config represents the main application configuration
type Config struct {
	DataDir string        `mapstructure:"data_dir"`
	Storage StorageConfig `mapstructure:"storage"`
	Models  ModelsConfig  `mapstructure:"models"`
	Report  ReportConfig  `mapstructure:"report"`
	Logging LoggingConfig `mapstructure:"logging"`
	Auth    AuthConfig    `mapstructure:"auth"`
}

// StorageConfig selects and configures the history store backend
type StorageConfig struct {
	Driver     string         `mapstructure:"driver"` // "sqlite", "postgres"
	SQLitePath string         `mapstructure:"sqlite_path"`
	Postgres   DatabaseConfig `mapstructure:"postgres"`
}

// DatabaseConfig represents PostgreSQL connection configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// ModelsConfig locates the per-condition model artifacts
type ModelsConfig struct {
	Dir          string `mapstructure:"dir"`
	Heart        string `mapstructure:"heart"`
	Diabetes     string `mapstructure:"diabetes"`
	Hypertension string `mapstructure:"hypertension"`
	CacheSize    int    `mapstructure:"cache_size"`
}

// ArtifactPath returns the configured artifact file for a condition.
func (m ModelsConfig) ArtifactPath(c Condition) string {
	switch c {
	case Heart:
		return m.Heart
	case Diabetes:
		return m.Diabetes
	case Hypertension:
		return m.Hypertension
	default:
		return ""
	}
}

// ResolvedPath returns the artifact path for a condition, joined onto Dir
// when it is relative.
func (m ModelsConfig) ResolvedPath(c Condition) string {
	path := m.ArtifactPath(c)
	if path != "" && !filepath.IsAbs(path) && m.Dir != "" {
		path = filepath.Join(m.Dir, path)
	}
	return path
}

// ReportConfig controls rendered report output
type ReportConfig struct {
	Dir    string `mapstructure:"dir"`
	Format string `mapstructure:"format"` // "pdf", "text"
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
	Output  string `mapstructure:"output"`
	Privacy bool   `mapstructure:"privacy"`
}

// AuthConfig configures operator verification
type AuthConfig struct {
	Enabled       bool              `mapstructure:"enabled"`
	Users         map[string]string `mapstructure:"users"` // username -> bcrypt hash
	CodeTTL       time.Duration     `mapstructure:"code_ttl"`
	MaxAttempts   int               `mapstructure:"max_attempts"`
	RatePerMinute int               `mapstructure:"rate_per_minute"`
	OutboxPath    string            `mapstructure:"outbox_path"`
}
