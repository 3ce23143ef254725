package config

import (
	"os"
	"path/filepath"

	"github.com/digital-twin-risk-engine/internal/domain"
)

// DefaultDataDir returns ~/.riskengine, or ./.riskengine when no home is available.
func DefaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil || homeDir == "" {
		return ".riskengine"
	}
	return filepath.Join(homeDir, ".riskengine")
}

// resolvePaths fills the data-dir derived locations left empty by the user.
func resolvePaths(config *domain.Config) {
	if config.Storage.SQLitePath == "" {
		config.Storage.SQLitePath = HistoryDBPath(config.DataDir)
	}
	if config.Report.Dir == "" {
		config.Report.Dir = ReportDir(config.DataDir)
	}
	if config.Auth.OutboxPath == "" {
		config.Auth.OutboxPath = filepath.Join(config.DataDir, "outbox.log")
	}
}

// HistoryDBPath returns the path to the assessment history SQLite database.
func HistoryDBPath(dataDir string) string {
	return filepath.Join(dataDir, "history.db")
}

// ReportDir returns the directory for rendered reports and trend workbooks.
func ReportDir(dataDir string) string {
	return filepath.Join(dataDir, "reports")
}

// EnsureDirs creates the data and report directories if they don't exist.
func EnsureDirs(config *domain.Config) error {
	if err := os.MkdirAll(config.DataDir, 0755); err != nil {
		return domain.NewConfigurationError("data_dir", config.DataDir, err)
	}
	if err := os.MkdirAll(config.Report.Dir, 0755); err != nil {
		return domain.NewConfigurationError("report.dir", config.Report.Dir, err)
	}
	return nil
}
