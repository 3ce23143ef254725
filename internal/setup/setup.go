// Package setup inspects and initializes the engine's local environment.
package setup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/digital-twin-risk-engine/internal/domain"
)

// ModelStatus reports whether a condition's artifact file is present
type ModelStatus struct {
	Condition domain.Condition
	Path      string
	Present   bool
}

// Status describes the current setup
type Status struct {
	ConfigFile      string
	DataDir         string
	DataDirExists   bool
	StorageDriver   string
	HistoryDB       string
	HistoryDBExists bool
	ReportDir       string
	Models          []ModelStatus
	AuthEnabled     bool
	Issues          []string
}

// GetStatus checks the current setup status.
func GetStatus(cfg *domain.Config, configFile string) *Status {
	status := &Status{
		ConfigFile:    configFile,
		DataDir:       cfg.DataDir,
		StorageDriver: cfg.Storage.Driver,
		ReportDir:     cfg.Report.Dir,
		AuthEnabled:   cfg.Auth.Enabled,
		Issues:        []string{},
	}

	if exists(status.DataDir) {
		status.DataDirExists = true
	} else {
		status.Issues = append(status.Issues, fmt.Sprintf("Data directory will be created on first run: %s", status.DataDir))
	}

	if cfg.Storage.Driver == "sqlite" {
		status.HistoryDB = cfg.Storage.SQLitePath
		status.HistoryDBExists = exists(status.HistoryDB)
	} else {
		pg := cfg.Storage.Postgres
		status.HistoryDB = fmt.Sprintf("%s:%d/%s", pg.Host, pg.Port, pg.Database)
	}

	for _, c := range domain.Conditions() {
		path := cfg.Models.ResolvedPath(c)
		ms := ModelStatus{Condition: c, Path: path, Present: isFile(path)}
		if !ms.Present {
			status.Issues = append(status.Issues, fmt.Sprintf("Model artifact for %s not found: %s", c, path))
		}
		status.Models = append(status.Models, ms)
	}

	if cfg.Auth.Enabled && len(cfg.Auth.Users) == 0 {
		status.Issues = append(status.Issues, "Auth is enabled but no users are configured")
	}

	return status
}

// Validate checks if the current setup is usable. Issues that resolve
// themselves on first run are warnings and do not fail validation.
func Validate(cfg *domain.Config) (bool, []string) {
	issues := GetStatus(cfg, "").Issues
	return len(issues) == 0 || allWarnings(issues), issues
}

// allWarnings returns true if all issues are just warnings (not errors).
func allWarnings(issues []string) bool {
	for _, issue := range issues {
		if !strings.Contains(issue, "will be created") {
			return false
		}
	}
	return true
}

// PrintStatus writes a human-readable status report.
func PrintStatus(w io.Writer, status *Status) {
	fmt.Fprintln(w, "Digital Twin Risk Engine Status")
	fmt.Fprintln(w, "===============================")
	fmt.Fprintln(w)

	if status.ConfigFile != "" {
		fmt.Fprintf(w, "Config file: %s\n", status.ConfigFile)
	} else {
		fmt.Fprintln(w, "Config file: - none, using defaults and environment")
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Data Directory:")
	fmt.Fprintf(w, "  Path: %s\n", status.DataDir)
	fmt.Fprintf(w, "  Status: %s\n", mark(status.DataDirExists, "Exists", "Will be created on first run"))
	fmt.Fprintf(w, "  Reports: %s\n", status.ReportDir)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "History Store:")
	fmt.Fprintf(w, "  Driver: %s\n", status.StorageDriver)
	fmt.Fprintf(w, "  Location: %s\n", status.HistoryDB)
	if status.StorageDriver == "sqlite" {
		fmt.Fprintf(w, "  Status: %s\n", mark(status.HistoryDBExists, "Present", "Not created yet"))
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Models:")
	for _, m := range status.Models {
		fmt.Fprintf(w, "  %-13s %s %s\n", m.Condition.DisplayName()+":", mark(m.Present, "Found", "Missing"), m.Path)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Operator auth: %s\n", mark(status.AuthEnabled, "Enabled", "Disabled"))

	if len(status.Issues) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Issues:")
		for _, issue := range status.Issues {
			fmt.Fprintf(w, "  ⚠ %s\n", issue)
		}
	}
}

func mark(ok bool, yes, no string) string {
	if ok {
		return "✓ " + yes
	}
	return "✗ " + no
}

func exists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func isFile(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// DefaultConfigYAML is the starter riskengine.yaml written by init.
const DefaultConfigYAML = `# Digital Twin Risk Engine configuration.
# Every key can be overridden with RISKENGINE_<SECTION>_<KEY>.
data_dir: %s

storage:
  driver: sqlite          # sqlite | postgres
  sqlite_path: ""         # defaults to <data_dir>/history.db
  postgres:
    host: localhost
    port: 5432
    database: riskengine
    username: postgres
    password: ""
    ssl_mode: disable
    max_conns: 10

models:
  dir: %s
  heart: heart.json
  diabetes: diabetes.json
  hypertension: hypertension.json
  cache_size: 16

report:
  dir: ""                 # defaults to <data_dir>/reports
  format: pdf             # pdf | text

logging:
  level: info
  format: text
  output: stderr
  privacy: true

auth:
  enabled: false
  users: {}               # username: bcrypt hash (see "riskengine hash-password")
  code_ttl: 5m
  max_attempts: 3
  rate_per_minute: 10
`

// WriteConfig writes a starter config file. An existing file is kept
// unless overwrite is set.
func WriteConfig(path, dataDir, modelsDir string, overwrite bool) error {
	if !overwrite && exists(path) {
		return fmt.Errorf("config file already exists: %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	content := fmt.Sprintf(DefaultConfigYAML, dataDir, modelsDir)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
