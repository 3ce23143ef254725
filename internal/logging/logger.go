// Package logging builds the engine's logrus logger and its privacy hook.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/digital-twin-risk-engine/internal/domain"
)

// Redacted replaces the value of a sensitive field.
const Redacted = "[REDACTED]"

const maxValueLength = 1000

// New creates a logger from the logging configuration. The returned closer
// releases the log file, if any; callers close it when done logging.
func New(config domain.LoggingConfig) (*logrus.Logger, io.Closer, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(config.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if config.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}

	out, closer, err := openOutput(config.Output)
	if err != nil {
		return nil, nil, domain.NewConfigurationError("logging.output", config.Output, err)
	}
	logger.SetOutput(out)

	if config.Privacy {
		logger.AddHook(NewPrivacyHook())
	}
	return logger, closer, nil
}

// stdStream is a standard stream that must stay open after logging ends.
type stdStream struct{ io.Writer }

func (stdStream) Close() error { return nil }

func openOutput(output string) (io.Writer, io.Closer, error) {
	switch strings.ToLower(output) {
	case "", "stderr":
		return os.Stderr, stdStream{os.Stderr}, nil
	case "stdout":
		return os.Stdout, stdStream{os.Stdout}, nil
	}
	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, err
	}
	return file, file, nil
}

// PrivacyHook redacts patient identity and credentials from log fields.
type PrivacyHook struct {
	patterns []string
}

// NewPrivacyHook creates a hook with the default sensitive field patterns.
func NewPrivacyHook(extra ...string) *PrivacyHook {
	patterns := []string{
		"password", "token", "secret", "code",
		"patient", "name", "user", "email", "phone", "address",
	}
	for _, p := range extra {
		patterns = append(patterns, strings.ToLower(p))
	}
	return &PrivacyHook{patterns: patterns}
}

// Levels implements logrus.Hook
func (h *PrivacyHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire implements logrus.Hook
func (h *PrivacyHook) Fire(entry *logrus.Entry) error {
	for k, v := range entry.Data {
		entry.Data[k] = h.sanitizeField(k, v)
	}
	return nil
}

func (h *PrivacyHook) sanitizeField(key string, value interface{}) interface{} {
	lowerKey := strings.ToLower(key)
	for _, pattern := range h.patterns {
		if strings.Contains(lowerKey, pattern) {
			return Redacted
		}
	}

	if str, ok := value.(string); ok && len(str) > maxValueLength {
		return str[:maxValueLength] + "... [TRUNCATED]"
	}
	return value
}
