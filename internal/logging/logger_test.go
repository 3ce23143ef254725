package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digital-twin-risk-engine/internal/domain"
)

func TestNew_LevelAndFormat(t *testing.T) {
	logger, _, err := New(domain.LoggingConfig{Level: "debug", Format: "json", Output: "stdout"})
	require.NoError(t, err)

	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)
	assert.Same(t, os.Stdout, logger.Out)
}

func TestNew_InvalidLevelFallsBackToInfo(t *testing.T) {
	logger, _, err := New(domain.LoggingConfig{Level: "chatty", Format: "text"})
	require.NoError(t, err)

	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)
	assert.Same(t, os.Stderr, logger.Out)
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "engine.log")
	logger, closer, err := New(domain.LoggingConfig{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)

	logger.Info("written to file")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")

	// the file handle is released
	file, ok := closer.(*os.File)
	require.True(t, ok)
	_, err = file.Write([]byte("late"))
	assert.ErrorIs(t, err, os.ErrClosed)
}

func TestNew_StandardStreamsStayOpen(t *testing.T) {
	_, closer, err := New(domain.LoggingConfig{Level: "info", Output: "stderr"})
	require.NoError(t, err)
	require.NoError(t, closer.Close())

	_, err = os.Stderr.Write(nil)
	assert.NoError(t, err)
}

func TestPrivacyHook_RedactsSensitiveFields(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := New(domain.LoggingConfig{Level: "info", Format: "json", Privacy: true})
	require.NoError(t, err)
	logger.SetOutput(&buf)

	logger.WithFields(logrus.Fields{
		"patient":   "Jane Doe",
		"username":  "clinician",
		"code":      "123456",
		"condition": "heart",
		"score":     60.0,
	}).Info("Assessment stored")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, Redacted, entry["patient"])
	assert.Equal(t, Redacted, entry["username"])
	assert.Equal(t, Redacted, entry["code"])
	assert.Equal(t, "heart", entry["condition"])
	assert.Equal(t, 60.0, entry["score"])
	assert.Equal(t, "Assessment stored", entry["message"])
}

func TestPrivacyHook_Disabled(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := New(domain.LoggingConfig{Level: "info", Format: "json", Privacy: false})
	require.NoError(t, err)
	logger.SetOutput(&buf)

	logger.WithField("patient", "Jane Doe").Info("Assessment stored")

	assert.Contains(t, buf.String(), "Jane Doe")
}

func TestPrivacyHook_TruncatesLongValues(t *testing.T) {
	hook := NewPrivacyHook("mrn")
	entry := logrus.NewEntry(logrus.New()).WithFields(logrus.Fields{
		"detail":  strings.Repeat("x", 2000),
		"mrn_ref": "A-1",
	})

	require.NoError(t, hook.Fire(entry))

	assert.True(t, strings.HasSuffix(entry.Data["detail"].(string), "[TRUNCATED]"))
	assert.Len(t, entry.Data["detail"].(string), maxValueLength+len("... [TRUNCATED]"))
	assert.Equal(t, Redacted, entry.Data["mrn_ref"])
}
