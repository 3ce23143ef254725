package history

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/digital-twin-risk-engine/internal/database"
	"github.com/digital-twin-risk-engine/internal/domain"
)

// generateTestPassword creates a random password for test databases
func generateTestPassword() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "test_fallback_password_123"
	}
	return "test_" + hex.EncodeToString(b)
}

func setupPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping PostgreSQL container test in short mode")
	}
	ctx := context.Background()
	password := generateTestPassword()

	pgContainer, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword(password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate PostgreSQL container: %v", err)
		}
	})

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)
	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	config := domain.DatabaseConfig{
		Host:     host,
		Port:     port.Int(),
		Database: "testdb",
		Username: "testuser",
		Password: password,
		SSLMode:  "disable",
		MaxConns: 4,
	}

	runner, err := database.NewMigrationRunner(database.URL(config), testLogger())
	require.NoError(t, err)
	require.NoError(t, runner.Up())
	require.NoError(t, runner.Close())

	db, err := database.NewConnection(ctx, config, testLogger())
	require.NoError(t, err)

	store, err := NewPostgresStore(db.Pool, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewPostgresStore_RequiresPool(t *testing.T) {
	_, err := NewPostgresStore(nil, testLogger())
	var storeErr *domain.StorageError
	assert.ErrorAs(t, err, &storeErr)
}

func TestPostgresStore_Lifecycle(t *testing.T) {
	store := setupPostgresStore(t)
	ctx := context.Background()

	first := newRecord("Test", 0.7, 0.3, 0.2)
	first.CreatedAt = time.Date(2026, 5, 1, 8, 30, 0, 123456789, time.UTC)
	require.NoError(t, store.Append(ctx, first))
	require.NoError(t, store.Append(ctx, newRecord("Test", 0.6, 0.2, 0.1)))
	require.NoError(t, store.Append(ctx, newRecord("Other", 0.1, 0.1, 0.1)))

	history, err := store.History(ctx, "Test")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, first.RecordID, history[0].RecordID)
	assert.Equal(t, first.Patient, history[0].Patient)
	assert.Equal(t, first.Heart, history[0].Heart)
	assert.Equal(t, first.Score, history[0].Score)
	assert.True(t, first.CreatedAt.Equal(history[0].CreatedAt), "want %v got %v", first.CreatedAt, history[0].CreatedAt)

	latest, err := store.Latest(ctx, "Test")
	require.NoError(t, err)
	assert.Equal(t, history[1].RecordID, latest.RecordID)

	names, err := store.ListPatientNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Other", "Test"}, names)

	var buf bytes.Buffer
	require.NoError(t, store.ExportJSON(ctx, &buf))
	imported, skipped, err := store.ImportJSON(ctx, &buf)
	require.NoError(t, err)
	assert.Zero(t, imported)
	assert.Equal(t, 3, skipped)

	removed, err := store.DeletePatient(ctx, "Test")
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	_, err = store.Latest(ctx, "Test")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	removed, err = store.DeleteAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	names, err = store.ListPatientNames(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
}
