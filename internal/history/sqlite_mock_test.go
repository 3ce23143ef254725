package history

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digital-twin-risk-engine/internal/domain"
)

func setupMockStore(t *testing.T) (*SQLiteStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLiteStoreFromDB(db, testLogger()), mock
}

var recordColumns = []string{
	"id", "record_id", "name", "age", "gender",
	"heart", "diabetes", "hypertension", "score", "created_at",
}

func TestSQLiteStore_Append_InsertFailureIsStorageError(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO assessments").WillReturnError(errors.New("disk I/O error"))
	mock.ExpectRollback()

	rec := newRecord("Test", 0.7, 0.3, 0.2)
	err := store.Append(context.Background(), rec)

	var storeErr *domain.StorageError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "append", storeErr.Op)
	assert.Zero(t, rec.ID, "failed append must not look successful")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStore_Append_CommitFailureIsStorageError(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO assessments").WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectCommit().WillReturnError(errors.New("database is locked"))

	rec := newRecord("Test", 0.7, 0.3, 0.2)
	err := store.Append(context.Background(), rec)

	var storeErr *domain.StorageError
	require.ErrorAs(t, err, &storeErr)
	assert.Zero(t, rec.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStore_Append_BindsAllColumns(t *testing.T) {
	store, mock := setupMockStore(t)

	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	id := uuid.MustParse("8f14e45f-ceea-467f-a9b8-6c6e3a1b2c3d")
	rec := newRecord("Test", 0.7, 0.3, 0.2)
	rec.RecordID = id
	rec.CreatedAt = created

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO assessments").
		WithArgs(id.String(), "Test", 40, "Male", 0.7, 0.3, 0.2, float64(rec.Score), "2026-01-02T03:04:05Z").
		WillReturnResult(sqlmock.NewResult(42, 1))
	mock.ExpectCommit()

	require.NoError(t, store.Append(context.Background(), rec))
	assert.Equal(t, int64(42), rec.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStore_DeletePatient_RollsBackOnFailure(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM assessments WHERE name").WithArgs("Test").WillReturnError(errors.New("constraint failed"))
	mock.ExpectRollback()

	_, err := store.DeletePatient(context.Background(), "Test")

	var storeErr *domain.StorageError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "delete patient", storeErr.Op)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStore_DeleteAll_BeginFailure(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectBegin().WillReturnError(errors.New("cannot start transaction"))

	_, err := store.DeleteAll(context.Background())

	var storeErr *domain.StorageError
	require.ErrorAs(t, err, &storeErr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStore_History_QueryFailure(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectQuery("SELECT (.+) FROM assessments WHERE name").WithArgs("Test").WillReturnError(sql.ErrConnDone)

	_, err := store.History(context.Background(), "Test")

	var storeErr *domain.StorageError
	require.ErrorAs(t, err, &storeErr)
	assert.ErrorIs(t, err, sql.ErrConnDone)
}

func TestSQLiteStore_History_CorruptTimestamp(t *testing.T) {
	store, mock := setupMockStore(t)

	rows := sqlmock.NewRows(recordColumns).
		AddRow(1, uuid.NewString(), "Test", 40, "Male", 0.7, 0.3, 0.2, 60.0, "yesterday")
	mock.ExpectQuery("SELECT (.+) FROM assessments WHERE name").WithArgs("Test").WillReturnRows(rows)

	_, err := store.History(context.Background(), "Test")

	var storeErr *domain.StorageError
	require.ErrorAs(t, err, &storeErr)
	assert.Contains(t, err.Error(), "created_at")
}

func TestSQLiteStore_ListPatientNames_ScansRows(t *testing.T) {
	store, mock := setupMockStore(t)

	rows := sqlmock.NewRows([]string{"name"}).AddRow("Adam").AddRow("Zoe")
	mock.ExpectQuery("SELECT DISTINCT name FROM assessments").WillReturnRows(rows)

	names, err := store.ListPatientNames(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []string{"Adam", "Zoe"}, names)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteStore_ImportJSON_RollsBackOnInsertFailure(t *testing.T) {
	store, mock := setupMockStore(t)

	payload := `{"version":"1.0","records":[
		{"patient":{"name":"Ana","age":30,"gender":"Female"},"heart":0.1,"diabetes":0.2,"hypertension":0.3,"score":80,"created_at":"2026-02-01T10:00:00Z"},
		{"patient":{"name":"Ben","age":40,"gender":"Male"},"heart":0.4,"diabetes":0.2,"hypertension":0.3,"score":70,"created_at":"2026-02-01T11:00:00Z"}
	]}`

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM assessments WHERE record_id").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("INSERT INTO assessments").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM assessments WHERE record_id").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec("INSERT INTO assessments").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	imported, skipped, err := store.ImportJSON(context.Background(), strings.NewReader(payload))

	var storeErr *domain.StorageError
	require.ErrorAs(t, err, &storeErr)
	assert.Equal(t, "import", storeErr.Op)
	assert.Zero(t, imported)
	assert.Zero(t, skipped)
	assert.NoError(t, mock.ExpectationsWereMet())
}
