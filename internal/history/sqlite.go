package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/digital-twin-risk-engine/internal/domain"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements domain.HistoryStore using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	dbPath  string
	logger  *logrus.Logger
	writeMu sync.Mutex // serializes append/delete
}

// NewSQLiteStore opens (creating if needed) the history database at dbPath.
func NewSQLiteStore(dbPath string, logger *logrus.Logger) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, domain.NewStorageError("open", fmt.Errorf("failed to create directory: %w", err))
	}

	db, err := sql.Open("sqlite", "file:"+dbPath+"?_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, domain.NewStorageError("open", fmt.Errorf("failed to open database: %w", err))
	}

	// Enable WAL mode so readers never see a half-applied delete
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, domain.NewStorageError("open", fmt.Errorf("failed to set WAL mode: %w", err))
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, domain.NewStorageError("open", fmt.Errorf("failed to create schema: %w", err))
	}

	s := NewSQLiteStoreFromDB(db, logger)
	s.dbPath = dbPath

	logger.WithField("path", dbPath).Info("History store opened")
	return s, nil
}

// NewSQLiteStoreFromDB wraps an already-initialized database handle.
func NewSQLiteStoreFromDB(db *sql.DB, logger *logrus.Logger) *SQLiteStore {
	return &SQLiteStore{db: db, logger: logger}
}

// createSchema creates the database tables and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS assessments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		record_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		age INTEGER NOT NULL,
		gender TEXT NOT NULL,
		heart REAL NOT NULL,
		diabetes REAL NOT NULL,
		hypertension REAL NOT NULL,
		score REAL NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_assessments_name ON assessments(name, id);
	`

	_, err := db.Exec(schema)
	return err
}

const selectColumns = `SELECT id, record_id, name, age, gender,
			heart, diabetes, hypertension, score, created_at
		FROM assessments`

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanRecord scans a row into an AssessmentRecord.
func scanRecord(s scanner) (*domain.AssessmentRecord, error) {
	rec := &domain.AssessmentRecord{}
	var recordID, gender, createdAt string

	err := s.Scan(
		&rec.ID, &recordID, &rec.Patient.Name, &rec.Patient.Age, &gender,
		&rec.Heart, &rec.Diabetes, &rec.Hypertension, &rec.Score, &createdAt,
	)
	if err != nil {
		return nil, err
	}

	if rec.RecordID, err = uuid.Parse(recordID); err != nil {
		return nil, fmt.Errorf("invalid record_id %q: %w", recordID, err)
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}
	rec.Patient.Gender = domain.Gender(gender)
	return rec, nil
}

// Append inserts a new record. The insert is committed before returning.
func (s *SQLiteStore) Append(ctx context.Context, record *domain.AssessmentRecord) error {
	if err := prepare(record); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.NewStorageError("append", fmt.Errorf("failed to begin: %w", err))
	}
	defer tx.Rollback()

	id, err := insertRecord(ctx, tx, record)
	if err != nil {
		return domain.NewStorageError("append", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.NewStorageError("append", fmt.Errorf("failed to commit: %w", err))
	}
	record.ID = id

	s.logger.WithFields(logrus.Fields{
		"id":        id,
		"record_id": record.RecordID,
		"patient":   record.Patient.Name,
	}).Debug("Assessment record appended")
	return nil
}

// ListPatientNames returns each distinct patient name once.
func (s *SQLiteStore) ListPatientNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT name FROM assessments ORDER BY name")
	if err != nil {
		return nil, domain.NewStorageError("list patients", fmt.Errorf("failed to query: %w", err))
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, domain.NewStorageError("list patients", fmt.Errorf("failed to scan row: %w", err))
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError("list patients", err)
	}
	return names, nil
}

// History returns all records for name in insertion order.
func (s *SQLiteStore) History(ctx context.Context, name string) ([]*domain.AssessmentRecord, error) {
	return s.query(ctx, "history", selectColumns+" WHERE name = ? ORDER BY id ASC", name)
}

// Latest returns the newest record for name.
func (s *SQLiteStore) Latest(ctx context.Context, name string) (*domain.AssessmentRecord, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" WHERE name = ? ORDER BY id DESC LIMIT 1", name)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewStorageError("latest", fmt.Errorf("patient %q: %w", name, domain.ErrNotFound))
	}
	if err != nil {
		return nil, domain.NewStorageError("latest", fmt.Errorf("failed to scan: %w", err))
	}
	return rec, nil
}

// DeletePatient removes every record for name.
func (s *SQLiteStore) DeletePatient(ctx context.Context, name string) (int64, error) {
	return s.delete(ctx, "delete patient", "DELETE FROM assessments WHERE name = ?", name)
}

// DeleteAll clears the store.
func (s *SQLiteStore) DeleteAll(ctx context.Context) (int64, error) {
	return s.delete(ctx, "delete all", "DELETE FROM assessments")
}

func (s *SQLiteStore) delete(ctx context.Context, op, query string, args ...interface{}) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, domain.NewStorageError(op, fmt.Errorf("failed to begin: %w", err))
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, domain.NewStorageError(op, fmt.Errorf("failed to delete: %w", err))
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, domain.NewStorageError(op, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, domain.NewStorageError(op, fmt.Errorf("failed to commit: %w", err))
	}

	s.logger.WithFields(logrus.Fields{"op": op, "removed": n}).Info("Assessment records deleted")
	return n, nil
}

// ExportJSON exports all records to a JSON writer.
func (s *SQLiteStore) ExportJSON(ctx context.Context, w io.Writer) error {
	return exportJSON(ctx, s, w)
}

// ImportJSON imports records from a JSON reader.
func (s *SQLiteStore) ImportJSON(ctx context.Context, r io.Reader) (imported int, skipped int, err error) {
	return importJSON(ctx, s, r)
}

// Close closes the store and releases resources.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) all(ctx context.Context) ([]*domain.AssessmentRecord, error) {
	return s.query(ctx, "export", selectColumns+" ORDER BY id ASC")
}

func insertRecord(ctx context.Context, tx *sql.Tx, record *domain.AssessmentRecord) (int64, error) {
	result, err := tx.ExecContext(ctx, `
		INSERT INTO assessments (
			record_id, name, age, gender,
			heart, diabetes, hypertension, score, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		record.RecordID.String(),
		record.Patient.Name,
		record.Patient.Age,
		string(record.Patient.Gender),
		float64(record.Heart),
		float64(record.Diabetes),
		float64(record.Hypertension),
		float64(record.Score),
		record.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get insert ID: %w", err)
	}
	return id, nil
}

func (s *SQLiteStore) appendBatch(ctx context.Context, records []*domain.AssessmentRecord) (imported int, skipped int, err error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, domain.NewStorageError("import", fmt.Errorf("failed to begin: %w", err))
	}
	defer tx.Rollback()

	ids := make([]int64, len(records))
	for i, record := range records {
		var n int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM assessments WHERE record_id = ?", record.RecordID.String()).Scan(&n); err != nil {
			return 0, 0, domain.NewStorageError("import", fmt.Errorf("failed to look up record: %w", err))
		}
		if n > 0 {
			skipped++
			continue
		}
		if ids[i], err = insertRecord(ctx, tx, record); err != nil {
			return 0, 0, domain.NewStorageError("import", err)
		}
		imported++
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, domain.NewStorageError("import", fmt.Errorf("failed to commit: %w", err))
	}
	for i, record := range records {
		record.ID = ids[i]
	}

	s.logger.WithFields(logrus.Fields{"imported": imported, "skipped": skipped}).Info("Assessment records imported")
	return imported, skipped, nil
}

func (s *SQLiteStore) query(ctx context.Context, op, query string, args ...interface{}) ([]*domain.AssessmentRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.NewStorageError(op, fmt.Errorf("failed to query: %w", err))
	}
	defer rows.Close()

	result := []*domain.AssessmentRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, domain.NewStorageError(op, fmt.Errorf("failed to scan row: %w", err))
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError(op, err)
	}
	return result, nil
}
