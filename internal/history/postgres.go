package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/digital-twin-risk-engine/internal/domain"
)

// PostgresStore implements domain.HistoryStore using PostgreSQL.
// It expects the schema to already exist (created via migrations).
type PostgresStore struct {
	pool    *pgxpool.Pool
	logger  *logrus.Logger
	writeMu sync.Mutex
}

// NewPostgresStore creates a store over an established pool.
func NewPostgresStore(pool *pgxpool.Pool, logger *logrus.Logger) (*PostgresStore, error) {
	if pool == nil {
		return nil, domain.NewStorageError("open", fmt.Errorf("database pool is required"))
	}
	return &PostgresStore{pool: pool, logger: logger}, nil
}

const pgSelectColumns = `SELECT id, record_id, name, age, gender,
			heart, diabetes, hypertension, score, created_at
		FROM assessments`

func scanPgRecord(row pgx.Row) (*domain.AssessmentRecord, error) {
	rec := &domain.AssessmentRecord{}
	var gender string
	var heart, diabetes, hypertension, score float64

	err := row.Scan(
		&rec.ID, &rec.RecordID, &rec.Patient.Name, &rec.Patient.Age, &gender,
		&heart, &diabetes, &hypertension, &score, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Patient.Gender = domain.Gender(gender)
	rec.Heart = domain.RiskProbability(heart)
	rec.Diabetes = domain.RiskProbability(diabetes)
	rec.Hypertension = domain.RiskProbability(hypertension)
	rec.Score = domain.CompositeScore(score)
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}

// Append inserts a new record inside a transaction.
func (s *PostgresStore) Append(ctx context.Context, record *domain.AssessmentRecord) error {
	if err := prepare(record); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.NewStorageError("append", fmt.Errorf("beginning transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	id, err := insertPgRecord(ctx, tx, record)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"record_id": record.RecordID,
			"error":     err,
		}).Error("Failed to append assessment record")
		return domain.NewStorageError("append", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.NewStorageError("append", fmt.Errorf("committing: %w", err))
	}
	record.ID = id
	return nil
}

// ListPatientNames returns each distinct patient name once.
func (s *PostgresStore) ListPatientNames(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, "SELECT DISTINCT name FROM assessments ORDER BY name")
	if err != nil {
		return nil, domain.NewStorageError("list patients", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, domain.NewStorageError("list patients", err)
	}
	if names == nil {
		names = []string{}
	}
	return names, nil
}

// History returns all records for name in insertion order.
func (s *PostgresStore) History(ctx context.Context, name string) ([]*domain.AssessmentRecord, error) {
	return s.query(ctx, "history", pgSelectColumns+" WHERE name = $1 ORDER BY id ASC", name)
}

// Latest returns the newest record for name.
func (s *PostgresStore) Latest(ctx context.Context, name string) (*domain.AssessmentRecord, error) {
	rec, err := scanPgRecord(s.pool.QueryRow(ctx, pgSelectColumns+" WHERE name = $1 ORDER BY id DESC LIMIT 1", name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NewStorageError("latest", fmt.Errorf("patient %q: %w", name, domain.ErrNotFound))
	}
	if err != nil {
		return nil, domain.NewStorageError("latest", err)
	}
	return rec, nil
}

// DeletePatient removes every record for name.
func (s *PostgresStore) DeletePatient(ctx context.Context, name string) (int64, error) {
	return s.delete(ctx, "delete patient", "DELETE FROM assessments WHERE name = $1", name)
}

// DeleteAll clears the store.
func (s *PostgresStore) DeleteAll(ctx context.Context) (int64, error) {
	return s.delete(ctx, "delete all", "DELETE FROM assessments")
}

func (s *PostgresStore) delete(ctx context.Context, op, query string, args ...any) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, domain.NewStorageError(op, fmt.Errorf("beginning transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return 0, domain.NewStorageError(op, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, domain.NewStorageError(op, fmt.Errorf("committing: %w", err))
	}

	s.logger.WithFields(logrus.Fields{"op": op, "removed": tag.RowsAffected()}).Info("Assessment records deleted")
	return tag.RowsAffected(), nil
}

// ExportJSON exports all records to a JSON writer.
func (s *PostgresStore) ExportJSON(ctx context.Context, w io.Writer) error {
	return exportJSON(ctx, s, w)
}

// ImportJSON imports records from a JSON reader.
func (s *PostgresStore) ImportJSON(ctx context.Context, r io.Reader) (imported int, skipped int, err error) {
	return importJSON(ctx, s, r)
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) all(ctx context.Context) ([]*domain.AssessmentRecord, error) {
	return s.query(ctx, "export", pgSelectColumns+" ORDER BY id ASC")
}

func insertPgRecord(ctx context.Context, tx pgx.Tx, record *domain.AssessmentRecord) (int64, error) {
	var id int64
	err := tx.QueryRow(ctx, `
		INSERT INTO assessments (
			record_id, name, age, gender,
			heart, diabetes, hypertension, score, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		record.RecordID,
		record.Patient.Name,
		record.Patient.Age,
		string(record.Patient.Gender),
		float64(record.Heart),
		float64(record.Diabetes),
		float64(record.Hypertension),
		float64(record.Score),
		record.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting record: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) appendBatch(ctx context.Context, records []*domain.AssessmentRecord) (imported int, skipped int, err error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, 0, domain.NewStorageError("import", fmt.Errorf("beginning transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	ids := make([]int64, len(records))
	for i, record := range records {
		var exists bool
		err := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM assessments WHERE record_id = $1)", record.RecordID).Scan(&exists)
		if err != nil {
			return 0, 0, domain.NewStorageError("import", fmt.Errorf("looking up record: %w", err))
		}
		if exists {
			skipped++
			continue
		}
		if ids[i], err = insertPgRecord(ctx, tx, record); err != nil {
			return 0, 0, domain.NewStorageError("import", err)
		}
		imported++
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, domain.NewStorageError("import", fmt.Errorf("committing: %w", err))
	}
	for i, record := range records {
		record.ID = ids[i]
	}

	s.logger.WithFields(logrus.Fields{"imported": imported, "skipped": skipped}).Info("Assessment records imported")
	return imported, skipped, nil
}

func (s *PostgresStore) query(ctx context.Context, op, query string, args ...any) ([]*domain.AssessmentRecord, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, domain.NewStorageError(op, err)
	}
	defer rows.Close()

	result := []*domain.AssessmentRecord{}
	for rows.Next() {
		rec, err := scanPgRecord(rows)
		if err != nil {
			return nil, domain.NewStorageError(op, fmt.Errorf("scanning row: %w", err))
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.NewStorageError(op, err)
	}
	return result, nil
}
