package domain

import (
	"context"
	"io"
)

// Predictor turns an observation into a risk probability for one condition
type Predictor interface {
	Condition() Condition
	Predict(obs Observation) (RiskProbability, error)
}

// HistoryStore is the durable, append-only repository of assessment records.
// Records are never updated; corrections require delete + append.
type HistoryStore interface {
	// Append inserts a new record and assigns its ID. Duplicate names are allowed.
	Append(ctx context.Context, record *AssessmentRecord) error

	// ListPatientNames returns each distinct patient name once, sorted.
	ListPatientNames(ctx context.Context) ([]string, error)

	// History returns all records for name in insertion order.
	History(ctx context.Context, name string) ([]*AssessmentRecord, error)

	// Latest returns the newest record for name or a StorageError wrapping ErrNotFound.
	Latest(ctx context.Context, name string) (*AssessmentRecord, error)

	// DeletePatient removes every record for name and returns the number removed.
	DeletePatient(ctx context.Context, name string) (int64, error)

	// DeleteAll clears the store and returns the number of records removed.
	DeleteAll(ctx context.Context) (int64, error)

	// ExportJSON writes every record as a versioned JSON document.
	ExportJSON(ctx context.Context, w io.Writer) error

	// ImportJSON appends records from an export, skipping known record IDs.
	ImportJSON(ctx context.Context, r io.Reader) (imported int, skipped int, err error)

	// Close releases the underlying connection.
	Close() error
}

// Authenticator verifies an operator before patient data is exposed
type Authenticator interface {
	Begin(ctx context.Context, username, password string) (*Challenge, error)
	Verify(ctx context.Context, challengeID, code string) (*Session, error)
}
