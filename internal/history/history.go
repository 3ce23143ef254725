// Package history provides the durable, append-only store of assessment
// records. Records are inserted or deleted, never updated.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/digital-twin-risk-engine/internal/domain"
)

// ExportVersion is the version written into JSON exports.
const ExportVersion = "1.0"

// Export represents the JSON export format.
type Export struct {
	Version    string                     `json:"version"`
	ExportedAt time.Time                  `json:"exported_at"`
	Count      int                        `json:"count"`
	Records    []*domain.AssessmentRecord `json:"records"`
}

// recordSource is what the shared export/import helpers need from a backend.
type recordSource interface {
	all(ctx context.Context) ([]*domain.AssessmentRecord, error)
	// appendBatch inserts records in one transaction, skipping record IDs
	// already stored. Nothing is written when it fails.
	appendBatch(ctx context.Context, records []*domain.AssessmentRecord) (imported int, skipped int, err error)
}

// prepare fills generated fields and normalizes the timestamp to the
// precision every backend can round-trip.
func prepare(record *domain.AssessmentRecord) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	if err := record.Patient.Validate(); err != nil {
		return err
	}
	for _, c := range domain.Conditions() {
		if p := record.Probability(c); p < 0 || p > 1 {
			return domain.NewInputError(string(c), float64(p), "probability must be within [0,1]")
		}
	}
	if record.RecordID == uuid.Nil {
		record.RecordID = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	record.CreatedAt = record.CreatedAt.UTC().Truncate(time.Microsecond)
	return nil
}

func exportJSON(ctx context.Context, s recordSource, w io.Writer) error {
	all, err := s.all(ctx)
	if err != nil {
		return err
	}
	if all == nil {
		all = []*domain.AssessmentRecord{}
	}

	export := &Export{
		Version:    ExportVersion,
		ExportedAt: time.Now().UTC(),
		Count:      len(all),
		Records:    all,
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(export); err != nil {
		return domain.NewStorageError("export", err)
	}
	return nil
}

func importJSON(ctx context.Context, s recordSource, r io.Reader) (imported int, skipped int, err error) {
	var export Export
	if err := json.NewDecoder(r).Decode(&export); err != nil {
		return 0, 0, domain.NewInputError("export", nil, fmt.Sprintf("failed to decode JSON: %v", err))
	}
	if export.Version != ExportVersion {
		return 0, 0, domain.NewInputError("version", export.Version, "unsupported export version")
	}

	batch := make([]*domain.AssessmentRecord, 0, len(export.Records))
	seen := make(map[uuid.UUID]bool, len(export.Records))
	for i, rec := range export.Records {
		if rec == nil {
			continue
		}
		if rec.RecordID != uuid.Nil {
			if seen[rec.RecordID] {
				skipped++
				continue
			}
			seen[rec.RecordID] = true
		}
		rec.ID = 0
		if err := prepare(rec); err != nil {
			return 0, 0, fmt.Errorf("record %d: %w", i, err)
		}
		batch = append(batch, rec)
	}
	if len(batch) == 0 {
		return 0, skipped, nil
	}

	imported, existing, err := s.appendBatch(ctx, batch)
	if err != nil {
		return 0, 0, err
	}
	return imported, skipped + existing, nil
}
