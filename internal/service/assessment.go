// Package service orchestrates predictors, scoring, the history store and
// report rendering behind the operations the CLI exposes.
package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/digital-twin-risk-engine/internal/domain"
	"github.com/digital-twin-risk-engine/internal/report"
	"github.com/digital-twin-risk-engine/internal/scoring"
)

// HistoryService serves stored assessments: queries, deletion, reports
// and trend exports. It needs no model artifacts.
type HistoryService struct {
	store  domain.HistoryStore
	logger *logrus.Logger
}

// NewHistoryService creates a history service over a store
func NewHistoryService(store domain.HistoryStore, logger *logrus.Logger) (*HistoryService, error) {
	if store == nil {
		return nil, domain.NewConfigurationError("history service", "", fmt.Errorf("history store is required"))
	}
	return &HistoryService{store: store, logger: logger}, nil
}

// AssessmentService runs assessments and serves their history
type AssessmentService struct {
	*HistoryService
	predictors map[domain.Condition]domain.Predictor
	now        func() time.Time
}

// Option customizes an AssessmentService
type Option func(*AssessmentService)

// WithClock overrides the timestamp source for new records.
func WithClock(now func() time.Time) Option {
	return func(s *AssessmentService) {
		s.now = now
	}
}

// NewAssessmentService creates the orchestrator. Exactly one predictor per
// condition is required.
func NewAssessmentService(predictors []domain.Predictor, store domain.HistoryStore, logger *logrus.Logger, opts ...Option) (*AssessmentService, error) {
	hs, err := NewHistoryService(store, logger)
	if err != nil {
		return nil, err
	}

	byCondition := make(map[domain.Condition]domain.Predictor, len(predictors))
	for _, p := range predictors {
		if p == nil {
			return nil, domain.NewConfigurationError("assessment service", "", fmt.Errorf("nil predictor"))
		}
		c := p.Condition()
		if _, dup := byCondition[c]; dup {
			return nil, domain.NewConfigurationError("assessment service", "", fmt.Errorf("duplicate predictor for %s", c))
		}
		byCondition[c] = p
	}
	for _, c := range domain.Conditions() {
		if _, ok := byCondition[c]; !ok {
			return nil, domain.NewConfigurationError("assessment service", "", fmt.Errorf("missing predictor for %s", c))
		}
	}

	s := &AssessmentService{
		HistoryService: hs,
		predictors:     byCondition,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Run predicts all three conditions, scores the result and appends the record.
// Any failure returns an AssessmentError and nothing is persisted.
func (s *AssessmentService) Run(ctx context.Context, identity domain.PatientIdentity, obs domain.Observation) (*domain.AssessmentResult, error) {
	startTime := time.Now()

	if err := identity.Validate(); err != nil {
		return nil, domain.NewAssessmentError(identity.Name, err)
	}

	probs := make(map[domain.Condition]domain.RiskProbability, 3)
	for _, c := range domain.Conditions() {
		p, err := s.predictors[c].Predict(BuildObservation(c, identity, obs))
		if err != nil {
			s.logger.WithError(err).WithField("condition", c).Warn("Prediction failed, assessment aborted")
			return nil, domain.NewAssessmentError(identity.Name, err)
		}
		probs[c] = p
	}

	record := &domain.AssessmentRecord{
		Patient:      identity,
		Heart:        probs[domain.Heart],
		Diabetes:     probs[domain.Diabetes],
		Hypertension: probs[domain.Hypertension],
		Score:        scoring.Score(probs[domain.Heart], probs[domain.Diabetes], probs[domain.Hypertension]),
		CreatedAt:    s.now().UTC(),
	}

	if err := s.store.Append(ctx, record); err != nil {
		return nil, domain.NewAssessmentError(identity.Name, err)
	}

	result := resultFor(record)

	s.logger.WithFields(logrus.Fields{
		"patient":         identity.Name,
		"record_id":       record.RecordID,
		"score":           float64(record.Score),
		"processing_time": time.Since(startTime),
	}).Info("Assessment completed")

	return result, nil
}

func resultFor(record *domain.AssessmentRecord) *domain.AssessmentResult {
	probs := make(map[domain.Condition]domain.RiskProbability, 3)
	for _, c := range domain.Conditions() {
		probs[c] = record.Probability(c)
	}
	return &domain.AssessmentResult{
		Record:        record,
		Probabilities: probs,
		Categories:    scoring.Categorize(record),
		Score:         record.Score,
		Advice:        scoring.AdviseRecord(record),
	}
}

// QueryPatients returns each distinct patient name once.
func (s *HistoryService) QueryPatients(ctx context.Context) ([]string, error) {
	return s.store.ListPatientNames(ctx)
}

// QueryHistory returns a patient's records oldest first.
func (s *HistoryService) QueryHistory(ctx context.Context, name string) ([]*domain.AssessmentRecord, error) {
	return s.store.History(ctx, name)
}

// Latest returns the newest assessment for a patient with categories and
// advice recomputed from the stored probabilities.
func (s *HistoryService) Latest(ctx context.Context, name string) (*domain.AssessmentResult, error) {
	record, err := s.store.Latest(ctx, name)
	if err != nil {
		return nil, err
	}
	return resultFor(record), nil
}

// DeletePatient removes every record for a patient.
func (s *HistoryService) DeletePatient(ctx context.Context, name string) (int64, error) {
	removed, err := s.store.DeletePatient(ctx, name)
	if err != nil {
		return 0, err
	}
	s.logger.WithFields(logrus.Fields{
		"patient": name,
		"removed": removed,
	}).Info("Patient history deleted")
	return removed, nil
}

// DeleteAllPatients clears the history store.
func (s *HistoryService) DeleteAllPatients(ctx context.Context) (int64, error) {
	removed, err := s.store.DeleteAll(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.WithField("removed", removed).Info("All patient history deleted")
	return removed, nil
}

// RequestReport renders the report for a patient's latest assessment.
func (s *HistoryService) RequestReport(ctx context.Context, name string, renderer report.Renderer, w io.Writer) (report.Document, error) {
	record, err := s.store.Latest(ctx, name)
	if err != nil {
		return report.Document{}, err
	}

	doc := report.Assemble(record, scoring.AdviseRecord(record))
	if err := renderer.Render(w, doc); err != nil {
		return report.Document{}, fmt.Errorf("rendering %s report: %w", renderer.Extension(), err)
	}

	s.logger.WithFields(logrus.Fields{
		"patient":   name,
		"record_id": record.RecordID,
		"format":    renderer.Extension(),
	}).Info("Report rendered")
	return doc, nil
}

// ExportTrend writes a patient's history as an XLSX workbook.
func (s *HistoryService) ExportTrend(ctx context.Context, name string, w io.Writer) error {
	records, err := s.store.History(ctx, name)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return domain.NewStorageError("export trend", fmt.Errorf("patient %q: %w", name, domain.ErrNotFound))
	}

	data, err := report.TrendWorkbook(records)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing trend workbook: %w", err)
	}
	return nil
}

// Export writes the whole history as a versioned JSON document.
func (s *HistoryService) Export(ctx context.Context, w io.Writer) error {
	return s.store.ExportJSON(ctx, w)
}

// Import appends records from an export, skipping records already present.
func (s *HistoryService) Import(ctx context.Context, r io.Reader) (imported int, skipped int, err error) {
	imported, skipped, err = s.store.ImportJSON(ctx, r)
	if err != nil {
		return imported, skipped, err
	}
	s.logger.WithFields(logrus.Fields{
		"imported": imported,
		"skipped":  skipped,
	}).Info("History imported")
	return imported, skipped, nil
}
