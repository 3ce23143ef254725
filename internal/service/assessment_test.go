package service

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/digital-twin-risk-engine/internal/domain"
	"github.com/digital-twin-risk-engine/internal/history"
	"github.com/digital-twin-risk-engine/internal/report"
	"github.com/digital-twin-risk-engine/internal/scoring"
)

type stubPredictor struct {
	condition domain.Condition
	p         domain.RiskProbability
	err       error
	seen      domain.Observation
}

func (s *stubPredictor) Condition() domain.Condition { return s.condition }

func (s *stubPredictor) Predict(obs domain.Observation) (domain.RiskProbability, error) {
	s.seen = obs
	return s.p, s.err
}

// failingStore fails every append and counts attempts.
type failingStore struct {
	domain.HistoryStore
	appends int
}

func (f *failingStore) Append(ctx context.Context, record *domain.AssessmentRecord) error {
	f.appends++
	return domain.NewStorageError("append", errors.New("disk full"))
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	return logger
}

func stubs(h, d, hy domain.RiskProbability) (*stubPredictor, *stubPredictor, *stubPredictor) {
	return &stubPredictor{condition: domain.Heart, p: h},
		&stubPredictor{condition: domain.Diabetes, p: d},
		&stubPredictor{condition: domain.Hypertension, p: hy}
}

func newTestService(t *testing.T, preds ...domain.Predictor) (*AssessmentService, *history.SQLiteStore) {
	t.Helper()
	store, err := history.NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	fixed := time.Date(2026, 3, 14, 9, 26, 0, 0, time.FixedZone("IST", 19800))
	svc, err := NewAssessmentService(preds, store, testLogger(), WithClock(func() time.Time { return fixed }))
	require.NoError(t, err)
	return svc, store
}

func sampleObservation() domain.Observation {
	return domain.Observation{
		domain.FieldChestPain:    2,
		domain.FieldRestingBP:    130,
		domain.FieldCholesterol:  "240",
		domain.FieldMaxHeartRate: 150,
		domain.FieldSTDepression: 1.4,
		domain.FieldPregnancies:  3,
		domain.FieldGlucose:      110,
		domain.FieldBMI:          27.5,
		domain.FieldSaltIntake:   8,
		domain.FieldStressLevel:  6,
		domain.FieldSleepHours:   6.5,
	}
}

func TestNewAssessmentService_RequiresAllPredictors(t *testing.T) {
	h, d, _ := stubs(0.1, 0.1, 0.1)
	store := &failingStore{}

	_, err := NewAssessmentService([]domain.Predictor{h, d}, store, testLogger())
	var cfgErr *domain.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, err.Error(), "hypertension")

	_, err = NewAssessmentService([]domain.Predictor{h, d, h}, store, testLogger())
	require.ErrorAs(t, err, &cfgErr)

	_, err = NewAssessmentService([]domain.Predictor{h, d}, nil, testLogger())
	require.ErrorAs(t, err, &cfgErr)
}

func TestAssessmentService_Run(t *testing.T) {
	h, d, hy := stubs(0.7, 0.3, 0.2)
	svc, store := newTestService(t, h, d, hy)
	ctx := context.Background()

	identity := domain.PatientIdentity{Name: "Test", Age: 40, Gender: domain.Male}
	result, err := svc.Run(ctx, identity, sampleObservation())
	require.NoError(t, err)

	assert.InDelta(t, 60.0, float64(result.Score), 1e-9)
	assert.Equal(t, map[domain.Condition]domain.RiskCategory{
		domain.Heart:        domain.HighRisk,
		domain.Diabetes:     domain.LowRisk,
		domain.Hypertension: domain.LowRisk,
	}, result.Categories)
	assert.Equal(t, domain.AdviceSet{scoring.HeartAdvice}, result.Advice)
	assert.Equal(t, domain.RiskProbability(0.7), result.Probabilities[domain.Heart])

	require.NotNil(t, result.Record)
	assert.NotZero(t, result.Record.ID)
	assert.Equal(t, time.UTC, result.Record.CreatedAt.Location())
	assert.Equal(t, "14-03-2026 03:56", result.Record.CreatedAt.Format(domain.DisplayTimeLayout))

	stored, err := store.History(ctx, "Test")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, result.Record.RecordID, stored[0].RecordID)
}

func TestAssessmentService_Run_FeatureBindings(t *testing.T) {
	h, d, hy := stubs(0.1, 0.1, 0.1)
	svc, _ := newTestService(t, h, d, hy)

	_, err := svc.Run(context.Background(), domain.PatientIdentity{Name: "Test", Age: 40, Gender: domain.Male}, sampleObservation())
	require.NoError(t, err)

	assert.Equal(t, domain.Observation{
		"age": 40, "cp": 2, "trestbps": 130, "chol": "240", "thalach": 150, "oldpeak": 1.4,
	}, h.seen)
	assert.Equal(t, domain.Observation{
		"Pregnancies": 0, "Glucose": 110, "BMI": 27.5, "Age": 40,
	}, d.seen, "pregnancies forced to 0 for male patients")
	assert.Equal(t, domain.Observation{
		"Age": 40, "Salt_Intake": 8, "Stress_Score": 6, "Sleep_Duration": 6.5, "BMI": 27.5,
	}, hy.seen)

	_, err = svc.Run(context.Background(), domain.PatientIdentity{Name: "Ana", Age: 33, Gender: domain.Female}, sampleObservation())
	require.NoError(t, err)
	assert.Equal(t, 3, d.seen["Pregnancies"])
	assert.Equal(t, 33, d.seen["Age"])
}

func TestBuildObservation_MissingFieldsOmitted(t *testing.T) {
	obs := BuildObservation(domain.Hypertension, domain.PatientIdentity{Name: "X", Age: 50, Gender: domain.Female},
		domain.Observation{domain.FieldBMI: 22})

	assert.Equal(t, domain.Observation{"Age": 50, "BMI": 22}, obs)
}

func TestAssessmentService_Run_AtomicOnPredictorFailure(t *testing.T) {
	h, d, hy := stubs(0.7, 0.3, 0.2)
	hy.err = domain.NewInputError("Salt_Intake", "lots", "value is not numeric")
	svc, store := newTestService(t, h, d, hy)
	ctx := context.Background()

	_, err := svc.Run(ctx, domain.PatientIdentity{Name: "Test", Age: 40, Gender: domain.Male}, sampleObservation())

	var assessErr *domain.AssessmentError
	require.ErrorAs(t, err, &assessErr)
	var inErr *domain.InputError
	assert.ErrorAs(t, err, &inErr)
	assert.Equal(t, "Test", assessErr.Patient)

	names, err := store.ListPatientNames(ctx)
	require.NoError(t, err)
	assert.Empty(t, names, "failed run must not persist")
}

func TestAssessmentService_Run_InvalidIdentity(t *testing.T) {
	h, d, hy := stubs(0.1, 0.1, 0.1)
	svc, _ := newTestService(t, h, d, hy)

	_, err := svc.Run(context.Background(), domain.PatientIdentity{Name: "Old", Age: 130, Gender: domain.Male}, nil)

	var assessErr *domain.AssessmentError
	require.ErrorAs(t, err, &assessErr)
	assert.Nil(t, h.seen, "predictors are not invoked for an invalid identity")
}

func TestAssessmentService_Run_StorageFailure(t *testing.T) {
	h, d, hy := stubs(0.1, 0.1, 0.1)
	store := &failingStore{}
	svc, err := NewAssessmentService([]domain.Predictor{h, d, hy}, store, testLogger())
	require.NoError(t, err)

	result, err := svc.Run(context.Background(), domain.PatientIdentity{Name: "Test", Age: 40, Gender: domain.Male}, sampleObservation())

	assert.Nil(t, result)
	var assessErr *domain.AssessmentError
	require.ErrorAs(t, err, &assessErr)
	var storeErr *domain.StorageError
	assert.ErrorAs(t, err, &storeErr)
	assert.Equal(t, 1, store.appends)
}

func TestAssessmentService_QueriesAndDeletes(t *testing.T) {
	h, d, hy := stubs(0.2, 0.6, 0.4)
	svc, _ := newTestService(t, h, d, hy)
	ctx := context.Background()

	for _, name := range []string{"Zoe", "Adam", "Zoe"} {
		_, err := svc.Run(ctx, domain.PatientIdentity{Name: name, Age: 30, Gender: domain.Female}, sampleObservation())
		require.NoError(t, err)
	}

	names, err := svc.QueryPatients(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Adam", "Zoe"}, names)

	records, err := svc.QueryHistory(ctx, "Zoe")
	require.NoError(t, err)
	assert.Len(t, records, 2)

	latest, err := svc.Latest(ctx, "Zoe")
	require.NoError(t, err)
	assert.Equal(t, records[1].RecordID, latest.Record.RecordID)
	assert.Equal(t, domain.AdviceSet{scoring.DiabetesAdvice}, latest.Advice)

	removed, err := svc.DeletePatient(ctx, "Zoe")
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)

	removed, err = svc.DeleteAllPatients(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	names, err = svc.QueryPatients(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestAssessmentService_RequestReport(t *testing.T) {
	h, d, hy := stubs(0.7, 0.3, 0.2)
	svc, _ := newTestService(t, h, d, hy)
	ctx := context.Background()

	_, err := svc.Run(ctx, domain.PatientIdentity{Name: "Test", Age: 40, Gender: domain.Male}, sampleObservation())
	require.NoError(t, err)

	var buf bytes.Buffer
	doc, err := svc.RequestReport(ctx, "Test", report.TextRenderer{}, &buf)
	require.NoError(t, err)

	assert.Contains(t, doc.Lines(), "Heart Risk: 70.0% (High Risk)")
	assert.Contains(t, buf.String(), "Health Score: 60.0/100")
	assert.Contains(t, buf.String(), scoring.HeartAdvice)

	_, err = svc.RequestReport(ctx, "Nobody", report.TextRenderer{}, &buf)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAssessmentService_ExportTrend(t *testing.T) {
	h, d, hy := stubs(0.7, 0.3, 0.2)
	svc, _ := newTestService(t, h, d, hy)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Run(ctx, domain.PatientIdentity{Name: "Test", Age: 40, Gender: domain.Male}, sampleObservation())
		require.NoError(t, err)
	}

	var buf bytes.Buffer
	require.NoError(t, svc.ExportTrend(ctx, "Test", &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows("Trend")
	require.NoError(t, err)
	assert.Len(t, rows, 4)

	err = svc.ExportTrend(ctx, "Nobody", &buf)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestHistoryService_ExportImport(t *testing.T) {
	h, d, hy := stubs(0.7, 0.3, 0.2)
	svc, _ := newTestService(t, h, d, hy)
	ctx := context.Background()

	_, err := svc.Run(ctx, domain.PatientIdentity{Name: "Test", Age: 40, Gender: domain.Male}, sampleObservation())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, svc.Export(ctx, &buf))

	target, err := history.NewSQLiteStore(filepath.Join(t.TempDir(), "copy.db"), testLogger())
	require.NoError(t, err)
	defer target.Close()
	hs, err := NewHistoryService(target, testLogger())
	require.NoError(t, err)

	imported, skipped, err := hs.Import(ctx, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 1, imported)
	assert.Zero(t, skipped)

	names, err := hs.QueryPatients(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Test"}, names)
}
