// Package predictor wraps externally trained (model, scaler) pairs behind a
// uniform probability-prediction contract, one adapter per condition.
package predictor

import (
	"fmt"
	"math"

	"github.com/spf13/cast"

	"github.com/digital-twin-risk-engine/internal/domain"
)

// Model is the classifier capability: it returns [p_negative, p_positive]
// for a single scaled feature row.
type Model interface {
	PredictProbability(features []float64) ([]float64, error)
}

// Scaler is the fitted feature-scaler capability.
type Scaler interface {
	FeatureNames() []string
	Transform(row []float64) ([]float64, error)
}

// Adapter binds one model and scaler to a condition.
type Adapter struct {
	condition domain.Condition
	model     Model
	scaler    Scaler
}

// NewAdapter creates an adapter. Missing capabilities are a ConfigurationError;
// the caller must not proceed to prediction.
func NewAdapter(condition domain.Condition, model Model, scaler Scaler) (*Adapter, error) {
	component := string(condition) + " predictor"
	if !condition.IsValid() {
		return nil, domain.NewConfigurationError(component, "", domain.ErrInvalidCondition)
	}
	if model == nil {
		return nil, domain.NewConfigurationError(component, "", fmt.Errorf("model is required"))
	}
	if scaler == nil {
		return nil, domain.NewConfigurationError(component, "", fmt.Errorf("scaler is required"))
	}
	if len(scaler.FeatureNames()) == 0 {
		return nil, domain.NewConfigurationError(component, "", fmt.Errorf("scaler exposes no feature names"))
	}
	return &Adapter{condition: condition, model: model, scaler: scaler}, nil
}

// Condition returns the condition this adapter predicts.
func (a *Adapter) Condition() domain.Condition {
	return a.condition
}

// Predict reindexes obs by the scaler's feature names (absent fields are 0,
// unknown fields ignored), scales the row and returns the clamped
// positive-class probability.
func (a *Adapter) Predict(obs domain.Observation) (domain.RiskProbability, error) {
	row, err := Reindex(obs, a.scaler.FeatureNames())
	if err != nil {
		return 0, err
	}

	scaled, err := a.scaler.Transform(row)
	if err != nil {
		return 0, domain.NewConfigurationError(string(a.condition)+" scaler", "", err)
	}

	probs, err := a.model.PredictProbability(scaled)
	if err != nil {
		return 0, domain.NewConfigurationError(string(a.condition)+" model", "", err)
	}
	if len(probs) < 2 {
		return 0, domain.NewConfigurationError(string(a.condition)+" model", "",
			fmt.Errorf("expected 2 class probabilities, got %d", len(probs)))
	}

	p := probs[1]
	if math.IsNaN(p) {
		return 0, domain.NewInputError(string(a.condition), row, "model produced no probability for this observation")
	}
	return domain.RiskProbability(clamp(p)), nil
}

// Reindex builds the feature row in the order of names.
func Reindex(obs domain.Observation, names []string) ([]float64, error) {
	row := make([]float64, len(names))
	for i, name := range names {
		raw, ok := obs[name]
		if !ok || raw == nil {
			continue
		}
		v, err := cast.ToFloat64E(raw)
		if err != nil {
			return nil, domain.NewInputError(name, raw, "value is not numeric")
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, domain.NewInputError(name, raw, "value must be finite")
		}
		row[i] = v
	}
	return row, nil
}

func clamp(p float64) float64 {
	return math.Max(0, math.Min(1, p))
}
