package predictor

import (
	"encoding/json"
	"fmt"
	"math"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"golang.org/x/mod/semver"

	"github.com/digital-twin-risk-engine/internal/domain"
)

// ArtifactFormat identifies model artifact documents.
const ArtifactFormat = "riskengine.model"

// SupportedMajor is the artifact format major version this build reads.
const SupportedMajor = "v1"

// Artifact is the explicit, versioned on-disk form of a trained
// (scaler, model) pair for one condition.
type Artifact struct {
	Format    string           `json:"format"`
	Version   string           `json:"version"`
	Condition domain.Condition `json:"condition"`
	Scaler    StandardScaler   `json:"scaler"`
	Model     LogisticModel    `json:"model"`
}

// StandardScaler applies (x - mean) / scale per feature.
type StandardScaler struct {
	Features []string  `json:"feature_names"`
	Mean     []float64 `json:"mean"`
	Scale    []float64 `json:"scale"`
}

// FeatureNames implements Scaler.
func (s *StandardScaler) FeatureNames() []string {
	return s.Features
}

// Transform implements Scaler.
func (s *StandardScaler) Transform(row []float64) ([]float64, error) {
	if len(row) != len(s.Features) {
		return nil, fmt.Errorf("expected %d features, got %d", len(s.Features), len(row))
	}
	out := make([]float64, len(row))
	for i, v := range row {
		out[i] = (v - s.Mean[i]) / s.Scale[i]
	}
	return out, nil
}

// LogisticModel is a binary logistic-regression classifier.
type LogisticModel struct {
	Kind         string    `json:"kind"`
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
}

// PredictProbability implements Model.
func (m *LogisticModel) PredictProbability(features []float64) ([]float64, error) {
	if len(features) != len(m.Coefficients) {
		return nil, fmt.Errorf("expected %d features, got %d", len(m.Coefficients), len(features))
	}
	z := m.Intercept
	for i, x := range features {
		z += m.Coefficients[i] * x
	}
	p := 1 / (1 + math.Exp(-z))
	return []float64{1 - p, p}, nil
}

const artifactSchemaJSON = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["format", "version", "condition", "scaler", "model"],
  "properties": {
    "format": {"const": "riskengine.model"},
    "version": {"type": "string", "pattern": "^[0-9]+\\.[0-9]+\\.[0-9]+$"},
    "condition": {"enum": ["heart", "diabetes", "hypertension"]},
    "scaler": {
      "type": "object",
      "required": ["feature_names", "mean", "scale"],
      "properties": {
        "feature_names": {"type": "array", "minItems": 1, "items": {"type": "string", "minLength": 1}},
        "mean": {"type": "array", "items": {"type": "number"}},
        "scale": {"type": "array", "items": {"type": "number", "exclusiveMinimum": 0}}
      }
    },
    "model": {
      "type": "object",
      "required": ["kind", "coefficients", "intercept"],
      "properties": {
        "kind": {"const": "logistic_regression"},
        "coefficients": {"type": "array", "items": {"type": "number"}},
        "intercept": {"type": "number"}
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	artifactSchema *jsonschema.Schema
	schemaErr      error
)

func compiledArtifactSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		var def any
		if err := json.Unmarshal([]byte(artifactSchemaJSON), &def); err != nil {
			schemaErr = fmt.Errorf("parse artifact schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		const url = "schema://riskengine-model.json"
		if err := c.AddResource(url, def); err != nil {
			schemaErr = fmt.Errorf("add resource: %w", err)
			return
		}
		artifactSchema, schemaErr = c.Compile(url)
	})
	return artifactSchema, schemaErr
}

// ParseArtifact validates raw JSON against the artifact schema and format
// version, then checks that all vectors agree in length. No alternate
// encodings are attempted.
func ParseArtifact(raw []byte) (*Artifact, error) {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	schema, err := compiledArtifactSchema()
	if err != nil {
		return nil, err
	}
	if err := schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	var art Artifact
	if err := json.Unmarshal(raw, &art); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}

	v := "v" + art.Version
	if !semver.IsValid(v) || semver.Major(v) != SupportedMajor {
		return nil, fmt.Errorf("unsupported artifact version %q (want %s.x.y)", art.Version, SupportedMajor)
	}

	n := len(art.Scaler.Features)
	if len(art.Scaler.Mean) != n || len(art.Scaler.Scale) != n || len(art.Model.Coefficients) != n {
		return nil, fmt.Errorf("inconsistent artifact: %d features, %d means, %d scales, %d coefficients",
			n, len(art.Scaler.Mean), len(art.Scaler.Scale), len(art.Model.Coefficients))
	}
	return &art, nil
}
