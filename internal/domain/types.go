// Package domain contains the core entities of the digital twin risk engine:
// patient identities, raw observations, per-condition risk probabilities and
// the immutable assessment records kept in the history store.
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Gender is the enumerated patient gender collected by the intake form.
type Gender string

const (
	Male   Gender = "Male"
	Female Gender = "Female"
)

// Sentinel errors for enumerations and lookups
var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidGender    = errors.New("invalid gender")
	ErrInvalidCondition = errors.New("invalid condition")
)

// IsValid reports whether g is one of the supported genders.
func (g Gender) IsValid() bool {
	switch g {
	case Male, Female:
		return true
	default:
		return false
	}
}

// ParseGender accepts case-insensitive gender names.
func ParseGender(s string) (Gender, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "male", "m":
		return Male, nil
	case "female", "f":
		return Female, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidGender, s)
	}
}

// Age bounds accepted at intake.
const (
	MinAge = 1
	MaxAge = 120
)

// PatientIdentity is the snapshot of who was assessed. Name is the natural key
// of the history store; two patients sharing a name share a history.
type PatientIdentity struct {
	Name   string `json:"name"`
	Age    int    `json:"age"`
	Gender Gender `json:"gender"`
}

// Validate checks the identity constraints and returns an *InputError.
func (p PatientIdentity) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return NewInputError("name", p.Name, "patient name is required")
	}
	if p.Age < MinAge || p.Age > MaxAge {
		return NewInputError("age", p.Age, fmt.Sprintf("age must be between %d and %d", MinAge, MaxAge))
	}
	if !p.Gender.IsValid() {
		return NewInputError("gender", p.Gender, ErrInvalidGender.Error())
	}
	return nil
}

// Condition identifies one of the independently modelled health conditions.
type Condition string

const (
	Heart        Condition = "heart"
	Diabetes     Condition = "diabetes"
	Hypertension Condition = "hypertension"
)

// Conditions returns the conditions in their fixed reporting order.
func Conditions() []Condition {
	return []Condition{Heart, Diabetes, Hypertension}
}

// IsValid reports whether c is a known condition.
func (c Condition) IsValid() bool {
	switch c {
	case Heart, Diabetes, Hypertension:
		return true
	default:
		return false
	}
}

// DisplayName is the human-readable condition name used in reports.
func (c Condition) DisplayName() string {
	switch c {
	case Heart:
		return "Heart"
	case Diabetes:
		return "Diabetes"
	case Hypertension:
		return "Hypertension"
	default:
		return string(c)
	}
}

// Canonical observation field names collected by the intake form.
const (
	FieldChestPain    = "chest_pain"
	FieldRestingBP    = "resting_bp"
	FieldCholesterol  = "cholesterol"
	FieldMaxHeartRate = "max_heart_rate"
	FieldSTDepression = "st_depression"
	FieldPregnancies  = "pregnancies"
	FieldGlucose      = "glucose"
	FieldBMI          = "bmi"
	FieldSaltIntake   = "salt_intake"
	FieldStressLevel  = "stress_level"
	FieldSleepHours   = "sleep_hours"
)

// Observation holds the raw named fields collected for one assessment.
// Values may be numbers, booleans or numeric strings.
type Observation map[string]any

// RiskProbability is the calibrated positive-class probability for one
// condition. Always within [0,1].
type RiskProbability float64

// Percent returns the probability expressed in percent.
func (p RiskProbability) Percent() float64 {
	return float64(p) * 100
}

// RiskCategory is the ordinal bucket of a RiskProbability.
type RiskCategory string

const (
	LowRisk      RiskCategory = "Low"
	ModerateRisk RiskCategory = "Moderate"
	HighRisk     RiskCategory = "High"
)

// Label is the display form, e.g. "High Risk".
func (c RiskCategory) Label() string {
	return string(c) + " Risk"
}

// CompositeScore is the 0-100 wellness score; higher is healthier.
type CompositeScore float64

// AdviceSet is the ordered list of recommendations derived from the three
// probabilities. It is recomputed on demand and never persisted, so edits to
// the advice rules show up in historical views too.
type AdviceSet []string

// DisplayTimeLayout is the timestamp layout shown to operators.
const DisplayTimeLayout = "02-01-2006 15:04"

// AssessmentRecord is the immutable persisted snapshot of one assessment run.
type AssessmentRecord struct {
	ID           int64           `json:"id,omitempty"` // store sequence, insertion order
	RecordID     uuid.UUID       `json:"record_id"`
	Patient      PatientIdentity `json:"patient"`
	Heart        RiskProbability `json:"heart"`
	Diabetes     RiskProbability `json:"diabetes"`
	Hypertension RiskProbability `json:"hypertension"`
	Score        CompositeScore  `json:"score"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Probability returns the stored probability for a condition.
func (r *AssessmentRecord) Probability(c Condition) RiskProbability {
	switch c {
	case Heart:
		return r.Heart
	case Diabetes:
		return r.Diabetes
	case Hypertension:
		return r.Hypertension
	default:
		return 0
	}
}

// AssessmentResult is everything the presentation layer needs after a run.
type AssessmentResult struct {
	Record        *AssessmentRecord             `json:"record"`
	Probabilities map[Condition]RiskProbability `json:"probabilities"`
	Categories    map[Condition]RiskCategory    `json:"categories"`
	Score         CompositeScore                `json:"score"`
	Advice        AdviceSet                     `json:"advice"`
}
