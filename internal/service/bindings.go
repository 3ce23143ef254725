package service

import "github.com/digital-twin-risk-engine/internal/domain"

// sourceAge marks a feature that is taken from the patient identity.
const sourceAge = "@age"

// Binding maps one model feature name to the observation field that feeds it.
type Binding struct {
	Feature string
	Source  string
}

// FeatureBindings lists, per condition, the model feature names and where
// their values come from.
var FeatureBindings = map[domain.Condition][]Binding{
	domain.Heart: {
		{Feature: "age", Source: sourceAge},
		{Feature: "cp", Source: domain.FieldChestPain},
		{Feature: "trestbps", Source: domain.FieldRestingBP},
		{Feature: "chol", Source: domain.FieldCholesterol},
		{Feature: "thalach", Source: domain.FieldMaxHeartRate},
		{Feature: "oldpeak", Source: domain.FieldSTDepression},
	},
	domain.Diabetes: {
		{Feature: "Pregnancies", Source: domain.FieldPregnancies},
		{Feature: "Glucose", Source: domain.FieldGlucose},
		{Feature: "BMI", Source: domain.FieldBMI},
		{Feature: "Age", Source: sourceAge},
	},
	domain.Hypertension: {
		{Feature: "Age", Source: sourceAge},
		{Feature: "Salt_Intake", Source: domain.FieldSaltIntake},
		{Feature: "Stress_Score", Source: domain.FieldStressLevel},
		{Feature: "Sleep_Duration", Source: domain.FieldSleepHours},
		{Feature: "BMI", Source: domain.FieldBMI},
	},
}

// BuildObservation selects and renames the fields one condition's model
// expects. Missing source fields are left out so the adapter fills them with 0.
// Pregnancies is always 0 for male patients.
func BuildObservation(c domain.Condition, identity domain.PatientIdentity, obs domain.Observation) domain.Observation {
	bindings := FeatureBindings[c]
	out := make(domain.Observation, len(bindings))
	for _, b := range bindings {
		if b.Source == sourceAge {
			out[b.Feature] = identity.Age
			continue
		}
		if b.Source == domain.FieldPregnancies && identity.Gender == domain.Male {
			out[b.Feature] = 0
			continue
		}
		if v, ok := obs[b.Source]; ok {
			out[b.Feature] = v
		}
	}
	return out
}
