// Package scoring maps raw risk probabilities to categories, a composite
// health score and operator-facing advice.
package scoring

import (
	"github.com/digital-twin-risk-engine/internal/domain"
)

// Category cut points. Boundaries are inclusive on the upper bucket.
const (
	ModerateThreshold = 0.35
	HighThreshold     = 0.65

	// AdviceThreshold triggers a condition-specific tip when strictly exceeded.
	AdviceThreshold = 0.5
)

// Advice strings, emitted in condition order.
const (
	HeartAdvice        = "Do daily cardio and avoid oily food."
	DiabetesAdvice     = "Reduce sugar and refined carbs."
	HypertensionAdvice = "Reduce salt and manage stress and have enough sleep."
	HealthyAdvice      = "Maintain your healthy lifestyle!"
)

// Classify maps a probability to its risk category.
func Classify(p domain.RiskProbability) domain.RiskCategory {
	switch {
	case p < ModerateThreshold:
		return domain.LowRisk
	case p < HighThreshold:
		return domain.ModerateRisk
	default:
		return domain.HighRisk
	}
}

// Score combines the three probabilities into the 0-100 composite score
// (inverse of the unweighted mean risk).
func Score(h, d, hy domain.RiskProbability) domain.CompositeScore {
	return domain.CompositeScore(100 - (float64(h+d+hy)/3)*100)
}

// Advise returns the ordered recommendations for the three probabilities.
func Advise(h, d, hy domain.RiskProbability) domain.AdviceSet {
	var tips domain.AdviceSet
	if h > AdviceThreshold {
		tips = append(tips, HeartAdvice)
	}
	if d > AdviceThreshold {
		tips = append(tips, DiabetesAdvice)
	}
	if hy > AdviceThreshold {
		tips = append(tips, HypertensionAdvice)
	}
	if len(tips) == 0 {
		tips = append(tips, HealthyAdvice)
	}
	return tips
}

// AdviseRecord recomputes advice for a stored record.
func AdviseRecord(r *domain.AssessmentRecord) domain.AdviceSet {
	return Advise(r.Heart, r.Diabetes, r.Hypertension)
}

// Categorize classifies every condition of a record.
func Categorize(r *domain.AssessmentRecord) map[domain.Condition]domain.RiskCategory {
	out := make(map[domain.Condition]domain.RiskCategory, 3)
	for _, c := range domain.Conditions() {
		out[c] = Classify(r.Probability(c))
	}
	return out
}
