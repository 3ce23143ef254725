// Package report turns an assessment record into a labeled document and
// renders it as PDF, plain text or an XLSX trend workbook.
package report

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/digital-twin-risk-engine/internal/domain"
	"github.com/digital-twin-risk-engine/internal/scoring"
)

// Title heads every health report.
const Title = "AI Digital Twin Health Report"

// SectionKind identifies a block of the report
type SectionKind string

const (
	SectionTitle   SectionKind = "title"
	SectionPatient SectionKind = "patient"
	SectionRisks   SectionKind = "risks"
	SectionScore   SectionKind = "score"
	SectionAdvice  SectionKind = "advice"
)

// Section is one labeled block of text lines
type Section struct {
	Kind  SectionKind `json:"kind"`
	Lines []string    `json:"lines"`
}

// Document is the renderer-independent report payload
type Document struct {
	Patient  string    `json:"patient"`
	Sections []Section `json:"sections"`
}

// Assemble builds the report document for a record. It performs no I/O.
func Assemble(record *domain.AssessmentRecord, advice domain.AdviceSet) Document {
	p := record.Patient

	risks := make([]string, 0, 3)
	for _, c := range domain.Conditions() {
		prob := record.Probability(c)
		risks = append(risks, fmt.Sprintf("%s Risk: %.1f%% (%s)",
			c.DisplayName(), prob.Percent(), scoring.Classify(prob).Label()))
	}

	score := []string{fmt.Sprintf("Health Score: %.1f/100", float64(record.Score))}
	if !record.CreatedAt.IsZero() {
		score = append(score, "Assessed: "+record.CreatedAt.Format(domain.DisplayTimeLayout))
	}

	tips := make([]string, len(advice))
	copy(tips, advice)

	return Document{
		Patient: p.Name,
		Sections: []Section{
			{Kind: SectionTitle, Lines: []string{Title}},
			{Kind: SectionPatient, Lines: []string{
				"Patient: " + p.Name,
				fmt.Sprintf("Age: %d | Gender: %s", p.Age, p.Gender),
			}},
			{Kind: SectionRisks, Lines: risks},
			{Kind: SectionScore, Lines: score},
			{Kind: SectionAdvice, Lines: tips},
		},
	}
}

// Section returns the first section of the given kind.
func (d Document) Section(kind SectionKind) (Section, bool) {
	for _, s := range d.Sections {
		if s.Kind == kind {
			return s, true
		}
	}
	return Section{}, false
}

// Lines flattens the document in section order.
func (d Document) Lines() []string {
	var out []string
	for _, s := range d.Sections {
		out = append(out, s.Lines...)
	}
	return out
}

// FileName returns "<name>_report.<ext>" with the name reduced to a safe file stem.
func FileName(name, ext string) string {
	return safeStem(name) + "_report." + strings.TrimPrefix(ext, ".")
}

// TrendFileName returns the workbook name for a patient's history export.
func TrendFileName(name string) string {
	return safeStem(name) + "_trend.xlsx"
}

func safeStem(name string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "patient"
	}
	return b.String()
}
