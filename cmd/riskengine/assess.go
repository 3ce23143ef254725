package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/digital-twin-risk-engine/internal/domain"
	"github.com/digital-twin-risk-engine/internal/report"
	"github.com/digital-twin-risk-engine/internal/service"
)

// observationFlags maps CLI flags to observation field names.
var observationFlags = []struct {
	flag, field, usage string
}{
	{"chest-pain", domain.FieldChestPain, "Chest pain type (0-3)"},
	{"resting-bp", domain.FieldRestingBP, "Resting blood pressure (mm Hg)"},
	{"cholesterol", domain.FieldCholesterol, "Serum cholesterol (mg/dl)"},
	{"max-heart-rate", domain.FieldMaxHeartRate, "Maximum heart rate achieved"},
	{"st-depression", domain.FieldSTDepression, "ST depression induced by exercise"},
	{"pregnancies", domain.FieldPregnancies, "Number of pregnancies (ignored for male patients)"},
	{"glucose", domain.FieldGlucose, "Plasma glucose (mg/dl)"},
	{"bmi", domain.FieldBMI, "Body mass index"},
	{"salt-intake", domain.FieldSaltIntake, "Daily salt intake (g)"},
	{"stress-level", domain.FieldStressLevel, "Stress score (0-10)"},
	{"sleep-hours", domain.FieldSleepHours, "Average sleep duration (hours)"},
}

func assessCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assess",
		Short: "Run a risk assessment and record it",
		Example: `  riskengine assess --name "Jane Doe" --age 52 --gender Female \
    --chest-pain 2 --resting-bp 140 --cholesterol 250 --max-heart-rate 150 \
    --st-depression 1.2 --pregnancies 2 --glucose 130 --bmi 29.1 \
    --salt-intake 9 --stress-level 6 --sleep-hours 6`,
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			age, _ := cmd.Flags().GetInt("age")
			genderFlag, _ := cmd.Flags().GetString("gender")
			inputPath, _ := cmd.Flags().GetString("input")
			asJSON, _ := cmd.Flags().GetBool("json")
			withReport, _ := cmd.Flags().GetBool("report")

			gender, err := domain.ParseGender(genderFlag)
			if err != nil {
				return err
			}
			identity := domain.PatientIdentity{Name: name, Age: age, Gender: gender}

			obs, err := readObservation(cmd, inputPath)
			if err != nil {
				return err
			}

			return withAssessment(cmd, func(ctx context.Context, a *app, svc *service.AssessmentService) error {
				result, err := svc.Run(ctx, identity, obs)
				if err != nil {
					return err
				}

				if asJSON {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					if err := enc.Encode(result); err != nil {
						return err
					}
				} else {
					printResult(cmd.OutOrStdout(), result)
				}

				if withReport {
					path, err := writeReport(ctx, a, svc.HistoryService, name, a.cfg.Report.Format, "")
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "Report written to %s\n", path)
				}
				return nil
			})
		},
	}

	cmd.Flags().String("name", "", "Patient name")
	cmd.Flags().Int("age", 0, "Patient age in years (1-120)")
	cmd.Flags().String("gender", "", "Patient gender (Male or Female)")
	cmd.Flags().String("input", "", "JSON file with observation fields (flags override it)")
	cmd.Flags().Bool("json", false, "Print the result as JSON")
	cmd.Flags().Bool("report", false, "Also render the report for this assessment")
	for _, f := range observationFlags {
		cmd.Flags().String(f.flag, "", f.usage)
	}
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("age")
	_ = cmd.MarkFlagRequired("gender")

	return cmd
}

// readObservation merges the optional JSON input file with explicit flags.
// Values stay raw so the predictors report non-numeric input.
func readObservation(cmd *cobra.Command, inputPath string) (domain.Observation, error) {
	obs := domain.Observation{}
	if inputPath != "" {
		data, err := os.ReadFile(inputPath)
		if err != nil {
			return nil, fmt.Errorf("reading observation file: %w", err)
		}
		if err := json.Unmarshal(data, &obs); err != nil {
			return nil, domain.NewInputError("input", inputPath, "observation file is not a JSON object")
		}
	}
	for _, f := range observationFlags {
		if cmd.Flags().Changed(f.flag) {
			v, _ := cmd.Flags().GetString(f.flag)
			obs[f.field] = v
		}
	}
	return obs, nil
}

func printResult(w io.Writer, result *domain.AssessmentResult) {
	rec := result.Record
	fmt.Fprintf(w, "Patient: %s (%d, %s)\n", rec.Patient.Name, rec.Patient.Age, rec.Patient.Gender)
	for _, c := range domain.Conditions() {
		fmt.Fprintf(w, "  %-14s %5.1f%%  %s\n", c.DisplayName()+":", result.Probabilities[c].Percent(), result.Categories[c].Label())
	}
	fmt.Fprintf(w, "Health Score: %.1f/100\n", float64(result.Score))
	fmt.Fprintln(w, "Advice:")
	for _, tip := range result.Advice {
		fmt.Fprintf(w, "  - %s\n", tip)
	}
	fmt.Fprintf(w, "Recorded: %s (record %s)\n", rec.CreatedAt.Format(domain.DisplayTimeLayout), rec.RecordID)
}

// writeReport renders the latest report for name into the report directory
// unless out names a file.
func writeReport(ctx context.Context, a *app, svc *service.HistoryService, name, format, out string) (string, error) {
	renderer, err := report.NewRenderer(format)
	if err != nil {
		return "", domain.NewInputError("format", format, err.Error())
	}
	if out == "" {
		out = filepath.Join(a.cfg.Report.Dir, report.FileName(name, renderer.Extension()))
	}

	f, err := os.Create(out)
	if err != nil {
		return "", fmt.Errorf("creating report file: %w", err)
	}
	if _, err := svc.RequestReport(ctx, name, renderer, f); err != nil {
		f.Close()
		os.Remove(out)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("closing report file: %w", err)
	}
	return out, nil
}
