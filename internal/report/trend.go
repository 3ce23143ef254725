package report

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/digital-twin-risk-engine/internal/domain"
)

const trendSheet = "Trend"

var trendHeaders = []string{"Assessed", "Heart", "Diabetes", "Hypertension", "Health Score"}

// TrendWorkbook exports a patient's history as an XLSX workbook with a line
// chart of the three risk probabilities over time.
func TrendWorkbook(records []*domain.AssessmentRecord) ([]byte, error) {
	if len(records) == 0 {
		return nil, domain.NewInputError("records", 0, "no assessments to export")
	}

	f := excelize.NewFile()
	// WriteTo needs the file open, so Close runs on every return path instead of a defer

	index, err := f.NewSheet(trendSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	percentStyle, err := f.NewStyle(&excelize.Style{NumFmt: 10}) // 0.00%
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create percent style: %w", err)
	}

	if err := f.SetSheetRow(trendSheet, "A1", &trendHeaders); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	if err := f.SetCellStyle(trendSheet, "A1", "E1", headerStyle); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set header style: %w", err)
	}
	if err := f.SetColWidth(trendSheet, "A", "A", 20); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set column width: %w", err)
	}
	if err := f.SetColWidth(trendSheet, "B", "E", 14); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set column width: %w", err)
	}

	for i, rec := range records {
		row := i + 2
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		values := []interface{}{
			rec.CreatedAt.Format(domain.DisplayTimeLayout),
			float64(rec.Heart),
			float64(rec.Diabetes),
			float64(rec.Hypertension),
			float64(rec.Score),
		}
		if err := f.SetSheetRow(trendSheet, cell, &values); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to write row %d: %w", row, err)
		}
	}

	last := len(records) + 1
	if err := f.SetCellStyle(trendSheet, "B2", fmt.Sprintf("D%d", last), percentStyle); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set percent style: %w", err)
	}

	series := make([]excelize.ChartSeries, 0, 3)
	for _, col := range []string{"B", "C", "D"} {
		series = append(series, excelize.ChartSeries{
			Name:       fmt.Sprintf("%s!$%s$1", trendSheet, col),
			Categories: fmt.Sprintf("%s!$A$2:$A$%d", trendSheet, last),
			Values:     fmt.Sprintf("%s!$%s$2:$%s$%d", trendSheet, col, col, last),
		})
	}
	if err := f.AddChart(trendSheet, "G2", &excelize.Chart{
		Type:   excelize.Line,
		Series: series,
		Title:  []excelize.RichTextRun{{Text: "Risk trend: " + records[0].Patient.Name}},
		Legend: excelize.ChartLegend{Position: "bottom"},
		YAxis:  excelize.ChartAxis{Minimum: floatPtr(0), Maximum: floatPtr(1)},
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to add chart: %w", err)
	}

	if err := f.SetPanes(trendSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	return buf.Bytes(), nil
}

func floatPtr(v float64) *float64 { return &v }
