package report

import (
	"bufio"
	"fmt"
	"io"
	"time"

	"github.com/go-pdf/fpdf"
)

// Renderer writes a document in a concrete output format
type Renderer interface {
	Render(w io.Writer, doc Document) error
	Extension() string
}

// NewRenderer returns the renderer for a configured report format.
func NewRenderer(format string) (Renderer, error) {
	switch format {
	case "pdf":
		return NewPDFRenderer(), nil
	case "text", "txt":
		return TextRenderer{}, nil
	default:
		return nil, fmt.Errorf("unsupported report format: %q", format)
	}
}

// TextRenderer writes the document as plain text, one blank line between sections.
type TextRenderer struct{}

// Extension implements Renderer
func (TextRenderer) Extension() string { return "txt" }

// Render implements Renderer
func (TextRenderer) Render(w io.Writer, doc Document) error {
	bw := bufio.NewWriter(w)
	for i, s := range doc.Sections {
		if i > 0 {
			bw.WriteString("\n")
		}
		for _, line := range s.Lines {
			bw.WriteString(line)
			bw.WriteString("\n")
		}
	}
	return bw.Flush()
}

// PDFRenderer lays the document out on a single A4 page
type PDFRenderer struct {
	// Compress toggles stream compression; tests turn it off to inspect text.
	Compress bool
	// Now stamps the document metadata. Defaults to time.Now.
	Now func() time.Time
}

// NewPDFRenderer creates a renderer with compression enabled
func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{Compress: true, Now: time.Now}
}

// Extension implements Renderer
func (r *PDFRenderer) Extension() string { return "pdf" }

// Render implements Renderer
func (r *PDFRenderer) Render(w io.Writer, doc Document) error {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(r.Compress)
	pdf.SetCatalogSort(true)
	pdf.SetCreationDate(now())
	pdf.SetModificationDate(now())
	pdf.SetTitle(Title, true)
	pdf.SetCreator("riskengine", true)
	pdf.SetMargins(20, 20, 20)
	pdf.AddPage()

	// core fonts are cp1252
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	for i, s := range doc.Sections {
		if i > 0 {
			pdf.Ln(6)
		}
		switch s.Kind {
		case SectionTitle:
			pdf.SetFont("Helvetica", "B", 18)
			for _, line := range s.Lines {
				pdf.CellFormat(0, 12, tr(line), "", 1, "C", false, 0, "")
			}
		default:
			pdf.SetFont("Helvetica", "", 11)
			for _, line := range s.Lines {
				pdf.MultiCell(0, 6, tr(line), "", "L", false)
			}
		}
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("rendering pdf: %w", err)
	}
	return nil
}
