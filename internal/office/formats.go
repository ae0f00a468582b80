package office

import (
	"strings"

	"github.com/ironsheep/doc-tools-mcp/internal/job"
)

// Export describes how to reach a target format from a PDF source.
type Export struct {
	Format   string
	Filter   string
	InFilter string
}

// pdfExports lists the targets PdfToOffice supports. Text formats go through
// Writer's PDF import and presentations through Impress. LibreOffice has no
// PDF import into Calc, so spreadsheet targets are not offered.
var pdfExports = map[string]Export{
	"docx": {Format: "docx", Filter: "MS Word 2007 XML", InFilter: "writer_pdf_import"},
	"odt":  {Format: "odt", Filter: "writer8", InFilter: "writer_pdf_import"},
	"rtf":  {Format: "rtf", Filter: "Rich Text Format", InFilter: "writer_pdf_import"},
	"html": {Format: "html", Filter: "HTML (StarWriter)", InFilter: "writer_pdf_import"},
	"txt":  {Format: "txt", Filter: "Text (encoded):UTF8", InFilter: "writer_pdf_import"},
	"pptx": {Format: "pptx", Filter: "Impress MS PowerPoint 2007 XML", InFilter: "impress_pdf_import"},
	"odp":  {Format: "odp", Filter: "impress8", InFilter: "impress_pdf_import"},
}

// PdfExport resolves a PdfToOffice target token.
func PdfExport(format string) (Export, error) {
	format = strings.ToLower(strings.TrimPrefix(format, "."))
	if format == "" {
		format = "docx"
	}
	e, ok := pdfExports[format]
	if !ok {
		return Export{}, job.Errorf(job.ErrInvalidInput, "pdf_to_office", "unsupported target format %q", format)
	}
	return e, nil
}

// PdfExportFormats returns the accepted PdfToOffice targets.
func PdfExportFormats() []string {
	return []string{"docx", "odt", "rtf", "html", "txt", "pptx", "odp"}
}
