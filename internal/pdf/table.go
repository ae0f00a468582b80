package pdf

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/go-pdf/fpdf"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/ironsheep/doc-tools-mcp/internal/job"
)

// CSVOptions configures CSV reading and table layout.
type CSVOptions struct {
	// Delimiter defaults to ','.
	Delimiter rune
	// Encoding is "utf-8" (default), "latin1" or "windows-1252".
	Encoding string
	// Orientation is "P" or "L"; wide tables default to landscape.
	Orientation string
	FontSize    float64
}

// decoder maps an encoding name to a transformer producing UTF-8. UTF-8
// input passes through unchanged apart from a leading BOM, so invalid bytes
// remain detectable.
func decoder(name string) (transform.Transformer, error) {
	switch strings.ToLower(strings.ReplaceAll(name, "_", "-")) {
	case "", "utf-8", "utf8":
		return unicode.BOMOverride(transform.Nop), nil
	case "latin1", "latin-1", "iso-8859-1":
		return charmap.ISO8859_1.NewDecoder(), nil
	case "windows-1252", "cp1252":
		return charmap.Windows1252.NewDecoder(), nil
	}
	return nil, job.Errorf(job.ErrInvalidInput, "csv_to_pdf", "unsupported encoding %q", name)
}

// ReadCSV parses the file at path. Rows may have differing field counts.
func ReadCSV(path string, opts CSVOptions) ([][]string, error) {
	dec, err := decoder(opts.Encoding)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, job.Wrap(job.ErrInvalidInput, "csv_to_pdf", err)
	}
	defer f.Close()

	r := csv.NewReader(transform.NewReader(f, dec))
	if opts.Delimiter != 0 {
		r.Comma = opts.Delimiter
	}
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	var rows [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &job.Error{Kind: job.ErrInvalidInput, Op: "csv_to_pdf", Msg: "parse csv", Err: err}
		}
		for _, field := range rec {
			if !utf8.ValidString(field) {
				return nil, job.Errorf(job.ErrInvalidInput, "csv_to_pdf", "row %d is not valid %s", len(rows)+1, encodingName(opts.Encoding))
			}
		}
		rows = append(rows, rec)
	}
	if len(rows) == 0 {
		return nil, job.Errorf(job.ErrInvalidInput, "csv_to_pdf", "empty csv")
	}
	return rows, nil
}

func encodingName(s string) string {
	if s == "" {
		return "utf-8"
	}
	return s
}

// ComposeTable renders rows as a table, first row as a bold header that is
// repeated on every page. Column widths follow content up to an even share
// of the page, and overlong cells are truncated with "...".
func ComposeTable(rows [][]string, out string, opts CSVOptions) error {
	if len(rows) == 0 {
		return job.Errorf(job.ErrInvalidInput, "csv_to_pdf", "no rows")
	}
	cols := 0
	for _, r := range rows {
		cols = max(cols, len(r))
	}
	if cols == 0 {
		return job.Errorf(job.ErrInvalidInput, "csv_to_pdf", "no columns")
	}
	if opts.FontSize <= 0 {
		opts.FontSize = 10
	}
	orientation := strings.ToUpper(opts.Orientation)
	if orientation == "" {
		orientation = "P"
		if cols > 6 {
			orientation = "L"
		}
	}

	const margin = 36.0
	f := fpdf.New(orientation, "pt", "A4", "")
	f.SetCreator("doc-tools-mcp", true)
	f.SetMargins(margin, margin, margin)
	f.SetAutoPageBreak(false, margin)
	tr := f.UnicodeTranslatorFromDescriptor("")
	pageW, pageH := f.GetPageSize()
	usable := pageW - 2*margin
	rowH := opts.FontSize * 1.6

	widths := columnWidths(f, rows, cols, usable, opts.FontSize)

	drawRow := func(row []string, header bool) {
		style := ""
		if header {
			style = "B"
		}
		f.SetFont("Helvetica", style, opts.FontSize)
		for c := 0; c < cols; c++ {
			cell := ""
			if c < len(row) {
				cell = tr(row[c])
			}
			f.CellFormat(widths[c], rowH, fit(f, cell, widths[c]-4), "1", 0, "L", header, 0, "")
		}
		f.Ln(rowH)
	}

	f.SetFillColor(230, 230, 230)
	f.AddPage()
	drawRow(rows[0], true)
	for _, row := range rows[1:] {
		if f.GetY()+rowH > pageH-margin {
			f.AddPage()
			drawRow(rows[0], true)
		}
		drawRow(row, false)
	}
	if err := f.OutputFileAndClose(out); err != nil {
		return &job.Error{Kind: job.ErrToolFailed, Op: "csv_to_pdf", Err: err}
	}
	return nil
}

func columnWidths(f *fpdf.Fpdf, rows [][]string, cols int, usable, size float64) []float64 {
	f.SetFont("Helvetica", "B", size)
	natural := make([]float64, cols)
	for _, row := range rows {
		for c, cell := range row {
			natural[c] = max(natural[c], f.GetStringWidth(cell)+8)
		}
	}
	var total float64
	for _, w := range natural {
		total += w
	}
	widths := make([]float64, cols)
	if total <= usable {
		// Spread the slack evenly.
		extra := (usable - total) / float64(cols)
		for c := range widths {
			widths[c] = natural[c] + extra
		}
		return widths
	}
	for c := range widths {
		widths[c] = natural[c] / total * usable
	}
	return widths
}

// fit truncates s so it renders within w points.
func fit(f *fpdf.Fpdf, s string, w float64) string {
	if f.GetStringWidth(s) <= w {
		return s
	}
	const ellipsis = "..."
	runes := []rune(s)
	for len(runes) > 0 && f.GetStringWidth(string(runes)+ellipsis) > w {
		runes = runes[:len(runes)-1]
	}
	if len(runes) == 0 {
		return ""
	}
	return fmt.Sprint(string(runes), ellipsis)
}
