package convert

import (
	"context"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ironsheep/doc-tools-mcp/internal/job"
	"github.com/ironsheep/doc-tools-mcp/internal/office"
	"github.com/ironsheep/doc-tools-mcp/internal/pdf"
)

func (e *Engine) officeToPdf(ctx context.Context, ws Scope, desc *job.Descriptor, outDir string) (job.Artifact, error) {
	if err := e.needOffice("office_to_pdf"); err != nil {
		return job.Artifact{}, err
	}
	out, err := e.office.Convert(ctx, ws, office.Request{Source: desc.Input(0).Path, Format: "pdf", OutDir: outDir})
	if err != nil {
		return job.Artifact{}, err
	}
	if err := pdf.Validate(out); err != nil {
		return job.Artifact{}, &job.Error{Kind: job.ErrToolFailed, Op: "soffice", Msg: "converted output is not a valid PDF", Err: err}
	}
	return job.NewArtifact(out, outputName(desc, "", "pdf")), nil
}

func (e *Engine) pdfToOffice(ctx context.Context, ws Scope, desc *job.Descriptor, outDir string) (job.Artifact, error) {
	if err := e.needOffice("pdf_to_office"); err != nil {
		return job.Artifact{}, err
	}
	exp, err := office.PdfExport(desc.Option("format", desc.Format()))
	if err != nil {
		return job.Artifact{}, err
	}
	in := desc.Input(0).Path
	if err := pdf.Validate(in); err != nil {
		return job.Artifact{}, err
	}
	out, err := e.office.Convert(ctx, ws, office.Request{
		Source:   in,
		Format:   exp.Format,
		Filter:   exp.Filter,
		InFilter: exp.InFilter,
		OutDir:   outDir,
	})
	if err != nil {
		return job.Artifact{}, err
	}
	return job.NewArtifact(out, outputName(desc, "", exp.Format)), nil
}

func (e *Engine) csvToPdf(_ context.Context, _ Scope, desc *job.Descriptor, outDir string) (job.Artifact, error) {
	// Read untrimmed so a literal tab survives.
	delim, err := parseDelimiter(desc.Options()["delimiter"])
	if err != nil {
		return job.Artifact{}, err
	}
	size, err := desc.IntOption("font_size", 0)
	if err != nil {
		return job.Artifact{}, err
	}
	if size < 0 || size > 72 {
		return job.Artifact{}, job.Errorf(job.ErrInvalidInput, "csv_to_pdf", "font_size %d outside 1-72", size)
	}
	opts := pdf.CSVOptions{Delimiter: delim, Encoding: desc.Option("encoding", "utf-8"), FontSize: float64(size)}
	switch o := strings.ToLower(desc.Option("orientation", "")); o {
	case "":
	case "p", "portrait":
		opts.Orientation = "P"
	case "l", "landscape":
		opts.Orientation = "L"
	default:
		return job.Artifact{}, job.Errorf(job.ErrInvalidInput, "csv_to_pdf", "unknown orientation %q", o)
	}
	rows, err := pdf.ReadCSV(desc.Input(0).Path, opts)
	if err != nil {
		return job.Artifact{}, err
	}
	name := outputName(desc, "", "pdf")
	out := filepath.Join(outDir, name)
	if err := pdf.ComposeTable(rows, out, opts); err != nil {
		return job.Artifact{}, err
	}
	return job.NewArtifact(out, name), nil
}

func parseDelimiter(s string) (rune, error) {
	switch strings.ToLower(s) {
	case "", ",":
		return ',', nil
	case `\t`, "tab":
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(s)
	if size != len(s) || r == '"' || r == '\r' || r == '\n' || r == utf8.RuneError {
		return 0, job.Errorf(job.ErrInvalidInput, "csv_to_pdf", "invalid delimiter %q", s)
	}
	return r, nil
}
