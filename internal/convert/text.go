package convert

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ironsheep/doc-tools-mcp/internal/job"
	"github.com/ironsheep/doc-tools-mcp/internal/pdf"
)

// OCR policies for extract_text.
const (
	ocrOff   = "off"
	ocrAuto  = "auto"
	ocrForce = "force"
)

func (e *Engine) extractText(ctx context.Context, ws Scope, desc *job.Descriptor, outDir string) (job.Artifact, error) {
	if err := e.needRender("extract_text"); err != nil {
		return job.Artifact{}, err
	}
	in := desc.Input(0).Path
	if err := pdf.Validate(in); err != nil {
		return job.Artifact{}, err
	}
	policy := strings.ToLower(desc.Option("ocr", ocrOff))
	switch policy {
	case "false", "no", "none":
		policy = ocrOff
	case "true", "yes":
		policy = ocrAuto
	case ocrOff, ocrAuto, ocrForce:
	default:
		return job.Artifact{}, job.Errorf(job.ErrInvalidInput, "extract_text", "unknown ocr policy %q", policy)
	}

	work := filepath.Join(outDir, "work")
	if err := mkdir(work); err != nil {
		return job.Artifact{}, err
	}
	total, err := pdf.PageCount(in)
	if err != nil {
		return job.Artifact{}, err
	}
	texts := make([]string, total)
	if policy != ocrForce {
		layer, err := e.render.ExtractText(ctx, ws, in, work)
		if err != nil {
			return job.Artifact{}, err
		}
		copy(texts, layer)
	}

	if policy != ocrOff {
		var missing []int
		for i, t := range texts {
			if strings.TrimSpace(t) == "" {
				missing = append(missing, i+1)
			}
		}
		if len(missing) > 0 {
			o, err := parseOCROptions(desc, 300)
			if err != nil {
				return job.Artifact{}, err
			}
			pages, err := e.recognizePages(ctx, ws, in, missing, o, work)
			if err != nil {
				return job.Artifact{}, err
			}
			for _, p := range pages {
				texts[p.Number-1] = p.Result.FullText
			}
			e.log.Debug("ocr fallback", "job", desc.ID(), "op", "extract_text", "pages", len(missing))
		}
	}

	name := outputName(desc, "", "txt")
	out := filepath.Join(outDir, name)
	if err := writeFile(out, strings.Join(texts, "\f")); err != nil {
		return job.Artifact{}, err
	}
	return job.NewArtifact(out, name), nil
}

func (e *Engine) ocrDocument(ctx context.Context, ws Scope, desc *job.Descriptor, outDir string) (job.Artifact, error) {
	in := desc.Input(0).Path
	if err := pdf.Validate(in); err != nil {
		return job.Artifact{}, err
	}
	format := desc.Format()
	switch format {
	case "", "pdf":
		format = "pdf"
	case "txt", "text":
		format = "txt"
	default:
		return job.Artifact{}, job.Errorf(job.ErrInvalidInput, "ocr", "unsupported output format %q", format)
	}
	o, err := parseOCROptions(desc, 300)
	if err != nil {
		return job.Artifact{}, err
	}
	total, err := pdf.PageCount(in)
	if err != nil {
		return job.Artifact{}, err
	}
	work := filepath.Join(outDir, "work")
	if err := mkdir(work); err != nil {
		return job.Artifact{}, err
	}
	pages, err := e.recognizePages(ctx, ws, in, pdf.Range{Start: 1, End: total}.Pages(), o, work)
	if err != nil {
		return job.Artifact{}, err
	}

	if format == "txt" {
		var b strings.Builder
		for _, p := range pages {
			fmt.Fprintf(&b, "--- Page %d ---\n", p.Number)
			b.WriteString(strings.TrimRight(p.Result.FullText, "\n"))
			b.WriteString("\n\n")
		}
		name := outputName(desc, "_ocr", "txt")
		out := filepath.Join(outDir, name)
		if err := writeFile(out, b.String()); err != nil {
			return job.Artifact{}, err
		}
		return job.NewArtifact(out, name), nil
	}

	layout := make([]pdf.ImagePage, len(pages))
	for i, p := range pages {
		layout[i] = pdf.ImagePage{Path: p.Image, Type: "PNG", Width: p.Width, Height: p.Height, Words: p.Words()}
	}
	name := outputName(desc, "_ocr", "pdf")
	out := filepath.Join(outDir, name)
	if err := pdf.ComposeImages(layout, out); err != nil {
		return job.Artifact{}, err
	}
	return job.NewArtifact(out, name), nil
}

func (e *Engine) textToPdf(_ context.Context, _ Scope, desc *job.Descriptor, outDir string) (job.Artifact, error) {
	data, err := os.ReadFile(desc.Input(0).Path)
	if err != nil {
		return job.Artifact{}, job.Wrap(job.ErrInvalidInput, "text_to_pdf", err)
	}
	if !utf8.Valid(data) {
		return job.Artifact{}, job.Errorf(job.ErrInvalidInput, "text_to_pdf", "%s is not UTF-8 text", desc.Input(0).Name)
	}
	text := strings.TrimPrefix(string(data), "\ufeff")
	size, err := desc.IntOption("font_size", 12)
	if err != nil {
		return job.Artifact{}, err
	}
	name := outputName(desc, "", "pdf")
	out := filepath.Join(outDir, name)
	if err := pdf.ComposeText(text, out, pdf.TextOptions{FontSize: float64(size), LineHeight: float64(size) + 2}); err != nil {
		return job.Artifact{}, err
	}
	return job.NewArtifact(out, name), nil
}

func writeFile(path, content string) error {
	return job.Wrap(job.ErrWorkspace, "write", os.WriteFile(path, []byte(content), 0o600))
}
