// Package convert maps an operation kind to the chain of adapter calls that
// implements it. Every chain reads inputs already inside the workspace,
// writes only below the workspace, and returns exactly one Artifact.
package convert

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ironsheep/doc-tools-mcp/internal/job"
	"github.com/ironsheep/doc-tools-mcp/internal/ocr"
	"github.com/ironsheep/doc-tools-mcp/internal/office"
	"github.com/ironsheep/doc-tools-mcp/internal/render"
	"github.com/ironsheep/doc-tools-mcp/internal/tool"
)

// Scope is the part of a workspace the engine writes into.
type Scope interface {
	tool.Tracker
	Contains(path string) bool
	Mkdir(elem ...string) (string, error)
	TempDir(parent, pattern string) (string, error)
}

// Renderer rasterises PDF pages and reads their text layer.
type Renderer interface {
	RenderPage(ctx context.Context, ws tool.Tracker, pdfPath string, pg render.Page) (string, error)
	RenderPages(ctx context.Context, ws tool.Tracker, pdfPath string, pages []int, dpi int, format, outDir string) ([]string, error)
	ExtractText(ctx context.Context, ws tool.Tracker, pdfPath, outDir string) ([]string, error)
	WordBoxes(ctx context.Context, ws tool.Tracker, pdfPath string, first, last int, outDir string) ([]render.PageWords, error)
}

// OfficeConverter converts documents between office formats and PDF.
type OfficeConverter interface {
	Convert(ctx context.Context, ws tool.Tracker, req office.Request) (string, error)
}

// Config holds engine-wide defaults.
type Config struct {
	// OCRConcurrency bounds pages recognised in parallel within one job.
	OCRConcurrency int
}

type handler func(ctx context.Context, ws Scope, desc *job.Descriptor, outDir string) (job.Artifact, error)

// Engine dispatches descriptors to conversion procedures.
type Engine struct {
	render Renderer
	ocr    ocr.Engine
	office OfficeConverter
	cfg    Config
	log    *slog.Logger

	handlers map[job.Operation]handler
}

// New wires an engine. Any adapter may be nil if the operations needing it
// are never requested; such requests fail with ErrToolNotFound.
func New(r Renderer, o ocr.Engine, off OfficeConverter, cfg Config, logger *slog.Logger) *Engine {
	if cfg.OCRConcurrency <= 0 {
		cfg.OCRConcurrency = 2
	}
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{render: r, ocr: o, office: off, cfg: cfg, log: logger}
	e.handlers = map[job.Operation]handler{
		job.OpMerge:       e.merge,
		job.OpSplit:       e.split,
		job.OpRedact:      e.redact,
		job.OpExtractText: e.extractText,
		job.OpOcr:         e.ocrDocument,
		job.OpToImage:     e.toImage,
		job.OpOfficeToPdf: e.officeToPdf,
		job.OpPdfToOffice: e.pdfToOffice,
		job.OpCsvToPdf:    e.csvToPdf,
		job.OpImageToPdf:  e.imageToPdf,
		job.OpTextToPdf:   e.textToPdf,

		job.OpScrubMetadata: e.scrubMetadata,
		job.OpFillForm:      e.fillForm,
	}
	return e
}

// Convert runs desc inside ws and returns the produced artifact. Inputs are
// validated before any tool runs; the output is checked to exist, be
// non-empty, and lie inside ws.
func (e *Engine) Convert(ctx context.Context, ws Scope, desc *job.Descriptor) (job.Artifact, error) {
	op := desc.Operation()
	h, ok := e.handlers[op]
	if !ok {
		return job.Artifact{}, job.Errorf(job.ErrInvalidInput, "convert", "unsupported operation %q", op)
	}
	if err := ctx.Err(); err != nil {
		return job.Artifact{}, &job.Error{Kind: job.KindOf(err), Op: op.String(), Err: err}
	}
	if err := checkInputs(desc); err != nil {
		return job.Artifact{}, err
	}
	outDir, err := ws.TempDir("out", op.String()+"-")
	if err != nil {
		return job.Artifact{}, err
	}

	start := time.Now()
	art, err := h(ctx, ws, desc, outDir)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !job.IsKind(err, job.ErrInvalidInput) {
			return job.Artifact{}, &job.Error{Kind: job.KindOf(ctxErr), Op: op.String(), Err: err}
		}
		return job.Artifact{}, err
	}
	if err := checkOutput(ws, op, art); err != nil {
		return job.Artifact{}, err
	}
	e.log.Debug("conversion complete", "job", desc.ID(), "op", op.String(),
		"output", art.Name, "elapsed", time.Since(start).Round(time.Millisecond))
	return art, nil
}

func checkOutput(ws Scope, op job.Operation, art job.Artifact) error {
	if !ws.Contains(art.Path) {
		return job.Errorf(job.ErrWorkspace, op.String(), "output %s outside workspace", art.Path)
	}
	if !art.Exists() {
		return job.Errorf(job.ErrToolSilentFailure, op.String(), "no output produced")
	}
	return nil
}

func (e *Engine) needRender(op string) error {
	if e.render == nil {
		return job.Errorf(job.ErrToolNotFound, op, "no PDF renderer configured")
	}
	return nil
}

func (e *Engine) needOCR(op string) error {
	if e.ocr == nil {
		return job.Errorf(job.ErrToolNotFound, op, "no OCR engine configured")
	}
	return nil
}

func (e *Engine) needOffice(op string) error {
	if e.office == nil {
		return job.Errorf(job.ErrToolNotFound, op, "no office converter configured")
	}
	return nil
}

// outputName derives the artifact name from the first input.
func outputName(desc *job.Descriptor, suffix, ext string) string {
	return fmt.Sprintf("%s%s.%s", job.Stem(desc.Input(0).Name), suffix, ext)
}

func mkdir(dir string) error {
	return job.Wrap(job.ErrWorkspace, "mkdir", os.MkdirAll(dir, 0o700))
}
