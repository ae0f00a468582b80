// Package render drives Poppler's command-line tools: pdftoppm to rasterise
// pages and pdftotext to read the text layer and word boxes.
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/doc-tools-mcp/internal/job"
	"github.com/ironsheep/doc-tools-mcp/internal/tool"
)

// Raster formats accepted by RenderPage.
const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
	FormatTIFF = "tiff"
)

// Config locates the Poppler executables and bounds their use.
type Config struct {
	Pdftoppm  string
	Pdftotext string
	// Timeout applies to each page invocation.
	Timeout time.Duration
	// Concurrency limits parallel page renders per call.
	Concurrency int
}

// Poppler renders and reads PDFs through Poppler utilities.
type Poppler struct {
	exec tool.Executor
	cfg  Config
	log  *slog.Logger
}

// New returns a Poppler adapter. Zero config fields take defaults.
func New(exec tool.Executor, cfg Config, logger *slog.Logger) *Poppler {
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poppler{exec: exec, cfg: cfg, log: logger}
}

// Page describes one page render.
type Page struct {
	// Number is 1-based.
	Number int
	DPI    int
	Format string
	// OutDir receives the image; it must exist and lie in the workspace.
	OutDir string
}

// RenderPage rasterises one page and returns the image path.
func (p *Poppler) RenderPage(ctx context.Context, ws tool.Tracker, pdfPath string, pg Page) (string, error) {
	if pg.Number < 1 {
		return "", job.Errorf(job.ErrInvalidInput, "pdftoppm", "page %d out of range", pg.Number)
	}
	if pg.DPI <= 0 {
		pg.DPI = 150
	}
	flag, ext, err := rasterFlag(pg.Format)
	if err != nil {
		return "", err
	}
	n := strconv.Itoa(pg.Number)
	prefix := filepath.Join(pg.OutDir, fmt.Sprintf("page-%04d", pg.Number))
	args := []string{"-r", strconv.Itoa(pg.DPI), "-f", n, "-l", n, "-singlefile", flag, pdfPath, prefix}

	_, err = p.exec.Run(ctx, ws, tool.Invocation{Path: p.cfg.Pdftoppm, Args: args, Timeout: p.cfg.Timeout})
	if err != nil {
		return "", classifyPopplerError(err)
	}
	out := prefix + "." + ext
	if fi, statErr := os.Stat(out); statErr != nil || fi.Size() == 0 {
		return "", job.Errorf(job.ErrToolSilentFailure, "pdftoppm", "page %d: no image produced", pg.Number)
	}
	return out, nil
}

// RenderPages renders pages concurrently, bounded by the configured limit,
// and returns image paths in the order of pages.
func (p *Poppler) RenderPages(ctx context.Context, ws tool.Tracker, pdfPath string, pages []int, dpi int, format, outDir string) ([]string, error) {
	out := make([]string, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Concurrency)
	for i, n := range pages {
		g.Go(func() error {
			path, err := p.RenderPage(gctx, ws, pdfPath, Page{Number: n, DPI: dpi, Format: format, OutDir: outDir})
			if err != nil {
				return err
			}
			out[i] = path
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// ExtractText returns the text layer of every page, in page order. Pages
// without a text layer yield empty strings.
func (p *Poppler) ExtractText(ctx context.Context, ws tool.Tracker, pdfPath, outDir string) ([]string, error) {
	out := filepath.Join(outDir, job.Stem(pdfPath)+".txt")
	args := []string{"-layout", "-enc", "UTF-8", pdfPath, out}
	if _, err := p.exec.Run(ctx, ws, tool.Invocation{Path: p.cfg.Pdftotext, Args: args, Timeout: p.cfg.Timeout}); err != nil {
		return nil, classifyPopplerError(err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		return nil, job.Errorf(job.ErrToolSilentFailure, "pdftotext", "no text output: %v", err)
	}
	return splitPages(string(data)), nil
}

// splitPages splits pdftotext output on the form feed that ends each page.
func splitPages(s string) []string {
	pages := strings.Split(s, "\f")
	if n := len(pages); n > 1 && strings.TrimSpace(pages[n-1]) == "" {
		pages = pages[:n-1]
	}
	return pages
}

// rasterFlag maps a format token to the pdftoppm flag and file extension.
func rasterFlag(format string) (flag, ext string, err error) {
	switch strings.ToLower(format) {
	case "", "png":
		return "-png", "png", nil
	case "jpg", "jpeg":
		return "-jpeg", "jpg", nil
	case "tif", "tiff":
		return "-tiff", "tif", nil
	}
	return "", "", job.Errorf(job.ErrInvalidInput, "pdftoppm", "unsupported raster format %q", format)
}

// classifyPopplerError turns exit code 1 (error opening the PDF) into an
// input error. Other failures pass through.
func classifyPopplerError(err error) error {
	var je *job.Error
	if errors.As(err, &je) && errors.Is(je.Kind, job.ErrToolFailed) && je.ExitCode == 1 {
		return &job.Error{Kind: job.ErrInvalidInput, Op: je.Op, Msg: "cannot open PDF", ExitCode: je.ExitCode, Stderr: je.Stderr}
	}
	return err
}
