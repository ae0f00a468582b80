package convert

import (
	"context"
	"fmt"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/doc-tools-mcp/internal/imaging"
	"github.com/ironsheep/doc-tools-mcp/internal/job"
	"github.com/ironsheep/doc-tools-mcp/internal/ocr"
	"github.com/ironsheep/doc-tools-mcp/internal/pdf"
	"github.com/ironsheep/doc-tools-mcp/internal/render"
)

type ocrOptions struct {
	lang       string
	dpi        int
	psm        int
	preprocess ocr.Mode
}

func parseOCROptions(desc *job.Descriptor, defaultDPI int) (ocrOptions, error) {
	o := ocrOptions{lang: desc.Option("lang", ocr.DefaultLanguage)}
	var err error
	if o.dpi, err = desc.IntOption("dpi", defaultDPI); err != nil {
		return o, err
	}
	if o.dpi < 36 || o.dpi > 1200 {
		return o, job.Errorf(job.ErrInvalidInput, desc.Operation().String(), "dpi %d outside 36-1200", o.dpi)
	}
	if o.psm, err = desc.IntOption("psm", 0); err != nil {
		return o, err
	}
	if o.psm < 0 || o.psm > 13 {
		return o, job.Errorf(job.ErrInvalidInput, desc.Operation().String(), "psm %d outside 0-13", o.psm)
	}
	if o.preprocess, err = ocr.ParseMode(desc.Option("preprocess", "")); err != nil {
		return o, job.Wrap(job.ErrInvalidInput, desc.Operation().String(), err)
	}
	return o, nil
}

// pageText is the recognition result of one rendered page.
type pageText struct {
	Number int
	// Image is the rendered page before preprocessing.
	Image string
	// Width and Height are the page size in points.
	Width, Height float64
	Result        *ocr.OCRResult
	// scale converts result pixel coordinates to points.
	scaleX, scaleY float64
}

// Words returns the recognised words positioned in page points.
func (p pageText) Words() []pdf.PlacedWord {
	out := make([]pdf.PlacedWord, 0, len(p.Result.Regions))
	for _, r := range p.Result.Regions {
		out = append(out, pdf.PlacedWord{
			Text:   r.Text,
			X:      float64(r.Bounds.X1) * p.scaleX,
			Y:      float64(r.Bounds.Y1) * p.scaleY,
			Width:  float64(r.Bounds.X2-r.Bounds.X1) * p.scaleX,
			Height: float64(r.Bounds.Y2-r.Bounds.Y1) * p.scaleY,
		})
	}
	return out
}

// WordBoxes returns the recognised words as text-layer words.
func (p pageText) WordBoxes() []render.Word {
	out := make([]render.Word, 0, len(p.Result.Regions))
	for _, w := range p.Words() {
		out = append(out, render.Word{Text: w.Text, X1: w.X, Y1: w.Y, X2: w.X + w.Width, Y2: w.Y + w.Height})
	}
	return out
}

// recognizePages renders pages at o.dpi and runs OCR on each, bounded by
// the engine's OCR concurrency. Results are in the order of pages.
func (e *Engine) recognizePages(ctx context.Context, ws Scope, pdfPath string, pages []int, o ocrOptions, dir string) ([]pageText, error) {
	if err := e.needRender("ocr"); err != nil {
		return nil, err
	}
	if err := e.needOCR("ocr"); err != nil {
		return nil, err
	}
	images, err := e.render.RenderPages(ctx, ws, pdfPath, pages, o.dpi, render.FormatPNG, dir)
	if err != nil {
		return nil, err
	}

	out := make([]pageText, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.OCRConcurrency)
	for i, img := range images {
		g.Go(func() error {
			pt, err := e.recognizeImage(gctx, ws, img, o, dir)
			if err != nil {
				return err
			}
			pt.Number = pages[i]
			out[i] = pt
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) recognizeImage(ctx context.Context, ws Scope, img string, o ocrOptions, dir string) (pageText, error) {
	info, err := imaging.Info(img)
	if err != nil {
		return pageText{}, &job.Error{Kind: job.ErrToolSilentFailure, Op: "ocr", Msg: "unreadable page image", Err: err}
	}
	src := img
	if o.preprocess != ocr.ModeNone {
		dst := filepath.Join(dir, fmt.Sprintf("%s-%s.png", job.Stem(img), o.preprocess))
		if src, err = ocr.PreprocessFile(img, dst, o.preprocess); err != nil {
			return pageText{}, job.Wrap(job.ErrToolFailed, "preprocess", err)
		}
	}
	res, err := e.ocr.Recognize(ctx, ws, src, ocr.Options{Language: o.lang, PSM: o.psm, OutDir: dir})
	if err != nil {
		return pageText{}, err
	}

	e.log.Debug("page recognised", "op", "ocr", "image", filepath.Base(img), "words", len(res.Regions), "confidence", res.MeanConfidence())
	rw, rh := res.Width, res.Height
	if rw <= 0 || rh <= 0 {
		rw, rh = info.Width, info.Height
		if src != img {
			if pi, err := imaging.Info(src); err == nil {
				rw, rh = pi.Width, pi.Height
			}
		}
	}
	w := pdf.PixelsToPoints(info.Width, o.dpi)
	h := pdf.PixelsToPoints(info.Height, o.dpi)
	return pageText{
		Image:  img,
		Width:  w,
		Height: h,
		Result: res,
		scaleX: w / float64(rw),
		scaleY: h / float64(rh),
	}, nil
}
