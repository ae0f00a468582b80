package convert

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/ironsheep/doc-tools-mcp/internal/imaging"
	"github.com/ironsheep/doc-tools-mcp/internal/job"
	"github.com/ironsheep/doc-tools-mcp/internal/pdf"
	"github.com/ironsheep/doc-tools-mcp/internal/render"
)

// Region is a caller-specified redaction box in PDF points, origin top-left.
type Region struct {
	Page int     `json:"page"`
	X1   float64 `json:"x1"`
	Y1   float64 `json:"y1"`
	X2   float64 `json:"x2"`
	Y2   float64 `json:"y2"`
}

// Locate strategies for term redaction.
const (
	locateText = "text"
	locateOCR  = "ocr"
	locateAuto = "auto"
)

type redactOptions struct {
	terms   []string
	regions []Region
	fill    string
	dpi     int
	locate  string
}

func parseRedactOptions(desc *job.Descriptor) (redactOptions, error) {
	var o redactOptions
	if raw := desc.Option("terms", ""); raw != "" {
		if strings.HasPrefix(raw, "[") {
			if err := json.Unmarshal([]byte(raw), &o.terms); err != nil {
				return o, &job.Error{Kind: job.ErrInvalidInput, Op: "redact", Msg: "terms must be a JSON array of strings", Err: err}
			}
		} else {
			o.terms = []string{raw}
		}
	}
	kept := o.terms[:0]
	for _, t := range o.terms {
		if t = strings.TrimSpace(t); t != "" {
			kept = append(kept, t)
		}
	}
	o.terms = kept

	if raw := desc.Option("regions", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &o.regions); err != nil {
			return o, &job.Error{Kind: job.ErrInvalidInput, Op: "redact", Msg: "regions must be a JSON array of {page,x1,y1,x2,y2}", Err: err}
		}
	}
	if len(o.terms) == 0 && len(o.regions) == 0 {
		return o, job.Errorf(job.ErrInvalidInput, "redact", "nothing to redact: give terms or regions")
	}

	o.fill = desc.Option("fill", "#000000")
	if _, err := imaging.ParseColor(o.fill); err != nil {
		return o, job.Wrap(job.ErrInvalidInput, "redact", err)
	}
	var err error
	if o.dpi, err = desc.IntOption("dpi", 150); err != nil {
		return o, err
	}
	if o.dpi < 36 || o.dpi > 1200 {
		return o, job.Errorf(job.ErrInvalidInput, "redact", "dpi %d outside 36-1200", o.dpi)
	}
	o.locate = strings.ToLower(desc.Option("locate", locateAuto))
	switch o.locate {
	case locateText, locateOCR, locateAuto:
	default:
		return o, job.Errorf(job.ErrInvalidInput, "redact", "unknown locate strategy %q", o.locate)
	}
	return o, nil
}

// redact rasterises every affected page, paints the boxes onto the raster
// and swaps the page for an image-only page of the same size, so none of
// the page's original content survives. The output's text layer is then
// re-read and any surviving term fails the job.
func (e *Engine) redact(ctx context.Context, ws Scope, desc *job.Descriptor, outDir string) (job.Artifact, error) {
	if err := e.needRender("redact"); err != nil {
		return job.Artifact{}, err
	}
	in := desc.Input(0).Path
	if err := pdf.Validate(in); err != nil {
		return job.Artifact{}, err
	}
	o, err := parseRedactOptions(desc)
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

	boxes := make(map[int][]render.Word)
	for _, r := range o.regions {
		if r.Page < 1 || r.Page > total {
			return job.Artifact{}, job.Errorf(job.ErrInvalidInput, "redact", "region page %d outside 1-%d", r.Page, total)
		}
		if r.X2 <= r.X1 || r.Y2 <= r.Y1 || r.X1 < 0 || r.Y1 < 0 {
			return job.Artifact{}, job.Errorf(job.ErrInvalidInput, "redact", "region on page %d is empty or negative", r.Page)
		}
		boxes[r.Page] = append(boxes[r.Page], render.Word{X1: r.X1, Y1: r.Y1, X2: r.X2, Y2: r.Y2})
	}
	if len(o.terms) > 0 {
		words, err := e.locateWords(ctx, ws, in, total, o, work)
		if err != nil {
			return job.Artifact{}, err
		}
		for p, pw := range words {
			boxes[p] = append(boxes[p], matchTerms(pw, o.terms)...)
		}
	}

	name := outputName(desc, "_redacted", "pdf")
	out := filepath.Join(outDir, name)
	var pages []int
	for p, b := range boxes {
		if len(b) > 0 {
			pages = append(pages, p)
		}
	}
	sort.Ints(pages)
	fill, _ := imaging.ParseColor(o.fill)

	replacements := make(map[int]string, len(pages))
	for _, p := range pages {
		repl, err := e.redactPage(ctx, ws, in, p, boxes[p], o.dpi, fill, work)
		if err != nil {
			return job.Artifact{}, err
		}
		replacements[p] = repl
	}
	if err := pdf.Replace(in, out, work, replacements); err != nil {
		return job.Artifact{}, err
	}
	e.log.Debug("redacted", "job", desc.ID(), "op", "redact", "pages", pages, "fill", imaging.Hex(fill))

	if err := e.verifyRedaction(ctx, ws, out, o.terms, work); err != nil {
		return job.Artifact{}, err
	}
	return job.NewArtifact(out, name), nil
}

// locateWords returns the words of every page, by page number, from the
// text layer or OCR according to o.locate.
func (e *Engine) locateWords(ctx context.Context, ws Scope, in string, total int, o redactOptions, work string) (map[int][]render.Word, error) {
	words := make(map[int][]render.Word, total)
	if o.locate != locateOCR {
		layer, err := e.render.WordBoxes(ctx, ws, in, 0, 0, work)
		if err != nil {
			return nil, err
		}
		for _, pw := range layer {
			words[pw.Number] = pw.Words
		}
	}
	if o.locate == locateText {
		return words, nil
	}
	var need []int
	for p := 1; p <= total; p++ {
		if len(words[p]) == 0 {
			need = append(need, p)
		}
	}
	if len(need) == 0 {
		return words, nil
	}
	ocrDir := filepath.Join(work, "ocr")
	if err := mkdir(ocrDir); err != nil {
		return nil, err
	}
	pages, err := e.recognizePages(ctx, ws, in, need, ocrOptions{lang: "eng", dpi: max(o.dpi, 300)}, ocrDir)
	if err != nil {
		return nil, err
	}
	for _, p := range pages {
		words[p.Number] = p.WordBoxes()
	}
	return words, nil
}

func (e *Engine) redactPage(ctx context.Context, ws Scope, in string, page int, boxes []render.Word, dpi int, fill color.Color, work string) (string, error) {
	dir := filepath.Join(work, fmt.Sprintf("page-%d", page))
	if err := mkdir(dir); err != nil {
		return "", err
	}
	raster, err := e.render.RenderPage(ctx, ws, in, render.Page{Number: page, DPI: dpi, Format: render.FormatPNG, OutDir: dir})
	if err != nil {
		return "", err
	}
	img, err := imaging.Load(raster)
	if err != nil {
		return "", &job.Error{Kind: job.ErrToolSilentFailure, Op: "redact", Msg: "rendered page unreadable", Err: err}
	}
	rects := make([]image.Rectangle, 0, len(boxes))
	for _, b := range boxes {
		rects = append(rects, imaging.Pad(imaging.PointsToPixels(b.X1, b.Y1, b.X2, b.Y2, dpi), 1))
	}
	masked, err := imaging.Mask(img, rects, fill)
	if err != nil {
		return "", job.Wrap(job.ErrInvalidInput, "redact", err)
	}
	maskedPath := filepath.Join(dir, "masked.png")
	if err := imaging.Save(masked, maskedPath, "png"); err != nil {
		return "", job.Wrap(job.ErrWorkspace, "redact", err)
	}
	b := masked.Bounds()
	out := filepath.Join(dir, "page.pdf")
	err = pdf.ComposeImages([]pdf.ImagePage{{
		Path:   maskedPath,
		Type:   "PNG",
		Width:  pdf.PixelsToPoints(b.Dx(), dpi),
		Height: pdf.PixelsToPoints(b.Dy(), dpi),
	}}, out)
	return out, err
}

func (e *Engine) verifyRedaction(ctx context.Context, ws Scope, out string, terms []string, work string) error {
	if len(terms) == 0 {
		return nil
	}
	verifyDir := filepath.Join(work, "verify")
	if err := mkdir(verifyDir); err != nil {
		return err
	}
	texts, err := e.render.ExtractText(ctx, ws, out, verifyDir)
	if err != nil {
		return err
	}
	for i, t := range texts {
		hay := normalize(t)
		for _, term := range terms {
			if strings.Contains(hay, normalize(term)) {
				return &job.Error{
					Kind: job.ErrToolFailed,
					Op:   "redact",
					Msg:  fmt.Sprintf("%q still extractable on page %d", term, i+1),
					Err:  job.ErrRedactionIncomplete,
				}
			}
		}
	}
	return nil
}

// matchTerms returns the boxes of words forming any term. Multi-word terms
// match consecutive words; matching ignores case and surrounding
// punctuation, and a word matches a single-word term it contains.
func matchTerms(words []render.Word, terms []string) []render.Word {
	norm := make([]string, len(words))
	for i, w := range words {
		norm[i] = normalize(w.Text)
	}
	var out []render.Word
	for _, term := range terms {
		tokens := strings.Fields(normalize(term))
		if len(tokens) == 0 {
			continue
		}
		for i := 0; i+len(tokens) <= len(words); i++ {
			if matchAt(norm, i, tokens) {
				out = append(out, words[i:i+len(tokens)]...)
			}
		}
	}
	return out
}

func matchAt(norm []string, i int, tokens []string) bool {
	if len(tokens) == 1 {
		return norm[i] != "" && strings.Contains(norm[i], tokens[0])
	}
	last := len(tokens) - 1
	for j, tok := range tokens {
		w := norm[i+j]
		switch {
		case j == 0 && !strings.HasSuffix(w, tok):
			return false
		case j == last && !strings.HasPrefix(w, tok):
			return false
		case j > 0 && j < last && w != tok:
			return false
		}
	}
	return true
}

// normalize lowercases s, trims punctuation at word edges and collapses
// whitespace.
func normalize(s string) string {
	fields := strings.Fields(strings.ToLower(s))
	for i, f := range fields {
		fields[i] = strings.TrimFunc(f, func(r rune) bool { return unicode.IsPunct(r) || unicode.IsSymbol(r) })
	}
	return strings.Join(fields, " ")
}

// IsRedactionIncomplete reports whether err is a failed redaction check.
func IsRedactionIncomplete(err error) bool {
	return errors.Is(err, job.ErrRedactionIncomplete)
}
