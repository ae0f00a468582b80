package pdf

import (
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/ironsheep/doc-tools-mcp/internal/job"
)

// PointsPerInch converts between pixels at a DPI and PDF points.
const PointsPerInch = 72.0

// PixelsToPoints converts a pixel length at dpi to points.
func PixelsToPoints(px, dpi int) float64 {
	return float64(px) / float64(dpi) * PointsPerInch
}

// ImagePage is one full-bleed image page.
type ImagePage struct {
	Path string
	// Type is "PNG" or "JPG".
	Type string
	// Width and Height are the page size in points.
	Width, Height float64
	// Fit scales the image to fit the page, centred, keeping its aspect
	// ratio. Otherwise the image fills the page.
	Fit bool
	// Words, when set, are laid over the image as invisible text.
	Words []PlacedWord
}

// Standard page sizes in points.
var (
	A4     = fpdf.SizeType{Wd: 595.28, Ht: 841.89}
	Letter = fpdf.SizeType{Wd: 612, Ht: 792}
)

// PlacedWord is a word positioned in page points, origin top-left.
type PlacedWord struct {
	Text          string
	X, Y          float64
	Width, Height float64
}

func newDocument() *fpdf.Fpdf {
	f := fpdf.NewCustom(&fpdf.InitType{UnitStr: "pt", SizeStr: "A4"})
	f.SetCreator("doc-tools-mcp", true)
	f.SetAutoPageBreak(false, 0)
	f.SetMargins(0, 0, 0)
	return f
}

// ComposeImages writes one page per image, each page sized to its image.
// Pages carrying Words get an invisible, extractable text layer.
func ComposeImages(pages []ImagePage, out string) error {
	if len(pages) == 0 {
		return job.Errorf(job.ErrInvalidInput, "compose", "no pages")
	}
	f := newDocument()
	tr := f.UnicodeTranslatorFromDescriptor("")
	for i, pg := range pages {
		if pg.Width <= 0 || pg.Height <= 0 {
			return job.Errorf(job.ErrInvalidInput, "compose", "page %d has no size", i+1)
		}
		f.AddPageFormat("P", fpdf.SizeType{Wd: pg.Width, Ht: pg.Height})
		x, y, w, h := 0.0, 0.0, pg.Width, pg.Height
		opts := fpdf.ImageOptions{ImageType: pg.Type}
		if pg.Fit {
			if info := f.RegisterImageOptions(pg.Path, opts); info != nil && info.Width() > 0 && info.Height() > 0 {
				scale := min(pg.Width/info.Width(), pg.Height/info.Height())
				w, h = info.Width()*scale, info.Height()*scale
				x, y = (pg.Width-w)/2, (pg.Height-h)/2
			}
		}
		f.ImageOptions(pg.Path, x, y, w, h, false, opts, 0, "")
		if len(pg.Words) > 0 {
			placeInvisibleText(f, tr, pg.Words)
		}
		if f.Err() {
			return &job.Error{Kind: job.ErrToolFailed, Op: "compose", Msg: fmt.Sprintf("page %d", i+1), Err: f.Error()}
		}
	}
	if err := f.OutputFileAndClose(out); err != nil {
		return &job.Error{Kind: job.ErrToolFailed, Op: "compose", Err: err}
	}
	return nil
}

// placeInvisibleText draws each word fully transparent over its box. The
// font size follows the box height and the glyph run is centred in the box.
func placeInvisibleText(f *fpdf.Fpdf, tr func(string) string, words []PlacedWord) {
	f.SetAlpha(0, "Normal")
	f.SetFont("Helvetica", "", 10)
	for _, w := range words {
		if strings.TrimSpace(w.Text) == "" || w.Height <= 0 {
			continue
		}
		txt := tr(w.Text)
		size := w.Height * 0.85
		f.SetFontSize(size)
		if natural := f.GetStringWidth(txt); natural > w.Width && w.Width > 0 {
			size *= w.Width / natural
			f.SetFontSize(size)
		}
		x := w.X + (w.Width-f.GetStringWidth(txt))/2
		f.Text(x, w.Y+w.Height*0.8, txt)
	}
	f.SetAlpha(1, "Normal")
}

// TextOptions configures plain-text layout.
type TextOptions struct {
	FontSize   float64
	LineHeight float64
	Margin     float64
	PageSize   string
}

// ComposeText lays out text on Letter pages in Helvetica 12 with 14pt line
// height and 50pt margins by default, wrapping long lines and breaking pages
// automatically.
func ComposeText(text string, out string, opts TextOptions) error {
	if opts.FontSize <= 0 {
		opts.FontSize = 12
	}
	if opts.LineHeight <= 0 {
		opts.LineHeight = 14
	}
	if opts.Margin <= 0 {
		opts.Margin = 50
	}
	if opts.PageSize == "" {
		opts.PageSize = "Letter"
	}
	f := fpdf.New("P", "pt", opts.PageSize, "")
	f.SetCreator("doc-tools-mcp", true)
	f.SetMargins(opts.Margin, opts.Margin, opts.Margin)
	f.SetAutoPageBreak(true, opts.Margin)
	f.SetFont("Helvetica", "", opts.FontSize)
	tr := f.UnicodeTranslatorFromDescriptor("")
	f.AddPage()

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\t", "    ")
	for _, line := range strings.Split(text, "\n") {
		if line == "" {
			f.Ln(opts.LineHeight)
			continue
		}
		f.MultiCell(0, opts.LineHeight, tr(line), "", "L", false)
	}
	if err := f.OutputFileAndClose(out); err != nil {
		return &job.Error{Kind: job.ErrToolFailed, Op: "text_to_pdf", Err: err}
	}
	return nil
}
