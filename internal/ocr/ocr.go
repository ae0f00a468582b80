package ocr

import (
	"context"
	"strings"

	"github.com/ironsheep/doc-tools-mcp/internal/tool"
)

// DefaultLanguage is used when no language hint is supplied.
const DefaultLanguage = "eng"

// Bounds represents a rectangular bounding box in pixel coordinates.
type Bounds struct {
	X1 int `json:"x1"` // Left edge
	Y1 int `json:"y1"` // Top edge
	X2 int `json:"x2"` // Right edge
	Y2 int `json:"y2"` // Bottom edge
}

// TextRegion represents a word with its location and OCR confidence.
type TextRegion struct {
	// Text is the recognized text content.
	Text string `json:"text"`

	// Confidence is the OCR confidence score (0.0 to 1.0).
	Confidence float64 `json:"confidence"`

	// Bounds is the bounding box around this text in the image.
	Bounds Bounds `json:"bounds"`

	// Line identifies the text line the word belongs to. Words sharing a
	// Line value were recognised on the same line.
	Line int `json:"line"`
}

// OCRResult contains the complete results of text extraction from an image.
type OCRResult struct {
	// FullText is all recognized text with line breaks between lines and a
	// blank line between paragraphs.
	FullText string `json:"full_text"`

	// Regions contains individual words with their bounding boxes and
	// confidence scores, in reading order.
	Regions []TextRegion `json:"regions"`

	// Width and Height are the pixel dimensions of the recognised image, when
	// the engine reports them.
	Width  int `json:"width,omitempty"`
	Height int `json:"height,omitempty"`
}

// Options tunes a recognition call.
type Options struct {
	// Language is a Tesseract language code such as "eng" or "eng+deu".
	Language string
	// PSM is Tesseract's page segmentation mode; zero leaves the default.
	PSM int
	// OutDir receives intermediate files and must lie in the workspace.
	OutDir string
}

func (o Options) language() string {
	if strings.TrimSpace(o.Language) == "" {
		return DefaultLanguage
	}
	return o.Language
}

// Engine recognises text in a raster image.
type Engine interface {
	Recognize(ctx context.Context, ws tool.Tracker, imagePath string, opts Options) (*OCRResult, error)
}

// MeanConfidence returns the average word confidence, or zero for no words.
func (r *OCRResult) MeanConfidence() float64 {
	if len(r.Regions) == 0 {
		return 0
	}
	var sum float64
	for _, reg := range r.Regions {
		sum += reg.Confidence
	}
	return sum / float64(len(r.Regions))
}
