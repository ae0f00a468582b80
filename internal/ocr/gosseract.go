//go:build gosseract

package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/ironsheep/doc-tools-mcp/internal/job"
	"github.com/ironsheep/doc-tools-mcp/internal/tool"
)

// Gosseract recognises text in-process through libtesseract.
//
// A gosseract client is not safe for concurrent use, so each call creates
// its own. The workspace is tracked for the duration of the call like an
// external invocation.
type Gosseract struct {
	// TessdataPrefix overrides the tessdata directory when set.
	TessdataPrefix string
}

// NewGosseract returns an in-process engine.
func NewGosseract(tessdataPrefix string) *Gosseract {
	return &Gosseract{TessdataPrefix: tessdataPrefix}
}

// Available reports that the in-process engine was compiled in.
func Available() bool { return true }

// NewInProcess returns the in-process engine.
func NewInProcess(tessdataPrefix string) (Engine, error) {
	return NewGosseract(tessdataPrefix), nil
}

// Recognize performs OCR on an entire image file.
//
// Word regions come from Tesseract's RIL_WORD iterator level. Empty words are
// filtered out. If word-level bounding box extraction fails, the full text is
// still returned with an empty Regions slice.
func (g *Gosseract) Recognize(ctx context.Context, ws tool.Tracker, imagePath string, opts Options) (*OCRResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, job.Wrap(job.KindOf(err), "gosseract", err)
	}
	done, err := ws.Track()
	if err != nil {
		return nil, err
	}
	defer done()

	client := gosseract.NewClient()
	defer client.Close()

	if g.TessdataPrefix != "" {
		client.SetTessdataPrefix(g.TessdataPrefix)
	}
	if err := client.SetLanguage(strings.Split(opts.language(), "+")...); err != nil {
		return nil, &job.Error{Kind: job.ErrToolFailed, Op: "gosseract", Msg: "set language", Err: err}
	}
	if opts.PSM > 0 {
		if err := client.SetPageSegMode(gosseract.PageSegMode(opts.PSM)); err != nil {
			return nil, &job.Error{Kind: job.ErrToolFailed, Op: "gosseract", Msg: "set page segmentation mode", Err: err}
		}
	}
	if err := client.SetImage(imagePath); err != nil {
		return nil, &job.Error{Kind: job.ErrInvalidInput, Op: "gosseract", Msg: "set image", Err: err}
	}

	text, err := client.Text()
	if err != nil {
		return nil, &job.Error{Kind: job.ErrToolFailed, Op: "gosseract", Msg: "recognize", Err: err}
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return &OCRResult{FullText: text, Regions: []TextRegion{}}, nil
	}

	regions := make([]TextRegion, 0, len(boxes))
	lineIDs := map[string]int{}
	for _, box := range boxes {
		if strings.TrimSpace(box.Word) == "" {
			continue
		}
		key := fmt.Sprintf("%d.%d.%d", box.BlockNum, box.ParNum, box.LineNum)
		id, ok := lineIDs[key]
		if !ok {
			id = len(lineIDs) + 1
			lineIDs[key] = id
		}
		regions = append(regions, TextRegion{
			Text:       box.Word,
			Confidence: float64(box.Confidence) / 100.0,
			Bounds: Bounds{
				X1: box.Box.Min.X,
				Y1: box.Box.Min.Y,
				X2: box.Box.Max.X,
				Y2: box.Box.Max.Y,
			},
			Line: id,
		})
	}

	return &OCRResult{FullText: text, Regions: regions}, nil
}
