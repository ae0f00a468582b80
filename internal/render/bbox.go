package render

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ironsheep/doc-tools-mcp/internal/job"
	"github.com/ironsheep/doc-tools-mcp/internal/tool"
)

// Word is one word of the text layer in PDF points, origin top-left.
type Word struct {
	Text string  `json:"text"`
	X1   float64 `json:"x1"`
	Y1   float64 `json:"y1"`
	X2   float64 `json:"x2"`
	Y2   float64 `json:"y2"`
}

// PageWords is the word layout of one page.
type PageWords struct {
	Number int     `json:"page"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Words  []Word  `json:"words"`
}

// WordBoxes returns the text-layer words of pages first..last. A zero last
// means through the final page.
func (p *Poppler) WordBoxes(ctx context.Context, ws tool.Tracker, pdfPath string, first, last int, outDir string) ([]PageWords, error) {
	out := filepath.Join(outDir, fmt.Sprintf("%s-bbox-%d.html", job.Stem(pdfPath), first))
	args := []string{"-bbox", "-enc", "UTF-8"}
	if first > 0 {
		args = append(args, "-f", strconv.Itoa(first))
	}
	if last > 0 {
		args = append(args, "-l", strconv.Itoa(last))
	}
	args = append(args, pdfPath, out)

	if _, err := p.exec.Run(ctx, ws, tool.Invocation{Path: p.cfg.Pdftotext, Args: args, Timeout: p.cfg.Timeout}); err != nil {
		return nil, classifyPopplerError(err)
	}
	f, err := os.Open(out)
	if err != nil {
		return nil, job.Errorf(job.ErrToolSilentFailure, "pdftotext", "no bbox output: %v", err)
	}
	defer f.Close()

	pages, err := parseBBox(f)
	if err != nil {
		return nil, &job.Error{Kind: job.ErrToolFailed, Op: "pdftotext", Msg: "parse bbox output", Err: err}
	}
	start := first
	if start < 1 {
		start = 1
	}
	for i := range pages {
		pages[i].Number = start + i
	}
	return pages, nil
}

// parseBBox reads the XHTML emitted by pdftotext -bbox.
func parseBBox(r io.Reader) ([]PageWords, error) {
	dec := xml.NewDecoder(r)
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity

	var pages []PageWords
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return pages, nil
		}
		if err != nil {
			return nil, err
		}
		se, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch se.Name.Local {
		case "page":
			pages = append(pages, PageWords{
				Width:  attrFloat(se, "width"),
				Height: attrFloat(se, "height"),
			})
		case "word":
			if len(pages) == 0 {
				continue
			}
			var text string
			if err := dec.DecodeElement(&text, &se); err != nil {
				return nil, err
			}
			text = strings.TrimSpace(text)
			if text == "" {
				continue
			}
			pg := &pages[len(pages)-1]
			pg.Words = append(pg.Words, Word{
				Text: text,
				X1:   attrFloat(se, "xMin"),
				Y1:   attrFloat(se, "yMin"),
				X2:   attrFloat(se, "xMax"),
				Y2:   attrFloat(se, "yMax"),
			})
		}
	}
}

func attrFloat(se xml.StartElement, name string) float64 {
	for _, a := range se.Attr {
		if a.Name.Local == name {
			v, _ := strconv.ParseFloat(a.Value, 64)
			return v
		}
	}
	return 0
}
