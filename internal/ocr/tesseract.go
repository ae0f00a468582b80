package ocr

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ironsheep/doc-tools-mcp/internal/job"
	"github.com/ironsheep/doc-tools-mcp/internal/tool"
)

// Tesseract runs the tesseract CLI and parses its TSV output.
type Tesseract struct {
	exec    tool.Executor
	path    string
	timeout time.Duration
	log     *slog.Logger
}

// NewTesseract returns a CLI engine. An empty path means "tesseract" on PATH.
func NewTesseract(exec tool.Executor, path string, timeout time.Duration, logger *slog.Logger) *Tesseract {
	if path == "" {
		path = "tesseract"
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Tesseract{exec: exec, path: path, timeout: timeout, log: logger}
}

// Recognize performs OCR on imagePath and returns text plus word boxes.
//
// The engine writes <stem>.tsv into opts.OutDir (or next to the image) and
// derives FullText from the TSV rows, so a single process yields both text
// and layout.
func (t *Tesseract) Recognize(ctx context.Context, ws tool.Tracker, imagePath string, opts Options) (*OCRResult, error) {
	outDir := opts.OutDir
	if outDir == "" {
		outDir = filepath.Dir(imagePath)
	}
	base := filepath.Join(outDir, job.Stem(imagePath)+"-ocr")
	args := []string{imagePath, base, "-l", opts.language()}
	if opts.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(opts.PSM))
	}
	args = append(args, "tsv")

	res, err := t.exec.Run(ctx, ws, tool.Invocation{Path: t.path, Args: args, Timeout: t.timeout})
	if err != nil {
		return nil, classifyTesseractError(err, res)
	}

	f, err := os.Open(base + ".tsv")
	if err != nil {
		return nil, job.Errorf(job.ErrToolSilentFailure, "tesseract", "no tsv output for %s", filepath.Base(imagePath))
	}
	defer f.Close()

	result, err := ParseTSV(f)
	if err != nil {
		return nil, &job.Error{Kind: job.ErrToolFailed, Op: "tesseract", Msg: "parse tsv", Err: err}
	}
	t.log.Debug("ocr complete", "tool", "tesseract", "image", filepath.Base(imagePath), "words", len(result.Regions))
	return result, nil
}

// classifyTesseractError maps unreadable-image failures to ErrInvalidInput.
func classifyTesseractError(err error, res *tool.Result) error {
	var je *job.Error
	if !errors.As(err, &je) || !errors.Is(je.Kind, job.ErrToolFailed) {
		return err
	}
	stderr := je.Stderr
	if stderr == "" && res != nil {
		stderr = res.Stderr
	}
	lower := strings.ToLower(stderr)
	for _, marker := range []string{"cannot be read", "pixread", "unsupported image", "image file"} {
		if strings.Contains(lower, marker) {
			return &job.Error{Kind: job.ErrInvalidInput, Op: "tesseract", Msg: "unreadable image", ExitCode: je.ExitCode, Stderr: stderr}
		}
	}
	return err
}

// TSV column indexes as emitted by tesseract's tsv config.
const (
	colLevel = iota
	colPage
	colBlock
	colPar
	colLine
	colWord
	colLeft
	colTop
	colWidth
	colHeight
	colConf
	colText
	numCols
)

// Row levels.
const (
	levelPage = 1
	levelWord = 5
)

// ParseTSV converts tesseract TSV output into an OCRResult. Words become
// Regions with confidence scaled to 0..1; FullText joins words by line and
// separates paragraphs with a blank line.
func ParseTSV(r io.Reader) (*OCRResult, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	result := &OCRResult{Regions: []TextRegion{}}
	var (
		b                  strings.Builder
		lineKey, parKey    string
		lineID             int
		header             = true
		wordsOnLine, lines int
	)
	for sc.Scan() {
		line := sc.Text()
		if header {
			header = false
			if strings.HasPrefix(line, "level") {
				continue
			}
		}
		cols := strings.Split(line, "\t")
		if len(cols) < numCols-1 {
			continue
		}
		nums := make([]int, colConf)
		for i := 0; i < colConf; i++ {
			n, err := strconv.Atoi(strings.TrimSpace(cols[i]))
			if err != nil {
				return nil, fmt.Errorf("tsv column %d: %q is not numeric", i+1, cols[i])
			}
			nums[i] = n
		}
		switch nums[colLevel] {
		case levelPage:
			result.Width, result.Height = nums[colWidth], nums[colHeight]
			continue
		case levelWord:
		default:
			continue
		}
		text := ""
		if len(cols) > colText {
			text = strings.TrimSpace(cols[colText])
		}
		if text == "" {
			continue
		}
		conf, err := strconv.ParseFloat(strings.TrimSpace(cols[colConf]), 64)
		if err != nil {
			return nil, fmt.Errorf("tsv confidence %q: %w", cols[colConf], err)
		}

		pk := fmt.Sprintf("%d.%d.%d", nums[colPage], nums[colBlock], nums[colPar])
		lk := pk + "." + strconv.Itoa(nums[colLine])
		if lk != lineKey {
			if lines > 0 {
				if pk != parKey {
					b.WriteString("\n\n")
				} else {
					b.WriteString("\n")
				}
			}
			lineKey, parKey = lk, pk
			lineID++
			lines++
			wordsOnLine = 0
		}
		if wordsOnLine > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(text)
		wordsOnLine++

		if conf < 0 {
			conf = 0
		}
		left, top := nums[colLeft], nums[colTop]
		result.Regions = append(result.Regions, TextRegion{
			Text:       text,
			Confidence: conf / 100.0,
			Bounds:     Bounds{X1: left, Y1: top, X2: left + nums[colWidth], Y2: top + nums[colHeight]},
			Line:       lineID,
		})
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if lines > 0 {
		b.WriteByte('\n')
	}
	result.FullText = b.String()
	return result, nil
}
