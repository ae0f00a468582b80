package pdf

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/ironsheep/doc-tools-mcp/internal/job"
)

var configOnce sync.Once

// config returns a relaxed pdfcpu configuration. pdfcpu's on-disk config
// directory is disabled so the server never writes outside its workspaces.
func config() *model.Configuration {
	configOnce.Do(api.DisableConfigDir)
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Validate fails with ErrInvalidInput unless path is a readable PDF.
func Validate(path string) error {
	if err := api.ValidateFile(path, config()); err != nil {
		return &job.Error{Kind: job.ErrInvalidInput, Op: "pdf", Msg: fmt.Sprintf("%s is not a valid PDF", filepath.Base(path)), Err: err}
	}
	return nil
}

// PageCount returns the number of pages in path.
func PageCount(path string) (int, error) {
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, &job.Error{Kind: job.ErrInvalidInput, Op: "pdf", Msg: fmt.Sprintf("read %s", filepath.Base(path)), Err: err}
	}
	if n < 1 {
		return 0, job.Errorf(job.ErrInvalidInput, "pdf", "%s has no pages", filepath.Base(path))
	}
	return n, nil
}

// Merge concatenates inputs, in order, into out.
func Merge(inputs []string, out string) error {
	if len(inputs) < 2 {
		return job.Errorf(job.ErrInvalidInput, "merge", "need at least two PDFs, got %d", len(inputs))
	}
	for _, in := range inputs {
		if err := Validate(in); err != nil {
			return err
		}
	}
	if err := api.MergeCreateFile(inputs, out, false, config()); err != nil {
		return &job.Error{Kind: job.ErrToolFailed, Op: "merge", Err: err}
	}
	return nil
}

// Range is an inclusive, 1-based page range.
type Range struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (r Range) String() string {
	if r.Start == r.End {
		return strconv.Itoa(r.Start)
	}
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// Pages expands the range.
func (r Range) Pages() []int {
	out := make([]int, 0, r.End-r.Start+1)
	for p := r.Start; p <= r.End; p++ {
		out = append(out, p)
	}
	return out
}

// ParseRanges parses a selection such as "1,3,5-7" against a document of
// total pages. Each range must satisfy 1 <= start <= end <= total.
func ParseRanges(sel string, total int) ([]Range, error) {
	var out []Range
	for _, part := range strings.Split(sel, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		var r Range
		var err error
		if lo, hi, ok := strings.Cut(part, "-"); ok {
			r.Start, err = strconv.Atoi(strings.TrimSpace(lo))
			if err == nil {
				r.End, err = strconv.Atoi(strings.TrimSpace(hi))
			}
		} else {
			r.Start, err = strconv.Atoi(part)
			r.End = r.Start
		}
		if err != nil {
			return nil, job.Errorf(job.ErrInvalidInput, "split", "invalid page range %q", part)
		}
		if r.Start < 1 || r.End > total || r.Start > r.End {
			return nil, job.Errorf(job.ErrInvalidInput, "split", "page range %q outside 1-%d", part, total)
		}
		out = append(out, r)
	}
	if len(out) == 0 {
		return nil, job.Errorf(job.ErrInvalidInput, "split", "empty page selection")
	}
	return out, nil
}

// PageList parses a selection into distinct page numbers in ascending
// order. An empty selection means every page.
func PageList(sel string, total int) ([]int, error) {
	if strings.TrimSpace(sel) == "" {
		return Range{1, total}.Pages(), nil
	}
	ranges, err := ParseRanges(sel, total)
	if err != nil {
		return nil, err
	}
	seen := make(map[int]bool)
	var pages []int
	for p := 1; p <= total; p++ {
		for _, r := range ranges {
			if p >= r.Start && p <= r.End && !seen[p] {
				seen[p] = true
				pages = append(pages, p)
			}
		}
	}
	return pages, nil
}

// Trim writes the pages of r from in to out.
func Trim(in, out string, r Range) error {
	if err := api.TrimFile(in, out, []string{r.String()}, config()); err != nil {
		return &job.Error{Kind: job.ErrToolFailed, Op: "trim", Msg: r.String(), Err: err}
	}
	return nil
}

// DefaultSplitPrefix names split outputs when no prefix is given.
const DefaultSplitPrefix = "split_part"

// Split writes one file per range into outDir. With no ranges every page
// becomes its own file named <prefix>_<n>.pdf; otherwise files are named
// <prefix>_<i>_<start>-<end>.pdf.
func Split(in, outDir, prefix string, ranges []Range) ([]string, error) {
	if prefix == "" {
		prefix = DefaultSplitPrefix
	}
	total, err := PageCount(in)
	if err != nil {
		return nil, err
	}
	perPage := len(ranges) == 0
	if perPage {
		for p := 1; p <= total; p++ {
			ranges = append(ranges, Range{p, p})
		}
	}

	outs := make([]string, 0, len(ranges))
	for i, r := range ranges {
		if r.Start < 1 || r.End > total || r.Start > r.End {
			return nil, job.Errorf(job.ErrInvalidInput, "split", "page range %s outside 1-%d", r, total)
		}
		name := fmt.Sprintf("%s_%d_%d-%d.pdf", prefix, i+1, r.Start, r.End)
		if perPage {
			name = fmt.Sprintf("%s_%d.pdf", prefix, i+1)
		}
		out := filepath.Join(outDir, name)
		if err := Trim(in, out, r); err != nil {
			return nil, err
		}
		outs = append(outs, out)
	}
	return outs, nil
}

// Replace rebuilds in with the pages in replacements swapped for the
// single-page documents they map to, writing the result to out. Untouched
// page runs are copied with Trim; scratch files go to workDir.
func Replace(in, out, workDir string, replacements map[int]string) error {
	total, err := PageCount(in)
	if err != nil {
		return err
	}
	for p := range replacements {
		if p < 1 || p > total {
			return job.Errorf(job.ErrInvalidInput, "pdf", "replacement for page %d outside 1-%d", p, total)
		}
	}

	var parts []string
	runStart := 0
	flush := func(end int) error {
		if runStart == 0 {
			return nil
		}
		part := filepath.Join(workDir, fmt.Sprintf("keep-%d-%d.pdf", runStart, end))
		if err := Trim(in, part, Range{runStart, end}); err != nil {
			return err
		}
		parts = append(parts, part)
		runStart = 0
		return nil
	}
	for p := 1; p <= total; p++ {
		repl, ok := replacements[p]
		if !ok {
			if runStart == 0 {
				runStart = p
			}
			continue
		}
		if err := flush(p - 1); err != nil {
			return err
		}
		parts = append(parts, repl)
	}
	if err := flush(total); err != nil {
		return err
	}
	if len(parts) == 1 {
		return copyFile(parts[0], out)
	}
	if err := api.MergeCreateFile(parts, out, false, config()); err != nil {
		return &job.Error{Kind: job.ErrToolFailed, Op: "merge", Err: err}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return job.Wrap(job.ErrWorkspace, "pdf", err)
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return job.Wrap(job.ErrWorkspace, "pdf", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return job.Wrap(job.ErrWorkspace, "pdf", err)
	}
	return job.Wrap(job.ErrWorkspace, "pdf", out.Close())
}
