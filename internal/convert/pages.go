package convert

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/ironsheep/doc-tools-mcp/internal/archive"
	"github.com/ironsheep/doc-tools-mcp/internal/job"
	"github.com/ironsheep/doc-tools-mcp/internal/pdf"
)

func (e *Engine) merge(_ context.Context, _ Scope, desc *job.Descriptor, outDir string) (job.Artifact, error) {
	name := safeName(desc.Option("output_filename", "merged.pdf"), "merged")
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		name += ".pdf"
	}
	inputs := make([]string, 0, desc.NumInputs())
	for _, in := range desc.Inputs() {
		inputs = append(inputs, in.Path)
	}
	out := filepath.Join(outDir, name)
	if err := pdf.Merge(inputs, out); err != nil {
		return job.Artifact{}, err
	}
	return job.NewArtifact(out, name), nil
}

func (e *Engine) split(_ context.Context, _ Scope, desc *job.Descriptor, outDir string) (job.Artifact, error) {
	in := desc.Input(0).Path
	if err := pdf.Validate(in); err != nil {
		return job.Artifact{}, err
	}
	var ranges []pdf.Range
	if sel := desc.Option("pages", ""); sel != "" {
		total, err := pdf.PageCount(in)
		if err != nil {
			return job.Artifact{}, err
		}
		if ranges, err = pdf.ParseRanges(sel, total); err != nil {
			return job.Artifact{}, err
		}
	}
	prefix := safeName(desc.Option("prefix", pdf.DefaultSplitPrefix), pdf.DefaultSplitPrefix)
	partsDir := filepath.Join(outDir, "parts")
	if err := mkdir(partsDir); err != nil {
		return job.Artifact{}, err
	}
	parts, err := pdf.Split(in, partsDir, prefix, ranges)
	if err != nil {
		return job.Artifact{}, err
	}

	entries := make([]archive.Entry, len(parts))
	for i, p := range parts {
		entries[i] = archive.Entry{Name: filepath.Base(p), Path: p}
	}
	name := outputName(desc, "_split", "zip")
	out := filepath.Join(outDir, name)
	if err := archive.Write(out, entries); err != nil {
		return job.Artifact{}, err
	}
	return job.NewArtifact(out, name), nil
}

// safeName reduces a caller-supplied file name to a plain base name.
func safeName(name, fallback string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), `\`, "/"))
	if name == "." || name == "/" || name == ".." || name == "" {
		return fallback
	}
	return name
}
