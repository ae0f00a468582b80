package convert

import (
	"context"
	"encoding/json"
	"path/filepath"

	"github.com/ironsheep/doc-tools-mcp/internal/job"
	"github.com/ironsheep/doc-tools-mcp/internal/pdf"
)

func (e *Engine) scrubMetadata(_ context.Context, _ Scope, desc *job.Descriptor, outDir string) (job.Artifact, error) {
	name := outputName(desc, "_scrubbed", "pdf")
	out := filepath.Join(outDir, name)
	removed, err := pdf.Scrub(desc.Input(0).Path, out)
	if err != nil {
		return job.Artifact{}, err
	}
	e.log.Info("metadata scrubbed", "job", desc.ID(), "input", desc.Input(0).Name, "removed", removed.Fields())
	return job.NewArtifact(out, name), nil
}

// fillForm takes its values from the "fields" option, a JSON object keyed by
// field name. "flatten" (default true) makes every field read-only.
func (e *Engine) fillForm(_ context.Context, _ Scope, desc *job.Descriptor, outDir string) (job.Artifact, error) {
	raw := desc.Option("fields", "")
	if raw == "" {
		return job.Artifact{}, job.Errorf(job.ErrInvalidInput, "fill_form", "fields option is required")
	}
	var values map[string]any
	if err := json.Unmarshal([]byte(raw), &values); err != nil {
		return job.Artifact{}, &job.Error{Kind: job.ErrInvalidInput, Op: "fill_form", Msg: "fields must be a JSON object", Err: err}
	}
	flatten, err := desc.BoolOption("flatten", true)
	if err != nil {
		return job.Artifact{}, err
	}

	name := outputName(desc, "_filled", "pdf")
	out := filepath.Join(outDir, name)
	filled, err := pdf.FillForm(desc.Input(0).Path, out, values, flatten)
	if err != nil {
		return job.Artifact{}, err
	}
	e.log.Debug("form filled", "job", desc.ID(), "fields", filled, "locked", flatten)
	return job.NewArtifact(out, name), nil
}
