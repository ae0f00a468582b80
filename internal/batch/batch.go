// Package batch fans an archive of inputs out to the conversion engine, one
// member per job, and packs the successful outputs with a manifest.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/doc-tools-mcp/internal/archive"
	"github.com/ironsheep/doc-tools-mcp/internal/convert"
	"github.com/ironsheep/doc-tools-mcp/internal/job"
)

// ManifestName is the manifest entry in every result archive.
const ManifestName = "manifest.json"

// Converter runs one job. *convert.Engine satisfies it.
type Converter interface {
	Convert(ctx context.Context, ws convert.Scope, desc *job.Descriptor) (job.Artifact, error)
}

// Options bounds a batch.
type Options struct {
	// Workers is the number of members converted in parallel.
	Workers int
	// OfficeSlots caps parallelism for office operations, which contend
	// for the office profile pool.
	OfficeSlots int
	Logger      *slog.Logger
}

// Orchestrator runs batches.
type Orchestrator struct {
	conv Converter
	opts Options
	log  *slog.Logger
}

// New returns an Orchestrator delegating each member to conv.
func New(conv Converter, opts Options) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.OfficeSlots <= 0 {
		opts.OfficeSlots = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{conv: conv, opts: opts, log: logger}
}

// Manifest is the JSON document stored as ManifestName.
type Manifest struct {
	Source string `json:"source"`
	*job.BatchResult
}

// Run unpacks src into ws and converts every member with the operation and
// options of template. Members the operation does not accept, and members
// with unsafe names, are recorded as skipped. A failing member never stops
// the others. Items are returned in archive order.
//
// The returned artifact is a zip of the successful outputs plus a manifest;
// it is produced even when every member failed. If ctx ends first, all
// results are discarded and the context error is returned.
func (o *Orchestrator) Run(ctx context.Context, ws convert.Scope, src job.Artifact, template *job.Descriptor) (*job.BatchResult, job.Artifact, error) {
	op := template.Operation()
	dir, err := ws.TempDir("members", "batch-")
	if err != nil {
		return nil, job.Artifact{}, err
	}
	members, err := archive.Extract(src.Path, dir)
	if err != nil {
		return nil, job.Artifact{}, err
	}

	items := make([]job.BatchItemResult, len(members))
	limit := o.opts.Workers
	if op.UsesOffice() {
		limit = min(limit, o.opts.OfficeSlots)
	}
	var g errgroup.Group
	g.SetLimit(limit)
	for i, m := range members {
		items[i] = job.BatchItemResult{Index: m.Index, Source: m.Name}
		name := path.Base(m.Name)
		switch {
		case m.Rejected != "":
			items[i].Status = job.ItemSkipped
			items[i].Error = m.Rejected
			continue
		case m.Err != nil:
			items[i].Status = job.ItemFailed
			items[i].ErrorKind = job.KindName(m.Err)
			items[i].Error = m.Err.Error()
			o.log.Info("batch item failed", "job", template.ID(), "item", m.Index, "source", m.Name, "err", m.Err)
			continue
		case !op.Accepts(job.MediaTypeFor(name)):
			items[i].Status = job.ItemSkipped
			items[i].Error = fmt.Sprintf("%s does not accept %s", op, job.MediaTypeFor(name))
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			art, err := o.convertMember(ctx, ws, template, m.Path, name)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				items[i].Status = job.ItemFailed
				items[i].ErrorKind = job.KindName(err)
				items[i].Error = err.Error()
				o.log.Info("batch item failed", "job", template.ID(), "item", m.Index, "source", m.Name, "err", err)
				return nil
			}
			items[i].Status = job.ItemSuccess
			items[i].Artifact = &art
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, job.Artifact{}, &job.Error{Kind: job.KindOf(err), Op: "batch", Msg: "batch aborted", Err: err}
	}
	if err := ctx.Err(); err != nil {
		return nil, job.Artifact{}, &job.Error{Kind: job.KindOf(err), Op: "batch", Msg: "batch aborted", Err: err}
	}

	result := job.NewBatchResult(op, items)
	out, err := o.pack(ws, src, result)
	if err != nil {
		return nil, job.Artifact{}, err
	}
	o.log.Info("batch complete", "job", template.ID(), "op", op.String(), "status", result.Status,
		"succeeded", result.Succeeded, "failed", result.Failed, "skipped", result.Skipped)
	return result, out, nil
}

func (o *Orchestrator) convertMember(ctx context.Context, ws convert.Scope, template *job.Descriptor, memberPath, name string) (job.Artifact, error) {
	desc, err := template.Derive(job.Artifact{Path: memberPath, Name: name, MediaType: job.MediaTypeFor(name)})
	if err != nil {
		return job.Artifact{}, err
	}
	return o.conv.Convert(ctx, ws, desc)
}

// pack names each successful output <source stem>.<output ext>, assigns
// -<n> suffixes on collision, and writes the result archive.
func (o *Orchestrator) pack(ws convert.Scope, src job.Artifact, result *job.BatchResult) (job.Artifact, error) {
	next := archive.UniqueNames()
	next(ManifestName)

	var entries []archive.Entry
	for i := range result.Items {
		it := &result.Items[i]
		if it.Status != job.ItemSuccess {
			continue
		}
		ext := filepath.Ext(it.Artifact.Name)
		it.Output = next(job.Stem(path.Base(it.Source)) + ext)
		entries = append(entries, archive.Entry{Name: it.Output, Path: it.Artifact.Path})
	}
	manifest, err := json.MarshalIndent(Manifest{Source: src.Name, BatchResult: result}, "", "  ")
	if err != nil {
		return job.Artifact{}, job.Wrap(job.ErrWorkspace, "batch", err)
	}
	entries = append(entries, archive.Entry{Name: ManifestName, Data: manifest})

	outDir, err := ws.TempDir("out", "batch-")
	if err != nil {
		return job.Artifact{}, err
	}
	name := job.Stem(src.Name) + "_results.zip"
	out := filepath.Join(outDir, name)
	if err := archive.Write(out, entries); err != nil {
		return job.Artifact{}, err
	}
	return job.NewArtifact(out, name), nil
}
