// Package pipeline is the entry point the router calls: it scopes a job to
// a workspace, applies its deadline, routes it to the conversion engine or
// the batch orchestrator, and hands back caller-owned copies of the outputs.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/ironsheep/doc-tools-mcp/internal/archive"
	"github.com/ironsheep/doc-tools-mcp/internal/batch"
	"github.com/ironsheep/doc-tools-mcp/internal/convert"
	"github.com/ironsheep/doc-tools-mcp/internal/job"
	"github.com/ironsheep/doc-tools-mcp/internal/workspace"
)

// Outcome is the result of one Run.
type Outcome struct {
	JobID     string `json:"job_id"`
	Operation string `json:"operation"`
	// Status is an HTTP-style status code.
	Status    int              `json:"status"`
	Artifacts []job.Artifact   `json:"artifacts,omitempty"`
	Batch     *job.BatchResult `json:"batch,omitempty"`
	ErrorKind string           `json:"error_kind,omitempty"`
	Error     string           `json:"error,omitempty"`
	Duration  string           `json:"duration"`
}

// OK reports whether the job produced its outputs.
func (o Outcome) OK() bool { return o.Status == http.StatusOK }

// Options configures a Pipeline.
type Options struct {
	// DefaultTimeout bounds jobs whose descriptor has no deadline. Zero
	// leaves them unbounded.
	DefaultTimeout time.Duration
	Logger         *slog.Logger
}

// Pipeline runs jobs.
type Pipeline struct {
	workspaces *workspace.Manager
	engine     batch.Converter
	batch      *batch.Orchestrator
	opts       Options
	log        *slog.Logger

	active    atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// New returns a Pipeline.
func New(ws *workspace.Manager, engine batch.Converter, orch *batch.Orchestrator, opts Options) *Pipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{workspaces: ws, engine: engine, batch: orch, opts: opts, log: logger}
}

// Stats is a point-in-time view of pipeline activity.
type Stats struct {
	ActiveJobs       int64    `json:"active_jobs"`
	CompletedJobs    int64    `json:"completed_jobs"`
	FailedJobs       int64    `json:"failed_jobs"`
	LiveWorkspaces   int      `json:"live_workspaces"`
	PendingDeletions []string `json:"pending_deletions,omitempty"`
}

// Stats reports counters since start.
func (p *Pipeline) Stats() Stats {
	return Stats{
		ActiveJobs:       p.active.Load(),
		CompletedJobs:    p.completed.Load(),
		FailedJobs:       p.failed.Load(),
		LiveWorkspaces:   p.workspaces.Live(),
		PendingDeletions: p.workspaces.Pending(),
	}
}

// Run executes desc and copies its output into outDir as <jobID>-<name>.
// The workspace is released before Run returns, on every path.
func (p *Pipeline) Run(ctx context.Context, desc *job.Descriptor, outDir string) Outcome {
	start := time.Now()
	p.active.Add(1)
	defer p.active.Add(-1)

	if deadline, ok := desc.Deadline(); ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	} else if p.opts.DefaultTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.DefaultTimeout)
		defer cancel()
	}

	out := Outcome{JobID: desc.ID(), Operation: desc.Operation().String()}
	err := p.workspaces.With(ctx, desc.ID(), func(ws *workspace.Workspace) error {
		art, res, err := p.route(ctx, ws, desc)
		if err != nil {
			return err
		}
		out.Batch = res
		delivered, err := deliver(art, outDir, desc.ID())
		if err != nil {
			return err
		}
		out.Artifacts = []job.Artifact{delivered}
		return nil
	})
	out.Duration = time.Since(start).Round(time.Millisecond).String()

	if err != nil {
		// A job cut short by its deadline reports a timeout whatever the
		// stage that noticed.
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !job.IsKind(err, job.ErrToolTimeout) {
			err = &job.Error{Kind: job.ErrToolTimeout, Op: desc.Operation().String(), Msg: "job deadline exceeded", Err: err}
		}
		out.Status = job.Status(err)
		out.ErrorKind = job.KindName(err)
		out.Error = err.Error()
		p.failed.Add(1)
		if convert.IsRedactionIncomplete(err) {
			p.log.Error("redaction left text extractable, output withheld", "job", desc.ID(), "err", err)
		} else {
			p.log.Warn("job failed", "job", desc.ID(), "op", out.Operation, "kind", out.ErrorKind, "err", err, "elapsed", out.Duration)
		}
		return out
	}

	out.Status = http.StatusOK
	if out.Batch != nil && out.Batch.Status == job.AllFailed {
		out.Status = http.StatusInternalServerError
		out.ErrorKind = "batch_failed"
		out.Error = fmt.Sprintf("all %d batch items failed or were skipped", len(out.Batch.Items))
		p.failed.Add(1)
	} else {
		p.completed.Add(1)
	}
	p.log.Info("job complete", "job", desc.ID(), "op", out.Operation, "status", out.Status, "elapsed", out.Duration)
	return out
}

// route imports the inputs and dispatches. A single zip input is handled as
// a batch, except for operations taking several inputs, which take the
// archive members as their inputs in archive order. Option batch=false
// disables batch routing.
func (p *Pipeline) route(ctx context.Context, ws *workspace.Workspace, desc *job.Descriptor) (job.Artifact, *job.BatchResult, error) {
	inputs := make([]job.Artifact, desc.NumInputs())
	for i, in := range desc.Inputs() {
		imported, err := ws.Import(in, filepath.Join("in", fmt.Sprint(i)))
		if err != nil {
			return job.Artifact{}, nil, err
		}
		inputs[i] = imported
	}

	isArchive := len(inputs) == 1 && inputs[0].MediaType == job.MediaZip
	asBatch, err := desc.BoolOption("batch", isArchive)
	if err != nil {
		return job.Artifact{}, nil, err
	}
	switch {
	case isArchive && asBatch && desc.Operation().MultiInput():
		members, err := p.expand(ws, desc.Operation(), inputs[0])
		if err != nil {
			return job.Artifact{}, nil, err
		}
		inputs = members
	case isArchive && asBatch:
		if p.batch == nil {
			return job.Artifact{}, nil, job.Errorf(job.ErrInvalidInput, "batch", "batch processing is not enabled")
		}
		res, art, err := p.batch.Run(ctx, ws, inputs[0], desc)
		return art, res, err
	}

	local, err := desc.Derive(inputs...)
	if err != nil {
		return job.Artifact{}, nil, err
	}
	art, err := p.engine.Convert(ctx, ws, local)
	return art, nil, err
}

// expand unpacks an archive and returns its members the operation accepts.
func (p *Pipeline) expand(ws *workspace.Workspace, op job.Operation, src job.Artifact) ([]job.Artifact, error) {
	dir, err := ws.TempDir("members", "expand-")
	if err != nil {
		return nil, err
	}
	members, err := archive.Extract(src.Path, dir)
	if err != nil {
		return nil, err
	}
	var out []job.Artifact
	for _, m := range members {
		if m.Rejected != "" {
			p.log.Warn("archive member rejected", "op", op.String(), "item", m.Name, "reason", m.Rejected)
			continue
		}
		a := job.NewArtifact(m.Path, filepath.Base(m.Path))
		if op.Accepts(a.MediaType) {
			out = append(out, a)
		}
	}
	if len(out) == 0 {
		return nil, job.Errorf(job.ErrInvalidInput, op.String(), "%s holds no usable inputs", src.Name)
	}
	return out, nil
}

// deliver copies art out of the workspace as <jobID>-<name>.
func deliver(art job.Artifact, outDir, jobID string) (job.Artifact, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return job.Artifact{}, job.Wrap(job.ErrWorkspace, "deliver", err)
	}
	name := jobID + "-" + art.Name
	dst := filepath.Join(outDir, name)

	in, err := os.Open(art.Path)
	if err != nil {
		return job.Artifact{}, job.Wrap(job.ErrToolSilentFailure, "deliver", err)
	}
	defer in.Close()
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return job.Artifact{}, job.Wrap(job.ErrWorkspace, "deliver", err)
	}
	if _, err := io.Copy(f, in); err != nil {
		f.Close()
		os.Remove(dst)
		return job.Artifact{}, job.Wrap(job.ErrWorkspace, "deliver", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(dst)
		return job.Artifact{}, job.Wrap(job.ErrWorkspace, "deliver", err)
	}
	return job.Artifact{Path: dst, MediaType: art.MediaType, Name: name}, nil
}
