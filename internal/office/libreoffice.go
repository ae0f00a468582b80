// Package office converts documents with LibreOffice in headless mode.
//
// LibreOffice allows one live instance per user profile, so every conversion
// holds a tool.Pool slot whose profile directory is passed through
// -env:UserInstallation. Conversions that fail, time out or exit cleanly
// without output are retried once on a freshly created profile.
package office

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ironsheep/doc-tools-mcp/internal/job"
	"github.com/ironsheep/doc-tools-mcp/internal/tool"
)

// Config locates soffice and bounds each conversion.
type Config struct {
	Soffice string
	Timeout time.Duration
	// Retries is the number of extra attempts on a fresh profile. Negative
	// disables retries; zero means one retry.
	Retries int
}

// LibreOffice is the office-conversion adapter.
type LibreOffice struct {
	exec tool.Executor
	pool *tool.Pool
	cfg  Config
	log  *slog.Logger
}

// New returns an adapter that serialises conversions through pool.
func New(exec tool.Executor, pool *tool.Pool, cfg Config, logger *slog.Logger) *LibreOffice {
	if cfg.Soffice == "" {
		cfg.Soffice = "soffice"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 300 * time.Second
	}
	switch {
	case cfg.Retries == 0:
		cfg.Retries = 1
	case cfg.Retries < 0:
		cfg.Retries = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LibreOffice{exec: exec, pool: pool, cfg: cfg, log: logger}
}

// Request is one conversion.
type Request struct {
	// Source is the input file inside the workspace.
	Source string
	// Format is the target token, e.g. "pdf" or "docx".
	Format string
	// Filter optionally names the export filter ("MS Word 2007 XML").
	Filter string
	// InFilter optionally forces an import filter ("writer_pdf_import").
	InFilter string
	// OutDir is the parent for per-attempt output directories.
	OutDir string
}

// Convert runs soffice --convert-to and returns the produced file.
func (l *LibreOffice) Convert(ctx context.Context, ws tool.Tracker, req Request) (string, error) {
	format := strings.ToLower(strings.TrimPrefix(req.Format, "."))
	if format == "" {
		return "", job.Errorf(job.ErrInvalidInput, "soffice", "no target format")
	}

	var lastErr error
	for attempt := 0; attempt <= l.cfg.Retries; attempt++ {
		out, err := l.attempt(ctx, ws, req, format, attempt)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !retryable(ctx, err) {
			break
		}
		if attempt < l.cfg.Retries {
			l.log.Warn("office conversion failed, retrying with fresh profile",
				"tool", "soffice", "source", filepath.Base(req.Source), "attempt", attempt+1, "err", err)
		}
	}
	return "", lastErr
}

func (l *LibreOffice) attempt(ctx context.Context, ws tool.Tracker, req Request, format string, attempt int) (string, error) {
	outDir := filepath.Join(req.OutDir, fmt.Sprintf("office-%d", attempt))
	if err := os.MkdirAll(outDir, 0o700); err != nil {
		return "", job.Wrap(job.ErrWorkspace, "soffice", err)
	}

	slot, err := l.pool.Acquire(ctx)
	if err != nil {
		return "", err
	}
	fresh := false
	defer func() {
		if !fresh {
			l.pool.Release(slot)
		}
	}()

	target := format
	if req.Filter != "" {
		target += ":" + req.Filter
	}
	args := []string{
		"-env:UserInstallation=" + slot.ProfileURL(),
		"--headless", "--invisible", "--norestore", "--nolockcheck", "--nodefault",
	}
	if req.InFilter != "" {
		args = append(args, "--infilter="+req.InFilter)
	}
	args = append(args, "--convert-to", target, "--outdir", outDir, req.Source)

	res, err := l.exec.Run(ctx, ws, tool.Invocation{
		Path:    l.cfg.Soffice,
		Args:    args,
		Timeout: l.cfg.Timeout,
		Env:     []string{"HOME=" + slot.ProfileDir()},
	})
	if err == nil {
		var out string
		out, err = locateOutput(outDir, req.Source, format, res)
		if err == nil {
			return out, nil
		}
	}

	if retryable(ctx, err) {
		if rerr := l.pool.Refresh(slot); rerr != nil {
			l.log.Warn("profile refresh failed", "slot", slot.ID(), "err", rerr)
		}
		l.pool.Release(slot)
		fresh = true
	}
	return "", err
}

// locateOutput finds the converted file: <stem>.<ext> first, then any single
// produced file with the target extension.
func locateOutput(outDir, source, format string, res *tool.Result) (string, error) {
	want := filepath.Join(outDir, job.Stem(source)+"."+format)
	if fi, err := os.Stat(want); err == nil && fi.Size() > 0 {
		return want, nil
	}
	var candidates []string
	for _, p := range res.Produced {
		if filepath.Dir(p) == outDir && strings.EqualFold(filepath.Ext(p), "."+format) {
			candidates = append(candidates, p)
		}
	}
	if len(candidates) == 1 {
		return candidates[0], nil
	}
	diag := strings.TrimSpace(res.Stderr + "\n" + res.Stdout)
	if strings.Contains(diag, "source file could not be loaded") {
		return "", &job.Error{Kind: job.ErrInvalidInput, Op: "soffice", Msg: "source file could not be loaded", Stderr: diag}
	}
	return "", &job.Error{Kind: job.ErrToolSilentFailure, Op: "soffice", Msg: fmt.Sprintf("no %s output for %s", format, filepath.Base(source)), Stderr: diag}
}

// retryable reports whether a fresh profile might help. Caller cancellation
// and bad input never are.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	return errors.Is(err, job.ErrToolFailed) || errors.Is(err, job.ErrToolSilentFailure) || errors.Is(err, job.ErrToolTimeout)
}
