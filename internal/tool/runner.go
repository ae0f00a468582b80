package tool

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/ironsheep/doc-tools-mcp/internal/job"
)

// Tracker is the workspace side of an invocation: it supplies the working
// directory and is told when a child process is live.
type Tracker interface {
	Dir() string
	Track() (done func(), err error)
}

// Invocation describes one external command.
type Invocation struct {
	// Path is the executable, resolved or looked up on PATH.
	Path string
	Args []string
	// Dir is the working directory. Defaults to the workspace directory.
	Dir string
	// Timeout bounds the call in addition to any context deadline.
	Timeout time.Duration
	// Env entries are appended to the inherited environment.
	Env []string
}

// Result is the outcome of a completed invocation.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	// Produced lists regular files under Dir created or modified by the call.
	Produced []string
	Duration time.Duration
}

// Executor runs an Invocation inside a workspace. Runner is the production
// implementation; engine adapters accept any Executor.
type Executor interface {
	Run(ctx context.Context, ws Tracker, inv Invocation) (*Result, error)
}

// WaitGrace bounds how long Run waits for output pipes after the process
// itself has exited or been killed.
const WaitGrace = 2 * time.Second

// Runner executes Invocations.
type Runner struct {
	log      *slog.Logger
	tailSize int
}

// NewRunner returns a Runner logging to logger, or slog.Default when nil.
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{log: logger, tailSize: DefaultTailSize}
}

// Run executes inv inside ws. It returns ErrToolTimeout when the deadline
// passes, ErrCancelled when ctx is cancelled, ErrToolNotFound when the
// executable cannot be started and ErrToolFailed on a nonzero exit. The
// Result is returned alongside ErrToolFailed so callers can inspect tails.
func (r *Runner) Run(ctx context.Context, ws Tracker, inv Invocation) (*Result, error) {
	name := filepath.Base(inv.Path)
	dir := inv.Dir
	if dir == "" {
		dir = ws.Dir()
	}

	done, err := ws.Track()
	if err != nil {
		return nil, err
	}
	defer done()

	runCtx := ctx
	if inv.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, inv.Timeout)
		defer cancel()
	}
	if err := runCtx.Err(); err != nil {
		return nil, r.contextError(ctx, name, inv.Timeout, nil, err)
	}

	before := snapshot(dir)

	cmd := exec.Command(inv.Path, inv.Args...)
	cmd.Dir = dir
	if len(inv.Env) > 0 {
		cmd.Env = append(os.Environ(), inv.Env...)
	}
	cmd.SysProcAttr = procAttr()
	// Descendants that leave the group may keep the output pipes open.
	cmd.WaitDelay = WaitGrace

	stdout := newTailBuffer(r.tailSize)
	stderr := newTailBuffer(r.tailSize)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	r.log.Debug("tool start", "tool", name, "args", inv.Args, "dir", dir)
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
			return nil, &job.Error{Kind: job.ErrToolNotFound, Op: name, Err: err}
		}
		return nil, &job.Error{Kind: job.ErrToolFailed, Op: name, Msg: "start", Err: err}
	}

	waitDone := make(chan error, 1)
	go func() {
		waitDone <- cmd.Wait()
	}()

	var waitErr error
	select {
	case <-runCtx.Done():
		killGroup(cmd)
		if err := <-waitDone; errors.Is(err, exec.ErrWaitDelay) {
			r.log.Warn("tool descendants still hold output open", "tool", name, "grace", WaitGrace)
		}
		res := &Result{ExitCode: -1, Stdout: stdout.String(), Stderr: stderr.String(), Duration: time.Since(start)}
		r.log.Warn("tool terminated", "tool", name, "after", res.Duration.Round(time.Millisecond), "err", runCtx.Err())
		return res, r.contextError(ctx, name, inv.Timeout, res, runCtx.Err())
	case waitErr = <-waitDone:
	}

	res := &Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Produced: produced(dir, before),
		Duration: time.Since(start),
	}
	if errors.Is(waitErr, exec.ErrWaitDelay) {
		r.log.Warn("tool exited but descendants still hold output open", "tool", name, "grace", WaitGrace)
		waitErr = nil
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return res, &job.Error{Kind: job.ErrToolFailed, Op: name, Err: waitErr}
		}
		res.ExitCode = exitErr.ExitCode()
		r.log.Debug("tool exited nonzero", "tool", name, "exit", res.ExitCode, "duration", res.Duration, "stderr_truncated", stderr.Truncated())
		return res, &job.Error{Kind: job.ErrToolFailed, Op: name, ExitCode: res.ExitCode, Stderr: res.Stderr}
	}
	r.log.Debug("tool done", "tool", name, "duration", res.Duration, "produced", len(res.Produced))
	return res, nil
}

// contextError distinguishes a caller cancellation from a deadline.
func (r *Runner) contextError(parent context.Context, name string, timeout time.Duration, res *Result, err error) error {
	var stderr string
	if res != nil {
		stderr = res.Stderr
	}
	if errors.Is(parent.Err(), context.Canceled) {
		return &job.Error{Kind: job.ErrCancelled, Op: name, Err: err, Stderr: stderr}
	}
	msg := "deadline exceeded"
	if timeout > 0 && parent.Err() == nil {
		msg = fmt.Sprintf("exceeded %s", timeout)
	}
	return &job.Error{Kind: job.ErrToolTimeout, Op: name, Msg: msg, Stderr: stderr}
}

func killGroup(cmd *exec.Cmd) {
	if cmd.Process == nil {
		return
	}
	// Negative pid targets the process group.
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		_ = cmd.Process.Kill()
	}
}

type fileStamp struct {
	size    int64
	modTime time.Time
}

func snapshot(dir string) map[string]fileStamp {
	out := make(map[string]fileStamp)
	_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.Type().IsRegular() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			out[path] = fileStamp{size: info.Size(), modTime: info.ModTime()}
		}
		return nil
	})
	return out
}

func produced(dir string, before map[string]fileStamp) []string {
	var out []string
	for path, st := range snapshot(dir) {
		prev, ok := before[path]
		if !ok || prev != st {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out
}
