// Package workspace allocates isolated scratch directories for pipeline
// requests and guarantees their removal.
//
// A Workspace is acquired per job and released exactly once. Release waits for
// every tracked external invocation to terminate before deleting the tree. If
// deletion fails it is retried once; a second failure hands the directory to
// the Manager's sweep queue instead of failing the request.
package workspace

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ironsheep/doc-tools-mcp/internal/job"
)

// DefaultPrefix is prepended to every workspace directory name.
const DefaultPrefix = "ws-"

// Options configures a Manager.
type Options struct {
	// Root is the shared scratch root. Defaults to <tmp>/doc-tools-mcp.
	Root string
	// Prefix is prepended to workspace directory names.
	Prefix string
	Logger *slog.Logger
}

// Manager hands out Workspaces under a shared root.
type Manager struct {
	root   string
	prefix string
	log    *slog.Logger

	// remove deletes a tree; replaced in tests.
	remove func(string) error

	mu      sync.Mutex
	live    map[string]*Workspace
	pending map[string]time.Time
}

// NewManager creates the scratch root if needed.
func NewManager(opts Options) (*Manager, error) {
	root := opts.Root
	if root == "" {
		root = filepath.Join(os.TempDir(), "doc-tools-mcp")
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, job.Wrap(job.ErrWorkspace, "workspace", err)
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, job.Wrap(job.ErrWorkspace, "workspace", err)
	}
	prefix := opts.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		root:    root,
		prefix:  prefix,
		log:     logger,
		remove:  os.RemoveAll,
		live:    make(map[string]*Workspace),
		pending: make(map[string]time.Time),
	}, nil
}

// Root returns the absolute scratch root.
func (m *Manager) Root() string { return m.root }

// Acquire creates a fresh, uniquely named directory for jobID.
func (m *Manager) Acquire(ctx context.Context, jobID string) (*Workspace, error) {
	if err := ctx.Err(); err != nil {
		return nil, job.Wrap(job.KindOf(err), "workspace", err)
	}
	name := m.prefix + sanitize(jobID) + "-" + uuid.NewString()[:8]
	dir := filepath.Join(m.root, name)
	// Mkdir rather than MkdirAll: an existing directory is a collision.
	if err := os.Mkdir(dir, 0o700); err != nil {
		return nil, job.Wrap(job.ErrWorkspace, "workspace", err)
	}
	ws := &Workspace{m: m, jobID: jobID, dir: dir}

	m.mu.Lock()
	m.live[dir] = ws
	m.mu.Unlock()

	m.log.Debug("workspace acquired", "job", jobID, "workspace", dir)
	return ws, nil
}

// Release deletes ws. Calling it more than once is a no-op. A deletion that
// still fails after one retry is queued for Sweep and not reported.
func (m *Manager) Release(ws *Workspace) {
	ws.releaseOnce.Do(func() {
		ws.mu.Lock()
		ws.closed = true
		ws.mu.Unlock()
		ws.inflight.Wait()

		err := m.remove(ws.dir)
		if err != nil {
			m.log.Warn("workspace removal failed, retrying", "workspace", ws.dir, "err", err)
			ws.inflight.Wait()
			err = m.remove(ws.dir)
		}

		m.mu.Lock()
		delete(m.live, ws.dir)
		if err != nil {
			m.pending[ws.dir] = time.Now()
		}
		m.mu.Unlock()

		if err != nil {
			m.log.Error("workspace queued for sweep", "workspace", ws.dir, "err", err)
			return
		}
		m.log.Debug("workspace released", "job", ws.jobID, "workspace", ws.dir)
	})
}

// With runs fn inside a fresh workspace, releasing it on every exit path
// including panics.
func (m *Manager) With(ctx context.Context, jobID string, fn func(*Workspace) error) error {
	ws, err := m.Acquire(ctx, jobID)
	if err != nil {
		return err
	}
	defer m.Release(ws)
	return fn(ws)
}

// Live returns the number of workspaces acquired and not yet released.
func (m *Manager) Live() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.live)
}

// Pending returns the directories waiting for a sweep.
func (m *Manager) Pending() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.pending))
	for dir := range m.pending {
		out = append(out, dir)
	}
	return out
}

// Workspace is one request's scratch directory.
type Workspace struct {
	m     *Manager
	jobID string
	dir   string

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup

	releaseOnce sync.Once
}

// Dir returns the absolute workspace directory.
func (w *Workspace) Dir() string { return w.dir }

// JobID returns the job the workspace was acquired for.
func (w *Workspace) JobID() string { return w.jobID }

// Track registers an in-flight external invocation. The returned func must
// be called once the invocation has fully terminated. Track fails once the
// workspace is being released.
func (w *Workspace) Track() (done func(), err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, job.Errorf(job.ErrWorkspace, "workspace", "%s already released", w.dir)
	}
	w.inflight.Add(1)
	var once sync.Once
	return func() { once.Do(w.inflight.Done) }, nil
}

// Contains reports whether path lies inside the workspace.
func (w *Workspace) Contains(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(w.dir, abs)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// Path joins elem onto the workspace directory, rejecting results that
// escape it.
func (w *Workspace) Path(elem ...string) (string, error) {
	p := filepath.Join(append([]string{w.dir}, elem...)...)
	if !w.Contains(p) {
		return "", job.Errorf(job.ErrInvalidInput, "workspace", "path %q escapes workspace", filepath.Join(elem...))
	}
	return p, nil
}

// Mkdir creates a subdirectory (and parents) inside the workspace.
func (w *Workspace) Mkdir(elem ...string) (string, error) {
	p, err := w.Path(elem...)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(p, 0o700); err != nil {
		return "", job.Wrap(job.ErrWorkspace, "workspace", err)
	}
	return p, nil
}

// TempDir creates a uniquely named subdirectory under parent.
func (w *Workspace) TempDir(parent, pattern string) (string, error) {
	base, err := w.Mkdir(parent)
	if err != nil {
		return "", err
	}
	dir, err := os.MkdirTemp(base, pattern)
	if err != nil {
		return "", job.Wrap(job.ErrWorkspace, "workspace", err)
	}
	return dir, nil
}

// Import copies a caller-owned artifact into subdir of the workspace and
// returns the workspace-owned copy. The original file is left untouched.
func (w *Workspace) Import(a job.Artifact, subdir string) (job.Artifact, error) {
	dir, err := w.Mkdir(subdir)
	if err != nil {
		return job.Artifact{}, err
	}
	name := filepath.Base(a.Name)
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = filepath.Base(a.Path)
	}
	dst := filepath.Join(dir, name)
	if err := copyFile(a.Path, dst); err != nil {
		return job.Artifact{}, err
	}
	out := a
	out.Path = dst
	out.Name = name
	if out.MediaType == "" {
		out.MediaType = job.MediaTypeFor(name)
	}
	return out, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return job.Errorf(job.ErrInvalidInput, "import", "open %s: %v", filepath.Base(src), err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return job.Wrap(job.ErrWorkspace, "import", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return job.Wrap(job.ErrWorkspace, "import", err)
	}
	if err := out.Close(); err != nil {
		return job.Wrap(job.ErrWorkspace, "import", fmt.Errorf("close %s: %w", dst, err))
	}
	return nil
}

// sanitize keeps job IDs filesystem-safe.
func sanitize(id string) string {
	if id == "" {
		return "job"
	}
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
		if b.Len() >= 64 {
			break
		}
	}
	return b.String()
}
