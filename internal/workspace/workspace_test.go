package workspace

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/doc-tools-mcp/internal/job"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(Options{Root: t.TempDir()})
	require.NoError(t, err)
	return m
}

func listRoot(t *testing.T, m *Manager) []string {
	t.Helper()
	entries, err := os.ReadDir(m.Root())
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestAcquireReleaseRemovesTree(t *testing.T) {
	m := newTestManager(t)

	ws, err := m.Acquire(context.Background(), "job-1")
	require.NoError(t, err)
	assert.DirExists(t, ws.Dir())
	assert.Equal(t, 1, m.Live())

	sub, err := ws.Mkdir("pages", "0001")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(sub, "p.png"), []byte("x"), 0o600))

	m.Release(ws)
	m.Release(ws)
	assert.NoDirExists(t, ws.Dir())
	assert.Zero(t, m.Live())
	assert.Empty(t, listRoot(t, m))
}

func TestConcurrentWorkspacesAreDistinct(t *testing.T) {
	m := newTestManager(t)

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := m.With(context.Background(), "same-job", func(ws *Workspace) error {
				mu.Lock()
				defer mu.Unlock()
				assert.False(t, seen[ws.Dir()], "directory reused: %s", ws.Dir())
				seen[ws.Dir()] = true
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 32)
	assert.Empty(t, listRoot(t, m))
}

func TestWithReleasesOnErrorAndPanic(t *testing.T) {
	m := newTestManager(t)
	boom := errors.New("boom")

	var dir string
	err := m.With(context.Background(), "err", func(ws *Workspace) error {
		dir = ws.Dir()
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.NoDirExists(t, dir)

	func() {
		defer func() { assert.NotNil(t, recover()) }()
		_ = m.With(context.Background(), "panic", func(ws *Workspace) error {
			dir = ws.Dir()
			panic("tool crashed")
		})
	}()
	assert.NoDirExists(t, dir)
	assert.Empty(t, listRoot(t, m))
}

func TestAcquireCancelledContext(t *testing.T) {
	m := newTestManager(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.Acquire(ctx, "late")
	assert.ErrorIs(t, err, job.ErrCancelled)
	assert.Empty(t, listRoot(t, m))
}

func TestReleaseWaitsForTrackedInvocations(t *testing.T) {
	m := newTestManager(t)
	ws, err := m.Acquire(context.Background(), "tracked")
	require.NoError(t, err)

	done, err := ws.Track()
	require.NoError(t, err)

	var finished atomic.Bool
	go func() {
		time.Sleep(50 * time.Millisecond)
		finished.Store(true)
		done()
	}()

	m.Release(ws)
	assert.True(t, finished.Load(), "release returned before invocation terminated")
	assert.NoDirExists(t, ws.Dir())

	_, err = ws.Track()
	assert.ErrorIs(t, err, job.ErrWorkspace)
}

func TestReleaseRetriesOnceThenQueues(t *testing.T) {
	m := newTestManager(t)

	var calls atomic.Int32
	m.remove = func(string) error {
		calls.Add(1)
		return errors.New("device busy")
	}

	ws, err := m.Acquire(context.Background(), "stuck")
	require.NoError(t, err)
	m.Release(ws)

	assert.EqualValues(t, 2, calls.Load())
	assert.Equal(t, []string{ws.Dir()}, m.Pending())
	assert.Zero(t, m.Live())

	m.remove = os.RemoveAll
	n, err := m.Sweep(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, m.Pending())
	assert.NoDirExists(t, ws.Dir())
}

func TestReleaseSucceedsOnRetry(t *testing.T) {
	m := newTestManager(t)

	var calls atomic.Int32
	m.remove = func(p string) error {
		if calls.Add(1) == 1 {
			return errors.New("text file busy")
		}
		return os.RemoveAll(p)
	}

	ws, err := m.Acquire(context.Background(), "flaky")
	require.NoError(t, err)
	m.Release(ws)

	assert.EqualValues(t, 2, calls.Load())
	assert.Empty(t, m.Pending())
	assert.NoDirExists(t, ws.Dir())
}

func TestSweepRemovesOnlyOldOrphans(t *testing.T) {
	m := newTestManager(t)

	old := filepath.Join(m.Root(), DefaultPrefix+"orphan-old")
	fresh := filepath.Join(m.Root(), DefaultPrefix+"orphan-fresh")
	foreign := filepath.Join(m.Root(), "not-ours")
	for _, d := range []string{old, fresh, foreign} {
		require.NoError(t, os.Mkdir(d, 0o700))
	}
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(old, past, past))
	require.NoError(t, os.Chtimes(foreign, past, past))

	live, err := m.Acquire(context.Background(), "live")
	require.NoError(t, err)
	require.NoError(t, os.Chtimes(live.Dir(), past, past))

	n, err := m.Sweep(time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoDirExists(t, old)
	assert.DirExists(t, fresh)
	assert.DirExists(t, foreign)
	assert.DirExists(t, live.Dir())

	m.Release(live)
}

func TestPathRejectsEscape(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.With(context.Background(), "paths", func(ws *Workspace) error {
		p, err := ws.Path("members", "0", "a.pdf")
		require.NoError(t, err)
		assert.True(t, ws.Contains(p))

		_, err = ws.Path("..", "elsewhere")
		assert.ErrorIs(t, err, job.ErrInvalidInput)
		assert.False(t, ws.Contains(filepath.Dir(ws.Dir())))
		return nil
	}))
}

func TestImportCopiesWithoutTouchingSource(t *testing.T) {
	m := newTestManager(t)
	src := filepath.Join(t.TempDir(), "report.pdf")
	require.NoError(t, os.WriteFile(src, []byte("%PDF-1.4"), 0o600))

	require.NoError(t, m.With(context.Background(), "import", func(ws *Workspace) error {
		a, err := ws.Import(job.NewArtifact(src, "Quarterly Report.pdf"), "inputs/0")
		require.NoError(t, err)
		assert.True(t, ws.Contains(a.Path))
		assert.Equal(t, "Quarterly Report.pdf", a.Name)
		assert.Equal(t, job.MediaPDF, a.MediaType)

		_, err = ws.Import(job.NewArtifact(filepath.Join(t.TempDir(), "missing.pdf"), ""), "inputs/1")
		assert.ErrorIs(t, err, job.ErrInvalidInput)
		return nil
	}))
	assert.FileExists(t, src)
}

func TestDrainRetriesQueued(t *testing.T) {
	m := newTestManager(t)
	m.remove = func(string) error { return errors.New("busy") }
	ws, err := m.Acquire(context.Background(), "drain")
	require.NoError(t, err)
	m.Release(ws)
	require.Len(t, m.Pending(), 1)

	m.remove = os.RemoveAll
	m.Drain()
	assert.Empty(t, m.Pending())
	assert.NoDirExists(t, ws.Dir())
}
