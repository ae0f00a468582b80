package tool

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/doc-tools-mcp/internal/job"
	"github.com/ironsheep/doc-tools-mcp/internal/workspace"
)

func acquire(t *testing.T) (*workspace.Manager, *workspace.Workspace) {
	t.Helper()
	m, err := workspace.NewManager(workspace.Options{Root: t.TempDir()})
	require.NoError(t, err)
	ws, err := m.Acquire(context.Background(), "tool-test")
	require.NoError(t, err)
	t.Cleanup(func() { m.Release(ws) })
	return m, ws
}

func sh(script string) Invocation {
	return Invocation{Path: "/bin/sh", Args: []string{"-c", script}}
}

// processAlive treats zombies as dead; they have no running code.
func processAlive(pid int) bool {
	data, err := os.ReadFile(filepath.Join("/proc", strconv.Itoa(pid), "stat"))
	if err != nil {
		return false
	}
	fields := strings.Fields(string(data))
	return len(fields) > 2 && fields[2] != "Z"
}

func TestRunCapturesOutputAndProduced(t *testing.T) {
	_, ws := acquire(t)
	require.NoError(t, os.WriteFile(filepath.Join(ws.Dir(), "input.txt"), []byte("in"), 0o600))

	res, err := NewRunner(nil).Run(context.Background(), ws, sh(`echo hello; echo warn >&2; mkdir -p out; echo x > out/result.pdf`))
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hello\n", res.Stdout)
	assert.Equal(t, "warn\n", res.Stderr)
	assert.Equal(t, []string{filepath.Join(ws.Dir(), "out", "result.pdf")}, res.Produced)
}

func TestRunNonzeroExit(t *testing.T) {
	_, ws := acquire(t)

	res, err := NewRunner(nil).Run(context.Background(), ws, sh(`echo "profile locked" >&2; exit 81`))
	require.Error(t, err)
	assert.ErrorIs(t, err, job.ErrToolFailed)
	require.NotNil(t, res)
	assert.Equal(t, 81, res.ExitCode)

	var je *job.Error
	require.ErrorAs(t, err, &je)
	assert.Equal(t, 81, je.ExitCode)
	assert.Contains(t, je.Stderr, "profile locked")
	assert.Equal(t, "sh", je.Op)
}

func TestRunToolNotFound(t *testing.T) {
	_, ws := acquire(t)
	_, err := NewRunner(nil).Run(context.Background(), ws, Invocation{Path: "definitely-not-a-real-tool-xyz"})
	assert.ErrorIs(t, err, job.ErrToolNotFound)
}

func TestRunTimeoutKillsProcessGroup(t *testing.T) {
	_, ws := acquire(t)
	pidFile := filepath.Join(ws.Dir(), "child.pid")

	inv := sh(`sleep 30 & echo $! > child.pid; wait`)
	inv.Timeout = 300 * time.Millisecond

	start := time.Now()
	_, err := NewRunner(nil).Run(context.Background(), ws, inv)
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, job.ErrToolTimeout)
	assert.Less(t, elapsed, 5*time.Second, "timeout not enforced promptly")

	data, readErr := os.ReadFile(pidFile)
	require.NoError(t, readErr)
	pid, convErr := strconv.Atoi(strings.TrimSpace(string(data)))
	require.NoError(t, convErr)
	assert.Eventually(t, func() bool { return !processAlive(pid) }, 2*time.Second, 20*time.Millisecond,
		"child process %d survived", pid)
}

func TestRunTimeoutNotHeldByEscapedDescendant(t *testing.T) {
	if _, err := exec.LookPath("setsid"); err != nil {
		t.Skip("setsid not installed")
	}
	_, ws := acquire(t)
	inv := sh(`setsid sleep 4 & sleep 30`)
	inv.Timeout = 200 * time.Millisecond

	start := time.Now()
	_, err := NewRunner(nil).Run(context.Background(), ws, inv)
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, job.ErrToolTimeout)
	assert.Less(t, elapsed, inv.Timeout+WaitGrace+time.Second, "Run waited on a descendant outside the process group")
}

func TestRunExitNotHeldByEscapedDescendant(t *testing.T) {
	if _, err := exec.LookPath("setsid"); err != nil {
		t.Skip("setsid not installed")
	}
	_, ws := acquire(t)

	start := time.Now()
	res, err := NewRunner(nil).Run(context.Background(), ws, sh(`setsid sleep 6 & echo ok`))
	require.NoError(t, err)
	assert.Equal(t, "ok\n", res.Stdout)
	assert.Less(t, time.Since(start), WaitGrace+time.Second)
}

func TestRunContextDeadline(t *testing.T) {
	_, ws := acquire(t)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	_, err := NewRunner(nil).Run(ctx, ws, sh(`sleep 10`))
	assert.ErrorIs(t, err, job.ErrToolTimeout)
	assert.Equal(t, 504, job.Status(err))
}

func TestRunCancelled(t *testing.T) {
	_, ws := acquire(t)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	_, err := NewRunner(nil).Run(ctx, ws, sh(`sleep 10`))
	assert.ErrorIs(t, err, job.ErrCancelled)
}

func TestRunAfterReleaseRefused(t *testing.T) {
	m, err := workspace.NewManager(workspace.Options{Root: t.TempDir()})
	require.NoError(t, err)
	ws, err := m.Acquire(context.Background(), "released")
	require.NoError(t, err)
	m.Release(ws)

	_, err = NewRunner(nil).Run(context.Background(), ws, sh(`true`))
	assert.ErrorIs(t, err, job.ErrWorkspace)
}

func TestTailBufferKeepsSuffix(t *testing.T) {
	tb := newTailBuffer(8)
	_, _ = tb.Write([]byte("abcdef"))
	_, _ = tb.Write([]byte("ghijkl"))
	assert.Equal(t, "efghijkl", tb.String())
	assert.True(t, tb.Truncated())

	_, _ = tb.Write([]byte("0123456789"))
	assert.Equal(t, "23456789", tb.String())
}

func TestProbe(t *testing.T) {
	found, err := Probe("sh")
	require.NoError(t, err)
	assert.NotEmpty(t, found["sh"])

	_, err = Probe("sh", "no-such-tool-a", "no-such-tool-b")
	require.Error(t, err)
	assert.ErrorIs(t, err, job.ErrToolNotFound)
	assert.Contains(t, err.Error(), "no-such-tool-a, no-such-tool-b")
}
