package pipeline

import (
	"archive/zip"
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/doc-tools-mcp/internal/batch"
	"github.com/ironsheep/doc-tools-mcp/internal/convert"
	"github.com/ironsheep/doc-tools-mcp/internal/job"
	"github.com/ironsheep/doc-tools-mcp/internal/pdf"
	"github.com/ironsheep/doc-tools-mcp/internal/workspace"
)

type fixture struct {
	mgr    *workspace.Manager
	p      *Pipeline
	outDir string
}

func newFixture(t *testing.T, conv batch.Converter) *fixture {
	t.Helper()
	mgr, err := workspace.NewManager(workspace.Options{Root: t.TempDir()})
	require.NoError(t, err)
	if conv == nil {
		conv = convert.New(nil, nil, nil, convert.Config{}, nil)
	}
	return &fixture{
		mgr:    mgr,
		p:      New(mgr, conv, batch.New(conv, batch.Options{Workers: 2}), Options{}),
		outDir: filepath.Join(t.TempDir(), "out"),
	}
}

// assertNoLeaks fails if any workspace directory survived.
func (f *fixture) assertNoLeaks(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.mgr.Root())
	require.NoError(t, err)
	assert.Empty(t, entries, "workspace root should be empty")
	assert.Zero(t, f.mgr.Live())
	assert.Empty(t, f.mgr.Pending())
}

func writePDF(t *testing.T, dir, name string, pages int) string {
	t.Helper()
	f := fpdf.New("P", "pt", "A4", "")
	f.SetFont("Helvetica", "", 12)
	for i := 0; i < pages; i++ {
		f.AddPage()
		f.Text(50, 60, name)
	}
	path := filepath.Join(dir, name)
	require.NoError(t, f.OutputFileAndClose(path))
	return path
}

func writeZip(t *testing.T, dir string, files map[string]string, order ...string) string {
	t.Helper()
	path := filepath.Join(dir, "bundle.zip")
	fh, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(fh)
	for _, name := range order {
		data, err := os.ReadFile(files[name])
		require.NoError(t, err)
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, fh.Close())
	return path
}

func describe(t *testing.T, op job.Operation, opts map[string]string, paths ...string) *job.Descriptor {
	t.Helper()
	var inputs []job.Artifact
	for _, p := range paths {
		inputs = append(inputs, job.NewArtifact(p, ""))
	}
	d, err := job.NewDescriptor(job.Spec{Operation: op, Inputs: inputs, Options: opts})
	require.NoError(t, err)
	return d
}

func TestRunDeliversRenamedOutput(t *testing.T) {
	f := newFixture(t, nil)
	dir := t.TempDir()
	a := writePDF(t, dir, "a.pdf", 1)
	b := writePDF(t, dir, "b.pdf", 2)
	d := describe(t, job.OpMerge, nil, a, b)

	out := f.p.Run(context.Background(), d, f.outDir)
	require.True(t, out.OK(), out.Error)
	require.Len(t, out.Artifacts, 1)
	assert.Equal(t, d.ID()+"-merged.pdf", out.Artifacts[0].Name)
	assert.Equal(t, filepath.Join(f.outDir, d.ID()+"-merged.pdf"), out.Artifacts[0].Path)
	n, err := pdf.PageCount(out.Artifacts[0].Path)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.FileExists(t, a, "inputs are never deleted")
	f.assertNoLeaks(t)
	assert.EqualValues(t, 1, f.p.Stats().CompletedJobs)
}

func TestRunInvalidInputIs400(t *testing.T) {
	f := newFixture(t, nil)
	bad := filepath.Join(t.TempDir(), "bad.pdf")
	require.NoError(t, os.WriteFile(bad, []byte("%PDF-1.4 broken"), 0o600))

	out := f.p.Run(context.Background(), describe(t, job.OpSplit, nil, bad), f.outDir)
	assert.Equal(t, http.StatusBadRequest, out.Status)
	assert.Equal(t, "invalid_input", out.ErrorKind)
	assert.Empty(t, out.Artifacts)
	f.assertNoLeaks(t)
	assert.EqualValues(t, 1, f.p.Stats().FailedJobs)
}

func TestRunMissingInputIs400(t *testing.T) {
	f := newFixture(t, nil)
	out := f.p.Run(context.Background(), describe(t, job.OpSplit, nil, "/nonexistent/x.pdf"), f.outDir)
	assert.Equal(t, http.StatusBadRequest, out.Status)
	f.assertNoLeaks(t)
}

// blockingConverter waits for its context to end.
type blockingConverter struct{ started chan struct{} }

func (b blockingConverter) Convert(ctx context.Context, ws convert.Scope, _ *job.Descriptor) (job.Artifact, error) {
	if _, err := ws.Mkdir("scratch"); err != nil {
		return job.Artifact{}, err
	}
	close(b.started)
	<-ctx.Done()
	return job.Artifact{}, &job.Error{Kind: job.KindOf(ctx.Err()), Op: "block", Err: ctx.Err()}
}

func TestRunDeadlineIs504(t *testing.T) {
	f := newFixture(t, blockingConverter{started: make(chan struct{})})
	src := writePDF(t, t.TempDir(), "a.pdf", 1)
	d, err := job.NewDescriptor(job.Spec{
		Operation: job.OpSplit,
		Inputs:    []job.Artifact{job.NewArtifact(src, "")},
		Deadline:  time.Now().Add(50 * time.Millisecond),
	})
	require.NoError(t, err)

	start := time.Now()
	out := f.p.Run(context.Background(), d, f.outDir)
	assert.Equal(t, http.StatusGatewayTimeout, out.Status)
	assert.Equal(t, "tool_timeout", out.ErrorKind)
	assert.Less(t, time.Since(start), 5*time.Second)
	f.assertNoLeaks(t)
}

func TestRunCancelledLeavesNoWorkspace(t *testing.T) {
	bc := blockingConverter{started: make(chan struct{})}
	f := newFixture(t, bc)
	src := writePDF(t, t.TempDir(), "a.pdf", 1)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-bc.started
		cancel()
	}()

	out := f.p.Run(ctx, describe(t, job.OpSplit, nil, src), f.outDir)
	assert.Equal(t, "cancelled", out.ErrorKind)
	assert.Equal(t, 499, out.Status)
	f.assertNoLeaks(t)
}

func TestRunZipIsBatch(t *testing.T) {
	f := newFixture(t, nil)
	dir := t.TempDir()
	files := map[string]string{
		"one.pdf":   writePDF(t, dir, "one.pdf", 2),
		"two.pdf":   writePDF(t, dir, "two.pdf", 1),
		"notes.txt": filepath.Join(dir, "notes.txt"),
	}
	require.NoError(t, os.WriteFile(files["notes.txt"], []byte("hi"), 0o600))
	bundle := writeZip(t, dir, files, "one.pdf", "notes.txt", "two.pdf")

	out := f.p.Run(context.Background(), describe(t, job.OpSplit, nil, bundle), f.outDir)
	require.True(t, out.OK(), out.Error)
	require.NotNil(t, out.Batch)
	assert.Len(t, out.Batch.Items, 3)
	assert.Equal(t, job.ItemSkipped, out.Batch.Items[1].Status)
	assert.True(t, strings.HasSuffix(out.Artifacts[0].Name, "-bundle_results.zip"))
	f.assertNoLeaks(t)
}

func TestRunZipAllFailedIs500(t *testing.T) {
	f := newFixture(t, nil)
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.pdf")
	require.NoError(t, os.WriteFile(bad, []byte("%PDF-garbage"), 0o600))
	bundle := writeZip(t, dir, map[string]string{"bad.pdf": bad}, "bad.pdf")

	out := f.p.Run(context.Background(), describe(t, job.OpSplit, nil, bundle), f.outDir)
	assert.Equal(t, http.StatusInternalServerError, out.Status)
	require.NotNil(t, out.Batch)
	assert.Equal(t, job.AllFailed, out.Batch.Status)
	assert.Len(t, out.Artifacts, 1, "the manifest archive is still delivered")
	f.assertNoLeaks(t)
}

func TestRunZipMergeUsesMembers(t *testing.T) {
	f := newFixture(t, nil)
	dir := t.TempDir()
	files := map[string]string{
		"a.pdf": writePDF(t, dir, "a.pdf", 1),
		"b.pdf": writePDF(t, dir, "b.pdf", 3),
	}
	bundle := writeZip(t, dir, files, "a.pdf", "b.pdf")

	out := f.p.Run(context.Background(), describe(t, job.OpMerge, nil, bundle), f.outDir)
	require.True(t, out.OK(), out.Error)
	assert.Nil(t, out.Batch)
	n, err := pdf.PageCount(out.Artifacts[0].Path)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	f.assertNoLeaks(t)
}

// idRecorder copies its input and records the job ID of each descriptor.
type idRecorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *idRecorder) Convert(ctx context.Context, ws convert.Scope, desc *job.Descriptor) (job.Artifact, error) {
	r.mu.Lock()
	r.ids = append(r.ids, desc.ID())
	r.mu.Unlock()
	dir, err := ws.TempDir("out", "rec-")
	if err != nil {
		return job.Artifact{}, err
	}
	out := filepath.Join(dir, desc.Input(0).Name)
	if err := os.WriteFile(out, []byte("copy"), 0o600); err != nil {
		return job.Artifact{}, err
	}
	return job.NewArtifact(out, ""), nil
}

func TestRunKeepsJobIDThroughConversion(t *testing.T) {
	rec := &idRecorder{}
	f := newFixture(t, rec)
	dir := t.TempDir()
	single := describe(t, job.OpSplit, nil, writePDF(t, dir, "one.pdf", 1))
	files := map[string]string{
		"a.pdf": writePDF(t, dir, "a.pdf", 1),
		"b.pdf": writePDF(t, dir, "b.pdf", 1),
	}
	bundle := describe(t, job.OpSplit, nil, writeZip(t, dir, files, "a.pdf", "b.pdf"))

	require.True(t, f.p.Run(context.Background(), single, f.outDir).OK())
	require.True(t, f.p.Run(context.Background(), bundle, f.outDir).OK())

	assert.Equal(t, []string{single.ID(), bundle.ID(), bundle.ID()}, rec.ids)
	f.assertNoLeaks(t)
}
