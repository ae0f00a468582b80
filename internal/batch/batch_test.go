package batch

import (
	"archive/zip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/doc-tools-mcp/internal/convert"
	"github.com/ironsheep/doc-tools-mcp/internal/job"
	"github.com/ironsheep/doc-tools-mcp/internal/workspace"
)

func newWorkspace(t *testing.T) (*workspace.Manager, *workspace.Workspace) {
	t.Helper()
	m, err := workspace.NewManager(workspace.Options{Root: t.TempDir()})
	require.NoError(t, err)
	ws, err := m.Acquire(context.Background(), "batch")
	require.NoError(t, err)
	t.Cleanup(func() { m.Release(ws) })
	return m, ws
}

func pdfBytes(t *testing.T, text string) []byte {
	t.Helper()
	f := fpdf.New("P", "pt", "A4", "")
	f.SetFont("Helvetica", "", 12)
	f.AddPage()
	f.Text(50, 60, text)
	path := filepath.Join(t.TempDir(), "p.pdf")
	require.NoError(t, f.OutputFileAndClose(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

type member struct {
	name string
	data []byte
}

func writeZip(t *testing.T, members ...member) job.Artifact {
	t.Helper()
	path := filepath.Join(t.TempDir(), "inputs.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for _, m := range members {
		w, err := zw.Create(m.name)
		require.NoError(t, err)
		_, err = w.Write(m.data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return job.NewArtifact(path, "")
}

func template(t *testing.T, op job.Operation, opts map[string]string) *job.Descriptor {
	t.Helper()
	d, err := job.NewDescriptor(job.Spec{Operation: op, Inputs: []job.Artifact{{Path: "inputs.zip", Name: "inputs.zip"}}, Options: opts})
	require.NoError(t, err)
	return d
}

func readZip(t *testing.T, path string) map[string][]byte {
	t.Helper()
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()
	out := map[string][]byte{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		out[f.Name] = data
	}
	return out
}

func TestBatchIsolatesCorruptMember(t *testing.T) {
	var members []member
	for i := 1; i <= 5; i++ {
		data := pdfBytes(t, fmt.Sprintf("document %d", i))
		if i == 3 {
			data = []byte("%PDF-1.7\nthis is not really a pdf")
		}
		members = append(members, member{fmt.Sprintf("doc%d.pdf", i), data})
	}
	src := writeZip(t, members...)
	_, ws := newWorkspace(t)
	o := New(convert.New(nil, nil, nil, convert.Config{}, nil), Options{Workers: 3})

	res, out, err := o.Run(context.Background(), ws, src, template(t, job.OpSplit, nil))
	require.NoError(t, err)
	require.Len(t, res.Items, 5)
	assert.Equal(t, job.PartialFailure, res.Status)
	assert.Equal(t, 4, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	for i, it := range res.Items {
		assert.Equal(t, i, it.Index)
		assert.Equal(t, fmt.Sprintf("doc%d.pdf", i+1), it.Source)
	}
	assert.Equal(t, job.ItemFailed, res.Items[2].Status)
	assert.Equal(t, "invalid_input", res.Items[2].ErrorKind)

	entries := readZip(t, out.Path)
	assert.Len(t, entries, 5)
	for _, name := range []string{"doc1.zip", "doc2.zip", "doc4.zip", "doc5.zip", ManifestName} {
		assert.Contains(t, entries, name)
	}
	var manifest struct {
		Source string `json:"source"`
		Status string `json:"status"`
		Items  []struct {
			Status string `json:"status"`
			Output string `json:"output"`
		} `json:"items"`
	}
	require.NoError(t, json.Unmarshal(entries[ManifestName], &manifest))
	assert.Equal(t, "inputs.zip", manifest.Source)
	assert.Equal(t, "partial_failure", manifest.Status)
	require.Len(t, manifest.Items, 5)
	assert.Equal(t, "doc1.zip", manifest.Items[0].Output)
	assert.Equal(t, "failed", manifest.Items[2].Status)
}

func TestBatchDamagedArchiveMemberFailsAlone(t *testing.T) {
	var members []member
	for i := 1; i <= 5; i++ {
		members = append(members, member{fmt.Sprintf("doc%d.pdf", i), pdfBytes(t, fmt.Sprintf("document %d", i))})
	}
	src := writeZip(t, members...)

	zr, err := zip.OpenReader(src.Path)
	require.NoError(t, err)
	off, err := zr.File[2].DataOffset()
	require.NoError(t, err)
	size := int64(zr.File[2].CompressedSize64)
	require.NoError(t, zr.Close())
	data, err := os.ReadFile(src.Path)
	require.NoError(t, err)
	for i := off + size/4; i < off+size*3/4; i++ {
		data[i] ^= 0x5a
	}
	require.NoError(t, os.WriteFile(src.Path, data, 0o600))

	_, ws := newWorkspace(t)
	conv := &fakeConverter{}
	res, out, err := New(conv, Options{Workers: 2}).Run(context.Background(), ws, src, template(t, job.OpSplit, nil))
	require.NoError(t, err)
	require.Len(t, res.Items, 5)
	assert.Equal(t, job.PartialFailure, res.Status)
	assert.Equal(t, 4, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, job.ItemFailed, res.Items[2].Status)
	assert.Equal(t, "invalid_input", res.Items[2].ErrorKind)
	assert.Contains(t, res.Items[2].Error, "doc3.pdf")

	entries := readZip(t, out.Path)
	assert.Contains(t, entries, ManifestName)
	assert.Len(t, entries, 5)
}

func TestBatchScrubMetadata(t *testing.T) {
	var members []member
	for _, name := range []string{"a.pdf", "b.pdf"} {
		f := fpdf.New("P", "pt", "A4", "")
		f.SetAuthor("Jane Roe", true)
		f.SetFont("Helvetica", "", 12)
		f.AddPage()
		f.Text(50, 60, name)
		path := filepath.Join(t.TempDir(), name)
		require.NoError(t, f.OutputFileAndClose(path))
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		members = append(members, member{name, data})
	}
	src := writeZip(t, members...)
	_, ws := newWorkspace(t)
	o := New(convert.New(nil, nil, nil, convert.Config{}, nil), Options{Workers: 2})

	res, out, err := o.Run(context.Background(), ws, src, template(t, job.OpScrubMetadata, nil))
	require.NoError(t, err)
	assert.Equal(t, job.AllSucceeded, res.Status)
	assert.Equal(t, 2, res.Succeeded)
	entries := readZip(t, out.Path)
	assert.Contains(t, entries, "a.pdf")
	assert.Contains(t, entries, "b.pdf")
}

// fakeConverter writes <stem>.out for every member, failing members whose
// name is in fail and sleeping by index to scramble completion order.
type fakeConverter struct {
	fail    map[string]bool
	block   bool
	active  atomic.Int32
	maxSeen atomic.Int32
}

func (f *fakeConverter) Convert(ctx context.Context, ws convert.Scope, desc *job.Descriptor) (job.Artifact, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxSeen.Load()
		if n <= m || f.maxSeen.CompareAndSwap(m, n) {
			break
		}
	}
	in := desc.Input(0)
	if f.block {
		<-ctx.Done()
		return job.Artifact{}, &job.Error{Kind: job.KindOf(ctx.Err()), Op: "fake", Err: ctx.Err()}
	}
	time.Sleep(time.Duration(len(in.Name)%3) * 5 * time.Millisecond)
	if f.fail[in.Name] {
		return job.Artifact{}, job.Errorf(job.ErrToolFailed, "fake", "boom")
	}
	dir, err := ws.TempDir("out", "fake-")
	if err != nil {
		return job.Artifact{}, err
	}
	out := filepath.Join(dir, job.Stem(in.Name)+".pdf")
	if err := os.WriteFile(out, []byte("converted "+in.Name), 0o600); err != nil {
		return job.Artifact{}, err
	}
	return job.NewArtifact(out, ""), nil
}

func TestBatchSkipsUnsafeAndUnsupported(t *testing.T) {
	src := writeZip(t,
		member{"good.docx", []byte("x")},
		member{"../escape.docx", []byte("x")},
		member{"image.png", []byte("x")},
		member{"sub/", nil},
		member{"a/report.docx", []byte("x")},
		member{"b/report.docx", []byte("x")},
	)
	_, ws := newWorkspace(t)
	fc := &fakeConverter{}
	o := New(fc, Options{Workers: 4, OfficeSlots: 1})

	res, out, err := o.Run(context.Background(), ws, src, template(t, job.OpOfficeToPdf, nil))
	require.NoError(t, err)
	require.Len(t, res.Items, 5, "directory entries are not members")
	assert.Equal(t, job.ItemSkipped, res.Items[1].Status)
	assert.Equal(t, job.ItemSkipped, res.Items[2].Status)
	assert.Equal(t, 3, res.Succeeded)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, job.PartialFailure, res.Status)
	assert.Equal(t, "report.pdf", res.Items[3].Output)
	assert.Equal(t, "report-1.pdf", res.Items[4].Output)
	assert.EqualValues(t, 1, fc.maxSeen.Load(), "office operations are bounded by the office slots")

	entries := readZip(t, out.Path)
	assert.Equal(t, "converted report.docx", string(entries["report.pdf"]))
	assert.Len(t, entries, 4)
	_, err = os.Stat(filepath.Join(filepath.Dir(ws.Dir()), "escape.docx"))
	assert.True(t, os.IsNotExist(err))
}

func TestBatchPreservesOrderUnderParallelism(t *testing.T) {
	var members []member
	for i := 0; i < 12; i++ {
		members = append(members, member{fmt.Sprintf("%s%d.txt", "n"+string(rune('a'+i%3)), i), []byte("text")})
	}
	_, ws := newWorkspace(t)
	fc := &fakeConverter{fail: map[string]bool{"nb1.txt": true}}
	o := New(fc, Options{Workers: 6})

	res, _, err := o.Run(context.Background(), ws, writeZip(t, members...), template(t, job.OpTextToPdf, nil))
	require.NoError(t, err)
	require.Len(t, res.Items, 12)
	for i, it := range res.Items {
		assert.Equal(t, members[i].name, it.Source)
	}
	assert.Equal(t, job.ItemFailed, res.Items[1].Status)
	assert.Equal(t, "tool_failed", res.Items[1].ErrorKind)
	assert.Greater(t, fc.maxSeen.Load(), int32(1))
}

func TestBatchAllFailed(t *testing.T) {
	_, ws := newWorkspace(t)
	fc := &fakeConverter{fail: map[string]bool{"a.txt": true, "b.txt": true}}
	res, out, err := New(fc, Options{}).Run(context.Background(), ws,
		writeZip(t, member{"a.txt", []byte("a")}, member{"b.txt", []byte("b")}), template(t, job.OpTextToPdf, nil))
	require.NoError(t, err)
	assert.Equal(t, job.AllFailed, res.Status)
	entries := readZip(t, out.Path)
	assert.Len(t, entries, 1)
	assert.Contains(t, entries, ManifestName)
}

func TestBatchCancelledDiscardsResults(t *testing.T) {
	_, ws := newWorkspace(t)
	fc := &fakeConverter{block: true}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	res, out, err := New(fc, Options{Workers: 2}).Run(ctx, ws,
		writeZip(t, member{"a.txt", []byte("a")}, member{"b.txt", []byte("b")}, member{"c.txt", []byte("c")}),
		template(t, job.OpTextToPdf, nil))
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Empty(t, out.Path)
	assert.True(t, job.IsKind(err, job.ErrToolTimeout), "%v", err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestBatchRejectsNonArchive(t *testing.T) {
	_, ws := newWorkspace(t)
	path := filepath.Join(t.TempDir(), "x.zip")
	require.NoError(t, os.WriteFile(path, []byte("nope"), 0o600))
	_, _, err := New(&fakeConverter{}, Options{}).Run(context.Background(), ws, job.NewArtifact(path, ""), template(t, job.OpSplit, nil))
	assert.True(t, job.IsKind(err, job.ErrInvalidInput))
}
