package convert

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-pdf/fpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/doc-tools-mcp/internal/job"
	"github.com/ironsheep/doc-tools-mcp/internal/pdf"
)

func TestScrubMetadata(t *testing.T) {
	dir := t.TempDir()
	f := fpdf.New("P", "pt", "Letter", "")
	f.SetAuthor("Jane Roe", true)
	f.SetTitle("Board minutes", true)
	f.SetFont("Helvetica", "", 14)
	f.AddPage()
	f.Text(72, 100, "minutes")
	in := filepath.Join(dir, "minutes.pdf")
	require.NoError(t, f.OutputFileAndClose(in))

	e := New(nil, nil, nil, Config{}, nil)
	out, err := e.Convert(context.Background(), newWorkspace(t), descriptor(t, job.OpScrubMetadata, nil, in))
	require.NoError(t, err)
	assert.Equal(t, "minutes_scrubbed.pdf", out.Name)
	info, err := pdf.Info(out.Path)
	require.NoError(t, err)
	assert.Empty(t, info.Author)
	assert.Empty(t, info.Title)
}

const formJSON = `{
	"paper": "A4P",
	"origin": "LowerLeft",
	"fonts": {"input": {"name": "Helvetica", "size": 12}},
	"pages": {"1": {"content": {"textfield": [
		{"id": "applicant", "value": "", "pos": [100, 700], "width": 200},
		{"id": "reference", "value": "", "pos": [100, 660], "width": 200}
	]}}}
}`

func writeFormPDF(t *testing.T, dir string) string {
	t.Helper()
	api.DisableConfigDir()
	path := filepath.Join(dir, "application.pdf")
	w, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, api.Create(nil, strings.NewReader(formJSON), w, nil))
	require.NoError(t, w.Close())
	return path
}

func TestFillForm(t *testing.T) {
	in := writeFormPDF(t, t.TempDir())
	e := New(nil, nil, nil, Config{}, nil)
	ws := newWorkspace(t)

	out, err := e.Convert(context.Background(), ws, descriptor(t, job.OpFillForm,
		map[string]string{"fields": `{"applicant": "Ada Lovelace"}`, "flatten": "false"}, in))
	require.NoError(t, err)
	assert.Equal(t, "application_filled.pdf", out.Name)
	fields, err := pdf.FormFields(out.Path)
	require.NoError(t, err)
	for _, fld := range fields {
		assert.False(t, fld.Locked, fld.Name)
		if fld.Name == "applicant" {
			assert.Equal(t, "Ada Lovelace", fld.Value)
		}
	}

	out, err = e.Convert(context.Background(), ws, descriptor(t, job.OpFillForm,
		map[string]string{"fields": `{"reference": "R-17"}`}, in))
	require.NoError(t, err)
	fields, err = pdf.FormFields(out.Path)
	require.NoError(t, err)
	require.Len(t, fields, 2)
	for _, fld := range fields {
		assert.True(t, fld.Locked, "flatten defaults on: %s", fld.Name)
	}
}

func TestFillFormOptionErrors(t *testing.T) {
	in := writeFormPDF(t, t.TempDir())
	e := New(nil, nil, nil, Config{}, nil)
	ws := newWorkspace(t)
	for name, opts := range map[string]map[string]string{
		"missing fields": nil,
		"not an object":  {"fields": `["applicant"]`},
		"bad flatten":    {"fields": `{"applicant": "x"}`, "flatten": "maybe"},
		"unknown field":  {"fields": `{"nickname": "x"}`},
	} {
		_, err := e.Convert(context.Background(), ws, descriptor(t, job.OpFillForm, opts, in))
		assert.True(t, job.IsKind(err, job.ErrInvalidInput), "%s: %v", name, err)
	}
}
