package pdf

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/doc-tools-mcp/internal/job"
)

func TestPixelsToPoints(t *testing.T) {
	assert.InDelta(t, 72.0, PixelsToPoints(300, 300), 1e-9)
	assert.InDelta(t, 36.0, PixelsToPoints(48, 96), 1e-9)
}

func TestComposeImages(t *testing.T) {
	dir := t.TempDir()
	a := writePNG(t, dir, "a.png", 100, 50)
	b := writePNG(t, dir, "b.png", 50, 100)
	out := filepath.Join(dir, "out.pdf")

	err := ComposeImages([]ImagePage{
		{Path: a, Type: "PNG", Width: 100, Height: 50},
		{Path: b, Type: "PNG", Width: 50, Height: 100, Words: []PlacedWord{{Text: "hidden", X: 5, Y: 5, Width: 40, Height: 10}}},
	}, out)
	require.NoError(t, err)
	n, err := PageCount(out)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestComposeImagesErrors(t *testing.T) {
	dir := t.TempDir()
	err := ComposeImages(nil, filepath.Join(dir, "x.pdf"))
	assert.True(t, job.IsKind(err, job.ErrInvalidInput))

	a := writePNG(t, dir, "a.png", 10, 10)
	err = ComposeImages([]ImagePage{{Path: a, Type: "PNG"}}, filepath.Join(dir, "y.pdf"))
	assert.True(t, job.IsKind(err, job.ErrInvalidInput))
}

func TestComposeTextPaginates(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "text.pdf")
	lines := make([]string, 200)
	for i := range lines {
		lines[i] = "line of text"
	}
	require.NoError(t, ComposeText(strings.Join(lines, "\n"), out, TextOptions{}))
	n, err := PageCount(out)
	require.NoError(t, err)
	assert.Greater(t, n, 1)
}

func TestReadCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "in.csv")
	require.NoError(t, os.WriteFile(path, []byte("name;city\nJos\xe9;Z\xfcrich\n"), 0o600))

	rows, err := ReadCSV(path, CSVOptions{Delimiter: ';', Encoding: "latin1"})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"José", "Zürich"}, rows[1])

	_, err = ReadCSV(path, CSVOptions{Delimiter: ';'})
	assert.True(t, job.IsKind(err, job.ErrInvalidInput), "latin1 bytes are not utf-8")

	_, err = ReadCSV(path, CSVOptions{Encoding: "ebcdic"})
	assert.True(t, job.IsKind(err, job.ErrInvalidInput))
}

func TestReadCSVEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.csv")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	_, err := ReadCSV(path, CSVOptions{})
	assert.True(t, job.IsKind(err, job.ErrInvalidInput))
}

func TestComposeTableRepeatsHeader(t *testing.T) {
	rows := [][]string{{"id", "value", "a rather long description column"}}
	for i := 0; i < 120; i++ {
		rows = append(rows, []string{"1", "2", strings.Repeat("wide ", 40)})
	}
	rows = append(rows, []string{"ragged"})
	out := filepath.Join(t.TempDir(), "table.pdf")
	require.NoError(t, ComposeTable(rows, out, CSVOptions{}))
	n, err := PageCount(out)
	require.NoError(t, err)
	assert.Greater(t, n, 1)
}

func TestComposeImagesFit(t *testing.T) {
	dir := t.TempDir()
	wide := writePNG(t, dir, "wide.png", 400, 100)
	out := filepath.Join(dir, "fit.pdf")
	require.NoError(t, ComposeImages([]ImagePage{{Path: wide, Type: "PNG", Width: A4.Wd, Height: A4.Ht, Fit: true}}, out))
	n, err := PageCount(out)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
