package convert

import (
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"

	"github.com/ironsheep/doc-tools-mcp/internal/job"
)

func TestSniff(t *testing.T) {
	dir := t.TempDir()
	bmpPath := filepath.Join(dir, "scan.bmp")
	fh, err := os.Create(bmpPath)
	require.NoError(t, err)
	require.NoError(t, bmp.Encode(fh, image.NewGray(image.Rect(0, 0, 8, 8))))
	require.NoError(t, fh.Close())

	pngPath := writePNG(t, dir, "a.png", 4, 4)
	fake := filepath.Join(dir, "fake.pdf")
	require.NoError(t, os.WriteFile(fake, []byte("PK\x03\x04 not a pdf"), 0o600))
	text := filepath.Join(dir, "data.csv")
	require.NoError(t, os.WriteFile(text, []byte("a,b\x00c"), 0o600))

	assert.NoError(t, sniff(bmpPath, job.MediaTypeFor("scan.bmp")))
	assert.NoError(t, sniff(pngPath, job.MediaTypeFor("a.png")))
	assert.Error(t, sniff(fake, job.MediaPDF))
	assert.Error(t, sniff(text, job.MediaCSV))
	assert.Error(t, sniff(pngPath, job.MediaTypeFor("a.docx")))
}
