package convert

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"

	"github.com/ironsheep/doc-tools-mcp/internal/job"
)

const sniffLen = 8192

var (
	magicPDF = []byte("%PDF-")
	magicZip = []byte("PK\x03\x04")
	magicOLE = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
	magicRTF = []byte(`{\rtf`)
)

// checkInputs validates input count and content before any tool runs.
func checkInputs(desc *job.Descriptor) error {
	op := desc.Operation()
	n := desc.NumInputs()
	switch {
	case op == job.OpMerge && n < 2:
		return job.Errorf(job.ErrInvalidInput, op.String(), "need at least two PDFs, got %d", n)
	case op.MultiInput() && n < 1:
		return job.Errorf(job.ErrInvalidInput, op.String(), "no inputs")
	case !op.MultiInput() && n != 1:
		return job.Errorf(job.ErrInvalidInput, op.String(), "need exactly one input, got %d", n)
	}
	for _, in := range desc.Inputs() {
		mt := mediaType(in)
		if !op.Accepts(mt) {
			return job.Errorf(job.ErrInvalidInput, op.String(), "%s: %s is not accepted", in.Name, mt)
		}
		if err := sniff(in.Path, mt); err != nil {
			return &job.Error{Kind: job.ErrInvalidInput, Op: op.String(), Msg: in.Name, Err: err}
		}
	}
	return nil
}

func mediaType(a job.Artifact) string {
	if a.MediaType != "" && a.MediaType != job.MediaOctetStream {
		return a.MediaType
	}
	name := a.Name
	if name == "" {
		name = a.Path
	}
	return job.MediaTypeFor(name)
}

// sniff checks the leading bytes of path agree with mt.
func sniff(path, mt string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return err
	}
	head = head[:n]
	if n == 0 {
		return fmt.Errorf("empty file")
	}

	switch {
	case mt == job.MediaPDF:
		// Some producers emit junk before the header; readers allow 1 KiB.
		if !bytes.Contains(head[:min(n, 1024)], magicPDF) {
			return fmt.Errorf("missing PDF header")
		}
	case job.IsImage(mt):
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return err
		}
		if _, _, err := image.DecodeConfig(f); err != nil {
			return fmt.Errorf("not a decodable image: %w", err)
		}
	case mt == job.MediaDOCX, mt == job.MediaXLSX, mt == job.MediaPPTX,
		mt == job.MediaODT, mt == job.MediaODS, mt == job.MediaODP:
		if !bytes.HasPrefix(head, magicZip) {
			return fmt.Errorf("not an %s package", filepath.Ext(path))
		}
	case mt == job.MediaDOC, mt == job.MediaXLS, mt == job.MediaPPT:
		if !bytes.HasPrefix(head, magicOLE) {
			return fmt.Errorf("not a legacy office document")
		}
	case mt == job.MediaRTF:
		if !bytes.HasPrefix(bytes.TrimLeft(head, " \r\n\t\xef\xbb\xbf"), magicRTF) {
			return fmt.Errorf("missing RTF header")
		}
	case mt == job.MediaText, mt == job.MediaCSV, mt == job.MediaHTML:
		if bytes.IndexByte(head, 0) >= 0 {
			return fmt.Errorf("binary content in text file")
		}
	}
	return nil
}
