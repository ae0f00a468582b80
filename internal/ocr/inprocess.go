//go:build !gosseract

package ocr

import "fmt"

// Available reports whether the in-process engine was compiled in.
func Available() bool { return false }

// NewInProcess fails unless the binary was built with -tags gosseract.
func NewInProcess(string) (Engine, error) {
	return nil, fmt.Errorf("in-process OCR engine not built; rebuild with -tags gosseract")
}
