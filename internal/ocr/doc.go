// Package ocr provides Optical Character Recognition (OCR) for rendered page
// images using Tesseract.
//
// Two engines implement the Engine interface:
//
//   - Tesseract: runs the tesseract command-line tool through the tool
//     package, one process per image. This is the default and needs only the
//     tesseract binary on PATH.
//   - Gosseract: calls libtesseract in-process through gosseract/v2. It is
//     compiled only with the "gosseract" build tag because it requires cgo
//     and the Tesseract development headers.
//
// # Prerequisites
//
// Tesseract must be installed on the system:
//   - Ubuntu/Debian: apt-get install tesseract-ocr
//   - macOS: brew install tesseract
//
// Language data files are required for each language:
//   - Ubuntu/Debian: apt-get install tesseract-ocr-eng (for English)
//   - Other languages: tesseract-ocr-<lang> packages
//
// # Supported Languages
//
// The default language is English ("eng"). Languages may be combined with
// "+", e.g. "eng+deu". See the Tesseract documentation for the full list.
//
// # Word Boxes
//
// Results carry word-level regions in pixel coordinates of the source image,
// origin top-left. Callers that lay text over a page image (searchable PDF
// output) or locate redaction targets convert these to page units themselves.
//
// # Preprocessing
//
// Preprocess applies optional grayscale, contrast and binarisation steps
// before recognition. Scanned pages with uneven lighting usually benefit from
// ModeBinarize; clean renders need none.
//
// # Error Handling
//
// Engines return job errors:
//   - ErrInvalidInput for unreadable images
//   - ErrToolFailed for engine failures such as missing language data
//   - ErrToolTimeout when an invocation exceeds its deadline
package ocr
