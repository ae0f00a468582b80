package job

import (
	"fmt"
	"strings"
)

// Operation identifies a pipeline operation.
type Operation int

const (
	OpUnknown Operation = iota
	OpMerge
	OpSplit
	OpRedact
	OpExtractText
	OpToImage
	OpOfficeToPdf
	OpPdfToOffice
	OpCsvToPdf
	OpImageToPdf
	OpOcr
	OpTextToPdf
	OpScrubMetadata
	OpFillForm
)

var operationNames = map[Operation]string{
	OpMerge:       "merge",
	OpSplit:       "split",
	OpRedact:      "redact",
	OpExtractText: "extract_text",
	OpToImage:     "to_image",
	OpOfficeToPdf: "office_to_pdf",
	OpPdfToOffice: "pdf_to_office",
	OpCsvToPdf:    "csv_to_pdf",
	OpImageToPdf:  "image_to_pdf",
	OpOcr:         "ocr",
	OpTextToPdf:   "text_to_pdf",

	OpScrubMetadata: "scrub_metadata",
	OpFillForm:      "fill_form",
}

// Operations lists every known operation in declaration order.
func Operations() []Operation {
	ops := make([]Operation, 0, len(operationNames))
	for op := OpMerge; op <= OpFillForm; op++ {
		ops = append(ops, op)
	}
	return ops
}

func (o Operation) String() string {
	if name, ok := operationNames[o]; ok {
		return name
	}
	return "unknown"
}

// ParseOperation resolves a wire token such as "office_to_pdf".
func ParseOperation(s string) (Operation, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for op, name := range operationNames {
		if name == s {
			return op, nil
		}
	}
	return OpUnknown, Errorf(ErrInvalidInput, "", "unknown operation %q", s)
}

func (o Operation) MarshalText() ([]byte, error) {
	if _, ok := operationNames[o]; !ok {
		return nil, fmt.Errorf("unknown operation %d", int(o))
	}
	return []byte(o.String()), nil
}

func (o *Operation) UnmarshalText(b []byte) error {
	op, err := ParseOperation(string(b))
	if err != nil {
		return err
	}
	*o = op
	return nil
}

// MultiInput reports whether the operation consumes several inputs as a
// single job rather than one input per job.
func (o Operation) MultiInput() bool {
	return o == OpMerge || o == OpImageToPdf
}

// UsesOffice reports whether the operation is served by the office engine
// and therefore contends for a profile slot.
func (o Operation) UsesOffice() bool {
	return o == OpOfficeToPdf || o == OpPdfToOffice
}
