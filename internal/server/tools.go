package server

import (
	"strings"

	"github.com/ironsheep/doc-tools-mcp/internal/job"
	"github.com/ironsheep/doc-tools-mcp/internal/office"
)

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// ToolPrefix prefixes every operation tool name.
const ToolPrefix = "doc_"

// Names of the tools that are not operations.
const (
	ToolBatch  = "doc_batch"
	ToolStatus = "doc_status"
)

// operationDocs describes each operation and the options it reads.
var operationDocs = map[job.Operation]string{
	job.OpMerge: "Merge two or more PDFs into one, in input order. A single zip input contributes its members. " +
		"Options: output_filename.",
	job.OpSplit: "Split a PDF into parts returned as a zip. Without options every page becomes a part. " +
		"Options: pages (ranges such as \"1-3,4,5-\"), prefix.",
	job.OpRedact: "Irreversibly redact a PDF. Affected pages are rasterized with the matched text or regions painted over, " +
		"and the result is checked so redacted text cannot be extracted. " +
		"Options: terms (JSON array of strings or a single string), regions (JSON array of {page,x1,y1,x2,y2} in PDF points), " +
		"fill (hex colour, default #000000), dpi (default 150), locate (text, ocr or auto).",
	job.OpExtractText: "Extract plain text from a PDF, one form feed between pages. " +
		"Options: ocr (off, auto or force; auto OCRs pages without a text layer), lang, dpi, psm.",
	job.OpToImage: "Render PDF pages to images. One page yields an image, several yield a zip. " +
		"Format: png, jpeg or tiff. Options: dpi (default 150), pages, width.",
	job.OpOfficeToPdf: "Convert an office document (doc, docx, odt, xls, xlsx, ods, ppt, pptx, odp, rtf, html, txt) to PDF with LibreOffice.",
	job.OpPdfToOffice: "Convert a PDF to an office format with LibreOffice. Format: " + strings.Join(office.PdfExportFormats(), ", ") + ".",
	job.OpCsvToPdf: "Render a CSV file as a paginated table PDF. " +
		"Options: delimiter (default ','; \"tab\" or \"\\t\" for tabs), encoding (utf-8, latin1, windows-1252), " +
		"orientation (portrait or landscape, default by column count), font_size.",
	job.OpImageToPdf: "Combine images (png, jpeg, gif, bmp, tiff, webp) into a PDF, one page per image in input order. " +
		"Options: page (auto, a4 or letter), dpi (default 96, used for auto page sizes).",
	job.OpOcr: "OCR a PDF or image. Format pdf (default) produces a searchable PDF; txt produces page-delimited text. " +
		"Options: lang (default eng), dpi (default 300), psm, preprocess (none, grayscale or binarize).",
	job.OpTextToPdf: "Typeset a UTF-8 text file as a PDF. Options: font_size.",
	job.OpScrubMetadata: "Remove document metadata from a PDF: the info dictionary (title, author, subject, keywords, creator), " +
		"custom properties and the XMP stream. Page content is unchanged.",
	job.OpFillForm: "Fill the AcroForm fields of a PDF. " +
		"Options: fields (JSON object of field name to value; booleans for checkboxes, string arrays for list boxes), " +
		"flatten (default true; makes every field read-only).",
}

// jobProperties are the arguments every job tool accepts.
func jobProperties() map[string]interface{} {
	return map[string]interface{}{
		"options": map[string]interface{}{
			"type":        "object",
			"description": "Operation options. Values may be strings, numbers, booleans, JSON arrays or objects.",
		},
		"format": map[string]interface{}{
			"type":        "string",
			"description": "Target format token where the operation has one (e.g. png, docx, txt)",
		},
		"output_dir": map[string]interface{}{
			"type":        "string",
			"description": "Directory receiving the output. Defaults to the server's output directory",
		},
		"output_s3_uri": map[string]interface{}{
			"type":        "string",
			"description": "Optional s3://bucket/key (or prefix ending in /) to upload the output to",
		},
		"timeout_seconds": map[string]interface{}{
			"type":        "number",
			"description": "Job deadline in seconds. Defaults to the server's job timeout",
		},
	}
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	var tools []Tool
	for _, op := range job.Operations() {
		props := jobProperties()
		props["inputs"] = map[string]interface{}{
			"type":        "array",
			"items":       map[string]interface{}{"type": "string"},
			"minItems":    1,
			"description": "Absolute paths or s3:// URIs of the input files. A single zip input is processed as a batch",
		}
		tools = append(tools, Tool{
			Name:        ToolPrefix + op.String(),
			Description: operationDocs[op],
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": props,
				"required":   []string{"inputs"},
			},
		})
	}

	props := jobProperties()
	props["operation"] = map[string]interface{}{
		"type":        "string",
		"description": "Operation applied to every archive member",
		"enum":        operationNames(),
	}
	props["input"] = map[string]interface{}{
		"type":        "string",
		"description": "Absolute path or s3:// URI of a zip archive",
	}
	tools = append(tools,
		Tool{
			Name: ToolBatch,
			Description: "Apply one operation to every member of a zip archive. Returns a zip of the outputs " +
				"plus manifest.json recording each member's status.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": props,
				"required":   []string{"operation", "input"},
			},
		},
		Tool{
			Name:        ToolStatus,
			Description: "Report job counters, live workspaces and the resolved external tools.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	)
	return tools
}

func operationNames() []string {
	ops := job.Operations()
	names := make([]string, len(ops))
	for i, op := range ops {
		names[i] = op.String()
	}
	return names
}

// handleToolsList returns the list of available tools
func (s *Server) handleToolsList(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"tools": GetToolDefinitions(),
		},
	}
}
