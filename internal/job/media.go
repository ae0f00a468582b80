package job

import (
	"path/filepath"
	"strings"
)

// Media types recognised by the pipeline.
const (
	MediaPDF  = "application/pdf"
	MediaZip  = "application/zip"
	MediaText = "text/plain"
	MediaCSV  = "text/csv"
	MediaJSON = "application/json"
	MediaHTML = "text/html"
	MediaXML  = "application/xml"
	MediaRTF  = "application/rtf"
	MediaPNG  = "image/png"
	MediaJPEG = "image/jpeg"
	MediaGIF  = "image/gif"
	MediaTIFF = "image/tiff"
	MediaBMP  = "image/bmp"
	MediaWebP = "image/webp"

	MediaDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MediaXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MediaPPTX = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	MediaDOC  = "application/msword"
	MediaXLS  = "application/vnd.ms-excel"
	MediaPPT  = "application/vnd.ms-powerpoint"
	MediaODT  = "application/vnd.oasis.opendocument.text"
	MediaODS  = "application/vnd.oasis.opendocument.spreadsheet"
	MediaODP  = "application/vnd.oasis.opendocument.presentation"

	MediaOctetStream = "application/octet-stream"
)

var extMedia = map[string]string{
	"pdf":  MediaPDF,
	"zip":  MediaZip,
	"txt":  MediaText,
	"csv":  MediaCSV,
	"json": MediaJSON,
	"html": MediaHTML,
	"htm":  MediaHTML,
	"xml":  MediaXML,
	"rtf":  MediaRTF,
	"png":  MediaPNG,
	"jpg":  MediaJPEG,
	"jpeg": MediaJPEG,
	"gif":  MediaGIF,
	"tif":  MediaTIFF,
	"tiff": MediaTIFF,
	"bmp":  MediaBMP,
	"webp": MediaWebP,
	"docx": MediaDOCX,
	"xlsx": MediaXLSX,
	"pptx": MediaPPTX,
	"doc":  MediaDOC,
	"xls":  MediaXLS,
	"ppt":  MediaPPT,
	"odt":  MediaODT,
	"ods":  MediaODS,
	"odp":  MediaODP,
}

// MediaTypeFor returns the media type implied by a file name's extension.
func MediaTypeFor(name string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), ".")
	if mt, ok := extMedia[ext]; ok {
		return mt
	}
	return MediaOctetStream
}

// IsImage reports whether mt is a raster image type the pipeline decodes.
func IsImage(mt string) bool {
	switch mt {
	case MediaPNG, MediaJPEG, MediaGIF, MediaTIFF, MediaBMP, MediaWebP:
		return true
	}
	return false
}

// IsOfficeDocument reports whether mt is handled by the office engine.
func IsOfficeDocument(mt string) bool {
	switch mt {
	case MediaDOCX, MediaXLSX, MediaPPTX, MediaDOC, MediaXLS, MediaPPT,
		MediaODT, MediaODS, MediaODP, MediaRTF, MediaHTML, MediaText, MediaCSV:
		return true
	}
	return false
}

// Accepts reports whether op can take an input of media type mt.
func (o Operation) Accepts(mt string) bool {
	switch o {
	case OpMerge, OpSplit, OpRedact, OpExtractText, OpToImage, OpPdfToOffice, OpOcr,
		OpScrubMetadata, OpFillForm:
		return mt == MediaPDF
	case OpOfficeToPdf:
		return IsOfficeDocument(mt)
	case OpCsvToPdf:
		return mt == MediaCSV || mt == MediaText
	case OpImageToPdf:
		return IsImage(mt)
	case OpTextToPdf:
		return mt == MediaText
	}
	return false
}

// Stem returns name without directory and extension.
func Stem(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
