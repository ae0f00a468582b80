// Package pdf performs the in-process PDF work of the pipeline.
//
// Page-structure operations (merge, trim, split, page count, validation) use
// pdfcpu and never touch page content streams. Composition of new documents
// (image pages, searchable pages with an invisible text layer, CSV tables,
// plain text) uses fpdf.
//
// Errors reading a source document are reported as job.ErrInvalidInput;
// failures writing output are job.ErrToolFailed.
package pdf
