// Package server implements the MCP (Model Context Protocol) server for document tools.
//
// This package provides a JSON-RPC 2.0 server that exposes the document
// pipeline through the MCP protocol.
//
// # Protocol
//
// The server communicates over stdio using JSON-RPC 2.0:
//   - Input: JSON-RPC requests on stdin (one per line)
//   - Output: JSON-RPC responses on stdout
//
// Supported MCP methods:
//   - initialize: Protocol handshake
//   - tools/list: Enumerate available tools
//   - tools/call: Execute a tool with arguments
//   - ping: Health check
//
// tools/call requests are served concurrently, up to MaxConcurrentJobs at a
// time, so responses may arrive in a different order than their requests.
//
// # Available Tools
//
// One tool per operation, named doc_<operation>:
//   - doc_merge, doc_split, doc_redact, doc_extract_text, doc_to_image
//   - doc_office_to_pdf, doc_pdf_to_office
//   - doc_csv_to_pdf, doc_image_to_pdf, doc_text_to_pdf, doc_ocr
//
// Plus:
//   - doc_batch: apply one operation to every member of a zip archive
//   - doc_status: job counters and resolved external tools
//
// Job tools take {inputs, options, format, output_dir, output_s3_uri,
// timeout_seconds}. Inputs may be local paths or s3:// URIs; S3 inputs are
// downloaded to a staging directory before the job starts.
//
// # Results
//
// A job tool answers with the job's Outcome as JSON text content. Failed jobs
// set isError and carry status, error_kind and error; the HTTP-style status
// is 400 for invalid input, 504 for timeouts and 500 otherwise. Malformed
// arguments and unknown tools return JSON-RPC error -32602.
//
// # Usage
//
//	srv := server.New(pipe, server.Options{OutputDir: dir, MaxConcurrentJobs: 4})
//	if err := srv.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
package server
