// Package job defines the data contracts that flow through the document
// pipeline: operation kinds, immutable job descriptors, artifacts, batch
// results, and the error taxonomy shared by every stage.
//
// # Error Kinds
//
// Every failure surfaced by the pipeline carries one of a small set of kinds:
//
//   - ErrInvalidInput: malformed or unsupported source file, not retried
//   - ErrToolNotFound: a required executable is missing, fatal at startup
//   - ErrToolTimeout: an external invocation exceeded its deadline
//   - ErrToolFailed: an external invocation exited nonzero
//   - ErrToolSilentFailure: an invocation exited zero but produced no output
//   - ErrWorkspace: scratch directory could not be created or written
//   - ErrCancelled: the caller cancelled the request
//
// Use errors.Is against the sentinels, or KindOf to classify an arbitrary
// error. Status maps a kind to an HTTP-style status code.
package job
