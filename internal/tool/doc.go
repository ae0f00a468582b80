// Package tool runs external engines (renderers, OCR, office converters) as
// child processes with bounded diagnostics, deadline enforcement and
// process-group termination.
//
// Every invocation runs in its own process group with the job's workspace as
// working directory. On deadline or cancellation the whole group is killed
// and the wait completes before Run returns, so no child outlives the call.
//
// Pool models engines that allow one live instance per profile directory.
// Each slot owns a distinct profile; callers hold a slot for the duration of
// one conversion.
package tool
