package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ironsheep/doc-tools-mcp/internal/job"
	"github.com/ironsheep/doc-tools-mcp/internal/pipeline"
	"github.com/ironsheep/doc-tools-mcp/internal/storage"
)

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "doc_merge", "doc_batch").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// jobArgs are the arguments of the job tools. Input and Operation are only
// read by doc_batch.
type jobArgs struct {
	Inputs         []string                   `json:"inputs"`
	Input          string                     `json:"input"`
	Operation      string                     `json:"operation"`
	Options        map[string]json.RawMessage `json:"options"`
	Format         string                     `json:"format"`
	OutputDir      string                     `json:"output_dir"`
	OutputS3URI    string                     `json:"output_s3_uri"`
	TimeoutSeconds float64                    `json:"timeout_seconds"`
}

// JobResult is the payload of a job tool call.
type JobResult struct {
	pipeline.Outcome
	// Uploaded is the object location when output_s3_uri was given.
	Uploaded string `json:"uploaded,omitempty"`
}

// StatusResult is the payload of doc_status.
type StatusResult struct {
	Version string            `json:"version"`
	Stats   pipeline.Stats    `json:"stats"`
	Tools   map[string]string `json:"tools"`
	S3      bool              `json:"s3"`
	// OfficeSlots is omitted when no office pool is configured.
	OfficeSlots *SlotUsage `json:"office_slots,omitempty"`
}

// SlotUsage is a snapshot of the office profile pool.
type SlotUsage struct {
	Size  int `json:"size"`
	InUse int `json:"in_use"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}],
//	  "isError": false
//	}
//
// A job that fails still answers with its Outcome and isError set. Malformed
// arguments and unknown tools return JSON-RPC errors.
func (s *Server) handleToolsCall(ctx context.Context, req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, failed, err := s.executeTool(ctx, params.Name, params.Arguments)
	if err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
			"isError": failed,
		},
	}
}

// executeTool dispatches a tool call. The bool reports a failed job.
func (s *Server) executeTool(ctx context.Context, name string, args json.RawMessage) (interface{}, bool, error) {
	if name == ToolStatus {
		return s.status(), false, nil
	}

	var a jobArgs
	if len(bytes.TrimSpace(args)) > 0 {
		if err := json.Unmarshal(args, &a); err != nil {
			return nil, false, err
		}
	}

	var op job.Operation
	batch := name == ToolBatch
	switch {
	case batch:
		var err error
		if op, err = job.ParseOperation(a.Operation); err != nil {
			return nil, false, err
		}
		if a.Input == "" {
			return nil, false, fmt.Errorf("doc_batch requires input")
		}
		a.Inputs = []string{a.Input}
	case strings.HasPrefix(name, ToolPrefix):
		var err error
		if op, err = job.ParseOperation(strings.TrimPrefix(name, ToolPrefix)); err != nil {
			return nil, false, fmt.Errorf("unknown tool: %s", name)
		}
	default:
		return nil, false, fmt.Errorf("unknown tool: %s", name)
	}

	res := s.runJob(ctx, op, a, batch)
	return res, !res.OK(), nil
}

// runJob stages the inputs, runs the job and uploads its output.
func (s *Server) runJob(ctx context.Context, op job.Operation, a jobArgs, batch bool) JobResult {
	id := uuid.NewString()
	fail := func(err error) JobResult {
		return JobResult{Outcome: pipeline.Outcome{
			JobID:     id,
			Operation: op.String(),
			Status:    job.Status(err),
			ErrorKind: job.KindName(err),
			Error:     err.Error(),
			Duration:  "0s",
		}}
	}

	opts, err := optionValues(a.Options)
	if err != nil {
		return fail(err)
	}
	if batch {
		opts["batch"] = "true"
	}

	inputs, cleanup, err := s.stageInputs(ctx, a.Inputs)
	defer cleanup()
	if err != nil {
		return fail(err)
	}

	spec := job.Spec{ID: id, Operation: op, Inputs: inputs, Options: opts, Format: a.Format}
	if a.TimeoutSeconds < 0 {
		return fail(job.Errorf(job.ErrInvalidInput, op.String(), "negative timeout_seconds"))
	}
	if a.TimeoutSeconds > 0 {
		spec.Deadline = time.Now().Add(time.Duration(a.TimeoutSeconds * float64(time.Second)))
	}
	desc, err := job.NewDescriptor(spec)
	if err != nil {
		return fail(err)
	}

	outDir := a.OutputDir
	if outDir == "" {
		outDir = s.opts.OutputDir
	}
	res := JobResult{Outcome: s.runner.Run(ctx, desc, outDir)}
	if a.OutputS3URI == "" || len(res.Artifacts) == 0 {
		return res
	}
	if s.opts.Store == nil {
		return s.uploadFailed(res, job.Errorf(job.ErrInvalidInput, "s3", "s3 is not configured"))
	}
	loc, err := s.opts.Store.Put(ctx, res.Artifacts[0].Path, a.OutputS3URI)
	if err != nil {
		return s.uploadFailed(res, err)
	}
	res.Uploaded = loc
	return res
}

// uploadFailed keeps the locally delivered artifact but reports the error.
func (s *Server) uploadFailed(res JobResult, err error) JobResult {
	s.log.Warn("upload failed", "job", res.JobID, "err", err)
	res.Status = job.Status(err)
	res.ErrorKind = job.KindName(err)
	res.Error = err.Error()
	return res
}

// stageInputs resolves input paths, downloading s3:// URIs into a private
// staging directory removed by cleanup.
func (s *Server) stageInputs(ctx context.Context, refs []string) ([]job.Artifact, func(), error) {
	cleanup := func() {}
	if len(refs) == 0 {
		return nil, cleanup, job.Errorf(job.ErrInvalidInput, "", "no inputs")
	}
	var staging string
	inputs := make([]job.Artifact, 0, len(refs))
	for _, ref := range refs {
		ref = strings.TrimSpace(ref)
		if !storage.IsS3URI(ref) {
			if ref == "" {
				return nil, cleanup, job.Errorf(job.ErrInvalidInput, "", "empty input path")
			}
			inputs = append(inputs, job.NewArtifact(ref, ""))
			continue
		}
		if s.opts.Store == nil {
			return nil, cleanup, job.Errorf(job.ErrInvalidInput, "s3", "s3 is not configured")
		}
		if staging == "" {
			if err := os.MkdirAll(s.opts.StagingDir, 0o755); err != nil {
				return nil, cleanup, job.Wrap(job.ErrWorkspace, "s3", err)
			}
			dir, err := os.MkdirTemp(s.opts.StagingDir, "s3-")
			if err != nil {
				return nil, cleanup, job.Wrap(job.ErrWorkspace, "s3", err)
			}
			staging = dir
			cleanup = func() { os.RemoveAll(dir) }
		}
		a, err := s.opts.Store.Fetch(ctx, ref, filepath.Join(staging, fmt.Sprint(len(inputs))))
		if err != nil {
			return nil, cleanup, err
		}
		inputs = append(inputs, a)
	}
	return inputs, cleanup, nil
}

// optionValues flattens JSON option values to the strings descriptors hold.
// Strings are taken as is; numbers, booleans and arrays keep their JSON text.
func optionValues(raw map[string]json.RawMessage) (map[string]string, error) {
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		v = bytes.TrimSpace(v)
		if len(v) == 0 || string(v) == "null" {
			continue
		}
		if v[0] == '"' {
			var str string
			if err := json.Unmarshal(v, &str); err != nil {
				return nil, job.Errorf(job.ErrInvalidInput, "", "option %s: %v", k, err)
			}
			out[k] = str
			continue
		}
		out[k] = string(v)
	}
	return out, nil
}

func (s *Server) status() StatusResult {
	tools := s.opts.Tools
	if tools == nil {
		tools = map[string]string{}
	}
	st := StatusResult{
		Version: s.opts.Version,
		Stats:   s.runner.Stats(),
		Tools:   tools,
		S3:      s.opts.Store != nil,
	}
	if s.opts.Slots != nil {
		st.OfficeSlots = &SlotUsage{Size: s.opts.Slots.Size(), InUse: s.opts.Slots.InUse()}
	}
	return st
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
