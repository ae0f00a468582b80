package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/ironsheep/doc-tools-mcp/internal/job"
	"github.com/ironsheep/doc-tools-mcp/internal/pipeline"
)

// Runner executes pipeline jobs.
type Runner interface {
	Run(ctx context.Context, desc *job.Descriptor, outDir string) pipeline.Outcome
	Stats() pipeline.Stats
}

// ObjectStore stages s3:// inputs and uploads outputs.
type ObjectStore interface {
	Fetch(ctx context.Context, uri, dir string) (job.Artifact, error)
	Put(ctx context.Context, local, uri string) (string, error)
}

// SlotGauge reports office profile pool usage.
type SlotGauge interface {
	Size() int
	InUse() int
}

// Options configures a Server.
type Options struct {
	// OutputDir receives outputs when a call names no output_dir.
	OutputDir string
	// StagingDir receives downloaded s3:// inputs.
	StagingDir string
	// MaxConcurrentJobs bounds tools/call requests served at once.
	MaxConcurrentJobs int
	// Store is nil when S3 is not configured.
	Store ObjectStore
	// Tools maps probed executables to their resolved paths for doc_status.
	Tools map[string]string
	// Slots is the office profile pool, if any.
	Slots   SlotGauge
	Version string
	Logger  *slog.Logger
}

// Server handles MCP protocol communication
type Server struct {
	runner Runner
	opts   Options
	log    *slog.Logger

	sem  chan struct{}
	jobs sync.WaitGroup

	encMu sync.Mutex
	enc   *json.Encoder
}

// MCPRequest represents an incoming JSON-RPC request
type MCPRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// MCPResponse represents an outgoing JSON-RPC response
type MCPResponse struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *MCPError   `json:"error,omitempty"`
}

// MCPError represents a JSON-RPC error
type MCPError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// MCPNotification represents an outgoing notification (no ID)
type MCPNotification struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// New creates a new MCP server instance
func New(runner Runner, opts Options) *Server {
	if opts.MaxConcurrentJobs <= 0 {
		opts.MaxConcurrentJobs = 1
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}
	if opts.StagingDir == "" {
		opts.StagingDir = os.TempDir()
	}
	if opts.Version == "" {
		opts.Version = "dev"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		runner: runner,
		opts:   opts,
		log:    logger,
		sem:    make(chan struct{}, opts.MaxConcurrentJobs),
	}
}

// Run starts the MCP server, reading from stdin and writing to stdout
func (s *Server) Run(ctx context.Context) error {
	return s.Serve(ctx, os.Stdin, os.Stdout)
}

// Serve reads requests from r and writes responses to w until r is
// exhausted or ctx is done. tools/call requests run concurrently and may
// answer out of order; Serve waits for them before returning.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	s.enc = json.NewEncoder(w)
	defer s.jobs.Wait()

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(r)
		// Increase buffer size for large requests
		buf := make([]byte, 0, 64*1024)
		scanner.Buffer(buf, 1024*1024)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		var line []byte
		select {
		case <-ctx.Done():
			s.log.Info("shutting down", "reason", ctx.Err())
			return nil
		case err := <-readErr:
			if err != nil {
				return fmt.Errorf("scanner error: %w", err)
			}
			return nil
		case line = <-lines:
		}
		if len(line) == 0 {
			continue
		}

		var req MCPRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.log.Warn("failed to parse request", "err", err)
			continue
		}

		if req.Method == "tools/call" {
			s.jobs.Add(1)
			go func() {
				defer s.jobs.Done()
				select {
				case s.sem <- struct{}{}:
				case <-ctx.Done():
					s.send(s.errorResponse(req.ID, -32000, "Server shutting down", ctx.Err().Error()))
					return
				}
				defer func() { <-s.sem }()
				s.send(s.handleToolsCall(ctx, &req))
			}()
			continue
		}
		s.send(s.handleRequest(ctx, &req))
	}
}

func (s *Server) send(resp *MCPResponse) {
	if resp == nil {
		return
	}
	s.encMu.Lock()
	defer s.encMu.Unlock()
	if err := s.enc.Encode(resp); err != nil {
		s.log.Error("failed to encode response", "err", err)
	}
}

// handleRequest routes requests to appropriate handlers
func (s *Server) handleRequest(ctx context.Context, req *MCPRequest) *MCPResponse {
	switch req.Method {
	case "initialize":
		return s.handleInitialize(req)
	case "notifications/initialized":
		// Client acknowledgment, no response needed
		return nil
	case "tools/list":
		return s.handleToolsList(req)
	case "tools/call":
		return s.handleToolsCall(ctx, req)
	case "ping":
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Result:  map[string]interface{}{},
		}
	default:
		return &MCPResponse{
			JSONRPC: "2.0",
			ID:      req.ID,
			Error: &MCPError{
				Code:    -32601,
				Message: fmt.Sprintf("Method not found: %s", req.Method),
			},
		}
	}
}

// handleInitialize responds to the initialize request
func (s *Server) handleInitialize(req *MCPRequest) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"protocolVersion": "2024-11-05",
			"capabilities": map[string]interface{}{
				"tools": map[string]interface{}{},
			},
			"serverInfo": map[string]interface{}{
				"name":    "doc-tools-mcp",
				"version": s.opts.Version,
			},
		},
	}
}
