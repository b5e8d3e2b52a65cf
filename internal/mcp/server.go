package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/codechat/internal/chat"
	"github.com/Aman-CERP/codechat/internal/index"
	"github.com/Aman-CERP/codechat/internal/telemetry"
	"github.com/Aman-CERP/codechat/pkg/version"
)

// ServerName is reported to MCP clients.
const ServerName = "codechat"

// DefaultIdentity is the rate limit identity of a stdio client.
const DefaultIdentity = "mcp:stdio"

// Service is the part of the chat service exposed over MCP.
type Service interface {
	Ask(ctx context.Context, q chat.Query) (*chat.Response, error)
	Search(ctx context.Context, question string, k int) ([]chat.Source, error)
	Health(ctx context.Context) chat.Health
}

// Snapshots returns the published index snapshot.
type Snapshots interface {
	Current() *index.Snapshot
}

// TelemetrySource aggregates stored request events.
type TelemetrySource interface {
	Summary(ctx context.Context, since time.Time) (*telemetry.Summary, error)
}

// Options configures a Server. Roots must match the indexer's roots so
// file resources resolve to the indexed files.
type Options struct {
	Roots []string
	// Identity is passed to the chat service for rate limiting.
	Identity string
	// Telemetry and Recent are optional; each registers a resource when set.
	Telemetry       TelemetrySource
	Recent          *telemetry.Recent
	MaxResourceSize int64
	Logger          *slog.Logger
}

// Server bridges MCP clients and the chat service.
type Server struct {
	mcp    *mcp.Server
	svc    Service
	index  Snapshots
	opts   Options
	roots  []string
	logger *slog.Logger
	now    func() time.Time

	resources *resourceSet
}

// NewServer creates an MCP server with the ask_codebase, search_code and
// index_status tools and one file resource per indexed file.
func NewServer(svc Service, idx Snapshots, opts Options) (*Server, error) {
	if svc == nil {
		return nil, errors.New("chat service is required")
	}
	if idx == nil {
		return nil, errors.New("index is required")
	}
	if opts.Identity == "" {
		opts.Identity = DefaultIdentity
	}
	if opts.MaxResourceSize <= 0 {
		opts.MaxResourceSize = MaxResourceSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	roots := make([]string, 0, len(opts.Roots))
	for _, r := range opts.Roots {
		abs, err := filepath.Abs(r)
		if err != nil {
			return nil, fmt.Errorf("resolve root %s: %w", r, err)
		}
		roots = append(roots, abs)
	}

	s := &Server{
		svc:       svc,
		index:     idx,
		opts:      opts,
		roots:     roots,
		logger:    logger,
		now:       time.Now,
		resources: newResourceSet(),
	}
	s.mcp = mcp.NewServer(&mcp.Implementation{
		Name:    ServerName,
		Version: version.Version,
	}, nil)

	s.registerTools()
	s.registerTelemetryResources()
	s.SyncResources(idx.Current())
	return s, nil
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// Info returns the server name and version.
func (s *Server) Info() (name, ver string) {
	return ServerName, version.Version
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolAsk,
		Description: "Ask a question about the indexed codebase. Returns an answer grounded in the retrieved code, the source files it used, and suggested follow-up questions.",
	}, s.mcpAskHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolSearch,
		Description: "Find the code snippets most relevant to a query without generating an answer. Use it to locate files before reading them.",
	}, s.mcpSearchHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        ToolIndexStatus,
		Description: "Report how many files and chunks are indexed, whether the answer backend is reachable, and cache statistics.",
	}, s.mcpIndexStatusHandler)

	s.logger.Debug("mcp_tools_registered", slog.Int("count", 3))
}

// CallTool invokes a tool by name with JSON-style arguments.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	switch name {
	case ToolAsk:
		in, err := decodeArgs[AskInput](args)
		if err != nil {
			return nil, err
		}
		return s.ask(ctx, in)
	case ToolSearch:
		in, err := decodeArgs[SearchInput](args)
		if err != nil {
			return nil, err
		}
		return s.search(ctx, in)
	case ToolIndexStatus:
		return s.indexStatus(ctx), nil
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func decodeArgs[T any](args map[string]any) (T, error) {
	var in T
	if args == nil {
		return in, nil
	}
	data, err := json.Marshal(args)
	if err != nil {
		return in, NewInvalidParamsError("arguments must be a JSON object")
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return in, NewInvalidParamsError(fmt.Sprintf("invalid arguments: %v", err))
	}
	return in, nil
}

func (s *Server) ask(ctx context.Context, in AskInput) (*chat.Response, error) {
	if in.Question == "" {
		return nil, NewInvalidParamsError("question parameter is required")
	}
	resp, err := s.svc.Ask(ctx, chat.Query{Question: in.Question, Identity: s.opts.Identity})
	if err != nil {
		s.logger.Warn("mcp_ask_failed", slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	return resp, nil
}

func (s *Server) search(ctx context.Context, in SearchInput) (*SearchOutput, error) {
	if in.Query == "" {
		return nil, NewInvalidParamsError("query parameter is required")
	}
	start := time.Now()
	requestID := uuid.NewString()
	limit := clampLimit(in.Limit, defaultSearchLimit, 1, maxSearchLimit)

	sources, err := s.svc.Search(ctx, in.Query, limit)
	if err != nil {
		s.logger.Warn("mcp_search_failed",
			slog.String("request_id", requestID),
			slog.String("error", err.Error()))
		return nil, MapError(err)
	}
	s.logger.Info("mcp_search_completed",
		slog.String("request_id", requestID),
		slog.Int("limit", limit),
		slog.Int("results", len(sources)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()))

	if sources == nil {
		sources = []chat.Source{}
	}
	return &SearchOutput{Results: sources}, nil
}

func (s *Server) indexStatus(ctx context.Context) *IndexStatusOutput {
	h := s.svc.Health(ctx)

	root := ""
	if len(s.roots) > 0 {
		root = s.roots[0]
	}
	project := NewProjectDetector(root, s.logger).Detect()

	out := &IndexStatusOutput{
		Project: *project,
		Status:  h.Status,
		Index: IndexInfo{
			Files:   h.Index.Files,
			Chunks:  h.Index.Chunks,
			Version: h.Index.Version,
		},
		Synthesizer: SynthesizerInfo{
			Name:      h.Synthesizer.Name,
			Available: h.Synthesizer.Available,
			Circuit:   h.Synthesizer.Circuit,
		},
		Cache: h.Cache,
	}
	if !h.Index.BuiltAt.IsZero() {
		out.Index.BuiltAt = h.Index.BuiltAt.UTC().Format(time.RFC3339)
	}
	return out
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func (s *Server) mcpAskHandler(ctx context.Context, _ *mcp.CallToolRequest, in AskInput) (
	*mcp.CallToolResult,
	*chat.Response,
	error,
) {
	resp, err := s.ask(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	return textResult(FormatAnswer(resp)), resp, nil
}

func (s *Server) mcpSearchHandler(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (
	*mcp.CallToolResult,
	*SearchOutput,
	error,
) {
	out, err := s.search(ctx, in)
	if err != nil {
		return nil, nil, err
	}
	return textResult(FormatSources(in.Query, out.Results)), out, nil
}

func (s *Server) mcpIndexStatusHandler(ctx context.Context, _ *mcp.CallToolRequest, _ IndexStatusInput) (
	*mcp.CallToolResult,
	*IndexStatusOutput,
	error,
) {
	out := s.indexStatus(ctx)
	return textResult(FormatStatus(out)), out, nil
}

// Serve runs the server on the named transport until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("mcp_server_starting", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("mcp_server_stopped", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("mcp_server_stopped")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}
