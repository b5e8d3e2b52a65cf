package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/codechat/internal/index"
)

// MaxResourceSize is the default maximum file size for resources (1MB).
const MaxResourceSize = 1024 * 1024

// Telemetry resource URIs.
const (
	URITelemetrySummary = "codechat://telemetry/summary"
	URITelemetryRecent  = "codechat://telemetry/recent"
)

// summaryWindow is how far back the telemetry summary resource looks.
const summaryWindow = 24 * time.Hour

// resourceSet tracks registered file resources by URI.
type resourceSet struct {
	mu    sync.Mutex
	files map[string]bool
}

func newResourceSet() *resourceSet {
	return &resourceSet{files: make(map[string]bool)}
}

// FileURI returns the resource URI of an indexed file path.
func FileURI(displayPath string) string {
	return "file://" + displayPath
}

// SyncResources registers one resource per file in snap and removes those
// of files no longer indexed. It is safe to call from an index swap hook.
func (s *Server) SyncResources(snap *index.Snapshot) {
	want := make(map[string]bool)
	var added []string
	if snap != nil {
		for _, c := range snap.Chunks() {
			want[c.FilePath] = true
		}
	}

	s.resources.mu.Lock()
	defer s.resources.mu.Unlock()

	var stale []string
	for p := range s.resources.files {
		if !want[p] {
			stale = append(stale, FileURI(p))
			delete(s.resources.files, p)
		}
	}
	if len(stale) > 0 {
		s.mcp.RemoveResources(stale...)
	}

	for p := range want {
		if s.resources.files[p] {
			continue
		}
		s.registerFileResource(p)
		s.resources.files[p] = true
		added = append(added, p)
	}
	s.logger.Debug("mcp_resources_synced",
		"added", len(added),
		"removed", len(stale),
		"total", len(s.resources.files))
}

// ResourceURIs returns the registered file resource URIs in sorted order.
func (s *Server) ResourceURIs() []string {
	s.resources.mu.Lock()
	defer s.resources.mu.Unlock()
	uris := make([]string, 0, len(s.resources.files))
	for p := range s.resources.files {
		uris = append(uris, FileURI(p))
	}
	sort.Strings(uris)
	return uris
}

func (s *Server) registerFileResource(displayPath string) {
	s.mcp.AddResource(
		&mcp.Resource{
			Name:        path.Base(displayPath),
			URI:         FileURI(displayPath),
			Description: displayPath,
			MIMEType:    MimeTypeForPath(displayPath),
		},
		func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return s.readFile(ctx, displayPath)
		},
	)
}

// ReadResource reads a file or telemetry resource by URI.
func (s *Server) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	switch {
	case uri == URITelemetrySummary:
		return s.readTelemetrySummary(ctx)
	case uri == URITelemetryRecent:
		return s.readTelemetryRecent()
	case strings.HasPrefix(uri, "file://"):
		return s.readFile(ctx, strings.TrimPrefix(uri, "file://"))
	default:
		return nil, NewResourceNotFoundError(uri)
	}
}

// readFile serves an indexed file from disk.
func (s *Server) readFile(_ context.Context, displayPath string) (*mcp.ReadResourceResult, error) {
	if !isValidPath(displayPath) {
		return nil, NewInvalidParamsError(fmt.Sprintf("invalid path: %s", displayPath))
	}
	if !s.isIndexed(displayPath) {
		return nil, NewResourceNotFoundError(FileURI(displayPath))
	}

	fullPath, ok := s.resolve(displayPath)
	if !ok {
		return nil, NewResourceNotFoundError(FileURI(displayPath))
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &MCPError{
				Code:    ErrCodeFileNotFound,
				Message: fmt.Sprintf("file not found: %s", displayPath),
			}
		}
		return nil, MapError(err)
	}
	if info.Size() > s.opts.MaxResourceSize {
		return nil, &MCPError{
			Code:    ErrCodeFileTooLarge,
			Message: fmt.Sprintf("file too large: %d bytes (max %d)", info.Size(), s.opts.MaxResourceSize),
		}
	}

	content, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, MapError(err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      FileURI(displayPath),
			MIMEType: MimeTypeForPath(displayPath),
			Text:     string(content),
		}},
	}, nil
}

func (s *Server) isIndexed(displayPath string) bool {
	s.resources.mu.Lock()
	defer s.resources.mu.Unlock()
	return s.resources.files[displayPath]
}

// resolve maps a display path to a file under the roots. With several roots
// the first segment names the root.
func (s *Server) resolve(displayPath string) (string, bool) {
	switch len(s.roots) {
	case 0:
		return "", false
	case 1:
		return filepath.Join(s.roots[0], filepath.FromSlash(displayPath)), true
	}
	head, rest, ok := strings.Cut(displayPath, "/")
	if !ok {
		return "", false
	}
	for _, r := range s.roots {
		if filepath.Base(r) == head {
			return filepath.Join(r, filepath.FromSlash(rest)), true
		}
	}
	return "", false
}

// isValidPath rejects empty, absolute and traversing paths.
func isValidPath(p string) bool {
	if p == "" {
		return false
	}
	if filepath.IsAbs(p) || strings.HasPrefix(p, "/") {
		return false
	}
	if len(p) >= 2 && p[1] == ':' {
		return false
	}
	for _, part := range strings.Split(strings.ReplaceAll(p, "\\", "/"), "/") {
		if part == ".." {
			return false
		}
	}
	return true
}

func (s *Server) registerTelemetryResources() {
	if s.opts.Telemetry != nil {
		s.mcp.AddResource(&mcp.Resource{
			Name:        "telemetry_summary",
			URI:         URITelemetrySummary,
			Description: "Request outcomes, error codes, cache hit rate and latency over the last 24 hours",
			MIMEType:    "application/json",
		}, func(ctx context.Context, _ *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return s.readTelemetrySummary(ctx)
		})
	}
	if s.opts.Recent != nil {
		s.mcp.AddResource(&mcp.Resource{
			Name:        "telemetry_recent",
			URI:         URITelemetryRecent,
			Description: "Most recent requests handled by this process, newest first",
			MIMEType:    "application/json",
		}, func(context.Context, *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
			return s.readTelemetryRecent()
		})
	}
}

func (s *Server) readTelemetrySummary(ctx context.Context) (*mcp.ReadResourceResult, error) {
	if s.opts.Telemetry == nil {
		return nil, NewResourceNotFoundError(URITelemetrySummary)
	}
	sum, err := s.opts.Telemetry.Summary(ctx, s.now().Add(-summaryWindow))
	if err != nil {
		return nil, MapError(err)
	}
	return jsonResource(URITelemetrySummary, sum)
}

// recentEvent is the wire form of a recorded event.
type recentEvent struct {
	RequestID  string `json:"request_id"`
	Identity   string `json:"identity_hash"`
	Outcome    string `json:"outcome"`
	Code       string `json:"code,omitempty"`
	FromCache  bool   `json:"from_cache"`
	DurationMs int64  `json:"duration_ms"`
	Sources    int    `json:"sources"`
	At         string `json:"at"`
}

func (s *Server) readTelemetryRecent() (*mcp.ReadResourceResult, error) {
	if s.opts.Recent == nil {
		return nil, NewResourceNotFoundError(URITelemetryRecent)
	}
	events := s.opts.Recent.Events()
	out := make([]recentEvent, 0, len(events))
	for _, e := range events {
		out = append(out, recentEvent{
			RequestID:  e.RequestID,
			Identity:   e.Identity,
			Outcome:    e.Outcome,
			Code:       e.Code,
			FromCache:  e.FromCache,
			DurationMs: e.Duration.Milliseconds(),
			Sources:    e.Sources,
			At:         e.At.UTC().Format(time.RFC3339Nano),
		})
	}
	return jsonResource(URITelemetryRecent, out)
}

func jsonResource(uri string, v any) (*mcp.ReadResourceResult, error) {
	content, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, MapError(err)
	}
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(content),
		}},
	}, nil
}
