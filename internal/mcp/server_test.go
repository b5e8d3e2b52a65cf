package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/codechat/internal/cache"
	"github.com/Aman-CERP/codechat/internal/chat"
	cerrors "github.com/Aman-CERP/codechat/internal/errors"
	"github.com/Aman-CERP/codechat/internal/index"
	"github.com/Aman-CERP/codechat/internal/logging"
)

type fakeService struct {
	askFn    func(ctx context.Context, q chat.Query) (*chat.Response, error)
	searchFn func(ctx context.Context, q string, k int) ([]chat.Source, error)
	health   chat.Health

	lastQuery chat.Query
	lastK     int
}

func (f *fakeService) Ask(ctx context.Context, q chat.Query) (*chat.Response, error) {
	f.lastQuery = q
	if f.askFn != nil {
		return f.askFn(ctx, q)
	}
	return &chat.Response{Answer: "ok", Sources: []chat.Source{}, FollowUpQuestions: []string{}}, nil
}

func (f *fakeService) Search(ctx context.Context, q string, k int) ([]chat.Source, error) {
	f.lastK = k
	if f.searchFn != nil {
		return f.searchFn(ctx, q, k)
	}
	return nil, nil
}

func (f *fakeService) Health(context.Context) chat.Health { return f.health }

type fixedIndex struct{ snap *index.Snapshot }

func (f *fixedIndex) Current() *index.Snapshot { return f.snap }

func snapshotOf(paths ...string) *index.Snapshot {
	chunks := make([]*index.Chunk, 0, len(paths))
	for _, p := range paths {
		chunks = append(chunks, index.NewChunk(p, 1, 3, "public class Grades {}", "csharp"))
	}
	return index.NewSnapshot(chunks, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
}

func newTestServer(t *testing.T, svc *fakeService, opts Options, paths ...string) *Server {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	srv, err := NewServer(svc, &fixedIndex{snap: snapshotOf(paths...)}, opts)
	require.NoError(t, err)
	return srv
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	_, err := NewServer(nil, &fixedIndex{}, Options{})
	assert.Error(t, err)
	_, err = NewServer(&fakeService{}, nil, Options{})
	assert.Error(t, err)
}

func TestServer_Info(t *testing.T) {
	srv := newTestServer(t, &fakeService{}, Options{})
	name, ver := srv.Info()
	assert.Equal(t, "codechat", name)
	assert.NotEmpty(t, ver)
	assert.NotNil(t, srv.MCPServer())
}

func TestCallTool_AskUsesStdioIdentity(t *testing.T) {
	// Given a service that answers
	svc := &fakeService{askFn: func(_ context.Context, q chat.Query) (*chat.Response, error) {
		return &chat.Response{
			Answer:    "Grades are averaged in GradeService.",
			Sources:   []chat.Source{{FileName: "GradeService.cs", FilePath: "src/GradeService.cs", Score: 0.9}},
			RequestID: "req-1",
		}, nil
	}}
	srv := newTestServer(t, svc, Options{})

	// When ask_codebase is called
	got, err := srv.CallTool(context.Background(), ToolAsk, map[string]any{"question": "How are grades averaged?"})

	// Then the answer is returned and the stdio identity is used
	require.NoError(t, err)
	resp, ok := got.(*chat.Response)
	require.True(t, ok)
	assert.Equal(t, "req-1", resp.RequestID)
	assert.Equal(t, DefaultIdentity, svc.lastQuery.Identity)
	assert.Equal(t, "How are grades averaged?", svc.lastQuery.Question)
}

func TestCallTool_AskCustomIdentity(t *testing.T) {
	svc := &fakeService{}
	srv := newTestServer(t, svc, Options{Identity: "mcp:editor"})
	_, err := srv.CallTool(context.Background(), ToolAsk, map[string]any{"question": "where is Main?"})
	require.NoError(t, err)
	assert.Equal(t, "mcp:editor", svc.lastQuery.Identity)
}

func TestCallTool_AskErrors(t *testing.T) {
	cases := []struct {
		name     string
		args     map[string]any
		svcErr   error
		wantCode int
	}{
		{"missing question", map[string]any{}, nil, ErrCodeInvalidParams},
		{"wrong type", map[string]any{"question": 42}, nil, ErrCodeInvalidParams},
		{"validation", map[string]any{"question": "hi"}, cerrors.ValidationError("Question must be at least 3 characters."), ErrCodeInvalidParams},
		{"rate limited", map[string]any{"question": "why?"}, cerrors.RateLimitError(2 * time.Second), ErrCodeRateLimited},
		{"synthesis", map[string]any{"question": "why?"}, cerrors.SynthesisError(errors.New("connection refused")), ErrCodeSynthesisUnavailable},
		{"index empty", map[string]any{"question": "why?"}, cerrors.New(cerrors.CodeIndexEmpty, "Nothing is indexed.", nil), ErrCodeIndexEmpty},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeService{askFn: func(context.Context, chat.Query) (*chat.Response, error) {
				return nil, tc.svcErr
			}}
			srv := newTestServer(t, svc, Options{})

			_, err := srv.CallTool(context.Background(), ToolAsk, tc.args)

			var mcpErr *MCPError
			require.ErrorAs(t, err, &mcpErr)
			assert.Equal(t, tc.wantCode, mcpErr.Code)
			assert.NotContains(t, mcpErr.Message, "connection refused")
		})
	}
}

func TestCallTool_SearchClampsLimit(t *testing.T) {
	cases := []struct {
		limit any
		want  int
	}{
		{nil, defaultSearchLimit},
		{0, defaultSearchLimit},
		{3, 3},
		{500, maxSearchLimit},
	}
	for _, tc := range cases {
		svc := &fakeService{}
		srv := newTestServer(t, svc, Options{})
		args := map[string]any{"query": "GradeService"}
		if tc.limit != nil {
			args["limit"] = tc.limit
		}

		got, err := srv.CallTool(context.Background(), ToolSearch, args)

		require.NoError(t, err)
		out := got.(*SearchOutput)
		assert.NotNil(t, out.Results)
		assert.Equal(t, tc.want, svc.lastK)
	}
}

func TestCallTool_SearchRequiresQuery(t *testing.T) {
	srv := newTestServer(t, &fakeService{}, Options{})
	_, err := srv.CallTool(context.Background(), ToolSearch, map[string]any{"limit": 3})
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeInvalidParams, mcpErr.Code)
}

func TestCallTool_IndexStatus(t *testing.T) {
	// Given a healthy service over a .NET project
	root := t.TempDir()
	writeFile(t, root, "School.sln", "")
	svc := &fakeService{health: chat.Health{
		Status:      chat.StatusHealthy,
		Synthesizer: chat.SynthesizerHealth{Name: "ollama", Available: true, Circuit: "closed"},
		Index:       chat.IndexHealth{Chunks: 12, Files: 4, Version: "abc", BuiltAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		Cache:       cache.Stats{Size: 2, Capacity: 100, Hits: 5},
	}}
	srv := newTestServer(t, svc, Options{Roots: []string{root}})

	// When index_status is called
	got, err := srv.CallTool(context.Background(), ToolIndexStatus, nil)

	// Then health and project information are reported
	require.NoError(t, err)
	out := got.(*IndexStatusOutput)
	assert.Equal(t, "healthy", out.Status)
	assert.Equal(t, "School", out.Project.Name)
	assert.Equal(t, "dotnet", out.Project.Type)
	assert.Equal(t, 4, out.Index.Files)
	assert.Equal(t, "2026-01-02T03:04:05Z", out.Index.BuiltAt)
	assert.Equal(t, "closed", out.Synthesizer.Circuit)
	assert.Equal(t, uint64(5), out.Cache.Hits)

	text := FormatStatus(out)
	assert.Contains(t, text, "4 files, 12 chunks")
	assert.Contains(t, text, "circuit closed")
}

func TestCallTool_UnknownTool(t *testing.T) {
	srv := newTestServer(t, &fakeService{}, Options{})
	_, err := srv.CallTool(context.Background(), "search_docs", nil)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrCodeMethodNotFound, mcpErr.Code)
}

func TestMCPHandlers_ReturnTextContent(t *testing.T) {
	svc := &fakeService{searchFn: func(context.Context, string, int) ([]chat.Source, error) {
		return []chat.Source{{FileName: "Grades.cs", FilePath: "src/Grades.cs", CodeSnippet: "class Grades {}", Score: 1}}, nil
	}}
	srv := newTestServer(t, svc, Options{})

	res, out, err := srv.mcpSearchHandler(context.Background(), nil, SearchInput{Query: "grades"})
	require.NoError(t, err)
	require.Len(t, out.Results, 1)
	require.Len(t, res.Content, 1)

	res, resp, err := srv.mcpAskHandler(context.Background(), nil, AskInput{Question: "what are grades?"})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Answer)
	require.Len(t, res.Content, 1)
}

func TestServe_UnknownTransport(t *testing.T) {
	srv := newTestServer(t, &fakeService{}, Options{})
	err := srv.Serve(context.Background(), "sse")
	assert.ErrorContains(t, err, "unknown transport")
}
