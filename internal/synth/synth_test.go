package synth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "github.com/Aman-CERP/codechat/internal/errors"
)

const sampleContext = "[src/Models/Grades.cs:10-50]\npublic string Classify(double average)\n{\n    return average >= 8.5 ? \"Excellent\" : \"Good\";\n}\n\n" +
	"[src/Services/GradeService.cs:1-20]\npublic class GradeService\n{\n}\n\n"

func TestParseAnswer(t *testing.T) {
	raw := "<think>internal notes</think>\nAnswer: Classification uses the average score.\n\n" +
		"FOLLOW_UP:\n1. How is the average computed?\n- short\n* Where are grades stored in the database?\nWhich roles can edit grades?\nA fourth question that is dropped?"

	ans := ParseAnswer(raw)

	assert.Equal(t, "Classification uses the average score.", ans.Text)
	assert.Equal(t, []string{
		"How is the average computed?",
		"Where are grades stored in the database?",
		"Which roles can edit grades?",
	}, ans.FollowUps)
}

func TestParseAnswer_NoFollowUps(t *testing.T) {
	ans := ParseAnswer("  Just an answer.  ")
	assert.Equal(t, "Just an answer.", ans.Text)
	assert.NotNil(t, ans.FollowUps)
	assert.Empty(t, ans.FollowUps)
}

func TestBuildPrompt(t *testing.T) {
	p := BuildPrompt("How is classification calculated?", sampleContext)
	assert.Contains(t, p, "How is classification calculated?")
	assert.Contains(t, p, "[src/Models/Grades.cs:10-50]")
	assert.Contains(t, p, "FOLLOW_UP:")

	empty := BuildPrompt("q", "")
	assert.Contains(t, empty, "no matching code")
}

func newOllamaServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestOllama_Synthesize(t *testing.T) {
	// Given an Ollama server that answers with a follow-up section
	var got generateRequest
	srv := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_ = json.NewEncoder(w).Encode(generateResponse{
			Response: "It averages the scores.\nFOLLOW_UP:\nWhat is the passing threshold?",
			Done:     true,
		})
	})

	// When synthesizing
	o := NewOllama(srv.URL, "test-model")
	ans, err := o.Synthesize(context.Background(), "How is classification calculated?", sampleContext)

	// Then the request carries the prompt and the answer is parsed
	require.NoError(t, err)
	assert.Equal(t, "test-model", got.Model)
	assert.False(t, got.Stream)
	assert.Contains(t, got.Prompt, "Grades.cs")
	assert.Equal(t, "It averages the scores.", ans.Text)
	assert.Equal(t, []string{"What is the passing threshold?"}, ans.FollowUps)
}

func TestOllama_Errors(t *testing.T) {
	t.Run("status", func(t *testing.T) {
		srv := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "model not found", http.StatusNotFound)
		})
		_, err := NewOllama(srv.URL, "m").Synthesize(context.Background(), "q", "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "404")
	})

	t.Run("empty answer", func(t *testing.T) {
		srv := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(generateResponse{Response: "  ", Done: true})
		})
		_, err := NewOllama(srv.URL, "m").Synthesize(context.Background(), "q", "")
		assert.Error(t, err)
	})

	t.Run("unreachable", func(t *testing.T) {
		_, err := NewOllama("http://127.0.0.1:1", "m").Synthesize(context.Background(), "q", "")
		assert.Error(t, err)
	})
}

func TestOllama_AvailableAndModels(t *testing.T) {
	srv := newOllamaServer(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		_, _ = w.Write([]byte(`{"models":[{"name":"qwen3:4b"},{"name":"llama3:latest"}]}`))
	})
	ctx := context.Background()

	assert.True(t, NewOllama(srv.URL, "qwen3:4b").Available(ctx))

	has, err := NewOllama(srv.URL, "llama3").HasModel(ctx)
	require.NoError(t, err)
	assert.True(t, has)

	has, err = NewOllama(srv.URL, "mistral").HasModel(ctx)
	require.NoError(t, err)
	assert.False(t, has)

	assert.False(t, NewOllama("http://127.0.0.1:1", "m").Available(ctx))
}

func TestExtractive(t *testing.T) {
	ans, err := NewExtractive().Synthesize(context.Background(), "How is classification calculated?", sampleContext)
	require.NoError(t, err)

	assert.Contains(t, ans.Text, "[src/Models/Grades.cs:10-50]")
	assert.Contains(t, ans.Text, "Classify(double average)")
	assert.Equal(t, []string{"What else uses Grades.cs?", "What else uses GradeService.cs?"}, ans.FollowUps)

	empty, err := NewExtractive().Synthesize(context.Background(), "q", "")
	require.NoError(t, err)
	assert.NotEmpty(t, empty.Text)
	assert.Empty(t, empty.FollowUps)
}

func TestNew(t *testing.T) {
	s, err := New(Options{Provider: "extractive"})
	require.NoError(t, err)
	assert.Equal(t, ProviderExtractive, s.Name())

	s, err = New(Options{})
	require.NoError(t, err)
	assert.Equal(t, "ollama:"+DefaultModel, s.Name())

	_, err = New(Options{Provider: "gemini"})
	assert.Error(t, err)
}

type funcSynth struct {
	calls atomic.Int32
	fn    func(ctx context.Context) (Answer, error)
}

func (f *funcSynth) Name() string                   { return "func" }
func (f *funcSynth) Available(context.Context) bool { return true }
func (f *funcSynth) Synthesize(ctx context.Context, _, _ string) (Answer, error) {
	f.calls.Add(1)
	return f.fn(ctx)
}

func blockUntilDone(ctx context.Context) (Answer, error) {
	<-ctx.Done()
	return Answer{}, ctx.Err()
}

func TestGuarded_TimesOut(t *testing.T) {
	inner := &funcSynth{fn: blockUntilDone}
	g := NewGuarded(inner, 20*time.Millisecond, nil)

	start := time.Now()
	_, err := g.Synthesize(context.Background(), "q", "")

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 1, g.Breaker().Failures())
}

func TestGuarded_CallerCancellationDoesNotTrip(t *testing.T) {
	inner := &funcSynth{fn: blockUntilDone}
	g := NewGuarded(inner, time.Minute, cerrors.NewCircuitBreaker("t", cerrors.WithMaxFailures(1)))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := g.Synthesize(ctx, "q", "")

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, cerrors.StateClosed, g.Breaker().State())
}

func TestGuarded_OpensAfterFailuresAndNeverRetries(t *testing.T) {
	boom := errors.New("boom")
	inner := &funcSynth{fn: func(context.Context) (Answer, error) { return Answer{}, boom }}
	g := NewGuarded(inner, time.Second, cerrors.NewCircuitBreaker("t", cerrors.WithMaxFailures(2), cerrors.WithResetTimeout(time.Hour)))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := g.Synthesize(ctx, "q", "")
		assert.ErrorIs(t, err, boom)
	}
	_, err := g.Synthesize(ctx, "q", "")

	assert.ErrorIs(t, err, cerrors.ErrCircuitOpen)
	assert.Equal(t, int32(2), inner.calls.Load())
	assert.False(t, g.Available(ctx))
}

func TestGuarded_PassesAnswerThrough(t *testing.T) {
	inner := &funcSynth{fn: func(context.Context) (Answer, error) {
		return Answer{Text: "ok", FollowUps: []string{}}, nil
	}}
	g := NewGuarded(inner, 0, nil)

	ans, err := g.Synthesize(context.Background(), "q", "")
	require.NoError(t, err)
	assert.Equal(t, "ok", ans.Text)
	assert.Equal(t, DefaultTimeout, g.Timeout())
	assert.True(t, strings.HasPrefix(g.Name(), "func"))
}
