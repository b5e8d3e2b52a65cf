package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Ollama defaults.
const (
	DefaultHost  = "http://localhost:11434"
	DefaultModel = "qwen3:4b"

	probeTimeout = 2 * time.Second
)

// Ollama generates answers with a local Ollama server.
type Ollama struct {
	host   string
	model  string
	client *http.Client
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// NewOllama creates a client. The request deadline comes from the caller's
// context, so the http.Client has no timeout of its own.
func NewOllama(host, model string) *Ollama {
	if host == "" {
		host = DefaultHost
	}
	if model == "" {
		model = DefaultModel
	}
	return &Ollama{
		host:   strings.TrimRight(host, "/"),
		model:  model,
		client: &http.Client{},
	}
}

// Name implements Synthesizer.
func (o *Ollama) Name() string { return ProviderOllama + ":" + o.model }

// Host returns the server address.
func (o *Ollama) Host() string { return o.host }

// Synthesize implements Synthesizer.
func (o *Ollama) Synthesize(ctx context.Context, question, codeContext string) (Answer, error) {
	raw, err := o.generate(ctx, BuildPrompt(question, codeContext))
	if err != nil {
		return Answer{}, err
	}
	ans := ParseAnswer(raw)
	if ans.Text == "" {
		return Answer{}, fmt.Errorf("empty response from model %s", o.model)
	}
	return ans, nil
}

func (o *Ollama) generate(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Model:   o.model,
		Prompt:  prompt,
		Stream:  false,
		Options: generateOptions{Temperature: 0.2},
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.host+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if genResp.Error != "" {
		return "", fmt.Errorf("ollama: %s", genResp.Error)
	}
	return genResp.Response, nil
}

// Available implements Synthesizer by probing /api/tags.
func (o *Ollama) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	_, err := o.ListModels(ctx)
	return err == nil
}

// ListModels returns the models installed on the server.
func (o *Ollama) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, o.host+"/api/tags", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	models := make([]string, 0, len(tags.Models))
	for _, m := range tags.Models {
		models = append(models, m.Name)
	}
	return models, nil
}

// HasModel reports whether the configured model is installed. Names match
// with or without the ":latest" tag.
func (o *Ollama) HasModel(ctx context.Context) (bool, error) {
	models, err := o.ListModels(ctx)
	if err != nil {
		return false, err
	}
	want := strings.TrimSuffix(o.model, ":latest")
	for _, m := range models {
		if strings.TrimSuffix(m, ":latest") == want {
			return true, nil
		}
	}
	return false, nil
}
