package mcp

import (
	"github.com/Aman-CERP/codechat/internal/cache"
	"github.com/Aman-CERP/codechat/internal/chat"
)

// Tool names.
const (
	ToolAsk         = "ask_codebase"
	ToolSearch      = "search_code"
	ToolIndexStatus = "index_status"
)

// AskInput defines the input schema for the ask_codebase tool.
type AskInput struct {
	Question string `json:"question" jsonschema:"a question about the indexed codebase, 3 to 1000 characters"`
}

// SearchInput defines the input schema for the search_code tool.
type SearchInput struct {
	Query string `json:"query" jsonschema:"text to look up in the indexed code"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 5, at most 20"`
}

// SearchOutput defines the output schema for the search_code tool.
type SearchOutput struct {
	Results []chat.Source `json:"results" jsonschema:"matching code snippets, best first"`
}

// IndexStatusInput defines the input schema for the index_status tool.
type IndexStatusInput struct{}

// IndexStatusOutput defines the output schema for the index_status tool.
type IndexStatusOutput struct {
	Project     ProjectInfo     `json:"project"`
	Status      string          `json:"status"`
	Index       IndexInfo       `json:"index"`
	Synthesizer SynthesizerInfo `json:"synthesizer"`
	Cache       cache.Stats     `json:"cache"`
}

// IndexInfo describes the published snapshot.
type IndexInfo struct {
	Files   int    `json:"files"`
	Chunks  int    `json:"chunks"`
	Version string `json:"version"`
	BuiltAt string `json:"built_at,omitempty"`
}

// SynthesizerInfo describes the answer backend.
type SynthesizerInfo struct {
	Name      string `json:"name"`
	Available bool   `json:"available"`
	Circuit   string `json:"circuit,omitempty"`
}

const (
	defaultSearchLimit = 5
	maxSearchLimit     = 20
)
