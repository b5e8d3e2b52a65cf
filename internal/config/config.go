// Package config loads codechat configuration.
//
// Values are applied in order of increasing precedence:
//  1. Hardcoded defaults (NewConfig)
//  2. User config (~/.config/codechat/config.yaml)
//  3. Project config (.codechat.yaml in the indexed root)
//  4. Environment variables (CODECHAT_*)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete codechat configuration.
type Config struct {
	Version   int             `yaml:"version" json:"version"`
	Index     IndexConfig     `yaml:"index" json:"index"`
	Retrieval RetrievalConfig `yaml:"retrieval" json:"retrieval"`
	Cache     CacheConfig     `yaml:"cache" json:"cache"`
	RateLimit RateLimitConfig `yaml:"ratelimit" json:"ratelimit"`
	Synthesis SynthesisConfig `yaml:"synthesis" json:"synthesis"`
	Server    ServerConfig    `yaml:"server" json:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry" json:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging" json:"logging"`
}

// IndexConfig configures which files are indexed and how they are chunked.
type IndexConfig struct {
	Roots            []string `yaml:"roots" json:"roots"`
	Extensions       []string `yaml:"extensions" json:"extensions"`
	Exclude          []string `yaml:"exclude" json:"exclude"`
	RespectGitignore bool     `yaml:"respect_gitignore" json:"respect_gitignore"`
	// MaxFileSize is in bytes; larger files are skipped.
	MaxFileSize   int64 `yaml:"max_file_size" json:"max_file_size"`
	ChunkLines    int   `yaml:"chunk_lines" json:"chunk_lines"`
	ChunkOverlap  int   `yaml:"chunk_overlap" json:"chunk_overlap"`
	ChunkMaxChars int   `yaml:"chunk_max_chars" json:"chunk_max_chars"`
	// Workers bounds parallel file chunking (0 = GOMAXPROCS).
	Workers  int      `yaml:"workers" json:"workers"`
	Watch    bool     `yaml:"watch" json:"watch"`
	Debounce Duration `yaml:"debounce" json:"debounce"`
}

// RetrievalConfig configures ranking and context assembly.
type RetrievalConfig struct {
	// Scorer is one of lexical, bleve, vector.
	Scorer        string `yaml:"scorer" json:"scorer"`
	TopK          int    `yaml:"top_k" json:"top_k"`
	ContextBudget int    `yaml:"context_budget" json:"context_budget"`
	SnippetLength int    `yaml:"snippet_length" json:"snippet_length"`
	// MaxQuestionLength caps accepted question length in characters.
	MaxQuestionLength int  `yaml:"max_question_length" json:"max_question_length"`
	Sanitize          bool `yaml:"sanitize" json:"sanitize"`
}

// CacheConfig configures the response cache.
type CacheConfig struct {
	TTL           Duration `yaml:"ttl" json:"ttl"`
	Capacity      int      `yaml:"capacity" json:"capacity"`
	SweepInterval Duration `yaml:"sweep_interval" json:"sweep_interval"`
}

// LimitConfig describes one fixed-window limiter.
type LimitConfig struct {
	PermitLimit int      `yaml:"permit_limit" json:"permit_limit"`
	Window      Duration `yaml:"window" json:"window"`
	QueueLimit  int      `yaml:"queue_limit" json:"queue_limit"`
}

// MaxQueueWait is the longest a request can wait in this limiter's queue.
// Each window admits up to PermitLimit queued requests, so a full queue
// drains in ceil(QueueLimit/PermitLimit) windows.
func (l LimitConfig) MaxQueueWait() time.Duration {
	if l.QueueLimit <= 0 || l.PermitLimit <= 0 {
		return 0
	}
	windows := (l.QueueLimit + l.PermitLimit - 1) / l.PermitLimit
	return time.Duration(windows) * l.Window.D()
}

// RateLimitConfig configures admission control.
type RateLimitConfig struct {
	Enabled bool        `yaml:"enabled" json:"enabled"`
	Chat    LimitConfig `yaml:"chat" json:"chat"`
	Global  LimitConfig `yaml:"global" json:"global"`
}

// SynthesisConfig configures the answer generation collaborator.
type SynthesisConfig struct {
	// Provider is ollama or extractive (offline, no model).
	Provider     string   `yaml:"provider" json:"provider"`
	Host         string   `yaml:"host" json:"host"`
	Model        string   `yaml:"model" json:"model"`
	Timeout      Duration `yaml:"timeout" json:"timeout"`
	MaxFailures  int      `yaml:"max_failures" json:"max_failures"`
	ResetTimeout Duration `yaml:"reset_timeout" json:"reset_timeout"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr        string   `yaml:"addr" json:"addr"`
	ReadTimeout Duration `yaml:"read_timeout" json:"read_timeout"`
	// WriteTimeout of zero is derived from the longest /ask; see
	// Config.EffectiveWriteTimeout.
	WriteTimeout    Duration `yaml:"write_timeout" json:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	// TrustProxy uses X-Forwarded-For for client identity.
	TrustProxy bool `yaml:"trust_proxy" json:"trust_proxy"`
}

// TelemetryConfig configures the request metrics store.
type TelemetryConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Path    string `yaml:"path" json:"path"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	File      string `yaml:"file" json:"file"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
	Stderr    bool   `yaml:"stderr" json:"stderr"`
}

// DefaultExtensions are the source file types of the indexed application.
var DefaultExtensions = []string{".cs", ".ts", ".tsx", ".js", ".html", ".css", ".json", ".sql", ".go", ".py", ".md"}

// defaultExcludePatterns are always excluded from indexing.
var defaultExcludePatterns = []string{
	"bin/",
	"obj/",
	"node_modules/",
	"**/wwwroot/lib/",
	"dist/",
	".git/",
	".vs/",
	".vscode/",
	".idea/",
	"Archive/",
	"*.min.js",
	"*.min.css",
	"package-lock.json",
	".codechat/",
}

// NewConfig returns the built-in defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Index: IndexConfig{
			Roots:            []string{"."},
			Extensions:       slices.Clone(DefaultExtensions),
			Exclude:          slices.Clone(defaultExcludePatterns),
			RespectGitignore: true,
			MaxFileSize:      500 * 1024,
			ChunkLines:       60,
			ChunkOverlap:     10,
			ChunkMaxChars:    4000,
			Watch:            false,
			Debounce:         Duration(2 * time.Second),
		},
		Retrieval: RetrievalConfig{
			Scorer:            "lexical",
			TopK:              5,
			ContextBudget:     12000,
			SnippetLength:     500,
			MaxQuestionLength: 1000,
			Sanitize:          true,
		},
		Cache: CacheConfig{
			TTL:           Duration(time.Hour),
			Capacity:      1000,
			SweepInterval: Duration(5 * time.Minute),
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			Chat:    LimitConfig{PermitLimit: 10, Window: Duration(time.Minute), QueueLimit: 2},
			Global:  LimitConfig{PermitLimit: 100, Window: Duration(time.Minute), QueueLimit: 0},
		},
		Synthesis: SynthesisConfig{
			Provider:     "ollama",
			Host:         "http://localhost:11434",
			Model:        "qwen3:4b",
			Timeout:      Duration(60 * time.Second),
			MaxFailures:  5,
			ResetTimeout: Duration(30 * time.Second),
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8080",
			ReadTimeout:     Duration(15 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Telemetry: TelemetryConfig{
			Enabled: true,
			Path:    filepath.Join(DataDir(), "telemetry.db"),
		},
		Logging: LoggingConfig{
			Level:     "info",
			File:      filepath.Join(DataDir(), "logs", "server.log"),
			MaxSizeMB: 10,
			MaxFiles:  5,
			Stderr:    true,
		},
	}
}

// WriteMargin is the headroom between the longest /ask and the server
// write deadline, left for encoding and writing the response.
const WriteMargin = 15 * time.Second

// MaxQueueWait is the longest an /ask can wait for admission. Requests pass
// the chat limiter and then the global one.
func (r RateLimitConfig) MaxQueueWait() time.Duration {
	if !r.Enabled {
		return 0
	}
	return r.Chat.MaxQueueWait() + r.Global.MaxQueueWait()
}

// AskBudget is the longest an /ask can take before its response is written:
// queued admission followed by a synthesis that runs to its timeout.
func (c *Config) AskBudget() time.Duration {
	return c.RateLimit.MaxQueueWait() + c.Synthesis.Timeout.D()
}

// EffectiveWriteTimeout returns server.write_timeout, or AskBudget plus
// WriteMargin when it is unset.
func (c *Config) EffectiveWriteTimeout() time.Duration {
	if c.Server.WriteTimeout > 0 {
		return c.Server.WriteTimeout.D()
	}
	return c.AskBudget() + WriteMargin
}

// DataDir returns ~/.codechat, or a temp directory fallback.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".codechat")
	}
	return filepath.Join(home, ".codechat")
}

// GetUserConfigPath returns the path to the user configuration file.
// Respects XDG_CONFIG_HOME.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "codechat", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "codechat", "config.yaml")
	}
	return filepath.Join(home, ".config", "codechat", "config.yaml")
}

// ProjectConfigName is the per-project config file name.
const ProjectConfigName = ".codechat.yaml"

// Load loads configuration for the project rooted at dir.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if path := GetUserConfigPath(); fileExists(path) {
		if err := cfg.loadYAML(path); err != nil {
			return nil, fmt.Errorf("failed to load user config: %w", err)
		}
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFile loads defaults overlaid with a single explicit file, then env.
func LoadFile(path string) (*Config, error) {
	cfg := NewConfig()
	if err := cfg.loadYAML(path); err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadFromFile loads .codechat.yaml or .codechat.yml from dir if present.
func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{ProjectConfigName, ".codechat.yml"} {
		path := filepath.Join(dir, name)
		if fileExists(path) {
			return c.loadYAML(path)
		}
	}
	return nil
}

// loadYAML decodes path over the current values. Keys absent from the file
// keep their current value; exclude patterns extend the defaults instead of
// replacing them.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	exclude := c.Index.Exclude
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.Index.Exclude = mergeUnique(exclude, c.Index.Exclude)
	return nil
}

func mergeUnique(base, extra []string) []string {
	out := slices.Clone(base)
	for _, p := range extra {
		if !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	return out
}

// applyEnvOverrides applies CODECHAT_* environment variables.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("CODECHAT_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("CODECHAT_ROOTS"); v != "" {
		var roots []string
		for _, r := range strings.Split(v, ",") {
			if r = strings.TrimSpace(r); r != "" {
				roots = append(roots, r)
			}
		}
		if len(roots) > 0 {
			c.Index.Roots = roots
		}
	}
	if v := os.Getenv("CODECHAT_SCORER"); v != "" {
		c.Retrieval.Scorer = strings.ToLower(v)
	}
	if v := os.Getenv("CODECHAT_TOP_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Retrieval.TopK = k
		}
	}
	if v := os.Getenv("CODECHAT_OLLAMA_HOST"); v != "" {
		c.Synthesis.Host = v
	}
	if v := os.Getenv("CODECHAT_MODEL"); v != "" {
		c.Synthesis.Model = v
	}
	if v := os.Getenv("CODECHAT_PROVIDER"); v != "" {
		c.Synthesis.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("CODECHAT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CODECHAT_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Cache.TTL = Duration(d)
		}
	}
}

// Validate checks the configuration for values no component can run with.
func (c *Config) Validate() error {
	if len(c.Index.Roots) == 0 {
		return fmt.Errorf("index.roots must not be empty")
	}
	if c.Index.ChunkLines <= 0 {
		return fmt.Errorf("index.chunk_lines must be positive, got %d", c.Index.ChunkLines)
	}
	if c.Index.ChunkOverlap < 0 || c.Index.ChunkOverlap >= c.Index.ChunkLines {
		return fmt.Errorf("index.chunk_overlap must be in [0, chunk_lines), got %d", c.Index.ChunkOverlap)
	}
	if c.Index.MaxFileSize < 0 {
		return fmt.Errorf("index.max_file_size must be non-negative, got %d", c.Index.MaxFileSize)
	}

	validScorers := map[string]bool{"lexical": true, "bleve": true, "vector": true}
	if !validScorers[strings.ToLower(c.Retrieval.Scorer)] {
		return fmt.Errorf("retrieval.scorer must be 'lexical', 'bleve', or 'vector', got %s", c.Retrieval.Scorer)
	}
	if c.Retrieval.TopK < 0 {
		return fmt.Errorf("retrieval.top_k must be non-negative, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.ContextBudget <= 0 {
		return fmt.Errorf("retrieval.context_budget must be positive, got %d", c.Retrieval.ContextBudget)
	}
	if c.Retrieval.MaxQuestionLength < 3 {
		return fmt.Errorf("retrieval.max_question_length must be at least 3, got %d", c.Retrieval.MaxQuestionLength)
	}

	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("cache.capacity must be positive, got %d", c.Cache.Capacity)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive, got %s", c.Cache.TTL)
	}

	for name, l := range map[string]LimitConfig{"chat": c.RateLimit.Chat, "global": c.RateLimit.Global} {
		if l.PermitLimit <= 0 || l.Window <= 0 || l.QueueLimit < 0 {
			return fmt.Errorf("ratelimit.%s needs positive permit_limit and window and non-negative queue_limit", name)
		}
	}

	validProviders := map[string]bool{"ollama": true, "extractive": true}
	if !validProviders[strings.ToLower(c.Synthesis.Provider)] {
		return fmt.Errorf("synthesis.provider must be 'ollama' or 'extractive', got %s", c.Synthesis.Provider)
	}
	if c.Synthesis.Timeout <= 0 {
		return fmt.Errorf("synthesis.timeout must be positive, got %s", c.Synthesis.Timeout)
	}

	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server.write_timeout must be non-negative, got %s", c.Server.WriteTimeout)
	}
	if wt := c.Server.WriteTimeout.D(); wt > 0 && wt < c.AskBudget()+WriteMargin {
		return fmt.Errorf("server.write_timeout %s is shorter than the longest /ask (%s queue wait + %s synthesis.timeout + %s margin); raise it or leave it unset",
			wt, c.RateLimit.MaxQueueWait(), c.Synthesis.Timeout, WriteMargin)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}
	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
