package common

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/ternarybob/respondeo/internal/interfaces"
)

// LLMProvider selects the chat completion backend
type LLMProvider string

const (
	LLMProviderClaude LLMProvider = "claude"
	LLMProviderGemini LLMProvider = "gemini"
)

// Config represents the application configuration
type Config struct {
	Environment string        `toml:"environment"` // "development" or "production"
	Server      ServerConfig  `toml:"server"`
	Storage     StorageConfig `toml:"storage"`
	Logging     LoggingConfig `toml:"logging"`
	LLM         LLMConfig     `toml:"llm"`
	Agent       AgentConfig   `toml:"agent"`
	Ingest      IngestConfig  `toml:"ingest"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs
}

// LLMConfig selects and configures the model providers
type LLMConfig struct {
	Provider       LLMProvider  `toml:"provider"` // "claude" or "gemini" for chat; embeddings always use Gemini
	EmbedDimension int          `toml:"embed_dimension"`
	Claude         ClaudeConfig `toml:"claude"`
	Gemini         GeminiConfig `toml:"gemini"`
}

type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Temperature float32 `toml:"temperature"`
	Timeout     string  `toml:"timeout"`    // e.g. "2m"
	RateLimit   string  `toml:"rate_limit"` // minimum interval between requests, e.g. "1s"
}

type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`
	ChatModel   string  `toml:"chat_model"`
	EmbedModel  string  `toml:"embed_model"`
	Temperature float32 `toml:"temperature"`
	Timeout     string  `toml:"timeout"`
	RateLimit   string  `toml:"rate_limit"`
}

// AgentConfig configures the query-answering loop
type AgentConfig struct {
	TopKResults          int     `toml:"top_k_results"`
	SimilarityThreshold  float64 `toml:"similarity_threshold"`
	MaxIterations        int     `toml:"max_iterations"`
	EnableSelfReflection bool    `toml:"enable_self_reflection"`
	MinGrounding         float64 `toml:"min_grounding"`    // acceptance minimum, 0-1
	MinCompleteness      float64 `toml:"min_completeness"` // acceptance minimum, 0-1
	MaxSubQueries        int     `toml:"max_sub_queries"`  // multi-query expansion width
	ToolTimeout          string  `toml:"tool_timeout"`      // per tool call
	SynthesisTimeout     string  `toml:"synthesis_timeout"` // per synthesis/reflection call
}

// IngestConfig configures the ingestion pipeline
type IngestConfig struct {
	ChunkSize    int    `toml:"chunk_size"`    // words per chunk
	ChunkOverlap int    `toml:"chunk_overlap"` // words of overlap between chunks
	Schedule     string `toml:"schedule"`      // cron schedule for pending re-embedding
	Limit        int    `toml:"limit"`         // max passages per re-embedding run
}

// NewDefaultConfig returns configuration defaults
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path:           "./data/respondeo",
				ResetOnStartup: false,
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout"},
			TimeFormat: "15:04:05",
		},
		LLM: LLMConfig{
			Provider:       LLMProviderGemini,
			EmbedDimension: 768,
			Claude: ClaudeConfig{
				APIKey:      "", // User must provide API key (ANTHROPIC_API_KEY or config)
				Model:       "claude-sonnet-4-20250514",
				MaxTokens:   4096,
				Temperature: 0.7,
				Timeout:     "2m",
				RateLimit:   "1s",
			},
			Gemini: GeminiConfig{
				APIKey:      "", // User must provide API key (GEMINI_API_KEY or config)
				ChatModel:   "gemini-2.0-flash",
				EmbedModel:  "gemini-embedding-001",
				Temperature: 0.7,
				Timeout:     "2m",
				RateLimit:   "4s", // 15 RPM free tier
			},
		},
		Agent: AgentConfig{
			TopKResults:          5,
			SimilarityThreshold:  0.7,
			MaxIterations:        3,
			EnableSelfReflection: true,
			MinGrounding:         0.7,
			MinCompleteness:      0.6,
			MaxSubQueries:        3,
			ToolTimeout:          "30s",
			SynthesisTimeout:     "90s",
		},
		Ingest: IngestConfig{
			ChunkSize:    300,
			ChunkOverlap: 50,
			Schedule:     "*/5 * * * *", // retry pending embeddings every 5 minutes
			Limit:        50,
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// defaults -> file1 -> file2 -> ... -> env. Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("RESPONDEO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("RESPONDEO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("RESPONDEO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if path := os.Getenv("RESPONDEO_STORAGE_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}
	if level := os.Getenv("RESPONDEO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if provider := os.Getenv("RESPONDEO_LLM_PROVIDER"); provider != "" {
		config.LLM.Provider = LLMProvider(provider)
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		config.LLM.Claude.APIKey = key
	}
	if key := os.Getenv("RESPONDEO_CLAUDE_API_KEY"); key != "" {
		config.LLM.Claude.APIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		config.LLM.Gemini.APIKey = key
	}
	if key := os.Getenv("RESPONDEO_GEMINI_API_KEY"); key != "" {
		config.LLM.Gemini.APIKey = key
	}

	if v := os.Getenv("RESPONDEO_AGENT_MAX_ITERATIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Agent.MaxIterations = n
		}
	}
	if v := os.Getenv("RESPONDEO_AGENT_TOP_K_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.Agent.TopKResults = n
		}
	}
	if v := os.Getenv("RESPONDEO_AGENT_SIMILARITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			config.Agent.SimilarityThreshold = f
		}
	}
	if v := os.Getenv("RESPONDEO_AGENT_ENABLE_SELF_REFLECTION"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			config.Agent.EnableSelfReflection = b
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime behavior.
func (c *Config) Validate() error {
	if c.Agent.MaxIterations < 1 {
		return fmt.Errorf("agent.max_iterations must be >= 1, got %d", c.Agent.MaxIterations)
	}
	if c.Agent.TopKResults < 1 {
		return fmt.Errorf("agent.top_k_results must be >= 1, got %d", c.Agent.TopKResults)
	}
	if c.Agent.SimilarityThreshold < 0 || c.Agent.SimilarityThreshold > 1 {
		return fmt.Errorf("agent.similarity_threshold must be in [0,1], got %v", c.Agent.SimilarityThreshold)
	}
	if c.Agent.MinGrounding < 0 || c.Agent.MinGrounding > 1 {
		return fmt.Errorf("agent.min_grounding must be in [0,1], got %v", c.Agent.MinGrounding)
	}
	if c.Agent.MinCompleteness < 0 || c.Agent.MinCompleteness > 1 {
		return fmt.Errorf("agent.min_completeness must be in [0,1], got %v", c.Agent.MinCompleteness)
	}
	if c.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("ingest.chunk_size must be > 0, got %d", c.Ingest.ChunkSize)
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("ingest.chunk_overlap must be in [0, chunk_size), got %d", c.Ingest.ChunkOverlap)
	}
	if c.LLM.Provider != LLMProviderClaude && c.LLM.Provider != LLMProviderGemini {
		return fmt.Errorf("llm.provider must be 'claude' or 'gemini', got %q", c.LLM.Provider)
	}
	for _, d := range []struct{ name, val string }{
		{"agent.tool_timeout", c.Agent.ToolTimeout},
		{"agent.synthesis_timeout", c.Agent.SynthesisTimeout},
	} {
		if _, err := time.ParseDuration(d.val); err != nil {
			return fmt.Errorf("invalid duration for %s: %w", d.name, err)
		}
	}
	return nil
}

// ToolTimeoutDuration returns the parsed per-tool-call timeout
func (c *AgentConfig) ToolTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.ToolTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// SynthesisTimeoutDuration returns the parsed per-synthesis-call timeout
func (c *AgentConfig) SynthesisTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.SynthesisTimeout)
	if err != nil || d <= 0 {
		return 90 * time.Second
	}
	return d
}

// ResolveAPIKey resolves an API key with KV-store-first priority:
// KV store -> config/env fallback. kvStorage may be nil.
func ResolveAPIKey(ctx context.Context, kvStorage interfaces.KeyValueStorage, name string, configFallback string) (string, error) {
	if kvStorage != nil {
		if value, err := kvStorage.Get(ctx, name); err == nil && value != "" {
			return value, nil
		}
	}

	if configFallback != "" {
		return configFallback, nil
	}

	return "", fmt.Errorf("API key %q not found in KV store or configuration", name)
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
