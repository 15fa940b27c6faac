package model

import "time"

// Config is the complete runtime configuration.
// Hierarchy: CLI flags > TECTONIC_* env vars > ~/.tectonic/config.yaml > defaults.
type Config struct {
	Sources     []Source          `yaml:"sources" json:"sources"`
	LLM         LLMConfig         `yaml:"llm" json:"llm"`
	Pipeline    PipelineConfig    `yaml:"pipeline" json:"pipeline"`
	Store       StoreConfig       `yaml:"store" json:"store"`
	HTTP        HTTPConfig        `yaml:"http" json:"http"`
	Cache       CacheConfig       `yaml:"cache" json:"cache"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" json:"concurrency"`
	Output      OutputConfig      `yaml:"output" json:"output"`
}

// LLMConfig holds generation provider settings
type LLMConfig struct {
	Provider  string        `yaml:"provider" json:"provider"` // openai, anthropic, ollama
	Model     string        `yaml:"model" json:"model"`
	APIKey    string        `yaml:"api_key,omitempty" json:"-"`
	BaseURL   string        `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"` // Per-call wall-clock bound
	MaxTokens int           `yaml:"max_tokens" json:"max_tokens"`

	// RequestsPerSecond throttles generation calls to the provider
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `yaml:"burst" json:"burst"`
}

// PipelineConfig holds the knobs of the synthesis pipeline
type PipelineConfig struct {
	MaxPatterns        int     `yaml:"max_patterns" json:"max_patterns"`                 // Per synthesizer sample
	ConsensusSamples   int     `yaml:"consensus_samples" json:"consensus_samples"`       // Independent samples for self-consistency
	Temperature        float64 `yaml:"temperature" json:"temperature"`                   // Shared non-zero sampling temperature
	MaxClaimsPerSource int     `yaml:"max_claims_per_source" json:"max_claims_per_source"`
	CritiqueClaimLimit int     `yaml:"critique_claim_limit" json:"critique_claim_limit"` // Claims shown to the critique call
	MaxUnitsPerItem    int     `yaml:"max_units_per_item" json:"max_units_per_item"`
	MaxComparisons     int     `yaml:"max_comparisons" json:"max_comparisons"`           // KB validation cap per unit
	DedupeThreshold    float64 `yaml:"dedupe_threshold" json:"dedupe_threshold"`         // Jaccard similarity above which a pattern is a duplicate
	DedupeWindow       int     `yaml:"dedupe_window" json:"dedupe_window"`               // Most-recent stored patterns to compare against
	BriefFloor         float64 `yaml:"brief_floor" json:"brief_floor"`                   // Min confidence for issue brief generation
}

// StoreConfig holds knowledge base settings
type StoreConfig struct {
	Path     string `yaml:"path" json:"path"`
	InMemory bool   `yaml:"in_memory" json:"in_memory"` // Testing only
}

// HTTPConfig holds fetch settings
type HTTPConfig struct {
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
	UserAgent    string        `yaml:"user_agent" json:"user_agent"`
	MaxBodyBytes int64         `yaml:"max_body_bytes" json:"max_body_bytes"`
	MaxItems     int           `yaml:"max_items" json:"max_items"` // Per source per run
	HTTPProxy    string        `yaml:"http_proxy,omitempty" json:"http_proxy,omitempty"`
	HTTPSProxy   string        `yaml:"https_proxy,omitempty" json:"https_proxy,omitempty"`
	NoProxy      string        `yaml:"no_proxy,omitempty" json:"no_proxy,omitempty"`
}

// CacheConfig holds fetch cache settings
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" json:"enabled"`
	Dir       string        `yaml:"dir" json:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" json:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" json:"disk_ttl"`
}

// ConcurrencyConfig holds worker counts and per-domain rate limits
type ConcurrencyConfig struct {
	FetchWorkers      int     `yaml:"fetch_workers" json:"fetch_workers"`
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"` // Per fetched domain
	Burst             int     `yaml:"burst" json:"burst"`
}

// OutputConfig holds report rendering settings
type OutputConfig struct {
	Verbose       bool   `yaml:"verbose" json:"verbose"`
	JSONPath      string `yaml:"json_path,omitempty" json:"json_path,omitempty"`
	MarkdownPath  string `yaml:"markdown_path,omitempty" json:"markdown_path,omitempty"`
	IncludeFooter bool   `yaml:"include_footer" json:"include_footer"`
}

// DefaultConfig returns the built-in defaults
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:          "",
			Model:             "",
			Timeout:           60 * time.Second,
			MaxTokens:         2000,
			RequestsPerSecond: 2,
			Burst:             4,
		},
		Pipeline: PipelineConfig{
			MaxPatterns:        5,
			ConsensusSamples:   3,
			Temperature:        0.7,
			MaxClaimsPerSource: 10,
			CritiqueClaimLimit: 30,
			MaxUnitsPerItem:    15,
			MaxComparisons:     10,
			DedupeThreshold:    0.6,
			DedupeWindow:       100,
			BriefFloor:         0.6,
		},
		Store: StoreConfig{
			Path: "~/.tectonic/kb",
		},
		HTTP: HTTPConfig{
			Timeout:      30 * time.Second,
			UserAgent:    "Tectonic/0.2 (+https://github.com/mkravets/tectonic)",
			MaxBodyBytes: 2_000_000,
			MaxItems:     20,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       "~/.tectonic/cache",
			MemoryTTL: 15 * time.Minute,
			DiskTTL:   6 * time.Hour,
		},
		Concurrency: ConcurrencyConfig{
			FetchWorkers:      4,
			RequestsPerSecond: 1,
			Burst:             3,
		},
		Output: OutputConfig{
			IncludeFooter: true,
		},
	}
}
