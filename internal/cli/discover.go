package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/mkravets/tectonic/internal/cache"
	"github.com/mkravets/tectonic/internal/events"
	"github.com/mkravets/tectonic/internal/fetch"
	"github.com/mkravets/tectonic/internal/llm"
	"github.com/mkravets/tectonic/internal/model"
	"github.com/mkravets/tectonic/internal/pipeline"
	"github.com/mkravets/tectonic/internal/store"
)

var (
	outJSON     string
	outMD       string
	runTimeout  time.Duration
	storePath   string
	noCache     bool
	noFooter    bool
	llmProvider string
	llmModel    string
)

// discoverCmd represents the discover command
var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Run one discovery pass over the configured sources",
	Long: `Discover fetches every configured source, extracts atomic claims,
clusters them, synthesizes candidate systemic-issue patterns with
self-consistency sampling, critiques and cross-validates them, skips
duplicates, and persists the survivors to the knowledge base together
with their decomposed information units.

Sources are configured in ~/.tectonic/config.yaml (see 'tectonic config init').

Example:
  tectonic discover --llm-provider openai --llm-model gpt-4o-mini
  tectonic discover --json run.json --md run.md --timeout 15m`,
	RunE: runDiscover,
}

func init() {
	rootCmd.AddCommand(discoverCmd)

	discoverCmd.Flags().StringVar(&outJSON, "json", "", "output JSON report path")
	discoverCmd.Flags().StringVar(&outMD, "md", "", "output Markdown report path")
	discoverCmd.Flags().DurationVar(&runTimeout, "timeout", 10*time.Minute, "overall run timeout")
	discoverCmd.Flags().StringVar(&storePath, "store", "", "knowledge base directory (default: ~/.tectonic/kb)")
	discoverCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the fetch cache (force fresh fetches)")
	discoverCmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")

	discoverCmd.Flags().StringVar(&llmProvider, "llm-provider", "", "generation provider (openai, anthropic, ollama)")
	discoverCmd.Flags().StringVar(&llmModel, "llm-model", "", "generation model name")
}

func runDiscover(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if storePath != "" {
		cfg.Store.Path = storePath
	}
	if noCache {
		cfg.Cache.Enabled = false
	}
	if llmProvider != "" {
		cfg.LLM.Provider = llmProvider
	}
	if llmModel != "" {
		cfg.LLM.Model = llmModel
	}
	cfg.Output.Verbose = verbose
	cfg.Output.IncludeFooter = !noFooter

	if len(cfg.Sources) == 0 {
		return fmt.Errorf("no sources configured; add sources to %s (see 'tectonic config init')", "~/.tectonic/config.yaml")
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}
	if provider == nil {
		return fmt.Errorf("no generation provider configured; pass --llm-provider or set llm.provider in the config")
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	fetcher, err := buildFetcher(cfg)
	if err != nil {
		return err
	}

	// Sources without an explicit credibility get the domain-tier prior
	for i := range cfg.Sources {
		cfg.Sources[i].Credibility = fetcher.Classifier().Credibility(cfg.Sources[i].Credibility, cfg.Sources[i].URL)
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "Sources: %d\n", len(cfg.Sources))
		fmt.Fprintf(os.Stderr, "Provider: %s/%s\n", cfg.LLM.Provider, cfg.LLM.Model)
		fmt.Fprintf(os.Stderr, "Store: %s\n", cfg.Store.Path)
		fmt.Fprintln(os.Stderr)
	}

	p := pipeline.New(cfg, st, events.NewBus(), provider, fetcher)

	report, err := p.Discover(ctx)
	if err != nil {
		return fmt.Errorf("discover failed: %w", err)
	}

	patterns, err := p.PersistedPatterns(report)
	if err != nil {
		return fmt.Errorf("load patterns: %w", err)
	}

	renderer := pipeline.NewRenderer(cfg.Output.IncludeFooter)
	if outJSON != "" {
		if err := renderer.RenderJSON(report, outJSON); err != nil {
			return fmt.Errorf("render JSON: %w", err)
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "Wrote JSON: %s\n", outJSON)
		}
	}
	if outMD != "" {
		if err := renderer.RenderMarkdown(report, patterns, outMD); err != nil {
			return fmt.Errorf("render markdown: %w", err)
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "Wrote Markdown: %s\n", outMD)
		}
	}

	renderer.RenderSummary(os.Stdout, report)
	return nil
}

// buildProvider assembles the rate-limited generation provider, or nil when
// generation is not configured
func buildProvider(cfg *model.Config) (llm.Provider, error) {
	if cfg.LLM.Provider == "" {
		return nil, nil
	}
	if err := applyProviderEnv(cfg); err != nil {
		return nil, err
	}
	inner, err := llm.NewProvider(llm.ConfigFromModel(cfg.LLM, cfg.HTTP))
	if err != nil {
		return nil, fmt.Errorf("initialize provider: %w", err)
	}
	if inner == nil {
		return nil, nil
	}
	return llm.NewThrottled(inner, cfg.LLM.RequestsPerSecond, cfg.LLM.Burst), nil
}

func openStore(cfg *model.Config) (*store.Store, error) {
	storeCfg := store.DefaultConfig(cfg.Store.Path)
	if verbose {
		storeCfg.Logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	}
	return store.Open(storeCfg)
}

func buildFetcher(cfg *model.Config) (*fetch.Fetcher, error) {
	opts := fetch.Options{
		Timeout:           cfg.HTTP.Timeout,
		UserAgent:         cfg.HTTP.UserAgent,
		MaxBodyBytes:      cfg.HTTP.MaxBodyBytes,
		MaxItems:          cfg.HTTP.MaxItems,
		RequestsPerSecond: cfg.Concurrency.RequestsPerSecond,
		Burst:             cfg.Concurrency.Burst,
		HTTPProxy:         cfg.HTTP.HTTPProxy,
		HTTPSProxy:        cfg.HTTP.HTTPSProxy,
		NoProxy:           cfg.HTTP.NoProxy,
	}
	if cfg.Cache.Enabled {
		dir, err := expandPath(cfg.Cache.Dir)
		if err != nil {
			return nil, err
		}
		opts.Cache = cache.NewLayeredCache(cfg.Cache.MemoryTTL, dir, cfg.Cache.DiskTTL)
		opts.CacheTTL = cfg.Cache.DiskTTL
	}
	return fetch.New(opts), nil
}

// expandPath resolves a leading ~/ in a configured path
func expandPath(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
