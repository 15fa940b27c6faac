// Package pipeline orchestrates one discovery run: fetch sources, extract and
// cluster claims, synthesize candidate patterns, critique, cross-validate,
// deduplicate, persist, then decompose supporting items into information units
// and validate them against the knowledge base. Partial failure is the normal
// case; stage errors are recorded in the run report instead of aborting.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mkravets/tectonic/internal/dedupe"
	"github.com/mkravets/tectonic/internal/events"
	"github.com/mkravets/tectonic/internal/extract"
	"github.com/mkravets/tectonic/internal/llm"
	"github.com/mkravets/tectonic/internal/model"
	"github.com/mkravets/tectonic/internal/score"
	"github.com/mkravets/tectonic/internal/store"
	"github.com/mkravets/tectonic/internal/synth"
	"github.com/mkravets/tectonic/internal/validate"
	"github.com/mkravets/tectonic/internal/worker"
)

// Pipeline wires the discovery stages together
type Pipeline struct {
	config   *model.Config
	store    *store.Store
	bus      *events.Bus
	provider llm.Provider // nil disables the generation stages

	batcher     *worker.SourceBatcher
	claims      *extract.ClaimExtractor
	clusterer   *extract.Clusterer
	synthesizer *synth.Synthesizer
	critic      *synth.Critic
	briefs      *synth.BriefGenerator
	scorer      *score.CrossValidator
	decomposer  *extract.Decomposer
	kb          *validate.Validator
}

// New creates a pipeline. The fetcher is injected so tests can script source
// content without a network.
func New(cfg *model.Config, st *store.Store, bus *events.Bus, provider llm.Provider, fetcher worker.SourceFetcher) *Pipeline {
	pc := cfg.Pipeline
	return &Pipeline{
		config:      cfg,
		store:       st,
		bus:         bus,
		provider:    provider,
		batcher:     worker.NewSourceBatcher(fetcher, cfg.Concurrency.FetchWorkers),
		claims:      extract.NewClaimExtractor(provider, pc.MaxClaimsPerSource),
		clusterer:   extract.NewClusterer(provider),
		synthesizer: synth.NewSynthesizer(provider, pc.MaxPatterns, pc.Temperature, pc.ConsensusSamples),
		critic:      synth.NewCritic(provider, pc.CritiqueClaimLimit),
		briefs:      synth.NewBriefGenerator(provider, pc.BriefFloor),
		scorer:      score.NewCrossValidator(),
		decomposer:  extract.NewDecomposer(provider, pc.MaxUnitsPerItem),
		kb:          validate.NewValidator(st, provider, pc.MaxComparisons),
	}
}

// fetchedSource pairs a source with the items it produced this run
type fetchedSource struct {
	source model.Source
	items  []model.FetchedItem
}

// Discover runs the complete pipeline over the configured sources.
// The returned report is complete even on partial failure; a non-nil error
// means persistence failed and the run must not be trusted.
func (p *Pipeline) Discover(ctx context.Context) (*model.RunReport, error) {
	report := &model.RunReport{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}

	fetched := p.fetchSources(ctx, report)

	if p.provider == nil {
		report.AddError("extract", "", "no generation provider configured; stopping after fetch")
		p.finish(report)
		return report, nil
	}

	allClaims := p.extractClaims(ctx, fetched, report)
	if len(allClaims) == 0 {
		p.finish(report)
		return report, nil
	}

	clusters, err := p.clusterer.Cluster(ctx, allClaims)
	if err != nil {
		report.AddError("cluster", "", err.Error())
	}
	report.Clusters = len(clusters)

	patterns := p.synthesize(ctx, clusters, report)
	patterns = p.critique(ctx, patterns, allClaims, report)

	validated, signals := p.scorer.Validate(patterns, allClaims)
	report.Signals = append(report.Signals, signals...)

	persisted, err := p.persistPatterns(ctx, validated, report)
	if err != nil {
		return report, err
	}

	p.decomposeAndValidate(ctx, persisted, fetched, report)

	p.finish(report)
	return report, nil
}

// fetchSources runs the fetch batch and persists refreshed source records
func (p *Pipeline) fetchSources(ctx context.Context, report *model.RunReport) []fetchedSource {
	sources := p.loadSources()

	var fetched []fetchedSource
	for _, result := range p.batcher.FetchAll(ctx, sources) {
		if result.Error != nil {
			report.AddError("fetch", result.Source.Name, result.Error.Error())
			continue
		}
		report.SourcesFetched++
		report.ItemsFetched += len(result.Items)
		fetched = append(fetched, fetchedSource{source: result.Source, items: result.Items})

		src := result.Source
		src.UpdatedAt = time.Now().UTC()
		if err := p.store.PutSource(src); err != nil {
			report.AddError("fetch", src.Name, fmt.Sprintf("persist source: %v", err))
		}
	}
	return fetched
}

// loadSources merges configured sources with their stored records so
// feedback-adjusted reliability survives across runs
func (p *Pipeline) loadSources() []model.Source {
	sources := make([]model.Source, 0, len(p.config.Sources))
	for _, src := range p.config.Sources {
		if src.ID == "" {
			src.ID = sourceID(src.Name)
		}
		if stored, err := p.store.GetSource(src.ID); err == nil {
			src.DynamicReliability = stored.DynamicReliability
		}
		sources = append(sources, src)
	}
	return sources
}

// sourceID derives a stable identifier from a source name
func sourceID(name string) string {
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '-'
		}
	}, name)
	return strings.Trim(slug, "-")
}

func (p *Pipeline) extractClaims(ctx context.Context, fetched []fetchedSource, report *model.RunReport) []model.Claim {
	var all []model.Claim
	for _, fs := range fetched {
		if len(fs.items) == 0 {
			continue
		}
		claims, err := p.claims.Extract(ctx, fs.source, fs.items)
		if err != nil {
			report.AddError("extract", fs.source.Name, err.Error())
			continue
		}
		all = append(all, claims...)
	}
	report.ClaimsExtracted = len(all)
	return all
}

func (p *Pipeline) synthesize(ctx context.Context, clusters []model.ClaimCluster, report *model.RunReport) []model.Pattern {
	result, err := p.synthesizer.Synthesize(ctx, clusters)
	if err != nil {
		report.AddError("synthesize", "", err.Error())
		return nil
	}
	for _, sampleErr := range result.SampleErrs {
		report.AddError("synthesize", "", sampleErr.Error())
	}

	report.RawPatterns = result.RawCount
	report.ConsensusPatterns = len(result.Patterns)
	report.Signals = append(report.Signals, model.Signal{
		Type:        model.SignalConsensus,
		Severity:    model.SeverityInfo,
		Description: fmt.Sprintf("%d of %d raw patterns survived self-consistency", len(result.Patterns), result.RawCount),
		Data: map[string]interface{}{
			"raw_patterns":       result.RawCount,
			"consensus_patterns": len(result.Patterns),
			"consensus_reached":  result.Consensus,
		},
	})
	return result.Patterns
}

func (p *Pipeline) critique(ctx context.Context, patterns []model.Pattern, claims []model.Claim, report *model.RunReport) []model.Pattern {
	refined, _, err := p.critic.Refine(ctx, patterns, claims)
	if err != nil {
		// Fail-open: Refine returns the input unchanged on error
		report.AddError("critique", "", err.Error())
	}
	report.RefinedPatterns = len(refined)
	return refined
}

// persistPatterns runs the dedup gate and writes survivors to the store.
// A store write failure fails the run; everything else degrades.
func (p *Pipeline) persistPatterns(ctx context.Context, patterns []model.Pattern, report *model.RunReport) ([]model.Pattern, error) {
	recent, err := p.store.RecentPatterns(p.config.Pipeline.DedupeWindow)
	if err != nil {
		return nil, fmt.Errorf("load recent patterns: %w", err)
	}
	dedup := dedupe.NewDeduplicator(recent, p.config.Pipeline.DedupeThreshold)

	var persisted []model.Pattern
	for _, pattern := range patterns {
		if dup, _ := dedup.IsDuplicate(pattern); dup {
			report.Duplicates++
			if err := p.store.IncrDedupeSkips(); err != nil {
				report.AddError("dedupe", pattern.Title, err.Error())
			}
			continue
		}

		now := time.Now().UTC()
		pattern.CreatedAt = now
		pattern.UpdatedAt = now

		if brief, err := p.briefs.Generate(ctx, pattern); err != nil {
			report.AddError("brief", pattern.Title, err.Error())
		} else {
			pattern.Brief = brief
		}

		if err := p.store.CreatePattern(pattern); err != nil {
			return persisted, fmt.Errorf("persist pattern %q: %w", pattern.Title, err)
		}
		persisted = append(persisted, pattern)
		report.PersistedPatterns++
		report.PersistedIDs = append(report.PersistedIDs, pattern.ID)
		p.bus.Publish(events.TopicPatternCreated, pattern)
	}
	return persisted, nil
}

// decomposeAndValidate breaks each persisted pattern's supporting items into
// information units and validates them against the knowledge base
func (p *Pipeline) decomposeAndValidate(ctx context.Context, patterns []model.Pattern, fetched []fetchedSource, report *model.RunReport) {
	type itemRef struct {
		item   model.FetchedItem
		source model.Source
	}
	byURL := make(map[string]itemRef)
	for _, fs := range fetched {
		for _, item := range fs.items {
			byURL[item.URL] = itemRef{item: item, source: fs.source}
		}
	}

	for _, pattern := range patterns {
		seen := make(map[string]bool)
		for _, ref := range pattern.Sources {
			if ref.ItemURL == "" || seen[ref.ItemURL] {
				continue
			}
			seen[ref.ItemURL] = true
			ir, ok := byURL[ref.ItemURL]
			if !ok {
				continue
			}

			units, err := p.decomposer.Decompose(ctx, pattern.ID, ir.item, ir.source)
			if err != nil {
				report.AddError("decompose", ref.ItemURL, err.Error())
				continue
			}
			report.UnitsExtracted += len(units)

			for _, unit := range units {
				if _, err := p.kb.ValidateUnit(ctx, unit); err != nil {
					report.AddError("kb_validate", unit.ID, err.Error())
					continue
				}
				report.UnitsValidated++
			}
		}
		p.bus.Publish(events.TopicIssueCreated, pattern.ID)
	}
}

func (p *Pipeline) finish(report *model.RunReport) {
	report.FinishedAt = time.Now().UTC()
	p.bus.Publish(events.TopicRunCompleted, report)
}

// PersistedPatterns loads the full pattern records named by a run report
func (p *Pipeline) PersistedPatterns(report *model.RunReport) ([]model.Pattern, error) {
	patterns := make([]model.Pattern, 0, len(report.PersistedIDs))
	for _, id := range report.PersistedIDs {
		pattern, err := p.store.GetPattern(id)
		if err != nil {
			return nil, fmt.Errorf("load pattern %s: %w", id, err)
		}
		patterns = append(patterns, pattern)
	}
	return patterns, nil
}
