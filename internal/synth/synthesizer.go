// Package synth turns claim clusters into candidate patterns via
// self-consistency sampling, then prunes them with a critique pass.
package synth

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mkravets/tectonic/internal/llm"
	"github.com/mkravets/tectonic/internal/model"
	"github.com/mkravets/tectonic/internal/structured"
)

const defaultSamples = 3

// Synthesizer generates candidate patterns from claim clusters. Independent
// samples at the same temperature are matched by normalized title; only
// patterns recurring in at least two samples survive, with a confidence
// boost per extra agreeing sample.
type Synthesizer struct {
	provider    llm.Provider
	maxPatterns int
	temperature float64
	samples     int
}

// NewSynthesizer creates a new pattern synthesizer
func NewSynthesizer(provider llm.Provider, maxPatterns int, temperature float64, samples int) *Synthesizer {
	if maxPatterns <= 0 {
		maxPatterns = 5
	}
	if temperature <= 0 {
		temperature = 0.7
	}
	if samples <= 0 {
		samples = defaultSamples
	}
	return &Synthesizer{
		provider:    provider,
		maxPatterns: maxPatterns,
		temperature: temperature,
		samples:     samples,
	}
}

type patternsResponse struct {
	Patterns []rawPattern `json:"patterns"`
}

type rawPattern struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Type        string   `json:"type"`
	Domains     []string `json:"domains"`
	Confidence  float64  `json:"confidence"`
}

// Result carries the consensus patterns plus diagnostics about the sampling
type Result struct {
	Patterns   []model.Pattern
	RawCount   int  // Patterns across all samples before consensus
	Consensus  bool // False when no pattern recurred and the first sample was used as-is
	SampleErrs []error
}

// Synthesize runs the consensus sampling. Zero clusters yield zero patterns.
// All samples failing is an error; partial sample failures are recorded and
// consensus proceeds over what succeeded.
func (s *Synthesizer) Synthesize(ctx context.Context, clusters []model.ClaimCluster) (*Result, error) {
	if len(clusters) == 0 {
		return &Result{}, nil
	}

	prompt := buildPatternsPrompt(clusters, s.maxPatterns)

	samples := make([][]model.Pattern, s.samples)
	errs := make([]error, s.samples)

	var wg sync.WaitGroup
	for i := 0; i < s.samples; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			samples[i], errs[i] = s.sample(ctx, prompt)
		}(i)
	}
	wg.Wait()

	var ok [][]model.Pattern
	var sampleErrs []error
	raw := 0
	for i := 0; i < s.samples; i++ {
		if errs[i] != nil {
			sampleErrs = append(sampleErrs, errs[i])
			continue
		}
		ok = append(ok, samples[i])
		raw += len(samples[i])
	}
	if len(ok) == 0 {
		return nil, fmt.Errorf("synthesize: all %d samples failed: %w", s.samples, sampleErrs[0])
	}

	patterns, reached := consensus(ok)
	return &Result{
		Patterns:   patterns,
		RawCount:   raw,
		Consensus:  reached,
		SampleErrs: sampleErrs,
	}, nil
}

func (s *Synthesizer) sample(ctx context.Context, prompt string) ([]model.Pattern, error) {
	resp, err := s.provider.Generate(ctx, llm.GenerateRequest{
		Prompt:      prompt,
		Temperature: s.temperature,
	})
	if err != nil {
		return nil, err
	}

	parsed, err := structured.Decode[patternsResponse](resp.Text)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	var patterns []model.Pattern
	for _, rp := range parsed.Patterns {
		if len(patterns) >= s.maxPatterns {
			break
		}
		title := strings.TrimSpace(rp.Title)
		if title == "" {
			continue
		}
		patterns = append(patterns, model.Pattern{
			ID:          uuid.NewString(),
			Title:       title,
			Description: strings.TrimSpace(rp.Description),
			Type:        model.NormalizePatternType(model.PatternType(strings.ToLower(rp.Type))),
			Domains:     rp.Domains,
			Confidence:  model.Clamp01(rp.Confidence),
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	return patterns, nil
}

// consensus keeps patterns whose normalized title recurs in at least two
// samples, boosting confidence by 0.1 per extra agreeing sample and keeping
// the higher-confidence variant. With no recurring pattern the first sample
// passes through unchanged.
func consensus(samples [][]model.Pattern) ([]model.Pattern, bool) {
	type tally struct {
		pattern model.Pattern
		count   int
		order   int
	}
	seen := make(map[string]*tally)
	order := 0

	for _, sample := range samples {
		counted := make(map[string]bool) // A title counts once per sample
		for _, p := range sample {
			key := normalizeTitleKey(p.Title)
			if key == "" || counted[key] {
				continue
			}
			counted[key] = true

			t, ok := seen[key]
			if !ok {
				seen[key] = &tally{pattern: p, count: 1, order: order}
				order++
				continue
			}
			t.count++
			if p.Confidence > t.pattern.Confidence {
				t.pattern = p
			}
		}
	}

	var agreed []*tally
	for _, t := range seen {
		if t.count >= 2 {
			agreed = append(agreed, t)
		}
	}
	if len(agreed) == 0 {
		return samples[0], false
	}

	sort.Slice(agreed, func(i, j int) bool { return agreed[i].order < agreed[j].order })

	out := make([]model.Pattern, 0, len(agreed))
	for _, t := range agreed {
		p := t.pattern
		p.Confidence = model.Clamp01(p.Confidence + 0.1*float64(t.count-1))
		out = append(out, p)
	}
	return out, true
}

// normalizeTitleKey lowercases and strips non-alphanumerics so trivially
// reworded titles match across samples
func normalizeTitleKey(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func buildPatternsPrompt(clusters []model.ClaimCluster, maxPatterns int) string {
	var b strings.Builder

	b.WriteString(`Identify systemic issue patterns supported by these claim clusters. A pattern names a recurring structural problem, not a one-off event.

Pattern types:
- policy_gap: rules missing or outdated
- structural_inefficiency: process wastes resources by design
- feedback_loop: self-reinforcing dynamic
- information_asymmetry: one party systematically knows more
- coordination_failure: actors fail to align
- other

Clusters:
`)
	for i, cluster := range clusters {
		fmt.Fprintf(&b, "\nCluster %d: %s (%d claims, %d sources)\n", i, cluster.Theme, len(cluster.Claims), cluster.SourceDiversity)
		for _, claim := range cluster.Claims {
			fmt.Fprintf(&b, "- [%s] %s\n", claim.Source.SourceName, claim.Statement)
		}
	}

	fmt.Fprintf(&b, `
Return a JSON object:
{"patterns": [{"title": "...", "description": "...", "type": "policy_gap", "domains": ["housing"], "confidence": 0.7}]}

Rules:
- At most %d patterns.
- "confidence" reflects how strongly the clusters support the pattern (0-1).
- Only propose patterns the claims actually support.
`, maxPatterns)

	return b.String()
}
