package extract

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mkravets/tectonic/internal/llm"
	"github.com/mkravets/tectonic/internal/model"
	"github.com/mkravets/tectonic/internal/structured"
)

// Decomposer breaks one fetched item into atomic information units at the 7
// granularity levels
type Decomposer struct {
	provider llm.Provider
	maxUnits int
}

// NewDecomposer creates a new information decomposer
func NewDecomposer(provider llm.Provider, maxUnits int) *Decomposer {
	if maxUnits <= 0 {
		maxUnits = 15
	}
	return &Decomposer{
		provider: provider,
		maxUnits: maxUnits,
	}
}

type unitsResponse struct {
	Units []rawUnit `json:"units"`
}

type rawUnit struct {
	Statement             string   `json:"statement"`
	Granularity           string   `json:"granularity"`
	GranularityConfidence float64  `json:"granularity_confidence"`
	TemporalScope         string   `json:"temporal_scope"`
	TemporalSpecifics     string   `json:"temporal_specifics"`
	SpatialScope          string   `json:"spatial_scope"`
	SpatialSpecifics      string   `json:"spatial_specifics"`
	Domains               []string `json:"domains"`
	Concepts              []string `json:"concepts"`
	Measurability         string   `json:"measurability"`
	Quantitative          *struct {
		Value float64 `json:"value"`
		Unit  string  `json:"unit"`
	} `json:"quantitative"`
}

// Decompose runs one generation call for the item and returns its units.
// Statements come back with falsifiability and initial confidence already
// derived from the level, the measurability, the scope specificity and the
// source's per-level authority.
func (d *Decomposer) Decompose(ctx context.Context, issueID string, item model.FetchedItem, source model.Source) ([]model.InformationUnit, error) {
	prompt := buildUnitsPrompt(item, d.maxUnits)

	resp, err := d.provider.Generate(ctx, llm.GenerateRequest{Prompt: prompt})
	if err != nil {
		return nil, fmt.Errorf("decompose %q: %w", item.Title, err)
	}

	parsed, err := structured.Decode[unitsResponse](resp.Text)
	if err != nil {
		return nil, fmt.Errorf("parse units for %q: %w", item.Title, err)
	}

	credibility := source.EffectiveCredibility()
	now := time.Now().UTC()

	var units []model.InformationUnit
	for _, ru := range parsed.Units {
		if len(units) >= d.maxUnits {
			break
		}
		statement := strings.TrimSpace(ru.Statement)
		if statement == "" {
			continue
		}

		level := model.GranularityLevel(strings.ToLower(strings.TrimSpace(ru.Granularity)))
		if !level.Valid() {
			level = model.GranularityObservation
		}

		measurability := model.Measurability(strings.ToLower(strings.TrimSpace(ru.Measurability)))
		switch measurability {
		case model.MeasurabilityQuantitative, model.MeasurabilityQualitative, model.MeasurabilityMixed:
		default:
			measurability = model.MeasurabilityQualitative
		}

		unit := model.InformationUnit{
			ID:                    uuid.NewString(),
			IssueID:               issueID,
			Statement:             statement,
			Granularity:           level,
			GranularityConfidence: model.Clamp01(ru.GranularityConfidence),
			TemporalScope:         strings.TrimSpace(ru.TemporalScope),
			TemporalSpecifics:     strings.TrimSpace(ru.TemporalSpecifics),
			SpatialScope:          strings.TrimSpace(ru.SpatialScope),
			SpatialSpecifics:      strings.TrimSpace(ru.SpatialSpecifics),
			Domains:               cleanTerms(ru.Domains),
			Concepts:              cleanTerms(ru.Concepts),
			Measurability:         measurability,
			CreatedAt:             now,
		}
		if ru.Quantitative != nil {
			unit.Quantitative = &model.Quantitative{Value: ru.Quantitative.Value, Unit: ru.Quantitative.Unit}
		}

		unit.Falsifiability = Falsifiability(level, measurability, unit.TemporalSpecifics, unit.SpatialSpecifics)

		authority := credibility * source.ContentType.AuthorityFor(level)
		unit.Confidence = model.Clamp01(unit.GranularityConfidence * authority)

		units = append(units, unit)
	}

	return units, nil
}

// Falsifiability derives a unit's falsifiability from its level's base score
// plus bounded adjustments for measurability and scope specificity.
// Quantitative statements are easier to disprove (+0.05), purely qualitative
// ones harder (-0.05); each concrete scope qualifier adds +0.05, capped at
// +0.10 total for scope.
func Falsifiability(level model.GranularityLevel, m model.Measurability, temporalSpecifics, spatialSpecifics string) float64 {
	score := level.BaseFalsifiability()

	switch m {
	case model.MeasurabilityQuantitative:
		score += 0.05
	case model.MeasurabilityQualitative:
		score -= 0.05
	}

	scope := 0.0
	if temporalSpecifics != "" {
		scope += 0.05
	}
	if spatialSpecifics != "" {
		scope += 0.05
	}
	if scope > 0.10 {
		scope = 0.10
	}
	score += scope

	return model.Clamp01(score)
}

func cleanTerms(terms []string) []string {
	var out []string
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func buildUnitsPrompt(item model.FetchedItem, maxUnits int) string {
	var b strings.Builder

	fmt.Fprintf(&b, `Decompose this content into atomic information units, each classified at one granularity level.

Levels, from most abstract to most concrete:
- paradigm: worldview-level framing
- framework: organizing model or approach
- theory: explanatory claim
- mechanism: how something works
- trend: directional change over time
- observation: single observed fact
- data_point: specific measured value

Title: %s
`, item.Title)

	text := item.Text()
	if len(text) > 4000 {
		text = text[:4000]
	}
	if text != "" {
		fmt.Fprintf(&b, "\n%s\n", text)
	}

	fmt.Fprintf(&b, `
Return a JSON object:
{"units": [{"statement": "...", "granularity": "observation", "granularity_confidence": 0.8, "temporal_scope": "2020s", "temporal_specifics": "Q3 2025", "spatial_scope": "national", "spatial_specifics": "California", "domains": ["housing"], "concepts": ["permits"], "measurability": "quantitative", "quantitative": {"value": 12.5, "unit": "percent"}}]}

Rules:
- At most %d units.
- "measurability" is quantitative, qualitative or mixed; include "quantitative" only for measured values.
- Leave scope fields empty when the content does not pin them down.
`, maxUnits)

	return b.String()
}
