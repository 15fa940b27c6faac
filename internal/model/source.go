package model

import "time"

// SourceKind tells the fetcher how to interpret a source URL
type SourceKind string

const (
	SourceKindRSS  SourceKind = "rss"  // RSS or Atom feed
	SourceKindHTML SourceKind = "html" // HTML index page with outbound article links
)

// ContentType classifies what kind of material a source publishes. Different
// source types are authoritative for different abstraction levels: a
// foundational source carries weight for theory-level claims but little for
// data points, a current source the other way around.
type ContentType string

const (
	ContentFoundational ContentType = "foundational" // Textbooks, standards, reference works
	ContentCurrent      ContentType = "current"      // News, reporting, announcements
	ContentResearch     ContentType = "research"     // Papers, preprints, technical reports
)

// Source is a configured text source the pipeline reads from
type Source struct {
	ID          string      `yaml:"id" json:"id"`
	Name        string      `yaml:"name" json:"name"`
	URL         string      `yaml:"url" json:"url"`
	Kind        SourceKind  `yaml:"kind" json:"kind"`
	ContentType ContentType `yaml:"content_type" json:"content_type"`

	// Credibility is the static prior for this source (0-1). Zero means
	// "unset" and lets the fetcher classify the domain instead.
	Credibility float64 `yaml:"credibility,omitempty" json:"credibility,omitempty"`

	// DynamicReliability starts at Credibility and drifts with
	// source_accuracy feedback
	DynamicReliability float64 `yaml:"-" json:"dynamic_reliability,omitempty"`

	UpdatedAt time.Time `yaml:"-" json:"updated_at,omitempty"`
}

// EffectiveCredibility prefers the feedback-adjusted reliability when present
func (s Source) EffectiveCredibility() float64 {
	if s.DynamicReliability > 0 {
		return s.DynamicReliability
	}
	if s.Credibility > 0 {
		return s.Credibility
	}
	return 0.5
}

// ContentTypeAuthority returns the per-granularity-level authority modifier
// for this content type. Multiplied into source credibility when weighting
// information units.
var contentTypeAuthority = map[ContentType]map[GranularityLevel]float64{
	ContentFoundational: {
		GranularityParadigm:    0.90,
		GranularityFramework:   0.88,
		GranularityTheory:      0.85,
		GranularityMechanism:   0.75,
		GranularityTrend:       0.55,
		GranularityObservation: 0.45,
		GranularityDataPoint:   0.40,
	},
	ContentCurrent: {
		GranularityParadigm:    0.30,
		GranularityFramework:   0.35,
		GranularityTheory:      0.45,
		GranularityMechanism:   0.60,
		GranularityTrend:       0.85,
		GranularityObservation: 0.90,
		GranularityDataPoint:   0.90,
	},
	ContentResearch: {
		GranularityParadigm:    0.60,
		GranularityFramework:   0.70,
		GranularityTheory:      0.85,
		GranularityMechanism:   0.85,
		GranularityTrend:       0.75,
		GranularityObservation: 0.80,
		GranularityDataPoint:   0.90,
	},
}

// AuthorityFor returns the modifier for the given level. Unknown content
// types behave like current sources.
func (c ContentType) AuthorityFor(level GranularityLevel) float64 {
	table, ok := contentTypeAuthority[c]
	if !ok {
		table = contentTypeAuthority[ContentCurrent]
	}
	if v, ok := table[level]; ok {
		return v
	}
	return 0.5
}

// FetchedItem is one normalized article/entry returned by the fetch adapter
type FetchedItem struct {
	Title       string     `json:"title"`
	URL         string     `json:"url"`
	Summary     string     `json:"summary,omitempty"`
	Content     string     `json:"content,omitempty"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// Text returns the best available body text for an item
func (i FetchedItem) Text() string {
	if i.Content != "" {
		return i.Content
	}
	return i.Summary
}
