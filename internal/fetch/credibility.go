package fetch

import (
	"net/url"
	"strings"
)

// CredibilityTier buckets a domain by how much weight its claims carry before
// any feedback adjusts it
type CredibilityTier string

const (
	TierPrimary   CredibilityTier = "primary"   // Government, academic, standards bodies
	TierSecondary CredibilityTier = "secondary" // Established press, research institutes
	TierTertiary  CredibilityTier = "tertiary"  // Everything else
)

// Score returns the static credibility prior of a tier
func (t CredibilityTier) Score() float64 {
	switch t {
	case TierPrimary:
		return 0.9
	case TierSecondary:
		return 0.7
	default:
		return 0.5
	}
}

// CredibilityClassifier classifies source URLs into credibility tiers.
// Used for sources configured without an explicit credibility value.
type CredibilityClassifier struct {
	primary   map[string]bool
	secondary map[string]bool
}

// NewCredibilityClassifier builds a classifier from domain lists. Nil lists
// fall back to TLD heuristics only.
func NewCredibilityClassifier(primaryDomains, secondaryDomains []string) *CredibilityClassifier {
	c := &CredibilityClassifier{
		primary:   make(map[string]bool),
		secondary: make(map[string]bool),
	}
	for _, d := range primaryDomains {
		c.primary[strings.ToLower(d)] = true
	}
	for _, d := range secondaryDomains {
		c.secondary[strings.ToLower(d)] = true
	}
	return c
}

// Classify maps a URL to its credibility tier
func (c *CredibilityClassifier) Classify(rawURL string) CredibilityTier {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return TierTertiary
	}

	host := strings.ToLower(parsed.Host)
	if idx := strings.Index(host, ":"); idx > 0 {
		host = host[:idx]
	}

	if matchDomain(host, c.primary) {
		return TierPrimary
	}
	if matchDomain(host, c.secondary) {
		return TierSecondary
	}

	// Government and academic TLDs are primary without configuration
	if strings.HasSuffix(host, ".gov") || strings.HasSuffix(host, ".edu") ||
		strings.HasSuffix(host, ".ac.uk") || strings.HasSuffix(host, ".gov.uk") {
		return TierPrimary
	}

	return TierTertiary
}

// Credibility resolves a source's effective prior: explicit config wins,
// otherwise the domain's tier score
func (c *CredibilityClassifier) Credibility(configured float64, rawURL string) float64 {
	if configured > 0 {
		return configured
	}
	return c.Classify(rawURL).Score()
}

// matchDomain reports whether host equals or is a subdomain of any listed domain
func matchDomain(host string, domains map[string]bool) bool {
	if domains[host] {
		return true
	}
	for d := range domains {
		if strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}
