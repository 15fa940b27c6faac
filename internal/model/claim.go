package model

// Claim represents an atomic, attributable statement extracted from one source item
type Claim struct {
	Statement  string        `json:"statement"`  // The claim text itself
	Category   ClaimCategory `json:"category"`   // factual, statistical, causal, predictive
	Source     SourceRef     `json:"source"`     // Where the claim came from
	Confidence float64       `json:"confidence"` // Extraction confidence (0-1)
}

// ClaimCategory categorizes the nature of the claim
type ClaimCategory string

const (
	ClaimFactual     ClaimCategory = "factual"     // Verifiable statements of fact
	ClaimStatistical ClaimCategory = "statistical" // Numeric or measured statements
	ClaimCausal      ClaimCategory = "causal"      // X causes/leads to Y
	ClaimPredictive  ClaimCategory = "predictive"  // Forward-looking statements
)

// ValidClaimCategory reports whether c is one of the known categories.
// Unknown categories from generation output are coerced to factual.
func ValidClaimCategory(c ClaimCategory) bool {
	switch c {
	case ClaimFactual, ClaimStatistical, ClaimCausal, ClaimPredictive:
		return true
	}
	return false
}

// SourceRef ties a claim or pattern back to the source item it came from
type SourceRef struct {
	SourceID   string `json:"source_id,omitempty"`
	SourceName string `json:"source_name"`
	SourceURL  string `json:"source_url,omitempty"`
	ItemTitle  string `json:"item_title,omitempty"`
	ItemURL    string `json:"item_url,omitempty"`
	Excerpt    string `json:"excerpt,omitempty"`
}

// ClaimCluster groups claims sharing a theme.
// Created by the clusterer, consumed by the synthesizer, discarded after the run.
type ClaimCluster struct {
	Theme           string  `json:"theme"`
	Claims          []Claim `json:"claims"`
	SourceDiversity int     `json:"source_diversity"` // Distinct source names among members
}

// CountSourceDiversity returns the number of distinct source names in claims
func CountSourceDiversity(claims []Claim) int {
	seen := make(map[string]bool)
	for _, c := range claims {
		if c.Source.SourceName != "" {
			seen[c.Source.SourceName] = true
		}
	}
	return len(seen)
}
