package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/mkravets/tectonic/internal/llm"
	"github.com/mkravets/tectonic/internal/model"
	"github.com/mkravets/tectonic/internal/structured"
)

// Clusterer groups extracted claims into thematic clusters
type Clusterer struct {
	provider llm.Provider
}

// NewClusterer creates a new claim clusterer
func NewClusterer(provider llm.Provider) *Clusterer {
	return &Clusterer{provider: provider}
}

type clustersResponse struct {
	Clusters []rawCluster `json:"clusters"`
}

type rawCluster struct {
	Theme  string `json:"theme"`
	Claims []int  `json:"claims"` // Indices into the input claim list
}

// Cluster asks for a thematic grouping of the claims by index. Out-of-range
// indices are ignored; a failed call yields no clusters.
func (c *Clusterer) Cluster(ctx context.Context, claims []model.Claim) ([]model.ClaimCluster, error) {
	if len(claims) < 2 {
		return nil, nil
	}

	prompt := buildClustersPrompt(claims)

	resp, err := c.provider.Generate(ctx, llm.GenerateRequest{Prompt: prompt})
	if err != nil {
		return nil, fmt.Errorf("generate clusters: %w", err)
	}

	parsed, err := structured.Decode[clustersResponse](resp.Text)
	if err != nil {
		return nil, fmt.Errorf("parse clusters: %w", err)
	}

	var clusters []model.ClaimCluster
	for _, rc := range parsed.Clusters {
		theme := strings.TrimSpace(rc.Theme)
		if theme == "" {
			continue
		}

		var members []model.Claim
		for _, idx := range rc.Claims {
			if idx < 0 || idx >= len(claims) {
				continue
			}
			members = append(members, claims[idx])
		}
		if len(members) == 0 {
			continue
		}

		clusters = append(clusters, model.ClaimCluster{
			Theme:           theme,
			Claims:          members,
			SourceDiversity: model.CountSourceDiversity(members),
		})
	}

	return clusters, nil
}

func buildClustersPrompt(claims []model.Claim) string {
	var b strings.Builder

	b.WriteString(`Group these claims into thematic clusters. Claims in one cluster should describe aspects of the same underlying issue or phenomenon.

Claims:
`)
	for i, claim := range claims {
		fmt.Fprintf(&b, "%d. [%s, %s] %s\n", i, claim.Category, claim.Source.SourceName, claim.Statement)
	}

	b.WriteString(`
Return a JSON object:
{"clusters": [{"theme": "short theme name", "claims": [0, 3, 5]}]}

Rules:
- "claims" holds the numeric indices from the list above.
- A claim may appear in at most one cluster.
- Leave unrelated claims out entirely.
`)

	return b.String()
}
