package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mkravets/tectonic/internal/model"
)

// Renderer writes run reports as JSON and Markdown
type Renderer struct {
	includeFooter bool
}

// NewRenderer creates a renderer
func NewRenderer(includeFooter bool) *Renderer {
	return &Renderer{includeFooter: includeFooter}
}

// RenderJSON writes the full report as indented JSON
func (r *Renderer) RenderJSON(report *model.RunReport, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// RenderMarkdown writes the report and the persisted patterns as Markdown
func (r *Renderer) RenderMarkdown(report *model.RunReport, patterns []model.Pattern, path string) error {
	var b strings.Builder

	b.WriteString("# Tectonic Discovery Report\n\n")
	fmt.Fprintf(&b, "**Run:** `%s`  \n", report.RunID)
	fmt.Fprintf(&b, "**Started:** %s  \n", report.StartedAt.Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "**Duration:** %s\n\n", report.FinishedAt.Sub(report.StartedAt).Round(1e7))

	b.WriteString("## Run Summary\n\n")
	b.WriteString("| Stage | Count |\n|---|---|\n")
	fmt.Fprintf(&b, "| Sources fetched | %d |\n", report.SourcesFetched)
	fmt.Fprintf(&b, "| Items fetched | %d |\n", report.ItemsFetched)
	fmt.Fprintf(&b, "| Claims extracted | %d |\n", report.ClaimsExtracted)
	fmt.Fprintf(&b, "| Claim clusters | %d |\n", report.Clusters)
	fmt.Fprintf(&b, "| Raw patterns | %d |\n", report.RawPatterns)
	fmt.Fprintf(&b, "| After consensus | %d |\n", report.ConsensusPatterns)
	fmt.Fprintf(&b, "| After critique | %d |\n", report.RefinedPatterns)
	fmt.Fprintf(&b, "| Duplicates skipped | %d |\n", report.Duplicates)
	fmt.Fprintf(&b, "| Patterns persisted | %d |\n", report.PersistedPatterns)
	fmt.Fprintf(&b, "| Units extracted | %d |\n", report.UnitsExtracted)
	fmt.Fprintf(&b, "| Units validated | %d |\n", report.UnitsValidated)
	b.WriteString("\n")

	if len(patterns) > 0 {
		b.WriteString("## Patterns\n\n")
		for _, p := range patterns {
			fmt.Fprintf(&b, "### %s\n\n", p.Title)
			fmt.Fprintf(&b, "- **Type:** %s\n", p.Type)
			fmt.Fprintf(&b, "- **Confidence:** %.2f\n", p.Confidence)
			fmt.Fprintf(&b, "- **Claim support:** %d (cross-validation %.2f)\n", p.ClaimSupport, p.CrossValidation)
			if len(p.Domains) > 0 {
				fmt.Fprintf(&b, "- **Domains:** %s\n", strings.Join(p.Domains, ", "))
			}
			b.WriteString("\n")
			if p.Description != "" {
				b.WriteString(p.Description + "\n\n")
			}
			if p.Brief != "" {
				b.WriteString("> " + strings.ReplaceAll(p.Brief, "\n", "\n> ") + "\n\n")
			}
			if len(p.Sources) > 0 {
				b.WriteString("Sources:\n\n")
				for _, ref := range p.Sources {
					if ref.ItemURL != "" {
						fmt.Fprintf(&b, "- [%s](%s) (%s)\n", ref.ItemTitle, ref.ItemURL, ref.SourceName)
					} else {
						fmt.Fprintf(&b, "- %s\n", ref.SourceName)
					}
				}
				b.WriteString("\n")
			}
		}
	}

	if len(report.Signals) > 0 {
		b.WriteString("## Signals\n\n")
		for _, s := range report.Signals {
			fmt.Fprintf(&b, "- `%s` [%s] %s\n", s.Type, s.Severity, s.Description)
		}
		b.WriteString("\n")
	}

	if len(report.Errors) > 0 {
		b.WriteString("## Errors\n\n")
		for _, e := range report.Errors {
			subject := e.Subject
			if subject != "" {
				subject = " (" + subject + ")"
			}
			fmt.Fprintf(&b, "- **%s**%s: %s\n", e.Stage, subject, e.Message)
		}
		b.WriteString("\n")
	}

	if r.includeFooter {
		b.WriteString("---\n\n")
		b.WriteString("Generated by Tectonic. Confidence values are heuristic estimates, not verdicts.\n")
	}

	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// RenderSummary prints a short human-readable summary of the run
func (r *Renderer) RenderSummary(w io.Writer, report *model.RunReport) {
	fmt.Fprintf(w, "Run %s finished in %s\n", report.RunID, report.FinishedAt.Sub(report.StartedAt).Round(1e7))
	fmt.Fprintf(w, "  sources %d, items %d, claims %d, clusters %d\n",
		report.SourcesFetched, report.ItemsFetched, report.ClaimsExtracted, report.Clusters)
	fmt.Fprintf(w, "  patterns: %d raw -> %d consensus -> %d refined -> %d persisted (%d duplicates)\n",
		report.RawPatterns, report.ConsensusPatterns, report.RefinedPatterns,
		report.PersistedPatterns, report.Duplicates)
	fmt.Fprintf(w, "  units: %d extracted, %d validated\n", report.UnitsExtracted, report.UnitsValidated)
	if len(report.Errors) > 0 {
		fmt.Fprintf(w, "  %d stage errors (see report)\n", len(report.Errors))
	}
}
