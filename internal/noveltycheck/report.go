package noveltycheck

import (
	"fmt"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

const reportDisclaimer = "_Automated novelty screening. Not legal advice and not a substitute for a professional prior-art search._"

var riskHeadlines = map[RiskLevel]string{
	RiskHigh:       "HIGH RISK — close prior art found",
	RiskModerate:   "MODERATE RISK — similar work exists",
	RiskLow:        "LOW RISK — no significant matches found",
	RiskIncomplete: "INCOMPLETE — one or more channels failed",
}

// BuildReportMarkdown renders the aggregate verdict as a human-readable
// markdown report: executive summary, one section per channel, metadata
// footer.
func BuildReportMarkdown(req Request, resp Response) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Novelty Assessment Report\n\n")
	fmt.Fprintf(&b, "- Invention: %s\n", req.InventionName)
	fmt.Fprintf(&b, "- Date: %s\n\n", resp.Metadata.CompletedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "%s\n\n", reportDisclaimer)

	fmt.Fprintf(&b, "## Executive Summary\n\n")
	fmt.Fprintf(&b, "**Verdict:** `%s` — %s\n\n", resp.RiskLevel, riskHeadlines[resp.RiskLevel])
	fmt.Fprintf(&b, "**Overall novelty score:** %s\n\n", fmtScore(resp.OverallNoveltyScore))
	fmt.Fprintf(&b, "%s\n\n", resp.Recommendation)

	if len(resp.NextSteps) > 0 {
		fmt.Fprintf(&b, "### Next Steps\n\n")
		for _, step := range resp.NextSteps {
			fmt.Fprintf(&b, "1. %s\n", step)
		}
		b.WriteString("\n")
	}

	buildChannelSection(&b, "Web Search", resp.Web, contains(resp.Metadata.FailedChannels, AgentWeb))
	buildChannelSection(&b, "Retail Marketplaces", resp.Retail, contains(resp.Metadata.FailedChannels, AgentRetail))
	buildChannelSection(&b, "Patent Registry", resp.Patent, contains(resp.Metadata.FailedChannels, AgentPatent))

	fmt.Fprintf(&b, "## Assessment Confidence\n\n")
	fmt.Fprintf(&b, "| Axis | Score |\n|---|---|\n")
	fmt.Fprintf(&b, "| Objective truth | %s |\n", fmtScore(resp.TruthScores.ObjectiveTruth))
	fmt.Fprintf(&b, "| Practical truth | %s |\n", fmtScore(resp.TruthScores.PracticalTruth))
	fmt.Fprintf(&b, "| Completeness | %s |\n", fmtScore(resp.TruthScores.Completeness))
	fmt.Fprintf(&b, "| Contextual scope | %s |\n\n", fmtScore(resp.TruthScores.ContextualScope))

	fmt.Fprintf(&b, "## Run Metadata\n\n")
	fmt.Fprintf(&b, "- Duration: %dms\n", resp.Metadata.DurationMS)
	fmt.Fprintf(&b, "- AI query expansion: %v\n", resp.Metadata.Expanded)
	if len(resp.Metadata.FailedChannels) > 0 {
		names := make([]string, len(resp.Metadata.FailedChannels))
		for i, t := range resp.Metadata.FailedChannels {
			names[i] = string(t)
		}
		fmt.Fprintf(&b, "- Failed channels: %s\n", strings.Join(names, ", "))
	}
	return b.String()
}

func buildChannelSection(b *strings.Builder, title string, r ChannelResult, failed bool) {
	fmt.Fprintf(b, "## %s\n\n", title)
	if failed {
		fmt.Fprintf(b, "**Channel failed.** %s\n\n", r.Summary)
		return
	}
	verdict := "similar work found"
	if r.IsNovel {
		verdict = "appears novel"
	}
	fmt.Fprintf(b, "**%s** (confidence %s)\n\n", verdict, fmtScore(r.Confidence))
	if r.Summary != "" {
		fmt.Fprintf(b, "%s\n\n", r.Summary)
	}
	if len(r.Findings) == 0 {
		fmt.Fprintf(b, "No similar results found.\n\n")
		return
	}
	fmt.Fprintf(b, "| Similarity | Finding | Source |\n|---|---|---|\n")
	for _, f := range r.Findings {
		label := f.Title
		if f.URL != "" {
			label = fmt.Sprintf("[%s](%s)", f.Title, f.URL)
		}
		if f.Metadata["challenged"] == true {
			label += " *(challenged)*"
		}
		fmt.Fprintf(b, "| %s | %s | %s |\n", fmtScore(f.SimilarityScore), label, f.Source)
	}
	b.WriteString("\n")
}

// RenderReportHTML converts the markdown report for callers that embed it.
func RenderReportHTML(markdown string) (string, error) {
	var out strings.Builder
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	if err := md.Convert([]byte(markdown), &out); err != nil {
		return "", fmt.Errorf("markdown convert: %w", err)
	}
	return out.String(), nil
}

func fmtScore(v float64) string { return fmt.Sprintf("%.2f", v) }

func contains(list []AgentType, t AgentType) bool {
	for _, v := range list {
		if v == t {
			return true
		}
	}
	return false
}
