package noveltycheck

import (
	"strings"
	"testing"
	"time"
)

func reportResponse() Response {
	return Response{
		OverallNoveltyScore: 0.52,
		RiskLevel:           RiskModerate,
		Web: ChannelResult{
			AgentType:  AgentWeb,
			IsNovel:    false,
			Confidence: 0.85,
			Summary:    "A crowdfunded product overlaps on two features.",
			Findings: []Finding{
				{Title: "ChillFlask", URL: "https://example.com/chillflask", SimilarityScore: 0.62, Source: "example.com"},
			},
		},
		Retail: ChannelResult{AgentType: AgentRetail, IsNovel: true, Confidence: 0.6, Findings: []Finding{}},
		Patent: ChannelResult{
			AgentType:  AgentPatent,
			IsNovel:    false,
			Confidence: 0.7,
			Findings: []Finding{
				{Title: "Insulated vessel", URL: "https://patents.example/1", SimilarityScore: 0.55, Source: "patentsview",
					Metadata: map[string]any{"patent_number": "11222333", "challenged": true}},
			},
		},
		Recommendation: "Study the moderate-similarity findings.",
		NextSteps:      []string{"Examine overlapping features"},
		TruthScores:    TruthScores{ObjectiveTruth: 0.8, PracticalTruth: 0.7, Completeness: 0.75, ContextualScope: 0.7},
		Metadata:       RunMetadata{CompletedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), DurationMS: 4200, Expanded: true},
	}
}

func TestReportContainsVerdictAndChannels(t *testing.T) {
	md := BuildReportMarkdown(sampleRequest(), reportResponse())

	for _, want := range []string{
		"# Novelty Assessment Report",
		"ChillGrip Bottle",
		"`moderate_risk`",
		"0.52",
		"## Web Search",
		"## Retail Marketplaces",
		"## Patent Registry",
		"[ChillFlask](https://example.com/chillflask)",
		"*(challenged)*",
		"No similar results found.",
		"Not legal advice",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("report missing %q", want)
		}
	}
}

func TestReportMarksFailedChannels(t *testing.T) {
	resp := reportResponse()
	resp.RiskLevel = RiskIncomplete
	resp.Patent = ChannelResult{AgentType: AgentPatent, Summary: "patent channel failed: credentials rejected"}
	resp.Metadata.FailedChannels = []AgentType{AgentPatent}

	md := BuildReportMarkdown(sampleRequest(), resp)
	if !strings.Contains(md, "**Channel failed.** patent channel failed: credentials rejected") {
		t.Error("failed channel section missing")
	}
	if !strings.Contains(md, "Failed channels: patent") {
		t.Error("metadata footer missing failed channels")
	}
}

func TestReportRendersEveryRiskLevel(t *testing.T) {
	for _, risk := range []RiskLevel{RiskHigh, RiskModerate, RiskLow, RiskIncomplete} {
		resp := reportResponse()
		resp.RiskLevel = risk
		md := BuildReportMarkdown(sampleRequest(), resp)
		if !strings.Contains(md, riskHeadlines[risk]) {
			t.Errorf("risk %s: headline missing", risk)
		}
	}
}

func TestRenderReportHTML(t *testing.T) {
	html, err := RenderReportHTML(BuildReportMarkdown(sampleRequest(), reportResponse()))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(html, "<h1") || !strings.Contains(html, "<table") {
		t.Errorf("html missing expected elements: %.200s", html)
	}
	if !strings.Contains(html, `href="https://example.com/chillflask"`) {
		t.Error("html missing finding link")
	}
}
