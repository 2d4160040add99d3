package noveltycheck

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/inventa-labs/noveltycheck/internal/aigateway"
)

// Truth-score profiles for the degraded outcomes. A successful run never
// reports completeness zero; that value is reserved for channel failure.
var (
	zeroFindingScores = TruthScores{ObjectiveTruth: 0.8, PracticalTruth: 0.7, Completeness: 0.8, ContextualScope: 0.7}
	unscoredScores    = TruthScores{ObjectiveTruth: 0.5, PracticalTruth: 0.5, Completeness: 0.5, ContextualScope: 0.4}
)

const analysisSystemPrompt = "You are a prior-art analyst. You compare an invention against supplied search findings and score semantic similarity. Score ONLY the findings given to you. Never invent findings that are not in the input. Return strict JSON only."

// Agent runs one channel: acquire findings through the search client, then
// score them against the invention through the AI gateway. One channel
// failing never aborts the others; the aggregator handles partial runs.
type Agent struct {
	agentType AgentType
	client    SearchClient
	gateway   *aigateway.Gateway
}

func NewAgent(agentType AgentType, client SearchClient, gw *aigateway.Gateway) *Agent {
	return &Agent{agentType: agentType, client: client, gateway: gw}
}

func (a *Agent) Type() AgentType { return a.agentType }

func (a *Agent) Run(ctx context.Context, req Request, exp Expanded) ChannelOutcome {
	started := time.Now()
	queries := a.queriesFor(req, exp)

	if !a.client.IsConfigured() {
		return a.failed(queries, started, FailureReason{
			Kind:    FailureNotConfigured,
			Message: fmt.Sprintf("%s channel not configured; set the provider API key to enable it", a.agentType),
		})
	}

	findings, ferr := a.acquire(ctx, queries)
	if ferr != nil {
		return a.failed(queries, started, *ferr)
	}

	if len(findings) == 0 {
		// Nothing similar on this channel is a positive novelty signal,
		// but weaker evidence than a confirmed match would be.
		return ChannelOutcome{Result: ChannelResult{
			AgentType:   a.agentType,
			IsNovel:     true,
			Confidence:  ZeroFindingConfidence,
			Findings:    []Finding{},
			Summary:     fmt.Sprintf("No similar results found on the %s channel for %q.", a.agentType, req.InventionName),
			TruthScores: zeroFindingScores,
			QueriesUsed: queries,
			CreatedAt:   started,
		}}
	}

	result := a.analyze(ctx, req, exp, findings)
	result.QueriesUsed = queries
	result.CreatedAt = started
	return ChannelOutcome{Result: result}
}

func (a *Agent) queriesFor(req Request, exp Expanded) []string {
	var qs []string
	switch a.agentType {
	case AgentWeb:
		qs = exp.WebQueries
	case AgentRetail:
		qs = exp.RetailQueries
	case AgentPatent:
		qs = exp.PatentQueries
	}
	if len(qs) == 0 {
		qs = GenerateSearchQueries(req.InventionName, req.Description, req.ProblemStatement, req.KeyFeatures)
	}
	if len(qs) > MaxQueries {
		qs = qs[:MaxQueries]
	}
	return qs
}

// acquire runs every query, deduplicating across query results. The channel
// fails only when configuration or credentials are broken, or when every
// query errored; a partially failing query set degrades to what succeeded.
func (a *Agent) acquire(ctx context.Context, queries []string) ([]Finding, *FailureReason) {
	findings := []Finding{}
	seen := map[string]struct{}{}
	failures := 0
	var lastKind FailureKind
	var lastMsg string

	for _, q := range queries {
		results, err := a.client.Search(ctx, q)
		if err != nil {
			kind := classifyFailure(err)
			if kind == FailureNotConfigured || kind == FailureAuth {
				return nil, &FailureReason{Kind: kind, Message: err.Error()}
			}
			failures++
			lastKind = kind
			lastMsg = err.Error()
			log.Printf("novelty-check query_failed channel=%s query=%q kind=%s err=%q", a.agentType, q, kind, err.Error())
			continue
		}
		for _, f := range results {
			key := f.URL
			if key == "" {
				key = f.Title
			}
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			findings = append(findings, f)
		}
	}

	if failures == len(queries) && len(queries) > 0 {
		return nil, &FailureReason{Kind: lastKind, Message: lastMsg}
	}
	return findings, nil
}

func (a *Agent) failed(queries []string, started time.Time, reason FailureReason) ChannelOutcome {
	log.Printf("novelty-check channel_failed channel=%s kind=%s msg=%q", a.agentType, reason.Kind, reason.Message)
	return ChannelOutcome{
		Result: ChannelResult{
			AgentType:   a.agentType,
			IsNovel:     false,
			Findings:    []Finding{},
			Summary:     fmt.Sprintf("%s channel failed: %s", a.agentType, reason.Message),
			TruthScores: TruthScores{},
			QueriesUsed: queries,
			CreatedAt:   started,
		},
		Failure: &reason,
	}
}

type analysisOutput struct {
	IsNovel       bool    `json:"is_novel"`
	Confidence    float64 `json:"confidence"`
	Summary       string  `json:"summary"`
	FindingScores []struct {
		Index           int     `json:"index"`
		SimilarityScore float64 `json:"similarity_score"`
	} `json:"finding_scores"`
	TruthScores TruthScores `json:"truth_scores"`
}

// analyze is the semantic phase. Any gateway or parse failure degrades to
// unscored findings instead of failing the channel; the search evidence is
// still worth returning.
func (a *Agent) analyze(ctx context.Context, req Request, exp Expanded, findings []Finding) ChannelResult {
	if a.gateway == nil {
		return a.unscored(req, findings, "no AI provider configured")
	}

	out, err := a.gateway.CreateCompletion(ctx, a.buildAnalysisPrompt(req, exp, findings), aigateway.Options{
		System:      analysisSystemPrompt,
		MaxTokens:   4096,
		Temperature: 0.2,
	})
	if err != nil {
		log.Printf("novelty-check analysis_failed channel=%s err=%q", a.agentType, err.Error())
		return a.unscored(req, findings, "model analysis unavailable")
	}

	var parsed analysisOutput
	if perr := json.Unmarshal([]byte(aigateway.StripCodeFences(out.Text)), &parsed); perr != nil {
		log.Printf("novelty-check analysis_parse_failed channel=%s err=%q", a.agentType, perr.Error())
		return a.unscored(req, findings, "model returned unparseable analysis")
	}

	for _, fs := range parsed.FindingScores {
		if fs.Index < 0 || fs.Index >= len(findings) {
			continue
		}
		findings[fs.Index].SimilarityScore = clamp01(fs.SimilarityScore)
	}
	sortFindingsBySimilarity(findings)

	ts := TruthScores{
		ObjectiveTruth:  clamp01(parsed.TruthScores.ObjectiveTruth),
		PracticalTruth:  clamp01(parsed.TruthScores.PracticalTruth),
		Completeness:    clamp01(parsed.TruthScores.Completeness),
		ContextualScope: clamp01(parsed.TruthScores.ContextualScope),
	}
	if ts.Completeness == 0 {
		// A successful analysis may not collide with the failure sentinel.
		ts.Completeness = 0.1
	}

	summary := strings.TrimSpace(parsed.Summary)
	if summary == "" {
		summary = fmt.Sprintf("Scored %d findings on the %s channel.", len(findings), a.agentType)
	}
	return ChannelResult{
		AgentType:   a.agentType,
		IsNovel:     parsed.IsNovel,
		Confidence:  clamp01(parsed.Confidence),
		Findings:    findings,
		Summary:     summary,
		TruthScores: ts,
	}
}

func (a *Agent) unscored(req Request, findings []Finding, cause string) ChannelResult {
	return ChannelResult{
		AgentType:   a.agentType,
		IsNovel:     true,
		Confidence:  0.3,
		Findings:    findings,
		Summary:     fmt.Sprintf("Found %d results for %q on the %s channel, but %s; findings are unscored.", len(findings), req.InventionName, a.agentType, cause),
		TruthScores: unscoredScores,
	}
}

func (a *Agent) buildAnalysisPrompt(req Request, exp Expanded, findings []Finding) string {
	var b strings.Builder
	b.WriteString("Return valid JSON only. No markdown fences, no commentary.\n\n")
	b.WriteString("Compare the invention below against the numbered findings from a ")
	switch a.agentType {
	case AgentWeb:
		b.WriteString("general web search. Judge public disclosures: articles, crowdfunding pages, product announcements.\n")
	case AgentRetail:
		b.WriteString("retail marketplace search. Judge commercially available products: a product already on sale is the strongest non-patent prior art.\n")
	case AgentPatent:
		b.WriteString("patent registry search. Judge claimed mechanisms and functions, not marketing language. A finding flagged challenged is under dispute and is a stronger risk signal.\n")
	}
	b.WriteString("\nINVENTION: " + req.InventionName + "\n")
	desc := exp.ExpandedDescription
	if desc == "" {
		desc = req.Description
	}
	b.WriteString("DESCRIPTION: " + desc + "\n")
	if len(exp.KeyFeatures) > 0 {
		b.WriteString("KEY FEATURES: " + strings.Join(exp.KeyFeatures, "; ") + "\n")
	}
	if len(exp.Differentiators) > 0 {
		b.WriteString("CLAIMED DIFFERENTIATORS: " + strings.Join(exp.Differentiators, "; ") + "\n")
	}

	b.WriteString("\nFINDINGS:\n")
	for i, f := range findings {
		fmt.Fprintf(&b, "[%d] %s\n", i, f.Title)
		if f.Description != "" {
			fmt.Fprintf(&b, "    %s\n", f.Description)
		}
		if f.URL != "" {
			fmt.Fprintf(&b, "    url: %s\n", f.URL)
		}
		for _, key := range []string{"price", "store", "patent_number", "grant_date", "assignee", "challenged"} {
			if v, ok := f.Metadata[key]; ok {
				fmt.Fprintf(&b, "    %s: %v\n", key, v)
			}
		}
	}

	b.WriteString(`
Score each finding's similarity to the invention in [0,1]. Similarity means
the finding describes the same product or mechanism, not that it merely
shares a category. Score only the findings listed above, by index.

Required output schema:
{
  "is_novel": boolean,
  "confidence": number (0-1),
  "summary": "string (2-4 sentences)",
  "finding_scores": [{"index": integer, "similarity_score": number (0-1)}],
  "truth_scores": {
    "objective_truth": number (0-1),
    "practical_truth": number (0-1),
    "completeness": number (0-1),
    "contextual_scope": number (0-1)
  }
}
`)
	return b.String()
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func sortFindingsBySimilarity(findings []Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		return findings[i].SimilarityScore > findings[j].SimilarityScore
	})
}
