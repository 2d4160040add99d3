package noveltycheck

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/inventa-labs/noveltycheck/internal/aigateway"
)

const expanderSystemPrompt = "You are a product research analyst preparing search strategies for novelty assessment. You convert colloquial product descriptions into technical, functional language. Return strict JSON only."

// Expander enriches a request into technical vocabulary and per-channel
// query sets. Expand never fails: any model or parse error falls back to
// the deterministic keyword expansion so the pipeline always proceeds.
type Expander struct {
	gateway *aigateway.Gateway
}

func NewExpander(gw *aigateway.Gateway) *Expander {
	return &Expander{gateway: gw}
}

func (e *Expander) Expand(ctx context.Context, req Request) Expanded {
	if e == nil || e.gateway == nil {
		return FallbackExpand(req)
	}
	started := time.Now()
	out, err := e.gateway.CreateCompletion(ctx, buildExpandPrompt(req), aigateway.Options{
		System:      expanderSystemPrompt,
		MaxTokens:   2048,
		Temperature: 0.3,
	})
	if err != nil {
		log.Printf("novelty-check expand_failed invention=%q elapsed_ms=%d err=%q", req.InventionName, time.Since(started).Milliseconds(), err.Error())
		return FallbackExpand(req)
	}
	exp, err := parseExpansion(out.Text)
	if err != nil {
		log.Printf("novelty-check expand_parse_failed invention=%q err=%q", req.InventionName, err.Error())
		return FallbackExpand(req)
	}
	log.Printf("novelty-check expand_done invention=%q provider=%s web_queries=%d elapsed_ms=%d", req.InventionName, out.Provider, len(exp.WebQueries), time.Since(started).Milliseconds())
	return exp
}

// parseExpansion validates the model output strictly: missing required
// fields reject the whole expansion rather than accepting a partial one.
func parseExpansion(raw string) (Expanded, error) {
	clean := aigateway.StripCodeFences(raw)
	var exp Expanded
	if err := json.Unmarshal([]byte(clean), &exp); err != nil {
		return Expanded{}, fmt.Errorf("expansion json: %w", err)
	}
	if strings.TrimSpace(exp.ExpandedDescription) == "" {
		return Expanded{}, fmt.Errorf("expansion missing expanded_description")
	}
	if len(exp.KeyFeatures) == 0 {
		return Expanded{}, fmt.Errorf("expansion missing key_features")
	}
	if len(exp.WebQueries) == 0 {
		return Expanded{}, fmt.Errorf("expansion missing web_queries")
	}
	exp.KeyFeatures = capStrings(exp.KeyFeatures, MaxKeyFeatures)
	exp.Differentiators = capStrings(exp.Differentiators, MaxKeyFeatures)
	exp.WebQueries = capStrings(exp.WebQueries, MaxQueries)
	exp.RetailQueries = capStrings(exp.RetailQueries, MaxQueries)
	exp.PatentQueries = capStrings(exp.PatentQueries, MaxQueries)
	return exp, nil
}

// FallbackExpand is the cheap deterministic expansion built from extractor
// output plus the raw request fields.
func FallbackExpand(req Request) Expanded {
	queries := GenerateSearchQueries(req.InventionName, req.Description, req.ProblemStatement, req.KeyFeatures)
	desc := strings.TrimSpace(req.Description)
	if strings.TrimSpace(req.ProblemStatement) != "" {
		desc = desc + " Addresses: " + strings.TrimSpace(req.ProblemStatement)
	}
	return Expanded{
		ExpandedDescription: desc,
		KeyFeatures:         capStrings(req.KeyFeatures, MaxKeyFeatures),
		WebQueries:          queries,
		RetailQueries:       queries,
		PatentQueries:       queries,
	}
}

func buildExpandPrompt(req Request) string {
	var b strings.Builder
	b.WriteString("Return valid JSON only. No markdown fences, no commentary.\n\n")
	b.WriteString(`Given an invention description, produce an enriched research profile
and search queries for three channels: general web search, retail
marketplaces, and patent registries.

Convert colloquial phrasing into technical and functional vocabulary.
Patent literature describes mechanisms and functions, not brands:
"doesn't leak" becomes "leak-proof, spill-resistant construction";
"keeps drinks cold" becomes "insulated thermal retention vessel".

Patent queries should use mechanism/function terms. Retail queries
should use shopper-facing product terms. Web queries sit in between.

Required output schema:
{
  "expanded_description": "string (technical restatement, 1-3 sentences)",
  "key_features": ["string (max 5)"],
  "product_category": "string",
  "differentiators": ["string (max 5)"],
  "web_queries": ["string (max 5)"],
  "retail_queries": ["string (max 5)"],
  "patent_queries": ["string (max 5)"]
}

INVENTION NAME: ` + req.InventionName + "\n")
	b.WriteString("DESCRIPTION: " + req.Description + "\n")
	if strings.TrimSpace(req.ProblemStatement) != "" {
		b.WriteString("PROBLEM: " + req.ProblemStatement + "\n")
	}
	if strings.TrimSpace(req.TargetAudience) != "" {
		b.WriteString("TARGET AUDIENCE: " + req.TargetAudience + "\n")
	}
	if len(req.KeyFeatures) > 0 {
		b.WriteString("KEY FEATURES: " + strings.Join(req.KeyFeatures, "; ") + "\n")
	}
	return b.String()
}

func capStrings(in []string, max int) []string {
	out := make([]string, 0, max)
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		out = append(out, v)
		if len(out) == max {
			break
		}
	}
	return out
}
