package noveltycheck

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/inventa-labs/noveltycheck/internal/memorylog"
)

// ChannelAgent is what the aggregator runs: one channel, one outcome.
type ChannelAgent interface {
	Type() AgentType
	Run(ctx context.Context, req Request, exp Expanded) ChannelOutcome
}

// Aggregator fans a request out to the three channel agents, blends their
// outcomes into one verdict, and optionally records the run in the memory
// log. Agents run concurrently and never block one another.
type Aggregator struct {
	expander *Expander
	agents   []ChannelAgent
	memory   *memorylog.Store
	tracer   trace.Tracer
}

func NewAggregator(expander *Expander, agents []ChannelAgent, memory *memorylog.Store) *Aggregator {
	return &Aggregator{
		expander: expander,
		agents:   agents,
		memory:   memory,
		tracer:   otel.Tracer("noveltycheck"),
	}
}

func (ag *Aggregator) Run(ctx context.Context, req Request) Response {
	started := time.Now()
	ctx, span := ag.tracer.Start(ctx, "novelty_check.run",
		trace.WithAttributes(attribute.String("invention", req.InventionName)))
	defer span.End()

	var exp Expanded
	expanded := false
	if ag.expander != nil {
		exp = ag.expander.Expand(ctx, req)
		expanded = true
	} else {
		exp = FallbackExpand(req)
	}

	outcomes := make(map[AgentType]ChannelOutcome, len(ag.agents))
	elapsed := make(map[string]int64, len(ag.agents))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, agent := range ag.agents {
		wg.Add(1)
		go func(agent ChannelAgent) {
			defer wg.Done()
			cctx, cspan := ag.tracer.Start(ctx, "novelty_check.channel",
				trace.WithAttributes(attribute.String("channel", string(agent.Type()))))
			defer cspan.End()
			channelStart := time.Now()
			out := agent.Run(cctx, req, exp)
			cspan.SetAttributes(
				attribute.Bool("failed", out.Failed()),
				attribute.Int("findings", len(out.Result.Findings)),
			)
			mu.Lock()
			outcomes[agent.Type()] = out
			elapsed[string(agent.Type())] = time.Since(channelStart).Milliseconds()
			mu.Unlock()
		}(agent)
	}
	wg.Wait()

	web := outcomes[AgentWeb]
	retail := outcomes[AgentRetail]
	patent := outcomes[AgentPatent]

	overall := WebWeight*channelScore(web) + RetailWeight*channelScore(retail) + PatentWeight*channelScore(patent)
	risk := DeriveRiskLevel(web, retail, patent)

	failedChannels := []AgentType{}
	for _, t := range []AgentType{AgentWeb, AgentRetail, AgentPatent} {
		if outcomes[t].Failed() {
			failedChannels = append(failedChannels, t)
		}
	}

	completed := time.Now()
	resp := Response{
		OverallNoveltyScore: overall,
		RiskLevel:           risk,
		Web:                 web.Result,
		Retail:              retail.Result,
		Patent:              patent.Result,
		Recommendation:      recommendationFor(risk),
		NextSteps:           nextStepsFor(risk),
		TruthScores:         averageTruthScores(web, retail, patent),
		Metadata: RunMetadata{
			StartedAt:      started,
			CompletedAt:    completed,
			DurationMS:     completed.Sub(started).Milliseconds(),
			Expanded:       expanded,
			FailedChannels: failedChannels,
			ChannelElapsed: elapsed,
		},
	}

	span.SetAttributes(
		attribute.String("risk_level", string(risk)),
		attribute.Float64("overall_novelty_score", overall),
		attribute.Int("failed_channels", len(failedChannels)),
	)
	log.Printf("novelty-check run_done invention=%q risk=%s score=%.2f failed_channels=%d duration_ms=%d",
		req.InventionName, risk, overall, len(failedChannels), resp.Metadata.DurationMS)

	ag.record(ctx, req, resp)
	return resp
}

// channelScore maps one outcome onto the novelty axis: 0.5 for a failed
// channel (unknown), 1.0 for a clean novel verdict, otherwise the inverse
// of the closest match.
func channelScore(o ChannelOutcome) float64 {
	if o.Failed() {
		return UnknownChannelScore
	}
	if o.Result.IsNovel {
		return 1.0
	}
	return 1.0 - o.maxSimilarity()
}

// DeriveRiskLevel applies the priority-ordered verdict table. A confirmed
// high-similarity match outranks everything, including channel failures:
// conflicting prior art already found does not become less real because
// another channel was down.
func DeriveRiskLevel(web, retail, patent ChannelOutcome) RiskLevel {
	outcomes := []ChannelOutcome{web, retail, patent}

	anyFailed := false
	totalFindings := 0
	maxSim := 0.0
	for _, o := range outcomes {
		if o.Failed() {
			anyFailed = true
			continue
		}
		totalFindings += len(o.Result.Findings)
		if s := o.maxSimilarity(); s > maxSim {
			maxSim = s
		}
	}

	switch {
	case maxSim >= HighSimilarityThreshold:
		return RiskHigh
	case anyFailed && totalFindings == 0:
		return RiskIncomplete
	case anyFailed && maxSim >= ModerateSimilarityThreshold:
		return RiskModerate
	case anyFailed:
		return RiskIncomplete
	case maxSim >= ModerateSimilarityThreshold:
		return RiskModerate
	default:
		return RiskLow
	}
}

func recommendationFor(risk RiskLevel) string {
	switch risk {
	case RiskHigh:
		return "A close match to your invention already exists. Review the top findings carefully before investing further; consider how your design differs from them and whether those differences are protectable."
	case RiskModerate:
		return "Some similar work exists but no exact match was confirmed. Study the moderate-similarity findings and sharpen what differentiates your invention before proceeding."
	case RiskLow:
		return "No significantly similar products or patents were found. This is a positive signal for novelty, though no automated search is exhaustive."
	default:
		return "One or more search channels could not complete, so this assessment is partial. Fix the failed channels and re-run before relying on this result."
	}
}

func nextStepsFor(risk RiskLevel) []string {
	switch risk {
	case RiskHigh:
		return []string{
			"Review each high-similarity finding against your invention's claims",
			"Identify concrete differences in mechanism, not just appearance or branding",
			"Consult a patent attorney before any public disclosure or filing",
		}
	case RiskModerate:
		return []string{
			"Examine the moderate-similarity findings for overlapping features",
			"Document what your invention does that the findings do not",
			"Consider a professional prior-art search on the closest matches",
		}
	case RiskLow:
		return []string{
			"Document your invention date and development record",
			"Consider a provisional patent application to secure a filing date",
			"Re-run this check periodically; new products and filings appear continuously",
		}
	default:
		return []string{
			"Check the failed channels' configuration and credentials",
			"Re-run the assessment once all three channels can complete",
		}
	}
}

// averageTruthScores blends the per-channel axes over successful channels
// only; failed channels carry sentinel zeros that would drag the average.
func averageTruthScores(outcomes ...ChannelOutcome) TruthScores {
	var sum TruthScores
	n := 0
	for _, o := range outcomes {
		if o.Failed() {
			continue
		}
		sum.ObjectiveTruth += o.Result.TruthScores.ObjectiveTruth
		sum.PracticalTruth += o.Result.TruthScores.PracticalTruth
		sum.Completeness += o.Result.TruthScores.Completeness
		sum.ContextualScope += o.Result.TruthScores.ContextualScope
		n++
	}
	if n == 0 {
		return TruthScores{}
	}
	f := float64(n)
	return TruthScores{
		ObjectiveTruth:  sum.ObjectiveTruth / f,
		PracticalTruth:  sum.PracticalTruth / f,
		Completeness:    sum.Completeness / f,
		ContextualScope: sum.ContextualScope / f,
	}
}

// record appends the run to the memory log. Importance tracks the novelty
// score so later retrieval can rank runs. Log failures never propagate.
func (ag *Aggregator) record(ctx context.Context, req Request, resp Response) {
	if ag.memory == nil || req.UserID == "" {
		return
	}
	content, err := json.Marshal(map[string]any{
		"invention_name":        req.InventionName,
		"risk_level":            resp.RiskLevel,
		"overall_novelty_score": resp.OverallNoveltyScore,
		"recommendation":        resp.Recommendation,
		"failed_channels":       resp.Metadata.FailedChannels,
	})
	if err != nil {
		log.Printf("novelty-check memory_encode_failed err=%q", err.Error())
		return
	}
	entry := memorylog.Entry{
		UserID:     req.UserID,
		ProjectID:  req.ProjectID,
		Kind:       memorylog.KindNoveltyCheck,
		Content:    content,
		Importance: resp.OverallNoveltyScore,
	}
	if err := ag.memory.Append(ctx, entry); err != nil {
		log.Printf("novelty-check memory_append_failed user=%s err=%q", req.UserID, err.Error())
	}
}

var _ ChannelAgent = (*Agent)(nil)
