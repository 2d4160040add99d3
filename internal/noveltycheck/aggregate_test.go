package noveltycheck

import (
	"context"
	"encoding/json"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/inventa-labs/noveltycheck/internal/memorylog"
)

type stubAgent struct {
	agentType AgentType
	outcome   ChannelOutcome
}

func (s *stubAgent) Type() AgentType { return s.agentType }
func (s *stubAgent) Run(context.Context, Request, Expanded) ChannelOutcome {
	return s.outcome
}

func successOutcome(t AgentType, novel bool, sims ...float64) ChannelOutcome {
	findings := make([]Finding, len(sims))
	for i, s := range sims {
		findings[i] = Finding{Title: "F", SimilarityScore: s}
	}
	return ChannelOutcome{Result: ChannelResult{
		AgentType:   t,
		IsNovel:     novel,
		Confidence:  0.8,
		Findings:    findings,
		TruthScores: TruthScores{ObjectiveTruth: 0.8, PracticalTruth: 0.8, Completeness: 0.8, ContextualScope: 0.8},
	}}
}

func failedOutcome(t AgentType, kind FailureKind) ChannelOutcome {
	return ChannelOutcome{
		Result:  ChannelResult{AgentType: t, Findings: []Finding{}},
		Failure: &FailureReason{Kind: kind, Message: string(kind)},
	}
}

func aggregatorFor(web, retail, patent ChannelOutcome) *Aggregator {
	return NewAggregator(nil, []ChannelAgent{
		&stubAgent{agentType: AgentWeb, outcome: web},
		&stubAgent{agentType: AgentRetail, outcome: retail},
		&stubAgent{agentType: AgentPatent, outcome: patent},
	}, nil)
}

func TestHighSimilarityOutranksChannelFailures(t *testing.T) {
	// A confirmed 0.85 match stays high risk even with two channels down.
	resp := aggregatorFor(
		failedOutcome(AgentWeb, FailureTransient),
		successOutcome(AgentRetail, false, 0.85),
		failedOutcome(AgentPatent, FailureNotConfigured),
	).Run(context.Background(), sampleRequest())

	if resp.RiskLevel != RiskHigh {
		t.Fatalf("risk = %s, want %s", resp.RiskLevel, RiskHigh)
	}
	if len(resp.Metadata.FailedChannels) != 2 {
		t.Errorf("failed channels = %v", resp.Metadata.FailedChannels)
	}
}

func TestAllFailedIsIncomplete(t *testing.T) {
	resp := aggregatorFor(
		failedOutcome(AgentWeb, FailureTransient),
		failedOutcome(AgentRetail, FailureTransient),
		failedOutcome(AgentPatent, FailureAuth),
	).Run(context.Background(), sampleRequest())

	if resp.RiskLevel != RiskIncomplete {
		t.Fatalf("risk = %s", resp.RiskLevel)
	}
	// Every channel contributes the unknown score.
	if math.Abs(resp.OverallNoveltyScore-0.5) > 1e-9 {
		t.Errorf("overall = %v, want 0.5", resp.OverallNoveltyScore)
	}
	if resp.TruthScores != (TruthScores{}) {
		t.Errorf("truth scores = %+v", resp.TruthScores)
	}
	if !strings.Contains(resp.Recommendation, "partial") {
		t.Errorf("recommendation = %q", resp.Recommendation)
	}
}

func TestAllCleanZeroFindingsIsLowRiskFullScore(t *testing.T) {
	resp := aggregatorFor(
		successOutcome(AgentWeb, true),
		successOutcome(AgentRetail, true),
		successOutcome(AgentPatent, true),
	).Run(context.Background(), sampleRequest())

	if resp.RiskLevel != RiskLow {
		t.Fatalf("risk = %s", resp.RiskLevel)
	}
	if math.Abs(resp.OverallNoveltyScore-1.0) > 1e-9 {
		t.Errorf("overall = %v, want 1.0", resp.OverallNoveltyScore)
	}
}

func TestOneChannelDownZeroFindingsIsIncomplete(t *testing.T) {
	resp := aggregatorFor(
		successOutcome(AgentWeb, true),
		successOutcome(AgentRetail, true),
		failedOutcome(AgentPatent, FailureNotConfigured),
	).Run(context.Background(), sampleRequest())

	if resp.RiskLevel != RiskIncomplete {
		t.Fatalf("risk = %s", resp.RiskLevel)
	}
}

func TestFailedChannelWithModerateFindingIsModerate(t *testing.T) {
	resp := aggregatorFor(
		successOutcome(AgentWeb, false, 0.6),
		successOutcome(AgentRetail, true),
		failedOutcome(AgentPatent, FailureTransient),
	).Run(context.Background(), sampleRequest())

	if resp.RiskLevel != RiskModerate {
		t.Fatalf("risk = %s", resp.RiskLevel)
	}
}

func TestFailedChannelWithOnlyWeakFindingsIsIncomplete(t *testing.T) {
	resp := aggregatorFor(
		successOutcome(AgentWeb, false, 0.3),
		successOutcome(AgentRetail, true),
		failedOutcome(AgentPatent, FailureTransient),
	).Run(context.Background(), sampleRequest())

	if resp.RiskLevel != RiskIncomplete {
		t.Fatalf("risk = %s", resp.RiskLevel)
	}
}

func TestModerateSimilarityAllChannelsUp(t *testing.T) {
	resp := aggregatorFor(
		successOutcome(AgentWeb, false, 0.6),
		successOutcome(AgentRetail, true),
		successOutcome(AgentPatent, true),
	).Run(context.Background(), sampleRequest())

	if resp.RiskLevel != RiskModerate {
		t.Fatalf("risk = %s", resp.RiskLevel)
	}
	// web 1-0.6=0.4, retail 1.0, patent 1.0 -> 0.3*0.4 + 0.3 + 0.4
	want := 0.3*0.4 + 0.3*1.0 + 0.4*1.0
	if math.Abs(resp.OverallNoveltyScore-want) > 1e-9 {
		t.Errorf("overall = %v, want %v", resp.OverallNoveltyScore, want)
	}
}

func TestPatentChannelCarriesHighestWeight(t *testing.T) {
	patentConflict := aggregatorFor(
		successOutcome(AgentWeb, true),
		successOutcome(AgentRetail, true),
		successOutcome(AgentPatent, false, 0.6),
	).Run(context.Background(), sampleRequest())
	webConflict := aggregatorFor(
		successOutcome(AgentWeb, false, 0.6),
		successOutcome(AgentRetail, true),
		successOutcome(AgentPatent, true),
	).Run(context.Background(), sampleRequest())

	if patentConflict.OverallNoveltyScore >= webConflict.OverallNoveltyScore {
		t.Errorf("patent conflict %v should score below web conflict %v",
			patentConflict.OverallNoveltyScore, webConflict.OverallNoveltyScore)
	}
}

func TestAverageTruthScoresSkipsFailedChannels(t *testing.T) {
	got := averageTruthScores(
		successOutcome(AgentWeb, true),
		failedOutcome(AgentRetail, FailureTransient),
		successOutcome(AgentPatent, true),
	)
	if math.Abs(got.Completeness-0.8) > 1e-9 {
		t.Errorf("completeness = %v, want 0.8", got.Completeness)
	}
}

func TestBoundaryThresholds(t *testing.T) {
	// Exactly 0.8 is high; exactly 0.5 is moderate.
	atHigh := aggregatorFor(
		successOutcome(AgentWeb, false, HighSimilarityThreshold),
		successOutcome(AgentRetail, true),
		successOutcome(AgentPatent, true),
	).Run(context.Background(), sampleRequest())
	if atHigh.RiskLevel != RiskHigh {
		t.Errorf("risk at 0.8 = %s", atHigh.RiskLevel)
	}
	atModerate := aggregatorFor(
		successOutcome(AgentWeb, false, ModerateSimilarityThreshold),
		successOutcome(AgentRetail, true),
		successOutcome(AgentPatent, true),
	).Run(context.Background(), sampleRequest())
	if atModerate.RiskLevel != RiskModerate {
		t.Errorf("risk at 0.5 = %s", atModerate.RiskLevel)
	}
}

func TestNextStepsCoverEveryRiskLevel(t *testing.T) {
	for _, risk := range []RiskLevel{RiskHigh, RiskModerate, RiskLow, RiskIncomplete} {
		if len(nextStepsFor(risk)) == 0 {
			t.Errorf("no next steps for %s", risk)
		}
		if recommendationFor(risk) == "" {
			t.Errorf("no recommendation for %s", risk)
		}
	}
}

func TestRunRecordsToMemoryLog(t *testing.T) {
	store, err := memorylog.New(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	ag := NewAggregator(nil, []ChannelAgent{
		&stubAgent{agentType: AgentWeb, outcome: successOutcome(AgentWeb, true)},
		&stubAgent{agentType: AgentRetail, outcome: successOutcome(AgentRetail, true)},
		&stubAgent{agentType: AgentPatent, outcome: successOutcome(AgentPatent, true)},
	}, store)

	req := sampleRequest()
	req.UserID = "u1"
	req.ProjectID = "proj1"
	resp := ag.Run(context.Background(), req)

	entries, err := store.List(context.Background(), "u1", "proj1", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("entries = %d", len(entries))
	}
	if entries[0].Kind != memorylog.KindNoveltyCheck {
		t.Errorf("kind = %s", entries[0].Kind)
	}
	if math.Abs(entries[0].Importance-resp.OverallNoveltyScore) > 1e-9 {
		t.Errorf("importance = %v, want %v", entries[0].Importance, resp.OverallNoveltyScore)
	}
	var content map[string]any
	if err := json.Unmarshal(entries[0].Content, &content); err != nil {
		t.Fatal(err)
	}
	if content["risk_level"] != string(RiskLow) {
		t.Errorf("content = %v", content)
	}
}

func TestRunWithoutUserSkipsMemoryLog(t *testing.T) {
	store, err := memorylog.New(filepath.Join(t.TempDir(), "memory.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	ag := aggregatorFor(successOutcome(AgentWeb, true), successOutcome(AgentRetail, true), successOutcome(AgentPatent, true))
	ag.memory = store
	ag.Run(context.Background(), sampleRequest())

	entries, err := store.List(context.Background(), "", "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("entries = %d, want 0", len(entries))
	}
}

func TestChannelScore(t *testing.T) {
	cases := []struct {
		name string
		o    ChannelOutcome
		want float64
	}{
		{"failed", failedOutcome(AgentWeb, FailureTransient), UnknownChannelScore},
		{"novel", successOutcome(AgentWeb, true), 1.0},
		{"conflict", successOutcome(AgentWeb, false, 0.3, 0.7), 0.3},
	}
	for _, tc := range cases {
		if got := channelScore(tc.o); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("%s: channelScore = %v, want %v", tc.name, got, tc.want)
		}
	}
}
