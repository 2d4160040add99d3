// Package noveltycheck implements the novelty-assessment pipeline: three
// channel search agents (general web, retail, patent registry) run
// concurrently, score their findings against the invention with a language
// model, and an aggregator blends the per-channel results into a single
// risk verdict.
package noveltycheck

import "time"

type AgentType string

const (
	AgentWeb    AgentType = "web"
	AgentRetail AgentType = "retail"
	AgentPatent AgentType = "patent"
)

type RiskLevel string

const (
	RiskHigh       RiskLevel = "high_risk"
	RiskModerate   RiskLevel = "moderate_risk"
	RiskLow        RiskLevel = "low_risk"
	RiskIncomplete RiskLevel = "incomplete"
)

// Policy constants. The similarity boundaries are inherited behavior, not
// derived values; keep them named and overridable rather than re-tuning.
const (
	HighSimilarityThreshold     = 0.8
	ModerateSimilarityThreshold = 0.5

	WebWeight    = 0.3
	RetailWeight = 0.3
	PatentWeight = 0.4

	// UnknownChannelScore stands in for a failed channel in the blend.
	UnknownChannelScore = 0.5

	MaxQueries     = 5
	MaxKeyFeatures = 5

	// ZeroFindingConfidence applies when a channel succeeds but finds
	// nothing: absence of evidence is a positive novelty signal, but a
	// weaker one than a confirmed match would be in the other direction.
	ZeroFindingConfidence = 0.6
)

// Request is the immutable input to the pipeline, one per user submission.
type Request struct {
	InventionName    string   `json:"invention_name"`
	Description      string   `json:"description"`
	ProblemStatement string   `json:"problem_statement,omitempty"`
	TargetAudience   string   `json:"target_audience,omitempty"`
	KeyFeatures      []string `json:"key_features,omitempty"`

	// Identity for the optional memory-log side effect; the pipeline
	// performs no authentication of its own.
	UserID    string `json:"user_id,omitempty"`
	ProjectID string `json:"project_id,omitempty"`
}

// Expanded is the AI-enriched profile of a request: technical vocabulary,
// capped feature and query lists. Computed once per run, never persisted on
// its own.
type Expanded struct {
	ExpandedDescription string   `json:"expanded_description"`
	KeyFeatures         []string `json:"key_features"`
	ProductCategory     string   `json:"product_category"`
	Differentiators     []string `json:"differentiators"`
	WebQueries          []string `json:"web_queries"`
	RetailQueries       []string `json:"retail_queries"`
	PatentQueries       []string `json:"patent_queries"`
}

// Finding is one external search result. Channel clients produce it
// unscored; the model-analysis phase fills in SimilarityScore, which is
// invention-specific — not the source API's generic relevance.
type Finding struct {
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	URL             string         `json:"url,omitempty"`
	SimilarityScore float64        `json:"similarity_score"`
	Source          string         `json:"source"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// TruthScores are the four graduated confidence axes attached to every
// channel result and to the aggregate. Completeness == 0 is reserved for
// channel failure and never produced by a successful run.
type TruthScores struct {
	ObjectiveTruth  float64 `json:"objective_truth"`
	PracticalTruth  float64 `json:"practical_truth"`
	Completeness    float64 `json:"completeness"`
	ContextualScope float64 `json:"contextual_scope"`
}

// ChannelResult is one channel's verdict for a single run. Findings are
// ordered by descending similarity.
type ChannelResult struct {
	AgentType   AgentType   `json:"agent_type"`
	IsNovel     bool        `json:"is_novel"`
	Confidence  float64     `json:"confidence"`
	Findings    []Finding   `json:"findings"`
	Summary     string      `json:"summary"`
	TruthScores TruthScores `json:"truth_scores"`
	QueriesUsed []string    `json:"queries_used"`
	CreatedAt   time.Time   `json:"created_at"`
}

type FailureKind string

const (
	FailureNotConfigured FailureKind = "not_configured"
	FailureAuth          FailureKind = "auth"
	FailureTransient     FailureKind = "transient"
	FailureBadRequest    FailureKind = "bad_request"
)

type FailureReason struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

// ChannelOutcome tags a channel run as succeeded or failed explicitly, so
// the aggregator's failure detection is a field check rather than a
// magic-number comparison. The embedded result still carries the
// completeness-zero convention for consumers of the serialized form.
type ChannelOutcome struct {
	Result  ChannelResult  `json:"result"`
	Failure *FailureReason `json:"failure,omitempty"`
}

func (o ChannelOutcome) Failed() bool { return o.Failure != nil }

func (o ChannelOutcome) maxSimilarity() float64 {
	max := 0.0
	for _, f := range o.Result.Findings {
		if f.SimilarityScore > max {
			max = f.SimilarityScore
		}
	}
	return max
}

// Response is the aggregate verdict. RiskLevel is the primary signal;
// OverallNoveltyScore is the weighted blend retained alongside it.
type Response struct {
	OverallNoveltyScore float64       `json:"overall_novelty_score"`
	RiskLevel           RiskLevel     `json:"risk_level"`
	Web                 ChannelResult `json:"web"`
	Retail              ChannelResult `json:"retail"`
	Patent              ChannelResult `json:"patent"`
	Recommendation      string        `json:"recommendation"`
	NextSteps           []string      `json:"next_steps"`
	TruthScores         TruthScores   `json:"truth_scores"`
	Metadata            RunMetadata   `json:"metadata"`
}

type RunMetadata struct {
	StartedAt      time.Time        `json:"started_at"`
	CompletedAt    time.Time        `json:"completed_at"`
	DurationMS     int64            `json:"duration_ms"`
	Expanded       bool             `json:"expanded"`
	FailedChannels []AgentType      `json:"failed_channels,omitempty"`
	ChannelElapsed map[string]int64 `json:"channel_elapsed_ms,omitempty"`
}
