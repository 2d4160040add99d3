// Package aigateway wraps the language-model providers behind a single
// completion call with provider failover. The primary provider is Anthropic;
// on errors that indicate the provider itself is unusable (billing
// exhaustion, rate limiting, upstream overload, model unavailability) the
// same request is replayed against an OpenAI-compatible fallback with a
// translated model name. Request-shaped errors propagate immediately — they
// would fail identically on the second provider.
package aigateway

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/inventa-labs/noveltycheck/internal/retry"
)

var (
	ErrNotConfigured = errors.New("ai gateway: no provider configured (set ANTHROPIC_API_KEY or OPENAI_API_KEY)")
)

type Options struct {
	System      string
	MaxTokens   int
	Temperature float64
	// Model overrides the provider's configured model. The gateway sets
	// it when replaying a request against the fallback provider.
	Model string
}

type Completion struct {
	Text     string
	Provider string
	Model    string
}

// Provider is a single text-completion backend.
type Provider interface {
	Name() string
	Model() string
	Complete(ctx context.Context, prompt string, opts Options) (string, error)
}

type Gateway struct {
	primary  Provider
	fallback Provider
	policy   retry.Policy
}

// NewGateway builds a gateway from whichever providers are configured.
// Either may be nil; both nil is the one fatal misconfiguration in the
// whole pipeline.
func NewGateway(primary, fallback Provider) (*Gateway, error) {
	if primary == nil && fallback == nil {
		return nil, ErrNotConfigured
	}
	if primary == nil {
		primary = fallback
		fallback = nil
	}
	p := retry.DefaultPolicy()
	p.Retryable = isTransient
	return &Gateway{primary: primary, fallback: fallback, policy: p}, nil
}

func (g *Gateway) PrimaryModel() string { return g.primary.Model() }

// CreateCompletion calls the primary provider with retry on transient
// errors, then fails over to the secondary provider when the final error
// matches the fallback-trigger classes.
func (g *Gateway) CreateCompletion(ctx context.Context, prompt string, opts Options) (Completion, error) {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}

	text, err := g.complete(ctx, g.primary, prompt, opts)
	if err == nil {
		return Completion{Text: text, Provider: g.primary.Name(), Model: g.primary.Model()}, nil
	}
	if g.fallback == nil || !ShouldFallback(err) {
		return Completion{}, fmt.Errorf("%s completion: %w", g.primary.Name(), err)
	}

	mapped := MapModel(g.primary.Model())
	log.Printf("ai-gateway failover primary=%s fallback=%s model=%s err=%q", g.primary.Name(), g.fallback.Name(), mapped, err.Error())
	opts.Model = mapped
	text, ferr := g.complete(ctx, g.fallback, prompt, opts)
	if ferr != nil {
		return Completion{}, fmt.Errorf("fallback %s completion (primary: %v): %w", g.fallback.Name(), err, ferr)
	}
	return Completion{Text: text, Provider: g.fallback.Name(), Model: mapped}, nil
}

func (g *Gateway) complete(ctx context.Context, p Provider, prompt string, opts Options) (string, error) {
	var text string
	started := time.Now()
	stats, err := retry.Do(ctx, g.policy, func(ctx context.Context) error {
		var cerr error
		text, cerr = p.Complete(ctx, prompt, opts)
		return cerr
	})
	if err != nil {
		log.Printf("ai-gateway completion_failed provider=%s attempts=%d elapsed_ms=%d err=%q", p.Name(), stats.Attempts, time.Since(started).Milliseconds(), err.Error())
		return "", err
	}
	return text, nil
}

// ShouldFallback classifies a primary-provider error as eligible for the
// secondary provider. Malformed-prompt and other request-shaped errors are
// excluded on purpose.
func ShouldFallback(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "credit balance"),
		strings.Contains(msg, "billing"),
		strings.Contains(msg, "insufficient_quota"),
		strings.Contains(msg, "quota exceeded"):
		return true
	case strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "status 429"),
		strings.Contains(msg, "status code: 429"):
		return true
	case strings.Contains(msg, "overloaded"),
		strings.Contains(msg, "status 529"),
		strings.Contains(msg, "status code: 529"),
		strings.Contains(msg, "status 503"),
		strings.Contains(msg, "status code: 503"):
		return true
	case (strings.Contains(msg, "status 400") || strings.Contains(msg, "status code: 400") || strings.Contains(msg, "status 404") || strings.Contains(msg, "status code: 404")) && strings.Contains(msg, "model"):
		// Bad-request shapes that name the model indicate model
		// unavailability, not a malformed prompt.
		return true
	}
	return false
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "status 429"), strings.Contains(msg, "status code: 429"), strings.Contains(msg, "rate limit"):
		return true
	case strings.Contains(msg, "status 5"), strings.Contains(msg, "status code: 5"), strings.Contains(msg, "server error"), strings.Contains(msg, "overloaded"):
		return true
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "connection reset"), strings.Contains(msg, "connection refused"):
		return true
	}
	return false
}
