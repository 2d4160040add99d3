package aigateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/inventa-labs/noveltycheck/internal/retry"
)

type fakeProvider struct {
	name      string
	model     string
	responses []string
	errs      []error
	idx       int
	seenOpts  []Options
}

func (f *fakeProvider) Name() string  { return f.name }
func (f *fakeProvider) Model() string { return f.model }

func (f *fakeProvider) Complete(_ context.Context, _ string, opts Options) (string, error) {
	f.seenOpts = append(f.seenOpts, opts)
	i := f.idx
	f.idx++
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return "", nil
}

func fastGateway(primary, fallback Provider) *Gateway {
	g, err := NewGateway(primary, fallback)
	if err != nil {
		panic(err)
	}
	g.policy = retry.Policy{MaxAttempts: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Retryable: isTransient}
	return g
}

func TestNewGatewayRequiresAProvider(t *testing.T) {
	_, err := NewGateway(nil, nil)
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestCreateCompletionPrimarySuccess(t *testing.T) {
	p := &fakeProvider{name: "anthropic", model: "claude-sonnet-4-5-20250929", responses: []string{"hello"}}
	g := fastGateway(p, &fakeProvider{name: "openai", model: "gpt-4o"})
	out, err := g.CreateCompletion(context.Background(), "prompt", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if out.Text != "hello" || out.Provider != "anthropic" {
		t.Fatalf("unexpected completion %+v", out)
	}
}

func TestCreateCompletionRateLimitFallsBackWithMappedModel(t *testing.T) {
	rateLimited := errors.New("status code: 429 rate limit exceeded")
	p := &fakeProvider{name: "anthropic", model: "claude-3-5-haiku-20241022", errs: []error{rateLimited, rateLimited}}
	f := &fakeProvider{name: "openai", model: "gpt-4o", responses: []string{"fallback answer"}}
	g := fastGateway(p, f)

	out, err := g.CreateCompletion(context.Background(), "prompt", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if out.Provider != "openai" || out.Text != "fallback answer" {
		t.Fatalf("expected fallback completion, got %+v", out)
	}
	if out.Model != "gpt-4o-mini" {
		t.Fatalf("expected mapped model gpt-4o-mini, got %s", out.Model)
	}
	if len(f.seenOpts) != 1 || f.seenOpts[0].Model != "gpt-4o-mini" {
		t.Fatalf("expected fallback called with mapped model, got %+v", f.seenOpts)
	}
}

func TestCreateCompletionBillingExhaustionFallsBackWithoutRetry(t *testing.T) {
	p := &fakeProvider{name: "anthropic", model: "claude-sonnet-4-5-20250929", errs: []error{errors.New("your credit balance is too low")}}
	f := &fakeProvider{name: "openai", model: "gpt-4o", responses: []string{"ok"}}
	g := fastGateway(p, f)

	out, err := g.CreateCompletion(context.Background(), "prompt", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if p.idx != 1 {
		t.Fatalf("billing errors are not transient, expected 1 primary attempt, got %d", p.idx)
	}
	if out.Provider != "openai" {
		t.Fatalf("expected fallback, got %+v", out)
	}
}

func TestCreateCompletionMalformedPromptDoesNotFallBack(t *testing.T) {
	p := &fakeProvider{name: "anthropic", model: "claude-sonnet-4-5-20250929", errs: []error{errors.New("status code: 400 invalid request: prompt too long")}}
	f := &fakeProvider{name: "openai", model: "gpt-4o", responses: []string{"should not be used"}}
	g := fastGateway(p, f)

	_, err := g.CreateCompletion(context.Background(), "prompt", Options{})
	if err == nil {
		t.Fatal("expected error to propagate")
	}
	if f.idx != 0 {
		t.Fatalf("fallback must not be attempted for request errors, got %d calls", f.idx)
	}
}

func TestCreateCompletionTransientRetriesThenSucceeds(t *testing.T) {
	p := &fakeProvider{name: "anthropic", model: "claude-sonnet-4-5-20250929", errs: []error{errors.New("status code: 529 overloaded")}, responses: []string{"", "recovered"}}
	g := fastGateway(p, nil)
	out, err := g.CreateCompletion(context.Background(), "prompt", Options{})
	if err != nil {
		t.Fatal(err)
	}
	if out.Text != "recovered" || p.idx != 2 {
		t.Fatalf("expected retry then success, got %+v calls=%d", out, p.idx)
	}
}

func TestShouldFallbackClasses(t *testing.T) {
	cases := []struct {
		err  string
		want bool
	}{
		{"your credit balance is too low", true},
		{"insufficient_quota for this key", true},
		{"status code: 429", true},
		{"status code: 529 overloaded", true},
		{"status code: 404 model not found", true},
		{"status code: 400 the model claude-x is deprecated", true},
		{"status code: 400 invalid request body", false},
		{"connection refused", false},
	}
	for _, c := range cases {
		if got := ShouldFallback(errors.New(c.err)); got != c.want {
			t.Fatalf("ShouldFallback(%q) = %v, want %v", c.err, got, c.want)
		}
	}
}

func TestMapModelDefaultsForUnknown(t *testing.T) {
	if got := MapModel("some-future-model"); got != DefaultOpenAIModel {
		t.Fatalf("expected default fallback model, got %s", got)
	}
	if got := MapModel("claude-3-5-haiku-20241022"); got != "gpt-4o-mini" {
		t.Fatalf("expected haiku mapping, got %s", got)
	}
}
