package noveltycheck

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/inventa-labs/noveltycheck/internal/searchcache"
)

// Sentinel conditions shared by the channel clients. Agents translate them
// to FailureKind; nothing else inspects them.
var (
	ErrChannelNotConfigured = errors.New("search channel not configured")
	ErrAuthRejected         = errors.New("search provider rejected credentials")
)

// SearchClient is one external search channel. Search returns normalized,
// unscored findings; similarity scoring happens in the model-analysis phase
// because only a semantic comparison against the invention can assign it.
type SearchClient interface {
	Type() AgentType
	IsConfigured() bool
	Search(ctx context.Context, query string) ([]Finding, error)
}

// rateGate enforces a minimum inter-request interval per client instance,
// shared across every agent that holds the client in the same run. The gate
// starts primed: the first wait passes immediately, later waits pace on the
// ticker.
type rateGate struct {
	ticker *time.Ticker
	first  chan struct{}
}

func newRateGate(interval time.Duration) *rateGate {
	g := &rateGate{ticker: time.NewTicker(interval), first: make(chan struct{}, 1)}
	g.first <- struct{}{}
	return g
}

func (g *rateGate) wait(ctx context.Context) error {
	select {
	case <-g.first:
		return nil
	default:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-g.ticker.C:
		return nil
	}
}

func (g *rateGate) stop() { g.ticker.Stop() }

// classifyFailure maps a client error to the failure taxonomy the
// aggregator reports on.
func classifyFailure(err error) FailureKind {
	switch {
	case errors.Is(err, ErrChannelNotConfigured):
		return FailureNotConfigured
	case errors.Is(err, ErrAuthRejected):
		return FailureAuth
	}
	var se *statusError
	if errors.As(err, &se) {
		switch {
		case se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden:
			return FailureAuth
		case se.Code == http.StatusBadRequest:
			return FailureBadRequest
		}
	}
	return FailureTransient
}

// statusError carries the upstream HTTP status so retry predicates and the
// failure classifier do not parse message text.
type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("status code: %d", e.Code)
	}
	return fmt.Sprintf("status code: %d body=%s", e.Code, e.Body)
}

// redactedError hides a credential in the wrapped error's text. Unwrap keeps
// the chain intact for the retry predicate and the failure classifier.
type redactedError struct {
	err    error
	secret string
}

func (e *redactedError) Error() string {
	return strings.ReplaceAll(e.err.Error(), e.secret, "REDACTED")
}

func (e *redactedError) Unwrap() error { return e.err }

// redactCredential wraps err so secret never appears in logs. Transport
// errors stringify the full request URL, which carries the key for providers
// that authenticate via query parameter.
func redactCredential(err error, secret string) error {
	if err == nil || secret == "" || !strings.Contains(err.Error(), secret) {
		return err
	}
	return &redactedError{err: err, secret: secret}
}

// retryableStatus is the shared retry predicate: rate limits, upstream 5xx,
// and network timeouts retry; auth and bad-request errors do not.
func retryableStatus(err error) bool {
	if err == nil {
		return false
	}
	var se *statusError
	if errors.As(err, &se) {
		return se.Code == http.StatusTooManyRequests || se.Code >= 500
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// CachedSearcher routes Search calls through the result cache. Cache errors
// never propagate; a broken cache degrades to always calling upstream.
type CachedSearcher struct {
	client SearchClient
	cache  *searchcache.Store
}

func NewCachedSearcher(client SearchClient, cache *searchcache.Store) *CachedSearcher {
	return &CachedSearcher{client: client, cache: cache}
}

func (c *CachedSearcher) Type() AgentType    { return c.client.Type() }
func (c *CachedSearcher) IsConfigured() bool { return c.client.IsConfigured() }

// Close releases the wrapped client's resources when it has any.
func (c *CachedSearcher) Close() {
	if cl, ok := c.client.(interface{ Close() }); ok {
		cl.Close()
	}
}

func (c *CachedSearcher) Search(ctx context.Context, query string) ([]Finding, error) {
	searchType := string(c.client.Type())
	params := map[string]any{"query": query}

	if c.cache != nil {
		hit, ok, err := c.cache.Get(searchType, params)
		if err != nil {
			log.Printf("novelty-check cache_read_failed channel=%s err=%q", searchType, err.Error())
		} else if ok {
			var findings []Finding
			if derr := json.Unmarshal(hit.Results, &findings); derr == nil {
				log.Printf("novelty-check cache_hit channel=%s query=%q count=%d", searchType, query, len(findings))
				return findings, nil
			} else {
				log.Printf("novelty-check cache_decode_failed channel=%s err=%q", searchType, derr.Error())
			}
		}
	}

	findings, err := c.client.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		if err := c.cache.Put(searchType, params, findings, sourceLabel(c.client.Type())); err != nil {
			log.Printf("novelty-check cache_write_failed channel=%s err=%q", searchType, err.Error())
		}
	}
	return findings, nil
}

func sourceLabel(t AgentType) string {
	switch t {
	case AgentWeb:
		return "serpapi_google"
	case AgentRetail:
		return "serpapi_google_shopping"
	case AgentPatent:
		return "patentsview"
	default:
		return string(t)
	}
}
