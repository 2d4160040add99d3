package noveltycheck

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/inventa-labs/noveltycheck/internal/retry"
)

const (
	SerpAPIBaseURL = "https://serpapi.com/search"

	// SerpAPI free-tier quota is one request per second.
	serpMinInterval = time.Second

	DefaultWebMaxResults = 10
)

type WebSearchConfig struct {
	APIKey     string
	BaseURL    string
	MaxResults int
	// AllowedDomains restricts results with site: operators when set.
	AllowedDomains []string
	HTTPClient     *http.Client
	// MinInterval overrides the provider-quota request spacing.
	MinInterval time.Duration
}

// WebClient searches the general web through SerpAPI's Google engine.
type WebClient struct {
	cfg    WebSearchConfig
	gate   *rateGate
	policy retry.Policy
}

func NewWebClient(cfg WebSearchConfig) *WebClient {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.BaseURL == "" {
		cfg.BaseURL = SerpAPIBaseURL
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultWebMaxResults
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = serpMinInterval
	}
	p := retry.DefaultPolicy()
	p.Retryable = retryableStatus
	return &WebClient{cfg: cfg, gate: newRateGate(cfg.MinInterval), policy: p}
}

func (c *WebClient) Type() AgentType    { return AgentWeb }
func (c *WebClient) IsConfigured() bool { return c.cfg.APIKey != "" }

// Close releases the client's rate limiter.
func (c *WebClient) Close() { c.gate.stop() }

func (c *WebClient) Search(ctx context.Context, query string) ([]Finding, error) {
	if !c.IsConfigured() {
		return nil, fmt.Errorf("web search: %w (set SERPAPI_API_KEY)", ErrChannelNotConfigured)
	}
	q := query
	if len(c.cfg.AllowedDomains) > 0 {
		sites := make([]string, 0, len(c.cfg.AllowedDomains))
		for _, d := range c.cfg.AllowedDomains {
			if d = strings.TrimSpace(d); d != "" {
				sites = append(sites, "site:"+d)
			}
		}
		if len(sites) > 0 {
			q = query + " (" + strings.Join(sites, " OR ") + ")"
		}
	}

	params := url.Values{}
	params.Set("engine", "google")
	params.Set("q", q)
	params.Set("num", fmt.Sprintf("%d", c.cfg.MaxResults))

	var parsed struct {
		OrganicResults []struct {
			Title          string `json:"title"`
			Snippet        string `json:"snippet"`
			Link           string `json:"link"`
			DisplayedLink  string `json:"displayed_link"`
			Source         string `json:"source"`
			Date           string `json:"date"`
		} `json:"organic_results"`
	}
	if err := c.fetch(ctx, params, &parsed); err != nil {
		return nil, fmt.Errorf("web search: %w", err)
	}

	findings := make([]Finding, 0, len(parsed.OrganicResults))
	seen := map[string]struct{}{}
	for _, r := range parsed.OrganicResults {
		if r.Link != "" {
			if _, dup := seen[r.Link]; dup {
				continue
			}
			seen[r.Link] = struct{}{}
		}
		meta := map[string]any{}
		if r.DisplayedLink != "" {
			meta["displayed_link"] = r.DisplayedLink
		}
		if r.Date != "" {
			meta["date"] = r.Date
		}
		source := r.Source
		if source == "" {
			source = "web"
		}
		findings = append(findings, Finding{
			Title:       strings.TrimSpace(r.Title),
			Description: strings.TrimSpace(r.Snippet),
			URL:         r.Link,
			Source:      source,
			Metadata:    meta,
		})
		if len(findings) == c.cfg.MaxResults {
			break
		}
	}
	return findings, nil
}

// fetch runs one rate-gated SerpAPI request with retry on transient errors.
// Shared with the retail client, which differs only in engine and parsing.
func (c *WebClient) fetch(ctx context.Context, params url.Values, out any) error {
	return serpFetch(ctx, c.cfg.HTTPClient, c.gate, c.policy, c.cfg.BaseURL, c.cfg.APIKey, params, out)
}

func serpFetch(ctx context.Context, client *http.Client, gate *rateGate, policy retry.Policy, baseURL, apiKey string, params url.Values, out any) error {
	params.Set("api_key", apiKey)
	endpoint := baseURL + "?" + params.Encode()

	_, err := retry.Do(ctx, policy, func(ctx context.Context) error {
		if err := gate.wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		res, err := client.Do(req)
		if err != nil {
			return redactCredential(err, apiKey)
		}
		defer res.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(res.Body, 2<<20))
		if res.StatusCode >= 400 {
			return &statusError{Code: res.StatusCode, Body: truncateBody(b)}
		}
		return json.Unmarshal(b, out)
	})
	return err
}

func truncateBody(b []byte) string {
	const max = 512
	s := strings.TrimSpace(string(b))
	if len(s) > max {
		return s[:max]
	}
	return s
}
