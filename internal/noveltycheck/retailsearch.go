package noveltycheck

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/inventa-labs/noveltycheck/internal/retry"
)

const DefaultRetailMaxResults = 10

type RetailSearchConfig struct {
	APIKey     string
	BaseURL    string
	MaxResults int
	HTTPClient *http.Client
	// MinInterval overrides the provider-quota request spacing.
	MinInterval time.Duration
}

// RetailClient searches marketplace listings through SerpAPI's Google
// Shopping engine. Same credential and quota as the web channel, separate
// instance so each channel keeps its own request interval.
type RetailClient struct {
	cfg    RetailSearchConfig
	gate   *rateGate
	policy retry.Policy
}

func NewRetailClient(cfg RetailSearchConfig) *RetailClient {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.BaseURL == "" {
		cfg.BaseURL = SerpAPIBaseURL
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultRetailMaxResults
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = serpMinInterval
	}
	p := retry.DefaultPolicy()
	p.Retryable = retryableStatus
	return &RetailClient{cfg: cfg, gate: newRateGate(cfg.MinInterval), policy: p}
}

func (c *RetailClient) Type() AgentType    { return AgentRetail }
func (c *RetailClient) IsConfigured() bool { return c.cfg.APIKey != "" }

// Close releases the client's rate limiter.
func (c *RetailClient) Close() { c.gate.stop() }

func (c *RetailClient) Search(ctx context.Context, query string) ([]Finding, error) {
	if !c.IsConfigured() {
		return nil, fmt.Errorf("retail search: %w (set SERPAPI_API_KEY)", ErrChannelNotConfigured)
	}

	params := url.Values{}
	params.Set("engine", "google_shopping")
	params.Set("q", query)
	params.Set("num", fmt.Sprintf("%d", c.cfg.MaxResults))

	var parsed struct {
		ShoppingResults []struct {
			Title       string  `json:"title"`
			Snippet     string  `json:"snippet"`
			Link        string  `json:"link"`
			ProductLink string  `json:"product_link"`
			Price       string  `json:"price"`
			Rating      float64 `json:"rating"`
			Reviews     int     `json:"reviews"`
			Source      string  `json:"source"`
			Thumbnail   string  `json:"thumbnail"`
		} `json:"shopping_results"`
	}
	if err := serpFetch(ctx, c.cfg.HTTPClient, c.gate, c.policy, c.cfg.BaseURL, c.cfg.APIKey, params, &parsed); err != nil {
		return nil, fmt.Errorf("retail search: %w", err)
	}

	findings := make([]Finding, 0, len(parsed.ShoppingResults))
	seen := map[string]struct{}{}
	for _, r := range parsed.ShoppingResults {
		link := r.ProductLink
		if link == "" {
			link = r.Link
		}
		if link != "" {
			if _, dup := seen[link]; dup {
				continue
			}
			seen[link] = struct{}{}
		}
		meta := map[string]any{}
		if r.Price != "" {
			meta["price"] = r.Price
		}
		if r.Source != "" {
			meta["store"] = r.Source
		}
		if r.Rating > 0 {
			meta["rating"] = r.Rating
		}
		if r.Reviews > 0 {
			meta["reviews"] = r.Reviews
		}
		if r.Thumbnail != "" {
			meta["thumbnail"] = r.Thumbnail
		}
		desc := strings.TrimSpace(r.Snippet)
		if desc == "" && r.Price != "" {
			desc = "Listed at " + r.Price
		}
		source := r.Source
		if source == "" {
			source = "retail"
		}
		findings = append(findings, Finding{
			Title:       strings.TrimSpace(r.Title),
			Description: desc,
			URL:         link,
			Source:      source,
			Metadata:    meta,
		})
		if len(findings) == c.cfg.MaxResults {
			break
		}
	}
	return findings, nil
}
