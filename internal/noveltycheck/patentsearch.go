package noveltycheck

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/inventa-labs/noveltycheck/internal/retry"
)

const (
	PatentsViewBaseURL  = "https://search.patentsview.org"
	patentsViewHitPath  = "/api/v1/patent/"
	patentsViewPTABPath = "/api/v1/ptab/"

	// PatentsView publishes a 45 requests/minute quota per key.
	patentsViewRateLimitPerMinute = 45

	DefaultPatentMaxResults = 20
)

type PatentSearchConfig struct {
	APIKey             string
	BaseURL            string
	MaxResults         int
	RateLimitPerMinute int
	HTTPClient         *http.Client
}

// PatentClient searches two PatentsView indexes: the granted-patent index as
// the primary source and the PTAB proceedings index as the supplementary
// disputed-patent source. Results are merged by normalized patent number; a
// patent under an active or past challenge is flagged, since a disputed
// patent is a stronger prior-art risk signal than an uncontested one.
type PatentClient struct {
	cfg    PatentSearchConfig
	gate   *rateGate
	policy retry.Policy
}

func NewPatentClient(cfg PatentSearchConfig) *PatentClient {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.BaseURL == "" {
		cfg.BaseURL = PatentsViewBaseURL
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = DefaultPatentMaxResults
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.RateLimitPerMinute <= 0 {
		cfg.RateLimitPerMinute = patentsViewRateLimitPerMinute
	}
	p := retry.DefaultPolicy()
	p.Retryable = retryableStatus
	interval := time.Minute / time.Duration(cfg.RateLimitPerMinute)
	return &PatentClient{cfg: cfg, gate: newRateGate(interval), policy: p}
}

func (c *PatentClient) Type() AgentType    { return AgentPatent }
func (c *PatentClient) IsConfigured() bool { return c.cfg.APIKey != "" }

// Close releases the client's rate limiter.
func (c *PatentClient) Close() { c.gate.stop() }

type patentHit struct {
	PatentID       string `json:"patent_id"`
	PatentTitle    string `json:"patent_title"`
	PatentAbstract string `json:"patent_abstract"`
	PatentDate     string `json:"patent_date"`
	Assignees      []struct {
		AssigneeOrganization string `json:"assignee_organization"`
	} `json:"assignees"`
}

type ptabHit struct {
	ProceedingNumber         string `json:"proceeding_number"`
	PatentNumber             string `json:"patent_number"`
	PatentTitle              string `json:"patent_title"`
	ProceedingStatusCategory string `json:"proceeding_status_category"`
	DecisionDate             string `json:"decision_date"`
}

func (c *PatentClient) Search(ctx context.Context, query string) ([]Finding, error) {
	if !c.IsConfigured() {
		return nil, fmt.Errorf("patent search: %w (set PATENTSVIEW_API_KEY)", ErrChannelNotConfigured)
	}

	patents, err := c.grantedSearch(ctx, query)
	if err != nil {
		// Complex queries are a known cause of 400s here. One retry with
		// a simplified query, then give up.
		var se *statusError
		if errors.As(err, &se) && se.Code == http.StatusBadRequest {
			simplified := sanitizePatentQuery(query)
			if simplified != "" && simplified != query {
				log.Printf("novelty-check patent_query_sanitized query=%q simplified=%q", query, simplified)
				patents, err = c.grantedSearch(ctx, simplified)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("patent search: %w", err)
		}
	}

	byNumber := map[string]int{}
	findings := make([]Finding, 0, len(patents))
	for _, p := range patents {
		num := normalizePatentNumber(p.PatentID)
		if num == "" {
			continue
		}
		if _, dup := byNumber[num]; dup {
			continue
		}
		meta := map[string]any{"patent_number": p.PatentID}
		if p.PatentDate != "" {
			meta["grant_date"] = p.PatentDate
		}
		if len(p.Assignees) > 0 && p.Assignees[0].AssigneeOrganization != "" {
			meta["assignee"] = p.Assignees[0].AssigneeOrganization
		}
		byNumber[num] = len(findings)
		findings = append(findings, Finding{
			Title:       strings.TrimSpace(p.PatentTitle),
			Description: strings.TrimSpace(p.PatentAbstract),
			URL:         "https://patents.google.com/patent/US" + p.PatentID,
			Source:      "patentsview",
			Metadata:    meta,
		})
		if len(findings) == c.cfg.MaxResults {
			break
		}
	}

	// The disputed index is supplementary; its failure degrades to
	// granted-only results rather than failing the channel.
	proceedings, perr := c.ptabSearch(ctx, query)
	if perr != nil {
		log.Printf("novelty-check ptab_search_failed query=%q err=%q", query, perr.Error())
		return findings, nil
	}
	for _, pr := range proceedings {
		num := normalizePatentNumber(pr.PatentNumber)
		if num == "" {
			continue
		}
		if idx, ok := byNumber[num]; ok {
			findings[idx].Metadata["challenged"] = true
			findings[idx].Metadata["proceeding_number"] = pr.ProceedingNumber
			if pr.ProceedingStatusCategory != "" {
				findings[idx].Metadata["proceeding_status"] = pr.ProceedingStatusCategory
			}
			continue
		}
		if len(findings) >= c.cfg.MaxResults {
			continue
		}
		meta := map[string]any{
			"patent_number":     pr.PatentNumber,
			"challenged":        true,
			"proceeding_number": pr.ProceedingNumber,
		}
		if pr.ProceedingStatusCategory != "" {
			meta["proceeding_status"] = pr.ProceedingStatusCategory
		}
		if pr.DecisionDate != "" {
			meta["decision_date"] = pr.DecisionDate
		}
		byNumber[num] = len(findings)
		findings = append(findings, Finding{
			Title:       strings.TrimSpace(pr.PatentTitle),
			Description: "Patent subject to a PTAB proceeding (" + pr.ProceedingNumber + ")",
			URL:         "https://patents.google.com/patent/US" + pr.PatentNumber,
			Source:      "ptab",
			Metadata:    meta,
		})
	}
	return findings, nil
}

func (c *PatentClient) grantedSearch(ctx context.Context, query string) ([]patentHit, error) {
	body := map[string]any{
		"q": map[string]any{"_or": []any{
			map[string]any{"_text_any": map[string]any{"patent_title": query}},
			map[string]any{"_text_any": map[string]any{"patent_abstract": query}},
		}},
		"f": []string{"patent_id", "patent_title", "patent_abstract", "patent_date", "assignees.assignee_organization"},
		"s": []map[string]string{{"patent_date": "desc"}, {"patent_id": "asc"}},
		"o": map[string]int{"size": c.cfg.MaxResults},
	}
	var parsed struct {
		Error   bool        `json:"error"`
		Patents []patentHit `json:"patents"`
	}
	if err := c.post(ctx, patentsViewHitPath, body, &parsed); err != nil {
		return nil, err
	}
	if parsed.Error {
		return nil, errors.New("patentsview error flag set")
	}
	return parsed.Patents, nil
}

func (c *PatentClient) ptabSearch(ctx context.Context, query string) ([]ptabHit, error) {
	body := map[string]any{
		"q": map[string]any{"_text_any": map[string]any{"patent_title": query}},
		"f": []string{"proceeding_number", "patent_number", "patent_title", "proceeding_status_category", "decision_date"},
		"o": map[string]int{"size": c.cfg.MaxResults},
	}
	var parsed struct {
		Error bool      `json:"error"`
		PTAB  []ptabHit `json:"ptab"`
	}
	if err := c.post(ctx, patentsViewPTABPath, body, &parsed); err != nil {
		return nil, err
	}
	if parsed.Error {
		return nil, errors.New("patentsview error flag set")
	}
	return parsed.PTAB, nil
}

func (c *PatentClient) post(ctx context.Context, path string, body map[string]any, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + path

	_, err = retry.Do(ctx, c.policy, func(ctx context.Context) error {
		if err := c.gate.wait(ctx); err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Api-Key", c.cfg.APIKey)

		res, err := c.cfg.HTTPClient.Do(req)
		if err != nil {
			return err
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

func stripNonAlnum(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, s)
}

// sanitizePatentQuery reduces a rejected query to plain keyword tokens.
func sanitizePatentQuery(query string) string {
	tokens := strings.Fields(stripNonAlnum(query))
	out := make([]string, 0, 8)
	for _, t := range tokens {
		if len(t) <= 2 {
			continue
		}
		out = append(out, t)
		if len(out) == 8 {
			break
		}
	}
	return strings.Join(out, " ")
}

// normalizePatentNumber strips formatting and country prefix so the granted
// and PTAB indexes key identically.
func normalizePatentNumber(num string) string {
	n := strings.ToUpper(stripNonAlnum(num))
	n = strings.ReplaceAll(n, " ", "")
	n = strings.TrimPrefix(n, "US")
	n = strings.TrimLeft(n, "0")
	return n
}
