// Package caselaw looks up published precedents through the Tavily search API.
package caselaw

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net"
	"net/http"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/LalaIAm/case-agent/pkg/domain/interfaces"
	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
	"github.com/LalaIAm/case-agent/pkg/utils/logging"
	"github.com/LalaIAm/case-agent/pkg/utils/retry"
	"github.com/LalaIAm/case-agent/pkg/utils/safe"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/time/rate"
)

const (
	DefaultEndpoint   = "https://api.tavily.com/search"
	DefaultMinScore   = 0.4
	DefaultCacheTTL   = time.Hour
	DefaultCacheSize  = 256
	DefaultMaxResults = 5

	maxExcerpt = 500
)

// DefaultDomains are the legal research sites searched for precedents
var DefaultDomains = []string{
	"law.cornell.edu",
	"justia.com",
	"casetext.com",
	"courtlistener.com",
	"mn.gov",
}

var spaces = regexp.MustCompile(`\s+`)

// Client searches the web for case law. Results are cleaned, filtered by score,
// de-duplicated by URL and cached per query in a bounded LRU.
type Client struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client
	domains    []string
	depth      string
	minScore   float64
	limiter    *rate.Limiter
	policy     retry.Policy
	cacheTTL   time.Duration
	cacheSize  int

	// nil when caching is disabled
	cache *expirable.LRU[string, []*model.CaseLawHit]
}

var _ interfaces.CaseLawSearcher = &Client{}

type Option func(*Client)

// WithEndpoint replaces the search API URL
func WithEndpoint(url string) Option {
	return func(c *Client) {
		c.endpoint = url
	}
}

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithDomains restricts results to the given sites. Empty searches the whole web.
func WithDomains(domains ...string) Option {
	return func(c *Client) {
		c.domains = domains
	}
}

// WithSearchDepth sets the search depth, "basic" or "advanced"
func WithSearchDepth(depth string) Option {
	return func(c *Client) {
		c.depth = depth
	}
}

// WithMinScore drops results scored below score
func WithMinScore(score float64) Option {
	return func(c *Client) {
		c.minScore = score
	}
}

// WithRequestsPerMinute limits outgoing searches. A non-positive value disables limiting.
func WithRequestsPerMinute(rpm int) Option {
	return func(c *Client) {
		if rpm <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), max(rpm/10, 1))
	}
}

// WithRetryPolicy replaces the transient failure retry policy
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) {
		c.policy = p
	}
}

// WithCacheTTL sets how long results are reused. Zero disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		c.cacheTTL = ttl
	}
}

// WithCacheSize bounds the number of cached queries. Zero disables caching.
func WithCacheSize(n int) Option {
	return func(c *Client) {
		c.cacheSize = n
	}
}

func New(apiKey string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, goerr.New("case law search API key is required")
	}

	c := &Client{
		apiKey:     apiKey,
		endpoint:   DefaultEndpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		domains:    DefaultDomains,
		depth:      "advanced",
		minScore:   DefaultMinScore,
		limiter:    rate.NewLimiter(rate.Every(time.Minute/100), 10),
		policy:     retry.DefaultPolicy(),
		cacheTTL:   DefaultCacheTTL,
		cacheSize:  DefaultCacheSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.cacheTTL > 0 && c.cacheSize > 0 {
		c.cache = expirable.NewLRU[string, []*model.CaseLawHit](c.cacheSize, nil, c.cacheTTL)
	}
	return c, nil
}

type searchRequest struct {
	Query          string   `json:"query"`
	SearchDepth    string   `json:"search_depth"`
	MaxResults     int      `json:"max_results"`
	Topic          string   `json:"topic"`
	IncludeDomains []string `json:"include_domains,omitempty"`
}

type searchResult struct {
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Content       string  `json:"content"`
	Score         float64 `json:"score"`
	PublishedDate string  `json:"published_date"`
}

type searchResponse struct {
	Query   string         `json:"query"`
	Results []searchResult `json:"results"`
}

// SearchCaseLaw runs one web search. The jurisdiction is appended to the query.
// Rate limits, timeouts and server errors are retried and then reported as
// model.ErrTransientService.
func (c *Client) SearchCaseLaw(ctx context.Context, query model.CaseLawQuery) ([]*model.CaseLawHit, error) {
	text := strings.TrimSpace(query.Query)
	if text == "" {
		return nil, goerr.Wrap(model.ErrValidation, "case law query is empty")
	}
	if j := strings.TrimSpace(query.Jurisdiction); j != "" && !strings.Contains(strings.ToLower(text), strings.ToLower(j)) {
		text += " " + j
	}
	maxResults := query.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	key := fmt.Sprintf("%s|%d", text, maxResults)
	if hits, ok := c.cached(key); ok {
		return hits, nil
	}

	req := searchRequest{
		Query:          text,
		SearchDepth:    c.depth,
		MaxResults:     maxResults,
		Topic:          "general",
		IncludeDomains: c.domains,
	}

	var resp *searchResponse
	attempts, err := retry.Do(ctx, c.policy, retry.Options{
		Retryable: func(err error) bool {
			return model.KindOf(err) == types.ErrorKindTransientService
		},
		OnRetry: func(a retry.Attempt) {
			logging.From(ctx).Warn("case law search failed, retrying", "attempt", a.Number, "wait", a.Wait, "error", a.Err)
		},
	}, func(ctx context.Context, attempt int) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return goerr.Wrap(err, "rate limiter wait failed")
		}
		r, err := c.post(ctx, req)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, goerr.Wrap(err, "case law search failed", goerr.V("query", text), goerr.V("attempts", attempts))
	}

	hits := c.refine(resp.Results)
	c.store(key, hits)
	logging.From(ctx).Debug("case law search", "query", text, "results", len(resp.Results), "kept", len(hits))
	return cloneHits(hits), nil
}

func (c *Client) post(ctx context.Context, body searchRequest) (*searchResponse, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to encode search request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build search request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) || model.IsTransientMessage(err.Error()) {
			return nil, goerr.Wrap(model.ErrTransientService, "search request failed", goerr.V("error", err.Error()))
		}
		return nil, goerr.Wrap(err, "search request failed")
	}
	defer safe.Close(ctx, httpResp.Body)

	raw, err := io.ReadAll(io.LimitReader(httpResp.Body, 4<<20))
	if err != nil {
		return nil, goerr.Wrap(model.ErrTransientService, "failed to read search response", goerr.V("error", err.Error()))
	}

	switch {
	case httpResp.StatusCode == http.StatusTooManyRequests || httpResp.StatusCode >= 500:
		return nil, goerr.Wrap(model.ErrTransientService, "search service unavailable",
			goerr.V("status", httpResp.StatusCode),
			goerr.V("body", truncate(string(raw), 200)))
	case httpResp.StatusCode != http.StatusOK:
		return nil, goerr.New("search request rejected",
			goerr.V("status", httpResp.StatusCode),
			goerr.V("body", truncate(string(raw), 200)))
	}

	var resp searchResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, goerr.Wrap(err, "failed to decode search response")
	}
	return &resp, nil
}

// refine cleans each result, drops low scores and repeated URLs, best first
func (c *Client) refine(results []searchResult) []*model.CaseLawHit {
	seen := make(map[string]struct{}, len(results))
	hits := make([]*model.CaseLawHit, 0, len(results))
	for _, r := range results {
		hit := Clean(r.Title, r.URL, r.Content, r.Score, r.PublishedDate)
		if hit.URL == "" || hit.Content == "" || hit.Score < c.minScore {
			continue
		}
		if _, ok := seen[hit.URL]; ok {
			continue
		}
		seen[hit.URL] = struct{}{}
		hits = append(hits, hit)
	}
	slices.SortStableFunc(hits, func(a, b *model.CaseLawHit) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	return hits
}

// Clean normalizes a raw search result: HTML entities are decoded, whitespace is
// collapsed and the excerpt is cut at a sentence boundary near 500 characters.
func Clean(title, url, content string, score float64, published string) *model.CaseLawHit {
	content = strings.TrimSpace(spaces.ReplaceAllString(html.UnescapeString(content), " "))
	if len(content) > maxExcerpt {
		if i := strings.LastIndex(content[:maxExcerpt], "."); i > 200 {
			content = content[:i+1]
		} else {
			content = truncate(content, maxExcerpt-3)
		}
	}
	return &model.CaseLawHit{
		Title:         strings.TrimSpace(html.UnescapeString(title)),
		URL:           strings.TrimSpace(url),
		Content:       content,
		Score:         score,
		PublishedDate: published,
	}
}

func (c *Client) cached(key string) ([]*model.CaseLawHit, bool) {
	if c.cache == nil {
		return nil, false
	}
	hits, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	return cloneHits(hits), true
}

func (c *Client) store(key string, hits []*model.CaseLawHit) {
	if c.cache == nil {
		return
	}
	c.cache.Add(key, hits)
}

// CachedQueries returns how many queries are currently cached
func (c *Client) CachedQueries() int {
	if c.cache == nil {
		return 0
	}
	return c.cache.Len()
}

func cloneHits(hits []*model.CaseLawHit) []*model.CaseLawHit {
	result := make([]*model.CaseLawHit, len(hits))
	for i, h := range hits {
		copied := *h
		result[i] = &copied
	}
	return result
}

// truncate cuts s to n bytes on a rune boundary and marks the cut
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
