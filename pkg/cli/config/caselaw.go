package config

import (
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/LalaIAm/case-agent/pkg/domain/interfaces"
	"github.com/LalaIAm/case-agent/pkg/service/caselaw"
	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"
)

// CaseLaw configures the web precedent search used by the research stage.
// Without an API key research relies on stored case law only.
type CaseLaw struct {
	apiKey    string
	endpoint  string
	depth     string
	domains   []string
	minScore  float64
	rpm       int
	cacheTTL  time.Duration
	cacheSize int
}

func (c *CaseLaw) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "tavily-api-key",
			Usage:       "Tavily API key for web case law search; leave empty to search stored precedents only",
			Category:    "Case law",
			Sources:     cli.EnvVars("CASE_AGENT_TAVILY_API_KEY", "TAVILY_API_KEY"),
			Destination: &c.apiKey,
		},
		&cli.StringFlag{
			Name:        "tavily-endpoint",
			Usage:       "Search API URL",
			Category:    "Case law",
			Value:       caselaw.DefaultEndpoint,
			Sources:     cli.EnvVars("CASE_AGENT_TAVILY_ENDPOINT"),
			Destination: &c.endpoint,
		},
		&cli.StringFlag{
			Name:        "tavily-depth",
			Usage:       "Search depth (basic, advanced)",
			Category:    "Case law",
			Value:       "advanced",
			Sources:     cli.EnvVars("CASE_AGENT_TAVILY_DEPTH"),
			Destination: &c.depth,
		},
		&cli.StringSliceFlag{
			Name:        "tavily-domain",
			Usage:       "Site searched for precedents, repeatable (legal research sites when unset)",
			Category:    "Case law",
			Sources:     cli.EnvVars("CASE_AGENT_TAVILY_DOMAINS"),
			Destination: &c.domains,
		},
		&cli.FloatFlag{
			Name:        "tavily-min-score",
			Usage:       "Results scored below this relevance are dropped, 0 to 1",
			Category:    "Case law",
			Value:       caselaw.DefaultMinScore,
			Sources:     cli.EnvVars("CASE_AGENT_TAVILY_MIN_SCORE"),
			Destination: &c.minScore,
		},
		&cli.IntFlag{
			Name:        "tavily-rpm",
			Usage:       "Search requests per minute (0 for unlimited)",
			Category:    "Case law",
			Value:       100,
			Sources:     cli.EnvVars("CASE_AGENT_TAVILY_RPM"),
			Destination: &c.rpm,
		},
		&cli.DurationFlag{
			Name:        "tavily-cache-ttl",
			Usage:       "How long search results are reused (0 disables caching)",
			Category:    "Case law",
			Value:       caselaw.DefaultCacheTTL,
			Sources:     cli.EnvVars("CASE_AGENT_TAVILY_CACHE_TTL"),
			Destination: &c.cacheTTL,
		},
		&cli.IntFlag{
			Name:        "tavily-cache-size",
			Usage:       "Distinct queries kept in the result cache (0 disables caching)",
			Category:    "Case law",
			Value:       caselaw.DefaultCacheSize,
			Sources:     cli.EnvVars("CASE_AGENT_TAVILY_CACHE_SIZE"),
			Destination: &c.cacheSize,
		},
	}
}

func (c *CaseLaw) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.Bool("enabled", c.IsConfigured()),
		slog.String("endpoint", c.endpoint),
		slog.String("depth", c.depth),
		slog.Any("domains", c.domains),
		slog.Float64("min_score", c.minScore),
		slog.Int("rpm", c.rpm),
		slog.Duration("cache_ttl", c.cacheTTL),
		slog.Int("cache_size", c.cacheSize),
	}
}

// IsConfigured reports whether web search is enabled
func (c *CaseLaw) IsConfigured() bool {
	return strings.TrimSpace(c.apiKey) != ""
}

// Configure returns the web searcher, or nil when no API key is set
func (c *CaseLaw) Configure() (interfaces.CaseLawSearcher, error) {
	if !c.IsConfigured() {
		return nil, nil
	}
	if !slices.Contains([]string{"basic", "advanced"}, c.depth) {
		return nil, goerr.New("tavily depth must be basic or advanced", goerr.V("depth", c.depth))
	}
	if c.minScore < 0 || c.minScore > 1 {
		return nil, goerr.New("tavily min score must be between 0 and 1", goerr.V("min_score", c.minScore))
	}
	if c.cacheTTL < 0 {
		return nil, goerr.New("tavily cache TTL must not be negative", goerr.V("cache_ttl", c.cacheTTL))
	}
	if c.cacheSize < 0 {
		return nil, goerr.New("tavily cache size must not be negative", goerr.V("cache_size", c.cacheSize))
	}

	opts := []caselaw.Option{
		caselaw.WithSearchDepth(c.depth),
		caselaw.WithMinScore(c.minScore),
		caselaw.WithRequestsPerMinute(c.rpm),
		caselaw.WithCacheTTL(c.cacheTTL),
		caselaw.WithCacheSize(c.cacheSize),
	}
	if c.endpoint != "" {
		opts = append(opts, caselaw.WithEndpoint(c.endpoint))
	}
	if len(c.domains) > 0 {
		opts = append(opts, caselaw.WithDomains(c.domains...))
	}

	client, err := caselaw.New(c.apiKey, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create case law search client")
	}
	return client, nil
}
