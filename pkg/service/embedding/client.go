package embedding

import (
	"context"
	"errors"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/LalaIAm/case-agent/pkg/domain/interfaces"
	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/domain/types"
	"github.com/LalaIAm/case-agent/pkg/utils/logging"
	"github.com/LalaIAm/case-agent/pkg/utils/retry"
	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/time/rate"
)

// Client turns text into normalized vectors of a fixed dimension.
// It rate-limits provider calls and retries transient provider failures.
type Client struct {
	provider  Provider
	dimension int
	maxChars  int
	limiter   *rate.Limiter
	policy    retry.Policy
}

var _ interfaces.Embedder = &Client{}

type Option func(*Client)

// WithDimension sets the output vector length
func WithDimension(dimension int) Option {
	return func(c *Client) {
		c.dimension = dimension
	}
}

// WithMaxChars sets the character limit applied before embedding
func WithMaxChars(n int) Option {
	return func(c *Client) {
		c.maxChars = n
	}
}

// WithRateLimit allows rps provider calls per second with the given burst.
// A non-positive rps disables limiting.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRetryPolicy replaces the transient failure retry policy
func WithRetryPolicy(p retry.Policy) Option {
	return func(c *Client) {
		c.policy = p
	}
}

func New(provider Provider, opts ...Option) *Client {
	c := &Client{
		provider:  provider,
		dimension: model.DefaultEmbeddingDimension,
		maxChars:  model.MaxEmbeddingTextLength,
		limiter:   rate.NewLimiter(rate.Limit(10), 5),
		policy:    retry.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Dimension() int {
	return c.dimension
}

// Embed returns the unit-length embedding of text. Blank text is a validation error.
// Provider failures classified as transient are retried and, once retries are
// exhausted, wrapped with model.ErrTransientService.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, goerr.Wrap(model.ErrValidation, "cannot embed empty text")
	}
	text = truncate(text, c.maxChars)

	var vec []float32
	attempts, err := retry.Do(ctx, c.policy, retry.Options{
		Retryable: func(err error) bool {
			return model.KindOf(err) == types.ErrorKindTransientService
		},
		OnRetry: func(a retry.Attempt) {
			logging.From(ctx).Warn("embedding failed, retrying",
				"provider", c.provider.Name(),
				"attempt", a.Number,
				"wait", a.Wait,
				"error", a.Err)
		},
	}, func(ctx context.Context, attempt int) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return goerr.Wrap(err, "rate limiter wait failed")
		}
		v, err := c.provider.Embed(ctx, text, c.dimension)
		if err != nil {
			return err
		}
		vec = v
		return nil
	})
	if err != nil {
		if model.KindOf(err) == types.ErrorKindTransientService && !errors.Is(err, model.ErrTransientService) {
			return nil, goerr.Wrap(model.ErrTransientService, "embedding service unavailable",
				goerr.V("provider", c.provider.Name()),
				goerr.V("attempts", attempts),
				goerr.V("cause", err.Error()))
		}
		return nil, goerr.Wrap(err, "failed to embed text",
			goerr.V("provider", c.provider.Name()),
			goerr.V("attempts", attempts))
	}

	if len(vec) != c.dimension {
		return nil, goerr.New("embedding dimension mismatch",
			goerr.V("provider", c.provider.Name()),
			goerr.V("got", len(vec)),
			goerr.V("want", c.dimension))
	}

	return normalize(vec), nil
}

// truncate cuts text to at most n runes
func truncate(text string, n int) string {
	if n <= 0 || utf8.RuneCountInString(text) <= n {
		return text
	}
	runes := []rune(text)
	return string(runes[:n])
}

// normalize scales v to unit length; zero vectors are returned as-is
func normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}

	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
