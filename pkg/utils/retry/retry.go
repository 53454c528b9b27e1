package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/m-mizutani/goerr/v2"
)

// Policy is an exponential backoff schedule with symmetric jitter
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter is the fractional spread applied to each delay, e.g. 0.2 for ±20%
	Jitter float64
}

// DefaultPolicy returns three attempts with 1s base delay, 60s cap and ±20% jitter
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    60 * time.Second,
		Jitter:      0.2,
	}
}

// Validate checks that the policy is usable
func (p Policy) Validate() error {
	if p.MaxAttempts < 1 {
		return goerr.New("retry max attempts must be at least 1", goerr.V("max_attempts", p.MaxAttempts))
	}
	if p.BaseDelay < 0 || p.MaxDelay < 0 {
		return goerr.New("retry delays must not be negative",
			goerr.V("base_delay", p.BaseDelay),
			goerr.V("max_delay", p.MaxDelay))
	}
	if p.Jitter < 0 || p.Jitter >= 1 {
		return goerr.New("retry jitter must be in [0, 1)", goerr.V("jitter", p.Jitter))
	}
	return nil
}

// BackOff returns the wait schedule of p: BaseDelay doubling per retry up to
// MaxDelay, each wait spread by ±Jitter. A zero policy retries immediately.
func (p Policy) BackOff() *backoff.ExponentialBackOff {
	maxDelay := p.MaxDelay
	if maxDelay < p.BaseDelay {
		maxDelay = p.BaseDelay
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     p.BaseDelay,
		RandomizationFactor: p.Jitter,
		Multiplier:          2,
		MaxInterval:         maxDelay,
	}
	b.Reset()
	return b
}

// Attempt describes a failed call handed to OnRetry
type Attempt struct {
	Number int
	Err    error
	Wait   time.Duration
}

// Options customize Do
type Options struct {
	// Retryable reports whether err should be retried. Nil retries nothing.
	Retryable func(err error) bool
	// OnRetry is called before each wait
	OnRetry func(a Attempt)
}

// Do calls fn until it succeeds, fails with a non-retryable error, the
// policy's attempts run out or ctx ends. It returns the number of attempts
// made and the error of the last attempt.
func Do(ctx context.Context, p Policy, opts Options, fn func(ctx context.Context, attempt int) error) (int, error) {
	maxAttempts := max(p.MaxAttempts, 1)

	attempt := 0
	var lastErr error
	operation := func() (struct{}, error) {
		attempt++
		lastErr = fn(ctx, attempt)
		if lastErr != nil && (opts.Retryable == nil || !opts.Retryable(lastErr)) {
			return struct{}{}, backoff.Permanent(lastErr)
		}
		return struct{}{}, lastErr
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(p.BackOff()),
		backoff.WithMaxTries(uint(maxAttempts)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			if opts.OnRetry != nil {
				opts.OnRetry(Attempt{Number: attempt, Err: err, Wait: wait})
			}
		}),
	)
	if err != nil && lastErr != nil {
		// backoff reports the context cause when ctx ends between attempts
		return attempt, lastErr
	}
	return attempt, err
}
