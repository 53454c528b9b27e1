package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/LalaIAm/case-agent/pkg/utils/retry"
	"github.com/m-mizutani/gt"
)

var errFlaky = errors.New("flaky")

// immediate keeps the attempt count of the default policy without waiting
var immediate = retry.Policy{MaxAttempts: 3}

func TestPolicyBackOff(t *testing.T) {
	t.Run("doubles per retry without jitter", func(t *testing.T) {
		b := retry.Policy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 60 * time.Second}.BackOff()
		gt.Value(t, b.NextBackOff()).Equal(time.Second)
		gt.Value(t, b.NextBackOff()).Equal(2 * time.Second)
		gt.Value(t, b.NextBackOff()).Equal(4 * time.Second)
	})

	t.Run("caps at max delay", func(t *testing.T) {
		b := retry.Policy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: 3 * time.Second}.BackOff()
		for range 10 {
			b.NextBackOff()
		}
		gt.Value(t, b.NextBackOff()).Equal(3 * time.Second)
	})

	t.Run("jitter stays within twenty percent", func(t *testing.T) {
		b := retry.DefaultPolicy().BackOff()
		for range 20 {
			b.Reset()
			d := b.NextBackOff()
			gt.Bool(t, d >= 800*time.Millisecond).True()
			gt.Bool(t, d <= 1200*time.Millisecond).True()
		}
	})

	t.Run("zero policy waits nothing", func(t *testing.T) {
		b := immediate.BackOff()
		gt.Bool(t, b.NextBackOff() <= time.Nanosecond).True()
	})
}

func TestPolicyValidate(t *testing.T) {
	gt.NoError(t, retry.DefaultPolicy().Validate())

	p := retry.DefaultPolicy()
	p.MaxAttempts = 0
	gt.Error(t, p.Validate())

	p = retry.DefaultPolicy()
	p.Jitter = 1.5
	gt.Error(t, p.Validate())
}

func TestDo(t *testing.T) {
	ctx := context.Background()
	retryable := func(err error) bool { return errors.Is(err, errFlaky) }

	t.Run("retries transient failures until success", func(t *testing.T) {
		var retries []retry.Attempt
		attempts, err := retry.Do(ctx, immediate, retry.Options{
			Retryable: retryable,
			OnRetry:   func(a retry.Attempt) { retries = append(retries, a) },
		}, func(ctx context.Context, attempt int) error {
			if attempt < 3 {
				return errFlaky
			}
			return nil
		})
		gt.NoError(t, err).Required()
		gt.Value(t, attempts).Equal(3)
		gt.Array(t, retries).Length(2)
		gt.Value(t, retries[0].Number).Equal(1)
		gt.Error(t, retries[1].Err).Is(errFlaky)
	})

	t.Run("stops after max attempts", func(t *testing.T) {
		calls := 0
		attempts, err := retry.Do(ctx, immediate, retry.Options{
			Retryable: retryable,
		}, func(ctx context.Context, attempt int) error {
			calls++
			return errFlaky
		})
		gt.Error(t, err).Is(errFlaky)
		gt.Value(t, attempts).Equal(3)
		gt.Value(t, calls).Equal(3)
	})

	t.Run("permanent failures are not retried", func(t *testing.T) {
		permanent := errors.New("bad input")
		calls := 0
		attempts, err := retry.Do(ctx, immediate, retry.Options{
			Retryable: retryable,
		}, func(ctx context.Context, attempt int) error {
			calls++
			return permanent
		})
		gt.Error(t, err).Is(permanent)
		gt.Value(t, err).Equal(permanent)
		gt.Value(t, attempts).Equal(1)
		gt.Value(t, calls).Equal(1)
	})

	t.Run("cancelled context stops waiting", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		attempts, err := retry.Do(cctx, retry.Policy{MaxAttempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}, retry.Options{
			Retryable: retryable,
		}, func(ctx context.Context, attempt int) error {
			return errFlaky
		})
		gt.Error(t, err).Is(errFlaky)
		gt.Value(t, attempts).Equal(1)
	})
}
