package async_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/LalaIAm/case-agent/pkg/utils/async"
	"github.com/m-mizutani/gt"
)

type ctxKey struct{}

func TestGoKeepsContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), ctxKey{}, "value")

	done := make(chan any, 1)
	async.Go(ctx, func(ctx context.Context) error {
		done <- ctx.Value(ctxKey{})
		return errors.New("logged, not returned")
	})

	select {
	case v := <-done:
		gt.Value(t, v).Equal(any("value"))
	case <-time.After(time.Second):
		t.Fatal("handler did not run")
	}
}

func TestGoRecoversPanic(t *testing.T) {
	done := make(chan struct{})
	async.Go(context.Background(), func(ctx context.Context) error {
		defer close(done)
		panic("boom")
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler did not run")
	}
}
