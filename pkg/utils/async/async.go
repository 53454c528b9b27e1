package async

import (
	"context"

	"github.com/LalaIAm/case-agent/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
)

// Go executes handler in a new goroutine with ctx as given. The caller owns
// cancellation of ctx. Errors and panics are logged.
func Go(ctx context.Context, handler func(ctx context.Context) error) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger := logging.From(ctx)
				logger.Error("panic in async handler", "panic", r)
			}
		}()

		if err := handler(ctx); err != nil {
			logger := logging.From(ctx)
			logger.Error("async handler failed", "error", goerr.Unwrap(err))
		}
	}()
}
