package tool

import (
	"context"
	"fmt"
)

// UpdateFunc records a progress line while a tool runs. Stage processors route it into
// the reasoning trace of the running stage so observers see tool activity live.
type UpdateFunc func(ctx context.Context, message string)

type updateKey struct{}

// WithUpdate returns a context carrying fn
func WithUpdate(ctx context.Context, fn UpdateFunc) context.Context {
	return context.WithValue(ctx, updateKey{}, fn)
}

// Update reports message through the UpdateFunc in ctx. Without one it does nothing.
func Update(ctx context.Context, message string) {
	if fn, ok := ctx.Value(updateKey{}).(UpdateFunc); ok && fn != nil {
		fn(ctx, message)
	}
}

// Updatef is Update with formatting
func Updatef(ctx context.Context, format string, args ...any) {
	if _, ok := ctx.Value(updateKey{}).(UpdateFunc); !ok {
		return
	}
	Update(ctx, fmt.Sprintf(format, args...))
}
