package safe

import (
	"context"
	"errors"
	"io"
	"net"

	"github.com/LalaIAm/case-agent/pkg/utils/logging"
)

// Close closes c and logs a failure with the given attributes. A nil closer
// and an already closed network connection are ignored.
func Close(ctx context.Context, c io.Closer, attrs ...any) {
	if c == nil {
		return
	}
	err := c.Close()
	if err == nil || errors.Is(err, net.ErrClosed) {
		return
	}
	logging.From(ctx).Warn("close failed", append(attrs, "error", err.Error())...)
}

// Write writes data to w. A short or failed write means the client went
// away, so it is only logged at debug level.
func Write(ctx context.Context, w io.Writer, data []byte) {
	if w == nil {
		return
	}
	if n, err := w.Write(data); err != nil {
		logging.From(ctx).Debug("write failed", "written", n, "size", len(data), "error", err.Error())
	}
}
