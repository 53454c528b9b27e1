package safe_test

import (
	"bytes"
	"errors"
	"net"
	"testing"

	"github.com/LalaIAm/case-agent/pkg/utils/safe"
	"github.com/m-mizutani/gt"
)

type closer struct {
	err    error
	closed bool
}

func (c *closer) Close() error {
	c.closed = true
	return c.err
}

type brokenWriter struct{}

func (brokenWriter) Write(p []byte) (int, error) { return 0, errors.New("broken pipe") }

func TestClose(t *testing.T) {
	c := &closer{}
	safe.Close(t.Context(), c, "kind", "test")
	gt.Bool(t, c.closed).True()

	failing := &closer{err: net.ErrClosed}
	safe.Close(t.Context(), failing)
	gt.Bool(t, failing.closed).True()

	safe.Close(t.Context(), nil)
}

func TestWrite(t *testing.T) {
	var buf bytes.Buffer
	safe.Write(t.Context(), &buf, []byte("payload"))
	gt.Value(t, buf.String()).Equal("payload")

	safe.Write(t.Context(), brokenWriter{}, []byte("payload"))
	safe.Write(t.Context(), nil, []byte("payload"))
}
