package wsgi

import (
	"io"

	"go.uber.org/zap"

	"github.com/qtwebview2/webwidget/internal/logging"
	"github.com/qtwebview2/webwidget/stream"
)

// chainSource yields a fixed set of pre-buffered parts, then drains the
// application body.
type chainSource struct {
	pre  [][]byte
	body stream.Source
}

func (c *chainSource) Next() ([]byte, error) {
	if len(c.pre) > 0 {
		chunk := c.pre[0]
		c.pre = c.pre[1:]
		return chunk, nil
	}
	if c.body == nil {
		return nil, io.EOF
	}
	return c.body.Next()
}

// closingSource guarantees the wrapped application body is closed exactly
// once, whether iteration runs to completion, fails, or the consumer closes
// early. Close-time errors are swallowed and logged.
type closingSource struct {
	src     stream.Source
	toClose any
	log     *logging.Logger
	closed  bool
}

func newClosingSource(src stream.Source, toClose any, log *logging.Logger) *closingSource {
	return &closingSource{src: src, toClose: toClose, log: log}
}

func (c *closingSource) Next() ([]byte, error) {
	chunk, err := c.src.Next()
	if err != nil {
		c.closeOnce()
	}
	return chunk, err
}

// Close implements io.Closer so stream.Reader forwards early closes here.
func (c *closingSource) Close() error {
	c.closeOnce()
	return nil
}

func (c *closingSource) closeOnce() {
	if c.closed {
		return
	}
	c.closed = true
	closeQuietly(c.toClose, c.log)
}

// closeQuietly closes v if it is closable, logging instead of propagating.
func closeQuietly(v any, log *logging.Logger) {
	closer, ok := v.(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil && log != nil {
		log.Warn("error closing application body iterator", zap.Error(err))
	}
}
