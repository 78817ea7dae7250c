package wsgi

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/qtwebview2/webwidget/stream"
)

// Gzip wraps an application with response compression. The body is drained,
// compressed, and re-headed when the browser advertises gzip support and
// the inner application did not already encode its output. Bodies smaller
// than minSize pass through untouched.
func Gzip(app App, minSize int) App {
	return func(environ Environ, startResponse StartResponse) (stream.Source, error) {
		accept, _ := environ["HTTP_ACCEPT_ENCODING"].(string)
		if !strings.Contains(accept, "gzip") {
			return app(environ, startResponse)
		}

		var (
			innerStatus  string
			innerHeaders []Header
			written      []byte
		)
		capture := func(status string, headers []Header, excInfo error) (WriteFunc, error) {
			if excInfo != nil {
				// Hand error reporting straight to the real start_response.
				return startResponse(status, headers, excInfo)
			}
			innerStatus = status
			innerHeaders = headers
			return func(data []byte) error {
				written = append(written, data...)
				return nil
			}, nil
		}

		body, err := app(environ, capture)
		if err != nil {
			return nil, err
		}
		if innerStatus == "" {
			return nil, ErrStartNotCalled
		}
		if body == nil {
			// Applications may return no body at all, e.g. 204 responses.
			body = stream.Chunks()
		}
		if headerValue(innerHeaders, "Content-Encoding") != "" {
			if _, err := startResponse(innerStatus, innerHeaders, nil); err != nil {
				return nil, err
			}
			if len(written) == 0 {
				return body, nil
			}
			return &chainSource{pre: [][]byte{written}, body: body}, nil
		}

		drained, err := drain(body)
		if err != nil {
			return nil, err
		}
		raw := append(written, drained...)
		if len(raw) < minSize {
			if _, err := startResponse(innerStatus, innerHeaders, nil); err != nil {
				return nil, err
			}
			return stream.Chunks(raw), nil
		}

		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(raw); err != nil {
			return nil, fmt.Errorf("gzip write failed: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("gzip close failed: %w", err)
		}

		headers := append(stripHeaders(innerHeaders, "Content-Length"),
			Header{Name: "Content-Encoding", Value: "gzip"},
			Header{Name: "Content-Length", Value: strconv.Itoa(buf.Len())},
			Header{Name: "Vary", Value: "Accept-Encoding"},
		)
		if _, err := startResponse(innerStatus, headers, nil); err != nil {
			return nil, err
		}
		return stream.Chunks(buf.Bytes()), nil
	}
}

// drain consumes a body source fully, closing it if closable.
func drain(src stream.Source) ([]byte, error) {
	defer func() {
		if c, ok := src.(io.Closer); ok {
			c.Close()
		}
	}()
	var out []byte
	for {
		chunk, err := src.Next()
		out = append(out, chunk...)
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// headerValue returns the last value of the named header, or "".
func headerValue(headers []Header, name string) string {
	value := ""
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			value = h.Value
		}
	}
	return value
}

// stripHeaders removes every occurrence of the named header.
func stripHeaders(headers []Header, name string) []Header {
	out := make([]Header, 0, len(headers))
	for _, h := range headers {
		if !strings.EqualFold(h.Name, name) {
			out = append(out, h)
		}
	}
	return out
}
