// Package wsgi adapts intercepted browser resource requests to a blocking
// application-server contract: the application receives an environ mapping
// and a start_response callable and returns an iterable body.
//
// The adapter exists so a widget can serve an entire in-process web
// application to its embedded browser without a TCP listener: the native
// runtime intercepts matching requests, the adapter invokes the application,
// and the response bytes stream back through a pull-based reader.
package wsgi

import (
	"fmt"
	"io"

	"github.com/qtwebview2/webwidget/native"
)

// Header is one response or request header pair. Order is significant and
// key case is preserved as produced.
type Header struct {
	Name  string
	Value string
}

// RequestRecord is a plain snapshot of one intercepted request. It is
// immutable once extracted and safe to hand across goroutines, unlike the
// native request object it came from.
type RequestRecord struct {
	URI     string
	Method  string
	Headers []Header // as received, case preserved, duplicates kept
	Body    []byte
}

// ExtractRequest snapshots a native request into a RequestRecord. It MUST
// run synchronously inside the capturing callback: the native request object
// is not valid across threads or after the event handler returns. The body
// is fully buffered.
func ExtractRequest(req native.ResourceRequest) (RequestRecord, error) {
	rec := RequestRecord{
		URI:    req.URI(),
		Method: req.Method(),
	}
	for _, h := range req.Headers() {
		rec.Headers = append(rec.Headers, Header{Name: h.Name, Value: h.Value})
	}
	if body := req.Body(); body != nil {
		data, err := io.ReadAll(body)
		if err != nil {
			return RequestRecord{}, fmt.Errorf("failed to buffer request body: %w", err)
		}
		rec.Body = data
	}
	return rec, nil
}
