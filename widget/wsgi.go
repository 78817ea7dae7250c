package widget

import (
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/qtwebview2/webwidget/native"
	"github.com/qtwebview2/webwidget/stream"
	"github.com/qtwebview2/webwidget/wsgi"
)

// mountedApp is one application answering intercepted requests for a URI
// pattern. Written on the widget goroutine, read on the engine's capture
// thread.
type mountedApp struct {
	pattern string
	adapter *wsgi.Adapter
}

// ServeWSGI mounts app to answer every intercepted request whose URI
// matches pattern ("*" wildcards). The browser never hits the network for
// matching URIs; the application runs in-process on the engine's capture
// thread. Filter installation queues until the control is ready.
func (w *Widget) ServeWSGI(pattern string, app wsgi.App) {
	adapter := wsgi.NewAdapter(app,
		wsgi.WithLogger(w.log),
		wsgi.WithMetrics(w.metrics))

	w.appsMu.Lock()
	w.apps = append(w.apps, mountedApp{pattern: pattern, adapter: adapter})
	w.appsMu.Unlock()

	w.loop.Post(func() {
		w.runOrQueue("serve_wsgi", func() {
			if err := w.control.AddResourceRequestedFilter(pattern); err != nil {
				w.log.Warn("installing resource filter failed",
					zap.String("pattern", pattern), zap.Error(err))
			}
		})
	})
}

// handleResource answers one intercepted request. It runs on the engine's
// capture thread: the request must be extracted before returning, and the
// application runs synchronously here, never on the widget goroutine.
func (w *Widget) handleResource(req native.ResourceRequest) *native.Response {
	rec, err := wsgi.ExtractRequest(req)
	if err != nil {
		w.log.Warn("request extraction failed", zap.Error(err))
		return nil
	}

	adapter := w.adapterFor(rec.URI)
	if adapter == nil {
		return nil
	}

	status, headers, body := adapter.ProcessRequest(rec)
	w.metrics.RecordBodyBytes(len(rec.Body))

	resp := &native.Response{
		StatusCode:   parseStatusCode(status),
		ReasonPhrase: reasonPhrase(status),
		Body:         stream.NewReader(body),
	}
	for _, h := range headers {
		resp.Headers = append(resp.Headers, native.HeaderPair{Name: h.Name, Value: h.Value})
	}
	return resp
}

// adapterFor picks the first mounted application whose pattern matches uri.
func (w *Widget) adapterFor(uri string) *wsgi.Adapter {
	w.appsMu.RLock()
	defer w.appsMu.RUnlock()
	for _, m := range w.apps {
		if native.MatchFilter(m.pattern, uri) {
			return m.adapter
		}
	}
	return nil
}

// parseStatusCode extracts the numeric code from "<code> <reason>".
func parseStatusCode(status string) int {
	code, _, _ := strings.Cut(status, " ")
	n, err := strconv.Atoi(code)
	if err != nil {
		return 500
	}
	return n
}

// reasonPhrase extracts the reason text from "<code> <reason>".
func reasonPhrase(status string) string {
	_, reason, _ := strings.Cut(status, " ")
	return reason
}
