package wsgi

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"

	"github.com/qtwebview2/webwidget/stream"
)

// FromHandler adapts any net/http handler (a mux, a gin engine, a plain
// HandlerFunc) to the application calling contract, so ordinary Go web
// stacks can be served to the embedded browser through the adapter.
func FromHandler(h http.Handler) App {
	return func(environ Environ, startResponse StartResponse) (stream.Source, error) {
		req, err := requestFromEnviron(environ)
		if err != nil {
			return nil, err
		}

		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		res := rec.Result()

		status := fmt.Sprintf("%d %s", res.StatusCode, http.StatusText(res.StatusCode))
		var headers []Header
		for name, values := range res.Header {
			for _, v := range values {
				headers = append(headers, Header{Name: name, Value: v})
			}
		}

		if _, err := startResponse(status, headers, nil); err != nil {
			return nil, err
		}
		return stream.Chunks(rec.Body.Bytes()), nil
	}
}

// requestFromEnviron reconstructs an http.Request from the environ mapping.
func requestFromEnviron(environ Environ) (*http.Request, error) {
	method, _ := environ["REQUEST_METHOD"].(string)
	path, _ := environ["PATH_INFO"].(string)
	query, _ := environ["QUERY_STRING"].(string)
	scheme, _ := environ["wsgi.url_scheme"].(string)
	host, _ := environ["SERVER_NAME"].(string)
	port, _ := environ["SERVER_PORT"].(string)

	if scheme == "" {
		scheme = "http"
	}
	u := &url.URL{
		Scheme:   scheme,
		Host:     hostPort(scheme, host, port),
		Path:     path,
		RawQuery: query,
	}

	req, err := http.NewRequest(method, u.String(), environ.Input())
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild request: %w", err)
	}

	for key, value := range environ {
		s, ok := value.(string)
		if !ok {
			continue
		}
		switch {
		case strings.HasPrefix(key, "HTTP_"):
			req.Header.Set(headerName(strings.TrimPrefix(key, "HTTP_")), s)
		case key == "CONTENT_TYPE" && s != "":
			req.Header.Set("Content-Type", s)
		}
	}
	return req, nil
}

// hostPort omits default ports from the authority.
func hostPort(scheme, host, port string) string {
	if port == "" || (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		return host
	}
	return host + ":" + port
}

// headerName converts an UPPER_SNAKE environ key back to Header-Case.
func headerName(key string) string {
	parts := strings.Split(strings.ToLower(key), "_")
	for i, p := range parts {
		if p != "" {
			parts[i] = strings.ToUpper(p[:1]) + p[1:]
		}
	}
	return strings.Join(parts, "-")
}
