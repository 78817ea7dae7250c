package wsgi

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/qtwebview2/webwidget/stream"
)

// Static returns an application serving files from root. PATH_INFO maps
// directly onto the directory; "/" serves index.html. Content types are
// sniffed from content, which covers assets without a meaningful extension.
//
// Intended for shipping a bundled frontend to the embedded browser without
// any HTTP listener.
func Static(root string) App {
	return func(environ Environ, startResponse StartResponse) (stream.Source, error) {
		method, _ := environ["REQUEST_METHOD"].(string)
		if method != "GET" && method != "HEAD" {
			return textResponse(startResponse, "405 Method Not Allowed", "method not allowed")
		}

		reqPath, _ := environ["PATH_INFO"].(string)
		if reqPath == "" || strings.HasSuffix(reqPath, "/") {
			reqPath += "index.html"
		}

		full := filepath.Join(root, filepath.FromSlash(strings.TrimPrefix(reqPath, "/")))
		rel, err := filepath.Rel(root, full)
		if err != nil || strings.HasPrefix(rel, "..") {
			return textResponse(startResponse, "403 Forbidden", "forbidden")
		}

		data, err := os.ReadFile(full)
		if err != nil {
			if os.IsNotExist(err) {
				return textResponse(startResponse, "404 Not Found", "not found")
			}
			return nil, fmt.Errorf("failed to read %s: %w", full, err)
		}

		contentType := mimetype.Detect(data).String()
		headers := []Header{
			{Name: "Content-Type", Value: contentType},
			{Name: "Content-Length", Value: fmt.Sprintf("%d", len(data))},
		}
		if _, err := startResponse("200 OK", headers, nil); err != nil {
			return nil, err
		}
		if method == "HEAD" {
			return stream.Chunks(), nil
		}
		return stream.Chunks(data), nil
	}
}

// textResponse starts a plain-text response with the given status.
func textResponse(startResponse StartResponse, status, body string) (stream.Source, error) {
	headers := []Header{{Name: "Content-Type", Value: "text/plain"}}
	if _, err := startResponse(status, headers, nil); err != nil {
		return nil, err
	}
	return stream.Chunks([]byte(body)), nil
}
