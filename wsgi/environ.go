package wsgi

import (
	"bytes"
	"net/url"
	"os"
	"strconv"
	"strings"
)

// Environ is the request mapping handed to the application. Keys follow the
// CGI convention: REQUEST_METHOD, PATH_INFO, QUERY_STRING, SERVER_NAME,
// SERVER_PORT, HTTP_* for headers, plus the wsgi.* runtime keys.
type Environ map[string]any

// Input returns the buffered request body reader.
func (e Environ) Input() *bytes.Reader {
	r, _ := e["wsgi.input"].(*bytes.Reader)
	return r
}

// BuildEnviron maps a RequestRecord into the application calling contract.
// Duplicate header keys resolve to the last-seen value, matching native
// behavior. CONTENT_LENGTH and CONTENT_TYPE are defaulted from the actual
// body when the request did not carry them.
func BuildEnviron(rec RequestRecord) Environ {
	u, err := url.Parse(rec.URI)
	if err != nil {
		u = &url.URL{Path: "/"}
	}

	path := u.Path
	if path == "" {
		path = "/"
	}
	host := u.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := u.Port()
	if port == "" {
		if u.Scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}

	environ := Environ{
		"wsgi.version":      [2]int{1, 0},
		"wsgi.url_scheme":   u.Scheme,
		"wsgi.input":        bytes.NewReader(rec.Body),
		"wsgi.errors":       os.Stderr,
		"wsgi.multithread":  true,
		"wsgi.multiprocess": false,
		"wsgi.run_once":     false,
		"REQUEST_METHOD":    rec.Method,
		"PATH_INFO":         path,
		"QUERY_STRING":      u.RawQuery,
		"SERVER_NAME":       host,
		"SERVER_PORT":       port,
	}

	for _, h := range rec.Headers {
		key := strings.ReplaceAll(strings.ToUpper(h.Name), "-", "_")
		switch key {
		case "CONTENT_TYPE":
			environ["CONTENT_TYPE"] = h.Value
		case "CONTENT_LENGTH":
			environ["CONTENT_LENGTH"] = h.Value
		default:
			environ["HTTP_"+key] = h.Value
		}
	}

	if _, ok := environ["CONTENT_LENGTH"]; !ok {
		environ["CONTENT_LENGTH"] = strconv.Itoa(len(rec.Body))
	}
	if _, ok := environ["CONTENT_TYPE"]; !ok {
		environ["CONTENT_TYPE"] = ""
	}

	return environ
}
