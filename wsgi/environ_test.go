package wsgi

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildEnvironBasics(t *testing.T) {
	rec := RequestRecord{
		URI:    "https://app.example:8443/api/items?page=2",
		Method: "POST",
		Headers: []Header{
			{Name: "Content-Type", Value: "application/json"},
			{Name: "X-Custom-Token", Value: "abc"},
		},
		Body: []byte(`{"a":1}`),
	}

	environ := BuildEnviron(rec)

	assert.Equal(t, "POST", environ["REQUEST_METHOD"])
	assert.Equal(t, "/api/items", environ["PATH_INFO"])
	assert.Equal(t, "page=2", environ["QUERY_STRING"])
	assert.Equal(t, "https", environ["wsgi.url_scheme"])
	assert.Equal(t, "app.example", environ["SERVER_NAME"])
	assert.Equal(t, "8443", environ["SERVER_PORT"])
	assert.Equal(t, "application/json", environ["CONTENT_TYPE"])
	assert.Equal(t, "abc", environ["HTTP_X_CUSTOM_TOKEN"])

	body, err := io.ReadAll(environ.Input())
	require.NoError(t, err)
	assert.Equal(t, []byte(`{"a":1}`), body)
}

func TestBuildEnvironDefaultPorts(t *testing.T) {
	tests := []struct {
		uri  string
		port string
	}{
		{"https://secure.example/", "443"},
		{"http://plain.example/", "80"},
		{"http://explicit.example:9000/", "9000"},
	}

	for _, tt := range tests {
		environ := BuildEnviron(RequestRecord{URI: tt.uri, Method: "GET"})
		assert.Equal(t, tt.port, environ["SERVER_PORT"], tt.uri)
	}
}

func TestBuildEnvironEmptyPathDefaults(t *testing.T) {
	environ := BuildEnviron(RequestRecord{URI: "http://host.example", Method: "GET"})
	assert.Equal(t, "/", environ["PATH_INFO"])
}

func TestBuildEnvironDuplicateHeaderLastWins(t *testing.T) {
	rec := RequestRecord{
		URI:    "http://x/",
		Method: "GET",
		Headers: []Header{
			{Name: "X-Flag", Value: "first"},
			{Name: "x-flag", Value: "second"},
		},
	}

	environ := BuildEnviron(rec)
	assert.Equal(t, "second", environ["HTTP_X_FLAG"])
}

func TestBuildEnvironSynthesizesContentLength(t *testing.T) {
	environ := BuildEnviron(RequestRecord{
		URI:    "http://x/upload",
		Method: "POST",
		Body:   []byte("12345"),
	})

	assert.Equal(t, "5", environ["CONTENT_LENGTH"])
	assert.Equal(t, "", environ["CONTENT_TYPE"])
}

func TestBuildEnvironKeepsExplicitContentLength(t *testing.T) {
	environ := BuildEnviron(RequestRecord{
		URI:     "http://x/upload",
		Method:  "POST",
		Headers: []Header{{Name: "Content-Length", Value: "99"}},
		Body:    []byte("12345"),
	})

	assert.Equal(t, "99", environ["CONTENT_LENGTH"])
}
