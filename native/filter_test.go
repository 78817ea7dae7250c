package native

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchFilter(t *testing.T) {
	cases := []struct {
		pattern string
		uri     string
		want    bool
	}{
		{"*", "https://anything", true},
		{"https://app.test/*", "https://app.test/", true},
		{"https://app.test/*", "https://app.test/deep/path?q=1", true},
		{"https://app.test/*", "https://other.test/", false},
		{"https://*/api/*", "https://a.test/api/users", true},
		{"https://*/api/*", "https://a.test/web/users", false},
		{"https://app.test/exact", "https://app.test/exact", true},
		{"https://app.test/exact", "https://app.test/exactly", false},
		{"", "", true},
		{"*", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.pattern+" vs "+tc.uri, func(t *testing.T) {
			assert.Equal(t, tc.want, MatchFilter(tc.pattern, tc.uri))
		})
	}
}
