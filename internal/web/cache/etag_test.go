package cache

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestETag(t *testing.T) {
	a := ETag([]byte(`{"root":{}}`))
	assert.Equal(t, a, ETag([]byte(`{"root":{}}`)))
	assert.NotEqual(t, a, ETag([]byte(`{"root":[]}`)))
	assert.Len(t, a, 34)
}

func TestParseIfNoneMatch(t *testing.T) {
	assert.Nil(t, ParseIfNoneMatch(""))
	assert.Equal(t, []string{"*"}, ParseIfNoneMatch(" * "))
	assert.Equal(t, []string{`"a"`, `W/"b"`}, ParseIfNoneMatch(`"a", W/"b"`))
}

func TestMatchesETag(t *testing.T) {
	assert.True(t, MatchesETag(`"a"`, []string{`W/"a"`}))
	assert.True(t, MatchesETag(`"a"`, []string{"*"}))
	assert.False(t, MatchesETag(`"a"`, []string{`"b"`}))
	assert.False(t, MatchesETag(`"a"`, nil))
}

func TestNotModified(t *testing.T) {
	modified := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	etag := ETag([]byte("page"))

	tests := []struct {
		name    string
		headers map[string]string
		want    bool
	}{
		{"no validators", nil, false},
		{"matching etag", map[string]string{"If-None-Match": etag}, true},
		{"stale etag wins over date", map[string]string{
			"If-None-Match":     `"other"`,
			"If-Modified-Since": modified.Add(time.Hour).Format(http.TimeFormat),
		}, false},
		{"not modified since", map[string]string{"If-Modified-Since": modified.Format(http.TimeFormat)}, true},
		{"modified since", map[string]string{"If-Modified-Since": modified.Add(-time.Hour).Format(http.TimeFormat)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/pages/1", nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := httptest.NewRecorder()

			assert.Equal(t, tt.want, NotModified(w, req, etag, modified))
			assert.Equal(t, etag, w.Header().Get("ETag"))
			if tt.want {
				assert.Equal(t, http.StatusNotModified, w.Code)
			}
		})
	}
}
