package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"
)

// ETag returns a strong ETag for the given content
func ETag(content []byte) string {
	hash := sha256.Sum256(content)
	return `"` + hex.EncodeToString(hash[:16]) + `"`
}

// ParseIfNoneMatch splits an If-None-Match header into its entity tags
func ParseIfNoneMatch(header string) []string {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil
	}
	if header == "*" {
		return []string{"*"}
	}
	var tags []string
	for _, part := range strings.Split(header, ",") {
		if tag := strings.TrimSpace(part); tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

// MatchesETag reports whether etag matches one of tags using weak comparison
func MatchesETag(etag string, tags []string) bool {
	if len(tags) == 1 && tags[0] == "*" {
		return true
	}
	want := strings.TrimPrefix(etag, "W/")
	for _, t := range tags {
		if strings.TrimPrefix(t, "W/") == want {
			return true
		}
	}
	return false
}

// NotModified sets the validators on w and writes 304 when the request
// already holds the current representation
func NotModified(w http.ResponseWriter, r *http.Request, etag string, lastModified time.Time) bool {
	w.Header().Set("ETag", etag)
	if !lastModified.IsZero() {
		w.Header().Set("Last-Modified", lastModified.UTC().Format(http.TimeFormat))
	}

	if inm := r.Header.Get("If-None-Match"); inm != "" {
		if MatchesETag(etag, ParseIfNoneMatch(inm)) {
			w.WriteHeader(http.StatusNotModified)
			return true
		}
		return false
	}

	if ims := r.Header.Get("If-Modified-Since"); ims != "" && !lastModified.IsZero() {
		if t, err := http.ParseTime(ims); err == nil && !lastModified.Truncate(time.Second).After(t) {
			w.WriteHeader(http.StatusNotModified)
			return true
		}
	}
	return false
}
