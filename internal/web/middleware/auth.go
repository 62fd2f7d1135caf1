package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/pagecraft/pagecraft/internal/web/auth"
	"github.com/pagecraft/pagecraft/internal/web/response"
)

// Authenticate attaches the verified user to the request context when the
// request carries valid credentials. It never rejects a request.
func Authenticate(provider *auth.Provider) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if user, err := provider.CurrentUser(r); err == nil {
				r = r.WithContext(auth.WithUser(r.Context(), user))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireUser rejects anonymous requests. API calls get 401; browsers are
// redirected to loginURL with the original path in `next`.
func RequireUser(loginURL string) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth.UserFrom(r.Context()) != nil {
				next.ServeHTTP(w, r)
				return
			}
			if wantsJSON(r) {
				response.RenderUnauthorized(w, "")
				return
			}
			target := loginURL + "?next=" + url.QueryEscape(r.URL.RequestURI())
			http.Redirect(w, r, target, http.StatusFound)
		})
	}
}

func wantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") || strings.HasPrefix(r.URL.Path, "/ws/") {
		return true
	}
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}
