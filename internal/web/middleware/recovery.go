package middleware

import (
	"errors"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/pagecraft/pagecraft/internal/web/response"
)

// Recovery turns a handler panic into a logged 500 response
func Recovery(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				logger.Error("panic recovered",
					zap.String("request_id", GetRequestID(r.Context())),
					zap.String("path", r.URL.Path),
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()),
				)
				response.RenderErrorWithDetails(w, http.StatusInternalServerError,
					errors.New("An unexpected error occurred"),
					map[string]interface{}{"request_id": GetRequestID(r.Context())})
			}()
			next.ServeHTTP(w, r)
		})
	}
}
