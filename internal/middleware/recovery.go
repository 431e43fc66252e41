package middleware

import (
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"graphrag-backend/pkg/api"
	appErrors "graphrag-backend/pkg/errors"
)

// Recovery converts panics into 500 responses so a misbehaving handler
// cannot take down the server loop.
func Recovery(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rec),
						zap.String("method", r.Method),
						zap.String("path", r.URL.Path),
						zap.String("request_id", GetRequestIDFromRequest(r)),
						zap.ByteString("stack", debug.Stack()),
					)

					// If the handler already started writing we cannot
					// salvage the response; the server closes the connection.
					if w.Header().Get("Content-Type") == "" {
						api.Error(w, http.StatusInternalServerError, "internal server error", appErrors.ErrorTypeInternal)
					}
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
