package middleware

import (
	"context"
	"net/http"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"graphrag-backend/pkg/api"
	appErrors "graphrag-backend/pkg/errors"
)

// Timeout enforces a hard deadline on request handling. Handlers see the
// deadline through the request context; if one overruns anyway the client
// gets a 504 instead of a hung connection.
func Timeout(d time.Duration, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()

			r = r.WithContext(ctx)
			done := make(chan struct{})

			go func() {
				defer close(done)
				defer func() {
					// Panics on this goroutine never reach the outer
					// recovery middleware, so handle them here.
					if rec := recover(); rec != nil {
						logger.Error("panic recovered",
							zap.Any("panic", rec),
							zap.String("method", r.Method),
							zap.String("path", r.URL.Path),
							zap.String("request_id", GetRequestIDFromRequest(r)),
							zap.ByteString("stack", debug.Stack()),
						)
						if w.Header().Get("Content-Type") == "" {
							api.Error(w, http.StatusInternalServerError, "internal server error", appErrors.ErrorTypeInternal)
						}
					}
				}()

				next.ServeHTTP(w, r)
			}()

			select {
			case <-done:
			case <-ctx.Done():
				logger.Warn("request deadline exceeded",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Duration("timeout", d),
					zap.String("request_id", GetRequestIDFromRequest(r)),
				)
				if w.Header().Get("Content-Type") == "" {
					api.Error(w, http.StatusGatewayTimeout, "request timed out", appErrors.ErrorTypeTimeout)
				}
			}
		})
	}
}
