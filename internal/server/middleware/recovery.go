package middleware

import (
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	gwerrors "github.com/threatwatch/gateway/internal/errors"
)

// Recovery converts handler panics into a generic internal error response.
// The stack trace goes to the log, never to the caller.
func Recovery(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("handler panicked",
						zap.Any("panic", rec),
						zap.String("path", r.URL.Path),
						zap.String("request_id", GetRequestID(r.Context())),
						zap.ByteString("stack", debug.Stack()))
					gwerrors.RespondWithError(w, gwerrors.NewInternal())
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
