package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	apperrors "roombook/pkg/errors"
	"roombook/pkg/logger"
)

// Recovery turns a handler panic into a 500 envelope. A panic that carries an
// *apperrors.AppError is answered with that error instead.
func Recovery(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				if p == http.ErrAbortHandler {
					panic(p)
				}

				log.Error("Panic recovered",
					"request_id", requestIDFrom(r.Context()),
					"caller", callerIdentity(r),
					"panic", fmt.Sprint(p),
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(debug.Stack()),
				)

				if appErr, ok := p.(*apperrors.AppError); ok {
					_ = apperrors.WriteError(w, appErr)
					return
				}
				_ = apperrors.WriteError(w, apperrors.Internal("Internal server error", nil))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
