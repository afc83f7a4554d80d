package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/getsentry/sentry-go"

	"github.com/iudanet/authgate/internal/server/handlers"
)

// RecoveryMiddleware создает middleware для восстановления после паники
// Перехватывает panic, логирует стек вызовов, отправляет событие в Sentry
// и возвращает 500 с generic сообщением
func RecoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				// http.ErrAbortHandler прерывает ответ намеренно
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				stackTrace := debug.Stack()

				logger.ErrorContext(r.Context(), "Panic recovered",
					"error", rec,
					"request_id", handlers.GetRequestID(r.Context()),
					"method", r.Method,
					"path", r.URL.Path,
					"stack", string(stackTrace),
				)

				sentry.WithScope(func(scope *sentry.Scope) {
					scope.SetTag("path", r.URL.Path)
					scope.SetExtra("stack", string(stackTrace))
					sentry.CaptureException(fmt.Errorf("panic in request: %v", rec))
				})

				_ = handlers.WriteError(w, http.StatusInternalServerError, handlers.MessageServerError)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
