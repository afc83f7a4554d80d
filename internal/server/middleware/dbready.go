package middleware

import (
	"net/http"

	"github.com/iudanet/authgate/internal/server/handlers"
)

// ReadyChecker сообщает, подключено ли хранилище
type ReadyChecker interface {
	Ready() bool
}

// RequireDatabase отвечает 503, пока хранилище не подключено
func RequireDatabase(db ReadyChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !db.Ready() {
				_ = handlers.WriteError(w, http.StatusServiceUnavailable, handlers.MessageDatabaseNotReady)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
