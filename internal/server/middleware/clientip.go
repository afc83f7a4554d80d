package middleware

import (
	"net/http"

	"github.com/iudanet/authgate/internal/server/handlers"
)

// ClientIPMiddleware определяет адрес клиента один раз и кладет его в контекст.
// Rate limiting, логирование и проверка captcha читают его через handlers.ClientIP.
func ClientIPMiddleware(resolver *handlers.IPResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := handlers.WithClientIP(r.Context(), resolver.Resolve(r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
