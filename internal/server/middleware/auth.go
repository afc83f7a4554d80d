package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/iudanet/authgate/internal/server/handlers"
	"github.com/iudanet/authgate/internal/server/jwt"
)

// AccessTokenVerifier проверяет access token
type AccessTokenVerifier interface {
	VerifyAccessToken(token string) (*jwt.Claims, error)
}

// AuthMiddleware создает middleware для проверки JWT access token
func AuthMiddleware(logger *slog.Logger, verifier AccessTokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			// Извлекаем токен из заголовка Authorization
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.DebugContext(ctx, "missing Authorization header")
				_ = handlers.WriteError(w, http.StatusUnauthorized, handlers.MessageUnauthorized)
				return
			}

			// Ожидаем формат: "Bearer <token>"
			scheme, token, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
				logger.WarnContext(ctx, "invalid Authorization header format")
				_ = handlers.WriteError(w, http.StatusUnauthorized, handlers.MessageUnauthorized)
				return
			}

			claims, err := verifier.VerifyAccessToken(token)
			if err != nil {
				logger.WarnContext(ctx, "invalid access token", slog.Any("error", err))
				_ = handlers.WriteError(w, http.StatusUnauthorized, handlers.MessageUnauthorized)
				return
			}

			ctx = context.WithValue(ctx, handlers.UserIDKey, claims.UserID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
