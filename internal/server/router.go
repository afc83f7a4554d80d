package server

import (
	"log/slog"
	"net/http"

	"github.com/iudanet/authgate/internal/server/handlers"
	"github.com/iudanet/authgate/internal/server/metrics"
	"github.com/iudanet/authgate/internal/server/middleware"
	"github.com/iudanet/authgate/internal/server/storage"
)

// routes собирает все зависимости роутера
type routes struct {
	logger  *slog.Logger
	auth    *handlers.AuthHandler
	me      *handlers.MeHandler
	health  *handlers.HealthHandler
	verify  middleware.AccessTokenVerifier
	holder  *storage.Holder
	metrics *metrics.Metrics
	limiter *middleware.RateLimiter
	ips     *handlers.IPResolver
	origins []string
}

// chain применяет middleware так, что первый в списке оказывается внешним
func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

func (rt *routes) handler() http.Handler {
	mux := http.NewServeMux()

	requireDB := middleware.RequireDatabase(rt.holder)
	authenticate := middleware.AuthMiddleware(rt.logger, rt.verify)

	limited := func(h http.Handler) http.Handler { return h }
	if rt.limiter != nil {
		limited = rt.limiter.Middleware
	}

	api := func(route string, h http.HandlerFunc, extra ...func(http.Handler) http.Handler) http.Handler {
		mws := append([]func(http.Handler) http.Handler{
			middleware.MetricsMiddleware(rt.metrics, route),
			requireDB,
		}, extra...)
		return chain(h, mws...)
	}

	mux.Handle("POST /api/register", api("/api/register", rt.auth.Register, limited))
	mux.Handle("POST /api/login", api("/api/login", rt.auth.Login, limited))
	mux.Handle("POST /api/refresh", api("/api/refresh", rt.auth.Refresh))
	mux.Handle("POST /api/logout", api("/api/logout", rt.auth.Logout))
	mux.Handle("GET /api/me", api("/api/me", rt.me.Me, authenticate))

	mux.Handle("GET /health", chain(http.HandlerFunc(rt.health.Health), middleware.MetricsMiddleware(rt.metrics, "/health")))
	mux.Handle("GET /metrics", rt.metrics.Handler())

	return chain(mux,
		middleware.RecoveryMiddleware(rt.logger),
		middleware.RequestIDMiddleware,
		middleware.ClientIPMiddleware(rt.ips),
		middleware.LoggingWithSkip(rt.logger, []string{"/health", "/metrics"}),
		middleware.CORSMiddleware(rt.origins),
	)
}
