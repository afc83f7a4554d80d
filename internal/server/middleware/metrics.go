package middleware

import (
	"net/http"
	"time"
)

// RequestObserver получает данные о каждом обработанном запросе
type RequestObserver interface {
	ObserveRequest(method, route string, status int, elapsed time.Duration)
}

// MetricsMiddleware записывает метрики запроса под меткой route
// Метка задается при регистрации маршрута, чтобы не плодить значения по произвольным путям
func MetricsMiddleware(observer RequestObserver, route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newResponseWriter(w)

			next.ServeHTTP(wrapped, r)

			observer.ObserveRequest(r.Method, route, wrapped.statusCode, time.Since(start))
		})
	}
}
