package handlers

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// contextKey тип для ключей контекста
type contextKey string

const (
	// UserIDKey ключ для хранения user_id в контексте
	UserIDKey contextKey = "user_id"
	// RequestIDKey ключ для хранения request id в контексте
	RequestIDKey contextKey = "request_id"

	clientIPKey contextKey = "client_ip"
)

// GetUserID извлекает user_id из контекста запроса
func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(UserIDKey).(string)
	return userID, ok && userID != ""
}

// GetRequestID извлекает request id из контекста запроса
func GetRequestID(ctx context.Context) string {
	requestID, _ := ctx.Value(RequestIDKey).(string)
	return requestID
}

// ClientIP возвращает IP адрес клиента.
// Берется адрес, определенный ClientIPMiddleware, иначе RemoteAddr без порта.
func ClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(clientIPKey).(string); ok && ip != "" {
		return ip
	}
	return remoteHost(r)
}

// WithClientIP сохраняет IP адрес клиента в контексте
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey, ip)
}

// IPResolver определяет адрес клиента.
// Заголовки X-Forwarded-For и X-Real-IP учитываются только если
// непосредственный собеседник входит в список доверенных прокси.
type IPResolver struct {
	trusted []netip.Prefix
}

// NewIPResolver создает resolver; пустой список отключает forwarded заголовки
func NewIPResolver(trusted []netip.Prefix) *IPResolver {
	return &IPResolver{trusted: trusted}
}

// Resolve возвращает адрес клиента для запроса
func (res *IPResolver) Resolve(r *http.Request) string {
	peer := remoteHost(r)
	if !res.isTrusted(peer) {
		return peer
	}

	// Справа налево: последний адрес, не принадлежащий доверенному прокси
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if i == 0 || !res.isTrusted(hop) {
				return hop
			}
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	return peer
}

func (res *IPResolver) isTrusted(ip string) bool {
	if len(res.trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range res.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
