package storage

import (
	"context"
	"time"
)

// CookieStorage хранит cookies сервера между запусками клиента
// Ключ - host сервера (host:port), значение - полный набор cookies для него
type CookieStorage interface {
	// SaveCookies заменяет набор cookies для host; пустой набор удаляет запись
	SaveCookies(ctx context.Context, host string, cookies []StoredCookie) error

	// LoadCookies возвращает сохраненные cookies для host
	// Returns ErrCookiesNotFound if nothing is stored for the host
	LoadCookies(ctx context.Context, host string) ([]StoredCookie, error)

	// DeleteCookies удаляет все cookies для host
	DeleteCookies(ctx context.Context, host string) error
}

// StoredCookie - сохраняемая часть http.Cookie
// Cookies без Expires считаются сессионными и не сохраняются
type StoredCookie struct {
	Expires  time.Time `json:"expires"`
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Path     string    `json:"path"`
	Domain   string    `json:"domain,omitempty"`
	Secure   bool      `json:"secure"`
	HttpOnly bool      `json:"http_only"`
}

// Expired сообщает, истек ли срок cookie к моменту now
func (c StoredCookie) Expired(now time.Time) bool {
	return !c.Expires.After(now)
}
