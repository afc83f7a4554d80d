package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/iudanet/authgate/internal/client/storage"
)

// PersistentJar - cookie jar, который переживает перезапуск клиента
// Работает поверх net/http/cookiejar, каждое изменение cookies хоста записывается в storage
type PersistentJar struct {
	inner   *cookiejar.Jar
	store   storage.CookieStorage
	logger  *slog.Logger
	now     func() time.Time
	cookies map[string][]storage.StoredCookie
	mu      sync.Mutex
}

// NewPersistentJar создает jar над storage
func NewPersistentJar(store storage.CookieStorage, logger *slog.Logger) (*PersistentJar, error) {
	inner, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	return &PersistentJar{
		inner:   inner,
		store:   store,
		logger:  logger,
		now:     time.Now,
		cookies: make(map[string][]storage.StoredCookie),
	}, nil
}

// Cookies implements http.CookieJar
func (j *PersistentJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	j.load(u)
	j.mu.Unlock()

	return j.inner.Cookies(u)
}

// SetCookies implements http.CookieJar
func (j *PersistentJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.load(u)
	j.inner.SetCookies(u, cookies)

	now := j.now()
	current := j.cookies[u.Host]
	for _, c := range cookies {
		current = removeCookie(current, c.Name, cookiePath(c))

		expires := c.Expires
		if c.MaxAge > 0 {
			expires = now.Add(time.Duration(c.MaxAge) * time.Second)
		}
		// удаление (MaxAge < 0) и сессионные cookies не сохраняем
		if c.MaxAge < 0 || expires.IsZero() || !expires.After(now) {
			continue
		}

		current = append(current, storage.StoredCookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     cookiePath(c),
			Domain:   c.Domain,
			Expires:  expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		})
	}
	j.cookies[u.Host] = current

	if err := j.store.SaveCookies(context.Background(), u.Host, current); err != nil {
		j.logger.Warn("failed to persist cookies", "host", u.Host, slog.Any("error", err))
	}
}

// load поднимает сохраненные cookies хоста в память один раз
// Вызывается под j.mu
func (j *PersistentJar) load(u *url.URL) {
	if _, ok := j.cookies[u.Host]; ok {
		return
	}

	stored, err := j.store.LoadCookies(context.Background(), u.Host)
	if err != nil && !errors.Is(err, storage.ErrCookiesNotFound) {
		j.logger.Warn("failed to load cookies", "host", u.Host, slog.Any("error", err))
	}

	now := j.now()
	live := make([]storage.StoredCookie, 0, len(stored))
	restored := make([]*http.Cookie, 0, len(stored))
	for _, c := range stored {
		if c.Expired(now) {
			continue
		}
		live = append(live, c)
		restored = append(restored, &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   c.Domain,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		})
	}

	j.cookies[u.Host] = live
	if len(restored) > 0 {
		j.inner.SetCookies(u, restored)
	}
}

func cookiePath(c *http.Cookie) string {
	if c.Path == "" {
		return "/"
	}
	return c.Path
}

func removeCookie(cookies []storage.StoredCookie, name, path string) []storage.StoredCookie {
	out := cookies[:0]
	for _, c := range cookies {
		if c.Name == name && c.Path == path {
			continue
		}
		out = append(out, c)
	}
	return out
}
