package server

import (
	"time"

	"github.com/getsentry/sentry-go"
)

// InitSentry включает отправку ошибок в Sentry. Пустой DSN отключает отправку
func InitSentry(dsn, environment, release string) error {
	if dsn == "" {
		return nil
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		Release:          release,
		AttachStacktrace: true,
	})
}

// FlushSentry дожидается отправки накопленных событий
func FlushSentry() {
	sentry.Flush(2 * time.Second)
}
