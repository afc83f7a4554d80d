package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/iudanet/authgate/internal/server/storage"
	"github.com/iudanet/authgate/internal/server/storage/postgres"
	"github.com/iudanet/authgate/internal/server/storage/sqlite"
)

// OpenFunc открывает хранилище пользователей по DSN
type OpenFunc func(ctx context.Context, dsn string) (storage.UserStorage, error)

// OpenStorage выбирает бэкенд по DSN: postgres:// и postgresql:// ведут в PostgreSQL,
// все остальное считается путем к файлу SQLite
func OpenStorage(ctx context.Context, dsn string) (storage.UserStorage, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return postgres.New(ctx, dsn)
	}
	return sqlite.New(ctx, dsn)
}

// ConnectPolicy задает параметры повторных попыток подключения
type ConnectPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Attempts     int
}

// Connect пытается открыть хранилище с экспоненциальной задержкой между попытками
// и при успехе подключает его к holder. После исчерпания попыток возвращает последнюю ошибку
func Connect(ctx context.Context, logger *slog.Logger, holder *storage.Holder, open OpenFunc, dsn string, policy ConnectPolicy) error {
	backoff := retry.NewExponential(policy.InitialDelay)
	if policy.MaxDelay > 0 {
		backoff = retry.WithCappedDuration(policy.MaxDelay, backoff)
	}
	retries := uint64(0)
	if policy.Attempts > 1 {
		retries = uint64(policy.Attempts - 1)
	}
	backoff = retry.WithMaxRetries(retries, backoff)

	attempt := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++

		st, err := open(ctx, dsn)
		if err != nil {
			logger.WarnContext(ctx, "Database connection attempt failed",
				"attempt", attempt,
				"max_attempts", policy.Attempts,
				slog.Any("error", err),
			)
			return retry.RetryableError(err)
		}

		holder.Attach(st)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database after %d attempts: %w", attempt, err)
	}

	logger.InfoContext(ctx, "Database connected", "attempt", attempt)
	return nil
}
