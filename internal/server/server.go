// Package server собирает HTTP сервер аутентификации: хранилище, сервисы, роутер и жизненный цикл
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/iudanet/authgate/internal/config"
	"github.com/iudanet/authgate/internal/crypto"
	"github.com/iudanet/authgate/internal/server/captcha"
	"github.com/iudanet/authgate/internal/server/credentials"
	"github.com/iudanet/authgate/internal/server/handlers"
	"github.com/iudanet/authgate/internal/server/jwt"
	"github.com/iudanet/authgate/internal/server/metrics"
	"github.com/iudanet/authgate/internal/server/middleware"
	"github.com/iudanet/authgate/internal/server/session"
	"github.com/iudanet/authgate/internal/server/storage"
)

const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 15 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second
	shutdownTimeout   = 10 * time.Second
)

// Server владеет HTTP сервером и хранилищем
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	holder   *storage.Holder
	limiter  *middleware.RateLimiter
	open     OpenFunc
	handler  http.Handler
	verifier captcha.Verifier
}

// Option настраивает Server
type Option func(*Server)

// WithCaptchaVerifier подменяет проверку капчи
func WithCaptchaVerifier(v captcha.Verifier) Option {
	return func(s *Server) {
		s.verifier = v
	}
}

// WithOpenFunc подменяет открытие хранилища
func WithOpenFunc(open OpenFunc) Option {
	return func(s *Server) {
		s.open = open
	}
}

// New собирает сервер из конфигурации. Хранилище не открывается до Connect или Run
func New(cfg *config.Config, logger *slog.Logger, version string, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logger,
		holder: storage.NewHolder(),
		open:   OpenStorage,
	}
	for _, opt := range opts {
		opt(s)
	}

	if s.verifier == nil {
		s.verifier = captcha.NewTurnstile(cfg.CaptchaSecret(), cfg.TurnstileVerifyURL, cfg.CaptchaTimeout, logger)
	}

	hasher, err := crypto.NewHasher(cfg.PasswordAlgorithm, cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to create password hasher: %w", err)
	}

	tokens, err := jwt.NewService(cfg.JWTAccessSecret, cfg.JWTRefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create token service: %w", err)
	}

	creds := credentials.NewStore(s.holder, hasher)
	sessions := session.NewService(creds, s.holder, tokens, s.verifier, logger)
	m := metrics.New()

	if cfg.RateLimitRequests > 0 {
		s.limiter = middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow, logger)
	}

	rt := &routes{
		logger: logger,
		auth: handlers.NewAuthHandler(logger, sessions, m, handlers.CookieConfig{
			MaxAge: tokens.RefreshTokenTTL(),
			Secure: cfg.IsProduction(),
		}),
		me:      handlers.NewMeHandler(logger, s.holder),
		health:  handlers.NewHealthHandler(logger, s.holder, version),
		verify:  tokens,
		holder:  s.holder,
		metrics: m,
		limiter: s.limiter,
		ips:     handlers.NewIPResolver(cfg.TrustedProxyPrefixes()),
		origins: cfg.AllowedOrigins(),
	}
	s.handler = rt.handler()

	return s, nil
}

// Handler возвращает корневой http.Handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Ready сообщает, подключено ли хранилище
func (s *Server) Ready() bool {
	return s.holder.Ready()
}

// Connect открывает хранилище с повторными попытками
func (s *Server) Connect(ctx context.Context) error {
	return Connect(ctx, s.logger, s.holder, s.open, s.cfg.DatabaseDSN, ConnectPolicy{
		InitialDelay: s.cfg.DBConnectInitialDelay,
		MaxDelay:     s.cfg.DBConnectMaxDelay,
		Attempts:     s.cfg.DBConnectAttempts,
	})
}

// Run начинает слушать сразу, подключает хранилище в фоне и блокируется до отмены ctx.
// Ошибка подключения к хранилищу после всех попыток завершает сервер с ошибкой
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.HTTPAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.HTTPAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve как Run, но на готовом listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	defer s.Close()

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		MaxHeaderBytes:    1 << 20,
	}

	s.logger.InfoContext(ctx, "Server listening", "addr", ln.Addr().String(), "env", s.cfg.AppEnv)

	errCh := make(chan error, 2)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	connectCtx, cancelConnect := context.WithCancel(ctx)
	defer cancelConnect()
	connected := make(chan struct{})
	go func() {
		defer close(connected)
		if err := s.Connect(connectCtx); err != nil && connectCtx.Err() == nil {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down server")
	case runErr = <-errCh:
		s.logger.Error("Server failed", slog.Any("error", runErr))
	}
	cancelConnect()
	// хранилище закрывается в defer, подключение к этому моменту должно завершиться
	<-connected

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Server shutdown failed", slog.Any("error", err))
		runErr = errors.Join(runErr, err)
	}

	s.logger.Info("Server stopped")
	return runErr
}

// Close освобождает хранилище и фоновые ресурсы
func (s *Server) Close() {
	if s.limiter != nil {
		s.limiter.Stop()
	}
	if err := s.holder.Close(); err != nil {
		s.logger.Error("Failed to close storage", slog.Any("error", err))
	}
}
