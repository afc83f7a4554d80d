// Package session держит клиентскую сессию: текущего пользователя, access token
// и единственный таймер его продления
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iudanet/authgate/pkg/api"
)

// RenewBefore - за сколько до истечения access token запускается продление
const RenewBefore = 60 * time.Second

// ErrClosed возвращается операциями после Close
var ErrClosed = errors.New("session manager is closed")

//go:generate moq -out api_mock.go . API

// API - серверные вызовы, нужные менеджеру
// Refresh token передается через cookie jar и менеджеру не виден
type API interface {
	Register(ctx context.Context, req api.RegisterRequest) (*api.AuthResponse, error)
	Login(ctx context.Context, req api.LoginRequest) (*api.AuthResponse, error)
	Refresh(ctx context.Context) (*api.RefreshResponse, error)
	Logout(ctx context.Context) error
}

// Timer - отменяемая отложенная задача
type Timer interface {
	Stop() bool
}

// AfterFunc запускает f через d
type AfterFunc func(d time.Duration, f func()) Timer

func timeAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// State - снимок состояния сессии
type State struct {
	User        *api.User
	AccessToken string
	Loading     bool
}

// Authenticated сообщает, есть ли активная сессия
func (s State) Authenticated() bool {
	return s.User != nil && s.AccessToken != ""
}

// Option настраивает Manager
type Option func(*Manager)

// WithClock подменяет источник времени
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithAfterFunc подменяет планировщик таймера
func WithAfterFunc(af AfterFunc) Option {
	return func(m *Manager) {
		m.afterFunc = af
	}
}

// WithOnChange регистрирует наблюдателя изменений состояния
// Вызывается вне блокировки, можно обращаться к Manager
func WithOnChange(fn func(State)) Option {
	return func(m *Manager) {
		m.onChange = fn
	}
}

// Manager - клиентская сессия с явным жизненным циклом:
// New (loading) -> Init -> authenticated/unauthenticated -> Close
type Manager struct {
	api       API
	logger    *slog.Logger
	now       func() time.Time
	afterFunc AfterFunc
	onChange  func(State)
	timer     Timer
	ctx       context.Context
	cancel    context.CancelFunc
	state     State
	timerGen  uint64
	mu        sync.Mutex
	closed    bool
}

// New создает менеджер в состоянии loading
func New(client API, logger *slog.Logger, opts ...Option) *Manager {
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		api:       client,
		logger:    logger,
		now:       time.Now,
		afterFunc: timeAfterFunc,
		ctx:       ctx,
		cancel:    cancel,
		state:     State{Loading: true},
	}
	for _, opt := range opts {
		opt(m)
	}

	return m
}

// State возвращает текущее состояние
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Init выполняет тихий refresh по cookie
// Любая ошибка означает "не аутентифицирован"; loading снимается в любом случае
func (m *Manager) Init(ctx context.Context) State {
	m.refresh(ctx)

	m.mu.Lock()
	if m.closed {
		st := m.state
		m.mu.Unlock()
		return st
	}
	m.state.Loading = false
	st := m.state
	m.mu.Unlock()

	m.notify(st)
	return st
}

// Login отправляет учетные данные и капчу на сервер
// При ошибке состояние не меняется, ошибка сервера возвращается как есть (*client api.APIError)
func (m *Manager) Login(ctx context.Context, req api.LoginRequest) (*api.User, error) {
	if m.isClosed() {
		return nil, ErrClosed
	}

	resp, err := m.api.Login(ctx, req)
	if err != nil {
		return nil, err
	}

	m.establish(resp.User, resp.AccessToken)
	return resp.User, nil
}

// Register регистрирует пользователя и сразу открывает сессию
func (m *Manager) Register(ctx context.Context, req api.RegisterRequest) (*api.User, error) {
	if m.isClosed() {
		return nil, ErrClosed
	}

	resp, err := m.api.Register(ctx, req)
	if err != nil {
		return nil, err
	}

	m.establish(resp.User, resp.AccessToken)
	return resp.User, nil
}

// Logout уведомляет сервер (ошибки игнорируются) и всегда очищает сессию
func (m *Manager) Logout(ctx context.Context) {
	if err := m.api.Logout(ctx); err != nil {
		m.logger.DebugContext(ctx, "logout request failed", slog.Any("error", err))
	}

	m.clear()
}

// Close отменяет таймер и незавершенное продление; после Close состояние не меняется
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true
	m.stopTimerLocked()
	m.cancel()
}

// refresh выполняет один тихий refresh; ошибка очищает состояние
func (m *Manager) refresh(ctx context.Context) {
	resp, err := m.api.Refresh(ctx)
	if err != nil || resp.User == nil || resp.AccessToken == "" {
		if err != nil {
			m.logger.DebugContext(ctx, "silent refresh failed", slog.Any("error", err))
		}
		m.clear()
		return
	}

	m.establish(resp.User, resp.AccessToken)
}

// establish заменяет пользователя и токен и перепланирует продление
func (m *Manager) establish(user *api.User, accessToken string) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.state.User = user
	m.state.AccessToken = accessToken
	m.scheduleRenewalLocked(accessToken)
	st := m.state
	m.mu.Unlock()

	m.notify(st)
}

// clear сбрасывает пользователя и токен и отменяет таймер
func (m *Manager) clear() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.state.User = nil
	m.state.AccessToken = ""
	m.stopTimerLocked()
	st := m.state
	m.mu.Unlock()

	m.notify(st)
}

// scheduleRenewalLocked взводит единственный таймер на exp-now-RenewBefore (не меньше нуля)
// Предыдущий таймер отменяется всегда, даже если exp прочитать не удалось
func (m *Manager) scheduleRenewalLocked(accessToken string) {
	m.stopTimerLocked()

	expiresAt, err := tokenExpiry(accessToken)
	if err != nil {
		m.logger.Warn("cannot schedule token renewal", slog.Any("error", err))
		return
	}

	delay := max(expiresAt.Sub(m.now())-RenewBefore, 0)

	m.timerGen++
	gen := m.timerGen
	m.timer = m.afterFunc(delay, func() { m.renew(gen) })
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	// сработавший, но устаревший таймер не должен продлевать сессию
	m.timerGen++
}

// renew - срабатывание таймера: одна попытка, без повторов
func (m *Manager) renew(gen uint64) {
	m.mu.Lock()
	if m.closed || gen != m.timerGen {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	ctx := m.ctx
	m.mu.Unlock()

	m.refresh(ctx)
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Manager) notify(st State) {
	if m.onChange != nil {
		m.onChange(st)
	}
}

// tokenExpiry читает exp без проверки подписи: клиент не знает секрет,
// проверку выполняет сервер
func tokenExpiry(token string) (time.Time, error) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("failed to parse access token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, errors.New("access token has no exp claim")
	}
	return claims.ExpiresAt.Time, nil
}
