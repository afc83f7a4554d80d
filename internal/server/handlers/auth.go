package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/iudanet/authgate/internal/server/session"
	"github.com/iudanet/authgate/internal/server/storage"
	"github.com/iudanet/authgate/pkg/api"
)

// Названия операций для метрик
const (
	OperationRegister = "register"
	OperationLogin    = "login"
	OperationRefresh  = "refresh"
	OperationLogout   = "logout"
)

// Исходы операций для метрик
const (
	outcomeSuccess  = "success"
	outcomeRejected = "rejected"
	outcomeError    = "error"
)

// SessionService определяет операции протокола сессий
type SessionService interface {
	Register(ctx context.Context, in session.RegisterInput) (*session.Result, error)
	Login(ctx context.Context, in session.LoginInput) (*session.Result, error)
	Refresh(ctx context.Context, refreshToken string) (*session.Result, error)
	Logout(ctx context.Context, refreshToken string)
}

// AuthObserver получает исход каждой операции
type AuthObserver interface {
	ObserveAuth(operation, outcome string)
}

// CookieConfig описывает атрибуты refresh cookie
type CookieConfig struct {
	MaxAge time.Duration
	Secure bool
}

// AuthHandler обрабатывает запросы авторизации
type AuthHandler struct {
	logger   *slog.Logger
	sessions SessionService
	observer AuthObserver
	cookie   CookieConfig
}

// NewAuthHandler создает новый handler для авторизации
// observer может быть nil
func NewAuthHandler(logger *slog.Logger, sessions SessionService, observer AuthObserver, cookie CookieConfig) *AuthHandler {
	return &AuthHandler{
		logger:   logger,
		sessions: sessions,
		observer: observer,
		cookie:   cookie,
	}
}

// Register обрабатывает POST /api/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.RegisterRequest
	if !h.decode(w, r, &req) {
		h.observe(OperationRegister, outcomeRejected)
		return
	}

	res, err := h.sessions.Register(ctx, session.RegisterInput{
		Email:        req.Email,
		Password:     req.Password,
		DialCode:     req.DialCode,
		Mobile:       req.Mobile,
		CaptchaToken: req.CaptchaToken,
		RemoteIP:     ClientIP(r),
	})
	if err != nil {
		h.fail(w, r, OperationRegister, err)
		return
	}

	h.observe(OperationRegister, outcomeSuccess)
	h.setRefreshCookie(w, res.RefreshToken)
	h.sendJSON(ctx, w, http.StatusOK, api.AuthResponse{
		Message:     messageRegistered,
		User:        toAPIUser(res.User),
		AccessToken: res.AccessToken,
	})
}

// Login обрабатывает POST /api/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.LoginRequest
	if !h.decode(w, r, &req) {
		h.observe(OperationLogin, outcomeRejected)
		return
	}

	res, err := h.sessions.Login(ctx, session.LoginInput{
		Email:        req.Email,
		Password:     req.Password,
		CaptchaToken: req.CaptchaToken,
		RemoteIP:     ClientIP(r),
	})
	if err != nil {
		h.fail(w, r, OperationLogin, err)
		return
	}

	h.logger.InfoContext(ctx, "user logged in", slog.String("user_id", res.User.ID))

	h.observe(OperationLogin, outcomeSuccess)
	h.setRefreshCookie(w, res.RefreshToken)
	h.sendJSON(ctx, w, http.StatusOK, api.AuthResponse{
		Message:     messageLoggedIn,
		User:        toAPIUser(res.User),
		AccessToken: res.AccessToken,
	})
}

// Refresh обрабатывает POST /api/refresh
// Refresh token берется только из cookie, тело запроса игнорируется
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	res, err := h.sessions.Refresh(ctx, refreshCookie(r))
	if err != nil {
		h.fail(w, r, OperationRefresh, err)
		return
	}

	h.observe(OperationRefresh, outcomeSuccess)
	h.setRefreshCookie(w, res.RefreshToken)
	h.sendJSON(ctx, w, http.StatusOK, api.RefreshResponse{
		User:        toAPIUser(res.User),
		AccessToken: res.AccessToken,
	})
}

// Logout обрабатывает POST /api/logout
// Всегда отвечает 200 и удаляет cookie
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	h.sessions.Logout(ctx, refreshCookie(r))

	h.observe(OperationLogout, outcomeSuccess)
	h.clearRefreshCookie(w)
	h.sendJSON(ctx, w, http.StatusOK, api.MessageResponse{Message: messageLoggedOut})
}

// decode читает JSON тело запроса; при ошибке отправляет 400
func (h *AuthHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.logger.WarnContext(r.Context(), "failed to decode request body", slog.Any("error", err))
		h.sendError(r.Context(), w, http.StatusBadRequest, MessageInvalidBody, nil)
		return false
	}

	return true
}

// fail переводит ошибку протокола в HTTP ответ
func (h *AuthHandler) fail(w http.ResponseWriter, r *http.Request, operation string, err error) {
	ctx := r.Context()

	var captchaErr *session.CaptchaError

	switch {
	case errors.Is(err, session.ErrValidation):
		h.reject(ctx, w, operation, http.StatusBadRequest, messageValidation, nil)
	case errors.As(err, &captchaErr):
		h.logger.InfoContext(ctx, "captcha verification failed", slog.String("operation", operation))
		h.reject(ctx, w, operation, http.StatusBadRequest, messageCaptchaFailed, captchaErr.Details)
	case errors.Is(err, session.ErrConflict):
		h.reject(ctx, w, operation, http.StatusBadRequest, messageUserExists, nil)
	case errors.Is(err, session.ErrInvalidCredentials):
		h.reject(ctx, w, operation, http.StatusBadRequest, messageInvalidCreds, nil)
	case errors.Is(err, session.ErrNoRefreshToken):
		h.reject(ctx, w, operation, http.StatusUnauthorized, messageNoRefreshToken, nil)
	case errors.Is(err, session.ErrInvalidRefreshToken):
		h.reject(ctx, w, operation, http.StatusUnauthorized, messageInvalidRefresh, nil)
	case errors.Is(err, session.ErrUnauthenticated):
		h.reject(ctx, w, operation, http.StatusUnauthorized, messageRefreshNotKnown, nil)
	case errors.Is(err, storage.ErrNotConnected):
		h.logger.WarnContext(ctx, "database not connected", slog.String("operation", operation))
		h.observe(operation, outcomeError)
		h.sendError(ctx, w, http.StatusServiceUnavailable, MessageDatabaseNotReady, nil)
	default:
		h.logger.ErrorContext(ctx, operation+" failed",
			slog.String("request_id", GetRequestID(ctx)),
			slog.Any("error", err))
		sentry.CaptureException(err)
		h.observe(operation, outcomeError)
		h.sendError(ctx, w, http.StatusInternalServerError, MessageServerError, nil)
	}
}

func (h *AuthHandler) reject(ctx context.Context, w http.ResponseWriter, operation string, statusCode int, message string, details map[string]any) {
	h.observe(operation, outcomeRejected)
	h.sendError(ctx, w, statusCode, message, details)
}

func (h *AuthHandler) observe(operation, outcome string) {
	if h.observer != nil {
		h.observer.ObserveAuth(operation, outcome)
	}
}

func (h *AuthHandler) setRefreshCookie(w http.ResponseWriter, token string) {
	http.SetCookie(w, &http.Cookie{
		Name:     api.RefreshCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.cookie.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     api.RefreshCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// sendJSON отправляет JSON ответ
func (h *AuthHandler) sendJSON(ctx context.Context, w http.ResponseWriter, statusCode int, data any) {
	if err := WriteJSON(w, statusCode, data); err != nil {
		h.logger.ErrorContext(ctx, "failed to encode JSON response", slog.Any("error", err))
	}
}

// sendError отправляет JSON ответ с ошибкой
func (h *AuthHandler) sendError(ctx context.Context, w http.ResponseWriter, statusCode int, message string, details map[string]any) {
	h.sendJSON(ctx, w, statusCode, api.ErrorResponse{
		Message: message,
		Details: details,
	})
}

func refreshCookie(r *http.Request) string {
	c, err := r.Cookie(api.RefreshCookieName)
	if err != nil {
		return ""
	}
	return c.Value
}

func toAPIUser(u session.User) *api.User {
	return &api.User{ID: u.ID, Email: u.Email}
}
