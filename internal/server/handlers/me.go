package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/getsentry/sentry-go"

	"github.com/iudanet/authgate/internal/models"
	"github.com/iudanet/authgate/internal/server/storage"
	"github.com/iudanet/authgate/pkg/api"
)

// UserGetter загружает пользователя по ID
type UserGetter interface {
	GetUserByID(ctx context.Context, userID string) (*models.User, error)
}

// MeHandler отдает текущего пользователя по access token
type MeHandler struct {
	logger *slog.Logger
	users  UserGetter
}

// NewMeHandler создает handler для GET /api/me
func NewMeHandler(logger *slog.Logger, users UserGetter) *MeHandler {
	return &MeHandler{
		logger: logger,
		users:  users,
	}
}

// Me обрабатывает GET /api/me
// user_id кладет в контекст AuthMiddleware
func (h *MeHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := GetUserID(ctx)
	if !ok {
		_ = WriteError(w, http.StatusUnauthorized, MessageUnauthorized)
		return
	}

	user, err := h.users.GetUserByID(ctx, userID)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrUserNotFound):
			h.logger.WarnContext(ctx, "token subject not found", slog.String("user_id", userID))
			_ = WriteError(w, http.StatusUnauthorized, MessageUnauthorized)
		case errors.Is(err, storage.ErrNotConnected):
			_ = WriteError(w, http.StatusServiceUnavailable, MessageDatabaseNotReady)
		default:
			h.logger.ErrorContext(ctx, "failed to get user", slog.Any("error", err))
			sentry.CaptureException(err)
			_ = WriteError(w, http.StatusInternalServerError, MessageServerError)
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, api.MeResponse{
		User: &api.User{ID: user.ID, Email: user.Email},
	}); err != nil {
		h.logger.ErrorContext(ctx, "failed to encode JSON response", slog.Any("error", err))
	}
}
