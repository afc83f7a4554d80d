package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/iudanet/authgate/pkg/api"
)

// Сообщения, которые видит клиент
const (
	MessageServerError      = "Server error"
	MessageDatabaseNotReady = "Database not connected"
	MessageInvalidBody      = "Invalid request body"
	MessageUnauthorized     = "Unauthorized"
	MessageTooManyRequests  = "Too many requests, please try again later"
	messageValidation       = "Email, password and captcha are required"
	messageCaptchaFailed    = "Captcha verification failed"
	messageUserExists       = "User already exists"
	messageInvalidCreds     = "Invalid credentials"
	messageNoRefreshToken   = "No refresh token"
	messageInvalidRefresh   = "Invalid refresh token"
	messageRefreshNotKnown  = "Refresh token not recognized"
	messageRegistered       = "Registration successful"
	messageLoggedIn         = "Login successful"
	messageLoggedOut        = "Logged out"
)

// maxBodyBytes ограничивает размер тела запроса
const maxBodyBytes = 1 << 20

// WriteJSON отправляет JSON ответ
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteError отправляет JSON ответ с ошибкой
func WriteError(w http.ResponseWriter, statusCode int, message string) error {
	return WriteJSON(w, statusCode, api.ErrorResponse{Message: message})
}
