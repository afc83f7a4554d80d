package api

// RegisterRequest представляет запрос на регистрацию нового пользователя
type RegisterRequest struct {
	Email        string `json:"email"`              // email пользователя
	Password     string `json:"password"`           // пароль в открытом виде (только по TLS)
	DialCode     string `json:"dialCode,omitempty"` // код страны
	Mobile       string `json:"mobile,omitempty"`   // номер телефона
	CaptchaToken string `json:"captchaToken"`       // токен Turnstile, полученный клиентом
}

// LoginRequest представляет запрос на аутентификацию
type LoginRequest struct {
	Email        string `json:"email"`
	Password     string `json:"password"`
	CaptchaToken string `json:"captchaToken"`
}

// User is the public projection of an authenticated user.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// AuthResponse представляет ответ на успешную регистрацию или логин
// Refresh token приходит только в cookie
type AuthResponse struct {
	User        *User  `json:"user"`
	Message     string `json:"message"`
	AccessToken string `json:"accessToken"`
}

// RefreshResponse представляет ответ на обновление access token
type RefreshResponse struct {
	User        *User  `json:"user"`
	AccessToken string `json:"accessToken"`
}

// MeResponse представляет ответ GET /api/me
type MeResponse struct {
	User *User `json:"user"`
}

// MessageResponse представляет ответ без данных (logout)
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse представляет ответ с ошибкой
// Details заполняется только при ошибке проверки captcha
type ErrorResponse struct {
	Details map[string]any `json:"details,omitempty"`
	Message string         `json:"message"`
}

// RefreshCookieName is the cookie carrying the refresh token.
const RefreshCookieName = "refreshToken"
