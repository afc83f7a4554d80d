package models

import "time"

// User представляет пользователя в системе
type User struct {
	CreatedAt    time.Time `json:"created_at"`    // время создания, не меняется
	UpdatedAt    time.Time `json:"updated_at"`    // время последнего обновления
	ID           string    `json:"id"`            // UUID пользователя
	Email        string    `json:"email"`         // уникальный email (регистр сохраняется)
	PasswordHash string    `json:"-"`             // bcrypt/argon2id хеш пароля
	RefreshToken string    `json:"-"`             // текущий refresh token, "" если сессии нет
	DialCode     string    `json:"dial_code"`     // код страны, необязательный
	Mobile       string    `json:"mobile"`        // номер телефона, необязательный
}

// HasRefreshToken reports whether the user has an outstanding refresh token.
func (u *User) HasRefreshToken() bool {
	return u.RefreshToken != ""
}
