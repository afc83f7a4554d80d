package validation

import (
	"errors"
	"fmt"
	"regexp"
)

// EmailPattern - грубая проверка формата email, окончательное решение за сервером
var EmailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// MobilePattern - номер телефона без кода страны и ведущего нуля
var MobilePattern = regexp.MustCompile(`^[0-9]{1,9}$`)

// DialCodePattern - код страны без "+"
var DialCodePattern = regexp.MustCompile(`^[0-9]{1,4}$`)

// ErrPasswordMismatch возвращается, если пароль и подтверждение различаются
var ErrPasswordMismatch = errors.New("password and confirm password must match")

// ValidateEmail проверяет, что email не пустой и похож на адрес
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}

	if !EmailPattern.MatchString(email) {
		return fmt.Errorf("email %q is not a valid address", email)
	}

	return nil
}

// ValidatePassword проверяет, что пароль задан
// Требований к сложности нет, их не предъявляет и сервер
func ValidatePassword(password string) error {
	if password == "" {
		return fmt.Errorf("password cannot be empty")
	}
	return nil
}

// ValidatePasswordConfirmation сравнивает пароль с подтверждением
func ValidatePasswordConfirmation(password, confirm string) error {
	if password != confirm {
		return ErrPasswordMismatch
	}
	return nil
}

// ValidatePhone проверяет необязательные код страны и номер
func ValidatePhone(dialCode, mobile string) error {
	if dialCode != "" && !DialCodePattern.MatchString(dialCode) {
		return fmt.Errorf("dial code must contain 1-4 digits")
	}

	if mobile != "" && !MobilePattern.MatchString(mobile) {
		return fmt.Errorf("mobile number must contain 1-9 digits without prefix")
	}

	return nil
}

// ValidateCaptchaToken проверяет, что токен капчи получен
func ValidateCaptchaToken(token string) error {
	if token == "" {
		return fmt.Errorf("please complete the security check")
	}
	return nil
}
