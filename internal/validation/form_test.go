package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		wantErr bool
		errMsg  string
	}{
		{name: "valid", email: "a@x.com"},
		{name: "valid with plus", email: "alice+tag@example.org"},
		{name: "uppercase kept as is", email: "Alice@Example.COM"},
		{name: "empty", email: "", wantErr: true, errMsg: "email cannot be empty"},
		{name: "no at", email: "alice.example.com", wantErr: true, errMsg: "not a valid address"},
		{name: "no domain dot", email: "alice@example", wantErr: true, errMsg: "not a valid address"},
		{name: "spaces", email: "al ice@example.com", wantErr: true, errMsg: "not a valid address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, ValidatePassword("P1!"))
	assert.Error(t, ValidatePassword(""))
}

func TestValidatePasswordConfirmation(t *testing.T) {
	assert.NoError(t, ValidatePasswordConfirmation("secret", "secret"))
	assert.ErrorIs(t, ValidatePasswordConfirmation("secret", "Secret"), ErrPasswordMismatch)
}

func TestValidatePhone(t *testing.T) {
	tests := []struct {
		name     string
		dialCode string
		mobile   string
		wantErr  bool
	}{
		{name: "both empty", dialCode: "", mobile: ""},
		{name: "valid", dialCode: "971", mobile: "501234567"},
		{name: "mobile too long", dialCode: "971", mobile: "5012345678", wantErr: true},
		{name: "mobile with letters", dialCode: "1", mobile: "55a", wantErr: true},
		{name: "dial code with plus", dialCode: "+971", mobile: "5", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePhone(tt.dialCode, tt.mobile)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateCaptchaToken(t *testing.T) {
	assert.NoError(t, ValidateCaptchaToken("token"))
	assert.Error(t, ValidateCaptchaToken(""))
}
