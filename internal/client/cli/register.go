package cli

import (
	"context"
	"fmt"

	"github.com/iudanet/authgate/internal/validation"
	"github.com/iudanet/authgate/pkg/api"
)

func (c *Cli) runRegister(ctx context.Context) error {
	c.io.Println("=== Registration ===")
	c.io.Println()

	email, err := c.io.ReadInput("Email: ")
	if err != nil {
		return fmt.Errorf("failed to read email: %w", err)
	}
	if err := validation.ValidateEmail(email); err != nil {
		return err
	}

	password, interactive, err := c.getPassword("Password: ")
	if err != nil {
		return err
	}
	if err := validation.ValidatePassword(password); err != nil {
		return err
	}

	// Подтверждение пароля только при вводе с клавиатуры
	if interactive {
		confirm, err := c.io.ReadPassword("Confirm password: ")
		if err != nil {
			return fmt.Errorf("failed to read confirmation: %w", err)
		}
		if err := validation.ValidatePasswordConfirmation(password, confirm); err != nil {
			return err
		}
	}

	dialCode, err := c.io.ReadInput("Dial code (optional): ")
	if err != nil {
		return fmt.Errorf("failed to read dial code: %w", err)
	}
	mobile, err := c.io.ReadInput("Mobile number without prefix (optional): ")
	if err != nil {
		return fmt.Errorf("failed to read mobile: %w", err)
	}
	if err := validation.ValidatePhone(dialCode, mobile); err != nil {
		return err
	}

	captchaToken, err := c.getCaptchaToken()
	if err != nil {
		return err
	}
	if err := validation.ValidateCaptchaToken(captchaToken); err != nil {
		return err
	}

	c.io.Println()
	c.io.Println("Registering user...")

	user, err := c.session.Register(ctx, api.RegisterRequest{
		Email:        email,
		Password:     password,
		DialCode:     dialCode,
		Mobile:       mobile,
		CaptchaToken: captchaToken,
	})
	if err != nil {
		return fmt.Errorf("registration failed: %w", c.describeError(err))
	}

	c.io.Println()
	c.io.Println("✓ Registration successful!")
	c.io.Printf("User ID: %s\n", user.ID)
	c.io.Printf("Email: %s\n", user.Email)
	c.io.Println()
	c.io.Println("You are logged in.")

	return nil
}
