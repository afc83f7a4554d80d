package cli

import (
	"context"
	"fmt"

	"github.com/iudanet/authgate/internal/validation"
	"github.com/iudanet/authgate/pkg/api"
)

func (c *Cli) runLogin(ctx context.Context) error {
	c.io.Println("=== Login ===")
	c.io.Println()

	email, err := c.io.ReadInput("Email: ")
	if err != nil {
		return fmt.Errorf("failed to read email: %w", err)
	}
	if err := validation.ValidateEmail(email); err != nil {
		return err
	}

	password, _, err := c.getPassword("Password: ")
	if err != nil {
		return err
	}
	if err := validation.ValidatePassword(password); err != nil {
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
	c.io.Println("Authenticating...")

	user, err := c.session.Login(ctx, api.LoginRequest{
		Email:        email,
		Password:     password,
		CaptchaToken: captchaToken,
	})
	if err != nil {
		return fmt.Errorf("login failed: %w", c.describeError(err))
	}

	c.io.Println()
	c.io.Println("✓ Login successful!")
	c.io.Printf("User ID: %s\n", user.ID)
	c.io.Printf("Email: %s\n", user.Email)
	c.io.Println()
	c.io.Println("Your session has been saved.")

	return nil
}
