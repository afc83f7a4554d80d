package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/iudanet/authgate/internal/client/session"
)

func (c *Cli) runStatus(ctx context.Context) error {
	c.io.Println("=== Authentication Status ===")
	c.io.Println()

	st := c.session.Init(ctx)
	if !st.Authenticated() {
		c.io.Println("Status: Not authenticated")
		c.io.Println()
		c.io.Println("Run 'authgate login' to authenticate.")
		return nil
	}

	c.io.Println("Status: Authenticated")
	c.io.Printf("User ID: %s\n", st.User.ID)
	c.io.Printf("Email: %s\n", st.User.Email)
	c.printExpiry(st)

	return nil
}

func (c *Cli) runMe(ctx context.Context) error {
	st := c.session.Init(ctx)
	if !st.Authenticated() {
		return fmt.Errorf("not authenticated. Please run 'authgate login' first")
	}

	resp, err := c.profile.Me(ctx, st.AccessToken)
	if err != nil {
		return fmt.Errorf("failed to load profile: %w", c.describeError(err))
	}

	c.io.Printf("User ID: %s\n", resp.User.ID)
	c.io.Printf("Email: %s\n", resp.User.Email)

	return nil
}

// runKeepalive держит сессию до отмены ctx; продлением занимается session.Manager
func (c *Cli) runKeepalive(ctx context.Context) error {
	st := c.session.Init(ctx)
	if !st.Authenticated() {
		return fmt.Errorf("not authenticated. Please run 'authgate login' first")
	}

	c.io.Printf("Session active for %s, press Ctrl+C to stop\n", st.User.Email)
	c.printExpiry(st)

	ticker := time.NewTicker(c.opts.KeepaliveInterval)
	defer ticker.Stop()

	last := st.AccessToken
	for {
		select {
		case <-ctx.Done():
			c.io.Println("Stopped.")
			return nil
		case <-ticker.C:
			cur := c.session.State()
			if !cur.Authenticated() {
				return fmt.Errorf("session ended: renewal failed")
			}
			if cur.AccessToken != last {
				last = cur.AccessToken
				c.io.Println("✓ Access token renewed")
				c.printExpiry(cur)
			}
		}
	}
}

func (c *Cli) printExpiry(st session.State) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(st.AccessToken, claims); err != nil || claims.ExpiresAt == nil {
		return
	}

	expiresAt := claims.ExpiresAt.Time
	c.io.Printf("Access token expires: %s\n", expiresAt.Format(time.RFC3339))
	if remaining := time.Until(expiresAt); remaining > 0 {
		c.io.Printf("Time remaining: %s\n", remaining.Round(time.Second))
	}
}
