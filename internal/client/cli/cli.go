package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	clientapi "github.com/iudanet/authgate/internal/client/api"
	"github.com/iudanet/authgate/internal/client/iocli"
	"github.com/iudanet/authgate/internal/client/session"
	"github.com/iudanet/authgate/pkg/api"
)

// PasswordEnv - переменная окружения с паролем для неинтерактивного запуска
const PasswordEnv = "AUTHGATE_PASSWORD"

// Session - клиентская сессия (*session.Manager)
type Session interface {
	Init(ctx context.Context) session.State
	State() session.State
	Login(ctx context.Context, req api.LoginRequest) (*api.User, error)
	Register(ctx context.Context, req api.RegisterRequest) (*api.User, error)
	Logout(ctx context.Context)
}

// Profile загружает пользователя по access token
type Profile interface {
	Me(ctx context.Context, accessToken string) (*api.MeResponse, error)
}

// Passwords - неинтерактивные источники пароля
type Passwords struct {
	FromFile string
	FromArgs string
}

// Options - значения из флагов командной строки
type Options struct {
	Passwords    Passwords
	CaptchaToken string
	// KeepaliveInterval - период проверки сессии в keepalive
	KeepaliveInterval time.Duration
}

type Cli struct {
	session Session
	profile Profile
	io      iocli.IO
	opts    Options
}

func New(sess Session, profile Profile, io iocli.IO, opts Options) *Cli {
	if opts.KeepaliveInterval <= 0 {
		opts.KeepaliveInterval = time.Second
	}
	return &Cli{
		session: sess,
		profile: profile,
		io:      io,
		opts:    opts,
	}
}

// getPassword retrieves password from various sources with priority:
// 1. Environment variable AUTHGATE_PASSWORD
// 2. File specified in Passwords.FromFile
// 3. Command-line parameter Passwords.FromArgs
// 4. Interactive prompt (fallback)
// interactive сообщает, был ли пароль введен с клавиатуры
func (c *Cli) getPassword(prompt string) (password string, interactive bool, err error) {
	// Priority 1: Environment variable
	if envPassword := os.Getenv(PasswordEnv); envPassword != "" {
		return envPassword, false, nil
	}

	// Priority 2: File
	if c.opts.Passwords.FromFile != "" {
		content, err := os.ReadFile(c.opts.Passwords.FromFile)
		if err != nil {
			return "", false, fmt.Errorf("failed to read password file: %w", err)
		}
		// Убираем trailing newline/whitespace
		password := strings.TrimSpace(string(content))
		if password == "" {
			return "", false, fmt.Errorf("password file is empty")
		}
		return password, false, nil
	}

	// Priority 3: CLI parameter
	if c.opts.Passwords.FromArgs != "" {
		return c.opts.Passwords.FromArgs, false, nil
	}

	// Priority 4: Interactive prompt (fallback)
	password, err = c.io.ReadPassword(prompt)
	if err != nil {
		return "", true, fmt.Errorf("failed to read password: %w", err)
	}
	return password, true, nil
}

// getCaptchaToken берет токен из флага или спрашивает у пользователя
func (c *Cli) getCaptchaToken() (string, error) {
	if c.opts.CaptchaToken != "" {
		return c.opts.CaptchaToken, nil
	}

	token, err := c.io.ReadInput("Captcha token: ")
	if err != nil {
		return "", fmt.Errorf("failed to read captcha token: %w", err)
	}
	return token, nil
}

// describeError печатает сообщение сервера и диагностику капчи
func (c *Cli) describeError(err error) error {
	var apiErr *clientapi.APIError
	if !errors.As(err, &apiErr) {
		return err
	}

	if len(apiErr.Details) > 0 {
		c.io.Println("Verification details:")
		keys := make([]string, 0, len(apiErr.Details))
		for k := range apiErr.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			c.io.Printf("  %s: %v\n", k, apiErr.Details[k])
		}
	}

	return errors.New(apiErr.Message)
}

func PrintUsage() {
	fmt.Println("Authgate Client")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  authgate [OPTIONS] COMMAND")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --version              Show version information")
	fmt.Println("  --server URL           Server URL (default: http://localhost:5000)")
	fmt.Println("  --db PATH              Path to local cookie database (default: authgate-client.db)")
	fmt.Println("  --captcha TOKEN        Turnstile token for register/login (prompted if omitted)")
	fmt.Println("  --password PASSWORD    Password (not recommended, use env var or file)")
	fmt.Println("  --password-file PATH   Path to file containing password")
	fmt.Println()
	fmt.Println("Password Priority (highest to lowest):")
	fmt.Println("  1. AUTHGATE_PASSWORD environment variable")
	fmt.Println("  2. --password-file (file path)")
	fmt.Println("  3. --password (command line)")
	fmt.Println("  4. Interactive prompt (fallback)")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  register                Register new user")
	fmt.Println("  login                   Login to server")
	fmt.Println("  logout                  Logout from server")
	fmt.Println("  status                  Show authentication status")
	fmt.Println("  me                      Show current user from the server")
	fmt.Println("  keepalive               Keep the session renewed until interrupted")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  authgate register")
	fmt.Println("  authgate --captcha XXXX.DUMMY.TOKEN.XXXX login")
	fmt.Println("  authgate --server https://auth.example.com status")
}
