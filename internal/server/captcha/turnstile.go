// Package captcha verifies Cloudflare Turnstile tokens.
package captcha

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultVerifyURL is the Turnstile siteverify endpoint
const DefaultVerifyURL = "https://challenges.cloudflare.com/turnstile/v0/siteverify"

const maxResponseSize = 64 << 10

//go:generate moq -out verifier_mock.go . Verifier

// Verifier checks a captcha token with the provider.
// Verify never returns an error: transport failures are reported as an unsuccessful Result.
type Verifier interface {
	Verify(ctx context.Context, token, remoteIP string) Result
}

// Result is the outcome of a verification.
// Details holds the provider response (or the transport error) and is returned to the caller as is.
type Result struct {
	Details map[string]any
	Success bool
}

// Turnstile is a Verifier backed by the Turnstile siteverify API
type Turnstile struct {
	httpClient *http.Client
	logger     *slog.Logger
	secret     string
	verifyURL  string
}

// Compile-time check that Turnstile implements Verifier
var _ Verifier = (*Turnstile)(nil)

// NewTurnstile creates a verifier. An empty verifyURL selects DefaultVerifyURL.
// A zero timeout leaves the request bounded only by ctx.
func NewTurnstile(secret, verifyURL string, timeout time.Duration, logger *slog.Logger) *Turnstile {
	if verifyURL == "" {
		verifyURL = DefaultVerifyURL
	}

	return &Turnstile{
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
		secret:     secret,
		verifyURL:  verifyURL,
	}
}

// Verify posts the token to the provider and reports whether it was accepted.
func (t *Turnstile) Verify(ctx context.Context, token, remoteIP string) Result {
	details, err := t.siteverify(ctx, token, remoteIP)
	if err != nil {
		t.logger.WarnContext(ctx, "turnstile verification error", slog.Any("error", err))
		return Result{
			Success: false,
			Details: map[string]any{"success": false, "error": err.Error()},
		}
	}

	success, _ := details["success"].(bool)
	if !success {
		t.logger.InfoContext(ctx, "turnstile verification rejected",
			slog.Any("error_codes", details["error-codes"]))
	}

	return Result{Success: success, Details: details}
}

func (t *Turnstile) siteverify(ctx context.Context, token, remoteIP string) (map[string]any, error) {
	form := url.Values{}
	form.Set("secret", t.secret)
	form.Set("response", token)
	if remoteIP != "" {
		form.Set("remoteip", remoteIP)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build siteverify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("siteverify request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read siteverify response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("siteverify failed with status %d", resp.StatusCode)
	}

	var details map[string]any
	if err := json.Unmarshal(body, &details); err != nil {
		return nil, fmt.Errorf("decode siteverify response: %w", err)
	}
	if details == nil {
		return nil, fmt.Errorf("siteverify response is empty")
	}

	return details, nil
}
