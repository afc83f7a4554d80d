package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/authgate/internal/config"
	"github.com/iudanet/authgate/internal/models"
	"github.com/iudanet/authgate/internal/server/captcha"
	"github.com/iudanet/authgate/internal/server/handlers"
	"github.com/iudanet/authgate/internal/server/jwt"
	"github.com/iudanet/authgate/internal/server/storage"
	"github.com/iudanet/authgate/internal/server/storage/sqlite"
	"github.com/iudanet/authgate/pkg/api"
)

const (
	testAccessSecret  = "access-secret"
	testRefreshSecret = "refresh-secret"
	validCaptcha      = "valid"
)

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeVerifier принимает только validCaptcha
type fakeVerifier struct {
	calls atomic.Int32
}

func (f *fakeVerifier) Verify(_ context.Context, token, _ string) captcha.Result {
	f.calls.Add(1)
	if token == validCaptcha {
		return captcha.Result{Success: true}
	}
	return captcha.Result{Details: map[string]any{"success": false, "error-codes": []any{"invalid-input-response"}}}
}

// countingStorage считает обращения к хранилищу
type countingStorage struct {
	storage.UserStorage
	calls atomic.Int32
}

func (c *countingStorage) CreateUser(ctx context.Context, user *models.User) error {
	c.calls.Add(1)
	return c.UserStorage.CreateUser(ctx, user)
}

func (c *countingStorage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	c.calls.Add(1)
	return c.UserStorage.GetUserByEmail(ctx, email)
}

func testConfig() *config.Config {
	return &config.Config{
		AppEnv:                "development",
		HTTPAddr:              "127.0.0.1:0",
		DatabaseDSN:           ":memory:",
		JWTAccessSecret:       testAccessSecret,
		JWTRefreshSecret:      testRefreshSecret,
		PasswordAlgorithm:     "bcrypt",
		BcryptCost:            4,
		AccessTokenTTL:        15 * time.Minute,
		RefreshTokenTTL:       7 * 24 * time.Hour,
		CORSOrigins:           "http://localhost:5173",
		LogLevel:              "error",
		DBConnectAttempts:     1,
		DBConnectInitialDelay: time.Millisecond,
		DBConnectMaxDelay:     5 * time.Millisecond,
	}
}

type testEnv struct {
	server   *Server
	http     *httptest.Server
	client   *http.Client
	verifier *fakeVerifier
	store    *countingStorage
}

func setupTestEnv(t *testing.T, cfg *config.Config) *testEnv {
	t.Helper()

	env := &testEnv{verifier: &fakeVerifier{}}

	open := func(ctx context.Context, dsn string) (storage.UserStorage, error) {
		st, err := sqlite.New(ctx, dsn)
		if err != nil {
			return nil, err
		}
		env.store = &countingStorage{UserStorage: st}
		return env.store, nil
	}

	srv, err := New(cfg, setupTestLogger(), "test", WithCaptchaVerifier(env.verifier), WithOpenFunc(open))
	require.NoError(t, err)
	env.server = srv

	env.http = httptest.NewServer(srv.Handler())

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	env.client = &http.Client{Jar: jar}

	t.Cleanup(func() {
		env.http.Close()
		srv.Close()
	})

	return env
}

func (e *testEnv) connect(t *testing.T) {
	t.Helper()
	require.NoError(t, e.server.Connect(context.Background()))
}

func (e *testEnv) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	resp, err := e.client.Post(e.http.URL+path, "application/json", &buf)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func refreshCookieOf(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == api.RefreshCookieName {
			return c
		}
	}
	return nil
}

func TestServer_ScenarioA_Register(t *testing.T) {
	env := setupTestEnv(t, testConfig())
	env.connect(t)

	resp := env.post(t, "/api/register", api.RegisterRequest{
		Email:        "a@x.com",
		Password:     "P1!",
		CaptchaToken: validCaptcha,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cookie := refreshCookieOf(resp)
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, "/", cookie.Path)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)

	body := decodeBody[api.AuthResponse](t, resp)
	assert.Equal(t, "Registration successful", body.Message)
	require.NotNil(t, body.User)
	assert.Equal(t, "a@x.com", body.User.Email)

	tokens, err := jwt.NewService(testAccessSecret, testRefreshSecret, 0, 0)
	require.NoError(t, err)
	claims, err := tokens.VerifyAccessToken(body.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, body.User.ID, claims.UserID)
}

func TestServer_LongPassword(t *testing.T) {
	env := setupTestEnv(t, testConfig())
	env.connect(t)

	password := strings.Repeat("x", 100)

	resp := env.post(t, "/api/register", api.RegisterRequest{Email: "long@x.com", Password: password, CaptchaToken: validCaptcha})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotNil(t, refreshCookieOf(resp))

	resp = env.post(t, "/api/login", api.LoginRequest{Email: "long@x.com", Password: password, CaptchaToken: validCaptcha})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_ScenarioB_WrongPassword(t *testing.T) {
	env := setupTestEnv(t, testConfig())
	env.connect(t)

	resp := env.post(t, "/api/register", api.RegisterRequest{Email: "a@x.com", Password: "P1!", CaptchaToken: validCaptcha})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.post(t, "/api/login", api.LoginRequest{Email: "a@x.com", Password: "wrong", CaptchaToken: validCaptcha})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid credentials", decodeBody[api.ErrorResponse](t, resp).Message)

	resp = env.post(t, "/api/login", api.LoginRequest{Email: "nobody@x.com", Password: "P1!", CaptchaToken: validCaptcha})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "Invalid credentials", decodeBody[api.ErrorResponse](t, resp).Message)
}

func TestServer_ScenarioC_RefreshWithoutCookie(t *testing.T) {
	env := setupTestEnv(t, testConfig())
	env.connect(t)

	resp := env.post(t, "/api/refresh", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "No refresh token", decodeBody[api.ErrorResponse](t, resp).Message)
}

func TestServer_ScenarioD_RotatedAwayToken(t *testing.T) {
	env := setupTestEnv(t, testConfig())
	env.connect(t)

	resp := env.post(t, "/api/register", api.RegisterRequest{Email: "a@x.com", Password: "P1!", CaptchaToken: validCaptcha})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	old := refreshCookieOf(resp)
	require.NotNil(t, old)

	// первый refresh через jar ротирует токен
	resp = env.post(t, "/api/refresh", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rotated := refreshCookieOf(resp)
	require.NotNil(t, rotated)
	assert.NotEqual(t, old.Value, rotated.Value)

	// старый токен с валидной подписью больше не принимается
	req, err := http.NewRequest(http.MethodPost, env.http.URL+"/api/refresh", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: api.RefreshCookieName, Value: old.Value})

	stale, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer stale.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, stale.StatusCode)
	assert.Equal(t, "Refresh token not recognized", decodeBody[api.ErrorResponse](t, stale).Message)
}

func TestServer_ScenarioE_EmptyCaptcha(t *testing.T) {
	env := setupTestEnv(t, testConfig())
	env.connect(t)

	resp := env.post(t, "/api/register", api.RegisterRequest{Email: "a@x.com", Password: "P1!"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.post(t, "/api/login", api.LoginRequest{Email: "a@x.com", Password: "P1!"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	assert.Zero(t, env.store.calls.Load())
	assert.Zero(t, env.verifier.calls.Load())
}

func TestServer_CaptchaRejected(t *testing.T) {
	env := setupTestEnv(t, testConfig())
	env.connect(t)

	resp := env.post(t, "/api/register", api.RegisterRequest{Email: "a@x.com", Password: "P1!", CaptchaToken: "bogus"})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeBody[api.ErrorResponse](t, resp)
	assert.Equal(t, "Captcha verification failed", body.Message)
	assert.Equal(t, false, body.Details["success"])
	assert.Zero(t, env.store.calls.Load())
}

func TestServer_FullSession(t *testing.T) {
	env := setupTestEnv(t, testConfig())
	env.connect(t)

	resp := env.post(t, "/api/register", api.RegisterRequest{Email: "a@x.com", Password: "P1!", CaptchaToken: validCaptcha})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.post(t, "/api/register", api.RegisterRequest{Email: "a@x.com", Password: "other", CaptchaToken: validCaptcha})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "User already exists", decodeBody[api.ErrorResponse](t, resp).Message)

	resp = env.post(t, "/api/login", api.LoginRequest{Email: "a@x.com", Password: "P1!", CaptchaToken: validCaptcha})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	login := decodeBody[api.AuthResponse](t, resp)
	assert.Equal(t, "Login successful", login.Message)

	req, err := http.NewRequest(http.MethodGet, env.http.URL+"/api/me", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+login.AccessToken)
	meResp, err := env.client.Do(req)
	require.NoError(t, err)
	defer meResp.Body.Close()
	require.Equal(t, http.StatusOK, meResp.StatusCode)
	me := decodeBody[api.MeResponse](t, meResp)
	assert.Equal(t, login.User.ID, me.User.ID)

	resp = env.post(t, "/api/refresh", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	refreshed := decodeBody[api.RefreshResponse](t, resp)
	assert.Equal(t, login.User.ID, refreshed.User.ID)

	resp = env.post(t, "/api/logout", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Logged out", decodeBody[api.MessageResponse](t, resp).Message)
	cleared := refreshCookieOf(resp)
	require.NotNil(t, cleared)
	assert.Less(t, cleared.MaxAge, 0)

	// cookie удалена из jar
	resp = env.post(t, "/api/refresh", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// logout идемпотентен
	resp = env.post(t, "/api/logout", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_MeRequiresBearer(t *testing.T) {
	env := setupTestEnv(t, testConfig())
	env.connect(t)

	resp, err := env.client.Get(env.http.URL + "/api/me")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_DatabaseNotConnected(t *testing.T) {
	env := setupTestEnv(t, testConfig())

	resp := env.post(t, "/api/login", api.LoginRequest{Email: "a@x.com", Password: "P1!", CaptchaToken: validCaptcha})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, handlers.MessageDatabaseNotReady, decodeBody[api.ErrorResponse](t, resp).Message)
	assert.Zero(t, env.verifier.calls.Load())

	health, err := env.client.Get(env.http.URL + "/health")
	require.NoError(t, err)
	defer health.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, health.StatusCode)

	env.connect(t)
	assert.True(t, env.server.Ready())

	health2, err := env.client.Get(env.http.URL + "/health")
	require.NoError(t, err)
	defer health2.Body.Close()
	assert.Equal(t, http.StatusOK, health2.StatusCode)
}

func TestServer_MalformedBody(t *testing.T) {
	env := setupTestEnv(t, testConfig())
	env.connect(t)

	resp, err := env.client.Post(env.http.URL+"/api/login", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	env := setupTestEnv(t, testConfig())
	env.connect(t)

	resp, err := env.client.Get(env.http.URL + "/api/login")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestServer_RateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitRequests = 2
	cfg.RateLimitWindow = time.Minute

	env := setupTestEnv(t, cfg)
	env.connect(t)

	for range 2 {
		resp := env.post(t, "/api/login", api.LoginRequest{Email: "a@x.com", Password: "P1!", CaptchaToken: validCaptcha})
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	}

	resp := env.post(t, "/api/login", api.LoginRequest{Email: "a@x.com", Password: "P1!", CaptchaToken: validCaptcha})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))

	// refresh не ограничивается
	resp = env.post(t, "/api/refresh", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestServer_RateLimitIgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimitRequests = 1
	cfg.RateLimitWindow = time.Minute

	env := setupTestEnv(t, cfg)
	env.connect(t)

	login := func(forwarded string) int {
		var buf bytes.Buffer
		require.NoError(t, json.NewEncoder(&buf).Encode(api.LoginRequest{Email: "a@x.com", Password: "P1!", CaptchaToken: validCaptcha}))
		req, err := http.NewRequest(http.MethodPost, env.http.URL+"/api/login", &buf)
		require.NoError(t, err)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Forwarded-For", forwarded)
		resp, err := env.client.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusBadRequest, login("198.51.100.1"))
	assert.Equal(t, http.StatusTooManyRequests, login("198.51.100.2"))
}

func TestServer_CORSPreflight(t *testing.T) {
	env := setupTestEnv(t, testConfig())

	req, err := http.NewRequest(http.MethodOptions, env.http.URL+"/api/login", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)

	resp, err := env.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
}

func TestServer_Metrics(t *testing.T) {
	env := setupTestEnv(t, testConfig())
	env.connect(t)

	env.post(t, "/api/refresh", nil)

	resp, err := env.client.Get(env.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(data), `authgate_http_requests_total{method="POST",route="/api/refresh",status="401"} 1`)
	assert.Contains(t, string(data), "authgate_auth_operations_total")
}

func TestServer_SecureCookieInProduction(t *testing.T) {
	cfg := testConfig()
	cfg.AppEnv = config.EnvProduction

	env := setupTestEnv(t, cfg)
	env.connect(t)

	resp := env.post(t, "/api/register", api.RegisterRequest{Email: "a@x.com", Password: "P1!", CaptchaToken: validCaptcha})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cookie := refreshCookieOf(resp)
	require.NotNil(t, cookie)
	assert.True(t, cookie.Secure)
}

func TestNew_InvalidHasher(t *testing.T) {
	cfg := testConfig()
	cfg.PasswordAlgorithm = "md5"

	_, err := New(cfg, setupTestLogger(), "test", WithCaptchaVerifier(&fakeVerifier{}))
	assert.Error(t, err)
}

func TestServe_ShutdownOnCancel(t *testing.T) {
	srv, err := New(testConfig(), setupTestLogger(), "test", WithCaptchaVerifier(&fakeVerifier{}))
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	require.Eventually(t, srv.Ready, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServe_ConnectExhausted(t *testing.T) {
	cfg := testConfig()
	cfg.DBConnectAttempts = 2

	failing := func(context.Context, string) (storage.UserStorage, error) {
		return nil, errors.New("connection refused")
	}

	srv, err := New(cfg, setupTestLogger(), "test", WithCaptchaVerifier(&fakeVerifier{}), WithOpenFunc(failing))
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- srv.Serve(context.Background(), ln) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")
		assert.False(t, srv.Ready())
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
