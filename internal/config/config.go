// Package config loads server configuration.
//
// Sources, later wins: defaults, YAML file, legacy env names, AUTHGATE_* env vars, overrides (flags).
// A .env file is loaded into the process environment first and never overrides variables already set.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/netip"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix is the prefix of environment variables read by Load
const EnvPrefix = "AUTHGATE_"

// EnvProduction is the app_env value that enables production behaviour
const EnvProduction = "production"

// Config is the server configuration
type Config struct {
	AppEnv                 string        `koanf:"app_env"`
	HTTPAddr               string        `koanf:"http_addr"`
	DatabaseDSN            string        `koanf:"database_dsn"`
	JWTAccessSecret        string        `koanf:"jwt_access_secret"`
	JWTRefreshSecret       string        `koanf:"jwt_refresh_secret"`
	TurnstileSecretKey     string        `koanf:"turnstile_secret_key"`
	TurnstileSecretKeyDev  string        `koanf:"turnstile_secret_key_dev"`
	TurnstileSecretKeyProd string        `koanf:"turnstile_secret_key_prod"`
	TurnstileVerifyURL     string        `koanf:"turnstile_verify_url"`
	CORSOrigins            string        `koanf:"cors_origins"`
	TrustedProxies         string        `koanf:"trusted_proxies"`
	LogLevel               string        `koanf:"log_level"`
	SentryDSN              string        `koanf:"sentry_dsn"`
	PasswordAlgorithm      string        `koanf:"password_algorithm"`
	AccessTokenTTL         time.Duration `koanf:"access_token_ttl"`
	RefreshTokenTTL        time.Duration `koanf:"refresh_token_ttl"`
	CaptchaTimeout         time.Duration `koanf:"captcha_timeout"`
	DBConnectInitialDelay  time.Duration `koanf:"db_connect_initial_delay"`
	DBConnectMaxDelay      time.Duration `koanf:"db_connect_max_delay"`
	RateLimitWindow        time.Duration `koanf:"rate_limit_window"`
	BcryptCost             int           `koanf:"bcrypt_cost"`
	DBConnectAttempts      int           `koanf:"db_connect_attempts"`
	RateLimitRequests      int           `koanf:"rate_limit_requests"`
}

// LoadOptions selects the optional sources
type LoadOptions struct {
	// Overrides are applied last, typically from command line flags
	Overrides map[string]any
	// ConfigFile is an optional YAML file
	ConfigFile string
	// EnvFile is an optional dotenv file; a missing file is not an error
	EnvFile string
}

// Defaults returns the default configuration values
func Defaults() map[string]any {
	return map[string]any{
		"app_env":                  "development",
		"http_addr":                ":5000",
		"database_dsn":             "authgate.db",
		"turnstile_verify_url":     "https://challenges.cloudflare.com/turnstile/v0/siteverify",
		"cors_origins":             "http://localhost:5173",
		"trusted_proxies":          "",
		"log_level":                "info",
		"password_algorithm":       "bcrypt",
		"access_token_ttl":         15 * time.Minute,
		"refresh_token_ttl":        7 * 24 * time.Hour,
		"captcha_timeout":          time.Duration(0),
		"db_connect_initial_delay": 2 * time.Second,
		"db_connect_max_delay":     30 * time.Second,
		"rate_limit_window":        time.Minute,
		"bcrypt_cost":              10,
		"db_connect_attempts":      5,
		"rate_limit_requests":      20,
	}
}

// legacyEnv maps unprefixed variable names to config keys
var legacyEnv = map[string]string{
	"APP_ENV":                   "app_env",
	"JWT_SECRET":                "jwt_access_secret",
	"JWT_REFRESH_SECRET":        "jwt_refresh_secret",
	"TURNSTILE_SECRET_KEY":      "turnstile_secret_key",
	"TURNSTILE_SECRET_KEY_DEV":  "turnstile_secret_key_dev",
	"TURNSTILE_SECRET_KEY_PROD": "turnstile_secret_key_prod",
	"CORS_ORIGINS":              "cors_origins",
	"SENTRY_DSN":                "sentry_dsn",
}

// Load reads configuration from all sources and validates it
func Load(opts LoadOptions) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", opts.EnvFile, err)
		}
	}

	k := koanf.New(".")

	if err := k.Load(mapProvider(Defaults()), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if opts.ConfigFile != "" {
		if err := k.Load(file.Provider(opts.ConfigFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", opts.ConfigFile, err)
		}
	}

	// NODE_ENV уступает APP_ENV, поэтому грузится отдельным слоем раньше
	nodeEnv := env.ProviderWithValue("NODE_ENV", ".", func(key, value string) (string, any) {
		if key != "NODE_ENV" {
			return "", nil
		}
		return "app_env", value
	})
	if err := k.Load(nodeEnv, nil); err != nil {
		return nil, fmt.Errorf("load NODE_ENV: %w", err)
	}

	legacy := env.ProviderWithValue("", ".", func(key, value string) (string, any) {
		if key == "PORT" && value != "" {
			return "http_addr", ":" + value
		}
		return legacyEnv[key], value
	})
	if err := k.Load(legacy, nil); err != nil {
		return nil, fmt.Errorf("load legacy env: %w", err)
	}

	// AUTHGATE_JWT_ACCESS_SECRET -> jwt_access_secret
	prefixed := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	})
	if err := k.Load(prefixed, nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	if len(opts.Overrides) > 0 {
		if err := k.Load(mapProvider(opts.Overrides), nil); err != nil {
			return nil, fmt.Errorf("load overrides: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the values that have no safe default
func (c *Config) Validate() error {
	var errs []error

	if c.JWTAccessSecret == "" {
		errs = append(errs, errors.New("jwt_access_secret is required"))
	}
	if c.JWTRefreshSecret == "" {
		errs = append(errs, errors.New("jwt_refresh_secret is required"))
	}
	if c.JWTAccessSecret != "" && c.JWTAccessSecret == c.JWTRefreshSecret {
		errs = append(errs, errors.New("jwt_access_secret and jwt_refresh_secret must differ"))
	}
	if c.HTTPAddr == "" {
		errs = append(errs, errors.New("http_addr is required"))
	}
	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("database_dsn is required"))
	}
	if c.DBConnectAttempts < 1 {
		errs = append(errs, errors.New("db_connect_attempts must be at least 1"))
	}
	if c.DBConnectInitialDelay <= 0 {
		errs = append(errs, errors.New("db_connect_initial_delay must be positive"))
	}
	if c.RateLimitRequests < 0 {
		errs = append(errs, errors.New("rate_limit_requests must not be negative"))
	}
	if c.RateLimitRequests > 0 && c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("rate_limit_window must be positive"))
	}
	if c.CaptchaTimeout < 0 {
		errs = append(errs, errors.New("captcha_timeout must not be negative"))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if _, err := parsePrefixes(c.TrustedProxies); err != nil {
		errs = append(errs, err)
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	return nil
}

// IsProduction reports whether app_env is production
func (c *Config) IsProduction() bool {
	return c.AppEnv == EnvProduction
}

// CaptchaSecret picks the Turnstile secret for the current environment,
// falling back to turnstile_secret_key
func (c *Config) CaptchaSecret() string {
	specific := c.TurnstileSecretKeyDev
	if c.IsProduction() {
		specific = c.TurnstileSecretKeyProd
	}
	if specific != "" {
		return specific
	}
	return c.TurnstileSecretKey
}

// AllowedOrigins returns the comma separated cors_origins as a list
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// TrustedProxyPrefixes returns trusted_proxies as network prefixes.
// A bare address becomes a single-host prefix.
func (c *Config) TrustedProxyPrefixes() []netip.Prefix {
	prefixes, _ := parsePrefixes(c.TrustedProxies)
	return prefixes
}

// SlogLevel returns log_level as slog.Level
func (c *Config) SlogLevel() slog.Level {
	level, _ := parseLevel(c.LogLevel)
	return level
}

// IsPostgres reports whether database_dsn points to PostgreSQL
func (c *Config) IsPostgres() bool {
	return strings.HasPrefix(c.DatabaseDSN, "postgres://") || strings.HasPrefix(c.DatabaseDSN, "postgresql://")
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log_level %q", s)
	}
	return level, nil
}

func parsePrefixes(s string) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if strings.Contains(item, "/") {
			p, err := netip.ParsePrefix(item)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted_proxies entry %q", item)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(item)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted_proxies entry %q", item)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// mapProvider is a koanf provider backed by a map
type mapProvider map[string]any

// ReadBytes is not supported by the map provider
func (m mapProvider) ReadBytes() ([]byte, error) {
	return nil, errors.New("config: ReadBytes not supported by map provider")
}

// Read returns the configuration map
func (m mapProvider) Read() (map[string]any, error) {
	return m, nil
}
