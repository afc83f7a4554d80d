package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/iudanet/authgate/internal/config"
	"github.com/iudanet/authgate/internal/server"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Parse flags
	showVersion := flag.Bool("version", false, "Show version information")
	configFile := flag.String("config", "", "Path to YAML config file")
	envFile := flag.String("env-file", ".env", "Path to .env file")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	flag.Parse()

	// Show version and exit if requested
	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	overrides := map[string]any{}
	if *addr != "" {
		overrides["http_addr"] = *addr
	}

	cfg, err := config.Load(config.LoadOptions{
		ConfigFile: *configFile,
		EnvFile:    *envFile,
		Overrides:  overrides,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := server.InitSentry(cfg.SentryDSN, cfg.AppEnv, Version); err != nil {
		logger.Warn("Failed to initialize Sentry", slog.Any("error", err))
	}

	os.Exit(run(cfg, logger))
}

func run(cfg *config.Config, logger *slog.Logger) int {
	defer server.FlushSentry()

	srv, err := server.New(cfg, logger, Version)
	if err != nil {
		logger.Error("Failed to create server", slog.Any("error", err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Authgate server starting", "version", Version, "commit", GitCommit)

	if err := srv.Run(ctx); err != nil {
		logger.Error("Server exited with error", slog.Any("error", err))
		return 1
	}

	return 0
}

// newLogger JSON в production, текст в остальных окружениях
func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

func printVersion() {
	fmt.Printf("Authgate Server\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
