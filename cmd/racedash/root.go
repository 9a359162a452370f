package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sethvargo/go-envconfig"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"racedash/internal/backend"
	"racedash/internal/config"
	"racedash/pkg/logging/logging"
)

var (
	// Global flags.
	backendURL string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "racedash",
	Short: "Chart loading and caching for the race history dashboard",
	Long: `racedash fetches chart data for an uploaded race history from the
analytics backend, caches it per dashboard session and loads charts lazily as
they scroll into view.

Configuration comes from the environment (BACKEND_URL, CACHE_BACKEND, ...);
flags override it.

Examples:
  # Run the session API
  racedash serve --port 8080

  # Fetch two charts for a CSV export
  racedash fetch --csv races.csv wpm-distribution top-texts

  # Benchmark a full dashboard load
  racedash bench --csv races.csv --output report.md`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&backendURL, "backend-url", "", "chart backend base URL (overrides BACKEND_URL)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (overrides LOG_LEVEL)")
}

// loadConfig reads the environment with flag values layered on top.
func loadConfig(ctx context.Context, overrides map[string]string) (*config.Config, error) {
	if overrides == nil {
		overrides = make(map[string]string)
	}
	if backendURL != "" {
		overrides["BACKEND_URL"] = backendURL
	}
	if logLevel != "" {
		overrides["LOG_LEVEL"] = logLevel
	}
	return config.LoadWith(ctx, envconfig.MultiLookuper(
		envconfig.MapLookuper(overrides),
		envconfig.OsLookuper(),
	))
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(logging.Options{Env: cfg.Environment, Level: cfg.LogLevel})
}

func newBackend(cfg *config.Config, logger *zap.Logger) (*backend.Client, error) {
	client, err := backend.NewClient(backend.Config{
		BaseURL: cfg.BackendURL,
		Timeout: cfg.BackendTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating backend client: %w", err)
	}
	return client, nil
}

func readDataset(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("--csv is required")
	}
	var (
		b   []byte
		err error
	)
	if path == "-" {
		b, err = io.ReadAll(os.Stdin)
	} else {
		b, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("reading dataset: %w", err)
	}
	if len(b) == 0 {
		return "", fmt.Errorf("dataset %q is empty", path)
	}
	return string(b), nil
}
