// Package main provides the gami command line.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ryanm101/gami/internal/addons"
	"github.com/ryanm101/gami/internal/catalog"
	"github.com/ryanm101/gami/internal/config"
	"github.com/ryanm101/gami/internal/fetch"
	"github.com/ryanm101/gami/internal/logging"
	"github.com/ryanm101/gami/internal/tracing"
)

var (
	cfg         *config.Config
	metricsAddr string

	shutdownTracing = func(context.Context) error { return nil }
	stopMetrics     = func(context.Context) error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "gami",
	Short: "Game library aggregator",
	Long: `gami merges the game libraries reported by its addons into a local
catalog and enriches new entries with remote metadata.`,
	SilenceErrors:      true,
	SilenceUsage:       true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&outputCfg.JSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&outputCfg.Quiet, "quiet", "q", false, "suppress non-error output")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while the command runs")
}

func main() {
	if err := Execute(); err != nil {
		PrintError("Error: %v\n", err)
		os.Exit(1)
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.ExecuteContext(context.Background())
}

func setup(cmd *cobra.Command, _ []string) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		PrintError("Warning: failed to load config: %v\n", err)
		cfg = config.DefaultConfig()
	}
	if metricsAddr == "" {
		metricsAddr = cfg.MetricsAddr
	}

	logging.Setup(cfg.Logging)

	shutdown, err := tracing.Setup(cmd.Context(), tracing.ConfigFromEndpoint(cfg.Tracing.Endpoint))
	if err != nil {
		logging.Get().Error("Failed to setup tracing", "error", err)
	} else {
		shutdownTracing = shutdown
	}

	if metricsAddr != "" {
		stopMetrics = serveMetrics(metricsAddr)
	}
	return nil
}

func teardown(cmd *cobra.Command, _ []string) error {
	if err := stopMetrics(cmd.Context()); err != nil {
		logging.Get().Warn("Failed to stop metrics server", "error", err)
	}
	if err := shutdownTracing(cmd.Context()); err != nil {
		logging.Get().Warn("Failed to shutdown tracing", "error", err)
	}
	return nil
}

// app holds what most commands need: the catalog and the loaded addons.
type app struct {
	db   *catalog.DB
	host *addons.Host
}

func openDB(ctx context.Context) (*catalog.DB, error) {
	path := cfg.GetDBPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return catalog.Open(ctx, path)
}

func openHost(ctx context.Context) (*addons.Host, error) {
	engine := fetch.New(
		fetch.WithWorkers(cfg.GetFetchWorkers()),
		fetch.WithTimeout(cfg.Fetch.Timeout),
	)
	host := addons.NewHost(
		addons.WithAddonsDir(cfg.GetAddonsDir()),
		addons.WithFetchEngine(engine),
		addons.WithCallTimeout(cfg.Addons.CallTimeout),
		addons.WithScanTimeout(cfg.Addons.ScanTimeout),
	)
	if err := host.Init(ctx); err != nil {
		host.Shutdown()
		return nil, fmt.Errorf("load addons: %w", err)
	}
	return host, nil
}

func openApp(ctx context.Context) (*app, error) {
	db, err := openDB(ctx)
	if err != nil {
		return nil, err
	}
	host, err := openHost(ctx)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &app{db: db, host: host}, nil
}

func (a *app) Close() {
	a.host.Shutdown()
	_ = a.db.Close()
}
