// Package cmd defines and implements the CLI commands for the aur-crawler executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/aur-crawler/internal/config"
	"github.com/JakeFAU/aur-crawler/internal/logging"
	"github.com/JakeFAU/aur-crawler/internal/metrics"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App carries what every subcommand needs: the loaded configuration and a logger.
type App struct {
	Config      config.Config
	Logger      *zap.Logger
	MetricsAddr string
}

type rootOptions struct {
	cfgFile     string
	metricsAddr string
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "aur-crawler",
		Short: "Crawls the Arch User Repository into checkpoint files and storage backends.",
		Long: `aur-crawler walks the AUR package listing, visits every package detail page
and its paginated comment thread, and stores the assembled records either as
BSON checkpoint files or in Redis, Postgres and Elasticsearch.`,
		SilenceUsage: true,

		// Runs before every subcommand's RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			metrics.Init()

			addr := cfg.Metrics.Addr
			if cmd.Flags().Changed("metrics-addr") {
				addr = opts.metricsAddr
			}
			app := &App{Config: cfg, Logger: logger, MetricsAddr: addr}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, app))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if app, err := resolveApp(cmd.Context()); err == nil {
				_ = app.Logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&opts.cfgFile, "config", "", "config file (YAML)")
	cmd.PersistentFlags().StringVar(&opts.metricsAddr, "metrics-addr", "",
		"serve /healthz, /readyz and /metrics on this address while the command runs")

	cmd.AddCommand(newScrapeToFSCmd())
	cmd.AddCommand(newScrapeToDBCmd())
	cmd.AddCommand(newLoadFromFSCmd())
	cmd.AddCommand(newHealthCmd())

	return cmd
}

func resolveApp(ctx context.Context) (*App, error) {
	app, ok := ctx.Value(appKey).(*App)
	if !ok || app == nil {
		return nil, errors.New("application not initialized")
	}
	return app, nil
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "aur-crawler: %v\n", err)
		stop()
		os.Exit(1)
	}
}
