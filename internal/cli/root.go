// Package cli provides the command-line interface for the options analytics tool.
package cli

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"options-analytics/internal/config"
	apperrors "options-analytics/internal/errors"
	"options-analytics/internal/logging"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-06-01"
)

// NewRootCmd creates the root command for the CLI. Fields left unset on app
// are filled in from the configuration before any command runs.
func NewRootCmd(app *App) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "options-analytics",
		Short: "Option Greeks, payoffs and market data analytics",
		Long: `options-analytics prices single option contracts with the Black-Scholes-Merton
model and computes their Greeks and position payoffs.

Market data (last prices, price histories and option chains) comes from
Zerodha Kite Connect, Polygon.io and a local SQLite store, tried in the
priority order set in config.toml.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if app.Config == nil {
				dir, _ := cmd.Flags().GetString("config")
				cfg, err := config.Load(dir)
				if err != nil {
					return err
				}
				app.Config = cfg
				app.Logger = logging.NewLoggerWithConfig(logConfig(cfg))
			}

			// Handle debug flag
			if debug, _ := cmd.Flags().GetBool("debug"); debug {
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, id := logging.WithRequestID(logging.WithLogger(ctx, app.Logger))
			cmd.SetContext(ctx)
			logger := logging.FromContext(ctx)
			logger.Debug().Str("command", cmd.CommandPath()).Str("request_id", id).Msg("Running command")

			if needsData(cmd) {
				return app.Init(ctx)
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return app.Close()
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/options-analytics)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addCoreCommands(rootCmd, app)
	addMarketDataCommands(rootCmd, app)
	addAnalyticsCommands(rootCmd, app)
	addHelpCommands(rootCmd, app)

	return rootCmd
}

// needsData reports whether cmd reads market data or the store.
func needsData(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations["data"] == "true" {
			return true
		}
	}
	return false
}

var dataCommand = map[string]string{"data": "true"}

func logConfig(cfg *config.Config) logging.LogConfig {
	return logging.LogConfig{
		Level:      cfg.Logging.Level,
		Console:    true,
		File:       cfg.Logging.File,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
	}
}

// addCoreCommands adds core utility commands.
func addCoreCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			}
			output.Printf("options-analytics v%s\n", Version)
			output.Dim("Build date: %s", BuildDate)
			return nil
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
		Long:  "View and validate application configuration.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			redacted := app.Config.Redacted()
			if output.IsJSON() {
				return output.JSON(redacted)
			}
			showConfig(output, &redacted)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			dir := app.Config.Dir()
			if dir == "" {
				dir = config.DefaultConfigDir()
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": dir})
			}
			output.Println(dir)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration files",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.Config.Validate(); err != nil {
				return apperrors.Wrap(err, "configuration validation failed")
			}
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(map[string]bool{"valid": true})
			}
			output.Success("✓ Configuration is valid")
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Analytics")
	output.Printf("  Risk-free rate:   %.4f\n", cfg.Analytics.RiskFreeRate)
	output.Printf("  Contract size:    %d\n", cfg.Analytics.ContractSize)
	output.Printf("  Workers:          %d\n", cfg.Analytics.Workers)
	output.Println()

	output.Bold("Providers")
	output.Printf("  Priority:         %s\n", strings.Join(cfg.Providers.Priority, ", "))
	output.Printf("  Timeout:          %s\n", cfg.Providers.Timeout)
	output.Printf("  Cache to store:   %v\n", cfg.Providers.Cache)
	output.Printf("  Rate limit:       %.1f/s (burst %d)\n", cfg.Providers.RateLimit, cfg.Providers.Burst)
	output.Printf("  Retry attempts:   %d\n", cfg.Providers.Retry.MaxAttempts)
	output.Printf("  Circuit breaker:  %d failures, %s cool-down\n", cfg.Providers.Circuit.FailureThreshold, cfg.Providers.Circuit.Timeout)
	output.Println()

	output.Bold("Store")
	output.Printf("  Path:             %s\n", cfg.Store.Path)
	maxAge := "any"
	if cfg.Store.MaxAge > 0 {
		maxAge = cfg.Store.MaxAge.String()
	}
	output.Printf("  Max age:          %s\n", maxAge)
	output.Println()

	output.Bold("Credentials")
	output.Printf("  Kite API key:     %s\n", orNone(cfg.Credentials.Kite.APIKey))
	output.Printf("  Kite token:       %s\n", orNone(cfg.Credentials.Kite.AccessToken))
	output.Printf("  Polygon API key:  %s\n", orNone(cfg.Credentials.Polygon.APIKey))
}

func orNone(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

