// Package cli provides the command-line interface for the stockwatch service.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"stockwatch/internal/config"
	"stockwatch/internal/logging"
	"stockwatch/internal/security"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2026-10-01"
)

// NewRootCmd creates the root command for the CLI.
func NewRootCmd() *cobra.Command {
	app := &App{}

	rootCmd := &cobra.Command{
		Use:   "stockwatch",
		Short: "Stock watchlist backend",
		Long: `stockwatch serves a stock-watching web client.

It keeps a periodically refreshed price cache for a fixed stock universe,
stores per-user favorites with live prices, proxies price history and news,
and summarizes news through a guarded language model.

Use 'stockwatch serve' to run the HTTP API and the explore refresher.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("config")
			cfg, err := config.Load(dir)
			if err != nil {
				return err
			}
			*app = *newApp(cfg, loggerFromConfig(cfg))

			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			app.Close()
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ./configs or $STOCKWATCH_CONFIG_DIR)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newServeCmd(app))
	rootCmd.AddCommand(newRefreshCmd(app))
	rootCmd.AddCommand(newExploreCmd(app))
	rootCmd.AddCommand(newFavoritesCmd(app))
	rootCmd.AddCommand(newNewsCmd(app))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// version needs no configuration
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		PersistentPostRun: func(cmd *cobra.Command, args []string) {},
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("stockwatch v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
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
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			dir, _ := cmd.Flags().GetString("config")
			if dir == "" {
				dir = config.DefaultConfigDir()
			}
			if output.IsJSON() {
				output.JSON(map[string]string{"path": dir})
			} else {
				output.Println(dir)
			}
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	set := func(v string) string {
		if v == "" {
			return output.DimText("not set")
		}
		return security.MaskCredential(v)
	}

	output.Bold("Server")
	output.Printf("  Port:            %s\n", cfg.Server.Port)
	output.Printf("  Allowed Origins: %v\n", cfg.Server.AllowedOrigins)
	output.Printf("  Default User:    %s\n", cfg.Server.DefaultUser)
	output.Println()

	output.Bold("Storage")
	output.Printf("  Driver:          %s\n", cfg.Database.Driver)
	output.Printf("  Redis:           %s\n", set(cfg.Redis.URL))
	output.Println()

	output.Bold("Explore")
	output.Printf("  Universe File:   %s\n", cfg.Explore.UniverseFile)
	output.Printf("  Interval:        %s\n", cfg.Explore.Interval)
	output.Printf("  Sample Cap:      %d\n", cfg.Explore.SampleCap)
	output.Printf("  Sort:            %s\n", cfg.Explore.Sort)
	output.Println()

	output.Bold("Providers")
	output.Printf("  Market Data:     %s\n", cfg.Market.BaseURL)
	output.Printf("  Finnhub Key:     %s\n", set(cfg.Credentials.Finnhub.APIKey))
	provider := cfg.LLM.Provider
	if provider == "" {
		provider = output.DimText("disabled")
	}
	output.Printf("  LLM Provider:    %s\n", provider)
	output.Printf("  LLM Key:         %s\n", set(cfg.LLMAPIKey()))
}
