// Package cli provides the command-line interface for the paper ledger.
package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"paper-ledger/internal/config"
	"paper-ledger/internal/logging"
	"paper-ledger/internal/security"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2024-03-01"
)

// NewRootCmd creates the root command for the CLI. logger is used until
// the configuration is loaded and replaced by the configured logger.
func NewRootCmd(logger zerolog.Logger) *cobra.Command {
	app := &App{Logger: logger}

	rootCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Paper Ledger - simulated trading with learning analytics",
		Long: `Paper Ledger records simulated trades against live or replayed quotes,
aggregates them into trading sessions and analyzes every closed trade for
timing, risk and missed opportunities.

Use 'ledger <command> --help' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			configDir, _ := cmd.Flags().GetString("config")
			if configDir == "" {
				configDir = config.DefaultConfigDir()
			}
			cfg, err := config.Load(configDir)
			if err != nil {
				return err
			}
			app.Config = cfg
			app.ConfigDir = configDir

			app.Logger = logging.NewLoggerWithConfig(logging.LogConfig{
				Level:      cfg.Logging.Level,
				Console:    cfg.Logging.Console,
				File:       cfg.Logging.File,
				FilePath:   cfg.Logging.FilePath,
				MaxSize:    cfg.Logging.MaxSize,
				MaxBackups: cfg.Logging.MaxBackups,
				MaxAge:     cfg.Logging.MaxAge,
				Out:        cmd.ErrOrStderr(),
			})

			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/paper-ledger)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	addCoreCommands(rootCmd, app)
	addSessionCommands(rootCmd, app)
	addTradeCommands(rootCmd, app)
	addTickCommands(rootCmd, app)
	addAnalyticsCommands(rootCmd, app)
	addGateCommands(rootCmd, app)
	addUserCommands(rootCmd, app)
	addServeCommand(rootCmd, app)
	addUtilityCommands(rootCmd, app)
	addHelpCommands(rootCmd)

	return rootCmd
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
			output.Printf("Paper Ledger v%s\n", Version)
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
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(redactedConfig(app.Config))
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			path := config.Path(app.ConfigDir)
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": path})
			}
			output.Println(path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
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
	output.Bold("Store")
	output.Printf("  Driver:          %s\n", cfg.Store.Driver)
	output.Printf("  DSN:             %s\n", security.Redact(cfg.Store.DSN))
	output.Println()

	output.Bold("Price Feed")
	output.Printf("  Source:          %s\n", cfg.Feed.Source)
	if cfg.Feed.Source == "redis" {
		output.Printf("  Redis:           %s (db %d)\n", cfg.Feed.RedisAddr, cfg.Feed.RedisDB)
	}
	output.Println()

	output.Bold("Qualification Gate")
	output.Printf("  Enabled:         %v\n", cfg.Gate.Enabled)
	output.Printf("  Modules:         %d\n", cfg.Gate.RequiredModules)
	output.Printf("  Simulations:     %d\n", cfg.Gate.MinSimulations)
	output.Println()

	output.Bold("Analytics")
	output.Printf("  Min Ticks:       %d\n", cfg.Analytics.MinTicks)
	output.Printf("  Entry Window:    %s\n", cfg.Analytics.EntryWindow)
	output.Printf("  Post-Exit:       %s\n", cfg.Analytics.PostExitWindow)
	output.Printf("  Commission:      %.2f + %.4f%%\n", cfg.Analytics.CommissionPerTrade, cfg.Analytics.CommissionRate*100)
	output.Printf("  Weights:         entry %.2f, exit %.2f, risk %.2f\n",
		cfg.Analytics.EntryWeight, cfg.Analytics.ExitWeight, cfg.Analytics.RiskWeight)
	output.Println()

	output.Bold("Patterns")
	output.Printf("  Window:          %s\n", cfg.Patterns.Window)
	output.Printf("  Overtrading:     %d per hour\n", cfg.Patterns.OvertradingPerHour)
	output.Printf("  Revenge Cooldown: %s\n", cfg.Patterns.RevengeCooldown)
	output.Printf("  FOMO:            %.1f%% over %s\n", cfg.Patterns.FOMOMovePct, cfg.Patterns.FOMOLookback)
	output.Println()

	output.Bold("Server")
	output.Printf("  Address:         %s\n", cfg.Server.Addr)
	if cfg.Events.NATSURL != "" {
		output.Printf("  NATS:            %s (%s.*)\n", security.Redact(cfg.Events.NATSURL), cfg.Events.SubjectPrefix)
	}
}

// redactedConfig returns a copy of cfg safe to print.
func redactedConfig(cfg *config.Config) config.Config {
	out := *cfg
	out.Store.DSN = security.Redact(cfg.Store.DSN)
	out.Events.NATSURL = security.Redact(cfg.Events.NATSURL)
	out.Feed.RedisPassword = security.MaskCredential(cfg.Feed.RedisPassword)
	return out
}
