package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tradeconnect/server/internal/config"
)

var (
	// Global flags
	logLevel  string
	logFormat string

	rootCmd = &cobra.Command{
		Use:   "server",
		Short: "TradeConnect server - conference management backend",
		Long: `TradeConnect server provides the backend for conference and trade
event operations:

- Speaker administration, verification, availability and evaluations
- Event capacity control with seat locks, overbooking and waitlists
- Attendance check-in and no-show reporting
- FEL electronic invoice auditing and voiding
- Blockchain-anchored attendance certificates
- Webhook subscriptions, financial reports and KPIs`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Bare invocation starts the server.
			return serveCmd.RunE(cmd, args)
		},
	}
)

// Execute runs the root command. Called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (json, console)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(healthcheckCmd)
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}

	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}

	return cfg, nil
}
