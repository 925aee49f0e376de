package main

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/strata-store/strata/internal/cli"
)

var (
	// Global state set during PersistentPreRunE
	cfg        *cli.Config
	configPath string
	logger     zerolog.Logger

	// Persistent flags
	cfgFile string
	quiet   bool
)

var rootCmd = &cobra.Command{
	Use:   "strata",
	Short: "Revisioned structured-document storage",
	Long: `strata - Revisioned structured-document storage

Strata persists hierarchical named documents into PostgreSQL with full
revision history, dictionary-encoded names, typed value projections, and
scope-cascading access rules. This tool manages the schema and runs
maintenance tasks against a strata database.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Skip config loading for help/completion/version commands
		if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "version" {
			return nil
		}

		var err error
		cfg, configPath, err = cli.LoadConfig(cfgFile)
		if err != nil {
			return cli.ConfigError("loading configuration", err)
		}

		level, err := zerolog.ParseLevel(cfg.LogLevel)
		if err != nil {
			level = zerolog.InfoLevel
		}
		if quiet {
			level = zerolog.ErrorLevel
		}
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(level).With().Timestamp().Logger()

		return nil
	},
	SilenceUsage:  true, // Don't show usage on errors
	SilenceErrors: true, // We handle errors ourselves
}

// Command group IDs
const (
	groupSchema      = "schema"
	groupMaintenance = "maintenance"
	groupUtility     = "utility"
)

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: auto-discover strata.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")

	// Define command groups
	rootCmd.AddGroup(
		&cobra.Group{ID: groupSchema, Title: "Schema:"},
		&cobra.Group{ID: groupMaintenance, Title: "Maintenance:"},
		&cobra.Group{ID: groupUtility, Title: "Utility:"},
	)

	// Schema commands
	migrateCmd.GroupID = groupSchema
	statusCmd.GroupID = groupSchema
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(statusCmd)

	// Maintenance commands
	sweepCmd.GroupID = groupMaintenance
	rootCmd.AddCommand(sweepCmd)

	// Utility commands
	versionCmd.GroupID = groupUtility
	rootCmd.AddCommand(versionCmd)
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		cli.ExitWithError(err)
	}
}

// resolveDSN gets the database DSN from flag or config.
func resolveDSN(flagDSN string) (string, error) {
	if flagDSN != "" {
		return flagDSN, nil
	}

	dsn, err := cfg.DSN()
	if err != nil {
		return "", cli.ConfigError("database configuration", err)
	}
	if dsn == "" {
		return "", cli.ConfigError("database URL is required (use --db or set in config)", nil)
	}
	return dsn, nil
}
