// =============================================================================
// Fradma Dashboard - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. Every other command
// is attached to it.
//
// COBRA CLI STRUCTURE:
//   rootCmd (fradma)
//   ├── reconcileCmd (fradma reconcile)
//   ├── ingestCmd    (fradma ingest)
//   ├── reportCmd    (fradma report kpi|yoy|heatmap|aging)
//   └── versionCmd   (fradma version)
//
// CONFIGURATION:
//   The root command is responsible for:
//   1. Loading the .env file (--env-file) into the environment
//   2. Loading the YAML configuration (--config) on top of the defaults
//   3. Building the slog logger from logging.level and logging.format
//   4. Writing the metrics textfile after the command (--metrics-file)
//
// =============================================================================

package cmd

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/B10sp4rt4n/fradma-dashboard/internal/config"
	"github.com/B10sp4rt4n/fradma-dashboard/internal/metrics"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

var (
	// cfgFile holds the path to the main configuration file.
	cfgFile string

	// envFile is loaded into the environment before the configuration.
	envFile string

	// verbose forces debug logging.
	verbose bool

	// metricsFile overrides metrics_file from the configuration.
	metricsFile string

	// profileName selects the reconciliation profile.
	profileName string
)

// Set by PersistentPreRunE for the running command.
var (
	mainConfig *config.MainConfig
	logger     *slog.Logger
	recorder   *metrics.Recorder
)

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

var rootCmd = &cobra.Command{
	Use:   "fradma",
	Short: "Fradma Dashboard - Reconcile, store and report on sales spreadsheets",
	Long: `Fradma Dashboard reads sales, invoice-item and receivables spreadsheets
exported by accounting software, reconciles their columns into one canonical
schema, converts amounts to USD, stores rows without duplicates and computes
the dashboard reports.

Example Usage:
  fradma reconcile ventas.xlsx                  # Print the reconciliation summary
  fradma ingest --dir ./entrada                 # Store every spreadsheet in a directory
  fradma report kpi ventas.xlsx --agent "Ana"   # KPI report for one agent
  fradma report aging --from-store --profile receivables`,

	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initialize(cmd)
	},

	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		path := metricsFile
		if path == "" && mainConfig != nil {
			path = mainConfig.MetricsFile
		}
		return recorder.WriteTextfile(path)
	},

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command. It is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "config.yaml", "Path to the main configuration file; built-in defaults are used when it does not exist")
	flags.StringVar(&envFile, "env-file", ".env", "Environment file loaded before the configuration")
	flags.BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	flags.StringVar(&metricsFile, "metrics-file", "", "Write run metrics to this Prometheus textfile")
	flags.StringVarP(&profileName, "profile", "p", config.DefaultProfile, "Reconciliation profile: sales, items or receivables")
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func initialize(cmd *cobra.Command) error {
	if err := loadEnv(envFile); err != nil {
		return err
	}

	cfg, err := loadConfig(cfgFile, cmd.Flags().Changed("config"))
	if err != nil {
		return err
	}
	mainConfig = cfg

	logger, err = newLogger(cfg.Logging, verbose, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	recorder = metrics.New()
	return nil
}

// loadEnv loads path into the environment. A missing file is not an error;
// variables already set win over the file.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// loadConfig reads path on top of the defaults. A missing file falls back to
// the defaults unless the path was given explicitly.
func loadConfig(path string, explicit bool) (*config.MainConfig, error) {
	cfg, err := config.LoadMainConfig(path)
	if errors.Is(err, fs.ErrNotExist) && !explicit {
		return config.Default()
	}
	return cfg, err
}

// newLogger builds the slog logger described by cfg.
func newLogger(cfg config.LoggingConfig, verbose bool, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("logging.level: %w", err)
	}
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
