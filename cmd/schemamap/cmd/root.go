package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/solatis/schemamap/internal/cli"
	"github.com/solatis/schemamap/internal/core/config"
	"github.com/solatis/schemamap/internal/core/logging"
	"github.com/solatis/schemamap/internal/rules"
)

const Version = "0.1.0"

var (
	configFile   string
	dbURL        string
	logLevel     string
	logFormat    string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:     "schemamap",
	Short:   "schemamap bidirectional mapping rule engine",
	Long:    `schemamap compiles mapping rules into structured-data templates, renders them against data records and recovers the rules from edited templates.`,
	Version: Version,

	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "database connection URL (sqlite://path or postgres://...)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log format (json, text)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "json", "output format (table, json, yaml)")
}

func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads configuration and applies the persistent flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("db-url") {
		cfg.Database.URL = dbURL
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = logFormat
	}
	return cfg, nil
}

// newLogger builds the process logger. Logs go to stderr so command output
// on stdout stays machine readable.
func newLogger(cfg *config.Config) (*slog.Logger, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}

func newEngine(cfg *config.Config) (*rules.Engine, error) {
	engine, err := rules.NewEngine(cfg.Engine.Options())
	if err != nil {
		return nil, fmt.Errorf("invalid engine options: %w", err)
	}
	return engine, nil
}

func output() (cli.OutputFormat, error) {
	return cli.ParseOutputFormat(outputFormat)
}
