package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/swhefti/ai-news-intelligence-hub/internal/config"
	"github.com/swhefti/ai-news-intelligence-hub/internal/logging"
	"github.com/swhefti/ai-news-intelligence-hub/internal/store"
	"github.com/swhefti/ai-news-intelligence-hub/internal/update"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	flagConfig    string
	flagEnvFile   string
	flagLogLevel  string
	flagLogFormat string
	flagCheck     bool
)

// Set by the root pre-run hook.
var (
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "newshub",
	Short: "AI news intelligence hub",
	Long: `newshub ingests AI news feeds into a local store and selects a bounded,
diverse set of article chunks as context for language model briefings.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagConfig, "config", "", "path to config file")
	pf.StringVar(&flagEnvFile, "env-file", ".env", "file with KEY=value environment overrides")
	pf.StringVar(&flagLogLevel, "log-level", "", "debug, info, warn or error (overrides config)")
	pf.StringVar(&flagLogFormat, "log-format", "", "text or json (overrides config)")

	versionCmd.Flags().BoolVar(&flagCheck, "check", false, "check GitHub for a newer release")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(selectCmd)
	rootCmd.AddCommand(briefCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(topicsCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	if err := config.LoadEnv(flagEnvFile); err != nil {
		return err
	}

	c, err := config.Load(flagConfig)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg = c

	level, format := cfg.Log.Level, cfg.Log.Format
	if flagLogLevel != "" {
		level = flagLogLevel
	}
	if flagLogFormat != "" {
		format = flagLogFormat
	}
	l, err := logging.New(os.Stderr, level, format)
	if err != nil {
		return err
	}
	logger = l
	return nil
}

func openStore() (store.Repository, error) {
	repo, err := store.Open(cfg.Database.Driver, cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	return repo, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	// Printing the version needs no config.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "newshub %s (commit: %s, built: %s)\n", version, commit, date)
		if !flagCheck {
			return
		}
		if r := update.Check(cmd.Context(), nil, update.ReleasesURL, version); r != nil {
			fmt.Fprintf(out, "A newer release is available: %s %s\n", r.LatestVersion, r.URL)
		}
	},
}

func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}
