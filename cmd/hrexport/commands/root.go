package commands

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"hrexport/lib/telemetry"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	logFormat  string
	stateDir   string
	outDir     string
)

// cfg is populated before any subcommand runs.
var cfg Config

var rootCmd = &cobra.Command{
	Use:   "hrexport",
	Short: "hrexport incrementally scrapes your hackerrank submissions and exports them to a spreadsheet.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		telemetry.InitSlog(telemetry.ParseLevel(logLevel), logFormat)

		err := godotenv.Load()
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load .env: %w", err)
		}

		cfg, err = loadConfig(configPath)
		if err != nil {
			return err
		}
		if stateDir != "" {
			cfg.StateDir = stateDir
		}
		if outDir != "" {
			cfg.OutDir = outDir
		}
		slog.Debug("configuration loaded", "config", configPath, "state_dir", cfg.StateDir, "out_dir", cfg.OutDir)
		return nil
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "hrexport.json5", "The config file, a <name>.local.json5 next to it overrides its values.")
	flags.StringVar(&logLevel, "log-level", "info", "One of debug, info, warn, error.")
	flags.StringVar(&logFormat, "log-format", "text", "Either text or json.")
	flags.StringVar(&stateDir, "state", "", "The directory holding the state file, overrides state_dir.")
	flags.StringVar(&outDir, "out", "", "The directory the spreadsheet is written to, overrides out_dir.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
