package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/willibrandon/dbpanel/internal/app"
	"github.com/willibrandon/dbpanel/internal/config"
	"github.com/willibrandon/dbpanel/internal/logger"
)

var (
	// Version info (set by ldflags)
	version = "dev"

	// Flags
	configPath string
	debug      bool
	jsonOutput bool
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dbpanel",
		Short: "PostgreSQL connection manager and table browser",
		Long: `dbpanel keeps a list of saved PostgreSQL connections, browses their tables,
previews table data, runs ad-hoc SQL and exports results to CSV or JSON.

The editor extension starts 'dbpanel serve' and talks to it over a local socket.
Every other command works directly against the saved connections.`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.config/dbpanel/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(
		newServeCmd(),
		newConnCmd(),
		newTablesCmd(),
		newDataCmd(),
		newQueryCmd(),
		newHistoryCmd(),
		newExportCmd(),
	)
	return rootCmd
}

// loadConfig reads configuration and initializes the file logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if debug {
		cfg.Debug = true
		cfg.Log.Level = "debug"
	}

	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	logger.InitLogger(level, cfg.Log.Path)
	if cfg.Debug {
		fmt.Fprintf(os.Stderr, "Debug mode: Logs written to %s\n", logger.LogPath)
	}
	logger.Debug("dbpanel starting", "version", version, "config", configPath)
	return cfg, nil
}

// withService runs fn against a service opened from configuration.
func withService(ctx context.Context, fn func(*app.Service) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Close()

	svc, err := app.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer svc.Close()

	return fn(svc)
}

// printError writes err in red followed by a hint, if one applies.
func printError(w io.Writer, err error) {
	color.New(color.FgRed).Fprintf(w, "Error: %v\n", err)
	if hint := app.Hint(err); hint != "" {
		color.New(color.FgYellow).Fprintln(w, hint)
	}
}

// printSuccess writes msg in green.
func printSuccess(w io.Writer, format string, args ...any) {
	color.New(color.FgGreen).Fprintf(w, format+"\n", args...)
}
