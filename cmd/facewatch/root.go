package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ayusman/facewatch/internal/config"
	"github.com/ayusman/facewatch/internal/store"
)

// Version is the application version.
const Version = "0.1.0"

var (
	// cfg is the effective configuration shared by subcommands
	cfg *config.Config
	// logger is built from cfg once flags are parsed
	logger *slog.Logger

	configPath string
	flags      config.Config
)

var rootCmd = &cobra.Command{
	Use:     "facewatch",
	Short:   "Live camera face detection with an annotated preview",
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		applyFlags(cmd, loaded)
		if err := loaded.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		cfg = loaded

		logger, err = newLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
		if err != nil {
			return err
		}
		slog.SetDefault(logger)
		return nil
	},
	SilenceUsage: true,
}

// Execute runs the root command with a context cancelled by SIGINT/SIGTERM.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	def := config.Default()
	pf := rootCmd.PersistentFlags()

	pf.StringVar(&configPath, "config", filepath.Join(config.DataDir(), "config.json"), "path to JSON config file")
	pf.StringVar(&flags.DBPath, "db", def.DBPath, "SQLite database path")
	pf.StringVar(&flags.LogLevel, "log-level", def.LogLevel, "log level: debug, info, warn, error")
	pf.StringVar(&flags.LogFormat, "log-format", def.LogFormat, "log format: text or json")
}

// applyFlags copies explicitly set flags over the loaded file values.
func applyFlags(cmd *cobra.Command, c *config.Config) {
	set := func(name string, apply func()) {
		if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
			apply()
		}
	}

	set("db", func() { c.DBPath = flags.DBPath })
	set("log-level", func() { c.LogLevel = flags.LogLevel })
	set("log-format", func() { c.LogFormat = flags.LogFormat })
	set("backend", func() { c.BackendURL = flags.BackendURL })
	set("timeout", func() { c.RequestTimeout = config.Duration(timeoutFlag) })
	set("camera", func() { c.CameraIndex = flags.CameraIndex })
	set("width", func() { c.CameraWidth = flags.CameraWidth })
	set("height", func() { c.CameraHeight = flags.CameraHeight })
	set("fps", func() { c.FPS = flags.FPS })
	set("refresh-rate", func() { c.RefreshRate = flags.RefreshRate })
	set("format", func() { c.Format = flags.Format })
	set("quality", func() { c.Quality = flags.Quality })
	set("max-snapshots", func() { c.MaxSnapshots = flags.MaxSnapshots })
	set("listen", func() { c.Listen = flags.Listen })
	set("static", func() { c.StaticDir = flags.StaticDir })
	set("window", func() { c.Window = flags.Window })
	set("tray", func() { c.Tray = flags.Tray })
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	lvl, err := config.ParseLevel(level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: lvl}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// openStore opens the archive, creating its directory.
func openStore() (*store.Store, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	st, err := store.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	return st, nil
}
