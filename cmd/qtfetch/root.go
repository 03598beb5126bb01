package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/qtfetch/qtfetch/internal/settings"
	"github.com/qtfetch/qtfetch/internal/store"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgPath   string
	logLevel  string
	logFormat string
	quiet     bool

	globalSettings *settings.Settings
	logger         *slog.Logger

	globalStore *store.Store
)

// initializeStore opens the install history database.
func initializeStore() error {
	if globalSettings == nil {
		return fmt.Errorf("settings not loaded")
	}

	dbPath := globalSettings.DBPath
	if dbPath == "" {
		cacheDir, err := os.UserCacheDir()
		if err != nil {
			return fmt.Errorf("failed to resolve cache directory: %w", err)
		}
		dbPath = filepath.Join(cacheDir, "qtfetch", "qtfetch.db")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("failed to create database directory: %w", err)
	}

	st, err := store.New(dbPath, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	globalStore = st
	return nil
}

// shouldSkipStoreInit checks if a command should skip opening the database
func shouldSkipStoreInit(cmdName string) bool {
	skipInitCmds := map[string]bool{
		"help":    true,
		"version": true,
		"config":  true,
		"show":    true,
	}
	return skipInitCmds[cmdName]
}

// closeStore closes the global store connection
func closeStore() {
	if globalStore != nil {
		if err := globalStore.Close(); err != nil {
			logger.Error("failed to close store", "error", err)
		}
	}
}

// NewRootCmd creates and returns the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "qtfetch",
		Short: "Installer for Qt SDK packages and tools",
		Long: `qtfetch downloads and installs Qt SDK packages from the official
download mirrors. It resolves the package catalog for a version and
architecture, downloads the archives concurrently with checksum
verification, and extracts them into a local install tree.`,
		Example: `  qtfetch install-qt linux desktop 6.8.2
  qtfetch install-qt linux desktop 6.8.2 linux_gcc_64 -m qtcharts qtquick3d
  qtfetch install-tool linux desktop tools_cmake
  qtfetch status
  qtfetch config show`,
		Version: "1.0.0",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()

			if shouldSkipSettings(cmd.Name()) {
				return nil
			}

			if cfgPath == "" {
				var err error
				cfgPath, err = settings.FindSettingsFile()
				if err != nil {
					logger.Debug("settings file not found, using defaults")
				}
			}

			if cfgPath != "" {
				var err error
				globalSettings, err = settings.Load(cfgPath)
				if err != nil {
					return fmt.Errorf("failed to load settings: %w", err)
				}
			} else {
				globalSettings = settings.Default()
			}

			if !quiet {
				logger.Debug("settings loaded", "path", cfgPath)
			}

			if !shouldSkipStoreInit(cmd.Name()) {
				if err := initializeStore(); err != nil {
					return fmt.Errorf("failed to initialize store: %w", err)
				}
			}

			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			closeStore()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to settings file (auto-discovered if not specified)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text or json)")
	cmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")

	cmd.AddCommand(
		newInstallQtCmd(),
		newInstallToolCmd(),
		newStatusCmd(),
		newListInstalledCmd(),
		newConfigCmd(),
	)

	return cmd
}

// setupLogging initializes the slog logger based on flags
func setupLogging() {
	var level slog.Level
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	if quiet {
		level = slog.LevelError
	}

	var handler slog.Handler
	if strings.ToLower(logFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}

	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// shouldSkipSettings checks if a command should skip settings loading
func shouldSkipSettings(cmdName string) bool {
	skipCmds := map[string]bool{
		"help":    true,
		"version": true,
	}
	return skipCmds[cmdName]
}
