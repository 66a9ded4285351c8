// ABOUTME: Entry point for the grimoire CLI
// ABOUTME: Inspects and manipulates per-module key-value namespaces from the command line

package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/2389/grimoire/internal/config"
)

// Version is set by goreleaser at build time.
var version = "dev"

var (
	configPath string
	transient  bool

	rootCmd = &cobra.Command{
		Use:     "grimoire",
		Short:   "Per-module key-value persistence for the application host",
		Version: version,
		Long: `grimoire manages the schema-versioned key-value namespaces used by
host modules. The get/set/del commands operate on a string namespace
for the named module, running the same initialization pass the host
runs at startup (including cleanup of abandoned transient namespaces).`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	rootCmd.PersistentFlags().BoolVar(&transient, "transient", false, "operate on the transient storage area")

	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(setCmd)
	rootCmd.AddCommand(delCmd)
	rootCmd.AddCommand(infoCmd)
}

// resolveConfigPath returns the config file location.
// Priority: --config flag > GRIMOIRE_CONFIG env var >
// XDG_CONFIG_HOME/grimoire/config.yaml > ~/.config/grimoire/config.yaml
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("GRIMOIRE_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "grimoire", "config.yaml")
}

// loadConfig reads the resolved config file, falling back to defaults
// when no file exists and none was explicitly requested.
func loadConfig() (*config.Config, error) {
	path := resolveConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && configPath == "" && os.Getenv("GRIMOIRE_CONFIG") == "" {
			return config.Default(), nil
		}
		return nil, err
	}
	return cfg, nil
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch cfg.Logging.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
