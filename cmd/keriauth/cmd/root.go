package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/jmcleod/keriauth/config"
)

// Version is set at build time.
var Version = "dev"

var (
	configPath string
	logLevel   string
	dataDir    string
	apiAddr    string
)

var rootCmd = &cobra.Command{
	Use:   "keriauth",
	Short: "KERI Auth background dispatcher",
	Long: `keriauth runs the KERI Auth background dispatcher as a browser native
messaging host and provides tools to inspect and administer it.`,
	SilenceUsage: true,
}

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Directory for persistent data")
	rootCmd.PersistentFlags().StringVar(&apiAddr, "addr", "http://127.0.0.1:7741", "Base URL of a running dispatcher's inspection API")
}

// loadConfig reads --config if given and applies flag overrides.
func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return cfg, err
		}
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	return cfg, nil
}

// newLogger logs JSON to stderr; stdout carries native messaging frames.
func newLogger(cfg config.Config) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})), nil
}
