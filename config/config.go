// Package config loads the keriauth host configuration.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jmcleod/keriauth/message"
)

// Config is the on-disk configuration. Zero fields take their defaults.
type Config struct {
	ExtensionID     string        `yaml:"extension_id"`
	ExtensionOrigin string        `yaml:"extension_origin"`
	DataDir         string        `yaml:"data_dir"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	InspectAddr     string        `yaml:"inspect_addr"`
	ActionPopupPath string        `yaml:"action_popup_path"`
	LogLevel        string        `yaml:"log_level"`
	// GrantedOrigins seeds the host permissions until the browser reports
	// its own.
	GrantedOrigins []string `yaml:"granted_origins"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		DataDir:         defaultDataDir(),
		RequestTimeout:  60 * time.Second,
		ActionPopupPath: "index.html",
		LogLevel:        "info",
	}
}

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".keriauth"
	}
	return filepath.Join(dir, "keriauth")
}

// Load reads the YAML file at path over the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	d := Default()
	if c.DataDir == "" {
		c.DataDir = d.DataDir
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.ActionPopupPath == "" {
		c.ActionPopupPath = d.ActionPopupPath
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.ExtensionOrigin == "" && c.ExtensionID != "" {
		c.ExtensionOrigin = "chrome-extension://" + c.ExtensionID
	}
}

// Validate reports the first problem with c, after filling defaults.
func (c *Config) Validate() error {
	c.applyDefaults()
	var errs []error
	if c.ExtensionID == "" {
		errs = append(errs, errors.New("extension_id is required"))
	}
	if c.ExtensionOrigin != "" {
		if _, err := message.Origin(c.ExtensionOrigin); err != nil {
			errs = append(errs, fmt.Errorf("extension_origin: %w", err))
		}
	}
	if c.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("request_timeout must be positive, got %s", c.RequestTimeout))
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	for _, p := range c.GrantedOrigins {
		if !strings.HasSuffix(p, "/*") {
			errs = append(errs, fmt.Errorf("granted origin %q must end in /*", p))
		}
	}
	return errors.Join(errs...)
}

// SlogLevel parses LogLevel.
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// LocalDBPath is the bbolt file holding long-lived records.
func (c Config) LocalDBPath() string {
	return filepath.Join(c.DataDir, "local.db")
}
