// Package config loads dbpanel settings from config.yaml and DBPANEL_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/spf13/viper"
)

// Store backends.
const (
	BackendSQLite = "sqlite"
	BackendFile   = "file"
)

var (
	validBackends  = []string{BackendSQLite, BackendFile}
	validLogLevels = []string{"debug", "info", "warn", "error"}
)

// Config represents the root configuration structure
type Config struct {
	Store   StoreConfig   `mapstructure:"store"`
	IPC     IPCConfig     `mapstructure:"ipc"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Log     LogConfig     `mapstructure:"log"`
	Debug   bool          `mapstructure:"debug"`
}

// StoreConfig selects where saved connections are persisted.
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// IPCConfig holds the socket the serve command listens on. Empty means the
// platform default.
type IPCConfig struct {
	Socket string `mapstructure:"socket"`
}

// MetricsConfig holds the Prometheus listen address. Empty disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `mapstructure:"level"`
	Path  string `mapstructure:"path"`
}

// Dir returns ~/.config/dbpanel.
func Dir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return filepath.Join(home, ".config", "dbpanel")
}

// LoadConfig loads configuration from YAML file and environment variables.
// When configFile is empty the file is looked up as config.yaml in
// ~/.config/dbpanel and the working directory; a missing file is not an error.
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(Dir())
		v.AddConfigPath(".")
	}

	// Environment variable support
	v.SetEnvPrefix("DBPANEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	applyDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.Store.Path = expandHome(cfg.Store.Path)
	cfg.Log.Path = expandHome(cfg.Log.Path)
	cfg.Store.Backend = strings.ToLower(cfg.Store.Backend)
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)

	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// ValidateConfig validates the configuration values
func ValidateConfig(cfg *Config) error {
	if !slices.Contains(validBackends, cfg.Store.Backend) {
		return fmt.Errorf("store.backend must be one of: %v, got %s", validBackends, cfg.Store.Backend)
	}
	if cfg.Store.Path == "" {
		return fmt.Errorf("store.path cannot be empty")
	}
	if !slices.Contains(validLogLevels, cfg.Log.Level) {
		return fmt.Errorf("log.level must be one of: %v, got %s", validLogLevels, cfg.Log.Level)
	}
	return nil
}

// applyDefaults sets default configuration values
func applyDefaults(v *viper.Viper) {
	v.SetDefault("store.backend", BackendSQLite)
	v.SetDefault("store.path", filepath.Join(Dir(), "dbpanel.db"))
	v.SetDefault("ipc.socket", "")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.path", "")
	v.SetDefault("debug", false)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
}
