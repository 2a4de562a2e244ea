package config

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Settings holds the tool's own runtime options. They come from flags,
// PAGECRYPT_* environment variables or an optional settings file, never from
// the per-site encryption config.
type Settings struct {
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // "text" (default) or "json"
	Workers     int    `mapstructure:"workers"`    // Articles processed concurrently
	KeepConfig  bool   `mapstructure:"keep_config"`
	Force       bool   `mapstructure:"force"`  // Re-encrypt pages that already carry injected data
	Strict      bool   `mapstructure:"strict"` // Reject unknown keys in the encryption config
	MetricsFile string `mapstructure:"metrics_file"`
}

// InitSettings initializes the settings layer
func InitSettings(settingsFile string) {
	if settingsFile != "" {
		viper.SetConfigFile(settingsFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".pagecrypt")
	}

	viper.SetEnvPrefix("PAGECRYPT")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintf(os.Stderr, "Using settings file: %s\n", viper.ConfigFileUsed())
	}
}

// setDefaults sets default settings values
func setDefaults() {
	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "text")
	viper.SetDefault("workers", 1)
	viper.SetDefault("keep_config", false)
	viper.SetDefault("force", false)
	viper.SetDefault("strict", false)
	viper.SetDefault("metrics_file", "")
}

// LoadSettings loads the settings from viper
func LoadSettings() (*Settings, error) {
	var s Settings
	if err := viper.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}

	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("settings validation failed: %w", err)
	}

	return &s, nil
}

// Validate validates the settings
func (s *Settings) Validate() error {
	if _, err := logrus.ParseLevel(s.LogLevel); err != nil {
		return fmt.Errorf("invalid log_level %q: %w", s.LogLevel, err)
	}

	switch s.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("log_format must be 'text' or 'json', got %q", s.LogFormat)
	}

	if s.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", s.Workers)
	}

	return nil
}
