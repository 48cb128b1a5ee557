// Package config loads the recorder's service configuration and recording settings.
//
// Both documents are read once at startup with viper. Any error returned from this
// package is fatal to the caller: the recorder never starts with partial settings.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ErrInvalidSettings indicates a missing, unreadable or malformed configuration.
var ErrInvalidSettings = errors.New("invalid settings")

const envPrefix = "RECORDER"

// Config is the service configuration.
type Config struct {
	Log       LogConfig         `mapstructure:"log"`
	Storage   StorageConfig     `mapstructure:"storage"`
	Feeds     []FeedConfig      `mapstructure:"feeds" validate:"dive"`
	Timezone  string            `mapstructure:"timezone"`
	Health    string            `mapstructure:"health_addr"`
	Metrics   string            `mapstructure:"metrics_addr"`
	Recording RecordingSettings `mapstructure:"recording"`

	// RecordingFile points at a separate settings document. When set it
	// replaces the inline Recording section.
	RecordingFile string `mapstructure:"recording_file"`
}

// LogConfig controls zerolog output.
type LogConfig struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=trace debug info warn error"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=console json"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver      string   `mapstructure:"driver" validate:"required,oneof=memory sqlite postgres redis kafka"`
	DSN         string   `mapstructure:"dsn" validate:"required_if=Driver sqlite,required_if=Driver postgres,required_if=Driver redis"`
	Brokers     []string `mapstructure:"brokers" validate:"required_if=Driver kafka"`
	TickStore   string   `mapstructure:"tick_store"`
	MinuteStore string   `mapstructure:"minute_store"`
}

// FeedConfig describes one market-data feed, addressed by the feed identifier
// used in the recording settings.
type FeedConfig struct {
	Name       string `mapstructure:"name" validate:"required"`
	Endpoint   string `mapstructure:"endpoint" validate:"required,url"`
	MaxSymbols int    `mapstructure:"max_symbols" validate:"gte=0"`
}

// Load reads the service configuration from path. Environment variables with the
// RECORDER_ prefix override file values (e.g. RECORDER_STORAGE_DSN).
func Load(path string) (*Config, error) {
	v := newViper(path)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("timezone", "UTC")
	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.tick_store", DefaultTickStore)
	v.SetDefault("storage.minute_store", DefaultMinuteStore)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrInvalidSettings, path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalidSettings, path, err)
	}

	if cfg.RecordingFile != "" {
		rec, err := LoadRecording(cfg.RecordingFile)
		if err != nil {
			return nil, err
		}
		cfg.Recording = *rec
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}

	return &cfg, nil
}

// LoadRecording reads a standalone recording settings document.
func LoadRecording(path string) (*RecordingSettings, error) {
	v := newViper(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrInvalidSettings, path, err)
	}

	var rec RecordingSettings
	if err := v.Unmarshal(&rec); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", ErrInvalidSettings, path, err)
	}
	return &rec, nil
}

func newViper(path string) *viper.Viper {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Feed returns the feed configured under name.
func (c *Config) Feed(name string) (FeedConfig, bool) {
	for _, f := range c.Feeds {
		if f.Name == name {
			return f, true
		}
	}
	return FeedConfig{}, false
}
