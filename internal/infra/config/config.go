// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Audio   AudioConfig   `yaml:"audio"`
	Backend BackendConfig `yaml:"backend"`
	Log     LogConfig     `yaml:"log"`
}

// AudioConfig represents the output format and channel table setup.
type AudioConfig struct {
	Freq     int  `yaml:"freq" default:"44100" validate:"gt=0"`
	Mono     bool `yaml:"mono"`
	Samples  int  `yaml:"samples" default:"2048" validate:"gt=0"`
	Channels int  `yaml:"channels" default:"8" validate:"gt=0,lte=64"`

	// FadeOverlap mixes a sound superseded with a fadeout alongside its
	// replacement instead of sequencing them.
	FadeOverlap bool `yaml:"fade_overlap"`
}

// BackendConfig selects the audio device backend.
type BackendConfig struct {
	Type     string         `yaml:"type" default:"oto" validate:"oneof=oto null"`
	Settings map[string]any `yaml:"settings"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Output string `yaml:"output" default:"stderr"`
}

// Load loads configuration from a YAML file. A missing file is not an
// error: defaults plus environment overrides apply. Environment variables
// take precedence over file values.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrap(err, "failed to parse config file")
		}
	case os.IsNotExist(err):
		// Defaults only.
	default:
		return nil, errors.Wrap(err, "failed to read config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
// RENPY_SOUND_BUFSIZE is honored for compatibility with the original
// runtime's tuning knob.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("RENPY_SOUND_BUFSIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Audio.Samples = n
		}
	}
	if v := os.Getenv("RENPY_SOUND_BACKEND"); v != "" {
		c.Backend.Type = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}
