package gopenslide

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ekonechny/gopenslide/v2/cache"
)

// Config controls how slides are opened.
type Config struct {
	// CacheSize is the byte capacity of each slide's private tile cache.
	CacheSize int `yaml:"cacheSize"`
	// Debug lists debug flags to enable in addition to OPENSLIDE_DEBUG.
	Debug []string `yaml:"debug"`
	// DisableQuickHash skips computing openslide.quickhash-1.
	DisableQuickHash bool `yaml:"disableQuickHash"`
}

// DefaultConfig returns the configuration Open uses.
func DefaultConfig() Config {
	return Config{CacheSize: cache.DefaultCapacity}
}

// LoadConfig reads a YAML file over DefaultConfig. A missing file yields
// the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("error reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("error parsing config file: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg Config) validate() error {
	if cfg.CacheSize < 0 {
		return fmt.Errorf("cacheSize must not be negative, got %d", cfg.CacheSize)
	}
	for _, name := range cfg.Debug {
		if _, ok := debugFlagNames[name]; !ok {
			return fmt.Errorf("unknown debug flag %q", name)
		}
	}
	return nil
}
