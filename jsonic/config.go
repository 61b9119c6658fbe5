package jsonic

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Config contains the engine configuration.
type Config struct {
	// DefaultCaching applies to requests that do not set Cache.
	DefaultCaching bool `yaml:"default_caching" env:"JSONIC_DEFAULT_CACHING" envDefault:"false"`

	// Engine is the speech engine asked to synthesize Say requests.
	Engine string `yaml:"engine" env:"JSONIC_ENGINE" envDefault:"espeak"`

	// Channel defaults restored by Reset
	Voice  string  `yaml:"voice" env:"JSONIC_VOICE" envDefault:"default"`
	Rate   int     `yaml:"rate" env:"JSONIC_RATE" envDefault:"200"`
	Pitch  float64 `yaml:"pitch" env:"JSONIC_PITCH" envDefault:"0.5"`
	Volume float64 `yaml:"volume" env:"JSONIC_VOLUME" envDefault:"1.0"`

	// Cache settings
	CacheMaxEntries int    `yaml:"cache_max_entries" env:"JSONIC_CACHE_MAX_ENTRIES" envDefault:"0"`
	CacheSnapshot   string `yaml:"cache_snapshot" env:"JSONIC_CACHE_SNAPSHOT"`
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	p := DefaultProperties()
	return Config{
		DefaultCaching: false,
		Engine:         "espeak",
		Voice:          p.Voice,
		Rate:           p.Rate,
		Pitch:          p.Pitch,
		Volume:         p.Volume,
	}
}

// Defaults returns the channel properties the configuration describes.
func (c Config) Defaults() Properties {
	return Properties{
		Voice:  c.Voice,
		Rate:   c.Rate,
		Pitch:  c.Pitch,
		Volume: c.Volume,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Engine) == "" {
		return fmt.Errorf("%w: engine must not be empty", ErrInvalidArgument)
	}
	if err := c.Defaults().Validate(); err != nil {
		return err
	}
	if c.CacheMaxEntries < 0 {
		return fmt.Errorf("%w: cache.max_entries must not be negative", ErrInvalidArgument)
	}
	if c.CacheSnapshot != "" && !filepath.IsAbs(c.CacheSnapshot) {
		return fmt.Errorf("%w: cache.snapshot must be an absolute path, got %s", ErrInvalidArgument, c.CacheSnapshot)
	}
	return nil
}
