package jsonic

import (
	"fmt"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// LoadConfigFromViper loads the engine configuration from Viper.
func LoadConfigFromViper() (Config, error) {
	cfg := DefaultConfig()

	if viper.IsSet("default_caching") {
		cfg.DefaultCaching = viper.GetBool("default_caching")
	}
	if viper.IsSet("engine") {
		cfg.Engine = viper.GetString("engine")
	}

	// Channel defaults
	if viper.IsSet("voice") {
		cfg.Voice = viper.GetString("voice")
	}
	if viper.IsSet("rate") {
		cfg.Rate = viper.GetInt("rate")
	}
	if viper.IsSet("pitch") {
		cfg.Pitch = viper.GetFloat64("pitch")
	}
	if viper.IsSet("volume") {
		cfg.Volume = viper.GetFloat64("volume")
	}

	// Cache settings
	if viper.IsSet("cache.max_entries") {
		cfg.CacheMaxEntries = viper.GetInt("cache.max_entries")
	}
	if viper.IsSet("cache.snapshot") {
		path, err := homedir.Expand(viper.GetString("cache.snapshot"))
		if err != nil {
			return cfg, fmt.Errorf("invalid cache snapshot path: %w", err)
		}
		cfg.CacheSnapshot = path
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid jsonic configuration: %w", err)
	}

	return cfg, nil
}
