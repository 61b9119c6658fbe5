package remote

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the REST client settings.
type Config struct {
	// BaseURL is the root of the JSonic server, e.g. http://localhost:8888/
	BaseURL string `yaml:"url" env:"JSONIC_SERVER_URL" envDefault:"http://localhost:8888/"`

	// Format is the audio container requested for speech and assumed for
	// sound locators without an extension.
	Format string `yaml:"format" env:"JSONIC_SERVER_FORMAT" envDefault:".wav"`

	Timeout time.Duration `yaml:"timeout" env:"JSONIC_SERVER_TIMEOUT" envDefault:"30s"`

	// RequestsPerMinute throttles outbound requests; 0 disables throttling.
	RequestsPerMinute int `yaml:"requests_per_minute" env:"JSONIC_SERVER_RPM" envDefault:"0"`
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://localhost:8888/",
		Format:  ".wav",
		Timeout: 30 * time.Second,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid server url %q: %w", c.BaseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server url must be http or https, got %q", c.BaseURL)
	}
	if !strings.HasPrefix(c.Format, ".") || len(c.Format) < 2 {
		return fmt.Errorf("format must look like .wav, got %q", c.Format)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if c.RequestsPerMinute < 0 {
		return fmt.Errorf("requests_per_minute must not be negative")
	}
	return nil
}

// LoadConfigFromViper loads the server section from Viper.
func LoadConfigFromViper() (Config, error) {
	cfg := DefaultConfig()

	if viper.IsSet("server.url") {
		cfg.BaseURL = viper.GetString("server.url")
	}
	if viper.IsSet("server.format") {
		cfg.Format = viper.GetString("server.format")
	}
	if viper.IsSet("server.timeout") {
		cfg.Timeout = viper.GetDuration("server.timeout")
	}
	if viper.IsSet("server.requests_per_minute") {
		cfg.RequestsPerMinute = viper.GetInt("server.requests_per_minute")
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid server configuration: %w", err)
	}
	return cfg, nil
}
