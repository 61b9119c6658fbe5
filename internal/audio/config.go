package audio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgnsrekt/jsonic/jsonic"
)

// Fetcher downloads artifacts that were not fetched ahead of playback.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (jsonic.Artifact, error)
}

// PlayerConfig contains configuration for the audio player.
type PlayerConfig struct {
	SampleRate   int           // Device rate; artifacts must match it
	Channels     int           // 1 = mono, 2 = stereo
	BufferSize   time.Duration // Device buffer
	PollInterval time.Duration // How often playback completion is checked
}

// DefaultPlayerConfig returns the default player configuration, matching
// espeak output.
func DefaultPlayerConfig() PlayerConfig {
	return PlayerConfig{
		SampleRate:   22050,
		Channels:     1,
		BufferSize:   100 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
	}
}

// validateConfig validates the player configuration.
func validateConfig(config PlayerConfig) error {
	if config.SampleRate < 8000 || config.SampleRate > 48000 {
		return fmt.Errorf("sample rate must be within 8000..48000 Hz, got %d", config.SampleRate)
	}
	if config.Channels != 1 && config.Channels != 2 {
		return fmt.Errorf("channels must be 1 (mono) or 2 (stereo), got %d", config.Channels)
	}
	if config.BufferSize < 0 {
		return errors.New("buffer size must not be negative")
	}
	if config.PollInterval <= 0 {
		return errors.New("poll interval must be positive")
	}
	return nil
}

// repeat runs once, and again while loop is set, until it fails or ctx is
// done.
func repeat(ctx context.Context, loop bool, once func(ctx context.Context) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := once(ctx); err != nil {
			return err
		}
		if !loop {
			return nil
		}
	}
}
