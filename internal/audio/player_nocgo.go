//go:build nocgo
// +build nocgo

package audio

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/jsonic/jsonic"
)

// ErrNoDevice is returned by NewPlayer in builds without cgo.
var ErrNoDevice = errors.New("audio not available in nocgo build")

// Player is unavailable without cgo; use MockPlayer instead.
type Player struct{}

var _ jsonic.Renderer = (*Player)(nil)

// NewPlayer validates config and reports that no device can be opened.
func NewPlayer(config PlayerConfig, fetcher Fetcher, logger *log.Logger) (*Player, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return nil, ErrNoDevice
}

// Render always fails.
func (p *Player) Render(ctx context.Context, art jsonic.Artifact, pb jsonic.Playback) error {
	return ErrNoDevice
}

// Active returns zero.
func (p *Player) Active() int { return 0 }

// Close does nothing.
func (p *Player) Close() error { return nil }
