//go:build !nocgo
// +build !nocgo

package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"

	"github.com/dgnsrekt/jsonic/jsonic"
)

// Player renders artifacts through a single oto context. Any number of
// renders may run at once; oto mixes them.
type Player struct {
	context *oto.Context
	config  PlayerConfig
	fetcher Fetcher
	logger  *log.Logger

	mu     sync.Mutex
	active int
	closed bool
}

var _ jsonic.Renderer = (*Player)(nil)

// NewPlayer creates the oto context and waits until the device is ready.
// oto allows one context per process, so create one Player and share it.
func NewPlayer(config PlayerConfig, fetcher Fetcher, logger *log.Logger) (*Player, error) {
	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if fetcher == nil {
		return nil, errors.New("a fetcher is required")
	}
	if logger == nil {
		logger = log.Default()
	}

	op := &oto.NewContextOptions{
		SampleRate:   config.SampleRate,
		ChannelCount: config.Channels,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   config.BufferSize,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("failed to create oto context: %w", err)
	}

	// Wait for context to be ready
	<-readyChan

	return &Player{
		context: ctx,
		config:  config,
		fetcher: fetcher,
		logger:  logger,
	}, nil
}

// Render plays art until it ends, looping while pb.Loop is set, and stops
// as soon as ctx is cancelled.
func (p *Player) Render(ctx context.Context, art jsonic.Artifact, pb jsonic.Playback) error {
	if !p.acquire() {
		return errors.New("player is closed")
	}
	defer p.release()

	data := art.Data
	if len(data) == 0 {
		fetched, err := p.fetcher.Fetch(ctx, art.URL)
		if err != nil {
			return err
		}
		data = fetched.Data
	}

	pcm, format, err := DecodeWAV(data)
	if err != nil {
		return fmt.Errorf("%s: %w", art.URL, err)
	}
	if format.SampleRate != p.config.SampleRate || format.Channels != p.config.Channels || format.BitsPerSample != 16 {
		return fmt.Errorf("%s: format %d Hz/%d ch/%d bit does not match the device (%d Hz/%d ch/16 bit)",
			art.URL, format.SampleRate, format.Channels, format.BitsPerSample, p.config.SampleRate, p.config.Channels)
	}

	p.logger.Debug("audio: render", "url", art.URL, "duration", format.Duration(len(pcm)), "volume", pb.Volume, "loop", pb.Loop)

	return repeat(ctx, pb.Loop, func(ctx context.Context) error {
		return p.playOnce(ctx, pcm, pb.Volume)
	})
}

func (p *Player) playOnce(ctx context.Context, pcm []byte, volume float64) error {
	// The reader keeps pcm reachable for the whole playback
	player := p.context.NewPlayer(bytes.NewReader(pcm))
	defer player.Close()

	player.SetVolume(volume)
	player.Play()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for player.IsPlaying() {
		select {
		case <-ctx.Done():
			player.Pause()
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return player.Err()
}

// Active returns the number of renders in progress.
func (p *Player) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Close rejects further renders. The oto context itself lives for the rest
// of the process.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *Player) acquire() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return false
	}
	p.active++
	return true
}

func (p *Player) release() {
	p.mu.Lock()
	p.active--
	p.mu.Unlock()
}
