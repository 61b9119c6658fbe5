package audio

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/jsonic/jsonic"
)

// MockPlayer simulates playback without producing sound. Each render lasts
// as long as the WAV payload would, scaled by the delay factor; artifacts
// without a decodable payload last DefaultDuration.
type MockPlayer struct {
	fetcher         Fetcher
	logger          *log.Logger
	delayFactor     float64
	DefaultDuration time.Duration

	// Test callbacks
	callbacks MockCallbacks

	mu      sync.Mutex
	failErr error

	// Metrics for testing
	renderCount atomic.Int64
	cancelCount atomic.Int64
	active      atomic.Int32
	peakActive  atomic.Int32
}

// MockCallbacks provides hooks for testing.
type MockCallbacks struct {
	OnRender func(art jsonic.Artifact, pb jsonic.Playback)
	OnCancel func(art jsonic.Artifact)
}

var _ jsonic.Renderer = (*MockPlayer)(nil)

// NewMockPlayer creates a mock player. fetcher may be nil, in which case
// artifacts without data are never downloaded.
func NewMockPlayer(fetcher Fetcher, logger *log.Logger) *MockPlayer {
	if logger == nil {
		logger = log.Default()
	}
	return &MockPlayer{
		fetcher:         fetcher,
		logger:          logger,
		delayFactor:     1.0,
		DefaultDuration: 250 * time.Millisecond,
	}
}

// SetCallbacks installs test hooks.
func (mp *MockPlayer) SetCallbacks(callbacks MockCallbacks) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.callbacks = callbacks
}

// SetDelayFactor speeds up (<1) or slows down (>1) simulated playback.
func (mp *MockPlayer) SetDelayFactor(factor float64) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	if factor < 0 {
		factor = 0
	}
	mp.delayFactor = factor
}

// FailNext makes the next render return err.
func (mp *MockPlayer) FailNext(err error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.failErr = err
}

// Render simulates playback of art.
func (mp *MockPlayer) Render(ctx context.Context, art jsonic.Artifact, pb jsonic.Playback) error {
	mp.mu.Lock()
	callbacks := mp.callbacks
	factor := mp.delayFactor
	failErr := mp.failErr
	mp.failErr = nil
	mp.mu.Unlock()

	mp.renderCount.Add(1)
	if failErr != nil {
		return failErr
	}

	n := mp.active.Add(1)
	defer mp.active.Add(-1)
	for {
		peak := mp.peakActive.Load()
		if n <= peak || mp.peakActive.CompareAndSwap(peak, n) {
			break
		}
	}

	if callbacks.OnRender != nil {
		callbacks.OnRender(art, pb)
	}

	data := art.Data
	if len(data) == 0 && mp.fetcher != nil {
		fetched, err := mp.fetcher.Fetch(ctx, art.URL)
		if err != nil {
			return err
		}
		data = fetched.Data
	}

	duration := mp.DefaultDuration
	if pcm, format, err := DecodeWAV(data); err == nil {
		duration = format.Duration(len(pcm))
	}
	duration = time.Duration(float64(duration) * factor)

	mp.logger.Debug("audio: simulated render", "url", art.URL, "duration", duration, "volume", pb.Volume, "loop", pb.Loop)

	for {
		timer := time.NewTimer(duration)
		select {
		case <-ctx.Done():
			timer.Stop()
			mp.cancelCount.Add(1)
			if callbacks.OnCancel != nil {
				callbacks.OnCancel(art)
			}
			return ctx.Err()
		case <-timer.C:
		}
		if !pb.Loop {
			return nil
		}
		if duration == 0 {
			// A zero-length loop would spin; wait for cancellation instead
			<-ctx.Done()
			mp.cancelCount.Add(1)
			return ctx.Err()
		}
	}
}

// RenderCount returns how many renders were requested.
func (mp *MockPlayer) RenderCount() int64 { return mp.renderCount.Load() }

// CancelCount returns how many renders were cancelled.
func (mp *MockPlayer) CancelCount() int64 { return mp.cancelCount.Load() }

// PeakActive returns the highest number of concurrent renders observed.
func (mp *MockPlayer) PeakActive() int32 { return mp.peakActive.Load() }

// ErrSimulated is a convenience error for FailNext.
var ErrSimulated = errors.New("simulated playback error")
