package jsonic

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/cast"
)

// Property names accepted by SetProperty.
const (
	PropVoice  = "voice"
	PropRate   = "rate"
	PropPitch  = "pitch"
	PropVolume = "volume"
	PropLoop   = "loop"
)

// MaxRate bounds the speech rate in words per minute.
const MaxRate = 1000

// Properties are the rendering settings of a channel. Voice, Rate and Pitch
// shape synthesis; Volume and Loop shape playback.
type Properties struct {
	Voice  string  `json:"voice"`
	Rate   int     `json:"rate"`   // words per minute
	Pitch  float64 `json:"pitch"`  // 0..1
	Volume float64 `json:"volume"` // 0..1
	Loop   bool    `json:"loop"`
}

// DefaultProperties returns the documented channel defaults.
func DefaultProperties() Properties {
	return Properties{
		Voice:  "default",
		Rate:   200,
		Pitch:  0.5,
		Volume: 1.0,
		Loop:   false,
	}
}

// Set changes one property. Values are coerced from strings and other
// numeric types, so "350" and 350.0 are both accepted for rate.
func (p *Properties) Set(name string, value any) error {
	switch strings.ToLower(name) {
	case PropVoice:
		v, err := cast.ToStringE(value)
		if err != nil {
			return fmt.Errorf("%w: voice: %v", ErrInvalidArgument, err)
		}
		if v == "" {
			return fmt.Errorf("%w: voice must not be empty", ErrInvalidArgument)
		}
		p.Voice = v
	case PropRate:
		v, err := cast.ToFloat64E(value)
		if err != nil {
			return fmt.Errorf("%w: rate: %v", ErrInvalidArgument, err)
		}
		if v <= 0 || v > MaxRate || math.IsNaN(v) {
			return fmt.Errorf("%w: rate must be within (0, %d], got %v", ErrInvalidArgument, MaxRate, value)
		}
		p.Rate = int(math.Round(v))
	case PropPitch:
		v, err := unitInterval(PropPitch, value)
		if err != nil {
			return err
		}
		p.Pitch = v
	case PropVolume:
		v, err := unitInterval(PropVolume, value)
		if err != nil {
			return err
		}
		p.Volume = v
	case PropLoop:
		v, err := cast.ToBoolE(value)
		if err != nil {
			return fmt.Errorf("%w: loop: %v", ErrInvalidArgument, err)
		}
		p.Loop = v
	default:
		return fmt.Errorf("%w: unknown property %q", ErrInvalidArgument, name)
	}
	return nil
}

// Validate checks every field against its allowed range.
func (p Properties) Validate() error {
	check := p
	for name, value := range map[string]any{
		PropVoice:  p.Voice,
		PropRate:   p.Rate,
		PropPitch:  p.Pitch,
		PropVolume: p.Volume,
	} {
		if err := check.Set(name, value); err != nil {
			return err
		}
	}
	return nil
}

// Playback returns the playback-time subset of the properties.
func (p Properties) Playback() Playback {
	return Playback{Volume: p.Volume, Loop: p.Loop}
}

func unitInterval(name string, value any) (float64, error) {
	v, err := cast.ToFloat64E(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %v", ErrInvalidArgument, name, err)
	}
	if v < 0 || v > 1 || math.IsNaN(v) {
		return 0, fmt.Errorf("%w: %s must be within [0, 1], got %v", ErrInvalidArgument, name, value)
	}
	return v, nil
}
