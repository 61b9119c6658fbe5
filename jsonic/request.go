package jsonic

// DefaultChannel is used by requests that do not name a channel.
const DefaultChannel = "default"

// Kind identifies the operation a request performs.
type Kind int

const (
	KindSay Kind = iota
	KindPlay
	KindSetProperty
	KindReset
	KindStop
)

// String returns the name used in notices and logs.
func (k Kind) String() string {
	switch k {
	case KindSay:
		return "say"
	case KindPlay:
		return "play"
	case KindSetProperty:
		return "setProperty"
	case KindReset:
		return "reset"
	case KindStop:
		return "stop"
	default:
		return "unknown"
	}
}

// SayRequest asks for text to be spoken on a channel.
type SayRequest struct {
	Text    string
	Channel string

	// Cache overrides the engine's default caching flag when set.
	Cache *bool

	// Voice and Rate override the channel properties for this request only.
	// Zero values leave the channel properties in effect.
	Voice string
	Rate  int
}

// PlayRequest asks for a sound to be played on a channel. URL may be
// absolute or relative to the rendering service.
type PlayRequest struct {
	URL     string
	Channel string

	// Cache overrides the engine's default caching flag when set.
	Cache *bool

	// Volume and Loop override the channel properties for this request only.
	Volume *float64
	Loop   *bool
}

// PropertyRequest changes one channel property. An empty Channel applies
// the change to every channel, including channels created later.
type PropertyRequest struct {
	Name    string
	Value   any
	Channel string
}

// ChannelRequest targets Reset and Stop. An empty Channel targets every
// channel.
type ChannelRequest struct {
	Channel string
}

// Bool returns a pointer to b, for optional request fields.
func Bool(b bool) *bool { return &b }

// Float returns a pointer to f, for optional request fields.
func Float(f float64) *float64 { return &f }

// descriptor is the queued form of a Say or Play request. Everything but
// props and handle is fixed at submission; props are bound when the
// descriptor starts executing.
type descriptor struct {
	kind    Kind
	channel string
	text    string
	url     string
	cache   bool

	voice  string
	rate   int
	volume *float64
	loop   *bool

	props  Properties
	handle *Handle
}

func channelName(name string) string {
	if name == "" {
		return DefaultChannel
	}
	return name
}
