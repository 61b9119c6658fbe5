package jsonic

import "context"

// Artifact is a rendered resource: the URL where the service serves it and,
// when it has been downloaded, its bytes.
type Artifact struct {
	URL  string
	Data []byte
}

// Playback holds the settings applied while an artifact is rendered.
type Playback struct {
	Volume float64
	Loop   bool
}

// SynthesisRequest describes one utterance to synthesize.
type SynthesisRequest struct {
	Engine string
	Text   string
	Voice  string
	Rate   int
	Pitch  float64
}

// PropertyInfo describes one engine property: either a numeric range or an
// enumeration of values, plus its default.
type PropertyInfo struct {
	Minimum *float64 `json:"minimum,omitempty"`
	Maximum *float64 `json:"maximum,omitempty"`
	Values  []string `json:"values,omitempty"`
	Default any      `json:"default"`
}

// EngineInfo maps property names to their description.
type EngineInfo map[string]PropertyInfo

// Service is the remote rendering service.
type Service interface {
	// Synthesize renders speech and returns where the result is served.
	Synthesize(ctx context.Context, req SynthesisRequest) (Artifact, error)

	// Fetch downloads the resource at url.
	Fetch(ctx context.Context, url string) (Artifact, error)

	// Resolve maps a sound locator to an absolute resource URL.
	Resolve(locator string) string

	// BaseURL returns the server root synthesized artifacts are served from.
	BaseURL() string

	// Engines lists the available speech engines.
	Engines(ctx context.Context) ([]string, error)

	// EngineInfo returns the properties an engine supports. Unknown engines
	// yield ErrNotFound.
	EngineInfo(ctx context.Context, name string) (EngineInfo, error)
}

// Renderer plays artifacts. Render blocks until playback ends or ctx is
// cancelled, in which case it must stop promptly and return ctx.Err().
type Renderer interface {
	Render(ctx context.Context, art Artifact, pb Playback) error
}
