package jsonic

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeService synthesizes "<origin>synth/<voice>/<rate>/<text>" URLs and
// serves fetched sounds as their own URL bytes.
type fakeService struct {
	origin string

	mu         sync.Mutex
	synth      []SynthesisRequest
	fetches    []string
	synthErr   error
	synthDelay time.Duration
	engines    map[string]EngineInfo
}

func newFakeService() *fakeService {
	minRate, maxRate := 80.0, 390.0
	return &fakeService{
		origin: "http://jsonic.test/",
		engines: map[string]EngineInfo{
			"espeak": {
				"rate":  {Minimum: &minRate, Maximum: &maxRate, Default: 200.0},
				"voice": {Values: []string{"default", "default+f1"}, Default: "default"},
			},
		},
	}
}

func (s *fakeService) Synthesize(ctx context.Context, req SynthesisRequest) (Artifact, error) {
	s.mu.Lock()
	s.synth = append(s.synth, req)
	err, delay := s.synthErr, s.synthDelay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return Artifact{}, ctx.Err()
		}
	}
	if err != nil {
		return Artifact{}, err
	}
	return Artifact{URL: fmt.Sprintf("%ssynth/%s/%d/%s", s.origin, req.Voice, req.Rate, req.Text)}, nil
}

func (s *fakeService) Fetch(ctx context.Context, url string) (Artifact, error) {
	s.mu.Lock()
	s.fetches = append(s.fetches, url)
	s.mu.Unlock()
	return Artifact{URL: url, Data: []byte(url)}, nil
}

func (s *fakeService) Resolve(locator string) string {
	if strings.HasPrefix(locator, "http") {
		return locator
	}
	return s.origin + locator
}

func (s *fakeService) BaseURL() string {
	return s.origin
}

func (s *fakeService) Engines(ctx context.Context) ([]string, error) {
	return []string{"espeak"}, nil
}

func (s *fakeService) EngineInfo(ctx context.Context, name string) (EngineInfo, error) {
	info, ok := s.engines[name]
	if !ok {
		return nil, fmt.Errorf("%w: engine %s", ErrNotFound, name)
	}
	return info, nil
}

func (s *fakeService) synthCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.synth)
}

func (s *fakeService) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fetches)
}

func (s *fakeService) setSynthErr(err error) {
	s.mu.Lock()
	s.synthErr = err
	s.mu.Unlock()
}

// fakeRenderer renders for a fixed duration. Artifacts whose URL contains
// "hold" block until release is closed; looping playback blocks until
// cancelled. URLs marked with setMissing fail as if the server lost them.
type fakeRenderer struct {
	duration time.Duration
	release  chan struct{}

	mu       sync.Mutex
	rendered []renderCall
	missing  map[string]bool
}

type renderCall struct {
	art Artifact
	pb  Playback
}

func newFakeRenderer() *fakeRenderer {
	return &fakeRenderer{
		duration: 5 * time.Millisecond,
		release:  make(chan struct{}),
	}
}

func (r *fakeRenderer) Render(ctx context.Context, art Artifact, pb Playback) error {
	r.mu.Lock()
	r.rendered = append(r.rendered, renderCall{art: art, pb: pb})
	missing := r.missing[art.URL]
	r.mu.Unlock()

	if missing {
		return fmt.Errorf("%w: %s not found", ErrRemoteUnavailable, art.URL)
	}

	switch {
	case strings.Contains(art.URL, "hold"):
		select {
		case <-r.release:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	case pb.Loop:
		<-ctx.Done()
		return ctx.Err()
	}

	select {
	case <-time.After(r.duration):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *fakeRenderer) setMissing(url string, missing bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.missing == nil {
		r.missing = make(map[string]bool)
	}
	r.missing[url] = missing
}

func (r *fakeRenderer) calls() []renderCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]renderCall(nil), r.rendered...)
}

// recorder collects callback events in order.
type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, fmt.Sprintf(format, args...))
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// track registers before/after callbacks that record under name.
func (r *recorder) track(h *Handle, name string) *Handle {
	return h.
		OnBefore(func() { r.add("before:%s", name) }).
		OnAfter(func(completed bool) { r.add("after:%s:%t", name, completed) })
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, *fakeService, *fakeRenderer) {
	t.Helper()
	svc := newFakeService()
	r := newFakeRenderer()
	e, err := New(cfg, svc, r)
	require.NoError(t, err)
	t.Cleanup(func() {
		select {
		case <-r.release:
		default:
			close(r.release)
		}
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = e.Close(ctx)
	})
	return e, svc, r
}

// hold queues a request that blocks the channel until released.
func hold(t *testing.T, e *Engine, channel string) *Handle {
	t.Helper()
	h, err := e.Say(SayRequest{Text: "hold", Channel: channel, Cache: Bool(false)})
	require.NoError(t, err)
	return h
}

func waitDone(t *testing.T, handles ...*Handle) {
	t.Helper()
	for _, h := range handles {
		select {
		case <-h.Done():
		case <-time.After(2 * time.Second):
			t.Fatalf("handle %s on %s did not finish", h.ID(), h.Channel())
		}
	}
}
