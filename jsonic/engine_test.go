package jsonic

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(DefaultConfig(), nil, newFakeRenderer())
	require.ErrorIs(t, err, ErrInvalidArgument)

	cfg := DefaultConfig()
	cfg.Engine = ""
	_, err = New(cfg, newFakeService(), newFakeRenderer())
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestSayPlay_Validation(t *testing.T) {
	e, _, _ := newTestEngine(t, DefaultConfig())

	h, err := e.Say(SayRequest{Text: ""})
	require.ErrorIs(t, err, ErrInvalidArgument)
	assert.Nil(t, h)

	h, err = e.Say(SayRequest{Text: "too fast", Rate: MaxRate + 1})
	require.ErrorIs(t, err, ErrInvalidArgument)
	assert.Nil(t, h)

	h, err = e.Play(PlayRequest{URL: ""})
	require.ErrorIs(t, err, ErrInvalidArgument)
	assert.Nil(t, h)

	h, err = e.Play(PlayRequest{URL: "sounds/beep", Volume: Float(1.5)})
	require.ErrorIs(t, err, ErrInvalidArgument)
	assert.Nil(t, h)

	var jerr *Error
	require.ErrorAs(t, err, &jerr)
	assert.Equal(t, "play", jerr.Op)
	assert.Equal(t, DefaultChannel, jerr.Channel)

	assert.Empty(t, e.Channels(), "rejected requests must not create channels")
}

func TestSequentialExecution(t *testing.T) {
	say := func(text string) func(*Engine) (*Handle, error) {
		return func(e *Engine) (*Handle, error) { return e.Say(SayRequest{Text: text}) }
	}
	play := func(url string) func(*Engine) (*Handle, error) {
		return func(e *Engine) (*Handle, error) { return e.Play(PlayRequest{URL: url}) }
	}

	cases := []struct {
		name          string
		first, second func(*Engine) (*Handle, error)
	}{
		{"say same text twice", say("one"), say("one")},
		{"say two texts", say("one"), say("two")},
		{"say then play", say("one"), play("sounds/beep")},
		{"play then say", play("sounds/beep"), say("one")},
		{"play same sound twice", play("sounds/beep"), play("sounds/beep")},
		{"play two sounds", play("sounds/beep"), play("sounds/chime")},
	}

	for _, caching := range []bool{false, true} {
		for _, tc := range cases {
			t.Run(fmt.Sprintf("%s/caching=%t", tc.name, caching), func(t *testing.T) {
				cfg := DefaultConfig()
				cfg.DefaultCaching = caching
				e, _, r := newTestEngine(t, cfg)

				blocker := hold(t, e, DefaultChannel)

				h1, err := tc.first(e)
				require.NoError(t, err)
				h2, err := tc.second(e)
				require.NoError(t, err)

				rec := &recorder{}
				rec.track(h1, "1")
				rec.track(h2, "2")

				close(r.release)
				waitDone(t, blocker, h1, h2)

				assert.Equal(t, []string{
					"before:1", "after:1:true",
					"before:2", "after:2:true",
				}, rec.snapshot())
				assert.Equal(t, Completed, h1.Outcome())
				assert.Equal(t, Completed, h2.Outcome())
			})
		}
	}
}

func TestChannelsRunIndependently(t *testing.T) {
	e, _, r := newTestEngine(t, DefaultConfig())

	blocker := hold(t, e, DefaultChannel)
	queued, err := e.Say(SayRequest{Text: "behind the blocker"})
	require.NoError(t, err)

	other, err := e.Say(SayRequest{Text: "simultaneous", Channel: "second", Voice: "default+f1"})
	require.NoError(t, err)

	waitDone(t, other)
	assert.Equal(t, Completed, other.Outcome())
	assert.Equal(t, Pending, queued.Outcome())

	close(r.release)
	waitDone(t, blocker, queued)
	assert.ElementsMatch(t, []string{DefaultChannel, "second"}, e.Channels())
}

func TestCachedSayResolvesOnce(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultCaching = true
	e, svc, r := newTestEngine(t, cfg)

	h1, err := e.Say(SayRequest{Text: "cached"})
	require.NoError(t, err)
	h2, err := e.Say(SayRequest{Text: "cached"})
	require.NoError(t, err)
	waitDone(t, h1, h2)

	assert.Equal(t, 1, svc.synthCount())
	calls := r.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, calls[0].art, calls[1].art)

	stats := e.CacheStats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, int64(1), stats.Hits)
}

func TestCachedSayAcrossChannelsCoalesces(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultCaching = true
	e, svc, _ := newTestEngine(t, cfg)
	svc.synthDelay = 30 * time.Millisecond

	var handles []*Handle
	for i := 0; i < 4; i++ {
		h, err := e.Say(SayRequest{Text: "same words", Channel: fmt.Sprintf("ch%d", i)})
		require.NoError(t, err)
		handles = append(handles, h)
	}
	waitDone(t, handles...)

	assert.Equal(t, 1, svc.synthCount())
}

func TestUncachedSaySynthesizesEveryTime(t *testing.T) {
	e, svc, _ := newTestEngine(t, DefaultConfig())

	h1, err := e.Say(SayRequest{Text: "fresh"})
	require.NoError(t, err)
	h2, err := e.Say(SayRequest{Text: "fresh"})
	require.NoError(t, err)
	waitDone(t, h1, h2)

	assert.Equal(t, 2, svc.synthCount())
	assert.Zero(t, e.CacheStats().Entries)
}

func TestPlayCaching(t *testing.T) {
	e, svc, r := newTestEngine(t, DefaultConfig())

	h1, err := e.Play(PlayRequest{URL: "sounds/beep", Cache: Bool(true)})
	require.NoError(t, err)
	h2, err := e.Play(PlayRequest{URL: "sounds/beep", Cache: Bool(true), Volume: Float(0.1)})
	require.NoError(t, err)
	h3, err := e.Play(PlayRequest{URL: "sounds/beep"})
	require.NoError(t, err)
	waitDone(t, h1, h2, h3)

	assert.Equal(t, 1, svc.fetchCount(), "volume is not part of the fingerprint")

	calls := r.calls()
	require.Len(t, calls, 3)
	assert.NotEmpty(t, calls[0].art.Data)
	assert.Equal(t, 0.1, calls[1].pb.Volume)
	assert.Equal(t, "http://jsonic.test/sounds/beep", calls[2].art.URL)
	assert.Empty(t, calls[2].art.Data, "uncached play streams from the url")
}

func TestStopCancelsChannel(t *testing.T) {
	e, _, _ := newTestEngine(t, DefaultConfig())

	rec := &recorder{}
	started := make(chan struct{})
	running := hold(t, e, DefaultChannel).OnBefore(func() { close(started) })
	rec.track(running, "running")

	q1, err := e.Say(SayRequest{Text: "queued one"})
	require.NoError(t, err)
	rec.track(q1, "q1")
	q2, err := e.Play(PlayRequest{URL: "sounds/beep"})
	require.NoError(t, err)
	rec.track(q2, "q2")

	other := hold(t, e, "second")

	<-started
	e.Stop(ChannelRequest{Channel: DefaultChannel})
	waitDone(t, running, q1, q2)

	for _, h := range []*Handle{running, q1, q2} {
		assert.Equal(t, Cancelled, h.Outcome())
		assert.ErrorIs(t, h.Err(), ErrStopped)
	}
	assert.Equal(t, []string{
		"before:running",
		"after:running:false",
		"after:q1:false",
		"after:q2:false",
	}, rec.snapshot())

	// The other channel is unaffected
	select {
	case <-other.Done():
		t.Fatal("stop leaked into another channel")
	case <-time.After(20 * time.Millisecond):
	}

	// The stopped channel accepts new work
	next, err := e.Say(SayRequest{Text: "after stop"})
	require.NoError(t, err)
	waitDone(t, next)
	assert.Equal(t, Completed, next.Outcome())
}

func TestStopAllChannels(t *testing.T) {
	e, _, _ := newTestEngine(t, DefaultConfig())

	a := hold(t, e, "a")
	b := hold(t, e, "b")
	loop, err := e.Play(PlayRequest{URL: "sounds/loop", Channel: "c", Loop: Bool(true)})
	require.NoError(t, err)

	e.Stop(ChannelRequest{})
	waitDone(t, a, b, loop)

	for _, h := range []*Handle{a, b, loop} {
		assert.Equal(t, Cancelled, h.Outcome())
	}
}

func TestPropertiesBindAtExecuteTime(t *testing.T) {
	e, svc, r := newTestEngine(t, DefaultConfig())

	blocker := hold(t, e, DefaultChannel)

	// Queued before the property changes, executed after them
	first, err := e.Say(SayRequest{Text: "first"})
	require.NoError(t, err)
	require.NoError(t, e.SetProperty(PropertyRequest{Name: PropRate, Value: 350, Channel: DefaultChannel}))

	second, err := e.Say(SayRequest{Text: "second"})
	require.NoError(t, err)
	first.OnAfter(func(bool) { e.Reset(ChannelRequest{Channel: DefaultChannel}) })

	close(r.release)
	waitDone(t, blocker, first, second)

	svc.mu.Lock()
	defer svc.mu.Unlock()
	rates := map[string]int{}
	for _, req := range svc.synth {
		rates[req.Text] = req.Rate
	}
	assert.Equal(t, 350, rates["first"])
	assert.Equal(t, 200, rates["second"], "reset ran before second started")
}

func TestPerRequestOverrides(t *testing.T) {
	e, svc, r := newTestEngine(t, DefaultConfig())

	h, err := e.Say(SayRequest{Text: "override", Voice: "default+f1", Rate: 150})
	require.NoError(t, err)
	p, err := e.Play(PlayRequest{URL: "sounds/beep", Volume: Float(0.1), Loop: Bool(false)})
	require.NoError(t, err)
	waitDone(t, h, p)

	svc.mu.Lock()
	req := svc.synth[0]
	svc.mu.Unlock()
	assert.Equal(t, "default+f1", req.Voice)
	assert.Equal(t, 150, req.Rate)

	calls := r.calls()
	assert.Equal(t, 0.1, calls[1].pb.Volume)

	// Overrides do not stick to the channel
	assert.Equal(t, DefaultProperties(), e.Properties(DefaultChannel))
}

func TestSetProperty(t *testing.T) {
	e, _, _ := newTestEngine(t, DefaultConfig())

	require.NoError(t, e.SetProperty(PropertyRequest{Name: PropVolume, Value: "0.25", Channel: "second"}))
	assert.Equal(t, 0.25, e.Properties("second").Volume)
	assert.Equal(t, 1.0, e.Properties(DefaultChannel).Volume)

	// Unscoped changes reach existing channels and future ones
	require.NoError(t, e.SetProperty(PropertyRequest{Name: PropRate, Value: 150}))
	assert.Equal(t, 150, e.Properties("second").Rate)
	assert.Equal(t, 0.25, e.Properties("second").Volume)
	assert.Equal(t, 150, e.Properties("later").Rate)

	err := e.SetProperty(PropertyRequest{Name: "tempo", Value: 1})
	require.ErrorIs(t, err, ErrInvalidArgument)

	err = e.SetProperty(PropertyRequest{Name: PropPitch, Value: "high"})
	require.ErrorIs(t, err, ErrInvalidArgument)
	assert.Equal(t, 0.5, e.Properties(DefaultChannel).Pitch)

	for _, rate := range []any{1e300, math.Inf(1), MaxRate + 1} {
		err = e.SetProperty(PropertyRequest{Name: PropRate, Value: rate})
		require.ErrorIs(t, err, ErrInvalidArgument, "rate %v", rate)
	}
	assert.Equal(t, 150, e.Properties(DefaultChannel).Rate)

	e.Reset(ChannelRequest{Channel: "second"})
	assert.Equal(t, DefaultProperties(), e.Properties("second"))
	assert.Equal(t, 150, e.Properties("later").Rate)

	e.Reset(ChannelRequest{})
	assert.Equal(t, DefaultProperties(), e.Properties("later"))
}

func TestObservers(t *testing.T) {
	e, _, _ := newTestEngine(t, DefaultConfig())

	var mu sync.Mutex
	var seen []string
	remove := e.AddObserver(func(n Notice) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, n.Name())
	})
	// A panicking observer does not break the engine
	e.AddObserver(func(Notice) { panic("observer bug") })

	h1, err := e.Say(SayRequest{Text: "observed"})
	require.NoError(t, err)
	h2, err := e.Play(PlayRequest{URL: "sounds/beep"})
	require.NoError(t, err)
	waitDone(t, h1, h2)

	mu.Lock()
	assert.Equal(t, []string{"started-say", "finished-say", "started-play", "finished-play"}, seen)
	mu.Unlock()

	remove()
	remove()
	h3, err := e.Say(SayRequest{Text: "unobserved"})
	require.NoError(t, err)
	waitDone(t, h3)

	mu.Lock()
	assert.Len(t, seen, 4)
	mu.Unlock()
}

func TestObserverNoticeCarriesBoundProperties(t *testing.T) {
	e, _, _ := newTestEngine(t, DefaultConfig())
	require.NoError(t, e.SetProperty(PropertyRequest{Name: PropVoice, Value: "en-us", Channel: DefaultChannel}))

	notices := make(chan Notice, 4)
	e.AddObserver(func(n Notice) { notices <- n })

	h, err := e.Say(SayRequest{Text: "hello"})
	require.NoError(t, err)
	waitDone(t, h)

	start, end := <-notices, <-notices
	assert.Equal(t, PhaseStarted, start.Phase)
	assert.Equal(t, "en-us", start.Properties.Voice)
	assert.Equal(t, h.ID(), start.HandleID)
	assert.Equal(t, PhaseFinished, end.Phase)
	assert.True(t, end.Completed)
	assert.NoError(t, end.Err)
}

func TestLateCallbackRegistration(t *testing.T) {
	e, _, _ := newTestEngine(t, DefaultConfig())

	h, err := e.Say(SayRequest{Text: "quick"})
	require.NoError(t, err)
	waitDone(t, h)

	rec := &recorder{}
	rec.track(h, "late")
	assert.Equal(t, []string{"before:late", "after:late:true"}, rec.snapshot())

	outcome, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Completed, outcome)
}

func TestRemoteFailureCancelsAndContinues(t *testing.T) {
	e, svc, _ := newTestEngine(t, DefaultConfig())
	svc.setSynthErr(fmt.Errorf("%w: connection refused", ErrRemoteUnavailable))

	failed, err := e.Say(SayRequest{Text: "unlucky", Cache: Bool(true)})
	require.NoError(t, err)
	next, err := e.Play(PlayRequest{URL: "sounds/beep"})
	require.NoError(t, err)
	waitDone(t, failed, next)

	assert.Equal(t, Cancelled, failed.Outcome())
	assert.True(t, IsRemoteError(failed.Err()))
	assert.Equal(t, Completed, next.Outcome())
	assert.Zero(t, e.CacheStats().Entries, "failed resolutions are not cached")

	svc.setSynthErr(nil)
	retry, err := e.Say(SayRequest{Text: "unlucky", Cache: Bool(true)})
	require.NoError(t, err)
	waitDone(t, retry)
	assert.Equal(t, Completed, retry.Outcome())
	assert.Equal(t, 2, svc.synthCount())
}

func TestDiscovery(t *testing.T) {
	e, _, _ := newTestEngine(t, DefaultConfig())
	ctx := context.Background()

	names, err := e.GetEngines(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"espeak"}, names)

	info, err := e.GetEngineInfo(ctx, "espeak")
	require.NoError(t, err)
	require.Contains(t, info, "rate")
	assert.Equal(t, 390.0, *info["rate"].Maximum)

	_, err = e.GetEngineInfo(ctx, "nonexistent")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = e.GetEngineInfo(ctx, "")
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestPrefetch(t *testing.T) {
	e, svc, _ := newTestEngine(t, DefaultConfig())
	ctx := context.Background()

	require.NoError(t, e.Prefetch(ctx, SayRequest{Text: "warm"}))
	assert.Equal(t, 1, svc.synthCount())

	h, err := e.Say(SayRequest{Text: "warm", Cache: Bool(true)})
	require.NoError(t, err)
	waitDone(t, h)
	assert.Equal(t, 1, svc.synthCount())

	require.ErrorIs(t, e.Prefetch(ctx, SayRequest{}), ErrInvalidArgument)
}

func TestLoopingPlayRunsUntilStopped(t *testing.T) {
	e, _, _ := newTestEngine(t, DefaultConfig())

	started := make(chan struct{})
	h, err := e.Play(PlayRequest{URL: "sounds/loop", Loop: Bool(true)})
	require.NoError(t, err)
	h.OnBefore(func() { close(started) })

	<-started
	select {
	case <-h.Done():
		t.Fatal("looping playback ended on its own")
	case <-time.After(20 * time.Millisecond):
	}

	e.Reset(ChannelRequest{Channel: DefaultChannel})
	e.Stop(ChannelRequest{Channel: DefaultChannel})
	waitDone(t, h)
	assert.Equal(t, Cancelled, h.Outcome())
}

func TestClose(t *testing.T) {
	e, _, _ := newTestEngine(t, DefaultConfig())

	h := hold(t, e, DefaultChannel)
	require.NoError(t, e.Close(context.Background()))
	waitDone(t, h)
	assert.Equal(t, Cancelled, h.Outcome())

	_, err := e.Say(SayRequest{Text: "too late"})
	require.ErrorIs(t, err, ErrEngineClosed)
	require.ErrorIs(t, e.Close(context.Background()), ErrEngineClosed)
	require.ErrorIs(t, e.SetProperty(PropertyRequest{Name: PropRate, Value: 100}), ErrEngineClosed)
}

func TestCacheSnapshotSurvivesRestart(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultCaching = true
	cfg.CacheSnapshot = filepath.Join(t.TempDir(), "jsonic.cache")

	svc := newFakeService()
	e, err := New(cfg, svc, newFakeRenderer())
	require.NoError(t, err)
	h, err := e.Say(SayRequest{Text: "remember me"})
	require.NoError(t, err)
	waitDone(t, h)
	require.NoError(t, e.Close(context.Background()))

	svc2 := newFakeService()
	e2, err := New(cfg, svc2, newFakeRenderer())
	require.NoError(t, err)
	defer e2.Close(context.Background())

	h2, err := e2.Say(SayRequest{Text: "remember me"})
	require.NoError(t, err)
	waitDone(t, h2)
	assert.Zero(t, svc2.synthCount())
	assert.NoError(t, h2.Err())
}

func TestCachedSayIsKeyedByServer(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultCaching = true
	cfg.CacheSnapshot = filepath.Join(t.TempDir(), "jsonic.cache")

	oldSvc := newFakeService()
	oldSvc.origin = "http://old-server/"
	e, err := New(cfg, oldSvc, newFakeRenderer())
	require.NoError(t, err)
	h, err := e.Say(SayRequest{Text: "hello"})
	require.NoError(t, err)
	waitDone(t, h)
	require.NoError(t, e.Close(context.Background()))

	newSvc := newFakeService()
	newSvc.origin = "http://new-server/"
	r := newFakeRenderer()
	e2, err := New(cfg, newSvc, r)
	require.NoError(t, err)
	defer e2.Close(context.Background())

	h2, err := e2.Say(SayRequest{Text: "hello"})
	require.NoError(t, err)
	waitDone(t, h2)

	assert.Equal(t, 1, newSvc.synthCount())
	calls := r.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "http://new-server/synth/default/200/hello", calls[0].art.URL)
}

func TestFailedRenderDropsCachedArtifact(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DefaultCaching = true
	e, svc, r := newTestEngine(t, cfg)

	h, err := e.Say(SayRequest{Text: "hello"})
	require.NoError(t, err)
	waitDone(t, h)
	require.Equal(t, 1, svc.synthCount())

	url := r.calls()[0].art.URL
	r.setMissing(url, true)

	failed, err := e.Say(SayRequest{Text: "hello"})
	require.NoError(t, err)
	waitDone(t, failed)
	assert.Equal(t, Cancelled, failed.Outcome())
	assert.ErrorIs(t, failed.Err(), ErrRemoteUnavailable)
	assert.Equal(t, 1, svc.synthCount(), "the stale artifact came from the cache")
	assert.Zero(t, e.CacheStats().Entries)

	r.setMissing(url, false)
	again, err := e.Say(SayRequest{Text: "hello"})
	require.NoError(t, err)
	waitDone(t, again)
	assert.Equal(t, Completed, again.Outcome())
	assert.Equal(t, 2, svc.synthCount())
}

func TestObserversNeverOverlapWhenStoppedDuringEnd(t *testing.T) {
	e, _, _ := newTestEngine(t, DefaultConfig())

	var (
		mu      sync.Mutex
		events  []string
		inside  int
		overlap bool
	)
	ending := make(chan struct{})
	e.AddObserver(func(n Notice) {
		mu.Lock()
		inside++
		if inside > 1 {
			overlap = true
		}
		events = append(events, fmt.Sprintf("%s:%s:%t", n.Name(), n.Text, n.Completed))
		mu.Unlock()

		if n.Phase == PhaseFinished && n.Text == "A" {
			close(ending)
			time.Sleep(50 * time.Millisecond)
		}

		mu.Lock()
		inside--
		mu.Unlock()
	})

	a, err := e.Say(SayRequest{Text: "A"})
	require.NoError(t, err)
	b, err := e.Say(SayRequest{Text: "B"})
	require.NoError(t, err)

	<-ending
	e.Stop(ChannelRequest{Channel: DefaultChannel})
	waitDone(t, a, b)

	assert.Equal(t, Completed, a.Outcome())
	assert.Equal(t, Cancelled, b.Outcome())

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, overlap, "notices of one channel overlapped")
	require.Len(t, events, 3)
	assert.Contains(t, events[1], ":A:true")
	assert.Contains(t, events[2], ":B:false")
}
