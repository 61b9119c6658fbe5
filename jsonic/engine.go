package jsonic

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dgnsrekt/jsonic/internal/cache"
	"github.com/dgnsrekt/jsonic/internal/queue"
)

// CacheStats reports cache usage.
type CacheStats = cache.Stats

// Engine is the entry point for speech and sound requests.
type Engine struct {
	config   Config
	service  Service
	renderer Renderer
	logger   *log.Logger

	cache     *cache.Cache[Artifact]
	channels  *queue.Mux[*descriptor]
	observers *observers

	mu       sync.RWMutex
	defaults Properties
	base     Properties            // properties of channels without overrides
	props    map[string]Properties // per-channel properties

	defaultCaching atomic.Bool
	closed         atomic.Bool
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used by the engine and its queues.
func WithLogger(logger *log.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an engine that renders through svc and r.
func New(cfg Config, svc Service, r Renderer, opts ...Option) (*Engine, error) {
	if svc == nil || r == nil {
		return nil, fmt.Errorf("%w: service and renderer are required", ErrInvalidArgument)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		config:   cfg,
		service:  svc,
		renderer: r,
		logger:   log.Default(),
		defaults: cfg.Defaults(),
		base:     cfg.Defaults(),
		props:    make(map[string]Properties),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.defaultCaching.Store(cfg.DefaultCaching)
	e.observers = &observers{logger: e.logger}

	cacheCfg := cache.DefaultConfig()
	cacheCfg.MaxEntries = cfg.CacheMaxEntries
	cacheCfg.SnapshotPath = cfg.CacheSnapshot
	e.cache = cache.New[Artifact](cacheCfg, e.logger)

	if cfg.CacheSnapshot != "" {
		n, err := e.cache.Load(cfg.CacheSnapshot)
		if err != nil {
			// A damaged snapshot only costs a cold cache
			e.logger.Warn("could not load cache snapshot", "path", cfg.CacheSnapshot, "err", err)
		} else if n > 0 {
			e.logger.Debug("cache warmed from snapshot", "entries", n)
		}
	}

	e.channels = queue.NewMux(queue.Hooks[*descriptor]{
		Start: e.start,
		Run:   e.run,
		End:   e.end,
	}, e.logger)

	return e, nil
}

// Say queues text to be spoken on the request's channel.
func (e *Engine) Say(req SayRequest) (*Handle, error) {
	channel := channelName(req.Channel)
	if req.Text == "" {
		return nil, invalidArgument("say", channel, "text must not be empty")
	}
	if req.Rate < 0 || req.Rate > MaxRate {
		return nil, invalidArgument("say", channel, "rate must be within (0, %d], got %d", MaxRate, req.Rate)
	}

	return e.enqueue(&descriptor{
		kind:    KindSay,
		channel: channel,
		text:    req.Text,
		cache:   e.caching(req.Cache),
		voice:   req.Voice,
		rate:    req.Rate,
	})
}

// Play queues a sound to be played on the request's channel.
func (e *Engine) Play(req PlayRequest) (*Handle, error) {
	channel := channelName(req.Channel)
	if req.URL == "" {
		return nil, invalidArgument("play", channel, "url must not be empty")
	}
	if req.Volume != nil && (*req.Volume < 0 || *req.Volume > 1) {
		return nil, invalidArgument("play", channel, "volume must be within [0, 1], got %v", *req.Volume)
	}

	return e.enqueue(&descriptor{
		kind:    KindPlay,
		channel: channel,
		url:     req.URL,
		cache:   e.caching(req.Cache),
		volume:  req.Volume,
		loop:    req.Loop,
	})
}

// SetProperty changes a property of one channel, or of every channel when
// the request names none. Requests that already started keep the values
// they were bound with.
func (e *Engine) SetProperty(req PropertyRequest) error {
	if e.closed.Load() {
		return newError("setProperty", req.Channel, ErrEngineClosed)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if req.Channel == "" {
		base := e.base
		if err := base.Set(req.Name, req.Value); err != nil {
			return newError("setProperty", "", err)
		}
		e.base = base
		for name, p := range e.props {
			_ = p.Set(req.Name, req.Value)
			e.props[name] = p
		}
		e.logger.Debug("property set", "name", req.Name, "value", req.Value, "channel", "*")
		return nil
	}

	p := e.channelProperties(req.Channel)
	if err := p.Set(req.Name, req.Value); err != nil {
		return newError("setProperty", req.Channel, err)
	}
	e.props[req.Channel] = p
	e.logger.Debug("property set", "name", req.Name, "value", req.Value, "channel", req.Channel)
	return nil
}

// Reset restores the configured defaults of one channel, or of every
// channel when the request names none.
func (e *Engine) Reset(req ChannelRequest) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if req.Channel == "" {
		e.base = e.defaults
		clear(e.props)
		e.logger.Debug("properties reset", "channel", "*")
		return
	}
	e.props[req.Channel] = e.defaults
	e.logger.Debug("properties reset", "channel", req.Channel)
}

// Stop cancels the executing request and discards the queued ones on one
// channel, or on every channel when the request names none.
func (e *Engine) Stop(req ChannelRequest) {
	var n int
	if req.Channel == "" {
		n = e.channels.StopAll()
	} else {
		n = e.channels.Stop(req.Channel)
	}
	e.logger.Debug("stop", "channel", req.Channel, "cancelled", n)
}

// Properties returns the current properties of a channel.
func (e *Engine) Properties(channel string) Properties {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.channelProperties(channelName(channel))
}

// Channels lists the channels that received requests so far.
func (e *Engine) Channels() []string {
	return e.channels.Names()
}

// SetDefaultCaching changes the caching flag used by requests that do not
// set Cache. Requests already queued keep their flag.
func (e *Engine) SetDefaultCaching(enabled bool) {
	e.defaultCaching.Store(enabled)
}

// AddObserver registers fn for every notice on every channel. The returned
// func removes this registration.
func (e *Engine) AddObserver(fn Observer) func() {
	if fn == nil {
		return func() {}
	}
	return e.observers.add(fn)
}

// GetEngines lists the speech engines of the rendering service.
func (e *Engine) GetEngines(ctx context.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "jsonic.GetEngines")
	names, err := e.service.Engines(ctx)
	endSpan(span, err)
	if err != nil {
		return nil, newError("engines", "", err)
	}
	return names, nil
}

// GetEngineInfo describes the properties supported by an engine.
func (e *Engine) GetEngineInfo(ctx context.Context, name string) (EngineInfo, error) {
	if name == "" {
		return nil, invalidArgument("engineInfo", "", "engine name must not be empty")
	}

	ctx, span := tracer.Start(ctx, "jsonic.GetEngineInfo",
		trace.WithAttributes(attribute.String("jsonic.engine", name)))
	info, err := e.service.EngineInfo(ctx, name)
	endSpan(span, err)
	if err != nil {
		return nil, newError("engineInfo", "", err)
	}
	return info, nil
}

// Prefetch synthesizes a Say request into the cache without queueing it,
// using the current properties of its channel.
func (e *Engine) Prefetch(ctx context.Context, req SayRequest) error {
	channel := channelName(req.Channel)
	if req.Text == "" {
		return invalidArgument("prefetch", channel, "text must not be empty")
	}
	if e.closed.Load() {
		return newError("prefetch", channel, ErrEngineClosed)
	}

	d := &descriptor{
		kind:    KindSay,
		channel: channel,
		text:    req.Text,
		cache:   true,
		voice:   req.Voice,
		rate:    req.Rate,
	}
	d.props = e.bind(d)

	if _, _, err := e.resolveSay(ctx, d); err != nil {
		return newError("prefetch", channel, err)
	}
	return nil
}

// SnapshotInfo describes a saved cache snapshot.
type SnapshotInfo = cache.SnapshotInfo

// InspectSnapshot reads the snapshot at path without loading it into an
// engine.
func InspectSnapshot(path string) (SnapshotInfo, error) {
	return cache.InspectSnapshot[Artifact](path)
}

// CacheStats returns cache statistics.
func (e *Engine) CacheStats() CacheStats {
	return e.cache.Stats()
}

// Close stops every channel, waits for the workers to exit and saves the
// cache snapshot when one is configured. Close must not be called from a
// callback or an observer.
func (e *Engine) Close(ctx context.Context) error {
	if !e.closed.CompareAndSwap(false, true) {
		return ErrEngineClosed
	}

	var errs []error
	if err := e.channels.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	if e.config.CacheSnapshot != "" {
		if err := e.cache.Save(e.config.CacheSnapshot); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) enqueue(d *descriptor) (*Handle, error) {
	op := d.kind.String()
	if e.closed.Load() {
		return nil, newError(op, d.channel, ErrEngineClosed)
	}

	d.handle = newHandle(d.kind, d.channel)
	if err := e.channels.Enqueue(d.channel, d); err != nil {
		if errors.Is(err, queue.ErrClosed) {
			err = ErrEngineClosed
		}
		return nil, newError(op, d.channel, err)
	}

	e.logger.Debug("queued", "action", op, "channel", d.channel, "handle", d.handle.ID(), "cache", d.cache)
	return d.handle, nil
}

func (e *Engine) caching(flag *bool) bool {
	if flag != nil {
		return *flag
	}
	return e.defaultCaching.Load()
}

// channelProperties must be called with e.mu held.
func (e *Engine) channelProperties(channel string) Properties {
	if p, ok := e.props[channel]; ok {
		return p
	}
	return e.base
}

// bind captures the properties a descriptor executes with.
func (e *Engine) bind(d *descriptor) Properties {
	e.mu.RLock()
	p := e.channelProperties(d.channel)
	e.mu.RUnlock()

	if d.voice != "" {
		p.Voice = d.voice
	}
	if d.rate > 0 {
		p.Rate = d.rate
	}
	if d.volume != nil {
		p.Volume = *d.volume
	}
	if d.loop != nil {
		p.Loop = *d.loop
	}
	return p
}
