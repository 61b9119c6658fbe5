package jsonic

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/muesli/reflow/truncate"
	"go.opentelemetry.io/otel/trace"

	"github.com/dgnsrekt/jsonic/internal/cache"
)

// start runs on the channel worker when a descriptor leaves the backlog.
func (e *Engine) start(d *descriptor) {
	d.props = e.bind(d)

	e.logger.Debug("started", "action", d.kind, "channel", d.channel, "handle", d.handle.ID(),
		"text", truncate.StringWithTail(d.text, 40, "…"), "url", d.url)

	d.handle.fireBefore()
	e.observers.notify(d.notice(PhaseStarted))
}

// run resolves the descriptor's artifact and renders it.
func (e *Engine) run(ctx context.Context, d *descriptor) error {
	ctx, span := tracer.Start(ctx, "jsonic."+d.kind.String(),
		trace.WithAttributes(descriptorAttributes(d)...))

	var (
		art Artifact
		key string
		err error
	)
	switch d.kind {
	case KindSay:
		art, key, err = e.resolveSay(ctx, d)
	case KindPlay:
		art, key, err = e.resolvePlay(ctx, d)
	default:
		err = fmt.Errorf("%w: %s cannot be queued", ErrInvalidArgument, d.kind)
	}
	if err == nil {
		pb := d.props.Playback()
		if d.kind == KindSay {
			pb.Loop = false
		}
		err = e.renderer.Render(ctx, art, pb)
		if err != nil && key != "" && ctx.Err() == nil {
			// The stored artifact may be gone from the server
			e.cache.Delete(key)
			e.logger.Debug("cached artifact dropped", "channel", d.channel, "url", art.URL, "err", err)
		}
	}

	endSpan(span, err)
	return err
}

// end runs once per descriptor, on the worker or on the goroutine that
// stopped the channel.
func (e *Engine) end(d *descriptor, err error) {
	outcome := Completed
	if err != nil {
		outcome = Cancelled
		if errors.Is(err, context.Canceled) {
			err = ErrStopped
		}
	}

	switch {
	case err == nil:
		e.logger.Debug("finished", "action", d.kind, "channel", d.channel, "handle", d.handle.ID())
	case errors.Is(err, ErrStopped):
		e.logger.Debug("cancelled", "action", d.kind, "channel", d.channel, "handle", d.handle.ID())
	default:
		e.logger.Warn("request failed", "action", d.kind, "channel", d.channel, "handle", d.handle.ID(), "err", err)
	}

	n := d.notice(PhaseFinished)
	n.Completed = outcome == Completed
	if err != nil {
		err = newError(d.kind.String(), d.channel, err)
		n.Err = err
	}
	e.observers.notify(n)
	d.handle.fireAfter(outcome, err)
}

// resolveSay returns the synthesized artifact and, when it is cached, its
// fingerprint.
func (e *Engine) resolveSay(ctx context.Context, d *descriptor) (Artifact, string, error) {
	req := SynthesisRequest{
		Engine: e.config.Engine,
		Text:   d.text,
		Voice:  d.props.Voice,
		Rate:   d.props.Rate,
		Pitch:  d.props.Pitch,
	}
	if !d.cache {
		art, err := e.service.Synthesize(ctx, req)
		return art, "", err
	}

	// Synthesized files live on the server that rendered them
	key := cache.GenerateKey("say", e.service.BaseURL(), req.Engine, req.Voice,
		strconv.Itoa(req.Rate), strconv.FormatFloat(req.Pitch, 'f', -1, 64), req.Text)
	art, hit, err := e.cache.Resolve(ctx, key, func(ctx context.Context) (Artifact, error) {
		return e.service.Synthesize(ctx, req)
	})
	if err != nil {
		return art, "", err
	}
	e.logger.Debug("say resolved", "channel", d.channel, "hit", hit)
	return art, key, nil
}

func (e *Engine) resolvePlay(ctx context.Context, d *descriptor) (Artifact, string, error) {
	url := e.service.Resolve(d.url)
	if !d.cache {
		return Artifact{URL: url}, "", nil
	}

	key := cache.GenerateKey("play", url)
	art, hit, err := e.cache.Resolve(ctx, key, func(ctx context.Context) (Artifact, error) {
		return e.service.Fetch(ctx, url)
	})
	if err != nil {
		return art, "", err
	}
	e.logger.Debug("play resolved", "channel", d.channel, "hit", hit)
	return art, key, nil
}
