package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

var (
	// ErrStopped is the end error of entries cancelled by Stop
	ErrStopped = errors.New("stopped")

	// ErrClosed is returned when operations are attempted on a closed queue
	ErrClosed = errors.New("queue is closed")
)

// Hooks are invoked by the channel worker for every entry.
//
// Start fires when an entry leaves the backlog and begins executing. Run is
// the blocking body of the entry and must return once ctx is cancelled. End
// fires exactly once per entry with the run error, nil meaning completed. For
// entries cancelled by Stop, End receives ErrStopped and may run on the
// goroutine that called Stop. End hooks of one channel never overlap and
// fire in queue order.
type Hooks[T any] struct {
	Start func(item T)
	Run   func(ctx context.Context, item T) error
	End   func(item T, err error)
}

type entryState int

const (
	stateQueued entryState = iota
	stateStarting
	stateRunning
	stateEnded
)

type entry[T any] struct {
	item     T
	state    entryState
	stopped  bool
	err      error
	cancel   context.CancelFunc
	enqueued time.Time

	// backlog discarded while this entry was starting, ended after it
	discarded []*entry[T]
}

// Stats tracks channel metrics
type Stats struct {
	TotalEnqueued  int64
	TotalCompleted int64
	TotalFailed    int64
	TotalCancelled int64
	CurrentSize    int
	PeakSize       int
	Busy           bool
	LastEnqueue    time.Time
	LastStart      time.Time
	AverageWait    time.Duration
}

// Channel executes entries one at a time in the order they were enqueued.
// The next entry starts only after the End hook of the previous one returned.
type Channel[T any] struct {
	name   string
	hooks  Hooks[T]
	logger *log.Logger

	mu       sync.Mutex
	ready    *sync.Cond
	pending  []*entry[T]
	current  *entry[T]
	closed   bool

	// ending is set while a goroutine fires End hooks; entries ended
	// meanwhile wait in endq for that goroutine
	ending bool
	endq   []*entry[T]

	stats    Stats
	waited   time.Duration
	started  int64

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewChannel creates a channel and starts its worker.
func NewChannel[T any](name string, hooks Hooks[T], logger *log.Logger) *Channel[T] {
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Channel[T]{
		name:   name,
		hooks:  hooks,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	c.ready = sync.NewCond(&c.mu)
	go c.loop()
	return c
}

// Name returns the channel identifier.
func (c *Channel[T]) Name() string {
	return c.name
}

// Enqueue appends an item to the backlog.
func (c *Channel[T]) Enqueue(item T) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}

	now := time.Now()
	c.pending = append(c.pending, &entry[T]{item: item, enqueued: now})

	c.stats.TotalEnqueued++
	c.stats.LastEnqueue = now
	if len(c.pending) > c.stats.PeakSize {
		c.stats.PeakSize = len(c.pending)
	}

	// Signal that the backlog is not empty
	c.ready.Signal()
	return nil
}

// Stop cancels the executing entry and discards the backlog. End hooks of
// the affected entries fire with ErrStopped, in queue order, before Stop
// returns. The exception is a channel that is already firing hooks, because
// an entry is starting or ending: the affected entries then end on that
// goroutine right after the hooks in flight. Returns the number of entries
// cancelled.
func (c *Channel[T]) Stop() int {
	c.mu.Lock()
	discarded := c.pending
	c.pending = nil

	var batch []*entry[T]
	cancelled := len(discarded)
	if cur := c.current; cur != nil {
		switch cur.state {
		case stateStarting:
			if !cur.stopped {
				cur.stopped = true
				cur.cancel()
				cancelled++
			}
			cur.discarded = append(cur.discarded, discarded...)
			discarded = nil
		case stateRunning:
			cur.state = stateEnded
			cur.err = ErrStopped
			cur.cancel()
			batch = append(batch, cur)
			cancelled++
		}
	}
	for _, e := range discarded {
		e.state = stateEnded
		e.err = ErrStopped
		batch = append(batch, e)
	}
	c.stats.TotalCancelled += int64(cancelled)
	own := c.claim(batch)
	c.mu.Unlock()

	if own {
		c.drain(batch)
	}

	if cancelled > 0 {
		c.logger.Debug("queue: stopped", "channel", c.name, "cancelled", cancelled)
	}
	return cancelled
}

// claim hands ended entries to the goroutine firing End hooks. It reports
// whether the caller became that goroutine and must drain batch.
// c.mu must be held.
func (c *Channel[T]) claim(batch []*entry[T]) bool {
	if len(batch) == 0 {
		return false
	}
	if c.ending {
		c.endq = append(c.endq, batch...)
		return false
	}
	c.ending = true
	return true
}

// drain fires End hooks for batch and for everything queued behind it.
func (c *Channel[T]) drain(batch []*entry[T]) {
	for len(batch) > 0 {
		for _, e := range batch {
			c.end(e.item, e.err)
		}

		c.mu.Lock()
		batch = c.endq
		c.endq = nil
		if len(batch) == 0 {
			c.ending = false
			c.ready.Broadcast()
		}
		c.mu.Unlock()
	}
}

// Busy reports whether an entry is executing.
func (c *Channel[T]) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.current != nil
}

// Stats returns channel statistics.
func (c *Channel[T]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.CurrentSize = len(c.pending)
	stats.Busy = c.current != nil
	if c.started > 0 {
		stats.AverageWait = c.waited / time.Duration(c.started)
	}
	return stats
}

// Close stops the channel and waits for the worker to exit or ctx to end.
// Close must not be called from a hook.
func (c *Channel[T]) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	c.Stop()
	c.cancel()

	c.mu.Lock()
	c.ready.Broadcast()
	c.mu.Unlock()

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Channel[T]) loop() {
	defer close(c.done)

	for {
		c.mu.Lock()
		for !c.closed && (len(c.pending) == 0 || c.ending) {
			c.ready.Wait()
		}
		if c.closed {
			c.mu.Unlock()
			return
		}

		e := c.pending[0]
		c.pending[0] = nil
		c.pending = c.pending[1:]

		ctx, cancel := context.WithCancel(c.ctx)
		e.cancel = cancel
		e.state = stateStarting
		c.current = e

		now := time.Now()
		c.stats.LastStart = now
		c.waited += now.Sub(e.enqueued)
		c.started++
		c.mu.Unlock()

		c.execute(ctx, e)
		cancel()
	}
}

func (c *Channel[T]) execute(ctx context.Context, e *entry[T]) {
	if c.hooks.Start != nil {
		c.hooks.Start(e.item)
	}

	c.mu.Lock()
	if e.stopped {
		e.state = stateEnded
		e.err = ErrStopped
		c.current = nil
		batch := append([]*entry[T]{e}, e.discarded...)
		e.discarded = nil
		own := c.claim(batch)
		c.mu.Unlock()

		if own {
			c.drain(batch)
		}
		return
	}
	e.state = stateRunning
	c.mu.Unlock()

	var err error
	if c.hooks.Run != nil {
		err = c.hooks.Run(ctx, e.item)
	}

	c.mu.Lock()
	c.current = nil
	if e.state == stateEnded {
		// Stop already ended this entry
		c.mu.Unlock()
		return
	}
	e.state = stateEnded
	e.err = err
	if err != nil {
		c.stats.TotalFailed++
	} else {
		c.stats.TotalCompleted++
	}
	batch := []*entry[T]{e}
	own := c.claim(batch)
	c.mu.Unlock()

	if own {
		c.drain(batch)
	}
}

func (c *Channel[T]) end(item T, err error) {
	if c.hooks.End != nil {
		c.hooks.End(item, err)
	}
}
