package jsonic

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Outcome is the terminal state of a unit of work.
type Outcome int

const (
	Pending Outcome = iota
	Completed
	Cancelled
)

// String returns a human readable outcome.
func (o Outcome) String() string {
	switch o {
	case Pending:
		return "pending"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Handle tracks one Say or Play request. Callbacks registered after the
// matching transition already happened run immediately on the registering
// goroutine. A request discarded before it started never fires its before
// callbacks.
type Handle struct {
	id      string
	kind    Kind
	channel string

	mu      sync.Mutex
	started bool
	before  []func()
	outcome Outcome
	err     error
	after   []func(completed bool)
	done    chan struct{}
}

func newHandle(kind Kind, channel string) *Handle {
	return &Handle{
		id:      uuid.NewString(),
		kind:    kind,
		channel: channel,
		done:    make(chan struct{}),
	}
}

// ID returns the unique identifier carried in notices.
func (h *Handle) ID() string { return h.id }

// Kind returns the request kind.
func (h *Handle) Kind() Kind { return h.kind }

// Channel returns the channel the request was queued on.
func (h *Handle) Channel() string { return h.channel }

// OnBefore registers fn to run when the request starts executing.
func (h *Handle) OnBefore(fn func()) *Handle {
	if fn == nil {
		return h
	}
	h.mu.Lock()
	if h.started {
		h.mu.Unlock()
		fn()
		return h
	}
	h.before = append(h.before, fn)
	h.mu.Unlock()
	return h
}

// OnAfter registers fn to run when the request ends. completed is false
// when the request was stopped or failed.
func (h *Handle) OnAfter(fn func(completed bool)) *Handle {
	if fn == nil {
		return h
	}
	h.mu.Lock()
	if h.outcome != Pending {
		completed := h.outcome == Completed
		h.mu.Unlock()
		fn(completed)
		return h
	}
	h.after = append(h.after, fn)
	h.mu.Unlock()
	return h
}

// Done is closed once the request reached a terminal state and its after
// callbacks returned.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the request ends or ctx is done.
func (h *Handle) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-h.done:
		return h.Outcome(), h.Err()
	case <-ctx.Done():
		return Pending, ctx.Err()
	}
}

// Outcome returns the current state.
func (h *Handle) Outcome() Outcome {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outcome
}

// Err returns why the request was cancelled, if it was.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *Handle) fireBefore() {
	h.mu.Lock()
	h.started = true
	callbacks := h.before
	h.before = nil
	h.mu.Unlock()

	for _, fn := range callbacks {
		fn()
	}
}

func (h *Handle) fireAfter(outcome Outcome, err error) {
	h.mu.Lock()
	if h.outcome != Pending {
		h.mu.Unlock()
		return
	}
	h.outcome = outcome
	h.err = err
	callbacks := h.after
	h.after = nil
	h.mu.Unlock()

	completed := outcome == Completed
	for _, fn := range callbacks {
		fn(completed)
	}
	close(h.done)
}
