package jsonic

import (
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
)

// Phase tells whether a notice reports the start or the end of a request.
type Phase int

const (
	PhaseStarted Phase = iota
	PhaseFinished
)

// String returns "started" or "finished".
func (p Phase) String() string {
	if p == PhaseStarted {
		return "started"
	}
	return "finished"
}

// Notice describes one lifecycle transition of a Say or Play request.
type Notice struct {
	Action   Kind
	Phase    Phase
	Channel  string
	HandleID string

	Text string // say
	URL  string // play

	// Properties are the values bound when the request started.
	Properties Properties

	// Completed and Err are only meaningful for finished notices.
	Completed bool
	Err       error
}

// Name returns the notice name, e.g. "started-say" or "finished-play".
func (n Notice) Name() string {
	return fmt.Sprintf("%s-%s", n.Phase, n.Action)
}

// Observer receives every notice across all channels. Observers run on the
// worker of the channel that produced the notice and must not block.
type Observer func(Notice)

type observerEntry struct {
	id uint64
	fn Observer
}

// observers is the registry behind AddObserver.
type observers struct {
	mu      sync.RWMutex
	entries []observerEntry
	next    uint64
	logger  *log.Logger
}

func (o *observers) add(fn Observer) func() {
	o.mu.Lock()
	o.next++
	id := o.next
	o.entries = append(o.entries, observerEntry{id: id, fn: fn})
	o.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { o.remove(id) })
	}
}

func (o *observers) remove(id uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for i, e := range o.entries {
		if e.id == id {
			o.entries = append(o.entries[:i:i], o.entries[i+1:]...)
			return
		}
	}
}

func (o *observers) len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.entries)
}

func (o *observers) notify(n Notice) {
	o.mu.RLock()
	entries := o.entries
	o.mu.RUnlock()

	for _, e := range entries {
		o.call(e.fn, n)
	}
}

func (o *observers) call(fn Observer, n Notice) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("observer panicked", "notice", n.Name(), "channel", n.Channel, "panic", r)
		}
	}()
	fn(n)
}

func (d *descriptor) notice(phase Phase) Notice {
	return Notice{
		Action:     d.kind,
		Phase:      phase,
		Channel:    d.channel,
		HandleID:   d.handle.ID(),
		Text:       d.text,
		URL:        d.url,
		Properties: d.props,
	}
}
