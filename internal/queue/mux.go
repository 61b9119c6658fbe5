package queue

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
)

// Mux owns a set of channels created on first use.
// All channels share the same hooks.
type Mux[T any] struct {
	hooks  Hooks[T]
	logger *log.Logger

	mu       sync.Mutex
	channels map[string]*Channel[T]
	closed   bool
}

// NewMux creates an empty channel set.
func NewMux[T any](hooks Hooks[T], logger *log.Logger) *Mux[T] {
	if logger == nil {
		logger = log.Default()
	}
	return &Mux[T]{
		hooks:    hooks,
		logger:   logger,
		channels: make(map[string]*Channel[T]),
	}
}

// Channel returns the named channel, creating it if needed.
func (m *Mux[T]) Channel(name string) (*Channel[T], error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, ErrClosed
	}
	if c, ok := m.channels[name]; ok {
		return c, nil
	}

	c := NewChannel(name, m.hooks, m.logger)
	m.channels[name] = c
	m.logger.Debug("queue: channel created", "channel", name)
	return c, nil
}

// Enqueue appends an item to the named channel.
func (m *Mux[T]) Enqueue(name string, item T) error {
	c, err := m.Channel(name)
	if err != nil {
		return err
	}
	return c.Enqueue(item)
}

// Lookup returns an existing channel without creating it.
func (m *Mux[T]) Lookup(name string) (*Channel[T], bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.channels[name]
	return c, ok
}

// Names returns the identifiers of every channel created so far, sorted.
func (m *Mux[T]) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.channels))
	for name := range m.channels {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stop stops a single channel. Unknown channels have nothing to cancel.
func (m *Mux[T]) Stop(name string) int {
	c, ok := m.Lookup(name)
	if !ok {
		return 0
	}
	return c.Stop()
}

// StopAll stops every channel and returns the number of cancelled entries.
func (m *Mux[T]) StopAll() int {
	n := 0
	for _, c := range m.snapshot() {
		n += c.Stop()
	}
	return n
}

// Close closes every channel and rejects further use.
func (m *Mux[T]) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	var errs []error
	for _, c := range m.snapshot() {
		if err := c.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *Mux[T]) snapshot() []*Channel[T] {
	m.mu.Lock()
	defer m.mu.Unlock()

	channels := make([]*Channel[T], 0, len(m.channels))
	for _, c := range m.channels {
		channels = append(channels, c)
	}
	return channels
}
