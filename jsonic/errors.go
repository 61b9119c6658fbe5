package jsonic

import (
	"errors"
	"fmt"

	"github.com/dgnsrekt/jsonic/internal/queue"
)

// Common errors for the JSonic engine.
var (
	// ErrInvalidArgument is returned for malformed requests: empty text or
	// URL, unknown property names and ill-typed property values.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrRemoteUnavailable is returned when the rendering service cannot be
	// reached or refuses a request.
	ErrRemoteUnavailable = errors.New("remote service unavailable")

	// ErrNotFound is returned when a discovery call names an unknown engine.
	ErrNotFound = errors.New("not found")

	// ErrEngineClosed is returned by operations on a closed engine.
	ErrEngineClosed = errors.New("engine is closed")

	// ErrStopped is the cause of requests cancelled by Stop or Close.
	ErrStopped = queue.ErrStopped
)

// Error carries the operation and channel an error belongs to.
type Error struct {
	Op      string // say, play, setProperty, engineInfo...
	Channel string // empty for channel-less operations
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Channel != "" {
		return fmt.Sprintf("jsonic: %s on channel %q: %v", e.Op, e.Channel, e.Err)
	}
	return fmt.Sprintf("jsonic: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(op, channel string, err error) *Error {
	return &Error{Op: op, Channel: channel, Err: err}
}

func invalidArgument(op, channel, format string, args ...any) *Error {
	return newError(op, channel, fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...)))
}

// IsRemoteError reports whether err was caused by the rendering service.
func IsRemoteError(err error) bool {
	return errors.Is(err, ErrRemoteUnavailable) || errors.Is(err, ErrNotFound)
}
