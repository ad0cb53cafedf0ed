package mock

import (
	"io"

	"github.com/fwojciec/parachute"
)

// Interface compliance check.
var _ parachute.Stream = (*Stream)(nil)

// Stream is a test double for parachute.Stream.
// Set the function fields for the methods you need. NextFn panics when nil
// to catch missing setup. CloseFn and StateFn are nil-safe (no-op and zero
// value) because test code commonly calls defer stream.Close() and these
// methods rarely need custom behavior.
type Stream struct {
	NextFn  func() (parachute.Event, error)
	StateFn func() parachute.StreamState
	CloseFn func() error
}

// Next delegates to NextFn.
func (s *Stream) Next() (parachute.Event, error) {
	return s.NextFn()
}

// State delegates to StateFn. Returns StreamStateNew when StateFn is nil.
func (s *Stream) State() parachute.StreamState {
	if s.StateFn == nil {
		return parachute.StreamStateNew
	}
	return s.StateFn()
}

// Close delegates to CloseFn. Returns nil when CloseFn is not set.
func (s *Stream) Close() error {
	if s.CloseFn == nil {
		return nil
	}
	return s.CloseFn()
}

// Events returns a Stream that yields events in order and then io.EOF,
// tracking state the way a real stream does. A script without a terminal
// event ends in io.EOF with the state left at StreamStateStreaming, which
// models a broken transport. Close before the end makes Next return
// parachute.ErrStreamClosed.
func Events(events ...parachute.Event) *Stream {
	state := parachute.StreamStateNew
	closed := false
	i := 0
	return &Stream{
		NextFn: func() (parachute.Event, error) {
			if closed {
				return parachute.Event{}, parachute.ErrStreamClosed
			}
			if i >= len(events) {
				return parachute.Event{}, io.EOF
			}
			evt := events[i]
			i++
			switch evt.Type {
			case parachute.EventDone:
				state = parachute.StreamStateComplete
				i = len(events)
			case parachute.EventError:
				state = parachute.StreamStateError
				i = len(events)
			default:
				state = parachute.StreamStateStreaming
			}
			return evt, nil
		},
		StateFn: func() parachute.StreamState {
			if closed {
				return parachute.StreamStateClosed
			}
			return state
		},
		CloseFn: func() error {
			if state != parachute.StreamStateComplete && state != parachute.StreamStateError {
				closed = true
			}
			return nil
		},
	}
}
