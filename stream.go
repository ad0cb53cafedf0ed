package parachute

import "iter"

// StreamState indicates the current state of a Stream.
type StreamState int

const (
	StreamStateNew       StreamState = iota // Before Next() is ever called.
	StreamStateStreaming                    // Mid-stream, events flowing.
	StreamStateComplete                     // Terminal done event delivered.
	StreamStateError                        // Terminal error event delivered.
	StreamStateClosed                       // Close() called before terminal state.
)

// Stream is a lazy, finite, non-restartable sequence of events for one turn
// or one join. Cancellation flows through the context the stream was opened
// with.
//
// Every stream ends in exactly one terminal event (done or error), synthesized
// by the transport when the server did not send one. Failures never surface
// as errors from Next:
//   - Next returns the terminal event with a nil error, then io.EOF.
//   - After Close, Next returns ErrStreamClosed.
type Stream interface {
	Next() (Event, error)
	State() StreamState
	Close() error
}

// Events adapts a Stream to a range-over-func sequence. Iteration stops after
// the terminal event or when the stream reports an error. The stream is not
// closed.
func Events(s Stream) iter.Seq[Event] {
	return func(yield func(Event) bool) {
		for {
			evt, err := s.Next()
			if err != nil {
				return
			}
			if !yield(evt) {
				return
			}
			if evt.IsTerminal() {
				return
			}
		}
	}
}
