package sse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fwojciec/parachute"
	"github.com/rs/zerolog"
)

const (
	// DefaultIdleTimeout bounds the silence between two chunks. Tool
	// execution on the server can keep a turn quiet for a long time.
	DefaultIdleTimeout = 120 * time.Second
	// DefaultFirstByteTimeout bounds the wait for the first chunk.
	DefaultFirstByteTimeout = 30 * time.Second

	readBufferSize = 4096
)

// Option configures a [Stream].
type Option func(*Stream)

// WithIdleTimeout sets the maximum gap between chunks once data is flowing.
// Zero disables the idle check.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *Stream) { s.idleTimeout = d }
}

// WithFirstByteTimeout sets the maximum wait for the first chunk. Zero
// disables the check.
func WithFirstByteTimeout(d time.Duration) Option {
	return func(s *Stream) { s.firstByteTimeout = d }
}

// WithLogger sets the logger for parse anomalies and stream diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Stream) { s.logger = l }
}

// WithOnFinish registers a callback run once when the stream reaches its
// terminal event or is closed, whichever happens first.
func WithOnFinish(fn func()) Option {
	return func(s *Stream) { s.onFinish = fn }
}

// Interface compliance check.
var _ parachute.Stream = (*Stream)(nil)

// chunk is one read from the body, or the error that ended reading.
type chunk struct {
	data []byte
	err  error
}

// Stream implements [parachute.Stream] over a text/event-stream body.
//
// A producer goroutine reads the body and hands chunks over a channel;
// Next pulls from that channel under the idle and first-byte timers. The
// stream owns the body and closes it once the terminal event is decoded or
// Close is called.
type Stream struct {
	ctx    context.Context
	body   io.ReadCloser
	dec    *Decoder
	chunks chan chunk
	quit   chan struct{}

	idleTimeout      time.Duration
	firstByteTimeout time.Duration
	logger           zerolog.Logger
	onFinish         func()

	// state is read by Close and State from any goroutine.
	state    atomic.Int32
	pending  []parachute.Event
	gotBytes bool
	done     bool // terminal event queued

	closed     atomic.Bool
	stopOnce   sync.Once
	finishOnce sync.Once
}

// NewStream starts reading body and returns the stream of its events.
func NewStream(ctx context.Context, body io.ReadCloser, opts ...Option) *Stream {
	if ctx == nil {
		ctx = context.Background()
	}
	s := &Stream{
		ctx:              ctx,
		body:             body,
		chunks:           make(chan chunk),
		quit:             make(chan struct{}),
		idleTimeout:      DefaultIdleTimeout,
		firstByteTimeout: DefaultFirstByteTimeout,
		logger:           zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	s.dec = NewDecoder(s.logger)
	go s.read()
	return s
}

// Failed returns a stream that yields a single error event carrying msg.
// It stands in for a connection that could not be established.
func Failed(msg string, opts ...Option) *Stream {
	s := &Stream{
		quit:    make(chan struct{}),
		logger:  zerolog.Nop(),
		pending: []parachute.Event{parachute.ErrorEvent(msg)},
		done:    true,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// read is the producer: it forwards body reads until an error or until the
// consumer stops listening.
func (s *Stream) read() {
	buf := make([]byte, readBufferSize)
	for {
		n, err := s.body.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case s.chunks <- chunk{data: data}:
			case <-s.quit:
				return
			}
		}
		if err != nil {
			select {
			case s.chunks <- chunk{err: err}:
			case <-s.quit:
			}
			return
		}
	}
}

// Next returns the next event. The terminal event is returned with a nil
// error; after it Next returns io.EOF.
func (s *Stream) Next() (parachute.Event, error) {
	for {
		if s.closed.Load() {
			return parachute.Event{}, parachute.ErrStreamClosed
		}
		if len(s.pending) > 0 {
			evt := s.pending[0]
			s.pending = s.pending[1:]
			s.advance(evt)
			return evt, nil
		}
		if s.done || s.terminal() {
			return parachute.Event{}, io.EOF
		}
		s.wait()
	}
}

// advance records the state transition caused by delivering evt.
func (s *Stream) advance(evt parachute.Event) {
	switch evt.Type {
	case parachute.EventDone:
		s.setState(parachute.StreamStateComplete)
		s.finish()
	case parachute.EventError:
		s.setState(parachute.StreamStateError)
		s.finish()
	default:
		s.setState(parachute.StreamStateStreaming)
	}
}

func (s *Stream) setState(st parachute.StreamState) {
	s.state.Store(int32(st))
}

func (s *Stream) loadState() parachute.StreamState {
	return parachute.StreamState(s.state.Load())
}

// terminal reports whether a terminal event has been delivered.
func (s *Stream) terminal() bool {
	st := s.loadState()
	return st == parachute.StreamStateComplete || st == parachute.StreamStateError
}

// wait blocks for the next chunk, timer expiry or cancellation and queues
// whatever events result.
func (s *Stream) wait() {
	timeout := s.idleTimeout
	reason := "stream stalled: no data for %s"
	if !s.gotBytes {
		timeout = s.firstByteTimeout
		reason = "no response within %s"
	}
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case c := <-s.chunks:
		s.handle(c)
	case <-timer:
		msg := fmt.Sprintf(reason, timeout)
		s.logger.Warn().Dur("timeout", timeout).Msg("sse: " + msg)
		s.terminate(parachute.ErrorEvent(msg))
	case <-s.ctx.Done():
		s.terminate(parachute.ErrorEvent(fmt.Sprintf("stream canceled: %v", s.ctx.Err())))
	case <-s.quit:
		// Close was called from another goroutine; Next reports it.
	}
}

func (s *Stream) handle(c chunk) {
	if len(c.data) > 0 {
		s.gotBytes = true
		events, terminal := s.dec.Feed(c.data)
		s.pending = append(s.pending, events...)
		if terminal {
			s.done = true
			s.stop()
		}
		return
	}

	switch {
	case s.ctx.Err() != nil:
		s.terminate(parachute.ErrorEvent(fmt.Sprintf("stream canceled: %v", s.ctx.Err())))
	case errors.Is(c.err, io.EOF), errors.Is(c.err, io.ErrUnexpectedEOF):
		events, terminal := s.dec.Flush()
		s.pending = append(s.pending, events...)
		if terminal {
			s.done = true
			s.stop()
			return
		}
		s.logger.Debug().Msg("sse: " + parachute.NoteStreamEnded)
		s.terminate(parachute.DoneEvent(parachute.NoteStreamEnded))
	default:
		s.logger.Warn().Err(c.err).Msg("sse: read failed")
		s.terminate(parachute.ErrorEvent(fmt.Sprintf("stream read failed: %v", c.err)))
	}
}

// terminate queues a synthesized terminal event and releases the body.
func (s *Stream) terminate(evt parachute.Event) {
	s.pending = append(s.pending, evt)
	s.done = true
	s.stop()
}

// stop ends the producer and closes the body. Closing the body unblocks a
// pending Read.
func (s *Stream) stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
		if s.body != nil {
			s.body.Close()
		}
	})
}

func (s *Stream) finish() {
	s.finishOnce.Do(func() {
		if s.onFinish != nil {
			s.onFinish()
		}
	})
}

// State returns the current stream state.
func (s *Stream) State() parachute.StreamState {
	if s.closed.Load() && !s.terminal() {
		return parachute.StreamStateClosed
	}
	return s.loadState()
}

// Close releases the connection. Closing before the terminal event moves
// the stream to StreamStateClosed. Close may be called from another
// goroutine to unblock a pending Next.
func (s *Stream) Close() error {
	if s.terminal() {
		s.stop()
		return nil
	}
	s.closed.Store(true)
	s.stop()
	s.finish()
	return nil
}
