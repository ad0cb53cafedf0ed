package parachute

import (
	"context"
	"errors"
	"io"
)

// RunOption configures a single Run or Drain invocation.
type RunOption func(*runConfig)

type runConfig struct {
	onEvent func(Event)
}

// WithEventHandler sets a callback that receives each streaming event,
// including the terminal one. If nil or not set, events are silently
// discarded.
func WithEventHandler(h func(Event)) RunOption {
	return func(c *runConfig) {
		c.onEvent = h
	}
}

// TurnResult summarizes a drained stream.
type TurnResult struct {
	// SessionID is the id announced by the server's session event, if any.
	SessionID string
	// Title is the session title announced by the server, if any.
	Title string
	// Unavailable is set when the server reported the session store
	// unavailable. The caller decides how the next turn recovers.
	Unavailable *SessionUnavailable
	// Terminal is the event that ended the stream.
	Terminal Event
	// Err is the terminal error message; empty when the turn completed.
	Err string
}

// Completed reports whether the stream ended with a done event.
func (r TurnResult) Completed() bool {
	return r.Terminal.Type == EventDone
}

// Run starts a turn and drains its stream to the terminal event. The
// returned error is a setup error from StartTurn; streaming failures are
// reported through TurnResult.Err.
func Run(ctx context.Context, svc ChatService, req TurnRequest, opts ...RunOption) (TurnResult, error) {
	stream, err := svc.StartTurn(ctx, req)
	if err != nil {
		return TurnResult{}, err
	}
	defer stream.Close()
	result := Drain(stream, opts...)
	if result.SessionID == "" {
		result.SessionID = req.SessionID
	}
	return result, nil
}

// Drain consumes a stream until its terminal event, forwarding every event
// to the handler if set. The stream is not closed.
func Drain(stream Stream, opts ...RunOption) TurnResult {
	var cfg runConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	var result TurnResult
	for {
		evt, err := stream.Next()
		if err != nil {
			// Streams always deliver a terminal event before io.EOF; anything
			// else means the stream was closed underneath us.
			if result.Terminal.Type == "" {
				msg := err.Error()
				if errors.Is(err, io.EOF) {
					msg = NoteStreamEnded
				}
				result.Terminal = ErrorEvent(msg)
				result.Err = msg
			}
			return result
		}
		if cfg.onEvent != nil {
			cfg.onEvent(evt)
		}

		switch evt.Type {
		case EventSession:
			if id := evt.SessionID(); id != "" {
				result.SessionID = id
			}
			if title := evt.Title(); title != "" {
				result.Title = title
			}
		case EventSessionUnavailable:
			u := evt.Unavailable()
			result.Unavailable = &u
		case EventDone:
			result.Terminal = evt
			return result
		case EventError:
			result.Terminal = evt
			result.Err = evt.ErrorMessage()
			return result
		}
	}
}
