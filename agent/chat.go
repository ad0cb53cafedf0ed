// Package agent drives a single chat session against a ChatService and
// applies the recovery policy after the server reports the session
// unavailable.
package agent

import (
	"context"

	"github.com/fwojciec/parachute"
	"github.com/fwojciec/parachute/transcript"
	"github.com/rs/zerolog"
)

// Chat sends turns for one session. A Chat is not safe for concurrent use;
// the server accepts one client turn per session at a time anyway.
type Chat struct {
	svc       parachute.ChatService
	sessionID string
	mode      parachute.RecoveryMode
	defaults  func(*parachute.TurnRequest)
	onEvent   func(parachute.Event)
	logger    zerolog.Logger
	rebuild   transcript.Reconstructor

	pending *parachute.SessionUnavailable
}

// Option configures a Chat.
type Option func(*Chat)

// WithRecoveryMode sets how the turn after a session_unavailable event
// proceeds. The default is parachute.RecoveryInjectContext.
func WithRecoveryMode(m parachute.RecoveryMode) Option {
	return func(c *Chat) {
		c.mode = m
	}
}

// WithRequestDefaults sets a hook that fills per-turn overrides such as the
// system prompt or context files before each turn is sent.
func WithRequestDefaults(fn func(*parachute.TurnRequest)) Option {
	return func(c *Chat) {
		c.defaults = fn
	}
}

// WithEventHandler sets a callback that receives every streaming event of
// sent and resumed turns.
func WithEventHandler(h func(parachute.Event)) Option {
	return func(c *Chat) {
		c.onEvent = h
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Chat) {
		c.logger = l
	}
}

// New creates a Chat for sessionID. An empty id starts a new session on the
// first Send.
func New(svc parachute.ChatService, sessionID string, opts ...Option) *Chat {
	c := &Chat{
		svc:       svc,
		sessionID: sessionID,
		mode:      parachute.RecoveryInjectContext,
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SessionID returns the current session id, empty until the server assigns
// one to a new session.
func (c *Chat) SessionID() string { return c.sessionID }

// Pending returns the outstanding session_unavailable notice, or nil. It is
// consumed by the next Send.
func (c *Chat) Pending() *parachute.SessionUnavailable { return c.pending }

// Send runs one turn to completion. Streaming failures come back in
// TurnResult.Err; the returned error is a setup error and leaves any pending
// recovery in place. Send never retries a turn.
func (c *Chat) Send(ctx context.Context, message string) (parachute.TurnResult, error) {
	req := parachute.TurnRequest{SessionID: c.sessionID, Message: message}
	if c.defaults != nil {
		c.defaults(&req)
	}
	if c.pending != nil && c.mode == parachute.RecoveryInjectContext {
		req.PriorConversation = c.priorConversation(ctx)
	}

	result, err := parachute.Run(ctx, c.svc, req, parachute.WithEventHandler(c.onEvent))
	if err != nil {
		return result, err
	}
	c.pending = nil
	c.observe(result)
	return result, nil
}

// Resume attaches to a turn the server is still generating for the session,
// for example after a restart. ok is false when there is nothing to resume.
func (c *Chat) Resume(ctx context.Context) (result parachute.TurnResult, ok bool) {
	if c.sessionID == "" || !c.svc.HasActiveStream(ctx, c.sessionID) {
		return parachute.TurnResult{}, false
	}
	stream, ok := c.svc.JoinStream(ctx, c.sessionID)
	if !ok {
		return parachute.TurnResult{}, false
	}
	defer stream.Close()

	result = parachute.Drain(stream, parachute.WithEventHandler(c.onEvent))
	if result.SessionID == "" {
		result.SessionID = c.sessionID
	}
	c.observe(result)
	return result, true
}

func (c *Chat) observe(result parachute.TurnResult) {
	if result.SessionID != "" {
		c.sessionID = result.SessionID
	}
	if result.Unavailable != nil {
		c.pending = result.Unavailable
		c.logger.Warn().
			Str("session_id", c.sessionID).
			Str("reason", result.Unavailable.Reason).
			Int("message_count", result.Unavailable.MessageCount).
			Msg("session unavailable")
	}
}

// priorConversation renders the stored history for injection. An empty
// result degrades the turn to a fresh start.
func (c *Chat) priorConversation(ctx context.Context) string {
	t, err := c.svc.Transcript(ctx, c.sessionID, parachute.TranscriptQuery{Full: true})
	if err != nil {
		c.logger.Warn().Err(err).Str("session_id", c.sessionID).Msg("transcript unavailable, starting fresh")
		return ""
	}
	turns := c.rebuild.Reconstruct(t.Events)
	c.logger.Info().Str("session_id", c.sessionID).Int("turns", len(turns)).Msg("injecting prior conversation")
	return transcript.PriorConversation(turns)
}
