package parachute

import (
	"context"
	"fmt"
)

// ChatService is the Parachute server surface used for live chat.
//
// Streaming failures never come back as errors: transport, stall and server
// faults are delivered as the stream's terminal error event. Errors returned
// here are setup errors (validation, a turn already in flight) or, for
// Transcript and Abort, plain request failures.
type ChatService interface {
	// StartTurn starts a new turn and returns its event stream.
	StartTurn(ctx context.Context, req TurnRequest) (Stream, error)

	// HasActiveStream reports whether the server is generating a turn for
	// the session. Probe failures report false.
	HasActiveStream(ctx context.Context, sessionID string) bool

	// ActiveStreams lists the sessions with a turn in progress. Probe
	// failures report an empty list.
	ActiveStreams(ctx context.Context) []string

	// JoinStream attaches to the in-progress turn of a session. ok is false
	// when there is nothing to join; a join that failed still returns a
	// stream whose terminal event describes the failure.
	JoinStream(ctx context.Context, sessionID string) (s Stream, ok bool)

	// Abort asks the server to stop the session's turn. It returns false,
	// with a nil error, when there was nothing to abort.
	Abort(ctx context.Context, sessionID string) (bool, error)

	// Transcript fetches the stored event history of a session.
	Transcript(ctx context.Context, sessionID string, q TranscriptQuery) (*Transcript, error)
}

// TurnRequest carries one user message plus the optional per-turn overrides.
// An empty SessionID asks the server to create a session; the assigned id
// arrives in the stream's session event.
type TurnRequest struct {
	SessionID         string
	Message           string
	SystemPrompt      string
	InitialContext    string
	PriorConversation string
	ContinuedFrom     string
	WorkingDirectory  string
	Contexts          []string
	Attachments       []Attachment
}

// Attachment is a file sent along with a turn.
type Attachment struct {
	Name     string
	MimeType string
	Data     []byte
}

// RecoveryMode selects how the next turn proceeds after the server reported
// the session unavailable.
type RecoveryMode string

const (
	// RecoveryInjectContext resends the reconstructed conversation as prior
	// context.
	RecoveryInjectContext RecoveryMode = "inject_context"
	// RecoveryFreshStart continues without prior context.
	RecoveryFreshStart RecoveryMode = "fresh_start"
)

// ParseRecoveryMode validates a recovery mode string.
func ParseRecoveryMode(s string) (RecoveryMode, error) {
	switch m := RecoveryMode(s); m {
	case RecoveryInjectContext, RecoveryFreshStart:
		return m, nil
	default:
		return "", fmt.Errorf("unknown recovery mode %q: %w", s, ErrValidation)
	}
}
