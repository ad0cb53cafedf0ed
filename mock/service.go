// Package mock provides test doubles for parachute interfaces using function
// fields.
package mock

import (
	"context"

	"github.com/fwojciec/parachute"
)

// Interface compliance check.
var _ parachute.ChatService = (*ChatService)(nil)

// ChatService is a test double for parachute.ChatService.
// Set the function fields for the methods you need; calling a method whose
// field is nil panics to catch missing setup.
type ChatService struct {
	StartTurnFn       func(ctx context.Context, req parachute.TurnRequest) (parachute.Stream, error)
	HasActiveStreamFn func(ctx context.Context, sessionID string) bool
	ActiveStreamsFn   func(ctx context.Context) []string
	JoinStreamFn      func(ctx context.Context, sessionID string) (parachute.Stream, bool)
	AbortFn           func(ctx context.Context, sessionID string) (bool, error)
	TranscriptFn      func(ctx context.Context, sessionID string, q parachute.TranscriptQuery) (*parachute.Transcript, error)
}

// StartTurn delegates to StartTurnFn.
func (s *ChatService) StartTurn(ctx context.Context, req parachute.TurnRequest) (parachute.Stream, error) {
	return s.StartTurnFn(ctx, req)
}

// HasActiveStream delegates to HasActiveStreamFn.
func (s *ChatService) HasActiveStream(ctx context.Context, sessionID string) bool {
	return s.HasActiveStreamFn(ctx, sessionID)
}

// ActiveStreams delegates to ActiveStreamsFn.
func (s *ChatService) ActiveStreams(ctx context.Context) []string {
	return s.ActiveStreamsFn(ctx)
}

// JoinStream delegates to JoinStreamFn.
func (s *ChatService) JoinStream(ctx context.Context, sessionID string) (parachute.Stream, bool) {
	return s.JoinStreamFn(ctx, sessionID)
}

// Abort delegates to AbortFn.
func (s *ChatService) Abort(ctx context.Context, sessionID string) (bool, error) {
	return s.AbortFn(ctx, sessionID)
}

// Transcript delegates to TranscriptFn.
func (s *ChatService) Transcript(ctx context.Context, sessionID string, q parachute.TranscriptQuery) (*parachute.Transcript, error) {
	return s.TranscriptFn(ctx, sessionID, q)
}
