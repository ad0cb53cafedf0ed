// Package transcript rebuilds display-ready conversation turns from the
// stored event history of a session.
//
// Everything here is pure: no I/O, no shared state. The one source of
// nondeterminism, the clock used for events without a timestamp, is a field
// on [Reconstructor].
package transcript

import (
	"strings"
	"time"

	"github.com/fwojciec/parachute"
)

// Reconstructor turns transcript events into conversation turns.
type Reconstructor struct {
	// Now supplies the timestamp of turns whose first event carried none.
	// Defaults to time.Now.
	Now func() time.Time
}

// Reconstruct uses a Reconstructor with the default clock.
func Reconstruct(events []parachute.TranscriptEvent) []parachute.Turn {
	return Reconstructor{}.Reconstruct(events)
}

// Reconstruct segments events into turns.
//
// A user event carrying text opens a new turn; a user event carrying a
// tool_result is a wire echo and produces nothing. Every assistant event up
// to the next human message is aggregated into a single assistant turn that
// takes its id and time from the first of them. Turns without content are
// dropped, and output keeps the order in which turns were discovered.
func (r Reconstructor) Reconstruct(events []parachute.TranscriptEvent) []parachute.Turn {
	now := r.Now
	if now == nil {
		now = time.Now
	}

	var (
		turns []parachute.Turn
		agg   *aggregation
	)
	flush := func() {
		if agg == nil {
			return
		}
		if t, ok := agg.turn(); ok {
			turns = append(turns, t)
		}
		agg = nil
	}

	for _, e := range events {
		if e.Message == nil {
			continue
		}
		switch parachute.Role(e.Type) {
		case parachute.RoleUser:
			if isToolResultEcho(e.Message.Content) {
				continue
			}
			text := userText(e.Message.Content)
			if len(text) == 0 {
				continue
			}
			flush()
			turns = append(turns, parachute.Turn{
				ID:        eventID(e),
				Role:      parachute.RoleUser,
				Content:   text,
				Timestamp: timestamp(e, now),
			})
		case parachute.RoleAssistant:
			if agg == nil {
				agg = &aggregation{id: eventID(e), ts: timestamp(e, now)}
			}
			agg.add(e.Message.Content)
		}
	}
	flush()
	return turns
}

// aggregation collects the assistant rounds between two human messages.
type aggregation struct {
	id     string
	ts     time.Time
	blocks []parachute.ContentBlock
	// last is the content of the most recent event; it starts at
	// blocks[lastStart].
	last      []parachute.ContentBlock
	lastStart int
}

// add merges one assistant event. An event that extends the previous one is
// a newer snapshot of the same round and replaces it; anything else is a
// separate round and is appended.
func (a *aggregation) add(content []parachute.ContentBlock) {
	if a.last != nil && isSnapshotOf(a.last, content) {
		a.blocks = a.blocks[:a.lastStart]
	}
	a.lastStart = len(a.blocks)
	a.last = content
	a.blocks = append(a.blocks, content...)
}

// turn resolves the aggregated blocks. Text preceding the final tool call is
// reasoning rather than an answer and becomes thinking; blank blocks and
// anything that is not assistant content are dropped.
func (a *aggregation) turn() (parachute.Turn, bool) {
	lastTool := -1
	for i, b := range a.blocks {
		if _, ok := b.(parachute.ToolCallBlock); ok {
			lastTool = i
		}
	}

	var out []parachute.ContentBlock
	for i, b := range a.blocks {
		switch v := b.(type) {
		case parachute.TextBlock:
			if isBlank(v.Text) {
				continue
			}
			if i < lastTool {
				out = append(out, parachute.ThinkingBlock{Thinking: v.Text})
				continue
			}
			out = append(out, v)
		case parachute.ThinkingBlock:
			if isBlank(v.Thinking) {
				continue
			}
			out = append(out, v)
		case parachute.ToolCallBlock:
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return parachute.Turn{}, false
	}
	return parachute.Turn{
		ID:        a.id,
		Role:      parachute.RoleAssistant,
		Content:   out,
		Timestamp: a.ts,
	}, true
}

// isSnapshotOf reports whether next is prev with its last blocks extended or
// new blocks appended: same block kinds position by position, text and
// thinking grown by prefix, and tool calls with the same ids.
func isSnapshotOf(prev, next []parachute.ContentBlock) bool {
	if len(prev) > len(next) {
		return false
	}
	for i, p := range prev {
		switch pv := p.(type) {
		case parachute.TextBlock:
			nv, ok := next[i].(parachute.TextBlock)
			if !ok || !strings.HasPrefix(nv.Text, pv.Text) {
				return false
			}
		case parachute.ThinkingBlock:
			nv, ok := next[i].(parachute.ThinkingBlock)
			if !ok || !strings.HasPrefix(nv.Thinking, pv.Thinking) {
				return false
			}
		case parachute.ToolCallBlock:
			nv, ok := next[i].(parachute.ToolCallBlock)
			if !ok || nv.ID != pv.ID {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func isToolResultEcho(content []parachute.ContentBlock) bool {
	for _, b := range content {
		if _, ok := b.(parachute.ToolResultBlock); ok {
			return true
		}
	}
	return false
}

// userText returns the non-blank text blocks of a user message.
func userText(content []parachute.ContentBlock) []parachute.ContentBlock {
	var out []parachute.ContentBlock
	for _, b := range content {
		if t, ok := b.(parachute.TextBlock); ok && !isBlank(t.Text) {
			out = append(out, t)
		}
	}
	return out
}

func eventID(e parachute.TranscriptEvent) string {
	if e.UUID != "" {
		return e.UUID
	}
	return e.Message.ID
}

func timestamp(e parachute.TranscriptEvent, now func() time.Time) time.Time {
	if e.Timestamp.IsZero() {
		return now()
	}
	return e.Timestamp
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}
