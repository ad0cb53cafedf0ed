package parachute

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// EventType discriminates decoded stream frames.
type EventType string

const (
	EventSession            EventType = "session"
	EventInit               EventType = "init"
	EventText               EventType = "text"
	EventThinking           EventType = "thinking"
	EventToolUse            EventType = "tool_use"
	EventToolResult         EventType = "tool_result"
	EventSessionUnavailable EventType = "session_unavailable"
	EventDone               EventType = "done"
	EventError              EventType = "error"
	EventUnknown            EventType = "unknown"
)

// NoteStreamEnded is attached to the done event synthesized when the
// connection closes without an explicit terminal frame.
const NoteStreamEnded = "stream ended without explicit done event"

// ParseEventType maps a wire type string to an EventType. Unrecognized and
// empty strings map to EventUnknown.
func ParseEventType(s string) EventType {
	switch t := EventType(s); t {
	case EventSession, EventInit, EventText, EventThinking, EventToolUse,
		EventToolResult, EventSessionUnavailable, EventDone, EventError:
		return t
	default:
		return EventUnknown
	}
}

// Event is one decoded unit from the wire.
//
// Payload is the decoded frame object. Raw holds the same object as JSON and
// is always valid, including for events synthesized by the transport.
// The typed accessors read from Raw.
type Event struct {
	Type    EventType
	Payload map[string]any
	Raw     json.RawMessage
}

// NewEvent builds an event from a payload. The payload's "type" field is set
// to t.
func NewEvent(t EventType, payload map[string]any) Event {
	p := make(map[string]any, len(payload)+1)
	for k, v := range payload {
		p[k] = v
	}
	p["type"] = string(t)
	raw, err := json.Marshal(p)
	if err != nil {
		// Payloads built by this package are always encodable; keep the
		// discriminator at least.
		raw, _ = json.Marshal(map[string]string{"type": string(t)})
	}
	return Event{Type: t, Payload: p, Raw: raw}
}

// DoneEvent returns a synthesized done event. An empty note yields an empty
// payload.
func DoneEvent(note string) Event {
	if note == "" {
		return NewEvent(EventDone, nil)
	}
	return NewEvent(EventDone, map[string]any{"note": note})
}

// ErrorEvent returns a synthesized error event carrying msg.
func ErrorEvent(msg string) Event {
	return NewEvent(EventError, map[string]any{"error": msg})
}

// IsTerminal reports whether the event ends a stream.
func (e Event) IsTerminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

// Get returns the value at a gjson path within the frame.
func (e Event) Get(path string) gjson.Result {
	return gjson.GetBytes(e.Raw, path)
}

// Content returns the "content" field of text, thinking and tool_result
// events.
func (e Event) Content() string { return e.Get("content").String() }

// SessionID returns the "sessionId" field.
func (e Event) SessionID() string { return e.Get("sessionId").String() }

// Title returns the "title" field of session events.
func (e Event) Title() string { return e.Get("title").String() }

// UUID returns the "uuid" field when the server attached one.
func (e Event) UUID() string { return e.Get("uuid").String() }

// ToolUseID returns the "toolUseId" field of tool_result events.
func (e Event) ToolUseID() string { return e.Get("toolUseId").String() }

// IsError returns the "isError" flag of tool_result events.
func (e Event) IsError() bool { return e.Get("isError").Bool() }

// DurationMs returns the "durationMs" field of done events.
func (e Event) DurationMs() int64 { return e.Get("durationMs").Int() }

// Note returns the diagnostic note of synthesized done events.
func (e Event) Note() string { return e.Get("note").String() }

// ErrorMessage returns the human-readable message of an error event. Servers
// send either a string or an object with a "message" field.
func (e Event) ErrorMessage() string {
	r := e.Get("error")
	if r.IsObject() {
		return r.Get("message").String()
	}
	if r.Exists() {
		return r.String()
	}
	return e.Get("message").String()
}

// Tool returns the tool call carried by a tool_use event.
func (e Event) Tool() ToolCallBlock {
	r := e.Get("tool")
	call := ToolCallBlock{
		ID:   r.Get("id").String(),
		Name: r.Get("name").String(),
	}
	if in, ok := r.Get("input").Value().(map[string]any); ok {
		call.Input = in
	}
	return call
}

// SessionResume returns the "sessionResume" object of done events, or nil.
func (e Event) SessionResume() map[string]any {
	if m, ok := e.Get("sessionResume").Value().(map[string]any); ok {
		return m
	}
	return nil
}

// SessionUnavailable carries the recovery hints of a session_unavailable
// event.
type SessionUnavailable struct {
	Reason             string
	HasMarkdownHistory bool
	MessageCount       int
	Message            string
}

// Unavailable decodes the recovery hints of a session_unavailable event.
func (e Event) Unavailable() SessionUnavailable {
	return SessionUnavailable{
		Reason:             e.Get("reason").String(),
		HasMarkdownHistory: e.Get("hasMarkdownHistory").Bool(),
		MessageCount:       int(e.Get("messageCount").Int()),
		Message:            e.Get("message").String(),
	}
}
