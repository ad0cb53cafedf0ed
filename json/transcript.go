package json

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fwojciec/parachute"
	"github.com/tidwall/gjson"
)

// transcriptDTO is the body of GET {prefix}/chat/{id}/transcript.
type transcriptDTO struct {
	SessionID      string     `json:"sessionId"`
	TranscriptPath string     `json:"transcriptPath,omitempty"`
	EventCount     int        `json:"eventCount"`
	Events         []eventDTO `json:"events"`
}

type eventDTO struct {
	Type       string          `json:"type"`
	UUID       string          `json:"uuid,omitempty"`
	ParentUUID string          `json:"parentUuid,omitempty"`
	Timestamp  json.RawMessage `json:"timestamp,omitempty"`
	Message    *messageDTO     `json:"message,omitempty"`
}

type messageDTO struct {
	ID      string          `json:"id,omitempty"`
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

// UnmarshalTranscript decodes a transcript response.
//
// Decoding is lenient below the envelope: message content may be a string or
// a block array, unknown block types are dropped, and a timestamp that is
// neither RFC 3339 nor epoch milliseconds is left zero.
func UnmarshalTranscript(data []byte) (*parachute.Transcript, error) {
	var dto transcriptDTO
	if err := json.Unmarshal(data, &dto); err != nil {
		return nil, fmt.Errorf("unmarshal transcript: %w", err)
	}
	t := &parachute.Transcript{
		SessionID:      dto.SessionID,
		TranscriptPath: dto.TranscriptPath,
		EventCount:     dto.EventCount,
		Events:         make([]parachute.TranscriptEvent, len(dto.Events)),
	}
	for i, e := range dto.Events {
		t.Events[i] = unmarshalEvent(e)
	}
	if t.EventCount == 0 {
		t.EventCount = len(t.Events)
	}
	return t, nil
}

// MarshalTranscript encodes a transcript in the server's response format.
func MarshalTranscript(t *parachute.Transcript) ([]byte, error) {
	dto := transcriptDTO{
		SessionID:      t.SessionID,
		TranscriptPath: t.TranscriptPath,
		EventCount:     t.EventCount,
		Events:         make([]eventDTO, len(t.Events)),
	}
	for i, e := range t.Events {
		ev, err := marshalEvent(e)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		dto.Events[i] = ev
	}
	return json.MarshalIndent(dto, "", "  ")
}

func unmarshalEvent(dto eventDTO) parachute.TranscriptEvent {
	e := parachute.TranscriptEvent{
		Type:       dto.Type,
		UUID:       dto.UUID,
		ParentUUID: dto.ParentUUID,
		Timestamp:  parseTimestamp(dto.Timestamp),
	}
	if dto.Message != nil {
		role := dto.Message.Role
		if role == "" {
			role = dto.Type
		}
		e.Message = &parachute.TranscriptMessage{
			ID:      dto.Message.ID,
			Role:    parachute.Role(role),
			Content: unmarshalContent(dto.Message.Content),
		}
	}
	return e
}

func marshalEvent(e parachute.TranscriptEvent) (eventDTO, error) {
	dto := eventDTO{Type: e.Type, UUID: e.UUID, ParentUUID: e.ParentUUID}
	if !e.Timestamp.IsZero() {
		ts, err := json.Marshal(e.Timestamp.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return eventDTO{}, err
		}
		dto.Timestamp = ts
	}
	if e.Message != nil {
		blocks, err := marshalContentBlocks(e.Message.Content)
		if err != nil {
			return eventDTO{}, err
		}
		content, err := json.Marshal(blocks)
		if err != nil {
			return eventDTO{}, err
		}
		dto.Message = &messageDTO{ID: e.Message.ID, Role: string(e.Message.Role), Content: content}
	}
	return dto, nil
}

// unmarshalContent decodes message content given as a plain string or as an
// array of typed blocks.
func unmarshalContent(raw json.RawMessage) []parachute.ContentBlock {
	r := gjson.ParseBytes(raw)
	switch {
	case r.Type == gjson.String:
		return []parachute.ContentBlock{parachute.TextBlock{Text: r.String()}}
	case !r.IsArray():
		return nil
	}
	var blocks []parachute.ContentBlock
	r.ForEach(func(_, v gjson.Result) bool {
		var dto contentBlock
		if err := json.Unmarshal([]byte(v.Raw), &dto); err != nil {
			return true
		}
		if b, err := unmarshalContentBlock(dto); err == nil {
			blocks = append(blocks, b)
		}
		return true
	})
	return blocks
}

// toolResultText flattens tool_result content, which is a string or an array
// of text blocks.
func toolResultText(raw json.RawMessage) string {
	r := gjson.ParseBytes(raw)
	if !r.IsArray() {
		return r.String()
	}
	var parts []string
	r.ForEach(func(_, v gjson.Result) bool {
		if v.Get("type").String() == "text" {
			parts = append(parts, v.Get("text").String())
		}
		return true
	})
	return strings.Join(parts, "\n")
}

func parseTimestamp(raw json.RawMessage) time.Time {
	r := gjson.ParseBytes(raw)
	switch r.Type {
	case gjson.String:
		if ts, err := time.Parse(time.RFC3339Nano, r.String()); err == nil {
			return ts
		}
	case gjson.Number:
		return time.UnixMilli(r.Int()).UTC()
	}
	return time.Time{}
}
