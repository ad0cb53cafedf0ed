// Package sse implements the transport side of the Parachute chat protocol:
// incremental framing of a text/event-stream body into [parachute.Event]
// values, and a pull-based [parachute.Stream] that guarantees every stream
// ends in exactly one terminal event.
package sse

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/fwojciec/parachute"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const (
	dataPrefix = "data:"
	doneMarker = "[DONE]"
)

// Decoder splits a byte stream into lines and decodes data frames. It only
// ever parses complete lines; the trailing partial line is retained until
// the next Feed or Flush.
//
// Once a terminal event is decoded the Decoder discards all further input,
// including lines already buffered.
type Decoder struct {
	buf      []byte
	terminal bool
	logger   zerolog.Logger
}

// NewDecoder returns a Decoder that reports parse anomalies to logger.
func NewDecoder(logger zerolog.Logger) *Decoder {
	return &Decoder{logger: logger}
}

// Terminal reports whether a terminal event has been decoded.
func (d *Decoder) Terminal() bool {
	return d.terminal
}

// Feed appends chunk to the buffer and decodes every complete line. It
// returns the decoded events and whether the last of them is terminal.
func (d *Decoder) Feed(chunk []byte) ([]parachute.Event, bool) {
	if d.terminal {
		return nil, true
	}
	d.buf = append(d.buf, chunk...)

	var events []parachute.Event
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		line := string(d.buf[:i])
		d.buf = d.buf[i+1:]
		if evt, ok := d.decodeLine(line); ok {
			events = append(events, evt)
			if evt.IsTerminal() {
				d.terminal = true
				d.buf = nil
				return events, true
			}
		}
	}
	// Reclaim the consumed prefix once the buffer drains.
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return events, false
}

// Flush decodes the retained partial line as if the stream had terminated
// it. It is called once the underlying reader reached EOF.
func (d *Decoder) Flush() ([]parachute.Event, bool) {
	if d.terminal || len(d.buf) == 0 {
		return nil, d.terminal
	}
	line := string(d.buf)
	d.buf = nil
	evt, ok := d.decodeLine(line)
	if !ok {
		return nil, false
	}
	if evt.IsTerminal() {
		d.terminal = true
	}
	return []parachute.Event{evt}, d.terminal
}

// decodeLine classifies one line. It returns false for lines that carry no
// event: blanks, comments and anomalies.
func (d *Decoder) decodeLine(line string) (parachute.Event, bool) {
	line = strings.TrimSuffix(line, "\r")
	switch {
	case strings.TrimSpace(line) == "":
		return parachute.Event{}, false
	case strings.HasPrefix(line, ":"):
		return parachute.Event{}, false
	case strings.HasPrefix(line, dataPrefix):
		return d.decodeData(strings.TrimSpace(strings.TrimPrefix(line, dataPrefix)), line)
	default:
		d.logger.Warn().Str("line", line).Msg("sse: unexpected line")
		return parachute.Event{}, false
	}
}

func (d *Decoder) decodeData(body, line string) (parachute.Event, bool) {
	if body == "" || body == doneMarker {
		return parachute.DoneEvent(""), true
	}
	if !gjson.Valid(body) || !gjson.Parse(body).IsObject() {
		d.logger.Warn().Str("line", line).Msg("sse: malformed data frame")
		return parachute.Event{}, false
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		d.logger.Warn().Err(err).Str("line", line).Msg("sse: malformed data frame")
		return parachute.Event{}, false
	}
	typ, _ := payload["type"].(string)
	return parachute.Event{
		Type:    parachute.ParseEventType(typ),
		Payload: payload,
		Raw:     json.RawMessage(body),
	}, true
}
