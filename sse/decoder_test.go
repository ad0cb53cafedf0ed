package sse_test

import (
	"bytes"
	"testing"

	"github.com/fwojciec/parachute"
	"github.com/fwojciec/parachute/sse"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const conversation = "data: {\"type\":\"session\",\"sessionId\":\"s1\",\"title\":\"Hello\"}\n\n" +
	": keep-alive\n\n" +
	"data: {\"type\":\"text\",\"content\":\"Hi\"}\n\n" +
	"data: {\"type\":\"tool_use\",\"tool\":{\"id\":\"tu_1\",\"name\":\"read\",\"input\":{\"path\":\"a.md\"}}}\r\n\r\n" +
	"data: {\"type\":\"tool_result\",\"toolUseId\":\"tu_1\",\"content\":\"ok\",\"isError\":false}\n\n" +
	"data: {\"type\":\"text\",\"content\":\"Hi there, ünïcödé ✓\"}\n\n" +
	"data: {\"type\":\"done\",\"durationMs\":1200}\n\n"

func decodeAll(t *testing.T, chunks ...[]byte) []parachute.Event {
	t.Helper()
	dec := sse.NewDecoder(zerolog.Nop())
	var events []parachute.Event
	for _, c := range chunks {
		evts, terminal := dec.Feed(c)
		events = append(events, evts...)
		if terminal {
			return events
		}
	}
	evts, _ := dec.Flush()
	return append(events, evts...)
}

func eventTypes(events []parachute.Event) []parachute.EventType {
	types := make([]parachute.EventType, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}

func TestDecoder_WholeBuffer(t *testing.T) {
	t.Parallel()
	events := decodeAll(t, []byte(conversation))

	assert.Equal(t, []parachute.EventType{
		parachute.EventSession,
		parachute.EventText,
		parachute.EventToolUse,
		parachute.EventToolResult,
		parachute.EventText,
		parachute.EventDone,
	}, eventTypes(events))
	assert.Equal(t, "s1", events[0].SessionID())
	assert.Equal(t, "Hello", events[0].Title())
	assert.Equal(t, "Hi", events[1].Content())
	assert.Equal(t, parachute.ToolCallBlock{
		ID:    "tu_1",
		Name:  "read",
		Input: map[string]any{"path": "a.md"},
	}, events[2].Tool())
	assert.Equal(t, "tu_1", events[3].ToolUseID())
	assert.Equal(t, "Hi there, ünïcödé ✓", events[4].Content())
	assert.Equal(t, int64(1200), events[5].DurationMs())
}

func TestDecoder_SplitAtEveryOffset(t *testing.T) {
	t.Parallel()
	data := []byte(conversation)
	want := decodeAll(t, data)

	for i := 0; i <= len(data); i++ {
		got := decodeAll(t, data[:i], data[i:])
		require.Equal(t, want, got, "split at offset %d", i)
	}
}

func TestDecoder_ByteAtATime(t *testing.T) {
	t.Parallel()
	data := []byte(conversation)
	want := decodeAll(t, data)

	chunks := make([][]byte, len(data))
	for i := range data {
		chunks[i] = data[i : i+1]
	}
	assert.Equal(t, want, decodeAll(t, chunks...))
}

func TestDecoder_GarbledLineIsSkippedAndLogged(t *testing.T) {
	t.Parallel()
	var logs bytes.Buffer
	dec := sse.NewDecoder(zerolog.New(&logs))

	events, terminal := dec.Feed([]byte(
		"data: {\"type\":\"text\",\"content\":\"one\"}\n\n" +
			"data: {\"type\":\"text\",\"content\":\n\n" +
			"data: {\"type\":\"text\",\"content\":\"two\"}\n\n"))

	assert.False(t, terminal)
	require.Len(t, events, 2)
	assert.Equal(t, "one", events[0].Content())
	assert.Equal(t, "two", events[1].Content())
	assert.Contains(t, logs.String(), "malformed data frame")
	assert.Contains(t, logs.String(), `{\"type\":\"text\",\"content\":`)
}

func TestDecoder_NonObjectDataIsAnomaly(t *testing.T) {
	t.Parallel()
	var logs bytes.Buffer
	dec := sse.NewDecoder(zerolog.New(&logs))

	events, _ := dec.Feed([]byte("data: [1,2,3]\ndata: \"str\"\n"))

	assert.Empty(t, events)
	assert.Equal(t, 2, bytes.Count(logs.Bytes(), []byte("malformed data frame")))
}

func TestDecoder_UnexpectedLineIsLoggedNotFatal(t *testing.T) {
	t.Parallel()
	var logs bytes.Buffer
	dec := sse.NewDecoder(zerolog.New(&logs))

	events, terminal := dec.Feed([]byte("event: message\nretry: 100\ndata: {\"type\":\"text\",\"content\":\"x\"}\n"))

	assert.False(t, terminal)
	require.Len(t, events, 1)
	assert.Equal(t, parachute.EventText, events[0].Type)
	assert.Contains(t, logs.String(), "unexpected line")
}

func TestDecoder_DoneMarker(t *testing.T) {
	t.Parallel()
	for _, line := range []string{"data: [DONE]\n", "data:\n", "data: \n"} {
		dec := sse.NewDecoder(zerolog.Nop())
		events, terminal := dec.Feed([]byte(line))
		assert.True(t, terminal, "line %q", line)
		require.Len(t, events, 1, "line %q", line)
		assert.Equal(t, parachute.EventDone, events[0].Type)
		assert.Empty(t, events[0].Note())
		assert.JSONEq(t, `{"type":"done"}`, string(events[0].Raw))
	}
}

func TestDecoder_StopsAtTerminalEvent(t *testing.T) {
	t.Parallel()
	dec := sse.NewDecoder(zerolog.Nop())

	events, terminal := dec.Feed([]byte(
		"data: {\"type\":\"error\",\"error\":\"boom\"}\n" +
			"data: {\"type\":\"text\",\"content\":\"late\"}\n"))

	assert.True(t, terminal)
	assert.True(t, dec.Terminal())
	require.Len(t, events, 1)
	assert.Equal(t, "boom", events[0].ErrorMessage())

	more, terminal := dec.Feed([]byte("data: {\"type\":\"text\",\"content\":\"later\"}\n"))
	assert.True(t, terminal)
	assert.Empty(t, more)
}

func TestDecoder_UnknownType(t *testing.T) {
	t.Parallel()
	events := decodeAll(t, []byte("data: {\"type\":\"compaction\",\"n\":3}\ndata: {\"n\":4}\n"))

	require.Len(t, events, 2)
	assert.Equal(t, parachute.EventUnknown, events[0].Type)
	assert.Equal(t, "compaction", events[0].Payload["type"])
	assert.Equal(t, parachute.EventUnknown, events[1].Type)
}

func TestDecoder_PartialLineWaitsForNewline(t *testing.T) {
	t.Parallel()
	dec := sse.NewDecoder(zerolog.Nop())

	events, _ := dec.Feed([]byte(`data: {"type":"text","con`))
	assert.Empty(t, events)

	events, _ = dec.Feed([]byte("tent\":\"joined\"}\n"))
	require.Len(t, events, 1)
	assert.Equal(t, "joined", events[0].Content())
}

func TestDecoder_FlushDecodesUnterminatedLine(t *testing.T) {
	t.Parallel()
	dec := sse.NewDecoder(zerolog.Nop())

	events, _ := dec.Feed([]byte(`data: {"type":"done"}`))
	assert.Empty(t, events)

	events, terminal := dec.Flush()
	assert.True(t, terminal)
	require.Len(t, events, 1)
	assert.Equal(t, parachute.EventDone, events[0].Type)
}

func TestDecoder_FlushDropsTruncatedFrame(t *testing.T) {
	t.Parallel()
	var logs bytes.Buffer
	dec := sse.NewDecoder(zerolog.New(&logs))

	dec.Feed([]byte(`data: {"type":"text","content":"cut of`))
	events, terminal := dec.Flush()

	assert.False(t, terminal)
	assert.Empty(t, events)
	assert.Contains(t, logs.String(), "malformed data frame")
}
