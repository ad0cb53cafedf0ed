package json_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fwojciec/parachute"
	parachutejson "github.com/fwojciec/parachute/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTurns() []parachute.Turn {
	return []parachute.Turn{
		{
			ID:        "e1",
			Role:      parachute.RoleUser,
			Content:   []parachute.ContentBlock{parachute.TextBlock{Text: "Fix the login bug"}},
			Timestamp: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		},
		{
			ID:   "e2",
			Role: parachute.RoleAssistant,
			Content: []parachute.ContentBlock{
				parachute.ThinkingBlock{Thinking: "I'll look at the auth module."},
				parachute.ToolCallBlock{ID: "tu_1", Name: "read", Input: map[string]any{
					"path":  "auth.go",
					"lines": []any{float64(1), float64(40)},
				}},
				parachute.TextBlock{Text: "Fixed."},
			},
			Timestamp: time.Date(2026, 3, 1, 10, 0, 5, 0, time.UTC),
		},
	}
}

func TestMarshalTurns_RoundTrip(t *testing.T) {
	t.Parallel()
	turns := sampleTurns()

	data, err := parachutejson.MarshalTurns("s1", turns)
	require.NoError(t, err)

	sessionID, got, err := parachutejson.UnmarshalTurns(data)
	require.NoError(t, err)

	assert.Equal(t, "s1", sessionID)
	require.Len(t, got, len(turns))
	for i := range turns {
		assert.Equal(t, turns[i].ID, got[i].ID)
		assert.Equal(t, turns[i].Role, got[i].Role)
		assert.Equal(t, turns[i].Content, got[i].Content)
		assert.True(t, turns[i].Timestamp.Equal(got[i].Timestamp), "turn %d timestamp", i)
	}
}

func TestMarshalTurns_V1Envelope(t *testing.T) {
	t.Parallel()

	data, err := parachutejson.MarshalTurns("s1", sampleTurns())
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, float64(1), raw["version"])
	assert.Equal(t, "s1", raw["session_id"])

	turns := raw["turns"].([]any)
	require.Len(t, turns, 2)
	assistant := turns[1].(map[string]any)
	assert.Equal(t, "assistant", assistant["role"])
	blocks := assistant["content"].([]any)
	require.Len(t, blocks, 3)
	assert.Equal(t, "thinking", blocks[0].(map[string]any)["type"])
	call := blocks[1].(map[string]any)
	assert.Equal(t, "tool_use", call["type"])
	assert.Equal(t, "tu_1", call["id"])
	assert.Equal(t, "auth.go", call["input"].(map[string]any)["path"])
}

func TestUnmarshalTurns_Rejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		data string
	}{
		{"invalid json", `{`},
		{"unsupported version", `{"version": 2, "turns": []}`},
		{"unknown block type", `{"version": 1, "turns": [{"role": "user", "content": [{"type": "image"}]}]}`},
		{"empty turn", `{"version": 1, "turns": [{"role": "user", "content": []}]}`},
		{"tool call in user turn", `{"version": 1, "turns": [{"role": "user", "content": [{"type": "tool_use", "id": "t", "name": "n"}]}]}`},
		{"tool result in assistant turn", `{"version": 1, "turns": [{"role": "assistant", "content": [{"type": "tool_result", "tool_use_id": "t"}]}]}`},
		{"unknown role", `{"version": 1, "turns": [{"role": "system", "content": [{"type": "text", "text": "x"}]}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, _, err := parachutejson.UnmarshalTurns([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestUnmarshalTurns_ValidationErrorIsSentinel(t *testing.T) {
	t.Parallel()

	_, _, err := parachutejson.UnmarshalTurns([]byte(`{"version": 1, "turns": [{"role": "user", "content": []}]}`))
	assert.ErrorIs(t, err, parachute.ErrValidation)
}

func TestSave_And_Load(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "deep", "s1.json")

	require.NoError(t, parachutejson.Save(path, "s1", sampleTurns()))

	_, err := os.Stat(path)
	require.NoError(t, err)
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))

	sessionID, got, err := parachutejson.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "s1", sessionID)
	require.Len(t, got, 2)
	assert.Equal(t, sampleTurns()[1].Content, got[1].Content)
}

func TestLoad_NonexistentFile(t *testing.T) {
	t.Parallel()
	_, _, err := parachutejson.Load("/nonexistent/path/s1.json")
	assert.Error(t, err)
}
