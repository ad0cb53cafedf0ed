package json

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fwojciec/parachute"
)

// envelope is the v1 wire format for a saved conversation.
type envelope struct {
	Version   int       `json:"version"`
	SessionID string    `json:"session_id"`
	Turns     []turnDTO `json:"turns"`
}

type turnDTO struct {
	ID        string         `json:"id,omitempty"`
	Role      string         `json:"role"`
	Timestamp time.Time      `json:"timestamp"`
	Content   []contentBlock `json:"content"`
}

// MarshalTurns serializes reconstructed turns to JSON in v1 envelope format.
func MarshalTurns(sessionID string, turns []parachute.Turn) ([]byte, error) {
	env := envelope{
		Version:   1,
		SessionID: sessionID,
		Turns:     make([]turnDTO, len(turns)),
	}
	for i, t := range turns {
		blocks, err := marshalContentBlocks(t.Content)
		if err != nil {
			return nil, fmt.Errorf("turn %d: %w", i, err)
		}
		env.Turns[i] = turnDTO{
			ID:        t.ID,
			Role:      string(t.Role),
			Timestamp: t.Timestamp,
			Content:   blocks,
		}
	}
	return json.MarshalIndent(env, "", "  ")
}

// UnmarshalTurns deserializes turns from JSON in v1 envelope format. Every
// turn is validated for its role.
func UnmarshalTurns(data []byte) (string, []parachute.Turn, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Version != 1 {
		return "", nil, fmt.Errorf("unsupported envelope version: %d", env.Version)
	}
	turns := make([]parachute.Turn, len(env.Turns))
	for i, dto := range env.Turns {
		blocks, err := unmarshalContentBlocks(dto.Content)
		if err != nil {
			return "", nil, fmt.Errorf("turn %d: %w", i, err)
		}
		t := parachute.Turn{
			ID:        dto.ID,
			Role:      parachute.Role(dto.Role),
			Content:   blocks,
			Timestamp: dto.Timestamp,
		}
		if err := parachute.ValidateTurn(t); err != nil {
			return "", nil, fmt.Errorf("turn %d: %w", i, err)
		}
		turns[i] = t
	}
	return env.SessionID, turns, nil
}

// Save writes turns to a JSON file, creating parent directories as needed.
// The file is replaced atomically.
func Save(path, sessionID string, turns []parachute.Turn) error {
	data, err := MarshalTurns(sessionID, turns)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp) // best-effort cleanup
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// Load reads turns saved by Save.
func Load(path string) (string, []parachute.Turn, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("read file: %w", err)
	}
	return UnmarshalTurns(data)
}
