package json

import (
	"encoding/json"
	"fmt"

	"github.com/fwojciec/parachute"
)

// contentBlock is the JSON representation of a ContentBlock with a type
// discriminator. The field set covers both the persisted turn format and the
// server's transcript blocks.
type contentBlock struct {
	Type      string          `json:"type"`
	Text      *string         `json:"text,omitempty"`
	Thinking  *string         `json:"thinking,omitempty"`
	ID        *string         `json:"id,omitempty"`
	Name      *string         `json:"name,omitempty"`
	Input     map[string]any  `json:"input,omitempty"`
	ToolUseID *string         `json:"tool_use_id,omitempty"`
	Content   json.RawMessage `json:"content,omitempty"`
	IsError   bool            `json:"is_error,omitempty"`
}

func marshalContentBlocks(blocks []parachute.ContentBlock) ([]contentBlock, error) {
	result := make([]contentBlock, len(blocks))
	for i, b := range blocks {
		cb, err := marshalContentBlock(b)
		if err != nil {
			return nil, fmt.Errorf("content block %d: %w", i, err)
		}
		result[i] = cb
	}
	return result, nil
}

func marshalContentBlock(b parachute.ContentBlock) (contentBlock, error) {
	switch v := b.(type) {
	case parachute.TextBlock:
		return contentBlock{Type: "text", Text: &v.Text}, nil
	case parachute.ThinkingBlock:
		return contentBlock{Type: "thinking", Thinking: &v.Thinking}, nil
	case parachute.ToolCallBlock:
		return contentBlock{Type: "tool_use", ID: &v.ID, Name: &v.Name, Input: v.Input}, nil
	case parachute.ToolResultBlock:
		content, err := json.Marshal(v.Content)
		if err != nil {
			return contentBlock{}, err
		}
		return contentBlock{Type: "tool_result", ToolUseID: &v.ToolUseID, Content: content, IsError: v.IsError}, nil
	default:
		return contentBlock{}, fmt.Errorf("unknown content block type: %T", b)
	}
}

func unmarshalContentBlocks(dtos []contentBlock) ([]parachute.ContentBlock, error) {
	result := make([]parachute.ContentBlock, len(dtos))
	for i, dto := range dtos {
		b, err := unmarshalContentBlock(dto)
		if err != nil {
			return nil, fmt.Errorf("content block %d: %w", i, err)
		}
		result[i] = b
	}
	return result, nil
}

func unmarshalContentBlock(dto contentBlock) (parachute.ContentBlock, error) {
	switch dto.Type {
	case "text":
		return parachute.TextBlock{Text: deref(dto.Text)}, nil
	case "thinking":
		return parachute.ThinkingBlock{Thinking: deref(dto.Thinking)}, nil
	case "tool_use":
		return parachute.ToolCallBlock{ID: deref(dto.ID), Name: deref(dto.Name), Input: dto.Input}, nil
	case "tool_result":
		return parachute.ToolResultBlock{
			ToolUseID: deref(dto.ToolUseID),
			Content:   toolResultText(dto.Content),
			IsError:   dto.IsError,
		}, nil
	default:
		return nil, fmt.Errorf("unknown content block type: %q", dto.Type)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
