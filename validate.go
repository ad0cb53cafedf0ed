package parachute

import (
	"fmt"
	"strings"
)

// Validate checks the constraints on TurnRequest that hold for every server.
func (r TurnRequest) Validate() error {
	if strings.TrimSpace(r.Message) == "" {
		return fmt.Errorf("message must not be empty: %w", ErrValidation)
	}
	for i, a := range r.Attachments {
		if a.Name == "" {
			return fmt.Errorf("attachment %d has no name: %w", i, ErrValidation)
		}
		if len(a.Data) == 0 {
			return fmt.Errorf("attachment %q is empty: %w", a.Name, ErrValidation)
		}
	}
	return nil
}

// ValidateTurn checks that a turn is non-empty and that its content blocks
// are valid for its role.
func ValidateTurn(t Turn) error {
	if len(t.Content) == 0 {
		return fmt.Errorf("%s turn has no content: %w", t.Role, ErrValidation)
	}
	switch t.Role {
	case RoleUser:
		return validateBlocks(t.Content, t.Role, allowText)
	case RoleAssistant:
		return validateBlocks(t.Content, t.Role, allowText|allowThinking|allowToolCall)
	default:
		return fmt.Errorf("unknown role %q: %w", t.Role, ErrValidation)
	}
}

type blockAllow uint8

const (
	allowText blockAllow = 1 << iota
	allowThinking
	allowToolCall
)

func validateBlocks(blocks []ContentBlock, role Role, allowed blockAllow) error {
	for _, b := range blocks {
		switch b.(type) {
		case TextBlock:
			if allowed&allowText == 0 {
				return fmt.Errorf("TextBlock not allowed in %s turn: %w", role, ErrValidation)
			}
		case ThinkingBlock:
			if allowed&allowThinking == 0 {
				return fmt.Errorf("ThinkingBlock not allowed in %s turn: %w", role, ErrValidation)
			}
		case ToolCallBlock:
			if allowed&allowToolCall == 0 {
				return fmt.Errorf("ToolCallBlock not allowed in %s turn: %w", role, ErrValidation)
			}
		case ToolResultBlock:
			return fmt.Errorf("ToolResultBlock not allowed in %s turn: %w", role, ErrValidation)
		default:
			return fmt.Errorf("unknown content block type %T in %s turn: %w", b, role, ErrValidation)
		}
	}
	return nil
}
