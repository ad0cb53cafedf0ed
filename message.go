package parachute

import "time"

// Turn is one display-ready conversation message reconstructed from
// transcript events. Content is never empty for an emitted turn.
type Turn struct {
	ID        string
	Role      Role
	Content   []ContentBlock
	Timestamp time.Time
}

// ContentBlock is a sealed interface representing a block of content.
// The unexported marker method prevents external implementations.
type ContentBlock interface {
	contentBlock()
}

// TextBlock contains text content.
type TextBlock struct {
	Text string
}

func (TextBlock) contentBlock() {}

// ThinkingBlock contains thinking/reasoning content.
type ThinkingBlock struct {
	Thinking string
}

func (ThinkingBlock) contentBlock() {}

// ToolCallBlock represents a tool call from the assistant.
type ToolCallBlock struct {
	ID    string
	Name  string
	Input map[string]any
}

func (ToolCallBlock) contentBlock() {}

// ToolResultBlock is the result of a tool call echoed back in a user event.
// It appears in transcript events only and is never part of a Turn.
type ToolResultBlock struct {
	ToolUseID string
	Content   string
	IsError   bool
}

func (ToolResultBlock) contentBlock() {}

// Interface compliance checks.
var (
	_ ContentBlock = TextBlock{}
	_ ContentBlock = ThinkingBlock{}
	_ ContentBlock = ToolCallBlock{}
	_ ContentBlock = ToolResultBlock{}
)
