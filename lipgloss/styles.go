// Package lipgloss renders chat streams and transcripts as styled terminal
// text.
package lipgloss

import (
	"strconv"

	lg "github.com/charmbracelet/lipgloss"
)

// Theme defines semantic color mappings using ANSI color indices (0-15).
// The user's terminal theme determines the actual RGB values. A negative
// index leaves the role uncolored.
type Theme struct {
	User     int // User label
	Agent    int // Assistant label
	Thinking int // Thinking text
	ToolCall int // Tool call header
	Error    int // Errors and failed tool results
	Success  int // Completion and successful tool results
	Muted    int // Notes, timestamps, previews
	Accent   int // Session ids and titles
}

// DefaultTheme returns the default ANSI color mapping.
func DefaultTheme() Theme {
	return Theme{
		User:     4,
		Agent:    5,
		Thinking: 8,
		ToolCall: 3,
		Error:    1,
		Success:  2,
		Muted:    8,
		Accent:   6,
	}
}

// Styles maps a Theme to lipgloss styles.
type Styles struct {
	User     lg.Style
	Agent    lg.Style
	Thinking lg.Style
	ToolCall lg.Style
	Error    lg.Style
	Success  lg.Style
	Muted    lg.Style
	Accent   lg.Style
}

// NewStyles creates Styles from a Theme for the given renderer. A nil
// renderer uses the lipgloss default, which inspects stdout.
func NewStyles(r *lg.Renderer, t Theme) Styles {
	if r == nil {
		r = lg.DefaultRenderer()
	}
	return Styles{
		User:     r.NewStyle().Foreground(ansiColor(t.User)).Bold(true),
		Agent:    r.NewStyle().Foreground(ansiColor(t.Agent)).Bold(true),
		Thinking: r.NewStyle().Foreground(ansiColor(t.Thinking)).Faint(true),
		ToolCall: r.NewStyle().Foreground(ansiColor(t.ToolCall)),
		Error:    r.NewStyle().Foreground(ansiColor(t.Error)),
		Success:  r.NewStyle().Foreground(ansiColor(t.Success)),
		Muted:    r.NewStyle().Foreground(ansiColor(t.Muted)).Faint(true),
		Accent:   r.NewStyle().Foreground(ansiColor(t.Accent)).Bold(true),
	}
}

func ansiColor(index int) lg.TerminalColor {
	if index < 0 {
		return lg.NoColor{}
	}
	return lg.Color(strconv.Itoa(index))
}
