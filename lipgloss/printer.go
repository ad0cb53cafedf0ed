package lipgloss

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	lg "github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/fwojciec/parachute"
	"github.com/mattn/go-runewidth"
)

// DefaultWidth is the column budget for one-line previews.
const DefaultWidth = 80

type blockKind int

const (
	blockNone blockKind = iota
	blockText
	blockThinking
	blockLine
)

// Printer writes live events and stored turns to a terminal. A Printer
// follows one stream at a time and is not safe for concurrent use.
type Printer struct {
	w      io.Writer
	styles Styles
	width  int
	now    func() time.Time

	kind  blockKind
	shown string
	atBOL bool
}

// PrinterOption configures a Printer.
type PrinterOption func(*Printer)

// WithTheme sets the color theme.
func WithTheme(t Theme) PrinterOption {
	return func(p *Printer) {
		p.styles = NewStyles(lg.NewRenderer(p.w), t)
	}
}

// WithWidth sets the column budget for tool previews.
func WithWidth(n int) PrinterOption {
	return func(p *Printer) {
		if n > 0 {
			p.width = n
		}
	}
}

// WithClock sets the clock used for relative timestamps.
func WithClock(now func() time.Time) PrinterOption {
	return func(p *Printer) {
		p.now = now
	}
}

// NewPrinter returns a Printer writing to w. Colors are used only when w is
// a terminal that supports them.
func NewPrinter(w io.Writer, opts ...PrinterOption) *Printer {
	p := &Printer{
		w:     w,
		width: DefaultWidth,
		now:   time.Now,
		atBOL: true,
	}
	p.styles = NewStyles(lg.NewRenderer(w), DefaultTheme())
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Event renders one live stream event.
//
// Text and thinking events may carry either a delta or the accumulated
// content of the current block; when the new content extends what was
// already shown, only the extension is printed.
func (p *Printer) Event(e parachute.Event) {
	switch e.Type {
	case parachute.EventSession:
		line := p.styles.Muted.Render("session ") + p.styles.Accent.Render(e.SessionID())
		if title := e.Title(); title != "" {
			line += p.styles.Muted.Render(" · ") + title
		}
		p.line(line)
	case parachute.EventText:
		p.stream(blockText, e.Content(), nil)
	case parachute.EventThinking:
		p.stream(blockThinking, e.Content(), &p.styles.Thinking)
	case parachute.EventToolUse:
		call := e.Tool()
		p.line(p.toolHeader(call.Name, call.Input))
	case parachute.EventToolResult:
		p.line(p.toolResult(e.Content(), e.IsError()))
	case parachute.EventSessionUnavailable:
		u := e.Unavailable()
		msg := u.Message
		if msg == "" {
			msg = "session unavailable: " + u.Reason
		}
		if u.HasMarkdownHistory {
			msg += fmt.Sprintf(" (%d stored messages)", u.MessageCount)
		}
		p.line(p.styles.Error.Render("! " + msg))
	case parachute.EventDone:
		p.endLine()
		var parts []string
		if ms := e.DurationMs(); ms > 0 {
			parts = append(parts, "done in "+(time.Duration(ms)*time.Millisecond).Round(100*time.Millisecond).String())
		} else {
			parts = append(parts, "done")
		}
		if note := e.Note(); note != "" {
			parts = append(parts, note)
		}
		p.line(p.styles.Success.Render("✓ ") + p.styles.Muted.Render(strings.Join(parts, " · ")))
	case parachute.EventError:
		p.line(p.styles.Error.Render("✗ error: " + e.ErrorMessage()))
	}
}

// User echoes a message the user sent.
func (p *Printer) User(message string) {
	p.line(p.styles.User.Render("you ›") + " " + message)
}

// Attachment reports a file attached to the next turn.
func (p *Printer) Attachment(a parachute.Attachment) {
	p.line(p.styles.Muted.Render(fmt.Sprintf("attached %s (%s, %s)", a.Name, a.MimeType, humanize.Bytes(uint64(len(a.Data))))))
}

// Turns renders reconstructed conversation turns.
func (p *Printer) Turns(turns []parachute.Turn) {
	for i, t := range turns {
		if i > 0 {
			p.line("")
		}
		p.line(p.turnHeader(t))
		for _, block := range t.Content {
			switch b := block.(type) {
			case parachute.TextBlock:
				p.lines(b.Text, nil)
			case parachute.ThinkingBlock:
				p.lines(b.Thinking, &p.styles.Thinking)
			case parachute.ToolCallBlock:
				p.line(p.toolHeader(b.Name, b.Input))
			}
		}
	}
}

// Streams lists the sessions with an active turn.
func (p *Printer) Streams(ids []string) {
	if len(ids) == 0 {
		p.line(p.styles.Muted.Render("no active streams"))
		return
	}
	for _, id := range ids {
		p.line(p.styles.Accent.Render(id))
	}
}

// Status reports whether a session has an active turn.
func (p *Printer) Status(sessionID string, active bool) {
	state := p.styles.Muted.Render("idle")
	if active {
		state = p.styles.Success.Render("streaming")
	}
	p.line(p.styles.Accent.Render(sessionID) + " " + state)
}

// Notice prints a muted informational line.
func (p *Printer) Notice(msg string) {
	p.line(p.styles.Muted.Render(msg))
}

func (p *Printer) turnHeader(t parachute.Turn) string {
	label := p.styles.Agent.Render("parachute")
	if t.Role == parachute.RoleUser {
		label = p.styles.User.Render("you")
	}
	if t.Timestamp.IsZero() {
		return label
	}
	return label + p.styles.Muted.Render(" · "+humanize.RelTime(t.Timestamp, p.now(), "ago", "from now"))
}

func (p *Printer) toolHeader(name string, input map[string]any) string {
	header := "▶ " + name
	if len(input) == 0 {
		return p.styles.ToolCall.Render(header)
	}
	preview := ""
	if data, err := json.Marshal(input); err == nil {
		preview = string(data)
	}
	room := p.width - runewidth.StringWidth(header) - 2
	if room < 8 {
		return p.styles.ToolCall.Render(header)
	}
	return p.styles.ToolCall.Render(header) + "  " + p.styles.Muted.Render(runewidth.Truncate(preview, room, "…"))
}

func (p *Printer) toolResult(content string, isError bool) string {
	mark, style := "✓", p.styles.Success
	if isError {
		mark, style = "✗", p.styles.Error
	}
	first, _, _ := strings.Cut(strings.TrimSpace(content), "\n")
	room := p.width - 4
	return "  " + style.Render(mark) + " " + p.styles.Muted.Render(runewidth.Truncate(first, room, "…"))
}

// stream prints the new part of a text or thinking block. A nil style
// prints plain text.
func (p *Printer) stream(kind blockKind, content string, style *lg.Style) {
	if p.kind != kind {
		p.endLine()
		p.kind = kind
		p.shown = ""
		if kind == blockThinking {
			p.write(paint(style, "thinking: "))
		}
	}
	delta := content
	if rest, ok := strings.CutPrefix(content, p.shown); ok {
		delta = rest
		p.shown = content
	} else {
		p.shown += content
	}
	p.write(paint(style, delta))
}

// line prints s on a line of its own.
func (p *Printer) line(s string) {
	p.endLine()
	p.kind = blockLine
	p.write(s + "\n")
}

func (p *Printer) lines(s string, style *lg.Style) {
	s = strings.TrimRight(s, "\n")
	if strings.TrimSpace(s) == "" {
		return
	}
	p.line(paint(style, s))
}

func (p *Printer) endLine() {
	if !p.atBOL {
		p.write("\n")
	}
}

func (p *Printer) write(s string) {
	if s == "" {
		return
	}
	_, _ = io.WriteString(p.w, s)
	p.atBOL = strings.HasSuffix(s, "\n")
}

// paint styles each line separately so lipgloss does not pad multi-line
// text to a common width.
func paint(style *lg.Style, s string) string {
	if style == nil {
		return s
	}
	parts := strings.Split(s, "\n")
	for i, part := range parts {
		if part != "" {
			parts[i] = style.Render(part)
		}
	}
	return strings.Join(parts, "\n")
}
