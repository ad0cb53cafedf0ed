package transcript

import (
	"fmt"
	"strings"

	"github.com/fwojciec/parachute"
)

// PriorConversation renders turns as plain text for a turn request's
// PriorConversation field. Thinking is omitted and tool calls are reduced to
// a one-line marker.
func PriorConversation(turns []parachute.Turn) string {
	var b strings.Builder
	for _, t := range turns {
		var body []string
		for _, block := range t.Content {
			switch v := block.(type) {
			case parachute.TextBlock:
				body = append(body, strings.TrimSpace(v.Text))
			case parachute.ToolCallBlock:
				body = append(body, fmt.Sprintf("[tool: %s]", v.Name))
			}
		}
		if len(body) == 0 {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%s: %s", label(t.Role), strings.Join(body, "\n"))
	}
	return b.String()
}

func label(r parachute.Role) string {
	switch r {
	case parachute.RoleUser:
		return "User"
	case parachute.RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}
