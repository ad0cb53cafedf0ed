package transcript

import "github.com/fwojciec/parachute"

// Dedupe drops events whose uuid was already seen, keeping the first
// occurrence. Events without a uuid are always kept. It is used when a
// joined stream replays events that are also in the stored history.
func Dedupe(events []parachute.TranscriptEvent) []parachute.TranscriptEvent {
	seen := make(map[string]struct{}, len(events))
	out := make([]parachute.TranscriptEvent, 0, len(events))
	for _, e := range events {
		if e.UUID != "" {
			if _, ok := seen[e.UUID]; ok {
				continue
			}
			seen[e.UUID] = struct{}{}
		}
		out = append(out, e)
	}
	return out
}

// Seen returns a filter that reports whether a live event's uuid was already
// delivered, either in history or earlier in the stream. Events without a
// uuid are never filtered.
func Seen(history []parachute.TranscriptEvent) func(parachute.Event) bool {
	seen := make(map[string]struct{}, len(history))
	for _, e := range history {
		if e.UUID != "" {
			seen[e.UUID] = struct{}{}
		}
	}
	return func(evt parachute.Event) bool {
		id := evt.UUID()
		if id == "" {
			return false
		}
		if _, ok := seen[id]; ok {
			return true
		}
		seen[id] = struct{}{}
		return false
	}
}
