package parachute

import "time"

// TranscriptEvent is a stored protocol event normalized for history
// reconstruction.
//
// UUID is empty when the server did not assign one. ParentUUID points back to
// an earlier event and is only ever used for lookup. A zero Timestamp means
// the event carried none; consumers substitute the current time.
type TranscriptEvent struct {
	Type       string
	UUID       string
	ParentUUID string
	Timestamp  time.Time
	Message    *TranscriptMessage
}

// TranscriptMessage is the message carried by a user or assistant event.
// ID is the upstream API message id; successive snapshots of the same
// round share it.
type TranscriptMessage struct {
	ID      string
	Role    Role
	Content []ContentBlock
}

// Transcript is the stored event history of a session.
type Transcript struct {
	SessionID      string
	TranscriptPath string
	EventCount     int
	Events         []TranscriptEvent
}

// TranscriptQuery selects which part of a stored transcript to fetch.
// A nil Segment means the server default.
type TranscriptQuery struct {
	AfterCompact bool
	Segment      *int
	Full         bool
}
