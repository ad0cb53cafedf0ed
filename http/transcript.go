package http

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/fwojciec/parachute"
	parachutejson "github.com/fwojciec/parachute/json"
)

// Transcript fetches the stored event history of sessionID.
func (c *Client) Transcript(ctx context.Context, sessionID string, q parachute.TranscriptQuery) (*parachute.Transcript, error) {
	status, body, err := c.do(ctx, 0, http.MethodGet, c.chatPath(sessionID, "transcript"), transcriptQuery(q))
	if err != nil {
		return nil, fmt.Errorf("http: transcript %s: %w", sessionID, err)
	}
	switch {
	case status == http.StatusNotFound:
		return nil, fmt.Errorf("http: transcript %s: %w", sessionID, parachute.ErrNotFound)
	case !success(status):
		return nil, fmt.Errorf("http: transcript %s: %w", sessionID, statusError(status, body))
	}
	t, err := parachutejson.UnmarshalTranscript(body)
	if err != nil {
		return nil, fmt.Errorf("http: transcript %s: %w", sessionID, err)
	}
	if t.SessionID == "" {
		t.SessionID = sessionID
	}
	return t, nil
}

func transcriptQuery(q parachute.TranscriptQuery) url.Values {
	v := url.Values{}
	if q.AfterCompact {
		v.Set("after_compact", "true")
	}
	if q.Segment != nil {
		v.Set("segment", strconv.Itoa(*q.Segment))
	}
	if q.Full {
		v.Set("full", "true")
	}
	return v
}
