package http

import (
	"context"
	"fmt"
	"net/http"
	"slices"

	"github.com/tidwall/gjson"
)

// HasActiveStream reports whether the server is generating a turn for
// sessionID. The probe is bounded by the probe timeout and any failure
// reports false.
func (c *Client) HasActiveStream(ctx context.Context, sessionID string) bool {
	status, body, err := c.do(ctx, c.probeTimeout, http.MethodGet, c.chatPath(sessionID, "stream-status"), nil)
	if err == nil && !success(status) {
		err = statusError(status, body)
	}
	if err != nil {
		c.logger.Warn().Err(err).Str("session_id", sessionID).Msg("stream status probe failed")
		return false
	}
	return gjson.GetBytes(body, "active").Bool()
}

// ActiveStreams lists the sessions with a turn in progress, sorted and
// without duplicates. Any failure reports an empty list.
func (c *Client) ActiveStreams(ctx context.Context) []string {
	status, body, err := c.do(ctx, c.probeTimeout, http.MethodGet, c.chatPath("active-streams"), nil)
	if err == nil && !success(status) {
		err = statusError(status, body)
	}
	if err == nil && !gjson.ValidBytes(body) {
		err = fmt.Errorf("invalid response body")
	}
	if err != nil {
		c.logger.Warn().Err(err).Msg("active streams probe failed")
		return nil
	}

	var ids []string
	gjson.GetBytes(body, "streams").ForEach(func(_, v gjson.Result) bool {
		var id string
		switch {
		case v.Type == gjson.String:
			id = v.String()
		case v.IsObject():
			id = v.Get("session_id").String()
			if id == "" {
				id = v.Get("sessionId").String()
			}
		}
		if id != "" {
			ids = append(ids, id)
		}
		return true
	})
	slices.Sort(ids)
	return slices.Compact(ids)
}

// Abort asks the server to stop the turn in progress for sessionID. It
// reports false with a nil error when the server had nothing to abort. The
// local stream still has to be drained or closed.
func (c *Client) Abort(ctx context.Context, sessionID string) (bool, error) {
	status, body, err := c.do(ctx, c.connectTimeout, http.MethodPost, c.chatPath(sessionID, "abort"), nil)
	if err != nil {
		return false, fmt.Errorf("http: abort %s: %w", sessionID, err)
	}
	switch {
	case status == http.StatusNotFound:
		return false, nil
	case !success(status):
		return false, fmt.Errorf("http: abort %s: %w", sessionID, statusError(status, body))
	}
	c.logger.Info().Str("session_id", sessionID).Msg("turn aborted")
	return true, nil
}
