package http

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fwojciec/parachute"
	"github.com/fwojciec/parachute/sse"
	"github.com/google/uuid"
)

// chatRequest is the JSON body of POST {prefix}/chat.
type chatRequest struct {
	Message           string          `json:"message"`
	SessionID         string          `json:"sessionId"`
	SystemPrompt      string          `json:"systemPrompt,omitempty"`
	InitialContext    string          `json:"initialContext,omitempty"`
	PriorConversation string          `json:"priorConversation,omitempty"`
	ContinuedFrom     string          `json:"continuedFrom,omitempty"`
	WorkingDirectory  string          `json:"workingDirectory,omitempty"`
	Contexts          []string        `json:"contexts,omitempty"`
	Attachments       []apiAttachment `json:"attachments,omitempty"`
}

type apiAttachment struct {
	Name     string `json:"name"`
	MimeType string `json:"mimeType,omitempty"`
	Data     string `json:"data"` // base64
}

func newChatRequest(req parachute.TurnRequest) chatRequest {
	r := chatRequest{
		Message:           req.Message,
		SessionID:         req.SessionID,
		SystemPrompt:      req.SystemPrompt,
		InitialContext:    req.InitialContext,
		PriorConversation: req.PriorConversation,
		ContinuedFrom:     req.ContinuedFrom,
		WorkingDirectory:  req.WorkingDirectory,
		Contexts:          req.Contexts,
	}
	for _, a := range req.Attachments {
		r.Attachments = append(r.Attachments, apiAttachment{
			Name:     a.Name,
			MimeType: a.MimeType,
			Data:     base64.StdEncoding.EncodeToString(a.Data),
		})
	}
	return r
}

// StartTurn sends one user message and returns the turn's event stream.
//
// Only validation and ErrTurnInProgress come back as errors. Connection
// failures and non-2xx responses yield a stream whose single event is the
// terminal error. A start is never retried.
func (c *Client) StartTurn(ctx context.Context, req parachute.TurnRequest) (parachute.Stream, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	body, err := json.Marshal(newChatRequest(req))
	if err != nil {
		return nil, fmt.Errorf("http: %w", err)
	}
	if !c.acquire(req.SessionID) {
		return nil, fmt.Errorf("http: session %q: %w", req.SessionID, parachute.ErrTurnInProgress)
	}
	release := func() { c.release(req.SessionID) }

	requestID := uuid.NewString()
	logger := c.logger.With().
		Str("request_id", requestID).
		Str("session_id", req.SessionID).
		Logger()
	logger.Debug().Msg("starting turn")

	cn, err := c.connect(ctx, func(ctx context.Context) (*http.Request, error) {
		r, err := c.newRequest(ctx, http.MethodPost, c.chatPath(), nil, body)
		if err != nil {
			return nil, err
		}
		r.Header.Set("X-Request-Id", requestID)
		return r, nil
	})
	if err != nil {
		release()
		logger.Warn().Err(err).Msg("turn start failed")
		return sse.Failed(fmt.Sprintf("connection failed: %v", err)), nil
	}
	if !success(cn.resp.StatusCode) {
		err := readStatusError(cn.resp)
		cn.release()
		release()
		logger.Warn().Err(err).Int("status", cn.resp.StatusCode).Msg("turn start rejected")
		return sse.Failed(err.Error()), nil
	}
	return c.stream(cn, logger, release), nil
}

// acquire marks a turn in flight for sessionID. Requests without a session
// id create a new session and are never serialized.
func (c *Client) acquire(sessionID string) bool {
	if sessionID == "" {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.active[sessionID]; ok {
		return false
	}
	c.active[sessionID] = struct{}{}
	return true
}

func (c *Client) release(sessionID string) {
	if sessionID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, sessionID)
}

// JoinStream attaches to the in-progress turn of sessionID.
//
// A 404 means there is nothing to join and returns (nil, false). Connection
// failures and 5xx responses are retried with exponential backoff; once the
// retries are exhausted the returned stream carries the failure as its
// terminal error event.
func (c *Client) JoinStream(ctx context.Context, sessionID string) (parachute.Stream, bool) {
	logger := c.logger.With().Str("session_id", sessionID).Logger()

	var joined *conn
	op := func() error {
		cn, err := c.connect(ctx, func(ctx context.Context) (*http.Request, error) {
			return c.newRequest(ctx, http.MethodGet, c.chatPath(sessionID, "join"), nil, nil)
		})
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, errClientClosed) {
				return backoff.Permanent(err)
			}
			return err
		}
		switch status := cn.resp.StatusCode; {
		case status == http.StatusNotFound:
			cn.resp.Body.Close()
			cn.release()
			return backoff.Permanent(parachute.ErrNotFound)
		case status >= 500:
			err := readStatusError(cn.resp)
			cn.release()
			return err
		case !success(status):
			err := readStatusError(cn.resp)
			cn.release()
			return backoff.Permanent(err)
		}
		joined = cn
		return nil
	}
	notify := func(err error, d time.Duration) {
		logger.Warn().Err(err).Dur("retry_in", d).Msg("join failed, retrying")
	}

	err := backoff.RetryNotify(op, c.joinBackOff(ctx), notify)
	switch {
	case errors.Is(err, parachute.ErrNotFound):
		logger.Debug().Msg("no active stream to join")
		return nil, false
	case err != nil:
		logger.Warn().Err(err).Msg("join failed")
		return sse.Failed(fmt.Sprintf("join failed: %v", err)), true
	}
	logger.Debug().Msg("joined stream")
	return c.stream(joined, logger, nil), true
}

func (c *Client) joinBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryInterval
	b.MaxInterval = 10 * c.retryInterval
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(c.joinRetries, 0))), ctx)
}
