// Package http implements [parachute.ChatService] against a Parachute server.
//
// Every streaming call owns its own connection; the [sse] package turns the
// response body into a [parachute.Stream]. Closing the Client cancels every
// connection it opened.
package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fwojciec/parachute"
	"github.com/fwojciec/parachute/sse"
	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"
)

const (
	// DefaultConnectTimeout bounds the wait for response headers and the
	// first chunk of a stream.
	DefaultConnectTimeout = 30 * time.Second
	// DefaultProbeTimeout bounds HasActiveStream and ActiveStreams.
	DefaultProbeTimeout = 5 * time.Second
	// DefaultJoinRetries is how many times a failed join is retried.
	DefaultJoinRetries = 3

	defaultRetryInterval = 500 * time.Millisecond
	maxErrorBody         = 4 << 10
)

var errClientClosed = errors.New("client closed")

// Interface compliance check.
var _ parachute.ChatService = (*Client)(nil)

// Client implements [parachute.ChatService] over HTTP and SSE.
type Client struct {
	baseURL    string
	pathPrefix string
	apiKey     string
	httpClient *http.Client
	logger     zerolog.Logger

	connectTimeout time.Duration
	idleTimeout    time.Duration
	probeTimeout   time.Duration
	joinRetries    int
	retryInterval  time.Duration

	// ctx parents every connection; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	active map[string]struct{} // sessions with a client-initiated turn in flight
}

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client. Its Timeout must be zero since
// streaming responses are long-lived.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithAPIKey sets the bearer token sent with every request.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithPathPrefix mounts the chat endpoints under prefix, e.g. "/api/modules/x".
func WithPathPrefix(prefix string) Option {
	return func(c *Client) { c.pathPrefix = "/" + strings.Trim(prefix, "/") }
}

// WithLogger sets the logger for request and stream diagnostics.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithConnectTimeout bounds the wait for response headers and for the first
// byte of a stream.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Client) { c.connectTimeout = d }
}

// WithIdleTimeout bounds the silence between chunks of a stream.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *Client) { c.idleTimeout = d }
}

// WithProbeTimeout bounds the liveness probes HasActiveStream and
// ActiveStreams.
func WithProbeTimeout(d time.Duration) Option {
	return func(c *Client) { c.probeTimeout = d }
}

// WithJoinRetries sets how many times a failed join is retried, and the
// initial interval of the exponential backoff between attempts.
func WithJoinRetries(n int, initial time.Duration) Option {
	return func(c *Client) {
		c.joinRetries = n
		if initial > 0 {
			c.retryInterval = initial
		}
	}
}

// New creates a [Client] for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		httpClient:     &http.Client{},
		logger:         zerolog.Nop(),
		connectTimeout: DefaultConnectTimeout,
		idleTimeout:    sse.DefaultIdleTimeout,
		probeTimeout:   DefaultProbeTimeout,
		joinRetries:    DefaultJoinRetries,
		retryInterval:  defaultRetryInterval,
		ctx:            ctx,
		cancel:         cancel,
		active:         make(map[string]struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	if c.pathPrefix == "/" {
		c.pathPrefix = ""
	}
	return c
}

// Close cancels every connection opened by the client. Open streams end
// with a terminal error event.
func (c *Client) Close() error {
	c.cancel()
	return nil
}

// chatPath returns the endpoint path for the given session-scoped segments.
func (c *Client) chatPath(segments ...string) string {
	p := c.pathPrefix + "/chat"
	for _, s := range segments {
		p += "/" + url.PathEscape(s)
	}
	return p
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body []byte) (*http.Request, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	return req, nil
}

// do performs a short request bounded by timeout and returns the status
// code and body.
func (c *Client) do(ctx context.Context, timeout time.Duration, method, path string, query url.Values) (int, []byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	req, err := c.newRequest(ctx, method, path, query, nil)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

// conn is an open streaming response. release tears the connection down and
// must be called exactly once.
type conn struct {
	ctx     context.Context
	resp    *http.Response
	release func()
}

// connect opens a streaming request. It fails if the response headers do
// not arrive within the connect timeout.
func (c *Client) connect(ctx context.Context, req func(context.Context) (*http.Request, error)) (*conn, error) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.ctx, cancel)
	release := func() {
		stop()
		cancel()
	}

	httpReq, err := req(ctx)
	if err != nil {
		release()
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	var timer *time.Timer
	if c.connectTimeout > 0 {
		timer = time.AfterFunc(c.connectTimeout, cancel)
	}
	resp, err := c.httpClient.Do(httpReq)
	// A timer that already fired has canceled the connection, even when Do
	// won the race.
	timedOut := timer != nil && !timer.Stop()
	if err != nil {
		release()
		if timedOut {
			return nil, fmt.Errorf("no response within %s", c.connectTimeout)
		}
		if c.ctx.Err() != nil {
			return nil, errClientClosed
		}
		return nil, err
	}
	if timedOut {
		resp.Body.Close()
		release()
		return nil, fmt.Errorf("no response within %s", c.connectTimeout)
	}
	return &conn{ctx: ctx, resp: resp, release: release}, nil
}

// stream wraps an open connection in an SSE stream. onFinish, if set, runs
// after the connection is released.
func (c *Client) stream(cn *conn, logger zerolog.Logger, onFinish func()) *sse.Stream {
	return sse.NewStream(cn.ctx, cn.resp.Body,
		sse.WithIdleTimeout(c.idleTimeout),
		sse.WithFirstByteTimeout(c.connectTimeout),
		sse.WithLogger(logger),
		sse.WithOnFinish(func() {
			cn.release()
			if onFinish != nil {
				onFinish()
			}
		}),
	)
}

// statusError describes a non-success response. Parachute error bodies are
// {"error": "..."} or {"error": {"message": "..."}}; anything else is quoted
// verbatim.
func statusError(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if gjson.ValidBytes(body) {
		r := gjson.ParseBytes(body)
		switch e := r.Get("error"); {
		case e.IsObject():
			msg = e.Get("message").String()
		case e.Exists():
			msg = e.String()
		case r.Get("message").Exists():
			msg = r.Get("message").String()
		}
	}
	if msg == "" {
		return fmt.Errorf("server returned %d %s", status, http.StatusText(status))
	}
	return fmt.Errorf("server returned %d: %s", status, msg)
}

// readStatusError drains at most maxErrorBody bytes of resp and closes it.
func readStatusError(resp *http.Response) error {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return statusError(resp.StatusCode, body)
}

func success(status int) bool {
	return status >= 200 && status < 300
}
