package http_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fwojciec/parachute"
	parachutehttp "github.com/fwojciec/parachute/http"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartTurn_TextThenAbruptClose(t *testing.T) {
	t.Parallel()
	srv := newServer(t, func(r chi.Router) {
		r.Post("/chat", func(w http.ResponseWriter, r *http.Request) {
			writeSSE(w, `{"type":"text","content":"Hi"}`)
		})
	})
	client := parachutehttp.New(srv.URL)

	s, err := client.StartTurn(context.Background(), parachute.TurnRequest{SessionID: "s1", Message: "hello"})
	require.NoError(t, err)
	defer s.Close()
	events := collectEvents(t, s)

	require.Len(t, events, 2)
	assert.Equal(t, parachute.EventText, events[0].Type)
	assert.Equal(t, "Hi", events[0].Content())
	assert.Equal(t, parachute.EventDone, events[1].Type)
	assert.Equal(t, parachute.NoteStreamEnded, events[1].Note())
}

func TestStartTurn_RequestFormat(t *testing.T) {
	t.Parallel()
	var captured []byte
	var header http.Header
	srv := newServer(t, func(r chi.Router) {
		r.Post("/api/modules/notes/chat", func(w http.ResponseWriter, r *http.Request) {
			captured, _ = io.ReadAll(r.Body)
			header = r.Header.Clone()
			writeSSE(w,
				`{"type":"session","sessionId":"s1","title":"Notes"}`,
				`{"type":"done","durationMs":12}`)
		})
	})
	client := parachutehttp.New(srv.URL+"/",
		parachutehttp.WithAPIKey("secret"),
		parachutehttp.WithPathPrefix("api/modules/notes/"))

	s, err := client.StartTurn(context.Background(), parachute.TurnRequest{
		SessionID:         "s1",
		Message:           "hello",
		SystemPrompt:      "be brief",
		PriorConversation: "User: earlier",
		ContinuedFrom:     "s0",
		WorkingDirectory:  "/vault",
		Contexts:          []string{"notes/a.md", "notes/b.md"},
		Attachments: []parachute.Attachment{
			{Name: "a.txt", MimeType: "text/plain", Data: []byte("abc")},
		},
	})
	require.NoError(t, err)
	defer s.Close()
	last := drain(t, s)
	assert.Equal(t, parachute.EventDone, last.Type)

	assert.Equal(t, "application/json", header.Get("Content-Type"))
	assert.Equal(t, "text/event-stream", header.Get("Accept"))
	assert.Equal(t, "Bearer secret", header.Get("Authorization"))
	_, err = uuid.Parse(header.Get("X-Request-Id"))
	assert.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(captured, &body))
	assert.Equal(t, "hello", body["message"])
	assert.Equal(t, "s1", body["sessionId"])
	assert.Equal(t, "be brief", body["systemPrompt"])
	assert.Equal(t, "User: earlier", body["priorConversation"])
	assert.Equal(t, "s0", body["continuedFrom"])
	assert.Equal(t, "/vault", body["workingDirectory"])
	assert.Equal(t, []any{"notes/a.md", "notes/b.md"}, body["contexts"])
	assert.NotContains(t, body, "initialContext")

	attachments := body["attachments"].([]any)
	require.Len(t, attachments, 1)
	a := attachments[0].(map[string]any)
	assert.Equal(t, "a.txt", a["name"])
	assert.Equal(t, "text/plain", a["mimeType"])
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte("abc")), a["data"])
}

func TestStartTurn_ValidationFailsFast(t *testing.T) {
	t.Parallel()
	var calls atomic.Int32
	srv := newServer(t, func(r chi.Router) {
		r.Post("/chat", func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
		})
	})
	client := parachutehttp.New(srv.URL)

	_, err := client.StartTurn(context.Background(), parachute.TurnRequest{SessionID: "s1", Message: "  "})

	assert.ErrorIs(t, err, parachute.ErrValidation)
	assert.Zero(t, calls.Load())
}

func TestStartTurn_ErrorStatusBecomesErrorEvent(t *testing.T) {
	t.Parallel()
	srv := newServer(t, func(r chi.Router) {
		r.Post("/chat", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"model overloaded"}`))
		})
	})
	client := parachutehttp.New(srv.URL)

	s, err := client.StartTurn(context.Background(), parachute.TurnRequest{SessionID: "s1", Message: "hello"})
	require.NoError(t, err)
	events := collectEvents(t, s)

	require.Len(t, events, 1)
	assert.Equal(t, parachute.EventError, events[0].Type)
	assert.Equal(t, "server returned 503: model overloaded", events[0].ErrorMessage())

	// The failed start released the session.
	s2, err := client.StartTurn(context.Background(), parachute.TurnRequest{SessionID: "s1", Message: "again"})
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}

func TestStartTurn_ConnectionRefused(t *testing.T) {
	t.Parallel()
	srv := newServer(t, func(r chi.Router) {})
	url := srv.URL
	srv.Close()
	client := parachutehttp.New(url)

	s, err := client.StartTurn(context.Background(), parachute.TurnRequest{SessionID: "s1", Message: "hello"})
	require.NoError(t, err)
	events := collectEvents(t, s)

	require.Len(t, events, 1)
	assert.Equal(t, parachute.EventError, events[0].Type)
	assert.Contains(t, events[0].ErrorMessage(), "connection failed")
}

func TestStartTurn_ConnectTimeout(t *testing.T) {
	t.Parallel()
	srv := newServer(t, func(r chi.Router) {
		r.Post("/chat", func(w http.ResponseWriter, r *http.Request) {
			hold(r)
		})
	})
	client := parachutehttp.New(srv.URL, parachutehttp.WithConnectTimeout(50*time.Millisecond))

	s, err := client.StartTurn(context.Background(), parachute.TurnRequest{SessionID: "s1", Message: "hello"})
	require.NoError(t, err)
	events := collectEvents(t, s)

	require.Len(t, events, 1)
	assert.Equal(t, parachute.EventError, events[0].Type)
	assert.Contains(t, events[0].ErrorMessage(), "no response within 50ms")
}

func TestStartTurn_IdleTimeout(t *testing.T) {
	t.Parallel()
	srv := newServer(t, func(r chi.Router) {
		r.Post("/chat", func(w http.ResponseWriter, r *http.Request) {
			writeSSE(w, `{"type":"text","content":"thinking about it"}`)
			hold(r)
		})
	})
	client := parachutehttp.New(srv.URL, parachutehttp.WithIdleTimeout(50*time.Millisecond))

	s, err := client.StartTurn(context.Background(), parachute.TurnRequest{SessionID: "s1", Message: "hello"})
	require.NoError(t, err)
	defer s.Close()
	events := collectEvents(t, s)

	assert.Equal(t, []parachute.EventType{parachute.EventText, parachute.EventError}, eventTypes(events))
	assert.Contains(t, events[1].ErrorMessage(), "stream stalled")
}

func TestStartTurn_SerializedPerSession(t *testing.T) {
	t.Parallel()
	srv := newServer(t, func(r chi.Router) {
		r.Post("/chat", func(w http.ResponseWriter, r *http.Request) {
			writeSSE(w, `{"type":"text","content":"working"}`)
			hold(r)
		})
	})
	client := parachutehttp.New(srv.URL)
	req := parachute.TurnRequest{SessionID: "s1", Message: "hello"}

	first, err := client.StartTurn(context.Background(), req)
	require.NoError(t, err)

	_, err = client.StartTurn(context.Background(), req)
	assert.ErrorIs(t, err, parachute.ErrTurnInProgress)

	other, err := client.StartTurn(context.Background(), parachute.TurnRequest{SessionID: "s2", Message: "hello"})
	require.NoError(t, err, "other sessions are not blocked")
	require.NoError(t, other.Close())

	require.NoError(t, first.Close())
	again, err := client.StartTurn(context.Background(), req)
	require.NoError(t, err, "closing the stream releases the session")
	require.NoError(t, again.Close())
}

func TestStartTurn_TerminalEventReleasesSession(t *testing.T) {
	t.Parallel()
	srv := newServer(t, func(r chi.Router) {
		r.Post("/chat", func(w http.ResponseWriter, r *http.Request) {
			writeSSE(w, `{"type":"done"}`)
		})
	})
	client := parachutehttp.New(srv.URL)
	req := parachute.TurnRequest{SessionID: "s1", Message: "hello"}

	s, err := client.StartTurn(context.Background(), req)
	require.NoError(t, err)
	drain(t, s)

	s, err = client.StartTurn(context.Background(), req)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestStartTurn_NewSessionsAreNotSerialized(t *testing.T) {
	t.Parallel()
	srv := newServer(t, func(r chi.Router) {
		r.Post("/chat", func(w http.ResponseWriter, r *http.Request) {
			writeSSE(w, `{"type":"session","sessionId":"`+uuid.NewString()+`"}`)
			hold(r)
		})
	})
	client := parachutehttp.New(srv.URL)

	a, err := client.StartTurn(context.Background(), parachute.TurnRequest{Message: "one"})
	require.NoError(t, err)
	defer a.Close()
	b, err := client.StartTurn(context.Background(), parachute.TurnRequest{Message: "two"})
	require.NoError(t, err)
	defer b.Close()
}

func TestClient_CloseCancelsStreams(t *testing.T) {
	t.Parallel()
	srv := newServer(t, func(r chi.Router) {
		r.Post("/chat", func(w http.ResponseWriter, r *http.Request) {
			writeSSE(w, `{"type":"text","content":"partial"}`)
			hold(r)
		})
	})
	client := parachutehttp.New(srv.URL)

	s, err := client.StartTurn(context.Background(), parachute.TurnRequest{SessionID: "s1", Message: "hello"})
	require.NoError(t, err)
	evt, err := s.Next()
	require.NoError(t, err)
	assert.Equal(t, "partial", evt.Content())

	require.NoError(t, client.Close())
	last := drain(t, s)

	assert.Equal(t, parachute.EventError, last.Type)
	assert.Contains(t, last.ErrorMessage(), "stream canceled")
}

func TestJoinStream(t *testing.T) {
	t.Parallel()
	srv := newServer(t, func(r chi.Router) {
		r.Get("/chat/{id}/join", func(w http.ResponseWriter, r *http.Request) {
			if chi.URLParam(r, "id") != "live" {
				http.NotFound(w, r)
				return
			}
			assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
			writeSSE(w,
				`{"type":"text","content":"buffered","uuid":"e1"}`,
				`{"type":"done"}`)
		})
	})
	client := parachutehttp.New(srv.URL)

	t.Run("active", func(t *testing.T) {
		t.Parallel()
		s, ok := client.JoinStream(context.Background(), "live")
		require.True(t, ok)
		defer s.Close()
		events := collectEvents(t, s)
		assert.Equal(t, []parachute.EventType{parachute.EventText, parachute.EventDone}, eventTypes(events))
		assert.Equal(t, "e1", events[0].UUID())
	})

	t.Run("nothing to join", func(t *testing.T) {
		t.Parallel()
		s, ok := client.JoinStream(context.Background(), "finished")
		assert.False(t, ok)
		assert.Nil(t, s)
	})
}

func TestJoinStream_RetriesServerErrors(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int32
	srv := newServer(t, func(r chi.Router) {
		r.Get("/chat/{id}/join", func(w http.ResponseWriter, r *http.Request) {
			if attempts.Add(1) < 3 {
				http.Error(w, "restarting", http.StatusBadGateway)
				return
			}
			writeSSE(w, `{"type":"done"}`)
		})
	})
	client := parachutehttp.New(srv.URL, parachutehttp.WithJoinRetries(3, time.Millisecond))

	s, ok := client.JoinStream(context.Background(), "s1")

	require.True(t, ok)
	defer s.Close()
	assert.Equal(t, parachute.EventDone, drain(t, s).Type)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestJoinStream_RetriesExhausted(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int32
	srv := newServer(t, func(r chi.Router) {
		r.Get("/chat/{id}/join", func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)
			http.Error(w, "down", http.StatusInternalServerError)
		})
	})
	client := parachutehttp.New(srv.URL, parachutehttp.WithJoinRetries(2, time.Millisecond))

	s, ok := client.JoinStream(context.Background(), "s1")

	require.True(t, ok, "a failed join is distinct from nothing to join")
	events := collectEvents(t, s)
	require.Len(t, events, 1)
	assert.Equal(t, parachute.EventError, events[0].Type)
	assert.Contains(t, events[0].ErrorMessage(), "join failed")
	assert.Equal(t, int32(3), attempts.Load())
}

func TestJoinStream_ClientErrorIsNotRetried(t *testing.T) {
	t.Parallel()
	var attempts atomic.Int32
	srv := newServer(t, func(r chi.Router) {
		r.Get("/chat/{id}/join", func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)
			http.Error(w, "forbidden", http.StatusForbidden)
		})
	})
	client := parachutehttp.New(srv.URL, parachutehttp.WithJoinRetries(3, time.Millisecond))

	s, ok := client.JoinStream(context.Background(), "s1")

	require.True(t, ok)
	assert.Equal(t, parachute.EventError, drain(t, s).Type)
	assert.Equal(t, int32(1), attempts.Load())
}
