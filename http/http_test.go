package http_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fwojciec/parachute"
	"github.com/go-chi/chi/v5"
)

type testDoneKey struct{}

// newServer starts a fake Parachute server with the routes registered by fn.
// Handlers blocked in hold are released when the test ends, before the
// server shuts down.
func newServer(t *testing.T, fn func(r chi.Router)) *httptest.Server {
	t.Helper()
	done := make(chan struct{})
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), testDoneKey{}, done)))
		})
	})
	fn(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(done) })
	return srv
}

// writeSSE writes frames with the event-stream headers and flushes.
func writeSSE(w http.ResponseWriter, frames ...string) {
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
	}
	for _, f := range frames {
		_, _ = w.Write([]byte("data: " + f + "\n\n"))
	}
	w.(http.Flusher).Flush()
}

// hold blocks a handler until the client goes away or the test ends. The
// request body is drained first so the server notices a disconnect.
func hold(r *http.Request) {
	_, _ = io.Copy(io.Discard, r.Body)
	done, _ := r.Context().Value(testDoneKey{}).(chan struct{})
	select {
	case <-r.Context().Done():
	case <-done:
	}
}

func collectEvents(t *testing.T, s parachute.Stream) []parachute.Event {
	t.Helper()
	var events []parachute.Event
	for evt := range parachute.Events(s) {
		events = append(events, evt)
	}
	return events
}

func eventTypes(events []parachute.Event) []parachute.EventType {
	types := make([]parachute.EventType, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}

func drain(t *testing.T, s parachute.Stream) parachute.Event {
	t.Helper()
	events := collectEvents(t, s)
	if len(events) == 0 {
		t.Fatal("stream yielded no events")
	}
	return events[len(events)-1]
}
