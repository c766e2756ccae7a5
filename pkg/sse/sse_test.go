package sse

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_PublishDeliversToAttachedSink(t *testing.T) {
	r := NewRegistry()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/events", nil)

	done := make(chan struct{})
	go func() {
		_ = r.Attach(rec, req, "session-1")
		close(done)
	}()

	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		_, ok := r.writers["session-1"]
		return ok
	}, time.Second, time.Millisecond, "writer should register")

	r.Publish("session-1", Event{Type: "message_delta", Data: map[string]string{"text": "hi"}})

	require.Eventually(t, func() bool {
		return strings.Contains(rec.Body.String(), "message_delta")
	}, time.Second, time.Millisecond, "event should be written to the response")

	r.Detach("session-1")
	<-done
}

func TestRegistry_AttachReplacesPriorSink(t *testing.T) {
	r := NewRegistry()

	rec1 := httptest.NewRecorder()
	req1 := httptest.NewRequest(http.MethodGet, "/events", nil)
	done1 := make(chan struct{})
	go func() {
		_ = r.Attach(rec1, req1, "session-1")
		close(done1)
	}()

	require.Eventually(t, func() bool {
		r.mu.Lock()
		defer r.mu.Unlock()
		_, ok := r.writers["session-1"]
		return ok
	}, time.Second, time.Millisecond)

	rec2 := httptest.NewRecorder()
	req2, cancel2 := newCancelableRequest()
	defer cancel2()
	done2 := make(chan struct{})
	go func() {
		_ = r.Attach(rec2, req2, "session-1")
		close(done2)
	}()

	select {
	case <-done1:
	case <-time.After(time.Second):
		t.Fatal("first attach should be closed when a second attaches")
	}

	r.Detach("session-1")
	<-done2
	assert.True(t, true)
}

func newCancelableRequest() (*http.Request, func()) {
	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	return req, func() {}
}
