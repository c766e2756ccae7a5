// Package sse implements the per-session event sink registry that
// delivers chat turn events to the browser. A one-way text stream over
// plain HTTP needs no extra library, survives intermediary proxies with
// the right headers, and degrades gracefully when a client just stops
// reading.
package sse

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// HeartbeatInterval is how often a comment-only heartbeat line is written
// to keep idle connections (and the proxies in front of them) alive.
const HeartbeatInterval = 30 * time.Second

// Event is one SSE message, matching the event vocabulary in the external
// interface surface (message_start, text, tool_start, tool_complete,
// plot_result, table_result, message_end, error, patient_unavailable,
// heartbeat).
//
// MessageID is set on every event scoped to an in-flight assistant
// message (mirrored inside Data as the "message_id" field for the wire
// payload) and is never serialized itself; Publish uses it to drop events
// emitted after their message has been finalized.
type Event struct {
	Type      string `json:"type"`
	Data      any    `json:"data"`
	MessageID string `json:"-"`
}

// writer owns the single HTTP response for one session's stream. Send is
// safe to call from any goroutine; writes happen serially on the
// connection's own goroutine via an internal channel so a slow client
// can't block the turn that's producing events.
type writer struct {
	out    chan Event
	done   chan struct{}
	closed chan struct{}
	once   sync.Once
}

func newWriter() *writer {
	return &writer{
		out:    make(chan Event, 32),
		done:   make(chan struct{}),
		closed: make(chan struct{}),
	}
}

// send enqueues an event, dropping it if the writer's buffer is full
// rather than blocking the caller — a stalled browser tab must never stall
// a chat turn.
func (w *writer) send(e Event) {
	select {
	case w.out <- e:
	default:
		slog.Warn("sse writer buffer full, dropping event", "event_type", e.Type)
	}
}

// close signals the writer's serve loop to stop.
func (w *writer) close() {
	w.once.Do(func() { close(w.done) })
	<-w.closed
}

// Registry holds one writer per session id. Attach replaces any existing
// sink for that session (last-writer-wins), closing the prior connection
// first — matching the expectation that a session has at most one live
// browser tab watching it.
type Registry struct {
	mu               sync.Mutex
	writers          map[string]*writer
	currentMessageID MessageIDLookup
}

// MessageIDLookup returns sessionID's current in-flight assistant message
// id, or "" if none (or the session no longer exists). pkg/session.Manager
// satisfies this via its CurrentMessageID method.
type MessageIDLookup func(sessionID string) string

// NewRegistry creates an empty registry. Call SetMessageIDLookup once the
// session store exists — the two are constructed independently and each
// needs a reference into the other (session.Manager's expiry callback is
// Registry.Detach; Registry's finalization guard is session.Manager's
// CurrentMessageID).
func NewRegistry() *Registry {
	return &Registry{writers: make(map[string]*writer)}
}

// SetMessageIDLookup wires the session store's current-message lookup.
func (r *Registry) SetMessageIDLookup(lookup MessageIDLookup) {
	r.mu.Lock()
	r.currentMessageID = lookup
	r.mu.Unlock()
}

// Attach takes over w as the sink for sessionID and blocks, streaming
// events until the request context is cancelled or the client disconnects.
// It is meant to be called directly from an Echo (or net/http) handler.
// initial events (e.g. session_start) are written synchronously right
// after the connection handshake, before Attach starts reading from the
// channel any concurrently-running turn might already be writing to —
// this avoids a race where a caller publishes before the sink exists.
func (r *Registry) Attach(rw http.ResponseWriter, req *http.Request, sessionID string, initial ...Event) error {
	flusher, ok := rw.(http.Flusher)
	if !ok {
		return fmt.Errorf("response writer does not support flushing")
	}
	rc := http.NewResponseController(rw)

	nw := newWriter()
	r.mu.Lock()
	if prev, exists := r.writers[sessionID]; exists {
		r.mu.Unlock()
		prev.close()
		r.mu.Lock()
	}
	r.writers[sessionID] = nw
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		if r.writers[sessionID] == nw {
			delete(r.writers, sessionID)
		}
		r.mu.Unlock()
		close(nw.closed)
	}()

	header := rw.Header()
	header.Set("Content-Type", "text/event-stream")
	header.Set("Cache-Control", "no-cache")
	header.Set("Connection", "keep-alive")
	header.Set("X-Accel-Buffering", "no")
	rw.WriteHeader(http.StatusOK)
	if err := flush(rc, flusher); err != nil {
		return err
	}

	if err := writeEvent(rw, Event{Type: "connected", Data: map[string]string{"session_id": sessionID}}); err != nil {
		return err
	}
	if err := flush(rc, flusher); err != nil {
		return err
	}
	for _, e := range initial {
		if err := writeEvent(rw, e); err != nil {
			return err
		}
		if err := flush(rc, flusher); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-req.Context().Done():
			return nil
		case <-nw.done:
			return nil
		case e := <-nw.out:
			if err := writeEvent(rw, e); err != nil {
				return err
			}
			if err := flush(rc, flusher); err != nil {
				return err
			}
		case <-ticker.C:
			if _, err := fmt.Fprint(rw, ": heartbeat\n\n"); err != nil {
				return err
			}
			if err := flush(rc, flusher); err != nil {
				return err
			}
		}
	}
}

// Publish delivers an event to the session's attached sink, if any. A
// session with no attached browser silently drops the event: the caller
// (pkg/chat) is still the source of truth for conversation state.
//
// Any event carrying a MessageID is checked against the session's current
// in-flight message (via the wired MessageIDLookup) and dropped if it no
// longer matches — the C3 finalization guarantee: once a message's
// message_end has cleared the session's current message id, no later
// event tagged with that message id reaches the client.
func (r *Registry) Publish(sessionID string, e Event) {
	r.mu.Lock()
	lookup := r.currentMessageID
	w, ok := r.writers[sessionID]
	r.mu.Unlock()
	if !ok {
		return
	}

	if e.MessageID != "" && lookup != nil && lookup(sessionID) != e.MessageID {
		slog.Debug("sse: dropping event for finalized message", "session_id", sessionID, "message_id", e.MessageID, "event_type", e.Type)
		return
	}

	w.send(e)
}

// Detach forcibly closes a session's stream, used when a session expires
// via the TTL sweep.
func (r *Registry) Detach(sessionID string) {
	r.mu.Lock()
	w, ok := r.writers[sessionID]
	if ok {
		delete(r.writers, sessionID)
	}
	r.mu.Unlock()
	if ok {
		w.close()
	}
}

func writeEvent(w http.ResponseWriter, e Event) error {
	body, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("marshal sse event data: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", e.Type, body)
	return err
}

func flush(rc *http.ResponseController, f http.Flusher) error {
	if err := rc.Flush(); err != nil {
		f.Flush()
	}
	return nil
}
