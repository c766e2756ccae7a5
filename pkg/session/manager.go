package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// entry wraps a Session with the bookkeeping the Manager needs: a
// single-holder turn lock (so a second chat request for the same session
// can't race the first) and the last-activity timestamp the sweep uses for
// TTL eviction.
type entry struct {
	session *Session
	mu      sync.Mutex
	busy    atomic.Bool
}

// ExpireFunc is invoked once per session evicted by the TTL sweep, after
// it has already been removed from the manager. Used by cmd/labtrace to
// also tear down the session's SSE sink.
type ExpireFunc func(sessionID string)

// Manager manages chat sessions in memory with TTL-based eviction and a
// bounded per-session message list (token-budget pruning happens in
// pkg/chat; this cap is a hard backstop against unbounded memory growth).
type Manager struct {
	ttl         time.Duration
	maxMessages int
	onExpire    ExpireFunc

	mu       sync.RWMutex
	sessions map[string]*entry
}

// NewManager creates a session manager. ttl is the idle duration after
// which Sweep evicts a session; maxMessages bounds the in-memory history
// kept per session.
func NewManager(ttl time.Duration, maxMessages int, onExpire ExpireFunc) *Manager {
	return &Manager{
		ttl:         ttl,
		maxMessages: maxMessages,
		onExpire:    onExpire,
		sessions:    make(map[string]*entry),
	}
}

// Create starts a new session for userID.
func (m *Manager) Create(userID string) *Session {
	now := time.Now()
	s := &Session{
		ID:             uuid.NewString(),
		UserID:         userID,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastActivityAt: now,
	}
	e := &entry{session: s}

	m.mu.Lock()
	m.sessions[s.ID] = e
	m.mu.Unlock()

	return s
}

// Get returns a copy of the session, or false if it doesn't exist or has
// expired.
func (m *Manager) Get(sessionID string) (Session, bool) {
	m.mu.RLock()
	e, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return Session{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.Clone(), true
}

// Acquire marks the session busy for the duration of one chat turn,
// returning false if a turn is already in flight for this session. Callers
// must call Release when done, typically via defer.
func (m *Manager) Acquire(sessionID string) (bool, error) {
	m.mu.RLock()
	e, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return false, fmt.Errorf("session not found: %s", sessionID)
	}
	return e.busy.CompareAndSwap(false, true), nil
}

// Release clears the busy flag set by Acquire.
func (m *Manager) Release(sessionID string) {
	m.mu.RLock()
	e, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if ok {
		e.busy.Store(false)
	}
}

// SelectPatient scopes a session to a patient for the remainder of the
// conversation.
func (m *Manager) SelectPatient(sessionID, patientID string) error {
	m.mu.RLock()
	e, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("session not found: %s", sessionID)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.SelectedPatient = patientID
	e.session.UpdatedAt = time.Now()
	return nil
}

// SetCurrentMessage records sessionID's in-flight assistant message id, or
// clears it when messageID is "". pkg/sse's Publish checks this (via
// CurrentMessageID) before forwarding any event tagged with a message id,
// so a turn must set this before emitting message_start and clear it
// after message_end for the finalization guarantee to hold.
func (m *Manager) SetCurrentMessage(sessionID, messageID string) error {
	m.mu.RLock()
	e, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("session not found: %s", sessionID)
	}
	e.mu.Lock()
	e.session.CurrentMessageID = messageID
	e.mu.Unlock()
	return nil
}

// CurrentMessageID returns sessionID's in-flight assistant message id, or
// "" if none or the session doesn't exist. Satisfies sse.MessageIDLookup.
func (m *Manager) CurrentMessageID(sessionID string) string {
	m.mu.RLock()
	e, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return ""
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session.CurrentMessageID
}

// AppendMessages appends msgs to the session's history, trimming the
// oldest non-system messages if the bound is exceeded, and refreshes the
// session's activity timestamp so the TTL sweep doesn't evict a session
// mid-conversation.
func (m *Manager) AppendMessages(sessionID string, msgs ...Message) error {
	m.mu.RLock()
	e, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("session not found: %s", sessionID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.Messages = append(e.session.Messages, msgs...)
	if over := len(e.session.Messages) - m.maxMessages; over > 0 {
		e.session.Messages = e.session.Messages[over:]
	}
	now := time.Now()
	e.session.UpdatedAt = now
	e.session.LastActivityAt = now
	return nil
}

// Delete removes a session immediately (used by explicit session-close
// requests, as distinct from TTL eviction).
func (m *Manager) Delete(sessionID string) {
	m.mu.Lock()
	delete(m.sessions, sessionID)
	m.mu.Unlock()
}

// Sweep evicts every session idle past the configured TTL and invokes
// onExpire for each. Run calls it on an interval; cmd/labtrace starts Run
// in a goroutine.
func (m *Manager) Sweep() {
	cutoff := time.Now().Add(-m.ttl)

	var expired []string
	m.mu.Lock()
	for id, e := range m.sessions {
		e.mu.Lock()
		idle := e.session.LastActivityAt.Before(cutoff)
		e.mu.Unlock()
		if idle {
			expired = append(expired, id)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, id := range expired {
		slog.Info("session expired", "session_id", id)
		if m.onExpire != nil {
			m.onExpire(id)
		}
	}
}

// Run starts a background goroutine that calls Sweep on interval until ctx
// is cancelled.
func (m *Manager) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Count returns the number of live sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}
