// ABOUTME: In-memory session store holding ordered chat transcripts
// ABOUTME: Sessions live for the process lifetime; no persistence

package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/chaihq/chai/internal/llm"
)

// ErrNotFound is returned when a session id is unknown.
var ErrNotFound = errors.New("session not found")

// Session is one conversation transcript. Messages are ordered and
// role-tagged; assistant messages may carry tool calls.
type Session struct {
	ID       string
	Messages []llm.ChatMessage
}

// Store keeps sessions in memory, keyed by id. Safe for concurrent use.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	byCaller map[string]string // caller key -> session id
}

// NewStore creates an empty session store.
func NewStore() *Store {
	return &Store{
		sessions: make(map[string]*Session),
		byCaller: make(map[string]string),
	}
}

// Create makes a new session with a fresh id.
func (s *Store) Create() *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createLocked()
}

func (s *Store) createLocked() *Session {
	sess := &Session{ID: "sess-" + uuid.New().String()}
	s.sessions[sess.ID] = sess
	return sess
}

// GetOrCreate returns the session bound to the caller key, creating one on
// first use. The boolean reports whether the session already existed.
func (s *Store) GetOrCreate(callerKey string) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.byCaller[callerKey]; ok {
		if sess, ok := s.sessions[id]; ok {
			return sess, true
		}
	}
	sess := s.createLocked()
	s.byCaller[callerKey] = sess.ID
	return sess, false
}

// Get returns the session with the given id.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return sess, nil
}

// Append adds a message to the session's transcript.
func (s *Store) Append(id string, msg llm.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	sess.Messages = append(sess.Messages, msg)
	return nil
}

// Messages returns a copy of the session's transcript.
func (s *Store) Messages(id string) ([]llm.ChatMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	out := make([]llm.ChatMessage, len(sess.Messages))
	copy(out, sess.Messages)
	return out, nil
}

// Remove drops a session and any caller key pointing at it. Removing an
// unknown id is a no-op.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	for key, sid := range s.byCaller {
		if sid == id {
			delete(s.byCaller, key)
		}
	}
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}
