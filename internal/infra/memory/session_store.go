package memory

import (
	"sync"

	"quizgate/internal/app"
)

// SessionStore is the in-process implementation of app.SessionStore,
// holding at most one active session per user.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[int64]*app.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[int64]*app.Session),
	}
}

func (s *SessionStore) Put(userID int64, sess *app.Session) *app.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.sessions[userID]
	s.sessions[userID] = sess
	return prev
}

func (s *SessionStore) Get(userID int64) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[userID]
	return sess, ok
}

// Remove deletes the entry only while it still holds the attempt with the
// given ID, so a stale watcher cannot evict a replacement session.
func (s *SessionStore) Remove(userID int64, sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[userID]
	if !ok || sess.ID() != sessionID {
		return false
	}
	delete(s.sessions, userID)
	return true
}
