package session

import (
	"log/slog"
	"sync"
	"time"
)

// Registry maps user identifiers to their sessions. It is the only
// process-wide shared mutable structure; creation is serialized per key so a
// session is created at most once for a given user.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	logger   *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		logger:   logger,
	}
}

// Get returns the session for userID, creating an empty one on first use.
// It never fails and is idempotent.
func (r *Registry) Get(userID string) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	if sess, ok := r.sessions[userID]; ok {
		return sess
	}
	sess := newSession(userID)
	r.sessions[userID] = sess
	r.logger.Info("created new session", "user_id", userID)
	return sess
}

// Remove destroys the session for userID, reporting whether one existed.
func (r *Registry) Remove(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[userID]; !ok {
		r.logger.Info("no session found", "user_id", userID)
		return false
	}
	delete(r.sessions, userID)
	r.logger.Info("session deleted", "user_id", userID)
	return true
}

// Len reports the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// EvictIdle drops sessions idle for longer than maxIdle and returns how many
// were removed. The registry never shrinks otherwise.
func (r *Registry) EvictIdle(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for userID, sess := range r.sessions {
		if sess.LastActive().Before(cutoff) {
			delete(r.sessions, userID)
			evicted++
			r.logger.Info("evicted idle session", "user_id", userID)
		}
	}
	return evicted
}
