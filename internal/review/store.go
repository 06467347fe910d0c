package review

import (
	"sync"
	"time"

	"resumereview/internal/config"
	"resumereview/internal/document"
	"resumereview/internal/errors"
)

// Store keeps review sessions in memory and evicts idle ones.
type Store struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	ttl         time.Duration
	maxSessions int
	flatten     document.FlattenOptions
	done        chan struct{}
	closeOnce   sync.Once
	logger      *errors.Logger
}

// NewStore creates a store and starts its cleanup goroutine when both the
// TTL and the cleanup interval are positive.
func NewStore(cfg config.ReviewConfig, logger *errors.Logger) *Store {
	if logger == nil {
		logger = errors.Discard()
	}

	opts := document.DefaultFlattenOptions()
	if cfg.MinFragmentLength > 0 {
		opts.MinLength = cfg.MinFragmentLength
	}
	if cfg.ExcludedKeyMarker != "" {
		opts.ExcludedKeyMarker = cfg.ExcludedKeyMarker
	}

	s := &Store{
		sessions:    make(map[string]*Session),
		ttl:         cfg.SessionTTL,
		maxSessions: cfg.MaxSessions,
		flatten:     opts,
		done:        make(chan struct{}),
		logger:      logger,
	}

	if cfg.SessionTTL > 0 && cfg.CleanupInterval > 0 {
		go s.cleanupRoutine(cfg.CleanupInterval)
	}
	return s
}

// FlattenOptions returns the options sessions are flattened with.
func (s *Store) FlattenOptions() document.FlattenOptions {
	return s.flatten
}

// Create starts a session for doc. When the store is full the least
// recently used session is evicted.
func (s *Store) Create(doc document.Document) *Session {
	session := NewSession(doc, s.flatten)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxSessions > 0 && len(s.sessions) >= s.maxSessions {
		s.evictOldestLocked()
	}
	s.sessions[session.ID()] = session

	s.logger.Debug("Review session created",
		"session_id", session.ID(),
		"fragments", len(session.fragments),
		"active_sessions", len(s.sessions))
	return session
}

// Get returns the session with id and marks it as used.
func (s *Store) Get(id string) (*Session, error) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok || s.expired(session, time.Now()) {
		return nil, errors.NewNotFoundError(errors.ErrCodeSessionNotFound, "review session not found", nil).
			WithContext("session_id", id)
	}
	session.touch()
	return session, nil
}

// Delete removes the session with id.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok
}

// Len returns the number of stored sessions.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// GetStats returns store statistics
func (s *Store) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]any{
		"active_sessions": len(s.sessions),
		"max_sessions":    s.maxSessions,
		"session_ttl":     s.ttl.String(),
	}
}

func (s *Store) expired(session *Session, now time.Time) bool {
	return s.ttl > 0 && now.Sub(session.LastAccess()) > s.ttl
}

func (s *Store) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, session := range s.sessions {
		if last := session.LastAccess(); oldestID == "" || last.Before(oldest) {
			oldestID, oldest = id, last
		}
	}
	if oldestID != "" {
		delete(s.sessions, oldestID)
		s.logger.Warn("Session limit reached, evicted least recently used session",
			"session_id", oldestID,
			"max_sessions", s.maxSessions)
	}
}

// cleanupRoutine periodically removes idle sessions
func (s *Store) cleanupRoutine(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup(time.Now())
		case <-s.done:
			return
		}
	}
}

// cleanup removes sessions idle for longer than the TTL
func (s *Store) cleanup(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, session := range s.sessions {
		if s.expired(session, now) {
			delete(s.sessions, id)
			removed++
		}
	}

	s.logger.Debug("Session cleanup completed",
		"removed_sessions", removed,
		"remaining_sessions", len(s.sessions))
	return removed
}

// Close stops the cleanup goroutine. It is safe to call more than once.
func (s *Store) Close() {
	s.closeOnce.Do(func() { close(s.done) })
}
