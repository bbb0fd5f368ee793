package memory

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"future-kids-game-service/internal/app"
	"future-kids-game-service/internal/domain"
)

// SessionStore is the in-memory implementation of app.SessionStore. It
// indexes sessions by id and by game code; the code index only ever holds
// non-completed sessions, so codes are reclaimable the moment a game ends.
type SessionStore struct {
	mu     sync.RWMutex
	byID   map[string]*app.Session
	byCode map[string]*app.Session

	logger  *zap.Logger
	idleTTL time.Duration
	done    chan struct{}
	once    sync.Once
}

// NewSessionStore builds a store. When idleTTL > 0 a reaper goroutine
// evicts sessions with no connected participants past the TTL; call Stop
// on shutdown.
func NewSessionStore(idleTTL time.Duration, logger *zap.Logger) *SessionStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &SessionStore{
		byID:    make(map[string]*app.Session),
		byCode:  make(map[string]*app.Session),
		logger:  logger,
		idleTTL: idleTTL,
		done:    make(chan struct{}),
	}
	if idleTTL > 0 {
		go s.reaperLoop()
	}
	return s
}

func (s *SessionStore) Add(_ context.Context, session *app.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.byCode[session.Code()]; ok && current != session && !current.Completed() {
		// Two concurrent creates drew the same code; only one may own it.
		return app.ErrCodeConflict
	}
	s.byID[session.ID()] = session
	s.byCode[session.Code()] = session
	return nil
}

func (s *SessionStore) Get(sessionID string) (*app.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.byID[sessionID]
	return session, ok
}

func (s *SessionStore) GetByCode(gameCode string) (*app.Session, bool) {
	s.mu.RLock()
	session, ok := s.byCode[gameCode]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if session.Status() == domain.StatusCompleted {
		// A finished session no longer owns its code.
		s.mu.Lock()
		if current, still := s.byCode[gameCode]; still && current == session {
			delete(s.byCode, gameCode)
		}
		s.mu.Unlock()
		return nil, false
	}
	return session, true
}

func (s *SessionStore) Remove(_ context.Context, sessionID string) {
	s.mu.Lock()
	session, ok := s.byID[sessionID]
	if ok {
		delete(s.byID, sessionID)
		if current, still := s.byCode[session.Code()]; still && current == session {
			delete(s.byCode, session.Code())
		}
	}
	s.mu.Unlock()
	if ok {
		session.Close()
	}
}

func (s *SessionStore) ActiveCodes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	codes := make([]string, 0, len(s.byCode))
	for code := range s.byCode {
		codes = append(codes, code)
	}
	return codes
}

// Stop terminates the reaper goroutine.
func (s *SessionStore) Stop() {
	s.once.Do(func() { close(s.done) })
}

func (s *SessionStore) reaperLoop() {
	ticker := time.NewTicker(s.idleTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.reap(time.Now().Add(-s.idleTTL))
		}
	}
}

func (s *SessionStore) reap(cutoff time.Time) {
	s.mu.RLock()
	var idle []*app.Session
	for _, session := range s.byID {
		if session.Idle(cutoff) {
			idle = append(idle, session)
		}
	}
	s.mu.RUnlock()

	for _, session := range idle {
		s.logger.Info("evicting idle session",
			zap.String("sessionId", session.ID()),
			zap.String("gameCode", session.Code()))
		s.Remove(context.Background(), session.ID())
	}
}
