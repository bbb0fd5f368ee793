package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"future-kids-game-service/internal/app"
)

// SessionStore decorates an in-process app.SessionStore with Redis liveness
// markers for active game codes (SET game:code:{code} -> sessionID, TTL).
// Notes:
//   - Sessions themselves stay in process memory; the coordinator's locking
//     and broadcast logic remain in-process.
//   - The Redis keys make active codes observable to operators and could be
//     extended to route joins across instances.
type SessionStore struct {
	inner  app.SessionStore
	client *redis.Client
	ttl    time.Duration
}

func NewSessionStore(inner app.SessionStore, client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{inner: inner, client: client, ttl: ttl}
}

func (s *SessionStore) Add(ctx context.Context, session *app.Session) error {
	if err := s.inner.Add(ctx, session); err != nil {
		return err
	}
	// best-effort liveness marker
	_ = s.client.Set(ctx, s.codeKey(session.Code()), session.ID(), s.ttl).Err()
	return nil
}

func (s *SessionStore) Get(sessionID string) (*app.Session, bool) {
	return s.inner.Get(sessionID)
}

func (s *SessionStore) GetByCode(gameCode string) (*app.Session, bool) {
	session, ok := s.inner.GetByCode(gameCode)
	if ok {
		// Joins keep the marker fresh so long-lived lobbies don't expire it.
		_ = s.client.Expire(context.Background(), s.codeKey(gameCode), s.ttl).Err()
	}
	return session, ok
}

func (s *SessionStore) Remove(ctx context.Context, sessionID string) {
	if session, ok := s.inner.Get(sessionID); ok {
		_ = s.client.Del(ctx, s.codeKey(session.Code())).Err()
	}
	s.inner.Remove(ctx, sessionID)
}

func (s *SessionStore) ActiveCodes() []string {
	return s.inner.ActiveCodes()
}

func (s *SessionStore) codeKey(gameCode string) string {
	return "game:code:" + gameCode
}
