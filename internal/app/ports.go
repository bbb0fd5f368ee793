package app

import (
	"context"
	"errors"

	"future-kids-game-service/internal/domain"
)

// ErrCodeConflict is returned by Add when the session's game code is already
// held by a non-completed session. The coordinator regenerates and retries.
var ErrCodeConflict = errors.New("game code already in use")

// SessionStore abstracts how live game sessions are registered (in-memory,
// redis-mirrored, etc). Implementations must never hand out a session whose
// game code belongs to a completed session.
type SessionStore interface {
	// Add registers a session, failing with ErrCodeConflict if its code is
	// still owned by an active session. Uniqueness is enforced here, under
	// the store's lock, because generation-then-add is not atomic.
	Add(ctx context.Context, session *Session) error
	Get(sessionID string) (*Session, bool)
	GetByCode(gameCode string) (*Session, bool)
	Remove(ctx context.Context, sessionID string)
	// ActiveCodes returns the game codes of all non-completed sessions,
	// used to seed the code generator.
	ActiveCodes() []string
}

// QuizRepository loads quiz content (from cache/backing store). Quiz
// documents are immutable for the lifetime of a session.
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// ResultsSink receives the final results snapshot for persistence.
// Failures are retried best-effort and never block ending a game.
type ResultsSink interface {
	SaveResults(ctx context.Context, results domain.GameResults) error
}

// Gateway fans state-changing events out to every socket in a session's
// room. The transport layer implements it; tests substitute a recorder.
type Gateway interface {
	Broadcast(sessionID, event string, payload any)
	BroadcastExcept(sessionID, excludeUserID, event string, payload any)
}

// Server→client broadcast event names.
const (
	EventParticipantJoined = "participant-joined"
	EventParticipantLeft   = "participant-left"
	EventParticipantKicked = "participant-kicked"
	EventGameStarted       = "game-started"
	EventQuestionStarted   = "question-started"
	EventAnswerSubmitted   = "answer-submitted"
	EventLeaderboardUpdate = "leaderboard-updated"
	EventGamePaused        = "game-paused"
	EventGameResumed       = "game-resumed"
	EventQuestionTimedOut  = "question-timed-out"
	EventGameEnded         = "game-ended"
)
