package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"future-kids-game-service/internal/domain"
)

// GameService is the session coordinator: the single place that implements
// every socket event contract by composing the store, quiz repository,
// scoring, and broadcast gateway.
type GameService struct {
	store   SessionStore
	quizzes QuizRepository
	results ResultsSink
	gateway Gateway
	codes   *CodeGenerator
	logger  *zap.Logger
	newID   func() string
}

func NewGameService(store SessionStore, quizzes QuizRepository, results ResultsSink, gateway Gateway, logger *zap.Logger) *GameService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GameService{
		store:   store,
		quizzes: quizzes,
		results: results,
		gateway: gateway,
		codes:   NewCodeGenerator(),
		logger:  logger,
		newID:   uuid.NewString,
	}
}

// CreatedGame is the create-game response payload.
type CreatedGame struct {
	SessionID string `json:"sessionId"`
	GameCode  string `json:"gameCode"`
}

// SubmitResult is the submit-answer response payload.
type SubmitResult struct {
	IsCorrect  bool `json:"isCorrect"`
	Points     int  `json:"points"`
	TotalScore int  `json:"totalScore"`
	Duplicate  bool `json:"duplicate"`
}

// CreateGame allocates a session for a quiz with a fresh game code. The
// quiz document is pinned into the session so content edits never affect a
// running game.
func (g *GameService) CreateGame(ctx context.Context, quizID, teacherID, classID string, settings domain.GameSettings) (CreatedGame, error) {
	quiz, err := g.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return CreatedGame{}, err
	}

	// Generation and Add are not one atomic step; the store rejects a code
	// another create raced us to, and we just draw again.
	var session *Session
	var code string
	for attempt := 0; ; attempt++ {
		inUse := make(map[string]struct{})
		for _, c := range g.store.ActiveCodes() {
			inUse[c] = struct{}{}
		}
		var err error
		code, err = g.codes.Generate(inUse)
		if err != nil {
			if errors.Is(err, domain.ErrCodeSpaceExhausted) {
				g.logger.Error("game code space exhausted", zap.Int("activeSessions", len(inUse)))
			}
			return CreatedGame{}, err
		}

		candidate := NewSession(g.newID(), code, quiz, teacherID, classID, settings)
		candidate.setExpiryHandler(func(questionIndex int) {
			g.handleWindowExpired(candidate, questionIndex)
		})
		err = g.store.Add(ctx, candidate)
		if err == nil {
			session = candidate
			break
		}
		if errors.Is(err, ErrCodeConflict) && attempt < 3 {
			continue
		}
		return CreatedGame{}, err
	}

	g.logger.Info("game created",
		zap.String("sessionId", session.ID()),
		zap.String("gameCode", code),
		zap.String("quizId", quizID),
		zap.String("teacherId", teacherID))
	return CreatedGame{SessionID: session.ID(), GameCode: code}, nil
}

// JoinGame resolves the game code and registers the student in the lobby.
func (g *GameService) JoinGame(ctx context.Context, gameCode, userID, userName, avatarURL string) (domain.SessionView, error) {
	session, ok := g.store.GetByCode(gameCode)
	if !ok {
		return domain.SessionView{}, domain.ErrSessionNotFound
	}
	view, err := session.Join(userID, userName, avatarURL)
	if err != nil {
		return domain.SessionView{}, err
	}
	g.gateway.BroadcastExcept(session.ID(), userID, EventParticipantJoined, map[string]any{
		"userId":           userID,
		"userName":         userName,
		"avatarUrl":        avatarURL,
		"participantCount": view.ParticipantCnt,
	})
	return view, nil
}

// RejoinSession reconnects a dropped participant and returns the snapshot
// the client needs to resume exactly where the state machine is.
func (g *GameService) RejoinSession(sessionID, userID, userName string) (domain.SessionView, error) {
	session, ok := g.store.Get(sessionID)
	if !ok {
		return domain.SessionView{}, domain.ErrSessionNotFound
	}
	return session.Rejoin(userID, userName)
}

// CurrentQuestion returns the open question with server-derived remaining
// time. The server clock is authoritative; client timers are cosmetic.
func (g *GameService) CurrentQuestion(sessionID string) (domain.QuestionView, error) {
	session, ok := g.store.Get(sessionID)
	if !ok {
		return domain.QuestionView{}, domain.ErrSessionNotFound
	}
	return session.CurrentQuestion()
}

// Leaderboard returns the deterministic scoreboard for a session.
func (g *GameService) Leaderboard(sessionID string) (domain.Leaderboard, error) {
	session, ok := g.store.Get(sessionID)
	if !ok {
		return domain.Leaderboard{}, domain.ErrSessionNotFound
	}
	return session.Leaderboard(), nil
}

// StartGame begins the quiz and opens the first question window.
func (g *GameService) StartGame(sessionID, teacherID string) (domain.QuestionView, error) {
	session, err := g.ownedSession(sessionID, teacherID)
	if err != nil {
		return domain.QuestionView{}, err
	}
	question, err := session.Start()
	if err != nil {
		return domain.QuestionView{}, err
	}
	g.gateway.Broadcast(sessionID, EventGameStarted, map[string]any{
		"sessionId":      sessionID,
		"totalQuestions": question.Total,
	})
	g.gateway.Broadcast(sessionID, EventQuestionStarted, question)
	return question, nil
}

// NextQuestion advances the sequencer. ErrNoMoreQuestions propagates so the
// caller can fall back to ending the game.
func (g *GameService) NextQuestion(sessionID, teacherID string) (domain.QuestionView, error) {
	session, err := g.ownedSession(sessionID, teacherID)
	if err != nil {
		return domain.QuestionView{}, err
	}
	question, err := session.Advance()
	if err != nil {
		return domain.QuestionView{}, err
	}
	g.gateway.Broadcast(sessionID, EventQuestionStarted, question)
	return question, nil
}

// SubmitAnswer scores and records one answer idempotently, then pushes the
// updated leaderboard to the room.
func (g *GameService) SubmitAnswer(sessionID, userID, userName, questionID, answer string, timeSpentSecs float64) (SubmitResult, error) {
	session, ok := g.store.Get(sessionID)
	if !ok {
		return SubmitResult{}, domain.ErrSessionNotFound
	}
	record, duplicate, err := session.Submit(userID, userName, questionID, answer, timeSpentSecs)
	if err != nil {
		return SubmitResult{}, err
	}
	result := SubmitResult{
		IsCorrect:  record.IsCorrect,
		Points:     record.PointsAwarded,
		TotalScore: session.participantScore(userID),
		Duplicate:  duplicate,
	}
	if !duplicate {
		g.gateway.BroadcastExcept(sessionID, userID, EventAnswerSubmitted, map[string]any{
			"userId":     userID,
			"questionId": questionID,
		})
		g.gateway.Broadcast(sessionID, EventLeaderboardUpdate, session.Leaderboard())
	}
	return result, nil
}

// QuestionTimeout closes the open window without advancing. Idempotent.
func (g *GameService) QuestionTimeout(sessionID string) error {
	session, ok := g.store.Get(sessionID)
	if !ok {
		return domain.ErrSessionNotFound
	}
	if session.TimeoutQuestion() {
		g.broadcastTimedOut(session)
	}
	return nil
}

// PauseGame freezes the open window's remaining budget.
func (g *GameService) PauseGame(sessionID, teacherID string) error {
	session, err := g.ownedSession(sessionID, teacherID)
	if err != nil {
		return err
	}
	if err := session.Pause(); err != nil {
		return err
	}
	g.gateway.Broadcast(sessionID, EventGamePaused, map[string]any{"sessionId": sessionID})
	return nil
}

// ResumeGame unfreezes the window.
func (g *GameService) ResumeGame(sessionID, teacherID string) error {
	session, err := g.ownedSession(sessionID, teacherID)
	if err != nil {
		return err
	}
	if err := session.Resume(); err != nil {
		return err
	}
	g.gateway.Broadcast(sessionID, EventGameResumed, map[string]any{"sessionId": sessionID})
	return nil
}

// KickParticipant hard-removes a student; the broadcast is fire-and-forget.
func (g *GameService) KickParticipant(sessionID, userID, teacherID string) error {
	session, err := g.ownedSession(sessionID, teacherID)
	if err != nil {
		return err
	}
	if !session.Kick(userID) {
		return domain.ErrNotAParticipant
	}
	g.gateway.Broadcast(sessionID, EventParticipantKicked, map[string]any{"userId": userID})
	return nil
}

// EndGame finalizes the session, broadcasts the results, evicts it from the
// store (releasing the game code) and hands the snapshot to the analytics
// sink. Persistence failures never block the teacher's response.
func (g *GameService) EndGame(ctx context.Context, sessionID, teacherID string) (domain.GameResults, error) {
	session, err := g.ownedSession(sessionID, teacherID)
	if err != nil {
		return domain.GameResults{}, err
	}
	results, err := session.End()
	if err != nil {
		return domain.GameResults{}, err
	}
	g.gateway.Broadcast(sessionID, EventGameEnded, results)
	g.store.Remove(ctx, sessionID)

	if g.results != nil {
		go g.persistResults(results)
	}
	return results, nil
}

// HandleDisconnect marks a participant disconnected on socket drop. Their
// score survives for a later rejoin.
func (g *GameService) HandleDisconnect(sessionID, userID string) {
	session, ok := g.store.Get(sessionID)
	if !ok {
		return
	}
	if session.MarkDisconnected(userID) {
		g.gateway.BroadcastExcept(sessionID, userID, EventParticipantLeft, map[string]any{"userId": userID})
	}
}

func (g *GameService) ownedSession(sessionID, teacherID string) (*Session, error) {
	session, ok := g.store.Get(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if session.TeacherID() != teacherID {
		return nil, domain.ErrNotTeacher
	}
	return session, nil
}

func (g *GameService) handleWindowExpired(session *Session, questionIndex int) {
	g.logger.Debug("question window expired",
		zap.String("sessionId", session.ID()),
		zap.Int("questionIndex", questionIndex))
	g.broadcastTimedOut(session)
}

func (g *GameService) broadcastTimedOut(session *Session) {
	g.gateway.Broadcast(session.ID(), EventQuestionTimedOut, map[string]any{
		"sessionId":     session.ID(),
		"questionIndex": session.QuestionIndex(),
	})
}

// persistResults retries the analytics write with backoff; after the last
// attempt failures are only logged. At-least-once is fine, the sink keys on
// session id.
func (g *GameService) persistResults(results domain.GameResults) {
	backoff := time.Second
	for attempt := 1; attempt <= 3; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := g.results.SaveResults(ctx, results)
		cancel()
		if err == nil {
			return
		}
		g.logger.Warn("persist game results failed",
			zap.String("sessionId", results.SessionID),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if attempt < 3 {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	g.logger.Error("dropping game results after retries", zap.String("sessionId", results.SessionID))
}
