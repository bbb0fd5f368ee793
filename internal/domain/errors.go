package domain

import "errors"

var (
	// ErrSessionNotFound is returned for an unknown session ID or game code.
	ErrSessionNotFound = errors.New("game session not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrQuestionNotFound indicates a submitted question ID is invalid.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrNotAParticipant is returned when a user acts on a session they never
	// joined, or after being kicked.
	ErrNotAParticipant = errors.New("not a participant in this game")
	// ErrNotTeacher guards teacher-only operations against non-owning callers.
	ErrNotTeacher = errors.New("only the game owner may do this")

	// ErrGameAlreadyStarted rejects start-game on a non-waiting session.
	ErrGameAlreadyStarted = errors.New("game already started")
	// ErrGameNotActive rejects question flow operations outside the active state.
	ErrGameNotActive = errors.New("game is not active")
	// ErrGamePaused rejects answer submissions while the game is paused.
	ErrGamePaused = errors.New("game is paused")
	// ErrGameCompleted rejects operations on a finished session.
	ErrGameCompleted = errors.New("game already ended")
	// ErrNoParticipants rejects starting a game nobody has joined.
	ErrNoParticipants = errors.New("cannot start game with no participants")
	// ErrNoMoreQuestions signals the quiz has been exhausted; callers map this
	// to ending the game.
	ErrNoMoreQuestions = errors.New("No more questions")
	// ErrNoOpenQuestion is returned when no question window is currently open.
	ErrNoOpenQuestion = errors.New("no question is open")
	// ErrQuestionClosed rejects submissions after the answer window closed.
	ErrQuestionClosed = errors.New("question is closed")
	// ErrAnswerTooLate rejects submissions whose reported time exceeds the window.
	ErrAnswerTooLate = errors.New("answer arrived too late")

	// ErrCodeSpaceExhausted is a capacity fault: the 6-digit code space is
	// effectively full. Logged as fatal, never user-facing.
	ErrCodeSpaceExhausted = errors.New("game code space exhausted")
)
