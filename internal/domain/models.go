package domain

import "time"

// SessionStatus tracks where a game session is in its lifecycle.
type SessionStatus string

const (
	StatusWaiting   SessionStatus = "waiting"
	StatusActive    SessionStatus = "active"
	StatusPaused    SessionStatus = "paused"
	StatusCompleted SessionStatus = "completed"
)

// QuestionType discriminates how answers are compared.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple-choice"
	QuestionTrueFalse      QuestionType = "true-false"
	QuestionShortAnswer    QuestionType = "short-answer"
)

// GameSettings are the teacher-chosen toggles for a session.
type GameSettings struct {
	ShowAnswers     bool `json:"showAnswers"`
	ShowLeaderboard bool `json:"showLeaderboard"`
}

// Question models one quiz question. CorrectAnswer is an option index
// (as a string) for multiple choice, or the expected text otherwise.
type Question struct {
	ID            string       `json:"id"`
	Type          QuestionType `json:"type"`
	Prompt        string       `json:"prompt"`
	Options       []string     `json:"options,omitempty"`
	CorrectAnswer string       `json:"correctAnswer"`
	Points        int          `json:"points"`        // defaults to 100 if zero
	TimeLimitSecs int          `json:"timeLimitSecs"` // defaults to 30 if zero
}

// Quiz is an immutable quiz document from the content store.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// QuestionView is what students see: the question without its answer.
type QuestionView struct {
	ID            string       `json:"id"`
	Type          QuestionType `json:"type"`
	Prompt        string       `json:"prompt"`
	Options       []string     `json:"options,omitempty"`
	Points        int          `json:"points"`
	TimeLimitSecs int          `json:"timeLimitSecs"`
	Index         int          `json:"index"`
	Total         int          `json:"total"`
	RemainingSecs float64      `json:"remainingSecs"`
}

// AnswerRecord is one scored answer. Immutable once created.
type AnswerRecord struct {
	QuestionID      string    `json:"questionId"`
	SubmittedAnswer string    `json:"submittedAnswer"`
	IsCorrect       bool      `json:"isCorrect"`
	TimeSpentSecs   float64   `json:"timeSpentSecs"`
	PointsAwarded   int       `json:"pointsAwarded"`
	SubmittedAt     time.Time `json:"submittedAt"`
}

// Participant represents a student's presence and progress within a session.
type Participant struct {
	UserID    string                  `json:"userId"`
	UserName  string                  `json:"userName"`
	AvatarURL string                  `json:"avatarUrl,omitempty"`
	JoinedAt  time.Time               `json:"joinedAt"`
	Score     int                     `json:"score"`
	Connected bool                    `json:"connected"`
	Answers   map[string]AnswerRecord `json:"answers"`
}

// LeaderboardEntry is a snapshot-friendly view of a participant's rank.
type LeaderboardEntry struct {
	Rank      int    `json:"rank"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	Score     int    `json:"score"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// Leaderboard captures the ordered scoreboard for a session.
type Leaderboard struct {
	SessionID string             `json:"sessionId"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// SessionView is the snapshot returned on join/rejoin so a client can
// resume exactly where the state machine is.
type SessionView struct {
	SessionID       string        `json:"sessionId"`
	GameCode        string        `json:"gameCode"`
	QuizID          string        `json:"quizId"`
	QuizTitle       string        `json:"quizTitle"`
	Status          SessionStatus `json:"status"`
	Settings        GameSettings  `json:"settings"`
	QuestionIndex   int           `json:"questionIndex"`
	TotalQuestions  int           `json:"totalQuestions"`
	ParticipantCnt  int           `json:"participantCount"`
	CurrentQuestion *QuestionView `json:"currentQuestion,omitempty"`
	Leaderboard     Leaderboard   `json:"leaderboard"`
}

// QuestionStats aggregates per-question outcomes for the final results.
type QuestionStats struct {
	QuestionID   string  `json:"questionId"`
	Prompt       string  `json:"prompt"`
	CorrectCount int     `json:"correctCount"`
	WrongCount   int     `json:"wrongCount"`
	AnswerCount  int     `json:"answerCount"`
	AvgTimeSecs  float64 `json:"avgTimeSecs"`
}

// GameResults is the final snapshot produced on end-game and handed to
// the analytics sink.
type GameResults struct {
	SessionID   string          `json:"sessionId"`
	GameCode    string          `json:"gameCode"`
	QuizID      string          `json:"quizId"`
	TeacherID   string          `json:"teacherId"`
	ClassID     string          `json:"classId,omitempty"`
	StartedAt   time.Time       `json:"startedAt"`
	CompletedAt time.Time       `json:"completedAt"`
	Leaderboard Leaderboard     `json:"leaderboard"`
	Questions   []QuestionStats `json:"questions"`
}
