package app

import (
	"sort"
	"sync"
	"time"

	"future-kids-game-service/internal/domain"
)

const (
	// defaultQuestionSecs applies when a question carries no time limit.
	defaultQuestionSecs = 30
	// deadlineGrace is how long past a question's wall-clock deadline the
	// server waits before force-closing the window. Covers teacher-client
	// latency; the server stays authoritative if the teacher disconnects.
	deadlineGrace = 2 * time.Second
)

// Session is the in-memory state of one live play-through of a quiz. All
// mutation goes through its methods under a per-session mutex, so logically
// concurrent events (two answers in the same instant, a pause racing a
// timeout) are serialized.
type Session struct {
	id        string
	code      string
	teacherID string
	classID   string
	quiz      domain.Quiz
	settings  domain.GameSettings
	createdAt time.Time
	now       func() time.Time

	mu           sync.Mutex
	status       domain.SessionStatus
	startedAt    time.Time
	completedAt  time.Time
	currentIndex int
	participants map[string]*domain.Participant
	kicked       map[string]struct{}
	window       *questionWindow
	lastActivity time.Time
	onExpire     func(questionIndex int)
}

// questionWindow is the ephemeral per-question timing state. Recreated on
// every advance; never persisted.
type questionWindow struct {
	questionID string
	index      int
	openedAt   time.Time
	duration   time.Duration
	closed     bool
	pausedAt   time.Time
	pausedFor  time.Duration
	timer      *time.Timer
}

// NewSession is exported for infrastructure layers and tests that need to
// seed sessions directly.
func NewSession(id, code string, quiz domain.Quiz, teacherID, classID string, settings domain.GameSettings) *Session {
	return NewSessionWithClock(id, code, quiz, teacherID, classID, settings, time.Now)
}

// NewSessionWithClock allows deterministic timestamps in tests.
func NewSessionWithClock(id, code string, quiz domain.Quiz, teacherID, classID string, settings domain.GameSettings, now func() time.Time) *Session {
	return &Session{
		id:           id,
		code:         code,
		teacherID:    teacherID,
		classID:      classID,
		quiz:         quiz,
		settings:     settings,
		createdAt:    now(),
		now:          now,
		status:       domain.StatusWaiting,
		currentIndex: -1,
		participants: make(map[string]*domain.Participant),
		kicked:       make(map[string]struct{}),
		lastActivity: now(),
	}
}

func (s *Session) ID() string        { return s.id }
func (s *Session) Code() string      { return s.code }
func (s *Session) QuizID() string    { return s.quiz.ID }
func (s *Session) TeacherID() string { return s.teacherID }
func (s *Session) ClassID() string   { return s.classID }

// Status returns the current lifecycle state.
func (s *Session) Status() domain.SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// QuestionIndex returns the index of the current question, -1 before start.
func (s *Session) QuestionIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentIndex
}

func (s *Session) participantScore(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.participants[userID]; ok {
		return p.Score
	}
	return 0
}

// Completed reports whether the session has finished; completed sessions
// release their game code for reuse.
func (s *Session) Completed() bool {
	return s.Status() == domain.StatusCompleted
}

// Idle reports whether nobody is connected and nothing has happened since
// cutoff. The store's reaper evicts idle sessions.
func (s *Session) Idle(cutoff time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.participants {
		if p.Connected {
			return false
		}
	}
	return s.lastActivity.Before(cutoff)
}

// Close releases the window deadline timer. Called when the session is
// evicted from the store.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
}

// setExpiryHandler registers the callback invoked when an open question
// window passes its wall-clock deadline.
func (s *Session) setExpiryHandler(fn func(questionIndex int)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onExpire = fn
}

// Join registers a participant, or treats an existing disconnected entry as
// a reconnect rather than creating a duplicate. Scores survive disconnects.
func (s *Session) Join(userID, userName, avatarURL string) (domain.SessionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == domain.StatusCompleted {
		return domain.SessionView{}, domain.ErrGameCompleted
	}
	if _, banned := s.kicked[userID]; banned {
		return domain.SessionView{}, domain.ErrNotAParticipant
	}

	s.touchLocked()
	if p, ok := s.participants[userID]; ok {
		p.Connected = true
		if userName != "" {
			p.UserName = userName
		}
		if avatarURL != "" {
			p.AvatarURL = avatarURL
		}
	} else {
		s.participants[userID] = &domain.Participant{
			UserID:    userID,
			UserName:  userName,
			AvatarURL: avatarURL,
			JoinedAt:  s.now(),
			Connected: true,
			Answers:   make(map[string]domain.AnswerRecord),
		}
	}
	return s.viewLocked(), nil
}

// Rejoin flips a disconnected participant back to connected and returns the
// session snapshot. If the registry has no memory of the user (say, the
// process restarted), a fresh participant is materialized from the supplied
// name instead of hard-failing the reconnect.
func (s *Session) Rejoin(userID, userName string) (domain.SessionView, error) {
	return s.Join(userID, userName, "")
}

// MarkDisconnected records a socket drop without deleting participant state.
func (s *Session) MarkDisconnected(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.participants[userID]
	if !ok {
		return false
	}
	p.Connected = false
	s.touchLocked()
	return true
}

// Kick hard-removes a participant; later rejoins for that user fail.
func (s *Session) Kick(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.participants[userID]; !ok {
		return false
	}
	delete(s.participants, userID)
	s.kicked[userID] = struct{}{}
	s.touchLocked()
	return true
}

// Start transitions waiting → active and opens the first question window.
func (s *Session) Start() (domain.QuestionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.status {
	case domain.StatusCompleted:
		return domain.QuestionView{}, domain.ErrGameCompleted
	case domain.StatusActive, domain.StatusPaused:
		return domain.QuestionView{}, domain.ErrGameAlreadyStarted
	}
	if s.connectedCountLocked() == 0 {
		return domain.QuestionView{}, domain.ErrNoParticipants
	}
	if len(s.quiz.Questions) == 0 {
		return domain.QuestionView{}, domain.ErrNoMoreQuestions
	}

	s.status = domain.StatusActive
	s.startedAt = s.now()
	s.touchLocked()
	s.openWindowLocked(0)
	return s.questionViewLocked(), nil
}

// Advance closes the current window and opens the next question, or fails
// with ErrNoMoreQuestions when the quiz is exhausted (callers map that to
// ending the game).
func (s *Session) Advance() (domain.QuestionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.status {
	case domain.StatusCompleted:
		return domain.QuestionView{}, domain.ErrGameCompleted
	case domain.StatusWaiting:
		return domain.QuestionView{}, domain.ErrGameNotActive
	case domain.StatusPaused:
		return domain.QuestionView{}, domain.ErrGamePaused
	}
	if s.window == nil {
		return domain.QuestionView{}, domain.ErrNoOpenQuestion
	}
	if s.currentIndex+1 >= len(s.quiz.Questions) {
		// Keep the exhausted window closed so stragglers can't score.
		s.closeWindowLocked()
		return domain.QuestionView{}, domain.ErrNoMoreQuestions
	}

	s.closeWindowLocked()
	s.touchLocked()
	s.openWindowLocked(s.currentIndex + 1)
	return s.questionViewLocked(), nil
}

// TimeoutQuestion closes the open window without advancing. Idempotent: a
// second timeout, or one racing an advance, is a no-op.
func (s *Session) TimeoutQuestion() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != domain.StatusActive || s.window == nil || s.window.closed {
		return false
	}
	s.closeWindowLocked()
	s.touchLocked()
	return true
}

// expire is the deadline-timer path into TimeoutQuestion, guarded against
// stale timers from already-advanced windows.
func (s *Session) expire(questionIndex int) {
	s.mu.Lock()
	if s.status != domain.StatusActive || s.window == nil || s.window.index != questionIndex || s.window.closed {
		s.mu.Unlock()
		return
	}
	s.closeWindowLocked()
	s.touchLocked()
	fn := s.onExpire
	s.mu.Unlock()

	if fn != nil {
		fn(questionIndex)
	}
}

// Pause freezes the remaining time budget of the open window.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != domain.StatusActive {
		return domain.ErrGameNotActive
	}
	s.status = domain.StatusPaused
	s.touchLocked()
	if s.window != nil && !s.window.closed {
		s.window.pausedAt = s.now()
		s.stopTimerLocked()
	}
	return nil
}

// Resume unfreezes the window and reschedules its deadline with whatever
// budget was left when the game paused.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != domain.StatusPaused {
		return domain.ErrGameNotActive
	}
	s.status = domain.StatusActive
	s.touchLocked()
	if s.window != nil && !s.window.closed && !s.window.pausedAt.IsZero() {
		s.window.pausedFor += s.now().Sub(s.window.pausedAt)
		s.window.pausedAt = time.Time{}
		s.scheduleDeadlineLocked()
	}
	return nil
}

// Submit scores and records an answer exactly once per question per
// participant. A duplicate submission returns the prior record unchanged,
// which keeps network retries harmless.
func (s *Session) Submit(userID, userName, questionID, answer string, timeSpentSecs float64) (domain.AnswerRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.status {
	case domain.StatusCompleted:
		return domain.AnswerRecord{}, false, domain.ErrGameCompleted
	case domain.StatusWaiting:
		return domain.AnswerRecord{}, false, domain.ErrGameNotActive
	case domain.StatusPaused:
		return domain.AnswerRecord{}, false, domain.ErrGamePaused
	}
	if s.window == nil {
		return domain.AnswerRecord{}, false, domain.ErrNoOpenQuestion
	}
	if s.window.questionID != questionID {
		// An answer for an earlier question after the teacher advanced is
		// late, never silently scored against the new question.
		if s.questionByID(questionID) != nil {
			return domain.AnswerRecord{}, false, domain.ErrQuestionClosed
		}
		return domain.AnswerRecord{}, false, domain.ErrQuestionNotFound
	}
	if s.window.closed {
		return domain.AnswerRecord{}, false, domain.ErrQuestionClosed
	}
	if _, banned := s.kicked[userID]; banned {
		return domain.AnswerRecord{}, false, domain.ErrNotAParticipant
	}

	p, ok := s.participants[userID]
	if !ok {
		// Recovery path: the registry lost this user (restart, missed join).
		// Materialize them from the payload rather than hard-failing.
		p = &domain.Participant{
			UserID:    userID,
			UserName:  userName,
			JoinedAt:  s.now(),
			Connected: true,
			Answers:   make(map[string]domain.AnswerRecord),
		}
		s.participants[userID] = p
	}

	if prior, answered := p.Answers[questionID]; answered {
		return prior, true, nil
	}

	question := s.quiz.Questions[s.window.index]
	correct, points, err := Score(question, answer, timeSpentSecs, s.window.duration.Seconds())
	if err != nil {
		return domain.AnswerRecord{}, false, err
	}

	record := domain.AnswerRecord{
		QuestionID:      questionID,
		SubmittedAnswer: answer,
		IsCorrect:       correct,
		TimeSpentSecs:   timeSpentSecs,
		PointsAwarded:   points,
		SubmittedAt:     s.now(),
	}
	p.Answers[questionID] = record
	p.Score += points
	s.touchLocked()
	return record, false, nil
}

// End finalizes the session and produces the results snapshot.
func (s *Session) End() (domain.GameResults, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == domain.StatusCompleted {
		return domain.GameResults{}, domain.ErrGameCompleted
	}
	if s.window != nil {
		s.closeWindowLocked()
	}
	s.status = domain.StatusCompleted
	s.completedAt = s.now()
	s.touchLocked()

	return domain.GameResults{
		SessionID:   s.id,
		GameCode:    s.code,
		QuizID:      s.quiz.ID,
		TeacherID:   s.teacherID,
		ClassID:     s.classID,
		StartedAt:   s.startedAt,
		CompletedAt: s.completedAt,
		Leaderboard: s.leaderboardLocked(),
		Questions:   s.questionStatsLocked(),
	}, nil
}

// Leaderboard returns the deterministic scoreboard snapshot.
func (s *Session) Leaderboard() domain.Leaderboard {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leaderboardLocked()
}

// View returns the full session snapshot (rejoin/get-current-question).
func (s *Session) View() domain.SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

// CurrentQuestion returns the open question with server-derived remaining
// time, or ErrNoOpenQuestion when nothing is open.
func (s *Session) CurrentQuestion() (domain.QuestionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.window == nil || s.window.closed {
		return domain.QuestionView{}, domain.ErrNoOpenQuestion
	}
	return s.questionViewLocked(), nil
}

func (s *Session) connectedCountLocked() int {
	n := 0
	for _, p := range s.participants {
		if p.Connected {
			n++
		}
	}
	return n
}

func (s *Session) touchLocked() {
	s.lastActivity = s.now()
}

func (s *Session) questionByID(questionID string) *domain.Question {
	for i := range s.quiz.Questions {
		if s.quiz.Questions[i].ID == questionID {
			return &s.quiz.Questions[i]
		}
	}
	return nil
}

func (s *Session) openWindowLocked(index int) {
	q := s.quiz.Questions[index]
	secs := q.TimeLimitSecs
	if secs <= 0 {
		secs = defaultQuestionSecs
	}
	s.currentIndex = index
	s.window = &questionWindow{
		questionID: q.ID,
		index:      index,
		openedAt:   s.now(),
		duration:   time.Duration(secs) * time.Second,
	}
	s.scheduleDeadlineLocked()
}

func (s *Session) scheduleDeadlineLocked() {
	w := s.window
	if w == nil || w.closed {
		return
	}
	s.stopTimerLocked()
	index := w.index
	w.timer = time.AfterFunc(s.remainingLocked()+deadlineGrace, func() {
		s.expire(index)
	})
}

func (s *Session) closeWindowLocked() {
	if s.window == nil {
		return
	}
	s.window.closed = true
	s.stopTimerLocked()
}

func (s *Session) stopTimerLocked() {
	if s.window != nil && s.window.timer != nil {
		s.window.timer.Stop()
		s.window.timer = nil
	}
}

// remainingLocked re-derives the remaining window budget server-side; the
// Pause bookkeeping keeps it honest across pause/resume cycles.
func (s *Session) remainingLocked() time.Duration {
	w := s.window
	if w == nil || w.closed {
		return 0
	}
	ref := s.now()
	if !w.pausedAt.IsZero() {
		ref = w.pausedAt
	}
	elapsed := ref.Sub(w.openedAt) - w.pausedFor
	if remaining := w.duration - elapsed; remaining > 0 {
		return remaining
	}
	return 0
}

func (s *Session) questionViewLocked() domain.QuestionView {
	q := s.quiz.Questions[s.window.index]
	secs := q.TimeLimitSecs
	if secs <= 0 {
		secs = defaultQuestionSecs
	}
	return domain.QuestionView{
		ID:            q.ID,
		Type:          q.Type,
		Prompt:        q.Prompt,
		Options:       q.Options,
		Points:        q.Points,
		TimeLimitSecs: secs,
		Index:         s.window.index,
		Total:         len(s.quiz.Questions),
		RemainingSecs: s.remainingLocked().Seconds(),
	}
}

func (s *Session) viewLocked() domain.SessionView {
	view := domain.SessionView{
		SessionID:      s.id,
		GameCode:       s.code,
		QuizID:         s.quiz.ID,
		QuizTitle:      s.quiz.Title,
		Status:         s.status,
		Settings:       s.settings,
		QuestionIndex:  s.currentIndex,
		TotalQuestions: len(s.quiz.Questions),
		ParticipantCnt: len(s.participants),
		Leaderboard:    s.leaderboardLocked(),
	}
	if s.window != nil && !s.window.closed && s.status != domain.StatusWaiting {
		qv := s.questionViewLocked()
		view.CurrentQuestion = &qv
	}
	return view
}

// leaderboardLocked orders by score descending with ties broken by earliest
// join, then name, so repeated broadcasts never jitter equal scores.
func (s *Session) leaderboardLocked() domain.Leaderboard {
	participants := make([]*domain.Participant, 0, len(s.participants))
	for _, p := range s.participants {
		participants = append(participants, p)
	}
	sort.Slice(participants, func(i, j int) bool {
		if participants[i].Score != participants[j].Score {
			return participants[i].Score > participants[j].Score
		}
		if !participants[i].JoinedAt.Equal(participants[j].JoinedAt) {
			return participants[i].JoinedAt.Before(participants[j].JoinedAt)
		}
		return participants[i].UserName < participants[j].UserName
	})

	entries := make([]domain.LeaderboardEntry, len(participants))
	for i, p := range participants {
		entries[i] = domain.LeaderboardEntry{
			Rank:      i + 1,
			UserID:    p.UserID,
			UserName:  p.UserName,
			Score:     p.Score,
			AvatarURL: p.AvatarURL,
		}
	}
	return domain.Leaderboard{
		SessionID: s.id,
		Entries:   entries,
		UpdatedAt: s.now(),
	}
}

func (s *Session) questionStatsLocked() []domain.QuestionStats {
	stats := make([]domain.QuestionStats, 0, len(s.quiz.Questions))
	for _, q := range s.quiz.Questions {
		st := domain.QuestionStats{QuestionID: q.ID, Prompt: q.Prompt}
		var totalTime float64
		for _, p := range s.participants {
			record, ok := p.Answers[q.ID]
			if !ok {
				continue
			}
			st.AnswerCount++
			totalTime += record.TimeSpentSecs
			if record.IsCorrect {
				st.CorrectCount++
			} else {
				st.WrongCount++
			}
		}
		if st.AnswerCount > 0 {
			st.AvgTimeSecs = totalTime / float64(st.AnswerCount)
		}
		stats = append(stats, st)
	}
	return stats
}
