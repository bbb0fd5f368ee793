package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"future-kids-game-service/internal/app"
	"future-kids-game-service/internal/auth"
	"future-kids-game-service/internal/domain"
)

// Handler upgrades HTTP requests to websockets and dispatches the game
// protocol onto the session coordinator.
type Handler struct {
	service  *app.GameService
	hub      *Hub
	verifier *auth.Verifier
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler builds the protocol handler. verifier may be nil, in which
// case identities are taken from the client-supplied payload fields.
func NewHandler(service *app.GameService, hub *Hub, verifier *auth.Verifier, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service:  service,
		hub:      hub,
		verifier: verifier,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

type outboundMessage struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId,omitempty"`
	Payload   any    `json:"payload"`
}

type createGamePayload struct {
	QuizID    string              `json:"quizId"`
	TeacherID string              `json:"teacherId"`
	ClassID   string              `json:"classId"`
	Settings  domain.GameSettings `json:"settings"`
}

type joinGamePayload struct {
	GameCode  string `json:"gameCode"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	AvatarURL string `json:"avatarUrl"`
}

type rejoinPayload struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
}

type sessionOnlyPayload struct {
	SessionID string `json:"sessionId"`
}

type teacherActionPayload struct {
	SessionID string `json:"sessionId"`
	TeacherID string `json:"teacherId"`
}

type kickPayload struct {
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId"`
	TeacherID string `json:"teacherId"`
}

type submitAnswerPayload struct {
	SessionID  string  `json:"sessionId"`
	UserID     string  `json:"userId"`
	UserName   string  `json:"userName"`
	QuestionID string  `json:"questionId"`
	Answer     string  `json:"answer"`
	TimeSpent  float64 `json:"timeSpent"`
}

// ServeWS is the single socket endpoint; every game event flows through the
// typed envelope protocol on this connection.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}

	var ident *auth.Identity
	if token := r.URL.Query().Get("token"); token != "" && h.verifier != nil {
		if id, err := h.verifier.Verify(token); err == nil {
			ident = &id
		} else {
			h.logger.Debug("ignoring invalid token", zap.Error(err))
		}
	}

	client := newClient(conn)
	go client.writePump(h.logger)

	h.readLoop(client, ident)

	// Socket gone: mark the participant disconnected so their score
	// survives a rejoin, then tear the connection down.
	sessionID, userID := h.clientIdentity(client)
	h.hub.Leave(client)
	if sessionID != "" && userID != "" {
		h.service.HandleDisconnect(sessionID, userID)
	}
	close(client.send)
	_ = conn.Close()
}

func (h *Handler) readLoop(client *Client, ident *auth.Identity) {
	defer func() {
		if rec := recover(); rec != nil {
			h.logger.Error("panic in ws handler", zap.Any("panic", rec))
		}
	}()

	for {
		var inbound inboundMessage
		if err := client.conn.ReadJSON(&inbound); err != nil {
			return
		}
		h.dispatch(client, ident, inbound)
	}
}

func (h *Handler) dispatch(client *Client, ident *auth.Identity, inbound inboundMessage) {
	reply := func(payload map[string]any) {
		h.deliver(client, outboundMessage{Type: inbound.Type, RequestID: inbound.RequestID, Payload: payload})
	}
	fail := func(err error) {
		reply(map[string]any{"success": false, "error": h.errorMessage(client, inbound.Type, err)})
	}

	switch inbound.Type {
	case "create-game":
		var p createGamePayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			fail(errBadPayload)
			return
		}
		teacherID := h.effectiveUser(ident, p.TeacherID)
		created, err := h.service.CreateGame(context.Background(), p.QuizID, teacherID, p.ClassID, p.Settings)
		if err != nil {
			fail(err)
			return
		}
		h.hub.Join(created.SessionID, teacherID, client)
		reply(map[string]any{"success": true, "sessionId": created.SessionID, "gameCode": created.GameCode})

	case "join-game":
		var p joinGamePayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			fail(errBadPayload)
			return
		}
		userID, userName := h.effectiveIdentity(ident, p.UserID, p.UserName)
		view, err := h.service.JoinGame(context.Background(), p.GameCode, userID, userName, p.AvatarURL)
		if err != nil {
			fail(err)
			return
		}
		h.hub.Join(view.SessionID, userID, client)
		reply(map[string]any{"success": true, "session": view})

	case "rejoin-session":
		var p rejoinPayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			fail(errBadPayload)
			return
		}
		userID, userName := h.effectiveIdentity(ident, p.UserID, p.UserName)
		view, err := h.service.RejoinSession(p.SessionID, userID, userName)
		if err != nil {
			fail(err)
			return
		}
		h.hub.Join(view.SessionID, userID, client)
		reply(map[string]any{"success": true, "session": view})

	case "get-current-question":
		var p sessionOnlyPayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			fail(errBadPayload)
			return
		}
		question, err := h.service.CurrentQuestion(p.SessionID)
		if err != nil {
			fail(err)
			return
		}
		reply(map[string]any{"success": true, "question": question})

	case "get-leaderboard":
		var p sessionOnlyPayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			fail(errBadPayload)
			return
		}
		leaderboard, err := h.service.Leaderboard(p.SessionID)
		if err != nil {
			fail(err)
			return
		}
		reply(map[string]any{"success": true, "leaderboard": leaderboard})

	case "start-game":
		var p teacherActionPayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			fail(errBadPayload)
			return
		}
		if _, err := h.service.StartGame(p.SessionID, h.effectiveUser(ident, p.TeacherID)); err != nil {
			fail(err)
			return
		}
		reply(map[string]any{"success": true})

	case "next-question":
		var p teacherActionPayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			fail(errBadPayload)
			return
		}
		question, err := h.service.NextQuestion(p.SessionID, h.effectiveUser(ident, p.TeacherID))
		if err != nil {
			fail(err)
			return
		}
		reply(map[string]any{"success": true, "question": question, "questionIndex": question.Index})

	case "submit-answer":
		var p submitAnswerPayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			fail(errBadPayload)
			return
		}
		userID, userName := h.effectiveIdentity(ident, p.UserID, p.UserName)
		result, err := h.service.SubmitAnswer(p.SessionID, userID, userName, p.QuestionID, p.Answer, p.TimeSpent)
		if err != nil {
			fail(err)
			return
		}
		reply(map[string]any{
			"success":    true,
			"isCorrect":  result.IsCorrect,
			"points":     result.Points,
			"totalScore": result.TotalScore,
		})

	case "question-timeout":
		var p sessionOnlyPayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			fail(errBadPayload)
			return
		}
		if err := h.service.QuestionTimeout(p.SessionID); err != nil {
			fail(err)
			return
		}
		reply(map[string]any{"success": true})

	case "pause-game":
		var p teacherActionPayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			fail(errBadPayload)
			return
		}
		if err := h.service.PauseGame(p.SessionID, h.effectiveUser(ident, p.TeacherID)); err != nil {
			fail(err)
			return
		}
		reply(map[string]any{"success": true})

	case "resume-game":
		var p teacherActionPayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			fail(errBadPayload)
			return
		}
		if err := h.service.ResumeGame(p.SessionID, h.effectiveUser(ident, p.TeacherID)); err != nil {
			fail(err)
			return
		}
		reply(map[string]any{"success": true})

	case "kick-participant":
		var p kickPayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			fail(errBadPayload)
			return
		}
		if err := h.service.KickParticipant(p.SessionID, p.UserID, h.effectiveUser(ident, p.TeacherID)); err != nil {
			fail(err)
			return
		}
		reply(map[string]any{"success": true})

	case "end-game":
		var p teacherActionPayload
		if err := json.Unmarshal(inbound.Payload, &p); err != nil {
			fail(errBadPayload)
			return
		}
		results, err := h.service.EndGame(context.Background(), p.SessionID, h.effectiveUser(ident, p.TeacherID))
		if err != nil {
			fail(err)
			return
		}
		reply(map[string]any{"success": true, "results": results})

	default:
		reply(map[string]any{"success": false, "error": "unsupported message type"})
	}
}

// deliver queues a direct response; a client that can't keep up loses it
// the same way it would lose a broadcast.
func (h *Handler) deliver(client *Client, msg outboundMessage) {
	select {
	case client.send <- msg:
	default:
		h.logger.Warn("dropping response for slow client", zap.String("type", msg.Type))
	}
}

var errBadPayload = errors.New("invalid payload")

// knownErrors are surfaced to clients verbatim; anything else is logged
// with session context and reported generically so one session's fault
// can't leak internals or take the process down.
var knownErrors = []error{
	domain.ErrSessionNotFound,
	domain.ErrQuizNotFound,
	domain.ErrQuestionNotFound,
	domain.ErrNotAParticipant,
	domain.ErrNotTeacher,
	domain.ErrGameAlreadyStarted,
	domain.ErrGameNotActive,
	domain.ErrGamePaused,
	domain.ErrGameCompleted,
	domain.ErrNoParticipants,
	domain.ErrNoMoreQuestions,
	domain.ErrNoOpenQuestion,
	domain.ErrQuestionClosed,
	domain.ErrAnswerTooLate,
	errBadPayload,
}

func (h *Handler) errorMessage(client *Client, msgType string, err error) string {
	for _, known := range knownErrors {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	sessionID, userID := h.clientIdentity(client)
	h.logger.Error("unexpected handler error",
		zap.String("type", msgType),
		zap.String("sessionId", sessionID),
		zap.String("userId", userID),
		zap.Error(err))
	return "internal error"
}

func (h *Handler) clientIdentity(client *Client) (sessionID, userID string) {
	h.hub.mu.RLock()
	defer h.hub.mu.RUnlock()
	return client.sessionID, client.userID
}

// effectiveUser prefers the verified token identity over client-supplied ids.
func (h *Handler) effectiveUser(ident *auth.Identity, claimed string) string {
	if ident != nil && ident.UserID != "" {
		return ident.UserID
	}
	return claimed
}

func (h *Handler) effectiveIdentity(ident *auth.Identity, claimedID, claimedName string) (string, string) {
	if ident == nil {
		return claimedID, claimedName
	}
	userID, userName := claimedID, claimedName
	if ident.UserID != "" {
		userID = ident.UserID
	}
	if ident.Name != "" {
		userName = ident.Name
	}
	return userID, userName
}
