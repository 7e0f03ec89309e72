package services

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/rhetorio/backend/models"
	"github.com/rhetorio/backend/repository"
)

// SessionEndpoints serves the REST surface for debate sessions, their message
// ledger and their post-session analysis.
type SessionEndpoints struct {
	repo    *repository.GORMRepository
	ledger  *repository.LedgerRepository
	state   *SessionStateService
	scorer  *ScoringEngine
	timeCap int
}

func NewSessionEndpoints(repo *repository.GORMRepository, ledger *repository.LedgerRepository, state *SessionStateService, scorer *ScoringEngine, defaultTimeLimit int) *SessionEndpoints {
	if defaultTimeLimit <= 0 {
		defaultTimeLimit = models.DefaultTimeLimitSeconds
	}
	return &SessionEndpoints{
		repo:    repo,
		ledger:  ledger,
		state:   state,
		scorer:  scorer,
		timeCap: defaultTimeLimit,
	}
}

type createSessionRequest struct {
	TopicID          string `json:"topic_id"`
	Side             string `json:"side"`
	Difficulty       string `json:"difficulty"`
	TimeLimitSeconds int    `json:"time_limit_seconds"`
}

type sendMessageRequest struct {
	Content     string `json:"content"`
	MessageType string `json:"message_type"`
}

type reactRequest struct {
	Reaction string `json:"reaction"`
}

type endSessionRequest struct {
	Reason string `json:"reason"`
}

type flagRequest struct {
	Flagged *bool `json:"flagged"`
}

// CreateSessionHandler starts a new debate. A user can only have one
// non-terminal session at a time.
func (e *SessionEndpoints) CreateSessionHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		WriteError(w, NewUnauthorizedError("authentication required"))
		return
	}

	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewValidationError("invalid request body"))
		return
	}

	if err := ValidateFields("create_session", map[string]string{
		"topic_id":   req.TopicID,
		"side":       req.Side,
		"difficulty": req.Difficulty,
	}); err != nil {
		WriteError(w, err)
		return
	}

	topic, err := e.repo.GetTopicByID(r.Context(), req.TopicID)
	if err != nil {
		WriteError(w, NewInternalError(err))
		return
	}
	if topic == nil {
		WriteError(w, NewNotFoundError("topic not found"))
		return
	}

	existing, err := e.repo.GetActiveSessionForUser(r.Context(), user.ID)
	if err != nil {
		WriteError(w, NewInternalError(err))
		return
	}
	if existing != nil {
		WriteError(w, NewConflictError("you already have an active session"))
		return
	}

	timeLimit := req.TimeLimitSeconds
	if timeLimit <= 0 || timeLimit > e.timeCap {
		timeLimit = e.timeCap
	}

	session := &models.DebateSession{
		UserID:           user.ID,
		TopicID:          topic.ID,
		Side:             req.Side,
		Difficulty:       req.Difficulty,
		Status:           models.SessionActive,
		StartedAt:        time.Now(),
		TimeLimitSeconds: timeLimit,
	}
	if err := e.repo.CreateDebateSession(r.Context(), session); err != nil {
		WriteError(w, NewInternalError(err))
		return
	}
	session.Topic = *topic

	WriteData(w, http.StatusCreated, session)
}

// ListSessionsHandler returns the caller's sessions, newest first.
func (e *SessionEndpoints) ListSessionsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		WriteError(w, NewUnauthorizedError("authentication required"))
		return
	}

	sessions, err := e.repo.GetDebateSessions(r.Context(), user.ID)
	if err != nil {
		WriteError(w, NewInternalError(err))
		return
	}

	WriteData(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// GetSessionHandler returns one session with its live remaining time.
func (e *SessionEndpoints) GetSessionHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := e.ownedSession(w, r)
	if !ok {
		return
	}

	WriteData(w, http.StatusOK, map[string]interface{}{
		"session":           session,
		"remaining_seconds": session.RemainingSeconds(time.Now()),
	})
}

// ListMessagesHandler pages through the session ledger. Results are always
// oldest first; `before` moves the window back in time.
func (e *SessionEndpoints) ListMessagesHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := e.ownedSession(w, r)
	if !ok {
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			WriteError(w, NewValidationError("limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	var before *time.Time
	if raw := r.URL.Query().Get("before"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			WriteError(w, NewValidationError("before must be an RFC3339 timestamp"))
			return
		}
		before = &parsed
	}

	sender := r.URL.Query().Get("sender")
	if sender != "" && sender != models.SenderUser && sender != models.SenderAI {
		WriteError(w, NewValidationError("sender must be 'user' or 'ai'"))
		return
	}

	messages, err := e.ledger.Page(r.Context(), session.ID, limit, before, sender)
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteData(w, http.StatusOK, map[string]interface{}{"messages": messages})
}

// SendMessageHandler appends a user message over REST. The websocket path is
// preferred; this exists for clients without a socket.
func (e *SessionEndpoints) SendMessageHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		WriteError(w, NewUnauthorizedError("authentication required"))
		return
	}

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewValidationError("invalid request body"))
		return
	}
	if req.MessageType == "" {
		req.MessageType = models.MessageGeneral
	}
	if err := ValidateFields("send_message", map[string]string{
		"content":      req.Content,
		"message_type": req.MessageType,
	}); err != nil {
		WriteError(w, err)
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	message, err := e.state.AppendUserMessage(r.Context(), sessionID, user.ID, req.Content, req.MessageType)
	if err != nil {
		WriteError(w, err, "session_id", sessionID)
		return
	}

	WriteData(w, http.StatusCreated, message)
}

// PauseSessionHandler pauses the debate clock.
func (e *SessionEndpoints) PauseSessionHandler(w http.ResponseWriter, r *http.Request) {
	e.transition(w, r, func(sessionID, userID string) (*models.DebateSession, error) {
		return e.state.Pause(r.Context(), sessionID, userID)
	})
}

// ResumeSessionHandler restarts the debate clock.
func (e *SessionEndpoints) ResumeSessionHandler(w http.ResponseWriter, r *http.Request) {
	e.transition(w, r, func(sessionID, userID string) (*models.DebateSession, error) {
		return e.state.Resume(r.Context(), sessionID, userID)
	})
}

// EndSessionHandler moves the session to a terminal state.
func (e *SessionEndpoints) EndSessionHandler(w http.ResponseWriter, r *http.Request) {
	reason := models.EndReasonFinished
	if r.Body != nil && r.ContentLength != 0 {
		var req endSessionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, NewValidationError("invalid request body"))
			return
		}
		if req.Reason != "" {
			reason = req.Reason
		}
	}
	if err := ValidateFields("end_session", map[string]string{"reason": reason}); err != nil {
		WriteError(w, err)
		return
	}

	e.transition(w, r, func(sessionID, userID string) (*models.DebateSession, error) {
		return e.state.End(r.Context(), sessionID, userID, reason)
	})
}

func (e *SessionEndpoints) transition(w http.ResponseWriter, r *http.Request, apply func(sessionID, userID string) (*models.DebateSession, error)) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		WriteError(w, NewUnauthorizedError("authentication required"))
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	session, err := apply(sessionID, user.ID)
	if err != nil {
		WriteError(w, err, "session_id", sessionID)
		return
	}

	WriteData(w, http.StatusOK, map[string]interface{}{
		"session":           session,
		"remaining_seconds": session.RemainingSeconds(time.Now()),
	})
}

// GetAnalysisHandler returns the session's performance metrics, generating
// them on demand for completed sessions that have none yet.
func (e *SessionEndpoints) GetAnalysisHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := e.ownedSession(w, r)
	if !ok {
		return
	}

	metrics, err := e.repo.GetPerformanceMetrics(r.Context(), session.ID)
	if err != nil {
		WriteError(w, NewInternalError(err))
		return
	}

	if metrics == nil {
		if !session.Terminal() {
			WriteError(w, NewInvalidTransitionError("analyze", session.Status))
			return
		}
		metrics, err = e.scorer.ScoreSession(r.Context(), session.ID)
		if err != nil {
			WriteError(w, err, "session_id", session.ID)
			return
		}
	}

	WriteData(w, http.StatusOK, metrics)
}

// ReactHandler records the caller's reaction to a message. One reaction per
// user per message; repeats conflict.
func (e *SessionEndpoints) ReactHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		WriteError(w, NewUnauthorizedError("authentication required"))
		return
	}
	session, ok := e.ownedSession(w, r)
	if !ok {
		return
	}

	var req reactRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, NewValidationError("invalid request body"))
		return
	}
	if err := ValidateFields("react", map[string]string{"reaction": req.Reaction}); err != nil {
		WriteError(w, err)
		return
	}

	messageID := chi.URLParam(r, "messageID")
	message, err := e.ledger.GetMessage(r.Context(), messageID)
	if err != nil {
		WriteError(w, err)
		return
	}
	if message == nil || message.SessionID != session.ID {
		WriteError(w, NewNotFoundError("message not found"))
		return
	}

	updated, err := e.ledger.React(r.Context(), messageID, user.ID, req.Reaction)
	if err != nil {
		WriteError(w, err, "message_id", messageID)
		return
	}

	WriteData(w, http.StatusOK, updated)
}

// RemoveReactionHandler withdraws the caller's reaction from a message.
func (e *SessionEndpoints) RemoveReactionHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		WriteError(w, NewUnauthorizedError("authentication required"))
		return
	}
	session, ok := e.ownedSession(w, r)
	if !ok {
		return
	}

	messageID := chi.URLParam(r, "messageID")
	message, err := e.ledger.GetMessage(r.Context(), messageID)
	if err != nil {
		WriteError(w, err)
		return
	}
	if message == nil || message.SessionID != session.ID {
		WriteError(w, NewNotFoundError("message not found"))
		return
	}

	if err := e.ledger.RemoveReaction(r.Context(), messageID, user.ID); err != nil {
		WriteError(w, err, "message_id", messageID)
		return
	}

	WriteData(w, http.StatusOK, map[string]string{"message_id": messageID})
}

// FlagMessageHandler toggles the moderation flag on a message. Omitting the
// body flags the message; {"flagged": false} clears it.
func (e *SessionEndpoints) FlagMessageHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := e.ownedSession(w, r)
	if !ok {
		return
	}

	flagged := true
	if r.Body != nil && r.ContentLength != 0 {
		var req flagRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, NewValidationError("invalid request body"))
			return
		}
		if req.Flagged != nil {
			flagged = *req.Flagged
		}
	}

	messageID := chi.URLParam(r, "messageID")
	message, err := e.ledger.GetMessage(r.Context(), messageID)
	if err != nil {
		WriteError(w, err)
		return
	}
	if message == nil || message.SessionID != session.ID {
		WriteError(w, NewNotFoundError("message not found"))
		return
	}

	if err := e.ledger.SetFlag(r.Context(), messageID, flagged); err != nil {
		WriteError(w, err, "message_id", messageID)
		return
	}

	WriteData(w, http.StatusOK, map[string]interface{}{"message_id": messageID, "flagged": flagged})
}

// SearchMessagesHandler runs a case-insensitive substring search over the
// session's ledger.
func (e *SessionEndpoints) SearchMessagesHandler(w http.ResponseWriter, r *http.Request) {
	session, ok := e.ownedSession(w, r)
	if !ok {
		return
	}

	term := strings.TrimSpace(r.URL.Query().Get("q"))
	if term == "" {
		WriteError(w, NewValidationError("q is required"))
		return
	}

	messages, err := e.ledger.Search(r.Context(), session.ID, term)
	if err != nil {
		WriteError(w, err)
		return
	}

	WriteData(w, http.StatusOK, map[string]interface{}{"messages": messages})
}

// ownedSession loads the {sessionID} route param and enforces ownership,
// writing the error response itself on failure.
func (e *SessionEndpoints) ownedSession(w http.ResponseWriter, r *http.Request) (*models.DebateSession, bool) {
	user, ok := UserFromContext(r.Context())
	if !ok {
		WriteError(w, NewUnauthorizedError("authentication required"))
		return nil, false
	}

	sessionID := chi.URLParam(r, "sessionID")
	session, err := e.repo.GetDebateSession(r.Context(), sessionID)
	if err != nil {
		WriteError(w, NewInternalError(err))
		return nil, false
	}
	if session == nil {
		WriteError(w, NewNotFoundError("session not found"))
		return nil, false
	}
	if session.UserID != user.ID {
		WriteError(w, NewForbiddenError("you do not own this session"))
		return nil, false
	}
	return session, true
}
