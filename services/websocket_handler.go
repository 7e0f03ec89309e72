package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/rhetorio/backend/models"
	"github.com/rhetorio/backend/repository"
	ws "github.com/rhetorio/backend/websocket"
)

// Client-to-server event types.
const (
	EventJoinDebate    = "join-debate"
	EventLeaveDebate   = "leave-debate"
	EventSendMessage   = "send-message"
	EventTyping        = "typing"
	EventPauseSession  = "pause-session"
	EventResumeSession = "resume-session"
	EventEndSession    = "end-session"
)

// Server-to-client event types.
const (
	EventSessionJoined  = "session-joined"
	EventNewMessage     = "new-message"
	EventUserJoined     = "user-joined"
	EventUserLeft       = "user-left"
	EventUserTyping     = "user-typing"
	EventAITyping       = "ai-typing"
	EventSessionPaused  = "session-paused"
	EventSessionResumed = "session-resumed"
	EventSessionEnded   = "session-ended"
	EventError          = "error"
)

// DebateEventProcessor routes inbound websocket events for a debate session
// and publishes the resulting state changes to every subscriber.
type DebateEventProcessor struct {
	hub     *ws.Hub
	repo    *repository.GORMRepository
	ledger  *repository.LedgerRepository
	state   *SessionStateService
	debater *DebaterService
}

func NewDebateEventProcessor(
	hub *ws.Hub,
	repo *repository.GORMRepository,
	ledger *repository.LedgerRepository,
	state *SessionStateService,
	debater *DebaterService,
) *DebateEventProcessor {
	return &DebateEventProcessor{
		hub:     hub,
		repo:    repo,
		ledger:  ledger,
		state:   state,
		debater: debater,
	}
}

type inboundEvent struct {
	Type      string          `json:"type"`
	SessionID string          `json:"session_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type sendMessagePayload struct {
	Content     string `json:"content"`
	MessageType string `json:"message_type"`
}

type endSessionPayload struct {
	Reason string `json:"reason"`
}

// HandleEvent is the hub's EventHandler. It runs on the connection's read
// goroutine, so per-connection events are processed in arrival order.
func (p *DebateEventProcessor) HandleEvent(client *ws.Client, raw []byte) {
	var event inboundEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		p.sendError(client, NewValidationError("malformed event"))
		return
	}

	if event.Type != EventJoinDebate && client.SessionID == "" {
		p.sendError(client, NewValidationError("join a debate before sending events"))
		return
	}

	ctx := context.Background()

	switch event.Type {
	case EventJoinDebate:
		p.handleJoin(ctx, client, event.SessionID)
	case EventLeaveDebate:
		p.handleLeave(client)
	case EventSendMessage:
		p.handleSendMessage(ctx, client, event.Payload)
	case EventTyping:
		p.hub.Publish(client.SessionID, EventUserTyping, map[string]string{"user_id": client.UserID})
	case EventPauseSession:
		p.handlePause(ctx, client)
	case EventResumeSession:
		p.handleResume(ctx, client)
	case EventEndSession:
		p.handleEnd(ctx, client, event.Payload)
	default:
		slog.Warn("Unknown websocket event", "type", event.Type, "user_id", client.UserID)
		p.sendError(client, NewValidationError("unknown event type"))
	}
}

func (p *DebateEventProcessor) handleJoin(ctx context.Context, client *ws.Client, sessionID string) {
	if client.SessionID != "" {
		p.sendError(client, NewConflictError("already joined a debate on this connection"))
		return
	}
	if sessionID == "" {
		p.sendError(client, NewValidationError("session_id is required"))
		return
	}

	session, err := p.repo.GetDebateSession(ctx, sessionID)
	if err != nil {
		p.sendError(client, NewInternalError(err))
		return
	}
	if session == nil {
		p.sendError(client, NewNotFoundError("session not found"))
		return
	}
	if session.UserID != client.UserID {
		p.sendError(client, NewForbiddenError("you do not own this session"))
		return
	}

	p.hub.Subscribe(client, sessionID)
	p.hub.Publish(sessionID, EventUserJoined, map[string]string{"user_id": client.UserID})
	p.hub.SendTo(client, EventSessionJoined, map[string]interface{}{
		"session":           session,
		"remaining_seconds": session.RemainingSeconds(time.Now()),
		"participants":      p.hub.SubscriberCount(sessionID),
	})
}

func (p *DebateEventProcessor) handleLeave(client *ws.Client) {
	sessionID := client.SessionID
	p.hub.Unsubscribe(client)
	// The connection stays open and unjoined, free to join another debate.
	client.SessionID = ""
	p.hub.Publish(sessionID, EventUserLeft, map[string]string{"user_id": client.UserID})
}

func (p *DebateEventProcessor) handleSendMessage(ctx context.Context, client *ws.Client, payload json.RawMessage) {
	var body sendMessagePayload
	if err := json.Unmarshal(payload, &body); err != nil {
		p.sendError(client, NewValidationError("malformed send-message payload"))
		return
	}
	if body.MessageType == "" {
		body.MessageType = models.MessageGeneral
	}
	if err := ValidateFields("send_message", map[string]string{
		"content":      body.Content,
		"message_type": body.MessageType,
	}); err != nil {
		p.sendError(client, err)
		return
	}

	message, err := p.state.AppendUserMessage(ctx, client.SessionID, client.UserID, body.Content, body.MessageType)
	if err != nil {
		p.sendError(client, err)
		if appErr, ok := err.(*AppError); ok && appErr.Kind == KindSessionExpired {
			p.hub.Publish(client.SessionID, EventSessionEnded, map[string]string{
				"status":     models.SessionCompleted,
				"end_reason": models.EndReasonExpired,
			})
		}
		return
	}

	p.hub.Publish(client.SessionID, EventNewMessage, message)

	// The opponent's turn runs off the read goroutine so long generations do
	// not block pause or end events on this connection.
	go p.respondToUser(client.SessionID, body.Content)
}

// respondToUser generates and persists the AI reply to the user's latest
// message. Failures are published to the session so they are observable; the
// user's message is never rolled back.
func (p *DebateEventProcessor) respondToUser(sessionID, userMessage string) {
	ctx := context.Background()

	if p.debater == nil {
		p.publishError(sessionID, NewGenerationUnavailableError(nil))
		return
	}

	p.hub.Publish(sessionID, EventAITyping, nil)

	session, err := p.repo.GetDebateSession(ctx, sessionID)
	if err != nil || session == nil {
		slog.Error("Failed to load session for AI turn", "error", err, "session_id", sessionID)
		return
	}

	topic, err := p.repo.GetTopicByID(ctx, session.TopicID)
	if err != nil || topic == nil {
		slog.Error("Failed to load topic for AI turn", "error", err, "session_id", sessionID)
		p.publishError(sessionID, NewInternalError(err))
		return
	}

	history, err := p.ledger.SessionMessages(ctx, sessionID)
	if err != nil {
		p.publishError(sessionID, NewInternalError(err))
		return
	}

	reply, err := p.debater.Respond(ctx, session, topic, history, userMessage)
	if err != nil {
		slog.Error("AI turn generation failed", "error", err, "session_id", sessionID)
		p.publishError(sessionID, err)
		return
	}

	message, err := p.state.AppendAIMessage(ctx, sessionID, reply.Content, reply.MessageType, &repository.AppendOptions{
		ModelID:    reply.ModelID,
		Confidence: reply.Confidence,
		LatencyMS:  int64(reply.LatencyMS),
	})
	if err != nil {
		slog.Error("Failed to persist AI reply", "error", err, "session_id", sessionID)
		p.publishError(sessionID, err)
		return
	}

	p.hub.Publish(sessionID, EventNewMessage, map[string]interface{}{
		"message":     message,
		"reasoning":   reply.Reasoning,
		"suggestions": reply.Suggestions,
	})
}

func (p *DebateEventProcessor) handlePause(ctx context.Context, client *ws.Client) {
	session, err := p.state.Pause(ctx, client.SessionID, client.UserID)
	if err != nil {
		p.sendError(client, err)
		return
	}
	p.hub.Publish(client.SessionID, EventSessionPaused, map[string]interface{}{
		"paused_at":         session.PausedAt,
		"remaining_seconds": session.RemainingSeconds(time.Now()),
	})
}

func (p *DebateEventProcessor) handleResume(ctx context.Context, client *ws.Client) {
	session, err := p.state.Resume(ctx, client.SessionID, client.UserID)
	if err != nil {
		p.sendError(client, err)
		return
	}
	p.hub.Publish(client.SessionID, EventSessionResumed, map[string]interface{}{
		"paused_seconds":    session.PausedSeconds,
		"remaining_seconds": session.RemainingSeconds(time.Now()),
	})
}

func (p *DebateEventProcessor) handleEnd(ctx context.Context, client *ws.Client, payload json.RawMessage) {
	reason := models.EndReasonFinished
	if len(payload) > 0 {
		var body endSessionPayload
		if err := json.Unmarshal(payload, &body); err != nil {
			p.sendError(client, NewValidationError("malformed end-session payload"))
			return
		}
		if body.Reason != "" {
			reason = body.Reason
		}
	}
	if err := ValidateFields("end_session", map[string]string{"reason": reason}); err != nil {
		p.sendError(client, err)
		return
	}

	session, err := p.state.End(ctx, client.SessionID, client.UserID, reason)
	if err != nil {
		p.sendError(client, err)
		return
	}
	p.hub.Publish(client.SessionID, EventSessionEnded, map[string]interface{}{
		"status":     session.Status,
		"end_reason": session.EndReason,
		"ended_at":   session.EndedAt,
	})
}

// sendError reports a failure to the connection that caused it.
func (p *DebateEventProcessor) sendError(client *ws.Client, err error) {
	appErr := classifyError(err)
	p.hub.SendTo(client, EventError, map[string]string{
		"kind":    string(appErr.Kind),
		"message": appErr.Message,
	})
}

// publishError surfaces a background failure to everyone in the session.
func (p *DebateEventProcessor) publishError(sessionID string, err error) {
	appErr := classifyError(err)
	p.hub.Publish(sessionID, EventError, map[string]string{
		"kind":    string(appErr.Kind),
		"message": appErr.Message,
	})
}
