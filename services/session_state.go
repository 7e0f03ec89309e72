package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rhetorio/backend/models"
	"github.com/rhetorio/backend/repository"
)

// sweepInterval is how often idle expired sessions are auto-completed. The
// sweep is an optimization only; expiry is always checked on the send path.
const sweepInterval = 30 * time.Second

// Scorer runs the performance scoring engine for a completed session.
type Scorer interface {
	ScoreSession(ctx context.Context, sessionID string) (*models.PerformanceMetrics, error)
}

// SessionStore is the session persistence surface the state machine needs.
type SessionStore interface {
	GetDebateSession(ctx context.Context, sessionID string) (*models.DebateSession, error)
	SaveDebateSession(ctx context.Context, session *models.DebateSession) error
	ListExpirableSessions(ctx context.Context) ([]models.DebateSession, error)
}

// MessageLedger is the append surface the state machine serializes.
type MessageLedger interface {
	Append(ctx context.Context, sessionID, sender, content, messageType string, opts *repository.AppendOptions) (*models.DebateMessage, error)
}

// SessionStateService is the single source of truth for "can this session
// accept a message right now". It owns a per-session lock registry: every
// state transition and every ledger append for a session happens under that
// session's lock, so a read-then-write of the turn counter can never
// interleave with a concurrent send for the same session.
type SessionStateService struct {
	repo   SessionStore
	ledger MessageLedger
	scorer Scorer

	locks map[string]*sync.Mutex
	mu    sync.Mutex
}

func NewSessionStateService(repo SessionStore, ledger MessageLedger, scorer Scorer) *SessionStateService {
	service := &SessionStateService{
		repo:   repo,
		ledger: ledger,
		scorer: scorer,
		locks:  make(map[string]*sync.Mutex),
	}

	go service.startExpirySweeper()

	return service
}

// lockFor returns the mutex serializing operations on one session.
func (s *SessionStateService) lockFor(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[sessionID] = lock
	}
	return lock
}

// forget drops the lock entry for a session that reached a terminal state.
func (s *SessionStateService) forget(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, sessionID)
}

// Pure transition helpers. Each either mutates the session in full or returns
// an error leaving it untouched.

func applyPause(session *models.DebateSession, now time.Time) error {
	if session.Status != models.SessionActive {
		return NewInvalidTransitionError("pause", session.Status)
	}
	session.Status = models.SessionPaused
	session.PausedAt = &now
	return nil
}

func applyResume(session *models.DebateSession, now time.Time) error {
	if session.Status != models.SessionPaused {
		return NewInvalidTransitionError("resume", session.Status)
	}
	if session.PausedAt != nil {
		session.PausedSeconds += int(now.Sub(*session.PausedAt).Seconds())
	}
	session.Status = models.SessionActive
	session.PausedAt = nil
	return nil
}

func applyEnd(session *models.DebateSession, reason string, now time.Time) error {
	if session.Terminal() {
		return NewInvalidTransitionError("end", session.Status)
	}
	if session.Status == models.SessionPaused && session.PausedAt != nil {
		session.PausedSeconds += int(now.Sub(*session.PausedAt).Seconds())
		session.PausedAt = nil
	}
	if reason == models.EndReasonAbandoned {
		session.Status = models.SessionAbandoned
	} else {
		session.Status = models.SessionCompleted
	}
	session.EndReason = reason
	session.EndedAt = &now
	return nil
}

// applyExpire completes a session whose active time budget has run out.
func applyExpire(session *models.DebateSession, now time.Time) {
	session.Status = models.SessionCompleted
	session.EndReason = models.EndReasonExpired
	session.EndedAt = &now
	session.PausedAt = nil
}

// guardSend checks whether the session can accept a message at the given
// instant. On time-limit overrun it opportunistically transitions the session
// to completed and reports SessionExpired; the caller persists the mutation.
func guardSend(session *models.DebateSession, now time.Time) error {
	if session.Terminal() {
		return NewInvalidTransitionError("send a message to", session.Status)
	}
	if session.Status == models.SessionPaused {
		return NewInvalidTransitionError("send a message to", session.Status)
	}
	if session.Expired(now) {
		applyExpire(session, now)
		return NewSessionExpiredError()
	}
	return nil
}

// loadOwned fetches a session and enforces ownership. A userID of "" skips the
// ownership check (internal callers).
func (s *SessionStateService) loadOwned(ctx context.Context, sessionID, userID string) (*models.DebateSession, error) {
	session, err := s.repo.GetDebateSession(ctx, sessionID)
	if err != nil {
		return nil, NewInternalError(fmt.Errorf("failed to load session: %w", err))
	}
	if session == nil {
		return nil, NewNotFoundError("session not found")
	}
	if userID != "" && session.UserID != userID {
		return nil, NewForbiddenError("you do not own this session")
	}
	return session, nil
}

// Pause transitions an active session to paused.
func (s *SessionStateService) Pause(ctx context.Context, sessionID, userID string) (*models.DebateSession, error) {
	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.loadOwned(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if err := applyPause(session, time.Now()); err != nil {
		return nil, err
	}
	if err := s.repo.SaveDebateSession(ctx, session); err != nil {
		return nil, NewInternalError(err)
	}

	slog.Info("Session paused", "session_id", sessionID, "user_id", userID)
	return session, nil
}

// Resume transitions a paused session back to active, folding the pause
// interval into the accumulated pause duration.
func (s *SessionStateService) Resume(ctx context.Context, sessionID, userID string) (*models.DebateSession, error) {
	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.loadOwned(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if err := applyResume(session, time.Now()); err != nil {
		return nil, err
	}
	if err := s.repo.SaveDebateSession(ctx, session); err != nil {
		return nil, NewInternalError(err)
	}

	slog.Info("Session resumed", "session_id", sessionID, "user_id", userID, "paused_seconds", session.PausedSeconds)
	return session, nil
}

// End moves a session to its terminal state. Completed sessions are handed to
// the scoring engine; scoring failures are logged and retryable through the
// analysis endpoint, they do not undo the transition.
func (s *SessionStateService) End(ctx context.Context, sessionID, userID, reason string) (*models.DebateSession, error) {
	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.loadOwned(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if err := applyEnd(session, reason, time.Now()); err != nil {
		return nil, err
	}
	if err := s.repo.SaveDebateSession(ctx, session); err != nil {
		return nil, NewInternalError(err)
	}

	slog.Info("Session ended", "session_id", sessionID, "user_id", userID, "status", session.Status, "reason", reason)

	if session.Status == models.SessionCompleted {
		s.triggerScoring(session.ID)
	}
	s.forget(sessionID)
	return session, nil
}

// AppendUserMessage validates the session can accept a message and appends it
// with the next turn number. The whole check-then-append runs under the
// session lock.
func (s *SessionStateService) AppendUserMessage(ctx context.Context, sessionID, userID, content, messageType string) (*models.DebateMessage, error) {
	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.loadOwned(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	if guardErr := guardSend(session, time.Now()); guardErr != nil {
		appErr, ok := guardErr.(*AppError)
		if ok && appErr.Kind == KindSessionExpired {
			// The overrun completes the session as a side effect.
			if err := s.repo.SaveDebateSession(ctx, session); err != nil {
				slog.Error("Failed to persist expired session", "error", err, "session_id", sessionID)
			} else {
				slog.Info("Session expired on send attempt", "session_id", sessionID, "user_id", userID)
				s.triggerScoring(session.ID)
				s.forget(sessionID)
			}
		}
		return nil, guardErr
	}

	message, err := s.ledger.Append(ctx, sessionID, models.SenderUser, content, messageType, nil)
	if err != nil {
		return nil, err
	}
	return message, nil
}

// AppendAIMessage appends an AI-authored message. The expiry guard is not
// applied: a reply already in flight when the clock runs out still lands in
// the ledger as long as the session is not terminal.
func (s *SessionStateService) AppendAIMessage(ctx context.Context, sessionID, content, messageType string, opts *repository.AppendOptions) (*models.DebateMessage, error) {
	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.loadOwned(ctx, sessionID, "")
	if err != nil {
		return nil, err
	}
	if session.Terminal() {
		return nil, NewInvalidTransitionError("append an AI reply to", session.Status)
	}

	return s.ledger.Append(ctx, sessionID, models.SenderAI, content, messageType, opts)
}

func (s *SessionStateService) triggerScoring(sessionID string) {
	if s.scorer == nil {
		return
	}
	go func() {
		ctx := context.Background()
		if _, err := s.scorer.ScoreSession(ctx, sessionID); err != nil {
			slog.Error("Post-session scoring failed", "error", err, "session_id", sessionID)
			return
		}
		slog.Info("Post-session scoring completed", "session_id", sessionID)
	}()
}

func (s *SessionStateService) startExpirySweeper() {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for range ticker.C {
		s.sweepExpired()
	}
}

// sweepExpired completes active sessions whose time budget has run out while
// no one was sending. Each candidate is re-checked under its own lock.
func (s *SessionStateService) sweepExpired() {
	ctx := context.Background()
	sessions, err := s.repo.ListExpirableSessions(ctx)
	if err != nil {
		slog.Error("Expiry sweep failed to list sessions", "error", err)
		return
	}

	now := time.Now()
	for i := range sessions {
		candidate := sessions[i]
		if !candidate.Expired(now) {
			continue
		}

		lock := s.lockFor(candidate.ID)
		lock.Lock()
		session, err := s.repo.GetDebateSession(ctx, candidate.ID)
		if err != nil || session == nil || session.Terminal() || !session.Expired(time.Now()) {
			lock.Unlock()
			continue
		}
		applyExpire(session, time.Now())
		if err := s.repo.SaveDebateSession(ctx, session); err != nil {
			slog.Error("Failed to complete expired session", "error", err, "session_id", session.ID)
			lock.Unlock()
			continue
		}
		lock.Unlock()

		slog.Info("Expired session auto-completed", "session_id", session.ID)
		s.triggerScoring(session.ID)
		s.forget(session.ID)
	}
}
