package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rhetorio/backend/models"
	"github.com/rhetorio/backend/repository"
)

func activeSession(start time.Time) *models.DebateSession {
	return &models.DebateSession{
		Status:           models.SessionActive,
		StartedAt:        start,
		TimeLimitSeconds: 1800,
	}
}

func TestApplyPause(t *testing.T) {
	start := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	now := start.Add(2 * time.Minute)

	s := activeSession(start)
	if err := applyPause(s, now); err != nil {
		t.Fatalf("applyPause() on active session: %v", err)
	}
	if s.Status != models.SessionPaused {
		t.Errorf("Status = %s, expected paused", s.Status)
	}
	if s.PausedAt == nil || !s.PausedAt.Equal(now) {
		t.Errorf("PausedAt = %v, expected %v", s.PausedAt, now)
	}

	// Pausing again is rejected and leaves state intact.
	if err := applyPause(s, now.Add(time.Minute)); err == nil {
		t.Fatal("applyPause() on paused session succeeded, expected error")
	}
	if !s.PausedAt.Equal(now) {
		t.Errorf("failed pause mutated PausedAt")
	}
}

func TestApplyResumeAccumulatesPause(t *testing.T) {
	start := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	s := activeSession(start)

	pausedAt := start.Add(100 * time.Second)
	if err := applyPause(s, pausedAt); err != nil {
		t.Fatalf("applyPause(): %v", err)
	}
	if err := applyResume(s, start.Add(400*time.Second)); err != nil {
		t.Fatalf("applyResume(): %v", err)
	}

	if s.Status != models.SessionActive {
		t.Errorf("Status = %s, expected active", s.Status)
	}
	if s.PausedSeconds != 300 {
		t.Errorf("PausedSeconds = %d, expected 300", s.PausedSeconds)
	}
	if s.PausedAt != nil {
		t.Errorf("PausedAt = %v, expected nil after resume", s.PausedAt)
	}
}

func TestApplyResumeRequiresPaused(t *testing.T) {
	s := activeSession(time.Now())
	if err := applyResume(s, time.Now()); err == nil {
		t.Fatal("applyResume() on active session succeeded, expected error")
	}
}

func TestApplyEnd(t *testing.T) {
	start := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	now := start.Add(5 * time.Minute)

	tests := []struct {
		name           string
		reason         string
		expectedStatus string
	}{
		{"finished completes", models.EndReasonFinished, models.SessionCompleted},
		{"abandoned abandons", models.EndReasonAbandoned, models.SessionAbandoned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := activeSession(start)
			if err := applyEnd(s, tt.reason, now); err != nil {
				t.Fatalf("applyEnd(): %v", err)
			}
			if s.Status != tt.expectedStatus {
				t.Errorf("Status = %s, expected %s", s.Status, tt.expectedStatus)
			}
			if s.EndReason != tt.reason {
				t.Errorf("EndReason = %s, expected %s", s.EndReason, tt.reason)
			}
			if s.EndedAt == nil || !s.EndedAt.Equal(now) {
				t.Errorf("EndedAt = %v, expected %v", s.EndedAt, now)
			}
		})
	}
}

func TestApplyEndFromPausedFoldsRunningPause(t *testing.T) {
	start := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	s := activeSession(start)
	if err := applyPause(s, start.Add(60*time.Second)); err != nil {
		t.Fatalf("applyPause(): %v", err)
	}

	if err := applyEnd(s, models.EndReasonFinished, start.Add(180*time.Second)); err != nil {
		t.Fatalf("applyEnd(): %v", err)
	}
	if s.PausedSeconds != 120 {
		t.Errorf("PausedSeconds = %d, expected 120", s.PausedSeconds)
	}
}

func TestApplyEndTerminalRejected(t *testing.T) {
	for _, status := range []string{models.SessionCompleted, models.SessionAbandoned} {
		s := &models.DebateSession{Status: status}
		err := applyEnd(s, models.EndReasonFinished, time.Now())
		if err == nil {
			t.Fatalf("applyEnd() on %s session succeeded, expected error", status)
		}
		appErr, ok := err.(*AppError)
		if !ok || appErr.Kind != KindInvalidTransition {
			t.Errorf("error kind = %v, expected invalid_transition", err)
		}
	}
}

func TestGuardSend(t *testing.T) {
	start := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	t.Run("active within limit", func(t *testing.T) {
		s := activeSession(start)
		if err := guardSend(s, start.Add(time.Minute)); err != nil {
			t.Errorf("guardSend() = %v, expected nil", err)
		}
	})

	t.Run("paused rejected", func(t *testing.T) {
		s := activeSession(start)
		s.Status = models.SessionPaused
		err := guardSend(s, start.Add(time.Minute))
		appErr, ok := err.(*AppError)
		if !ok || appErr.Kind != KindInvalidTransition {
			t.Errorf("guardSend() = %v, expected invalid_transition", err)
		}
	})

	t.Run("terminal rejected", func(t *testing.T) {
		s := activeSession(start)
		s.Status = models.SessionCompleted
		err := guardSend(s, start.Add(time.Minute))
		appErr, ok := err.(*AppError)
		if !ok || appErr.Kind != KindInvalidTransition {
			t.Errorf("guardSend() = %v, expected invalid_transition", err)
		}
	})

	t.Run("expiry completes the session", func(t *testing.T) {
		s := activeSession(start)
		now := start.Add(1801 * time.Second)
		err := guardSend(s, now)
		appErr, ok := err.(*AppError)
		if !ok || appErr.Kind != KindSessionExpired {
			t.Fatalf("guardSend() = %v, expected session_expired", err)
		}
		if s.Status != models.SessionCompleted {
			t.Errorf("Status = %s, expected completed after expiry", s.Status)
		}
		if s.EndReason != models.EndReasonExpired {
			t.Errorf("EndReason = %s, expected %s", s.EndReason, models.EndReasonExpired)
		}
		if s.EndedAt == nil {
			t.Error("EndedAt not set on expiry")
		}
	})

	t.Run("pause time extends the send window", func(t *testing.T) {
		s := activeSession(start)
		s.PausedSeconds = 300
		if err := guardSend(s, start.Add(1900*time.Second)); err != nil {
			t.Errorf("guardSend() = %v at 1600s active, expected nil", err)
		}
	})
}

// fakeSessionStore keeps sessions in memory, handing out copies so tests can
// distinguish persisted state from in-flight mutations.
type fakeSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*models.DebateSession
}

func (f *fakeSessionStore) GetDebateSession(ctx context.Context, sessionID string) (*models.DebateSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	session, ok := f.sessions[sessionID]
	if !ok {
		return nil, nil
	}
	clone := *session
	return &clone, nil
}

func (f *fakeSessionStore) SaveDebateSession(ctx context.Context, session *models.DebateSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *session
	f.sessions[session.ID] = &clone
	return nil
}

func (f *fakeSessionStore) ListExpirableSessions(ctx context.Context) ([]models.DebateSession, error) {
	return nil, nil
}

// fakeLedger mimics the ledger's read-then-write turn assignment with a
// deliberately widened window, so unserialized callers would collide.
type fakeLedger struct {
	mu       sync.Mutex
	turns    map[string]int
	appended []*models.DebateMessage

	inFlight   int32
	overlapped int32
}

func (f *fakeLedger) Append(ctx context.Context, sessionID, sender, content, messageType string, opts *repository.AppendOptions) (*models.DebateMessage, error) {
	if atomic.AddInt32(&f.inFlight, 1) != 1 {
		atomic.StoreInt32(&f.overlapped, 1)
	}
	defer atomic.AddInt32(&f.inFlight, -1)

	f.mu.Lock()
	turn := f.turns[sessionID]
	f.mu.Unlock()

	time.Sleep(time.Millisecond)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns[sessionID] = turn + 1
	message := &models.DebateMessage{
		SessionID:   sessionID,
		Sender:      sender,
		Content:     content,
		MessageType: messageType,
		TurnNumber:  turn + 1,
	}
	f.appended = append(f.appended, message)
	return message, nil
}

func TestConcurrentSendsGetSequentialTurns(t *testing.T) {
	store := &fakeSessionStore{sessions: map[string]*models.DebateSession{
		"session-a": {
			ID:               "session-a",
			UserID:           "user-1",
			Status:           models.SessionActive,
			StartedAt:        time.Now(),
			TimeLimitSeconds: models.DefaultTimeLimitSeconds,
		},
	}}
	ledger := &fakeLedger{turns: make(map[string]int)}
	state := NewSessionStateService(store, ledger, nil)

	const senders = 8
	var wg sync.WaitGroup
	for i := 0; i < senders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := state.AppendUserMessage(context.Background(), "session-a", "user-1", "my point", models.MessageArgument); err != nil {
				t.Errorf("AppendUserMessage() = %v", err)
			}
		}()
	}
	wg.Wait()

	if atomic.LoadInt32(&ledger.overlapped) != 0 {
		t.Fatal("concurrent appends interleaved; sends for one session must be serialized")
	}
	seen := make(map[int]bool, senders)
	for _, message := range ledger.appended {
		if seen[message.TurnNumber] {
			t.Fatalf("turn %d assigned twice", message.TurnNumber)
		}
		seen[message.TurnNumber] = true
	}
	for turn := 1; turn <= senders; turn++ {
		if !seen[turn] {
			t.Errorf("turn %d missing; expected gap-free 1..%d", turn, senders)
		}
	}
}

func TestSendToExpiredSessionCompletesIt(t *testing.T) {
	overrun := time.Duration(models.DefaultTimeLimitSeconds+60) * time.Second
	store := &fakeSessionStore{sessions: map[string]*models.DebateSession{
		"session-a": {
			ID:               "session-a",
			UserID:           "user-1",
			Status:           models.SessionActive,
			StartedAt:        time.Now().Add(-overrun),
			TimeLimitSeconds: models.DefaultTimeLimitSeconds,
		},
	}}
	ledger := &fakeLedger{turns: make(map[string]int)}
	state := NewSessionStateService(store, ledger, nil)

	_, err := state.AppendUserMessage(context.Background(), "session-a", "user-1", "too late", models.MessageArgument)
	appErr, ok := err.(*AppError)
	if !ok || appErr.Kind != KindSessionExpired {
		t.Fatalf("AppendUserMessage() = %v, expected %s", err, KindSessionExpired)
	}

	if len(ledger.appended) != 0 {
		t.Errorf("ledger has %d messages, expected none after the deadline", len(ledger.appended))
	}
	persisted := store.sessions["session-a"]
	if persisted.Status != models.SessionCompleted {
		t.Errorf("persisted status = %s, expected completed", persisted.Status)
	}
	if persisted.EndReason != models.EndReasonExpired {
		t.Errorf("persisted end reason = %s, expected %s", persisted.EndReason, models.EndReasonExpired)
	}
}
