package models

import (
	"testing"
	"time"
)

func TestTerminal(t *testing.T) {
	tests := []struct {
		status   string
		expected bool
	}{
		{SessionActive, false},
		{SessionPaused, false},
		{SessionCompleted, true},
		{SessionAbandoned, true},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			s := &DebateSession{Status: tt.status}
			if got := s.Terminal(); got != tt.expected {
				t.Errorf("Terminal() = %v, expected %v for status %s", got, tt.expected, tt.status)
			}
		})
	}
}

func TestElapsedActive(t *testing.T) {
	start := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		session  DebateSession
		now      time.Time
		expected time.Duration
	}{
		{
			name:     "no pauses",
			session:  DebateSession{Status: SessionActive, StartedAt: start},
			now:      start.Add(10 * time.Minute),
			expected: 10 * time.Minute,
		},
		{
			name:     "accumulated pause excluded",
			session:  DebateSession{Status: SessionActive, StartedAt: start, PausedSeconds: 300},
			now:      start.Add(10 * time.Minute),
			expected: 5 * time.Minute,
		},
		{
			name: "running pause excluded",
			session: DebateSession{
				Status:    SessionPaused,
				StartedAt: start,
				PausedAt:  timePtr(start.Add(4 * time.Minute)),
			},
			now:      start.Add(10 * time.Minute),
			expected: 4 * time.Minute,
		},
		{
			name: "running pause plus accumulated",
			session: DebateSession{
				Status:        SessionPaused,
				StartedAt:     start,
				PausedSeconds: 60,
				PausedAt:      timePtr(start.Add(8 * time.Minute)),
			},
			now:      start.Add(10 * time.Minute),
			expected: 7 * time.Minute,
		},
		{
			name:     "floored at zero",
			session:  DebateSession{Status: SessionActive, StartedAt: start, PausedSeconds: 900},
			now:      start.Add(1 * time.Minute),
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.session.ElapsedActive(tt.now); got != tt.expected {
				t.Errorf("ElapsedActive() = %v, expected %v", got, tt.expected)
			}
		})
	}
}

// A 30-minute session paused from t=100s to t=400s should still accept
// activity at t=1900s of wall-clock time: only 1600s of it were active.
func TestExpiredWithPauseAccounting(t *testing.T) {
	start := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	s := DebateSession{
		Status:           SessionActive,
		StartedAt:        start,
		PausedSeconds:    300,
		TimeLimitSeconds: 1800,
	}

	at1900 := start.Add(1900 * time.Second)
	if s.Expired(at1900) {
		t.Errorf("Expired() = true at 1600s active, expected false")
	}
	if got := s.RemainingSeconds(at1900); got != 200 {
		t.Errorf("RemainingSeconds() = %d, expected 200", got)
	}

	at2200 := start.Add(2200 * time.Second)
	if !s.Expired(at2200) {
		t.Errorf("Expired() = false at 1900s active, expected true")
	}
	if got := s.RemainingSeconds(at2200); got != 0 {
		t.Errorf("RemainingSeconds() = %d, expected 0", got)
	}
}

func TestExpiredAtExactLimit(t *testing.T) {
	start := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	s := DebateSession{Status: SessionActive, StartedAt: start, TimeLimitSeconds: 1800}

	if !s.Expired(start.Add(1800 * time.Second)) {
		t.Errorf("Expired() = false at the exact limit, expected true")
	}
	if s.Expired(start.Add(1799 * time.Second)) {
		t.Errorf("Expired() = true one second before the limit, expected false")
	}
}

func timePtr(t time.Time) *time.Time {
	return &t
}
