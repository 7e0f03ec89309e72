package models

import (
	"time"

	"gorm.io/gorm"
)

// Session lifecycle states. Completed and abandoned are terminal.
const (
	SessionActive    = "active"
	SessionPaused    = "paused"
	SessionCompleted = "completed"
	SessionAbandoned = "abandoned"
)

// Debate sides. The AI always argues the side opposite the user's.
const (
	SidePro = "pro"
	SideCon = "con"
)

// End reasons recorded when a session leaves the active/paused states.
const (
	EndReasonFinished  = "finished"
	EndReasonAbandoned = "abandoned"
	EndReasonExpired   = "time_expired"
)

// DefaultTimeLimitSeconds is used when a session is created without an
// explicit time limit.
const DefaultTimeLimitSeconds = 1800

// DebateSession records one practice debate attempt, linking a user and a topic
type DebateSession struct {
	ID               string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	UserID           string         `gorm:"type:uuid;not null;index" json:"user_id"`
	TopicID          string         `gorm:"type:uuid;not null;index" json:"topic_id"`
	Side             string         `gorm:"not null;check:side IN ('pro', 'con')" json:"side"`
	Difficulty       string         `gorm:"size:50;default:'medium'" json:"difficulty"`
	Status           string         `gorm:"not null;default:'active';check:status IN ('active', 'paused', 'completed', 'abandoned')" json:"status"`
	StartedAt        time.Time      `gorm:"not null" json:"started_at"`
	EndedAt          *time.Time     `json:"ended_at,omitempty"`
	PausedAt         *time.Time     `json:"paused_at,omitempty"`
	PausedSeconds    int            `gorm:"default:0" json:"paused_seconds"` // Accumulated pause duration
	UserMessageCount int            `gorm:"default:0" json:"user_message_count"`
	AIMessageCount   int            `gorm:"default:0" json:"ai_message_count"`
	TotalTurns       int            `gorm:"default:0" json:"total_turns"`
	TimeLimitSeconds int            `gorm:"not null;default:1800" json:"time_limit_seconds"`
	EndReason        string         `gorm:"size:50" json:"end_reason,omitempty"`
	FinalScore       *float64       `gorm:"type:decimal(5,2)" json:"final_score,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	User     User                `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Topic    Topic               `gorm:"foreignKey:TopicID" json:"topic,omitempty"`
	Messages []DebateMessage     `gorm:"foreignKey:SessionID" json:"messages,omitempty"`
	Metrics  *PerformanceMetrics `gorm:"foreignKey:SessionID" json:"metrics,omitempty"`
}

func (DebateSession) TableName() string {
	return "debate_sessions"
}

// Terminal reports whether the session is in a state no transition may leave.
func (s *DebateSession) Terminal() bool {
	return s.Status == SessionCompleted || s.Status == SessionAbandoned
}

// ElapsedActive returns wall-clock time since start minus accumulated pause
// duration. For a currently paused session the running pause is excluded too.
// Computed on read from the stored base fields, never stored.
func (s *DebateSession) ElapsedActive(now time.Time) time.Duration {
	elapsed := now.Sub(s.StartedAt) - time.Duration(s.PausedSeconds)*time.Second
	if s.Status == SessionPaused && s.PausedAt != nil {
		elapsed -= now.Sub(*s.PausedAt)
	}
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

// Expired reports whether elapsed active time has reached the time limit.
func (s *DebateSession) Expired(now time.Time) bool {
	return s.ElapsedActive(now) >= time.Duration(s.TimeLimitSeconds)*time.Second
}

// RemainingSeconds is the active time budget left, floored at zero.
func (s *DebateSession) RemainingSeconds(now time.Time) int {
	remaining := s.TimeLimitSeconds - int(s.ElapsedActive(now).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}
