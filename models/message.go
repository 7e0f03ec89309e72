package models

import (
	"time"

	"gorm.io/gorm"
)

// Message sender kinds.
const (
	SenderUser = "user"
	SenderAI   = "ai"
)

// Message type tags.
const (
	MessageOpening  = "opening"
	MessageArgument = "argument"
	MessageRebuttal = "rebuttal"
	MessageEvidence = "evidence"
	MessageClosing  = "closing"
	MessageGeneral  = "general"
)

// DebateMessage is one turn in a session's exchange. Turn numbers form a
// strictly increasing sequence per session starting at 1; content is immutable
// after creation except for reactions and the flag toggle.
type DebateMessage struct {
	ID          string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	SessionID   string         `gorm:"type:uuid;not null;index;uniqueIndex:idx_session_turn" json:"session_id"`
	Sender      string         `gorm:"not null;check:sender IN ('user', 'ai')" json:"sender"`
	Content     string         `gorm:"type:text;not null" json:"content"`
	TurnNumber  int            `gorm:"not null;uniqueIndex:idx_session_turn" json:"turn_number"`
	MessageType string         `gorm:"size:50;not null;default:'general';check:message_type IN ('opening', 'argument', 'rebuttal', 'evidence', 'closing', 'general')" json:"message_type"`
	ParentID    *string        `gorm:"type:uuid" json:"parent_id,omitempty"` // Optional reply link
	Flagged     bool           `gorm:"default:false" json:"flagged"`
	CreatedAt   time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	// AI metadata, set only for ai-authored messages
	ModelID    *string  `gorm:"size:100" json:"model_id,omitempty"`
	Confidence *float64 `gorm:"type:decimal(4,3)" json:"confidence,omitempty"`
	LatencyMS  *int64   `json:"latency_ms,omitempty"`

	// Optional per-message analysis score
	ArgumentScore *float64 `gorm:"type:decimal(5,2)" json:"argument_score,omitempty"`

	// Relationships
	Session   *DebateSession    `gorm:"foreignKey:SessionID;references:ID" json:"session,omitempty"`
	Reactions []MessageReaction `gorm:"foreignKey:MessageID" json:"reactions,omitempty"`
}

func (DebateMessage) TableName() string {
	return "debate_messages"
}

// Reaction tags a user may attach to a message.
const (
	ReactionLike       = "like"
	ReactionInsightful = "insightful"
	ReactionStrong     = "strong_point"
	ReactionWeak       = "weak_point"
)

// MessageReaction holds at most one reaction per (message, user). There are no
// replace semantics; the caller must remove first to change a reaction.
type MessageReaction struct {
	ID        string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	MessageID string         `gorm:"type:uuid;not null;uniqueIndex:idx_message_user" json:"message_id"`
	UserID    string         `gorm:"type:uuid;not null;uniqueIndex:idx_message_user" json:"user_id"`
	Reaction  string         `gorm:"size:50;not null;check:reaction IN ('like', 'insightful', 'strong_point', 'weak_point')" json:"reaction"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Message *DebateMessage `gorm:"foreignKey:MessageID;references:ID" json:"message,omitempty"`
}

func (MessageReaction) TableName() string {
	return "message_reactions"
}
