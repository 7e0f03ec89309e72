package models

import (
	"time"

	"gorm.io/gorm"
)

// Topic is a debate prompt users can practice against. Topics are seeded and
// read-only to clients; sessions hold a non-owning reference to them.
type Topic struct {
	ID          string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	Title       string         `gorm:"not null" json:"title"`
	Description string         `gorm:"type:text" json:"description"`
	Category    string         `gorm:"size:100" json:"category,omitempty"`
	Difficulty  string         `gorm:"size:50;default:'medium';check:difficulty IN ('easy', 'medium', 'hard')" json:"difficulty"`
	ProPoints   string         `gorm:"type:text" json:"pro_points,omitempty"` // Starter points for the pro side
	ConPoints   string         `gorm:"type:text" json:"con_points,omitempty"` // Starter points for the con side
	IsActive    bool           `gorm:"default:true" json:"is_active"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	DebateSessions []DebateSession `gorm:"foreignKey:TopicID" json:"debate_sessions,omitempty"`
}

func (Topic) TableName() string {
	return "topics"
}
