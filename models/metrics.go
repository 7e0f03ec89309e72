package models

import (
	"time"

	"gorm.io/gorm"
)

// Fixed weights combining the six sub-scores into the overall score. They sum
// to 1.0; the overall score is recomputed whenever any sub-score changes.
const (
	WeightArgumentStrength   = 0.25
	WeightRebuttalQuality    = 0.20
	WeightClarity            = 0.15
	WeightEvidenceUse        = 0.15
	WeightLogicalConsistency = 0.15
	WeightEmotionalAppeal    = 0.10
)

// PerformanceMetrics is the post-session score for a (session, user) pair.
// All sub-scores are bounded to [0, 100].
type PerformanceMetrics struct {
	ID        string `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	SessionID string `gorm:"type:uuid;not null;uniqueIndex:idx_session_user_metrics" json:"session_id"`
	UserID    string `gorm:"type:uuid;not null;uniqueIndex:idx_session_user_metrics" json:"user_id"`

	ArgumentStrength   float64 `gorm:"type:decimal(5,2);not null" json:"argument_strength"`
	RebuttalQuality    float64 `gorm:"type:decimal(5,2);not null" json:"rebuttal_quality"`
	Clarity            float64 `gorm:"type:decimal(5,2);not null" json:"clarity"`
	EvidenceUse        float64 `gorm:"type:decimal(5,2);not null" json:"evidence_use"`
	LogicalConsistency float64 `gorm:"type:decimal(5,2);not null" json:"logical_consistency"`
	EmotionalAppeal    float64 `gorm:"type:decimal(5,2);not null" json:"emotional_appeal"`
	OverallScore       float64 `gorm:"type:decimal(5,2);not null" json:"overall_score"`

	Strengths   string `gorm:"type:text" json:"strengths,omitempty"`
	Weaknesses  string `gorm:"type:text" json:"weaknesses,omitempty"`
	Suggestions string `gorm:"type:text" json:"suggestions,omitempty"`
	Summary     string `gorm:"type:text" json:"summary,omitempty"`

	EngineVersion string         `gorm:"size:50" json:"engine_version,omitempty"`
	LatencyMS     int64          `json:"latency_ms,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`

	// Relationships
	Session *DebateSession `gorm:"foreignKey:SessionID;references:ID" json:"session,omitempty"`
}

func (PerformanceMetrics) TableName() string {
	return "performance_metrics"
}

// ClampScores bounds every sub-score to [0, 100].
func (m *PerformanceMetrics) ClampScores() {
	for _, score := range []*float64{
		&m.ArgumentStrength, &m.RebuttalQuality, &m.Clarity,
		&m.EvidenceUse, &m.LogicalConsistency, &m.EmotionalAppeal,
	} {
		if *score < 0 {
			*score = 0
		}
		if *score > 100 {
			*score = 100
		}
	}
}

// RecomputeOverall derives the overall score from the six sub-scores using the
// fixed weights. Invoked explicitly by the write path immediately before
// persistence.
func (m *PerformanceMetrics) RecomputeOverall() {
	m.ClampScores()
	m.OverallScore = m.ArgumentStrength*WeightArgumentStrength +
		m.RebuttalQuality*WeightRebuttalQuality +
		m.Clarity*WeightClarity +
		m.EvidenceUse*WeightEvidenceUse +
		m.LogicalConsistency*WeightLogicalConsistency +
		m.EmotionalAppeal*WeightEmotionalAppeal
}
