package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rhetorio/backend/models"
	"github.com/rhetorio/backend/repository"
)

const (
	EngineVersion = "rubric-v1"

	// fallbackScore is the midpoint used for every dimension when the model
	// output cannot be parsed.
	fallbackScore = 50.0
)

// textGenerator is the single-shot generation seam the engine scores through.
// DebaterService satisfies it.
type textGenerator interface {
	GenerateText(ctx context.Context, prompt string) (string, error)
}

// ScoringEngine evaluates a finished debate against a six-dimension rubric
// and persists the result as the session's performance metrics.
type ScoringEngine struct {
	repo      *repository.GORMRepository
	ledger    *repository.LedgerRepository
	generator textGenerator
}

func NewScoringEngine(repo *repository.GORMRepository, ledger *repository.LedgerRepository, generator textGenerator) *ScoringEngine {
	return &ScoringEngine{
		repo:      repo,
		ledger:    ledger,
		generator: generator,
	}
}

// rubricAnalysis matches the JSON shape the rubric prompt requests.
type rubricAnalysis struct {
	ArgumentStrength   float64  `json:"argument_strength"`
	RebuttalQuality    float64  `json:"rebuttal_quality"`
	Clarity            float64  `json:"clarity"`
	EvidenceUse        float64  `json:"evidence_use"`
	LogicalConsistency float64  `json:"logical_consistency"`
	EmotionalAppeal    float64  `json:"emotional_appeal"`
	Strengths          []string `json:"strengths"`
	Weaknesses         []string `json:"weaknesses"`
	Suggestions        []string `json:"suggestions"`
	Summary            string   `json:"summary"`
}

// ScoreSession analyzes a session's ledger and upserts its metrics. Re-running
// it replaces the previous analysis. The session's final score is updated in
// the same pass.
func (e *ScoringEngine) ScoreSession(ctx context.Context, sessionID string) (*models.PerformanceMetrics, error) {
	session, err := e.repo.GetDebateSession(ctx, sessionID)
	if err != nil {
		return nil, NewInternalError(fmt.Errorf("failed to load session for scoring: %w", err))
	}
	if session == nil {
		return nil, NewNotFoundError("session not found")
	}

	messages, err := e.ledger.SessionMessages(ctx, sessionID)
	if err != nil {
		return nil, NewInternalError(err)
	}

	topic, err := e.repo.GetTopicByID(ctx, session.TopicID)
	if err != nil {
		return nil, NewInternalError(err)
	}
	topicTitle := "the debate topic"
	if topic != nil {
		topicTitle = topic.Title
	}

	start := time.Now()
	metrics := e.analyze(ctx, session, topicTitle, messages)
	metrics.LatencyMS = time.Since(start).Milliseconds()

	if err := e.repo.UpsertPerformanceMetrics(ctx, metrics); err != nil {
		return nil, NewInternalError(err)
	}

	session.FinalScore = &metrics.OverallScore
	if err := e.repo.SaveDebateSession(ctx, session); err != nil {
		slog.Error("Failed to store final score on session", "error", err, "session_id", sessionID)
	}

	slog.Info("Session scored",
		"session_id", sessionID,
		"overall_score", metrics.OverallScore,
		"engine_version", metrics.EngineVersion)

	return metrics, nil
}

// analyze builds the metrics row for a session. A session with no user
// arguments scores zero across the board without touching the model.
func (e *ScoringEngine) analyze(ctx context.Context, session *models.DebateSession, topicTitle string, messages []models.DebateMessage) *models.PerformanceMetrics {
	metrics := &models.PerformanceMetrics{
		SessionID:     session.ID,
		UserID:        session.UserID,
		EngineVersion: EngineVersion,
	}

	userMessages := make([]models.DebateMessage, 0, len(messages))
	for i := range messages {
		if messages[i].Sender == models.SenderUser {
			userMessages = append(userMessages, messages[i])
		}
	}

	if len(userMessages) == 0 {
		metrics.Summary = "No arguments provided"
		metrics.RecomputeOverall()
		return metrics
	}

	prompt := e.buildRubricPrompt(session, topicTitle, messages)
	raw, err := e.generator.GenerateText(ctx, prompt)
	if err != nil {
		slog.Warn("Rubric generation failed, scoring at midpoint", "error", err, "session_id", session.ID)
		return e.midpointMetrics(metrics, "Automated analysis was unavailable for this session; scores reflect a neutral baseline.")
	}

	var analysis rubricAnalysis
	if err := json.Unmarshal([]byte(stripCodeFences(raw)), &analysis); err != nil {
		slog.Warn("Failed to parse rubric output, scoring at midpoint", "error", err, "session_id", session.ID)
		return e.midpointMetrics(metrics, "Automated analysis could not be fully processed; scores reflect a neutral baseline.")
	}

	metrics.ArgumentStrength = analysis.ArgumentStrength
	metrics.RebuttalQuality = analysis.RebuttalQuality
	metrics.Clarity = analysis.Clarity
	metrics.EvidenceUse = analysis.EvidenceUse
	metrics.LogicalConsistency = analysis.LogicalConsistency
	metrics.EmotionalAppeal = analysis.EmotionalAppeal
	metrics.Strengths = strings.Join(analysis.Strengths, "\n")
	metrics.Weaknesses = strings.Join(analysis.Weaknesses, "\n")
	metrics.Suggestions = strings.Join(analysis.Suggestions, "\n")
	metrics.Summary = analysis.Summary

	metrics.ClampScores()
	metrics.RecomputeOverall()
	return metrics
}

func (e *ScoringEngine) midpointMetrics(metrics *models.PerformanceMetrics, summary string) *models.PerformanceMetrics {
	metrics.ArgumentStrength = fallbackScore
	metrics.RebuttalQuality = fallbackScore
	metrics.Clarity = fallbackScore
	metrics.EvidenceUse = fallbackScore
	metrics.LogicalConsistency = fallbackScore
	metrics.EmotionalAppeal = fallbackScore
	metrics.Summary = summary
	metrics.RecomputeOverall()
	return metrics
}

func (e *ScoringEngine) buildRubricPrompt(session *models.DebateSession, topicTitle string, messages []models.DebateMessage) string {
	var transcript strings.Builder
	for i := range messages {
		speaker := "Debater"
		if messages[i].Sender == models.SenderAI {
			speaker = "Opponent"
		}
		transcript.WriteString(fmt.Sprintf("%s: %s\n", speaker, messages[i].Content))
	}

	return fmt.Sprintf(`You are an expert debate judge. Evaluate the Debater's performance in the following debate on "%s". The Debater argued the %s side at %s difficulty.

Transcript:
%s

Score the Debater from 0 to 100 on each dimension and respond with ONLY a JSON object in exactly this format:
{
  "argument_strength": <0-100>,
  "rebuttal_quality": <0-100>,
  "clarity": <0-100>,
  "evidence_use": <0-100>,
  "logical_consistency": <0-100>,
  "emotional_appeal": <0-100>,
  "strengths": ["...", "..."],
  "weaknesses": ["...", "..."],
  "suggestions": ["...", "..."],
  "summary": "2-3 sentence overall assessment"
}`, topicTitle, session.Side, session.Difficulty, transcript.String())
}

// stripCodeFences unwraps a ```json ... ``` block if the model added one.
func stripCodeFences(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}
