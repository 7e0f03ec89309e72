package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rhetorio/backend/models"
)

type stubGenerator struct {
	response string
	err      error
	calls    int
}

func (s *stubGenerator) GenerateText(ctx context.Context, prompt string) (string, error) {
	s.calls++
	return s.response, s.err
}

func scoringSession() *models.DebateSession {
	return &models.DebateSession{
		ID:         "session-1",
		UserID:     "user-1",
		Side:       models.SidePro,
		Difficulty: "medium",
	}
}

func TestAnalyzeNoUserMessages(t *testing.T) {
	generator := &stubGenerator{}
	engine := &ScoringEngine{generator: generator}

	messages := []models.DebateMessage{
		{Sender: models.SenderAI, Content: "Opening statement."},
	}

	metrics := engine.analyze(context.Background(), scoringSession(), "Topic", messages)

	if generator.calls != 0 {
		t.Errorf("generator called %d times for empty debate, expected 0", generator.calls)
	}
	if metrics.OverallScore != 0 {
		t.Errorf("OverallScore = %v, expected 0", metrics.OverallScore)
	}
	if metrics.ArgumentStrength != 0 || metrics.EmotionalAppeal != 0 {
		t.Errorf("sub-scores not zero: %+v", metrics)
	}
	if metrics.Summary != "No arguments provided" {
		t.Errorf("Summary = %q, expected 'No arguments provided'", metrics.Summary)
	}
}

func TestAnalyzeParsesRubricOutput(t *testing.T) {
	generator := &stubGenerator{response: "```json\n" + `{
		"argument_strength": 80,
		"rebuttal_quality": 60,
		"clarity": 90,
		"evidence_use": 40,
		"logical_consistency": 70,
		"emotional_appeal": 50,
		"strengths": ["clear structure"],
		"weaknesses": ["weak sourcing"],
		"suggestions": ["cite data"],
		"summary": "Solid showing."
	}` + "\n```"}
	engine := &ScoringEngine{generator: generator}

	messages := []models.DebateMessage{
		{Sender: models.SenderUser, Content: "My argument."},
		{Sender: models.SenderAI, Content: "My counter."},
	}

	metrics := engine.analyze(context.Background(), scoringSession(), "Topic", messages)

	if metrics.OverallScore != 67 {
		t.Errorf("OverallScore = %v, expected 67", metrics.OverallScore)
	}
	if metrics.Strengths != "clear structure" {
		t.Errorf("Strengths = %q", metrics.Strengths)
	}
	if metrics.Summary != "Solid showing." {
		t.Errorf("Summary = %q", metrics.Summary)
	}
}

func TestAnalyzeFallsBackToMidpoint(t *testing.T) {
	tests := []struct {
		name      string
		generator *stubGenerator
	}{
		{"generation error", &stubGenerator{err: errors.New("quota exceeded")}},
		{"unparseable output", &stubGenerator{response: "I would rate this debate quite highly overall."}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &ScoringEngine{generator: tt.generator}
			messages := []models.DebateMessage{
				{Sender: models.SenderUser, Content: "My argument."},
			}

			metrics := engine.analyze(context.Background(), scoringSession(), "Topic", messages)

			if metrics.OverallScore != fallbackScore {
				t.Errorf("OverallScore = %v, expected %v", metrics.OverallScore, fallbackScore)
			}
			if metrics.ArgumentStrength != fallbackScore || metrics.EmotionalAppeal != fallbackScore {
				t.Errorf("sub-scores not at midpoint: %+v", metrics)
			}
			if !strings.Contains(metrics.Summary, "neutral baseline") {
				t.Errorf("Summary = %q, expected degraded-analysis note", metrics.Summary)
			}
		})
	}
}

func TestAnalyzeClampsModelScores(t *testing.T) {
	generator := &stubGenerator{response: `{
		"argument_strength": 150,
		"rebuttal_quality": -10,
		"clarity": 50,
		"evidence_use": 50,
		"logical_consistency": 50,
		"emotional_appeal": 50,
		"summary": "out of range"
	}`}
	engine := &ScoringEngine{generator: generator}

	messages := []models.DebateMessage{{Sender: models.SenderUser, Content: "Point."}}
	metrics := engine.analyze(context.Background(), scoringSession(), "Topic", messages)

	if metrics.ArgumentStrength != 100 {
		t.Errorf("ArgumentStrength = %v, expected clamped 100", metrics.ArgumentStrength)
	}
	if metrics.RebuttalQuality != 0 {
		t.Errorf("RebuttalQuality = %v, expected clamped 0", metrics.RebuttalQuality)
	}
}

func TestStripCodeFences(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"bare json", `{"a": 1}`, `{"a": 1}`},
		{"json fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"plain fence", "```\n{\"a\": 1}\n```", `{"a": 1}`},
		{"surrounding whitespace", "  \n{\"a\": 1}\n  ", `{"a": 1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := stripCodeFences(tt.input); got != tt.expected {
				t.Errorf("stripCodeFences() = %q, expected %q", got, tt.expected)
			}
		})
	}
}
