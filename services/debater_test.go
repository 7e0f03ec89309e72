package services

import (
	"context"
	"testing"

	"github.com/rhetorio/backend/models"
)

func TestRespondWithoutClient(t *testing.T) {
	tests := []struct {
		name    string
		debater *DebaterService
	}{
		{"nil service", nil},
		{"uninitialized client", &DebaterService{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.debater.Respond(context.Background(), &models.DebateSession{}, &models.Topic{}, nil, "my opening argument")
			appErr, ok := err.(*AppError)
			if !ok || appErr.Kind != KindGenerationUnavailable {
				t.Fatalf("Respond() = %v, expected %s", err, KindGenerationUnavailable)
			}

			if _, err := tt.debater.GenerateText(context.Background(), "prompt"); err == nil {
				t.Error("GenerateText() without a client succeeded, expected error")
			}
		})
	}
}

func TestClassifyRhetoric(t *testing.T) {
	tests := []struct {
		name         string
		content      string
		priorAITurns int
		expected     string
	}{
		{
			name:         "first AI turn is the opening",
			content:      "However, I must begin by stating my position clearly.",
			priorAITurns: 0,
			expected:     models.MessageOpening,
		},
		{
			name:         "disagreement marker classifies as rebuttal",
			content:      "I disagree with that framing entirely.",
			priorAITurns: 2,
			expected:     models.MessageRebuttal,
		},
		{
			name:         "however classifies as rebuttal",
			content:      "However, the premise does not hold under scrutiny.",
			priorAITurns: 1,
			expected:     models.MessageRebuttal,
		},
		{
			name:         "citation marker classifies as evidence",
			content:      "Studies show a 40% decline over the same period.",
			priorAITurns: 3,
			expected:     models.MessageEvidence,
		},
		{
			name:         "according to classifies as evidence",
			content:      "According to the 2024 census, the trend reversed.",
			priorAITurns: 1,
			expected:     models.MessageEvidence,
		},
		{
			name:         "closing marker wins over others",
			content:      "In conclusion, the research I cited confirms my side. However you slice it, the case stands.",
			priorAITurns: 5,
			expected:     models.MessageClosing,
		},
		{
			name:         "no markers fall back to argument",
			content:      "The economics of scale favor this approach.",
			priorAITurns: 2,
			expected:     models.MessageArgument,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyRhetoric(tt.content, tt.priorAITurns); got != tt.expected {
				t.Errorf("classifyRhetoric() = %s, expected %s", got, tt.expected)
			}
		})
	}
}

func TestEstimateConfidence(t *testing.T) {
	t.Run("short plain text near baseline", func(t *testing.T) {
		got := estimateConfidence("No.")
		if got != 0.5 {
			t.Errorf("estimateConfidence() = %v, expected 0.5", got)
		}
	})

	t.Run("connectives raise confidence", func(t *testing.T) {
		plain := estimateConfidence("The policy will reduce costs across the board for everyone involved in the program today.")
		connected := estimateConfidence("The policy will reduce costs because scale lowers unit price, and therefore savings follow for everyone.")
		if connected <= plain {
			t.Errorf("connective-rich text scored %v, plain scored %v; expected higher", connected, plain)
		}
	})

	t.Run("capped below certainty", func(t *testing.T) {
		long := ""
		for i := 0; i < 200; i++ {
			long += "therefore because furthermore moreover consequently thus "
		}
		if got := estimateConfidence(long); got > MaxConfidence {
			t.Errorf("estimateConfidence() = %v, expected at most %v", got, MaxConfidence)
		}
	})
}
