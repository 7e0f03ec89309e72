package models

import (
	"math"
	"testing"
)

func TestRecomputeOverall(t *testing.T) {
	tests := []struct {
		name     string
		metrics  PerformanceMetrics
		expected float64
	}{
		{
			name: "uniform scores keep the value",
			metrics: PerformanceMetrics{
				ArgumentStrength:   70,
				RebuttalQuality:    70,
				Clarity:            70,
				EvidenceUse:        70,
				LogicalConsistency: 70,
				EmotionalAppeal:    70,
			},
			expected: 70,
		},
		{
			name: "weighted combination",
			metrics: PerformanceMetrics{
				ArgumentStrength:   80,
				RebuttalQuality:    60,
				Clarity:            90,
				EvidenceUse:        40,
				LogicalConsistency: 70,
				EmotionalAppeal:    50,
			},
			// 80*.25 + 60*.20 + 90*.15 + 40*.15 + 70*.15 + 50*.10
			expected: 67,
		},
		{
			name:     "all zero",
			metrics:  PerformanceMetrics{},
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.metrics.RecomputeOverall()
			if math.Abs(tt.metrics.OverallScore-tt.expected) > 1e-9 {
				t.Errorf("OverallScore = %v, expected %v", tt.metrics.OverallScore, tt.expected)
			}
		})
	}
}

func TestRecomputeOverallClampsInputs(t *testing.T) {
	m := PerformanceMetrics{
		ArgumentStrength:   150,
		RebuttalQuality:    -20,
		Clarity:            100,
		EvidenceUse:        0,
		LogicalConsistency: 50,
		EmotionalAppeal:    110,
	}
	m.RecomputeOverall()

	if m.ArgumentStrength != 100 || m.RebuttalQuality != 0 || m.EmotionalAppeal != 100 {
		t.Errorf("sub-scores not clamped: %v %v %v", m.ArgumentStrength, m.RebuttalQuality, m.EmotionalAppeal)
	}

	// 100*.25 + 0*.20 + 100*.15 + 0*.15 + 50*.15 + 100*.10
	expected := 57.5
	if math.Abs(m.OverallScore-expected) > 1e-9 {
		t.Errorf("OverallScore = %v, expected %v", m.OverallScore, expected)
	}
}
