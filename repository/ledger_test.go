package repository

import (
	"context"
	"strings"
	"testing"

	"github.com/rhetorio/backend/models"
)

func TestEscapeLike(t *testing.T) {
	tests := []struct {
		name     string
		term     string
		expected string
	}{
		{"plain term untouched", "carbon tax", "carbon tax"},
		{"percent escaped", "100% renewable", `100\% renewable`},
		{"underscore escaped", "opt_out", `opt\_out`},
		{"backslash escaped first", `a\b`, `a\\b`},
		{"mixed metacharacters", `50%_\`, `50\%\_\\`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := escapeLike(tt.term); got != tt.expected {
				t.Errorf("escapeLike(%q) = %q, expected %q", tt.term, got, tt.expected)
			}
		})
	}
}

func TestAppendRejectsContentOutOfBounds(t *testing.T) {
	repo := &LedgerRepository{}

	tests := []struct {
		name    string
		content string
	}{
		{"empty content", ""},
		{"over max length", strings.Repeat("a", MaxContentLength+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.Append(context.Background(), "session-a", models.SenderUser, tt.content, models.MessageArgument, nil)
			if err != ErrContentLength {
				t.Errorf("Append() = %v, expected ErrContentLength", err)
			}
		})
	}
}
