package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/rhetorio/backend/repository"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind ErrorKind
	}{
		{"ledger not found", repository.ErrNotFound, KindNotFound},
		{"content length", repository.ErrContentLength, KindValidation},
		{"duplicate reaction", repository.ErrDuplicateReaction, KindConflict},
		{"wrapped duplicate reaction", fmt.Errorf("react: %w", repository.ErrDuplicateReaction), KindConflict},
		{"app error passes through", NewForbiddenError("not yours"), KindForbidden},
		{"unknown error", errors.New("connection reset"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := classifyError(tt.err)
			if appErr.Kind != tt.kind {
				t.Errorf("classifyError(%v).Kind = %s, expected %s", tt.err, appErr.Kind, tt.kind)
			}
		})
	}
}
