package services

import (
	"fmt"
	"strings"

	"github.com/rhetorio/backend/models"
	"github.com/rhetorio/backend/repository"
)

// FieldRule is one enumerated constraint on a request field. The table below
// is consumed both by request validation and by the /schema endpoint, so the
// two can never drift apart.
type FieldRule struct {
	Field    string   `json:"field"`
	Required bool     `json:"required"`
	MinLen   int      `json:"min_len,omitempty"`
	MaxLen   int      `json:"max_len,omitempty"`
	Enum     []string `json:"enum,omitempty"`
}

// RequestSchemas enumerates the constraint table per request shape.
var RequestSchemas = map[string][]FieldRule{
	"create_session": {
		{Field: "topic_id", Required: true, MinLen: 1, MaxLen: 64},
		{Field: "side", Required: true, Enum: []string{models.SidePro, models.SideCon}},
		{Field: "difficulty", Enum: []string{"easy", "medium", "hard"}},
	},
	"send_message": {
		{Field: "content", Required: true, MinLen: repository.MinContentLength, MaxLen: repository.MaxContentLength},
		{Field: "message_type", Enum: []string{
			models.MessageOpening, models.MessageArgument, models.MessageRebuttal,
			models.MessageEvidence, models.MessageClosing, models.MessageGeneral,
		}},
	},
	"react": {
		{Field: "reaction", Required: true, Enum: []string{
			models.ReactionLike, models.ReactionInsightful, models.ReactionStrong, models.ReactionWeak,
		}},
	},
	"end_session": {
		{Field: "reason", Enum: []string{models.EndReasonFinished, models.EndReasonAbandoned}},
	},
}

// ValidateFields checks the given field values against the named schema and
// returns a ValidationError describing the first violation.
func ValidateFields(schema string, fields map[string]string) error {
	rules, ok := RequestSchemas[schema]
	if !ok {
		return NewInternalError(fmt.Errorf("unknown request schema %q", schema))
	}

	for _, rule := range rules {
		value, present := fields[rule.Field]
		if value == "" {
			if rule.Required {
				return NewValidationError(fmt.Sprintf("%s is required", rule.Field))
			}
			if !present {
				continue
			}
			continue
		}
		if rule.MinLen > 0 && len(value) < rule.MinLen {
			return NewValidationError(fmt.Sprintf("%s must be at least %d characters", rule.Field, rule.MinLen))
		}
		if rule.MaxLen > 0 && len(value) > rule.MaxLen {
			return NewValidationError(fmt.Sprintf("%s must be at most %d characters", rule.Field, rule.MaxLen))
		}
		if len(rule.Enum) > 0 && !containsValue(rule.Enum, value) {
			return NewValidationError(fmt.Sprintf("%s must be one of: %s", rule.Field, strings.Join(rule.Enum, ", ")))
		}
	}
	return nil
}

func containsValue(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
