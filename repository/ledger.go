package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rhetorio/backend/models"
	"gorm.io/gorm"
)

// Content length bounds enforced on append.
const (
	MinContentLength = 1
	MaxContentLength = 2000
)

// MaxPageSize bounds a single ledger page.
const MaxPageSize = 100

// Sentinel errors the service layer maps onto its client-facing taxonomy.
var (
	ErrNotFound          = errors.New("record not found")
	ErrContentLength     = fmt.Errorf("message content must be between %d and %d characters", MinContentLength, MaxContentLength)
	ErrDuplicateReaction = errors.New("user already reacted to this message")
)

// LedgerRepository is the append-only, turn-numbered message store. Appends
// assign turn numbers transactionally; callers serialize appends per session.
type LedgerRepository struct {
	db *gorm.DB
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// AppendOptions carries optional AI metadata for ai-authored appends.
type AppendOptions struct {
	ModelID    string
	Confidence float64
	LatencyMS  int64
	ParentID   string
}

// Append writes a message with the next turn number for the session and bumps
// the owning session's counters in the same transaction. The turn number is
// read-then-written inside the transaction; the state service additionally
// holds a per-session lock around this call so two concurrent sends cannot
// interleave and produce a duplicate.
func (r *LedgerRepository) Append(ctx context.Context, sessionID, sender, content, messageType string, opts *AppendOptions) (*models.DebateMessage, error) {
	if len(content) < MinContentLength || len(content) > MaxContentLength {
		return nil, ErrContentLength
	}

	message := &models.DebateMessage{
		SessionID:   sessionID,
		Sender:      sender,
		Content:     content,
		MessageType: messageType,
		CreatedAt:   time.Now(),
	}
	if opts != nil {
		if opts.ModelID != "" {
			message.ModelID = &opts.ModelID
			message.Confidence = &opts.Confidence
			message.LatencyMS = &opts.LatencyMS
		}
		if opts.ParentID != "" {
			message.ParentID = &opts.ParentID
		}
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var maxTurn int64
		if err := tx.Model(&models.DebateMessage{}).
			Where("session_id = ?", sessionID).
			Select("COALESCE(MAX(turn_number), 0)").
			Scan(&maxTurn).Error; err != nil {
			return fmt.Errorf("failed to read max turn number: %w", err)
		}
		message.TurnNumber = int(maxTurn) + 1

		if err := tx.Create(message).Error; err != nil {
			return fmt.Errorf("failed to append message: %w", err)
		}

		counter := "user_message_count"
		if sender == models.SenderAI {
			counter = "ai_message_count"
		}
		if err := tx.Model(&models.DebateSession{}).
			Where("id = ?", sessionID).
			UpdateColumns(map[string]interface{}{
				counter:       gorm.Expr(counter+" + ?", 1),
				"total_turns": gorm.Expr("total_turns + ?", 1),
			}).Error; err != nil {
			return fmt.Errorf("failed to bump session counters: %w", err)
		}
		return nil
	})
	if err != nil {
		slog.Error("Failed to append to ledger", "error", err, "session_id", sessionID, "sender", sender)
		return nil, err
	}

	slog.Info("Message appended", "message_id", message.ID, "session_id", sessionID, "sender", sender, "turn_number", message.TurnNumber)
	return message, nil
}

// Page returns up to limit messages for the session in chronological order.
// The before cursor excludes messages at or after the boundary; results are
// always oldest-first regardless of internal query order.
func (r *LedgerRepository) Page(ctx context.Context, sessionID string, limit int, before *time.Time, senderFilter string) ([]models.DebateMessage, error) {
	if limit <= 0 || limit > MaxPageSize {
		limit = MaxPageSize
	}

	query := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Preload("Reactions").
		Order("created_at DESC").
		Limit(limit)
	if before != nil {
		query = query.Where("created_at < ?", *before)
	}
	if senderFilter != "" {
		query = query.Where("sender = ?", senderFilter)
	}

	var messages []models.DebateMessage
	if err := query.Find(&messages).Error; err != nil {
		slog.Error("Failed to page ledger", "error", err, "session_id", sessionID)
		return nil, fmt.Errorf("failed to page messages: %w", err)
	}

	// Query newest-first to honour the cursor, then reverse to oldest-first.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// likeEscaper neutralizes LIKE metacharacters in user-supplied search terms,
// so a term like "100%" matches literally instead of as a wildcard.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(term string) string {
	return likeEscaper.Replace(term)
}

// Search performs a case-insensitive substring match over message content,
// most recent matches first. Substring matching has no meaningful relevance
// score, so recency is the total order.
func (r *LedgerRepository) Search(ctx context.Context, sessionID, term string) ([]models.DebateMessage, error) {
	var messages []models.DebateMessage
	pattern := "%" + escapeLike(strings.ToLower(strings.TrimSpace(term))) + "%"
	err := r.db.WithContext(ctx).
		Where(`session_id = ? AND LOWER(content) LIKE ? ESCAPE '\'`, sessionID, pattern).
		Order("created_at DESC").
		Limit(MaxPageSize).
		Find(&messages).Error
	if err != nil {
		slog.Error("Failed to search ledger", "error", err, "session_id", sessionID)
		return nil, fmt.Errorf("failed to search messages: %w", err)
	}
	return messages, nil
}

// GetMessage retrieves a single message with its reactions.
func (r *LedgerRepository) GetMessage(ctx context.Context, messageID string) (*models.DebateMessage, error) {
	var message models.DebateMessage
	err := r.db.WithContext(ctx).Preload("Reactions").Where("id = ?", messageID).First(&message).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		slog.Error("Failed to get message", "error", err, "message_id", messageID)
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return &message, nil
}

// React attaches a reaction to a message. A user holds at most one reaction
// per message; a second attempt fails with ErrDuplicateReaction and the
// message's reaction set is unchanged.
func (r *LedgerRepository) React(ctx context.Context, messageID, userID, reaction string) (*models.DebateMessage, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var message models.DebateMessage
		if err := tx.Where("id = ?", messageID).First(&message).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return ErrNotFound
			}
			return fmt.Errorf("failed to get message: %w", err)
		}

		var count int64
		if err := tx.Model(&models.MessageReaction{}).
			Where("message_id = ? AND user_id = ?", messageID, userID).
			Count(&count).Error; err != nil {
			return fmt.Errorf("failed to check existing reaction: %w", err)
		}
		if count > 0 {
			return ErrDuplicateReaction
		}

		return tx.Create(&models.MessageReaction{
			MessageID: messageID,
			UserID:    userID,
			Reaction:  reaction,
		}).Error
	})
	if err != nil {
		if err != ErrNotFound && err != ErrDuplicateReaction {
			slog.Error("Failed to react to message", "error", err, "message_id", messageID, "user_id", userID)
		}
		return nil, err
	}

	slog.Info("Reaction added", "message_id", messageID, "user_id", userID, "reaction", reaction)
	return r.GetMessage(ctx, messageID)
}

// RemoveReaction deletes the user's reaction from a message, if any.
func (r *LedgerRepository) RemoveReaction(ctx context.Context, messageID, userID string) error {
	if err := r.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ?", messageID, userID).
		Delete(&models.MessageReaction{}).Error; err != nil {
		slog.Error("Failed to remove reaction", "error", err, "message_id", messageID, "user_id", userID)
		return fmt.Errorf("failed to remove reaction: %w", err)
	}
	return nil
}

// SetFlag toggles the moderation flag on a message. Messages are never
// deleted, only flagged.
func (r *LedgerRepository) SetFlag(ctx context.Context, messageID string, flagged bool) error {
	result := r.db.WithContext(ctx).
		Model(&models.DebateMessage{}).
		Where("id = ?", messageID).
		UpdateColumn("flagged", flagged)
	if result.Error != nil {
		slog.Error("Failed to flag message", "error", result.Error, "message_id", messageID)
		return fmt.Errorf("failed to flag message: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SessionMessages returns the full ledger for a session, oldest-first. Used by
// the scoring engine and the AI context window.
func (r *LedgerRepository) SessionMessages(ctx context.Context, sessionID string) ([]models.DebateMessage, error) {
	var messages []models.DebateMessage
	err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("turn_number ASC").
		Find(&messages).Error
	if err != nil {
		slog.Error("Failed to get session messages", "error", err, "session_id", sessionID)
		return nil, fmt.Errorf("failed to get session messages: %w", err)
	}
	return messages, nil
}
