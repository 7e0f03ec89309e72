package repository

import (
	"context"
	"log/slog"
	"time"

	"github.com/rhetorio/backend/models"
	"gorm.io/gorm"
)

type GORMRepository struct {
	db *gorm.DB
}

func NewGORMRepository(db *gorm.DB) *GORMRepository {
	return &GORMRepository{db: db}
}

// DB exposes the underlying handle for services that manage their own
// transactions (the ledger's turn assignment).
func (r *GORMRepository) DB() *gorm.DB {
	return r.db
}

// AutoMigrate runs database migrations
func (r *GORMRepository) AutoMigrate() error {
	return r.db.AutoMigrate(
		&models.User{},
		&models.RefreshToken{},
		&models.Topic{},
		&models.DebateSession{},
		&models.DebateMessage{},
		&models.MessageReaction{},
		&models.PerformanceMetrics{},
	)
}

// User operations
func (r *GORMRepository) CreateUser(ctx context.Context, user *models.User) error {
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		slog.Error("Failed to create user", "error", err)
		return err
	}
	slog.Info("User created", "user_id", user.ID, "email", user.Email)
	return nil
}

func (r *GORMRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get user by email", "error", err, "email", email)
		return nil, err
	}
	return &user, nil
}

func (r *GORMRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get user by ID", "error", err, "user_id", id)
		return nil, err
	}
	return &user, nil
}

// Token operations
func (r *GORMRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if err := r.db.WithContext(ctx).Create(token).Error; err != nil {
		slog.Error("Failed to create refresh token", "error", err)
		return err
	}
	return nil
}

func (r *GORMRepository) GetRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	var refreshToken models.RefreshToken
	if err := r.db.WithContext(ctx).Where("token = ? AND expires_at > ?", token, time.Now()).First(&refreshToken).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get refresh token", "error", err)
		return nil, err
	}
	return &refreshToken, nil
}

func (r *GORMRepository) DeleteRefreshToken(ctx context.Context, token string) error {
	if err := r.db.WithContext(ctx).Where("token = ?", token).Delete(&models.RefreshToken{}).Error; err != nil {
		slog.Error("Failed to delete refresh token", "error", err)
		return err
	}
	return nil
}

func (r *GORMRepository) DeleteAllUserTokens(ctx context.Context, userID string) error {
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.RefreshToken{}).Error; err != nil {
		slog.Error("Failed to delete user refresh tokens", "error", err, "user_id", userID)
		return err
	}
	return nil
}

// Topic operations
func (r *GORMRepository) CreateTopic(ctx context.Context, topic *models.Topic) error {
	if err := r.db.WithContext(ctx).Create(topic).Error; err != nil {
		slog.Error("Failed to create topic", "error", err)
		return err
	}
	slog.Info("Topic created", "topic_id", topic.ID, "title", topic.Title)
	return nil
}

func (r *GORMRepository) GetTopics(ctx context.Context, category string) ([]models.Topic, error) {
	var topics []models.Topic
	query := r.db.WithContext(ctx).Where("is_active = ?", true)
	if category != "" {
		query = query.Where("category = ?", category)
	}
	if err := query.Order("title").Find(&topics).Error; err != nil {
		slog.Error("Failed to get topics", "error", err, "category", category)
		return nil, err
	}
	return topics, nil
}

func (r *GORMRepository) GetTopicByID(ctx context.Context, topicID string) (*models.Topic, error) {
	var topic models.Topic
	if err := r.db.WithContext(ctx).Where("id = ? AND is_active = ?", topicID, true).First(&topic).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get topic by ID", "error", err, "topic_id", topicID)
		return nil, err
	}
	return &topic, nil
}

// Session operations
func (r *GORMRepository) CreateDebateSession(ctx context.Context, session *models.DebateSession) error {
	if err := r.db.WithContext(ctx).Create(session).Error; err != nil {
		slog.Error("Failed to create debate session", "error", err)
		return err
	}
	slog.Info("Debate session created", "session_id", session.ID, "user_id", session.UserID)
	return nil
}

func (r *GORMRepository) GetDebateSessions(ctx context.Context, userID string) ([]models.DebateSession, error) {
	var sessions []models.DebateSession
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).Preload("Topic").Order("started_at DESC").Find(&sessions).Error
	if err != nil {
		slog.Error("Failed to get debate sessions", "error", err, "user_id", userID)
		return nil, err
	}
	return sessions, nil
}

// GetDebateSession gets a debate session by ID without an ownership check
func (r *GORMRepository) GetDebateSession(ctx context.Context, sessionID string) (*models.DebateSession, error) {
	var session models.DebateSession
	err := r.db.WithContext(ctx).Where("id = ?", sessionID).First(&session).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get debate session", "error", err, "session_id", sessionID)
		return nil, err
	}
	return &session, nil
}

// GetDebateSessionForUser gets a session only if it belongs to the user
func (r *GORMRepository) GetDebateSessionForUser(ctx context.Context, sessionID, userID string) (*models.DebateSession, error) {
	var session models.DebateSession
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", sessionID, userID).
		Preload("Topic").
		First(&session).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get debate session for user", "error", err, "session_id", sessionID, "user_id", userID)
		return nil, err
	}
	return &session, nil
}

// GetActiveSessionForUser returns a non-terminal session owned by the user, if any.
// Used to enforce one active debate per user at a time.
func (r *GORMRepository) GetActiveSessionForUser(ctx context.Context, userID string) (*models.DebateSession, error) {
	var session models.DebateSession
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status IN ?", userID, []string{models.SessionActive, models.SessionPaused}).
		First(&session).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to check for active session", "error", err, "user_id", userID)
		return nil, err
	}
	return &session, nil
}

func (r *GORMRepository) SaveDebateSession(ctx context.Context, session *models.DebateSession) error {
	if err := r.db.WithContext(ctx).Save(session).Error; err != nil {
		slog.Error("Failed to save debate session", "error", err, "session_id", session.ID)
		return err
	}
	return nil
}

// ListExpirableSessions returns sessions still marked active whose time budget
// may have run out; the caller re-checks elapsed time under the session lock.
func (r *GORMRepository) ListExpirableSessions(ctx context.Context) ([]models.DebateSession, error) {
	var sessions []models.DebateSession
	err := r.db.WithContext(ctx).Where("status = ?", models.SessionActive).Find(&sessions).Error
	if err != nil {
		slog.Error("Failed to list expirable sessions", "error", err)
		return nil, err
	}
	return sessions, nil
}

// Metrics operations
func (r *GORMRepository) UpsertPerformanceMetrics(ctx context.Context, metrics *models.PerformanceMetrics) error {
	var existing models.PerformanceMetrics
	err := r.db.WithContext(ctx).
		Where("session_id = ? AND user_id = ?", metrics.SessionID, metrics.UserID).
		First(&existing).Error
	if err == nil {
		metrics.ID = existing.ID
		metrics.CreatedAt = existing.CreatedAt
		return r.db.WithContext(ctx).Save(metrics).Error
	}
	if err != gorm.ErrRecordNotFound {
		slog.Error("Failed to check existing metrics", "error", err, "session_id", metrics.SessionID)
		return err
	}
	if err := r.db.WithContext(ctx).Create(metrics).Error; err != nil {
		slog.Error("Failed to create performance metrics", "error", err, "session_id", metrics.SessionID)
		return err
	}
	slog.Info("Performance metrics created", "metrics_id", metrics.ID, "session_id", metrics.SessionID)
	return nil
}

func (r *GORMRepository) GetPerformanceMetrics(ctx context.Context, sessionID string) (*models.PerformanceMetrics, error) {
	var metrics models.PerformanceMetrics
	err := r.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&metrics).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		slog.Error("Failed to get performance metrics", "error", err, "session_id", sessionID)
		return nil, err
	}
	return &metrics, nil
}

// LeaderboardEntry aggregates completed-session scores per user.
type LeaderboardEntry struct {
	UserID       string  `json:"user_id"`
	FullName     string  `json:"full_name"`
	Sessions     int64   `json:"sessions"`
	AverageScore float64 `json:"average_score"`
	BestScore    float64 `json:"best_score"`
}

func (r *GORMRepository) GetLeaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error) {
	var entries []LeaderboardEntry
	err := r.db.WithContext(ctx).
		Model(&models.DebateSession{}).
		Select("debate_sessions.user_id, users.full_name, COUNT(*) AS sessions, AVG(debate_sessions.final_score) AS average_score, MAX(debate_sessions.final_score) AS best_score").
		Joins("JOIN users ON users.id = debate_sessions.user_id").
		Where("debate_sessions.status = ? AND debate_sessions.final_score IS NOT NULL", models.SessionCompleted).
		Group("debate_sessions.user_id, users.full_name").
		Order("average_score DESC").
		Limit(limit).
		Scan(&entries).Error
	if err != nil {
		slog.Error("Failed to build leaderboard", "error", err)
		return nil, err
	}
	return entries, nil
}
