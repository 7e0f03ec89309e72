package services

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/rhetorio/backend/repository"
)

// TopicEndpoints serves the debate topic catalog and the leaderboard.
type TopicEndpoints struct {
	repo *repository.GORMRepository
}

func NewTopicEndpoints(repo *repository.GORMRepository) *TopicEndpoints {
	return &TopicEndpoints{repo: repo}
}

// ListTopicsHandler returns active topics, optionally filtered by category.
func (e *TopicEndpoints) ListTopicsHandler(w http.ResponseWriter, r *http.Request) {
	topics, err := e.repo.GetTopics(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		WriteError(w, NewInternalError(err))
		return
	}

	WriteData(w, http.StatusOK, map[string]interface{}{"topics": topics})
}

// GetTopicHandler returns one active topic with its starter points.
func (e *TopicEndpoints) GetTopicHandler(w http.ResponseWriter, r *http.Request) {
	topicID := chi.URLParam(r, "topicID")
	topic, err := e.repo.GetTopicByID(r.Context(), topicID)
	if err != nil {
		WriteError(w, NewInternalError(err))
		return
	}
	if topic == nil {
		WriteError(w, NewNotFoundError("topic not found"))
		return
	}

	WriteData(w, http.StatusOK, topic)
}

// LeaderboardHandler ranks users by average final score over their completed
// sessions.
func (e *TopicEndpoints) LeaderboardHandler(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			WriteError(w, NewValidationError("limit must be between 1 and 100"))
			return
		}
		limit = parsed
	}

	entries, err := e.repo.GetLeaderboard(r.Context(), limit)
	if err != nil {
		WriteError(w, NewInternalError(err))
		return
	}

	WriteData(w, http.StatusOK, map[string]interface{}{"leaderboard": entries})
}
