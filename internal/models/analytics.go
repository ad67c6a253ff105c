// internal/models/analytics.go
package models

import (
	"math"
	"strconv"
	"time"

	"nutrimood/internal/apperr"
)

const (
	MinRating = 1
	MaxRating = 5
)

// SessionAnalytics is the per-session rollup refreshed after every exchange.
type SessionAnalytics struct {
	SessionID            string    `json:"session_id"`
	UserID               string    `json:"user_id,omitempty"`
	TotalMessages        int       `json:"total_messages"`
	TotalRecommendations int       `json:"total_recommendations"`
	DurationMinutes      float64   `json:"session_duration_minutes"`
	FirstMessageAt       time.Time `json:"first_message_at"`
	LastMessageAt        time.Time `json:"last_message_at"`
}

// Analytics summarises the session for the analytics store. Sessions
// without turns report their creation and last activity times.
func (s *Session) Analytics(userID string) SessionAnalytics {
	stats := s.Stats()
	a := SessionAnalytics{
		SessionID:            s.ID,
		UserID:               userID,
		TotalMessages:        stats.MessageCount,
		TotalRecommendations: stats.RecommendationsCount,
		FirstMessageAt:       s.CreatedAt,
		LastMessageAt:        s.LastActivity,
	}
	if n := len(s.Turns); n > 0 {
		a.FirstMessageAt = s.Turns[0].Timestamp
		a.LastMessageAt = s.Turns[n-1].Timestamp
	}
	a.DurationMinutes = a.LastMessageAt.Sub(a.FirstMessageAt).Minutes()
	return a
}

// Feedback is a user's rating of one recorded exchange.
type Feedback struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	UserID         string    `json:"user_id,omitempty"`
	Rating         int       `json:"rating"`
	Text           string    `json:"feedback_text,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

func (f Feedback) Validate() error {
	if f.ConversationID == "" {
		return apperr.Invalid("conversation_id is required")
	}
	if f.Rating < MinRating || f.Rating > MaxRating {
		return apperr.Invalid("rating must be between %d and %d, got %d", MinRating, MaxRating, f.Rating)
	}
	return nil
}

// FeedbackStats aggregates ratings. Distribution is omitted when there is
// no feedback at all.
type FeedbackStats struct {
	TotalFeedback int            `json:"total_feedback"`
	AverageRating float64        `json:"average_rating"`
	Distribution  map[string]int `json:"ratings_distribution,omitempty"`
}

// NewFeedbackStats builds the aggregate from per-rating counts, where
// counts[r] is the number of ratings equal to r. Out of range keys are ignored.
func NewFeedbackStats(counts map[int]int) FeedbackStats {
	var stats FeedbackStats
	sum := 0
	for r := MinRating; r <= MaxRating; r++ {
		stats.TotalFeedback += counts[r]
		sum += r * counts[r]
	}
	if stats.TotalFeedback == 0 {
		return stats
	}
	stats.AverageRating = math.Round(float64(sum)/float64(stats.TotalFeedback)*100) / 100
	stats.Distribution = make(map[string]int, MaxRating)
	for r := MinRating; r <= MaxRating; r++ {
		stats.Distribution[ratingKey(r)] = counts[r]
	}
	return stats
}

func ratingKey(r int) string {
	if r == 1 {
		return "1_star"
	}
	return strconv.Itoa(r) + "_stars"
}
