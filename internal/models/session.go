// internal/models/session.go
package models

import (
	"time"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message in a conversation.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

type RecommendationEntry struct {
	ItemIDs   []string  `json:"item_ids"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is a snapshot of one conversation and its side data.
type Session struct {
	ID              string                `json:"session_id"`
	CreatedAt       time.Time             `json:"created_at"`
	LastActivity    time.Time             `json:"last_activity"`
	Turns           []Turn                `json:"messages"`
	Recommendations []RecommendationEntry `json:"recommendations"`
	Preferences     map[string]any        `json:"preferences"`
}

// LastRecommendation returns the most recent non-empty recommendation entry.
func (s *Session) LastRecommendation() []string {
	for i := len(s.Recommendations) - 1; i >= 0; i-- {
		if len(s.Recommendations[i].ItemIDs) > 0 {
			return s.Recommendations[i].ItemIDs
		}
	}
	return nil
}

// SessionStats is what the session endpoint reports alongside the history.
type SessionStats struct {
	SessionID            string    `json:"session_id"`
	MessageCount         int       `json:"message_count"`
	UserMessages         int       `json:"user_messages"`
	AssistantMessages    int       `json:"assistant_messages"`
	RecommendationsCount int       `json:"total_recommendations"`
	CreatedAt            time.Time `json:"created_at"`
	LastActivity         time.Time `json:"last_activity"`
	DurationMinutes      float64   `json:"duration_minutes"`
}

func (s *Session) Stats() SessionStats {
	stats := SessionStats{
		SessionID:    s.ID,
		MessageCount: len(s.Turns),
		CreatedAt:    s.CreatedAt,
		LastActivity: s.LastActivity,
	}
	for _, t := range s.Turns {
		switch t.Role {
		case RoleUser:
			stats.UserMessages++
		case RoleAssistant:
			stats.AssistantMessages++
		}
	}
	for _, r := range s.Recommendations {
		stats.RecommendationsCount += len(r.ItemIDs)
	}
	stats.DurationMinutes = s.LastActivity.Sub(s.CreatedAt).Minutes()
	return stats
}
