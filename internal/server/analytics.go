// internal/server/analytics.go
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"nutrimood/internal/apperr"
	"nutrimood/internal/models"
)

const (
	defaultConversationsLimit     = 50
	defaultUserConversationsLimit = 100
)

func conversationLimit(r *http.Request, def int) (int, error) {
	limit, err := queryInt(r, "limit", def)
	if err != nil {
		return 0, err
	}
	if limit <= 0 {
		return 0, apperr.Invalid("limit must be positive")
	}
	return limit, nil
}

func (s *NutriMoodServer) handleConversations(w http.ResponseWriter, r *http.Request) {
	limit, err := conversationLimit(r, defaultConversationsLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sessionID := chi.URLParam(r, "session_id")
	records, err := s.deps.Analytics.ListConversations(r.Context(), sessionID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id":    sessionID,
		"count":         len(records),
		"conversations": records,
	})
}

func (s *NutriMoodServer) handleUserConversations(w http.ResponseWriter, r *http.Request) {
	limit, err := conversationLimit(r, defaultUserConversationsLimit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	userID := chi.URLParam(r, "user_id")
	records, err := s.deps.Analytics.ListUserConversations(r.Context(), userID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":       userID,
		"count":         len(records),
		"conversations": records,
	})
}

func (s *NutriMoodServer) handleSessionAnalytics(w http.ResponseWriter, r *http.Request) {
	a, err := s.deps.Analytics.SessionAnalytics(r.Context(), chi.URLParam(r, "session_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// handleFeedbackStats aggregates every rating, or one user's with ?user_id=.
func (s *NutriMoodServer) handleFeedbackStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Analytics.FeedbackStats(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *NutriMoodServer) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var fb models.Feedback
	if err := decodeJSON(r, &fb); err != nil {
		writeError(w, r, err)
		return
	}
	if err := fb.Validate(); err != nil {
		writeError(w, r, err)
		return
	}
	saved, err := s.deps.Analytics.RecordFeedback(r.Context(), fb)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}
