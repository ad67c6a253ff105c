// internal/storage/analytics.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"nutrimood/internal/apperr"
	"nutrimood/internal/models"
)

// upsertAnalyticsSQL is shared by both backends. A later exchange without a
// user id keeps the one already stored.
const upsertAnalyticsSQL = `
	INSERT INTO session_analytics (session_id, user_id, total_messages, total_recommendations,
		session_duration_minutes, first_message_at, last_message_at)
	VALUES (%s)
	ON CONFLICT (session_id) DO UPDATE SET
		user_id = CASE WHEN excluded.user_id <> '' THEN excluded.user_id ELSE session_analytics.user_id END,
		total_messages = excluded.total_messages,
		total_recommendations = excluded.total_recommendations,
		session_duration_minutes = excluded.session_duration_minutes,
		first_message_at = excluded.first_message_at,
		last_message_at = excluded.last_message_at
`

// UpdateSessionAnalytics replaces the rollup of a session.
func (s *SQLiteStorage) UpdateSessionAnalytics(ctx context.Context, a models.SessionAnalytics) error {
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(upsertAnalyticsSQL, "?, ?, ?, ?, ?, ?, ?"),
		a.SessionID, a.UserID, a.TotalMessages, a.TotalRecommendations,
		a.DurationMinutes, formatTime(a.FirstMessageAt), formatTime(a.LastMessageAt))
	if err != nil {
		return fmt.Errorf("failed to upsert session analytics: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) SessionAnalytics(ctx context.Context, sessionID string) (*models.SessionAnalytics, error) {
	var a models.SessionAnalytics
	var first, last string
	err := s.db.QueryRowContext(ctx, `
        SELECT session_id, user_id, total_messages, total_recommendations, session_duration_minutes, first_message_at, last_message_at
        FROM session_analytics
        WHERE session_id = ?
    `, sessionID).Scan(&a.SessionID, &a.UserID, &a.TotalMessages, &a.TotalRecommendations,
		&a.DurationMinutes, &first, &last)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("no analytics for session %s", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session analytics: %w", err)
	}
	if a.FirstMessageAt, err = parseTime(first); err != nil {
		return nil, err
	}
	if a.LastMessageAt, err = parseTime(last); err != nil {
		return nil, err
	}
	return &a, nil
}

// RecordFeedback stores a rating of a recorded exchange and returns it with
// its id and timestamp filled in.
func (s *SQLiteStorage) RecordFeedback(ctx context.Context, fb models.Feedback) (*models.Feedback, error) {
	if err := fb.Validate(); err != nil {
		return nil, err
	}
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM conversations WHERE id = ?`, fb.ConversationID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("conversation %s", fb.ConversationID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up conversation: %w", err)
	}

	prepareFeedback(&fb, s.now)
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO feedback (id, conversation_id, user_id, rating, feedback_text, created_at)
        VALUES (?, ?, ?, ?, ?, ?)
    `, fb.ID, fb.ConversationID, fb.UserID, fb.Rating, fb.Text, formatTime(fb.CreatedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to insert feedback: %w", err)
	}
	return &fb, nil
}

// FeedbackStats aggregates all ratings, or one user's when userID is set.
func (s *SQLiteStorage) FeedbackStats(ctx context.Context, userID string) (models.FeedbackStats, error) {
	query := `SELECT rating, COUNT(*) FROM feedback GROUP BY rating`
	var args []any
	if userID != "" {
		query = `SELECT rating, COUNT(*) FROM feedback WHERE user_id = ? GROUP BY rating`
		args = append(args, userID)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return models.FeedbackStats{}, fmt.Errorf("failed to query feedback: %w", err)
	}
	defer rows.Close()

	counts := map[int]int{}
	for rows.Next() {
		var rating, n int
		if err := rows.Scan(&rating, &n); err != nil {
			return models.FeedbackStats{}, fmt.Errorf("failed to scan feedback: %w", err)
		}
		counts[rating] = n
	}
	if err := rows.Err(); err != nil {
		return models.FeedbackStats{}, err
	}
	return models.NewFeedbackStats(counts), nil
}

func prepareFeedback(fb *models.Feedback, now func() time.Time) {
	if fb.ID == "" {
		fb.ID = uuid.NewString()
	}
	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = now()
	}
}
