// internal/storage/postgres.go
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"nutrimood/internal/apperr"
	"nutrimood/internal/models"
)

// PostgresRecorder keeps conversation records in PostgreSQL for analytics.
type PostgresRecorder struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func NewPostgresRecorder(ctx context.Context, dsn string) (*PostgresRecorder, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is empty")
	}
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = time.Hour

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres connection failed: %w", err)
	}

	r := &PostgresRecorder{pool: pool, now: func() time.Time { return time.Now().UTC() }}
	if err := r.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return r, nil
}

func (r *PostgresRecorder) initSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS conversations (
			id UUID PRIMARY KEY,
			session_id VARCHAR(128) NOT NULL,
			user_id VARCHAR(255) NOT NULL DEFAULT '',
			user_message TEXT NOT NULL,
			bot_response TEXT NOT NULL,
			recommendations TEXT[] NOT NULL DEFAULT '{}',
			response_time_ms BIGINT NOT NULL,
			backend VARCHAR(64) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_conversations_session_id ON conversations(session_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_conversations_user_id ON conversations(user_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS session_analytics (
			session_id VARCHAR(128) PRIMARY KEY,
			user_id VARCHAR(255) NOT NULL DEFAULT '',
			total_messages INTEGER NOT NULL,
			total_recommendations INTEGER NOT NULL,
			session_duration_minutes DOUBLE PRECISION NOT NULL,
			first_message_at TIMESTAMPTZ NOT NULL,
			last_message_at TIMESTAMPTZ NOT NULL
		);

		CREATE TABLE IF NOT EXISTS feedback (
			id UUID PRIMARY KEY,
			conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			user_id VARCHAR(255) NOT NULL DEFAULT '',
			rating SMALLINT NOT NULL CHECK (rating BETWEEN 1 AND 5),
			feedback_text TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_feedback_user_id ON feedback(user_id);
	`
	_, err := r.pool.Exec(ctx, schema)
	return err
}

func (r *PostgresRecorder) Close() {
	r.pool.Close()
}

func (r *PostgresRecorder) RecordConversation(ctx context.Context, rec models.ConversationRecord) error {
	prepareRecord(&rec, r.now)
	_, err := r.pool.Exec(ctx, `
		INSERT INTO conversations (id, session_id, user_id, user_message, bot_response, recommendations, response_time_ms, backend, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, rec.ID, rec.SessionID, rec.UserID, rec.UserMessage, rec.BotResponse,
		rec.Recommendations, rec.ResponseTimeMS, rec.Backend, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}
	return nil
}

func (r *PostgresRecorder) ListConversations(ctx context.Context, sessionID string, limit int) ([]models.ConversationRecord, error) {
	return r.queryConversations(ctx, "session_id", sessionID, limit)
}

func (r *PostgresRecorder) ListUserConversations(ctx context.Context, userID string, limit int) ([]models.ConversationRecord, error) {
	return r.queryConversations(ctx, "user_id", userID, limit)
}

func (r *PostgresRecorder) queryConversations(ctx context.Context, column, value string, limit int) ([]models.ConversationRecord, error) {
	if limit <= 0 {
		limit = defaultConversationLimit
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, session_id, user_id, user_message, bot_response, recommendations, response_time_ms, backend, created_at
		FROM conversations
		WHERE `+column+` = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, value, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	out := []models.ConversationRecord{}
	for rows.Next() {
		var rec models.ConversationRecord
		err := rows.Scan(&rec.ID, &rec.SessionID, &rec.UserID, &rec.UserMessage, &rec.BotResponse,
			&rec.Recommendations, &rec.ResponseTimeMS, &rec.Backend, &rec.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *PostgresRecorder) UpdateSessionAnalytics(ctx context.Context, a models.SessionAnalytics) error {
	_, err := r.pool.Exec(ctx, fmt.Sprintf(upsertAnalyticsSQL, "$1, $2, $3, $4, $5, $6, $7"),
		a.SessionID, a.UserID, a.TotalMessages, a.TotalRecommendations,
		a.DurationMinutes, a.FirstMessageAt, a.LastMessageAt)
	if err != nil {
		return fmt.Errorf("failed to upsert session analytics: %w", err)
	}
	return nil
}

func (r *PostgresRecorder) SessionAnalytics(ctx context.Context, sessionID string) (*models.SessionAnalytics, error) {
	var a models.SessionAnalytics
	err := r.pool.QueryRow(ctx, `
		SELECT session_id, user_id, total_messages, total_recommendations, session_duration_minutes, first_message_at, last_message_at
		FROM session_analytics
		WHERE session_id = $1
	`, sessionID).Scan(&a.SessionID, &a.UserID, &a.TotalMessages, &a.TotalRecommendations,
		&a.DurationMinutes, &a.FirstMessageAt, &a.LastMessageAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("no analytics for session %s", sessionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session analytics: %w", err)
	}
	return &a, nil
}

func (r *PostgresRecorder) RecordFeedback(ctx context.Context, fb models.Feedback) (*models.Feedback, error) {
	if err := fb.Validate(); err != nil {
		return nil, err
	}
	var exists int
	err := r.pool.QueryRow(ctx, `SELECT 1 FROM conversations WHERE id::text = $1`, fb.ConversationID).Scan(&exists)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperr.NotFound("conversation %s", fb.ConversationID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up conversation: %w", err)
	}

	prepareFeedback(&fb, r.now)
	_, err = r.pool.Exec(ctx, `
		INSERT INTO feedback (id, conversation_id, user_id, rating, feedback_text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, fb.ID, fb.ConversationID, fb.UserID, fb.Rating, fb.Text, fb.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert feedback: %w", err)
	}
	return &fb, nil
}

func (r *PostgresRecorder) FeedbackStats(ctx context.Context, userID string) (models.FeedbackStats, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT rating, COUNT(*)
		FROM feedback
		WHERE $1 = '' OR user_id = $1
		GROUP BY rating
	`, userID)
	if err != nil {
		return models.FeedbackStats{}, fmt.Errorf("failed to query feedback: %w", err)
	}
	defer rows.Close()

	counts := map[int]int{}
	for rows.Next() {
		var rating int16
		var n int64
		if err := rows.Scan(&rating, &n); err != nil {
			return models.FeedbackStats{}, fmt.Errorf("failed to scan feedback: %w", err)
		}
		counts[int(rating)] = int(n)
	}
	if err := rows.Err(); err != nil {
		return models.FeedbackStats{}, err
	}
	return models.NewFeedbackStats(counts), nil
}
