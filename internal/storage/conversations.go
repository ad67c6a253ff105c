// internal/storage/conversations.go
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"nutrimood/internal/models"
)

const defaultConversationLimit = 50

// RecordConversation stores one completed chat exchange.
func (s *SQLiteStorage) RecordConversation(ctx context.Context, rec models.ConversationRecord) error {
	prepareRecord(&rec, s.now)
	recs, err := json.Marshal(rec.Recommendations)
	if err != nil {
		return fmt.Errorf("failed to encode recommendations: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
        INSERT INTO conversations (id, session_id, user_id, user_message, bot_response, recommendations, response_time_ms, backend, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
    `, rec.ID, rec.SessionID, rec.UserID, rec.UserMessage, rec.BotResponse,
		string(recs), rec.ResponseTimeMS, rec.Backend, formatTime(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}
	return nil
}

// ListConversations returns the newest records of a session first.
func (s *SQLiteStorage) ListConversations(ctx context.Context, sessionID string, limit int) ([]models.ConversationRecord, error) {
	return s.queryConversations(ctx, "session_id", sessionID, limit)
}

// ListUserConversations returns the newest records of a user first.
func (s *SQLiteStorage) ListUserConversations(ctx context.Context, userID string, limit int) ([]models.ConversationRecord, error) {
	return s.queryConversations(ctx, "user_id", userID, limit)
}

// queryConversations filters on column, which must be a trusted column name.
func (s *SQLiteStorage) queryConversations(ctx context.Context, column, value string, limit int) ([]models.ConversationRecord, error) {
	if limit <= 0 {
		limit = defaultConversationLimit
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, session_id, user_id, user_message, bot_response, recommendations, response_time_ms, backend, created_at
        FROM conversations
        WHERE `+column+` = ?
        ORDER BY created_at DESC
        LIMIT ?
    `, value, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()

	out := []models.ConversationRecord{}
	for rows.Next() {
		var rec models.ConversationRecord
		var recs, createdAt string
		err := rows.Scan(&rec.ID, &rec.SessionID, &rec.UserID, &rec.UserMessage, &rec.BotResponse,
			&recs, &rec.ResponseTimeMS, &rec.Backend, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		if err := json.Unmarshal([]byte(recs), &rec.Recommendations); err != nil {
			return nil, fmt.Errorf("failed to decode recommendations: %w", err)
		}
		if rec.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func prepareRecord(rec *models.ConversationRecord, now func() time.Time) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now()
	}
	if rec.Recommendations == nil {
		rec.Recommendations = []string{}
	}
}
