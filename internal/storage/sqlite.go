// internal/storage/sqlite.go
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"nutrimood/internal/apperr"
	"nutrimood/internal/models"
	"nutrimood/internal/session"
)

// timeLayout is fixed width so stored timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStorage persists sessions and conversation records in one SQLite file.
type SQLiteStorage struct {
	db         *sql.DB
	maxHistory int
	now        func() time.Time
}

var _ session.Store = (*SQLiteStorage)(nil)

func NewSQLiteStorage(dbPath string, maxHistory int) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serialises writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	if maxHistory <= 0 {
		maxHistory = session.DefaultMaxHistory
	}
	storage := &SQLiteStorage{
		db:         db,
		maxHistory: maxHistory,
		now:        func() time.Time { return time.Now().UTC() },
	}
	if err := storage.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return storage, nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

func (s *SQLiteStorage) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS sessions (
        id TEXT PRIMARY KEY,
        created_at TEXT NOT NULL,
        last_activity TEXT NOT NULL,
        preferences TEXT NOT NULL DEFAULT '{}'
    );

    CREATE TABLE IF NOT EXISTS turns (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        session_id TEXT NOT NULL,
        role TEXT NOT NULL,
        content TEXT NOT NULL,
        created_at TEXT NOT NULL
    );

    CREATE TABLE IF NOT EXISTS recommendations (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        session_id TEXT NOT NULL,
        item_ids TEXT NOT NULL,
        created_at TEXT NOT NULL
    );

    CREATE TABLE IF NOT EXISTS conversations (
        id TEXT PRIMARY KEY,
        session_id TEXT NOT NULL,
        user_id TEXT NOT NULL DEFAULT '',
        user_message TEXT NOT NULL,
        bot_response TEXT NOT NULL,
        recommendations TEXT NOT NULL,
        response_time_ms INTEGER NOT NULL,
        backend TEXT NOT NULL,
        created_at TEXT NOT NULL
    );

    CREATE TABLE IF NOT EXISTS session_analytics (
        session_id TEXT PRIMARY KEY,
        user_id TEXT NOT NULL DEFAULT '',
        total_messages INTEGER NOT NULL,
        total_recommendations INTEGER NOT NULL,
        session_duration_minutes REAL NOT NULL,
        first_message_at TEXT NOT NULL,
        last_message_at TEXT NOT NULL
    );

    CREATE TABLE IF NOT EXISTS feedback (
        id TEXT PRIMARY KEY,
        conversation_id TEXT NOT NULL,
        user_id TEXT NOT NULL DEFAULT '',
        rating INTEGER NOT NULL,
        feedback_text TEXT NOT NULL DEFAULT '',
        created_at TEXT NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_turns_session_id ON turns(session_id, id);
    CREATE INDEX IF NOT EXISTS idx_recommendations_session_id ON recommendations(session_id, id);
    CREATE INDEX IF NOT EXISTS idx_sessions_last_activity ON sessions(last_activity);
    CREATE INDEX IF NOT EXISTS idx_conversations_session_id ON conversations(session_id, created_at);
    CREATE INDEX IF NOT EXISTS idx_conversations_user_id ON conversations(user_id, created_at);
    CREATE INDEX IF NOT EXISTS idx_feedback_user_id ON feedback(user_id);
    `

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

func (s *SQLiteStorage) GetOrCreate(ctx context.Context, id string) (*models.Session, error) {
	if err := session.ValidateID(id); err != nil {
		return nil, err
	}
	if err := s.ensure(ctx, s.db, id); err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

func (s *SQLiteStorage) Get(ctx context.Context, id string) (*models.Session, error) {
	sess := &models.Session{ID: id}
	var createdAt, lastActivity, prefs string

	err := s.db.QueryRowContext(ctx,
		`SELECT created_at, last_activity, preferences FROM sessions WHERE id = ?`, id,
	).Scan(&createdAt, &lastActivity, &prefs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("session %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	if sess.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if sess.LastActivity, err = parseTime(lastActivity); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(prefs), &sess.Preferences); err != nil {
		return nil, fmt.Errorf("failed to decode preferences: %w", err)
	}
	if sess.Preferences == nil {
		sess.Preferences = make(map[string]any)
	}

	if sess.Turns, err = s.History(ctx, id, 0); err != nil {
		return nil, err
	}
	if err := s.loadRecommendations(ctx, sess); err != nil {
		return nil, fmt.Errorf("failed to load recommendations for session %s: %w", id, err)
	}
	return sess, nil
}

func (s *SQLiteStorage) History(ctx context.Context, id string, limit int) ([]models.Turn, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `
        SELECT role, content, created_at FROM (
            SELECT id, role, content, created_at
            FROM turns
            WHERE session_id = ?
            ORDER BY id DESC
            LIMIT ?
        ) ORDER BY id ASC
    `
	rows, err := s.db.QueryContext(ctx, query, id, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query turns: %w", err)
	}
	defer rows.Close()

	turns := []models.Turn{}
	for rows.Next() {
		var turn models.Turn
		var role, createdAt string
		if err := rows.Scan(&role, &turn.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		turn.Role = models.Role(role)
		if turn.Timestamp, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}

func (s *SQLiteStorage) Append(ctx context.Context, id string, turn models.Turn) error {
	if err := session.ValidateID(id); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.ensure(ctx, tx, id); err != nil {
		return err
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = s.now()
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO turns (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
		id, string(turn.Role), turn.Content, formatTime(turn.Timestamp))
	if err != nil {
		return fmt.Errorf("failed to insert turn: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
        DELETE FROM turns
        WHERE session_id = ? AND id NOT IN (
            SELECT id FROM turns WHERE session_id = ? ORDER BY id DESC LIMIT ?
        )`, id, id, s.maxHistory)
	if err != nil {
		return fmt.Errorf("failed to trim turns: %w", err)
	}

	if err := s.touch(ctx, tx, id); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStorage) AddRecommendations(ctx context.Context, id string, itemIDs []string) error {
	if err := session.ValidateID(id); err != nil {
		return err
	}
	if itemIDs == nil {
		itemIDs = []string{}
	}
	encoded, err := json.Marshal(itemIDs)
	if err != nil {
		return fmt.Errorf("failed to encode item ids: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.ensure(ctx, tx, id); err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO recommendations (session_id, item_ids, created_at) VALUES (?, ?, ?)`,
		id, string(encoded), formatTime(s.now()))
	if err != nil {
		return fmt.Errorf("failed to insert recommendations: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStorage) UpdatePreferences(ctx context.Context, id string, prefs map[string]any) error {
	if err := session.ValidateID(id); err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.ensure(ctx, tx, id); err != nil {
		return err
	}

	var raw string
	if err := tx.QueryRowContext(ctx, `SELECT preferences FROM sessions WHERE id = ?`, id).Scan(&raw); err != nil {
		return fmt.Errorf("failed to read preferences: %w", err)
	}
	merged := make(map[string]any)
	if err := json.Unmarshal([]byte(raw), &merged); err != nil {
		return fmt.Errorf("failed to decode preferences: %w", err)
	}
	for k, v := range prefs {
		merged[k] = v
	}
	encoded, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE sessions SET preferences = ?, last_activity = ? WHERE id = ?`,
		string(encoded), formatTime(s.now()), id)
	if err != nil {
		return fmt.Errorf("failed to update preferences: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteStorage) Delete(ctx context.Context, id string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	deleted, err := deleteSession(ctx, tx, id)
	if err != nil {
		return false, err
	}
	return deleted, tx.Commit()
}

func (s *SQLiteStorage) Sweep(ctx context.Context, maxIdle time.Duration) (int, error) {
	cutoff := formatTime(s.now().Add(-maxIdle))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT id FROM sessions WHERE last_activity < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to query idle sessions: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, id := range ids {
		if _, err := deleteSession(ctx, tx, id); err != nil {
			return 0, err
		}
	}
	return len(ids), tx.Commit()
}

func (s *SQLiteStorage) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count sessions: %w", err)
	}
	return n, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *SQLiteStorage) ensure(ctx context.Context, db execer, id string) error {
	now := formatTime(s.now())
	_, err := db.ExecContext(ctx,
		`INSERT OR IGNORE INTO sessions (id, created_at, last_activity, preferences) VALUES (?, ?, ?, '{}')`,
		id, now, now)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) touch(ctx context.Context, db execer, id string) error {
	_, err := db.ExecContext(ctx, `UPDATE sessions SET last_activity = ? WHERE id = ?`, formatTime(s.now()), id)
	if err != nil {
		return fmt.Errorf("failed to update session activity: %w", err)
	}
	return nil
}

func deleteSession(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	for _, q := range []string{
		`DELETE FROM turns WHERE session_id = ?`,
		`DELETE FROM recommendations WHERE session_id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, q, id); err != nil {
			return false, fmt.Errorf("failed to delete session data: %w", err)
		}
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStorage) loadRecommendations(ctx context.Context, sess *models.Session) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT item_ids, created_at FROM recommendations WHERE session_id = ? ORDER BY id`, sess.ID)
	if err != nil {
		return fmt.Errorf("failed to query recommendations: %w", err)
	}
	defer rows.Close()

	sess.Recommendations = []models.RecommendationEntry{}
	for rows.Next() {
		var raw, createdAt string
		if err := rows.Scan(&raw, &createdAt); err != nil {
			return fmt.Errorf("failed to scan recommendations: %w", err)
		}
		var entry models.RecommendationEntry
		if err := json.Unmarshal([]byte(raw), &entry.ItemIDs); err != nil {
			return fmt.Errorf("failed to decode item ids: %w", err)
		}
		if entry.Timestamp, err = parseTime(createdAt); err != nil {
			return err
		}
		sess.Recommendations = append(sess.Recommendations, entry)
	}
	return rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}
