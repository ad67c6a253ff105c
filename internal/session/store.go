// internal/session/store.go
package session

import (
	"context"
	"strings"
	"time"

	"nutrimood/internal/apperr"
	"nutrimood/internal/models"
)

const DefaultMaxHistory = 50

// Store keeps conversation history per session. Implementations must be safe
// for concurrent use; appends to one session are applied in call order.
type Store interface {
	GetOrCreate(ctx context.Context, id string) (*models.Session, error)
	// Get returns apperr.ErrNotFound for unknown sessions.
	Get(ctx context.Context, id string) (*models.Session, error)
	// History returns the last limit turns, oldest first. limit <= 0 means all.
	// Unknown sessions have an empty history.
	History(ctx context.Context, id string, limit int) ([]models.Turn, error)
	Append(ctx context.Context, id string, turn models.Turn) error
	AddRecommendations(ctx context.Context, id string, itemIDs []string) error
	UpdatePreferences(ctx context.Context, id string, prefs map[string]any) error
	Delete(ctx context.Context, id string) (bool, error)
	// Sweep removes sessions idle for longer than maxIdle and reports how many.
	Sweep(ctx context.Context, maxIdle time.Duration) (int, error)
	Count(ctx context.Context) (int, error)
}

// ValidateID rejects empty or oversized session identifiers.
func ValidateID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperr.Invalid("session id is required")
	}
	if len(id) > 128 {
		return apperr.Invalid("session id longer than 128 characters")
	}
	return nil
}

// Tail returns the last limit turns of history. limit <= 0 returns all.
func Tail(turns []models.Turn, limit int) []models.Turn {
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	out := make([]models.Turn, len(turns))
	copy(out, turns)
	return out
}
