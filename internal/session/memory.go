// internal/session/memory.go
package session

import (
	"context"
	"sync"
	"time"

	"nutrimood/internal/apperr"
	"nutrimood/internal/models"
)

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	mu         sync.RWMutex
	sessions   map[string]*models.Session
	maxHistory int
	now        func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(maxHistory int) *MemoryStore {
	if maxHistory <= 0 {
		maxHistory = DefaultMaxHistory
	}
	return &MemoryStore{
		sessions:   make(map[string]*models.Session),
		maxHistory: maxHistory,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) GetOrCreate(ctx context.Context, id string) (*models.Session, error) {
	if err := ValidateID(id); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return clone(m.ensure(id)), nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, apperr.NotFound("session %s", id)
	}
	return clone(s), nil
}

func (m *MemoryStore) History(ctx context.Context, id string, limit int) ([]models.Turn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return []models.Turn{}, nil
	}
	return Tail(s.Turns, limit), nil
}

func (m *MemoryStore) Append(ctx context.Context, id string, turn models.Turn) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.ensure(id)
	if turn.Timestamp.IsZero() {
		turn.Timestamp = m.now()
	}
	s.Turns = append(s.Turns, turn)
	if len(s.Turns) > m.maxHistory {
		s.Turns = append([]models.Turn(nil), s.Turns[len(s.Turns)-m.maxHistory:]...)
	}
	s.LastActivity = m.now()
	return nil
}

func (m *MemoryStore) AddRecommendations(ctx context.Context, id string, itemIDs []string) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.ensure(id)
	s.Recommendations = append(s.Recommendations, models.RecommendationEntry{
		ItemIDs:   append([]string(nil), itemIDs...),
		Timestamp: m.now(),
	})
	return nil
}

func (m *MemoryStore) UpdatePreferences(ctx context.Context, id string, prefs map[string]any) error {
	if err := ValidateID(id); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.ensure(id)
	for k, v := range prefs {
		s.Preferences[k] = v
	}
	s.LastActivity = m.now()
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.sessions[id]
	delete(m.sessions, id)
	return ok, nil
}

func (m *MemoryStore) Sweep(ctx context.Context, maxIdle time.Duration) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := m.now().Add(-maxIdle)
	removed := 0
	for id, s := range m.sessions {
		if s.LastActivity.Before(cutoff) {
			delete(m.sessions, id)
			removed++
		}
	}
	return removed, nil
}

func (m *MemoryStore) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions), nil
}

// ensure must be called with the write lock held.
func (m *MemoryStore) ensure(id string) *models.Session {
	s, ok := m.sessions[id]
	if !ok {
		now := m.now()
		s = &models.Session{
			ID:           id,
			CreatedAt:    now,
			LastActivity: now,
			Preferences:  make(map[string]any),
		}
		m.sessions[id] = s
	}
	return s
}

func clone(s *models.Session) *models.Session {
	out := *s
	out.Turns = append([]models.Turn{}, s.Turns...)
	out.Recommendations = make([]models.RecommendationEntry, len(s.Recommendations))
	for i, r := range s.Recommendations {
		out.Recommendations[i] = models.RecommendationEntry{
			ItemIDs:   append([]string(nil), r.ItemIDs...),
			Timestamp: r.Timestamp,
		}
	}
	out.Preferences = make(map[string]any, len(s.Preferences))
	for k, v := range s.Preferences {
		out.Preferences[k] = v
	}
	return &out
}
