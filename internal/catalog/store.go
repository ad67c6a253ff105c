// internal/catalog/store.go
package catalog

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"nutrimood/internal/apperr"
	"nutrimood/internal/observability"
)

// Store publishes the current snapshot. Readers never observe a partially
// loaded catalog: a reload builds a complete snapshot and swaps the pointer.
type Store struct {
	current atomic.Pointer[Catalog]
	source  Source
	reload  sync.Mutex
}

func NewStore(src Source) *Store {
	return &Store{source: src}
}

// Current returns the published snapshot or ErrNotReady.
func (s *Store) Current() (*Catalog, error) {
	c := s.current.Load()
	if c == nil {
		return nil, apperr.ErrNotReady
	}
	return c, nil
}

// Reload fetches the source and publishes the new snapshot. On failure the
// previous snapshot stays in place.
func (s *Store) Reload(ctx context.Context) (*Catalog, error) {
	s.reload.Lock()
	defer s.reload.Unlock()

	if s.source == nil {
		return nil, apperr.DataLoad("no catalog source configured")
	}

	c, err := LoadSource(ctx, s.source)
	if err != nil {
		observability.FromContext(ctx).Error("catalog reload failed",
			zap.String("source", s.source.String()), zap.Error(err))
		return nil, err
	}

	s.current.Store(c)
	observability.FromContext(ctx).Info("catalog loaded",
		zap.String("source", s.source.String()),
		zap.Int("items", c.Len()),
		zap.Int("categories", len(c.categories)))
	return c, nil
}

// Publish swaps in an already built snapshot.
func (s *Store) Publish(c *Catalog) {
	s.current.Store(c)
}
