// internal/session/sessiontest/suite.go
package sessiontest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"nutrimood/internal/apperr"
	"nutrimood/internal/models"
	"nutrimood/internal/session"
)

// Factory builds an empty store that keeps at most maxHistory turns per session.
type Factory func(t *testing.T, maxHistory int) session.Store

// Run exercises the behaviour every session.Store implementation shares.
func Run(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("append and history", func(t *testing.T) {
		s := newStore(t, 50)
		for i := 0; i < 4; i++ {
			role := models.RoleUser
			if i%2 == 1 {
				role = models.RoleAssistant
			}
			if err := s.Append(ctx, "s1", models.Turn{Role: role, Content: fmt.Sprintf("m%d", i)}); err != nil {
				t.Fatal(err)
			}
		}

		all, err := s.History(ctx, "s1", 0)
		if err != nil {
			t.Fatal(err)
		}
		if len(all) != 4 || all[0].Content != "m0" || all[3].Content != "m3" || all[1].Role != models.RoleAssistant {
			t.Fatalf("History() = %+v", all)
		}
		if all[0].Timestamp.IsZero() {
			t.Error("Append() should stamp turns")
		}

		last, _ := s.History(ctx, "s1", 2)
		if len(last) != 2 || last[0].Content != "m2" {
			t.Errorf("History(limit 2) = %+v", last)
		}
	})

	t.Run("history is trimmed", func(t *testing.T) {
		s := newStore(t, 3)
		for i := 0; i < 5; i++ {
			if err := s.Append(ctx, "s1", models.Turn{Role: models.RoleUser, Content: fmt.Sprintf("m%d", i)}); err != nil {
				t.Fatal(err)
			}
		}
		turns, _ := s.History(ctx, "s1", 0)
		if len(turns) != 3 || turns[0].Content != "m2" {
			t.Errorf("History() after trim = %+v", turns)
		}
	})

	t.Run("unknown session", func(t *testing.T) {
		s := newStore(t, 50)
		turns, err := s.History(ctx, "nope", 0)
		if err != nil || len(turns) != 0 {
			t.Errorf("History(unknown) = %v, %v", turns, err)
		}
		if _, err := s.Get(ctx, "nope"); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("Get(unknown) err = %v", err)
		}
		deleted, err := s.Delete(ctx, "nope")
		if err != nil || deleted {
			t.Errorf("Delete(unknown) = %v, %v", deleted, err)
		}
	})

	t.Run("get or create", func(t *testing.T) {
		s := newStore(t, 50)
		created, err := s.GetOrCreate(ctx, "s1")
		if err != nil {
			t.Fatal(err)
		}
		if created.ID != "s1" || len(created.Turns) != 0 || created.Preferences == nil {
			t.Errorf("GetOrCreate() = %+v", created)
		}
		if _, err := s.GetOrCreate(ctx, " "); !errors.Is(err, apperr.ErrInvalidArgument) {
			t.Errorf("GetOrCreate(blank) err = %v", err)
		}
		if n, _ := s.Count(ctx); n != 1 {
			t.Errorf("Count() = %d, want 1", n)
		}
	})

	t.Run("recommendations and preferences", func(t *testing.T) {
		s := newStore(t, 50)
		if err := s.AddRecommendations(ctx, "s1", []string{"A1", "A2"}); err != nil {
			t.Fatal(err)
		}
		if err := s.AddRecommendations(ctx, "s1", nil); err != nil {
			t.Fatal(err)
		}
		if err := s.UpdatePreferences(ctx, "s1", map[string]any{"name": "Sam", "mood": "tired"}); err != nil {
			t.Fatal(err)
		}
		if err := s.UpdatePreferences(ctx, "s1", map[string]any{"mood": "happy"}); err != nil {
			t.Fatal(err)
		}

		got, err := s.Get(ctx, "s1")
		if err != nil {
			t.Fatal(err)
		}
		if ids := got.LastRecommendation(); len(ids) != 2 || ids[0] != "A1" {
			t.Errorf("LastRecommendation() = %v", ids)
		}
		if got.Preferences["name"] != "Sam" || got.Preferences["mood"] != "happy" {
			t.Errorf("Preferences = %v", got.Preferences)
		}
		if stats := got.Stats(); stats.RecommendationsCount != 2 {
			t.Errorf("Stats() = %+v", stats)
		}
	})

	t.Run("delete", func(t *testing.T) {
		s := newStore(t, 50)
		_ = s.Append(ctx, "s1", models.Turn{Role: models.RoleUser, Content: "hi"})
		deleted, err := s.Delete(ctx, "s1")
		if err != nil || !deleted {
			t.Fatalf("Delete() = %v, %v", deleted, err)
		}
		if turns, _ := s.History(ctx, "s1", 0); len(turns) != 0 {
			t.Errorf("history survived delete: %+v", turns)
		}
	})

	t.Run("sweep", func(t *testing.T) {
		s := newStore(t, 50)
		_ = s.Append(ctx, "old", models.Turn{Role: models.RoleUser, Content: "hi"})

		if n, err := s.Sweep(ctx, time.Hour); err != nil || n != 0 {
			t.Fatalf("Sweep(1h) = %d, %v", n, err)
		}
		time.Sleep(20 * time.Millisecond)
		if n, err := s.Sweep(ctx, 5*time.Millisecond); err != nil || n != 1 {
			t.Fatalf("Sweep(5ms) = %d, %v", n, err)
		}
		if _, err := s.Get(ctx, "old"); !errors.Is(err, apperr.ErrNotFound) {
			t.Errorf("swept session still present: %v", err)
		}
	})

	t.Run("concurrent appends", func(t *testing.T) {
		s := newStore(t, 500)
		var wg sync.WaitGroup
		for g := 0; g < 8; g++ {
			wg.Add(1)
			go func(g int) {
				defer wg.Done()
				for i := 0; i < 10; i++ {
					if err := s.Append(ctx, "shared", models.Turn{Role: models.RoleUser, Content: fmt.Sprintf("%d-%d", g, i)}); err != nil {
						t.Error(err)
						return
					}
				}
			}(g)
		}
		wg.Wait()
		turns, _ := s.History(ctx, "shared", 0)
		if len(turns) != 80 {
			t.Errorf("History() has %d turns, want 80", len(turns))
		}
	})
}
