package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"nutrimood/internal/models"
)

func TestPostgresRecorder(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set; skipping postgres integration test")
	}
	ctx := context.Background()

	r, err := NewPostgresRecorder(ctx, dsn)
	if err != nil {
		t.Fatalf("NewPostgresRecorder() error = %v", err)
	}
	defer r.Close()

	sessionID := "test-" + uuid.NewString()
	err = r.RecordConversation(ctx, models.ConversationRecord{
		SessionID:       sessionID,
		UserMessage:     "sweet dessert",
		BotResponse:     "Try the Fruit Salad",
		Recommendations: []string{"D1"},
		ResponseTimeMS:  12,
		Backend:         "mock",
	})
	if err != nil {
		t.Fatal(err)
	}

	recs, err := r.ListConversations(ctx, sessionID, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 || recs[0].Recommendations[0] != "D1" {
		t.Fatalf("ListConversations() = %+v", recs)
	}

	now := time.Now().UTC()
	err = r.UpdateSessionAnalytics(ctx, models.SessionAnalytics{
		SessionID: sessionID, TotalMessages: 2, TotalRecommendations: 1,
		FirstMessageAt: now, LastMessageAt: now,
	})
	if err != nil {
		t.Fatal(err)
	}
	a, err := r.SessionAnalytics(ctx, sessionID)
	if err != nil || a.TotalMessages != 2 {
		t.Fatalf("SessionAnalytics() = %+v, %v", a, err)
	}

	if _, err := r.RecordFeedback(ctx, models.Feedback{ConversationID: recs[0].ID, UserID: sessionID, Rating: 4}); err != nil {
		t.Fatal(err)
	}
	stats, err := r.FeedbackStats(ctx, sessionID)
	if err != nil || stats.TotalFeedback != 1 || stats.AverageRating != 4 {
		t.Fatalf("FeedbackStats() = %+v, %v", stats, err)
	}
}

func TestNewPostgresRecorderRejectsEmptyDSN(t *testing.T) {
	if _, err := NewPostgresRecorder(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}
