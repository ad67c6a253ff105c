package models

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"nutrimood/internal/apperr"
)

func TestSessionAnalytics(t *testing.T) {
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	sess := &Session{
		ID:           "abc",
		CreatedAt:    created,
		LastActivity: created.Add(20 * time.Minute),
		Turns: []Turn{
			{Role: RoleUser, Content: "hi", Timestamp: created.Add(time.Minute)},
			{Role: RoleAssistant, Content: "hello", Timestamp: created.Add(11 * time.Minute)},
		},
		Recommendations: []RecommendationEntry{{ItemIDs: []string{"D1", "D2"}}},
	}

	got := sess.Analytics("u1")
	want := SessionAnalytics{
		SessionID:            "abc",
		UserID:               "u1",
		TotalMessages:        2,
		TotalRecommendations: 2,
		DurationMinutes:      10,
		FirstMessageAt:       created.Add(time.Minute),
		LastMessageAt:        created.Add(11 * time.Minute),
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Analytics() = %+v, want %+v", got, want)
	}

	empty := (&Session{ID: "e", CreatedAt: created, LastActivity: created}).Analytics("")
	if empty.TotalMessages != 0 || !empty.FirstMessageAt.Equal(created) || empty.DurationMinutes != 0 {
		t.Errorf("empty Analytics() = %+v", empty)
	}
}

func TestFeedbackValidate(t *testing.T) {
	tests := []struct {
		name    string
		fb      Feedback
		wantErr bool
	}{
		{"valid", Feedback{ConversationID: "c1", Rating: 4}, false},
		{"missing conversation", Feedback{Rating: 4}, true},
		{"rating too low", Feedback{ConversationID: "c1", Rating: 0}, true},
		{"rating too high", Feedback{ConversationID: "c1", Rating: 6}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fb.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, apperr.ErrInvalidArgument) {
				t.Errorf("Validate() error = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestNewFeedbackStats(t *testing.T) {
	got := NewFeedbackStats(map[int]int{5: 2, 4: 1, 9: 3})
	want := FeedbackStats{
		TotalFeedback: 3,
		AverageRating: 4.67,
		Distribution:  map[string]int{"5_stars": 2, "4_stars": 1, "3_stars": 0, "2_stars": 0, "1_star": 0},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("NewFeedbackStats() = %+v, want %+v", got, want)
	}

	if empty := NewFeedbackStats(nil); empty.TotalFeedback != 0 || empty.AverageRating != 0 || empty.Distribution != nil {
		t.Errorf("NewFeedbackStats(nil) = %+v", empty)
	}
}
