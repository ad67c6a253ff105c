// internal/models/food.go
package models

import (
	"strings"
	"time"

	"nutrimood/internal/apperr"
)

// Item is one validated catalog entry. Items are immutable once loaded.
type Item struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Description    string            `json:"description"`
	Category       string            `json:"category"`
	SubCategory    string            `json:"sub_category,omitempty"`
	Calories       *float64          `json:"calories,omitempty"`
	Price          float64           `json:"price"`
	Macronutrients map[string]string `json:"macronutrients,omitempty"`
	Dietary        []string          `json:"dietary"`
	Ingredients    []string          `json:"ingredients,omitempty"`
	Popular        bool              `json:"popular,omitempty"`
}

// HasDietary reports whether the item carries the tag, ignoring case.
func (i *Item) HasDietary(tag string) bool {
	for _, d := range i.Dietary {
		if strings.EqualFold(d, tag) {
			return true
		}
	}
	return false
}

// MatchCandidate is an item with its relevance score for one request.
type MatchCandidate struct {
	Item  *Item   `json:"item"`
	Score float64 `json:"score"`
	Rank  int     `json:"rank"`
}

// Filter narrows eligible items before scoring. Zero value means no constraint.
type Filter struct {
	Category    string   `json:"category,omitempty"`
	MinCalories *float64 `json:"min_calories,omitempty"`
	MaxCalories *float64 `json:"max_calories,omitempty"`
	Dietary     []string `json:"dietary,omitempty"`
	ExcludeIDs  []string `json:"exclude_ids,omitempty"`
}

// Validate rejects contradictory or negative calorie bounds.
func (f Filter) Validate() error {
	if f.MinCalories != nil && *f.MinCalories < 0 {
		return apperr.Invalid("min_calories must not be negative")
	}
	if f.MaxCalories != nil && *f.MaxCalories < 0 {
		return apperr.Invalid("max_calories must not be negative")
	}
	if f.MinCalories != nil && f.MaxCalories != nil && *f.MinCalories > *f.MaxCalories {
		return apperr.Invalid("min_calories %.0f exceeds max_calories %.0f", *f.MinCalories, *f.MaxCalories)
	}
	return nil
}

// Allows reports whether the item passes every constraint of the filter.
// Items without a calorie value never pass a calorie bound.
func (f Filter) Allows(item *Item, excluded map[string]struct{}) bool {
	if _, skip := excluded[item.ID]; skip {
		return false
	}
	if f.Category != "" && !strings.EqualFold(item.Category, f.Category) {
		return false
	}
	if f.MinCalories != nil || f.MaxCalories != nil {
		if item.Calories == nil {
			return false
		}
		if f.MinCalories != nil && *item.Calories < *f.MinCalories {
			return false
		}
		if f.MaxCalories != nil && *item.Calories > *f.MaxCalories {
			return false
		}
	}
	for _, tag := range f.Dietary {
		if !item.HasDietary(tag) {
			return false
		}
	}
	return true
}

// ExcludeSet builds a lookup of excluded identifiers.
func (f Filter) ExcludeSet() map[string]struct{} {
	set := make(map[string]struct{}, len(f.ExcludeIDs))
	for _, id := range f.ExcludeIDs {
		set[id] = struct{}{}
	}
	return set
}

// ItemSummary is the structured per-candidate record returned to protocol clients.
type ItemSummary struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Calories    *float64 `json:"calories,omitempty"`
	Price       float64  `json:"price"`
	Dietary     []string `json:"dietary"`
	Score       float64  `json:"score"`
	Rank        int      `json:"rank"`
}

// Statistics summarises a catalog snapshot.
type Statistics struct {
	TotalItems       int            `json:"total_items"`
	CategoryCount    int            `json:"category_count"`
	Categories       []string       `json:"categories"`
	AverageCalories  float64        `json:"average_calories"`
	PerCategoryCount map[string]int `json:"category_distribution"`
}

// ConversationRecord is one completed chat exchange kept for analytics.
type ConversationRecord struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"session_id"`
	UserID          string    `json:"user_id,omitempty"`
	UserMessage     string    `json:"user_message"`
	BotResponse     string    `json:"bot_response"`
	Recommendations []string  `json:"recommendations"`
	ResponseTimeMS  int64     `json:"response_time_ms"`
	Backend         string    `json:"backend"`
	CreatedAt       time.Time `json:"created_at"`
}
