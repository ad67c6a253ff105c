// internal/matching/engine.go
package matching

import (
	"math"
	"sort"
	"strings"

	"nutrimood/internal/apperr"
	"nutrimood/internal/catalog"
	"nutrimood/internal/models"
)

// Weights are the additive scoring contributions. Validate rejects negative
// values so scores never drop below zero.
type Weights struct {
	Name                float64 `yaml:"name"`
	Category            float64 `yaml:"category"`
	Description         float64 `yaml:"description"`
	Dietary             float64 `yaml:"dietary"`
	Elsewhere           float64 `yaml:"elsewhere"`
	ElsewherePerKeyword int     `yaml:"elsewhere_per_keyword"`
	ElsewhereCap        float64 `yaml:"elsewhere_cap"`
	Calorie             float64 `yaml:"calorie"`
	CalorieTolerance    float64 `yaml:"calorie_tolerance"`
	HistoryTurns        int     `yaml:"history_turns"`
	Popular             float64 `yaml:"popular"`
}

func (w Weights) Validate() error {
	fields := []struct {
		name  string
		value float64
	}{
		{"name", w.Name},
		{"category", w.Category},
		{"description", w.Description},
		{"dietary", w.Dietary},
		{"elsewhere", w.Elsewhere},
		{"elsewhere_per_keyword", float64(w.ElsewherePerKeyword)},
		{"elsewhere_cap", w.ElsewhereCap},
		{"calorie", w.Calorie},
		{"calorie_tolerance", w.CalorieTolerance},
		{"history_turns", float64(w.HistoryTurns)},
		{"popular", w.Popular},
	}
	for _, f := range fields {
		if f.value < 0 || math.IsNaN(f.value) || math.IsInf(f.value, 0) {
			return apperr.Invalid("matching weight %s must be a non-negative number, got %v", f.name, f.value)
		}
	}
	return nil
}

func DefaultWeights() Weights {
	return Weights{
		Name:                10,
		Category:            5,
		Description:         4,
		Dietary:             3,
		Elsewhere:           1,
		ElsewherePerKeyword: 2,
		ElsewhereCap:        6,
		Calorie:             2,
		CalorieTolerance:    100,
		HistoryTurns:        3,
		Popular:             5,
	}
}

// dietarySynonyms widens a keyword to the tags it implies.
var dietarySynonyms = map[string][]string{
	"healthy":    {"low-calorie", "vegan", "vegetarian", "high-protein", "gluten-free", "healthy"},
	"light":      {"low-calorie"},
	"junk":       {"fried", "cheesy", "indulgent"},
	"spicy":      {"spicy", "hot"},
	"hot":        {"spicy"},
	"sweet":      {"sweet", "dessert"},
	"protein":    {"high-protein"},
	"vegetarian": {"vegetarian", "vegan"},
	"veg":        {"vegetarian", "vegan"},
	"veggie":     {"vegetarian", "vegan"},
	"vegan":      {"vegan", "plant-based"},
}

// Query is one matching request.
type Query struct {
	Text    string
	History []models.Turn
	Filter  models.Filter
	TopK    int
}

// Engine ranks catalog items against a query. It holds no per-request state.
type Engine struct {
	weights Weights
}

func NewEngine(w Weights) *Engine {
	return &Engine{weights: w}
}

func (e *Engine) Weights() Weights {
	return e.weights
}

// Match returns at most q.TopK candidates in descending score order, ties
// kept in catalog order. Items scoring zero are dropped unless the query and
// recent user turns yield no keywords at all, in which case every item the
// filter allows is kept in catalog order (an empty filter gives the first
// TopK catalog items).
func (e *Engine) Match(cat *catalog.Catalog, q Query) ([]models.MatchCandidate, error) {
	if cat == nil {
		return nil, apperr.ErrNotReady
	}
	if q.TopK <= 0 {
		return nil, apperr.Invalid("top_k must be positive, got %d", q.TopK)
	}
	if err := q.Filter.Validate(); err != nil {
		return nil, err
	}

	keywords := e.keywords(q.Text, q.History)
	target, hasTarget := calorieTarget(q.Text, q.Filter)
	popular := asksForPopular(q.Text)
	excluded := q.Filter.ExcludeSet()

	var out []models.MatchCandidate
	for _, item := range cat.Items() {
		if !q.Filter.Allows(item, excluded) {
			continue
		}
		score := e.score(item, keywords, target, hasTarget)
		if popular && item.Popular {
			score += e.weights.Popular
		}
		if score <= 0 && len(keywords) > 0 {
			continue
		}
		out = append(out, models.MatchCandidate{Item: item, Score: score})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	if len(out) > q.TopK {
		out = out[:q.TopK]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, nil
}

// keywords stems the query keywords and appends those of recent user turns.
func (e *Engine) keywords(text string, history []models.Turn) []string {
	var out []string
	seen := make(map[string]struct{})
	add := func(words []string) {
		for _, w := range words {
			s := stem(w)
			if _, dup := seen[s]; dup {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}

	add(Keywords(text))

	turns := e.weights.HistoryTurns
	if turns < 0 {
		turns = 0
	}
	start := len(history) - turns
	if start < 0 {
		start = 0
	}
	for _, turn := range history[start:] {
		if turn.Role == models.RoleUser {
			add(Keywords(turn.Content))
		}
	}
	return out
}

func (e *Engine) score(item *models.Item, keywords []string, target float64, hasTarget bool) float64 {
	w := e.weights
	var score float64

	if len(keywords) > 0 {
		name := stems(item.Name)
		normalizedName := normalize(item.Name)
		category := stems(item.Category)
		description := stems(item.Description)
		elsewhere := elsewhereTokens(item)

		var nameHit, categoryHit, descriptionHit bool
		var extra float64
		for _, kw := range keywords {
			nameHit = nameHit || nameMatches(kw, name, normalizedName)
			categoryHit = categoryHit || matches(kw, category)
			descriptionHit = descriptionHit || matches(kw, description)
			if dietaryMatch(kw, item.Dietary) {
				score += w.Dietary
			}
			if n := occurrences(kw, elsewhere); n > 0 {
				if n > w.ElsewherePerKeyword {
					n = w.ElsewherePerKeyword
				}
				extra += float64(n) * w.Elsewhere
			}
		}

		if nameHit {
			score += w.Name
		}
		if categoryHit {
			score += w.Category
		}
		if descriptionHit {
			score += w.Description
		}
		score += math.Min(extra, w.ElsewhereCap)
	}

	if hasTarget && item.Calories != nil && math.Abs(*item.Calories-target) <= w.CalorieTolerance {
		score += w.Calorie
	}
	return score
}

func elsewhereTokens(item *models.Item) []string {
	out := stems(item.SubCategory)
	for _, ing := range item.Ingredients {
		out = append(out, stems(ing)...)
	}
	for k, v := range item.Macronutrients {
		out = append(out, stems(k+" "+v)...)
	}
	return out
}

func dietaryMatch(kw string, tags []string) bool {
	for _, tag := range tags {
		if matches(kw, stems(tag)) {
			return true
		}
		for _, syn := range dietarySynonyms[kw] {
			if strings.EqualFold(tag, syn) {
				return true
			}
		}
	}
	return false
}

// calorieTarget prefers an explicit number in the query, then the filter
// bounds: their midpoint, or whichever single bound is set.
func calorieTarget(text string, f models.Filter) (float64, bool) {
	if v, ok := inferCalories(text); ok {
		return v, true
	}
	switch {
	case f.MinCalories != nil && f.MaxCalories != nil:
		return (*f.MinCalories + *f.MaxCalories) / 2, true
	case f.MaxCalories != nil:
		return *f.MaxCalories, true
	case f.MinCalories != nil:
		return *f.MinCalories, true
	}
	return 0, false
}
