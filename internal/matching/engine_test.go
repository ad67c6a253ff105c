package matching

import (
	"errors"
	"reflect"
	"testing"

	"nutrimood/internal/apperr"
	"nutrimood/internal/catalog"
	"nutrimood/internal/models"
)

func ptr(v float64) *float64 { return &v }

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New([]models.Item{
		{ID: "P1", Name: "Peri Peri Fries", Description: "Crispy fries with peri peri spice", Category: "SNACKS", Calories: ptr(280), Dietary: []string{"vegetarian"}},
		{ID: "N1", Name: "Loaded Nachos", Description: "Corn chips with cheese and jalapenos", Category: "SNACKS", Calories: ptr(610), Dietary: []string{"vegetarian", "spicy"}},
		{ID: "D1", Name: "Fruit Salad", Description: "Fresh seasonal fruit", Category: "DESSERTS", Calories: ptr(150), Dietary: []string{"vegan", "sweet"}},
		{ID: "D2", Name: "Chocolate Lava Cake", Description: "Warm chocolate cake", Category: "DESSERTS", Calories: ptr(520), Dietary: []string{"vegetarian", "sweet"}},
		{ID: "B1", Name: "Masala Chai", Description: "Spiced milk tea", Category: "BEVERAGES", Dietary: []string{"vegetarian"}},
		{ID: "W1", Name: "Grilled Chicken Wrap", Description: "Chicken wrap with mint mayo", Category: "WRAPS", Calories: ptr(390),
			Dietary: []string{"high-protein"}, Ingredients: []string{"chicken", "tortilla"}, Macronutrients: map[string]string{"protein": "28g"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func candidateIDs(cands []models.MatchCandidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.Item.ID
	}
	return out
}

func TestMatch(t *testing.T) {
	cat := testCatalog(t)
	engine := NewEngine(DefaultWeights())

	tests := []struct {
		name    string
		query   Query
		want    []string
		wantTop float64
	}{
		{
			name:    "category match under calorie cap",
			query:   Query{Text: "spicy snacks", Filter: models.Filter{MaxCalories: ptr(300)}, TopK: 5},
			want:    []string{"P1"},
			wantTop: 7,
		},
		{
			name:    "dietary tag and category, ties keep catalog order",
			query:   Query{Text: "sweet dessert", TopK: 5},
			want:    []string{"D1", "D2"},
			wantTop: 8,
		},
		{
			name:    "empty request falls back to catalog order",
			query:   Query{TopK: 2},
			want:    []string{"P1", "N1"},
			wantTop: 0,
		},
		{
			name:    "filter only never returns items without calories",
			query:   Query{Text: "anything", Filter: models.Filter{MaxCalories: ptr(300)}, TopK: 5},
			want:    []string{"P1", "D1"},
			wantTop: 2,
		},
		{
			name:    "dietary tag and macronutrient",
			query:   Query{Text: "protein", TopK: 5},
			want:    []string{"W1"},
			wantTop: 4,
		},
		{
			name:    "name, category and description",
			query:   Query{Text: "wrap", TopK: 5},
			want:    []string{"W1"},
			wantTop: 19,
		},
		{
			name:    "calorie target from query text",
			query:   Query{Text: "dessert under 200 calories", TopK: 5},
			want:    []string{"D1", "D2", "P1"},
			wantTop: 7,
		},
		{
			name:    "excluded ids are skipped",
			query:   Query{Text: "dessert", Filter: models.Filter{ExcludeIDs: []string{"D1"}}, TopK: 5},
			want:    []string{"D2"},
			wantTop: 5,
		},
		{
			name:    "required dietary tag",
			query:   Query{Filter: models.Filter{Dietary: []string{"VEGAN"}}, TopK: 5},
			want:    []string{"D1"},
			wantTop: 0,
		},
		{
			name:    "keywordless filter keeps every eligible item in catalog order",
			query:   Query{Filter: models.Filter{Dietary: []string{"vegetarian"}}, TopK: 10},
			want:    []string{"P1", "N1", "D2", "B1"},
			wantTop: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := engine.Match(cat, tt.query)
			if err != nil {
				t.Fatalf("Match() error = %v", err)
			}
			if ids := candidateIDs(got); !reflect.DeepEqual(ids, tt.want) {
				t.Fatalf("Match() = %v, want %v", ids, tt.want)
			}
			if got[0].Score != tt.wantTop {
				t.Errorf("top score = %v, want %v", got[0].Score, tt.wantTop)
			}
			for i, c := range got {
				if c.Rank != i+1 {
					t.Errorf("candidate %d has rank %d", i, c.Rank)
				}
				if i > 0 && c.Score > got[i-1].Score {
					t.Errorf("scores not descending at %d", i)
				}
			}
		})
	}
}

func TestMatchUsesRecentUserTurns(t *testing.T) {
	cat := testCatalog(t)
	engine := NewEngine(DefaultWeights())

	history := []models.Turn{
		{Role: models.RoleUser, Content: "craving dessert"},
		{Role: models.RoleAssistant, Content: "Try the Peri Peri Fries"},
	}
	got, err := engine.Match(cat, Query{Text: "something else", History: history, TopK: 5})
	if err != nil {
		t.Fatal(err)
	}
	if ids := candidateIDs(got); !reflect.DeepEqual(ids, []string{"D1", "D2"}) {
		t.Errorf("Match() = %v, want dessert items only", ids)
	}

	old := []models.Turn{
		{Role: models.RoleUser, Content: "dessert"},
		{Role: models.RoleUser, Content: "hi"},
		{Role: models.RoleUser, Content: "ok"},
		{Role: models.RoleUser, Content: "hello"},
	}
	got, _ = engine.Match(cat, Query{Text: "wrap", History: old, TopK: 5})
	if ids := candidateIDs(got); !reflect.DeepEqual(ids, []string{"W1"}) {
		t.Errorf("turns older than the window leaked in: %v", ids)
	}
}

func TestMatchIsDeterministic(t *testing.T) {
	cat := testCatalog(t)
	engine := NewEngine(DefaultWeights())
	q := Query{Text: "spicy vegetarian snacks with cheese", TopK: 4}

	first, err := engine.Match(cat, q)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 10; i++ {
		again, _ := engine.Match(cat, q)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d differs: %v vs %v", i, candidateIDs(first), candidateIDs(again))
		}
	}
}

func TestMatchRespectsFilter(t *testing.T) {
	cat := testCatalog(t)
	engine := NewEngine(DefaultWeights())

	got, err := engine.Match(cat, Query{Text: "spicy snacks chocolate", Filter: models.Filter{MinCalories: ptr(300), MaxCalories: ptr(600)}, TopK: 10})
	if err != nil {
		t.Fatal(err)
	}
	for _, c := range got {
		if c.Item.Calories == nil || *c.Item.Calories < 300 || *c.Item.Calories > 600 {
			t.Errorf("%s violates calorie bounds", c.Item.ID)
		}
	}
}

func TestMatchErrors(t *testing.T) {
	cat := testCatalog(t)
	engine := NewEngine(DefaultWeights())

	if _, err := engine.Match(nil, Query{TopK: 1}); !errors.Is(err, apperr.ErrNotReady) {
		t.Errorf("nil catalog: err = %v", err)
	}
	if _, err := engine.Match(cat, Query{TopK: 0}); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("top_k 0: err = %v", err)
	}
	bad := models.Filter{MinCalories: ptr(500), MaxCalories: ptr(100)}
	if _, err := engine.Match(cat, Query{Text: "fries", Filter: bad, TopK: 3}); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("min > max: err = %v", err)
	}
}

func TestCustomWeights(t *testing.T) {
	cat := testCatalog(t)
	w := DefaultWeights()
	w.Category = 0
	engine := NewEngine(w)

	got, err := engine.Match(cat, Query{Text: "snacks", TopK: 5})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("category weight 0 should leave nothing, got %v", candidateIDs(got))
	}
}

func TestNameContainsKeyword(t *testing.T) {
	cat, err := catalog.New([]models.Item{
		{ID: "C1", Name: "Cheesecake", Category: "DESSERTS", Calories: ptr(450)},
		{ID: "C2", Name: "Cheeseburger", Category: "BURGERS", Calories: ptr(700)},
		{ID: "C3", Name: "Paneer Tikka", Category: "STARTERS", Calories: ptr(300)},
	})
	if err != nil {
		t.Fatal(err)
	}
	engine := NewEngine(DefaultWeights())

	tests := []struct {
		query   string
		want    []string
		wantTop float64
	}{
		{"cake", []string{"C1"}, 10},
		{"burger", []string{"C2"}, 15},
		{"cheese", []string{"C1", "C2"}, 10},
		{"tikka", []string{"C3"}, 10},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := engine.Match(cat, Query{Text: tt.query, TopK: 5})
			if err != nil {
				t.Fatal(err)
			}
			if ids := candidateIDs(got); !reflect.DeepEqual(ids, tt.want) {
				t.Fatalf("Match(%q) = %v, want %v", tt.query, ids, tt.want)
			}
			if got[0].Score != tt.wantTop {
				t.Errorf("top score = %v, want %v", got[0].Score, tt.wantTop)
			}
		})
	}
}

func TestNegativeHistoryTurnsIgnoresHistory(t *testing.T) {
	cat := testCatalog(t)
	w := DefaultWeights()
	w.HistoryTurns = -1
	engine := NewEngine(w)

	history := []models.Turn{{Role: models.RoleUser, Content: "dessert"}}
	got, err := engine.Match(cat, Query{Text: "wrap", History: history, TopK: 5})
	if err != nil {
		t.Fatal(err)
	}
	if ids := candidateIDs(got); !reflect.DeepEqual(ids, []string{"W1"}) {
		t.Errorf("Match() = %v, want [W1]", ids)
	}
}

func TestPopularItemsLeadForSpecials(t *testing.T) {
	cat, err := catalog.New([]models.Item{
		{ID: "T1", Name: "Plain Tea", Category: "BEVERAGES", Calories: ptr(90)},
		{ID: "T2", Name: "Special Tea", Category: "BEVERAGES", Calories: ptr(110), Popular: true},
		{ID: "K1", Name: "Khara Bun", Category: "BAKERY", Calories: ptr(260), Popular: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	engine := NewEngine(DefaultWeights())

	got, err := engine.Match(cat, Query{Text: "what are your famous items", TopK: 5})
	if err != nil {
		t.Fatal(err)
	}
	if ids := candidateIDs(got); !reflect.DeepEqual(ids, []string{"T2", "K1"}) {
		t.Errorf("Match() = %v, want popular items only", ids)
	}

	got, _ = engine.Match(cat, Query{Text: "must-try tea", TopK: 5})
	if ids := candidateIDs(got); !reflect.DeepEqual(ids, []string{"T2", "T1", "K1"}) {
		t.Errorf("Match() = %v, want popular tea first", ids)
	}
	if got[0].Score != 15 {
		t.Errorf("popular tea score = %v, want 15", got[0].Score)
	}

	got, _ = engine.Match(cat, Query{Text: "tea", TopK: 5})
	if ids := candidateIDs(got); !reflect.DeepEqual(ids, []string{"T1", "T2"}) {
		t.Errorf("Match() = %v, want no boost without asking", ids)
	}
}

func TestWeightsValidate(t *testing.T) {
	if err := DefaultWeights().Validate(); err != nil {
		t.Fatalf("default weights rejected: %v", err)
	}
	bad := []func(*Weights){
		func(w *Weights) { w.Name = -1 },
		func(w *Weights) { w.HistoryTurns = -1 },
		func(w *Weights) { w.ElsewherePerKeyword = -2 },
		func(w *Weights) { w.CalorieTolerance = -5 },
	}
	for i, mutate := range bad {
		w := DefaultWeights()
		mutate(&w)
		if err := w.Validate(); !errors.Is(err, apperr.ErrInvalidArgument) {
			t.Errorf("case %d: Validate() = %v, want invalid argument", i, err)
		}
	}
}

func TestKeywords(t *testing.T) {
	got := Keywords("I want something SPICY, spicy and crunchy!")
	want := []string{"spicy", "crunchy"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Keywords() = %v, want %v", got, want)
	}
	if stem("fries") != "fry" || stem("snacks") != "snack" || stem("glass") != "glass" {
		t.Error("stem() folded plurals incorrectly")
	}
}
