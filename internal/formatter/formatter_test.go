package formatter

import (
	"strings"
	"testing"

	"nutrimood/internal/models"
)

func ptr(v float64) *float64 { return &v }

func candidates() []models.MatchCandidate {
	items := []*models.Item{
		{ID: "P1", Name: "Peri Peri Fries", Category: "SNACKS", Calories: ptr(280), Dietary: []string{"vegetarian", "spicy"}},
		{ID: "D1", Name: "Fruit Salad", Category: "DESSERTS", Calories: ptr(150.5), Dietary: []string{"vegan"}},
		{ID: "B1", Name: "Masala Chai", Category: "BEVERAGES"},
	}
	out := make([]models.MatchCandidate, len(items))
	for i, item := range items {
		out[i] = models.MatchCandidate{Item: item, Score: float64(10 - i), Rank: i + 1}
	}
	return out
}

func TestFormatFitsBudget(t *testing.T) {
	text, items := New(0).Format(candidates())

	want := strings.Join([]string{
		"1. Peri Peri Fries [id: P1] | SNACKS | 280 kcal | vegetarian, spicy",
		"2. Fruit Salad [id: D1] | DESSERTS | 150.5 kcal | vegan",
		"3. Masala Chai [id: B1] | BEVERAGES | n/a kcal | no dietary tags",
	}, "\n")
	if text != want {
		t.Errorf("Format() text =\n%s\nwant\n%s", text, want)
	}
	if len(items) != 3 || items[1].ID != "D1" || items[1].Rank != 2 {
		t.Errorf("structured list = %+v", items)
	}
}

func TestFormatDropsWholeTrailingLines(t *testing.T) {
	cands := candidates()
	first := Line(1, cands[0].Item)
	second := Line(2, cands[1].Item)

	text, items := New(len(first) + 1 + len(second) + 5).Format(cands)
	if text != first+"\n"+second {
		t.Errorf("Format() text = %q", text)
	}
	if len(items) != 3 {
		t.Errorf("structured list truncated to %d", len(items))
	}

	text, _ = New(len(first) - 1).Format(cands)
	if text != "" {
		t.Errorf("line larger than the budget must be dropped, got %q", text)
	}
	if strings.Contains(text, "Peri") {
		t.Error("partial line emitted")
	}
}

func TestFormatEmpty(t *testing.T) {
	text, items := New(100).Format(nil)
	if text != "" || len(items) != 0 {
		t.Errorf("Format(nil) = %q, %v", text, items)
	}
}
