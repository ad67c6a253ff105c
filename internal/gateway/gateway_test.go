package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"

	"nutrimood/internal/apperr"
	"nutrimood/internal/catalog"
	"nutrimood/internal/matching"
	"nutrimood/internal/models"
)

func ptr(v float64) *float64 { return &v }

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	cat, err := catalog.New([]models.Item{
		{ID: "P1", Name: "Peri Peri Fries", Description: "Crispy fries with peri peri spice", Category: "SNACKS", Calories: ptr(280), Dietary: []string{"vegetarian"}},
		{ID: "N1", Name: "Loaded Nachos", Description: "Corn chips with cheese and jalapenos", Category: "SNACKS", Calories: ptr(610), Dietary: []string{"vegetarian", "spicy"}},
		{ID: "D1", Name: "Fruit Salad", Description: "Fresh seasonal fruit", Category: "DESSERTS", Calories: ptr(150), Dietary: []string{"vegan", "sweet"}},
		{ID: "D2", Name: "Chocolate Lava Cake", Description: "Warm chocolate cake", Category: "DESSERTS", Calories: ptr(520), Dietary: []string{"vegetarian", "sweet"}},
		{ID: "B1", Name: "Masala Chai", Description: "Spiced milk tea", Category: "BEVERAGES", Dietary: []string{"vegetarian"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	store := catalog.NewStore(nil)
	store.Publish(cat)
	return New(store, matching.NewEngine(matching.DefaultWeights()), 5)
}

func resultIDs(items []models.ItemSummary) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestSearchFoods(t *testing.T) {
	g := newTestGateway(t)
	res, err := g.Call(context.Background(), "search_foods", map[string]any{
		"query":        "spicy snacks",
		"max_calories": 300.0,
	})
	if err != nil {
		t.Fatal(err)
	}
	search := res.(SearchResult)
	if got := resultIDs(search.Results); !reflect.DeepEqual(got, []string{"P1"}) {
		t.Errorf("results = %v, want [P1]", got)
	}
	if search.Count != 1 || search.Results[0].Rank != 1 {
		t.Errorf("unexpected search result %+v", search)
	}
}

func TestRecommendFoods(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	res, err := g.Call(ctx, "recommend_foods", map[string]any{
		"preferences": map[string]any{"mood": "sweet", "category": "DESSERTS"},
		"exclude_ids": []any{"D1"},
	})
	if err != nil {
		t.Fatal(err)
	}
	rec := res.(RecommendResult)
	if rec.Query != "sweet" {
		t.Errorf("Query = %q", rec.Query)
	}
	if got := resultIDs(rec.Recommendations); !reflect.DeepEqual(got, []string{"D2"}) {
		t.Errorf("recommendations = %v, want [D2]", got)
	}

	// No usable preference fields: eligible items in catalog order.
	res, err = g.Call(ctx, "recommend_foods", map[string]any{"preferences": map[string]any{}, "top_k": 2})
	if err != nil {
		t.Fatal(err)
	}
	if got := resultIDs(res.(RecommendResult).Recommendations); !reflect.DeepEqual(got, []string{"P1", "N1"}) {
		t.Errorf("recommendations = %v, want [P1 N1]", got)
	}
}

func TestPreferenceQuery(t *testing.T) {
	query, filter, err := PreferenceQuery(map[string]any{
		"taste":       "tangy",
		"mood":        "happy",
		"dietary":     []any{"vegan", "gluten-free"},
		"calorie_min": 100.0,
		"calorie_max": 400,
		"name":        "Sam",
	})
	if err != nil {
		t.Fatal(err)
	}
	if query != "happy vegan gluten-free tangy" {
		t.Errorf("query = %q", query)
	}
	if filter.MinCalories == nil || *filter.MinCalories != 100 || filter.MaxCalories == nil || *filter.MaxCalories != 400 {
		t.Errorf("filter = %+v", filter)
	}
}

func TestGetFoodByID(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	res, err := g.Call(ctx, "get_food_by_id", map[string]any{"food_id": "D1"})
	if err != nil {
		t.Fatal(err)
	}
	if res.(FoodResult).Food.Name != "Fruit Salad" {
		t.Errorf("food = %+v", res)
	}

	if _, err := g.Call(ctx, "get_food_by_id", map[string]any{"food_id": "ZZZ"}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown id: err = %v, want ErrNotFound", err)
	}
}

func TestCatalogTools(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	res, err := g.Call(ctx, "list_categories", nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.(CategoriesResult).Count != 3 {
		t.Errorf("categories = %+v", res)
	}

	res, err = g.Call(ctx, "get_food_statistics", map[string]any{})
	if err != nil {
		t.Fatal(err)
	}
	if stats := res.(models.Statistics); stats.TotalItems != 5 {
		t.Errorf("statistics = %+v", stats)
	}
}

func TestCallValidation(t *testing.T) {
	g := newTestGateway(t)
	tests := []struct {
		name string
		tool string
		args map[string]any
	}{
		{"missing query", "search_foods", map[string]any{}},
		{"query not a string", "search_foods", map[string]any{"query": 3.0}},
		{"zero top_k", "search_foods", map[string]any{"query": "fries", "top_k": 0.0}},
		{"fractional top_k", "search_foods", map[string]any{"query": "fries", "top_k": 1.5}},
		{"huge top_k", "search_foods", map[string]any{"query": "fries", "top_k": 1e20}},
		{"huge recommend top_k", "recommend_foods", map[string]any{"preferences": map[string]any{}, "top_k": 1e20}},
		{"unknown field", "search_foods", map[string]any{"query": "fries", "colour": "red"}},
		{"negative calories", "search_foods", map[string]any{"query": "fries", "min_calories": -1.0}},
		{"inverted calorie bounds", "search_foods", map[string]any{"query": "fries", "min_calories": 500.0, "max_calories": 100.0}},
		{"preferences not an object", "recommend_foods", map[string]any{"preferences": "sweet"}},
		{"non-string exclude id", "recommend_foods", map[string]any{"preferences": map[string]any{}, "exclude_ids": []any{1.0}}},
		{"bad calorie preference", "recommend_foods", map[string]any{"preferences": map[string]any{"calorie_max": "lots"}}},
		{"missing food id", "get_food_by_id", map[string]any{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := g.Call(context.Background(), tt.tool, tt.args); !errors.Is(err, apperr.ErrInvalidArgument) {
				t.Errorf("err = %v, want ErrInvalidArgument", err)
			}
		})
	}
}

func TestCallErrors(t *testing.T) {
	g := newTestGateway(t)
	if _, err := g.Call(context.Background(), "order_pizza", nil); !errors.Is(err, apperr.ErrUnknownTool) {
		t.Errorf("unknown tool: err = %v", err)
	}

	empty := New(catalog.NewStore(nil), matching.NewEngine(matching.DefaultWeights()), 0)
	if _, err := empty.Call(context.Background(), "list_categories", nil); !errors.Is(err, apperr.ErrNotReady) {
		t.Errorf("no catalog: err = %v", err)
	}
}

func TestToolDefinitions(t *testing.T) {
	g := newTestGateway(t)
	var names []string
	for _, tool := range g.Tools() {
		names = append(names, tool.Name)
		if tool.InputSchema.Type != protocol.Object {
			t.Errorf("%s schema type = %q", tool.Name, tool.InputSchema.Type)
		}
	}
	want := []string{"search_foods", "get_food_by_id", "list_categories", "get_food_statistics", "recommend_foods"}
	if !reflect.DeepEqual(names, want) {
		t.Errorf("tools = %v", names)
	}

	search := g.Tools()[0].InputSchema
	if !reflect.DeepEqual(search.Required, []string{"query"}) {
		t.Errorf("search_foods required = %v", search.Required)
	}
	if prop, ok := search.Properties["top_k"].(Property); !ok || prop.Type != "integer" || *prop.Maximum != maxTopK {
		t.Errorf("top_k property = %+v", search.Properties["top_k"])
	}
}

func TestResources(t *testing.T) {
	g := newTestGateway(t)
	ctx := context.Background()

	if got := len(g.Resources()); got != 3 {
		t.Errorf("resources = %d, want 3", got)
	}

	res, err := g.ReadResource(ctx, "categories")
	if err != nil {
		t.Fatal(err)
	}
	text := resourceText(t, res)
	if text.URI != "nutrimood://categories" || text.MimeType != "application/json" {
		t.Errorf("resource = %+v", text)
	}
	var categories []string
	if err := json.Unmarshal([]byte(text.Text), &categories); err != nil || len(categories) != 3 {
		t.Errorf("categories = %v, %v", categories, err)
	}

	res, err = g.ReadResource(ctx, "nutrimood://foods")
	if err != nil {
		t.Fatal(err)
	}
	var foods []models.Item
	if err := json.Unmarshal([]byte(resourceText(t, res).Text), &foods); err != nil || len(foods) != 5 {
		t.Errorf("foods resource = %d items, %v", len(foods), err)
	}

	if _, err := g.ReadResource(ctx, "nutrimood://orders"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown resource: err = %v", err)
	}
}

func resourceText(t *testing.T, res *protocol.ReadResourceResult) protocol.TextResourceContents {
	t.Helper()
	if len(res.Contents) != 1 {
		t.Fatalf("contents = %+v", res.Contents)
	}
	text, ok := res.Contents[0].(protocol.TextResourceContents)
	if !ok {
		t.Fatalf("content %T is not text", res.Contents[0])
	}
	return text
}

func promptText(t *testing.T, res *protocol.GetPromptResult) string {
	t.Helper()
	if len(res.Messages) != 1 || res.Messages[0].Role != protocol.RoleUser {
		t.Fatalf("messages = %+v", res.Messages)
	}
	content, ok := res.Messages[0].Content.(protocol.TextContent)
	if !ok {
		t.Fatalf("content %T is not text", res.Messages[0].Content)
	}
	return content.Text
}

func TestPrompts(t *testing.T) {
	g := newTestGateway(t)

	res, err := g.Prompt("meal_planning", map[string]string{"meal_type": "lunch", "dietary_restrictions": "no nuts"})
	if err != nil {
		t.Fatal(err)
	}
	text := promptText(t, res)
	if !strings.HasPrefix(text, "Help plan a lunch") || !strings.Contains(text, "no nuts") {
		t.Errorf("prompt = %q", text)
	}
	if res.Description == "" {
		t.Error("prompt result has no description")
	}

	if _, err := g.Prompt("meal_planning", nil); !errors.Is(err, apperr.ErrInvalidArgument) {
		t.Errorf("missing meal_type: err = %v", err)
	}
	if _, err := g.Prompt("haiku", nil); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("unknown prompt: err = %v", err)
	}

	res, err = g.Prompt("food_recommendation", map[string]string{"mood": "tired"})
	if err != nil {
		t.Fatal(err)
	}
	if text := promptText(t, res); !strings.Contains(text, "- User's mood: tired") || strings.Contains(text, "Calorie goal") {
		t.Errorf("prompt = %q", text)
	}
	if len(g.Prompts()) != 2 {
		t.Errorf("prompts = %+v", g.Prompts())
	}
}

func TestInfo(t *testing.T) {
	info := newTestGateway(t).Info()
	if info.ServerInfo.Name != ServerName || info.ProtocolVersion != protocol.Version || info.Capabilities.Tools == nil {
		t.Errorf("info = %+v", info)
	}
}
