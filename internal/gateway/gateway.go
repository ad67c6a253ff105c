// internal/gateway/gateway.go
package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"
	"go.uber.org/zap"

	"nutrimood/internal/apperr"
	"nutrimood/internal/catalog"
	"nutrimood/internal/formatter"
	"nutrimood/internal/matching"
	"nutrimood/internal/models"
	"nutrimood/internal/observability"
)

const (
	ServerName      = "nutrimood-food-mcp"
	ServerVersion   = "1.0.0"
	ProtocolVersion = protocol.Version

	resourceScheme   = "nutrimood://"
	resourceFoodsCap = 100
)

// preferenceQueryFields are combined, in this order, into the synthetic
// query used by recommend_foods.
var preferenceQueryFields = []string{"mood", "dietary", "cuisine", "craving", "taste"}

// maxTopK bounds top_k so oversized requests fail validation instead of
// overflowing int.
const maxTopK = 1000

// Gateway is the structured tool surface over the catalog and matching engine.
type Gateway struct {
	catalogs    *catalog.Store
	engine      *matching.Engine
	defaultTopK int
	tools       []tool
	byName      map[string]int
}

func New(catalogs *catalog.Store, engine *matching.Engine, defaultTopK int) *Gateway {
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	g := &Gateway{
		catalogs:    catalogs,
		engine:      engine,
		defaultTopK: defaultTopK,
	}
	g.tools = g.defineTools()
	g.byName = make(map[string]int, len(g.tools))
	for i, t := range g.tools {
		g.byName[t.name] = i
	}
	return g
}

func (g *Gateway) defineTools() []tool {
	topK := Property{
		Type:        "integer",
		Description: "Number of results to return",
		Minimum:     bound(1),
		Maximum:     bound(maxTopK),
		Default:     g.defaultTopK,
	}
	return []tool{
		{
			name:        "search_foods",
			description: "Search for food items based on query and filters",
			properties: map[string]Property{
				"query":        {Type: "string", Description: "Search query for food items"},
				"category":     {Type: "string", Description: "Filter by category (optional)"},
				"min_calories": {Type: "number", Description: "Minimum calories per item (optional)", Minimum: bound(0)},
				"max_calories": {Type: "number", Description: "Maximum calories per item (optional)", Minimum: bound(0)},
				"dietary":      {Type: "string", Description: "Dietary tag the item must carry (optional)"},
				"top_k":        topK,
			},
			required: []string{"query"},
			handler:  g.searchFoods,
		},
		{
			name:        "get_food_by_id",
			description: "Get detailed information about a specific food item",
			properties: map[string]Property{
				"food_id": {Type: "string", Description: "Unique identifier for the food item"},
			},
			required: []string{"food_id"},
			handler:  g.getFoodByID,
		},
		{
			name:        "list_categories",
			description: "List all available food categories",
			properties:  map[string]Property{},
			handler:     g.listCategories,
		},
		{
			name:        "get_food_statistics",
			description: "Get statistics about the food catalog",
			properties:  map[string]Property{},
			handler:     g.foodStatistics,
		},
		{
			name:        "recommend_foods",
			description: "Get personalized food recommendations based on preferences",
			properties: map[string]Property{
				"preferences": {Type: "object", Description: "mood, dietary, cuisine, craving, taste, calorie_min, calorie_max, category"},
				"exclude_ids": {Type: "array", Description: "Food IDs to exclude from recommendations", Items: &Property{Type: "string"}},
				"top_k":       topK,
			},
			required: []string{"preferences"},
			handler:  g.recommendFoods,
		},
	}
}

// Tools lists the tool definitions in a stable order.
func (g *Gateway) Tools() []*protocol.Tool {
	out := make([]*protocol.Tool, len(g.tools))
	for i, t := range g.tools {
		out[i] = t.definition()
	}
	return out
}

// Call validates args against the named tool's schema and runs it.
func (g *Gateway) Call(ctx context.Context, name string, args map[string]any) (any, error) {
	idx, ok := g.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperr.ErrUnknownTool, name)
	}
	t := g.tools[idx]
	if args == nil {
		args = map[string]any{}
	}
	if err := t.validate(args); err != nil {
		return nil, err
	}

	cat, err := g.catalogs.Current()
	if err != nil {
		return nil, err
	}

	result, err := t.handler(ctx, cat, args)
	if err != nil {
		observability.FromContext(ctx).Debug("tool call failed", zap.String("tool", name), zap.Error(err))
		return nil, err
	}
	return result, nil
}

type SearchResult struct {
	Query   string               `json:"query"`
	Count   int                  `json:"count"`
	Results []models.ItemSummary `json:"results"`
}

type FoodResult struct {
	Food *models.Item `json:"food"`
}

type CategoriesResult struct {
	Categories []string `json:"categories"`
	Count      int      `json:"count"`
}

type RecommendResult struct {
	Preferences     map[string]any       `json:"preferences"`
	Query           string               `json:"query"`
	Count           int                  `json:"count"`
	Recommendations []models.ItemSummary `json:"recommendations"`
}

func (g *Gateway) searchFoods(ctx context.Context, cat *catalog.Catalog, args map[string]any) (any, error) {
	query, _ := args["query"].(string)
	filter := models.Filter{}
	filter.Category, _ = args["category"].(string)
	if v, ok := args["min_calories"]; ok && v != nil {
		n, _ := toFloat(v)
		filter.MinCalories = &n
	}
	if v, ok := args["max_calories"]; ok && v != nil {
		n, _ := toFloat(v)
		filter.MaxCalories = &n
	}
	if tag, _ := args["dietary"].(string); tag != "" {
		filter.Dietary = []string{tag}
	}

	cands, err := g.engine.Match(cat, matching.Query{Text: query, Filter: filter, TopK: g.topK(args)})
	if err != nil {
		return nil, err
	}
	results := summaries(cands)
	return SearchResult{Query: query, Count: len(results), Results: results}, nil
}

func (g *Gateway) getFoodByID(ctx context.Context, cat *catalog.Catalog, args map[string]any) (any, error) {
	id, _ := args["food_id"].(string)
	item, ok := cat.GetByID(id)
	if !ok {
		return nil, apperr.NotFound("food %q", id)
	}
	return FoodResult{Food: item}, nil
}

func (g *Gateway) listCategories(ctx context.Context, cat *catalog.Catalog, args map[string]any) (any, error) {
	categories := cat.Categories()
	return CategoriesResult{Categories: categories, Count: len(categories)}, nil
}

func (g *Gateway) foodStatistics(ctx context.Context, cat *catalog.Catalog, args map[string]any) (any, error) {
	return cat.Statistics(), nil
}

func (g *Gateway) recommendFoods(ctx context.Context, cat *catalog.Catalog, args map[string]any) (any, error) {
	prefs, _ := args["preferences"].(map[string]any)
	query, filter, err := PreferenceQuery(prefs)
	if err != nil {
		return nil, err
	}
	if v, ok := args["exclude_ids"]; ok && v != nil {
		list, _ := toSlice(v)
		for _, id := range list {
			filter.ExcludeIDs = append(filter.ExcludeIDs, id.(string))
		}
	}

	cands, err := g.engine.Match(cat, matching.Query{Text: query, Filter: filter, TopK: g.topK(args)})
	if err != nil {
		return nil, err
	}
	results := summaries(cands)
	return RecommendResult{Preferences: prefs, Query: query, Count: len(results), Recommendations: results}, nil
}

// PreferenceQuery turns a preference map into a synthetic query string and
// a filter. Preference values may be strings or lists of strings.
func PreferenceQuery(prefs map[string]any) (string, models.Filter, error) {
	var parts []string
	for _, key := range preferenceQueryFields {
		v, ok := prefs[key]
		if !ok || v == nil {
			continue
		}
		text, err := preferenceText(key, v)
		if err != nil {
			return "", models.Filter{}, err
		}
		if text != "" {
			parts = append(parts, text)
		}
	}

	var filter models.Filter
	for key, dst := range map[string]**float64{"calorie_min": &filter.MinCalories, "calorie_max": &filter.MaxCalories} {
		v, ok := prefs[key]
		if !ok || v == nil {
			continue
		}
		n, ok := toFloat(v)
		if !ok {
			return "", models.Filter{}, apperr.Invalid("preference %q must be a number", key)
		}
		*dst = &n
	}
	if v, ok := prefs["category"]; ok && v != nil {
		category, ok := v.(string)
		if !ok {
			return "", models.Filter{}, apperr.Invalid("preference %q must be a string", "category")
		}
		filter.Category = category
	}
	return strings.Join(parts, " "), filter, nil
}

func preferenceText(key string, v any) (string, error) {
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s), nil
	}
	list, ok := toSlice(v)
	if !ok {
		return "", apperr.Invalid("preference %q must be a string or a list of strings", key)
	}
	words := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := item.(string)
		if !ok {
			return "", apperr.Invalid("preference %q must be a string or a list of strings", key)
		}
		words = append(words, s)
	}
	return strings.Join(words, " "), nil
}

// topK reads a top_k that validate already bounded to [1, maxTopK].
func (g *Gateway) topK(args map[string]any) int {
	if n, ok := toFloat(args["top_k"]); ok && n >= 1 && n <= maxTopK {
		return int(n)
	}
	return g.defaultTopK
}

func summaries(cands []models.MatchCandidate) []models.ItemSummary {
	out := make([]models.ItemSummary, 0, len(cands))
	for _, c := range cands {
		out = append(out, formatter.Summary(c))
	}
	return out
}
