// internal/catalog/catalog.go
package catalog

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"nutrimood/internal/apperr"
	"nutrimood/internal/models"
)

// Catalog is an immutable, validated snapshot of the menu. Every accessor is
// safe for concurrent use because nothing mutates a snapshot after New.
type Catalog struct {
	items      []*models.Item
	byID       map[string]*models.Item
	categories []string
	stats      models.Statistics
	loadedAt   time.Time
}

// Load decodes raw source bytes into a snapshot.
func Load(data []byte) (*Catalog, error) {
	items, err := decodeItems(data)
	if err != nil {
		return nil, err
	}
	return New(items)
}

// LoadSource fetches and decodes the source.
func LoadSource(ctx context.Context, src Source) (*Catalog, error) {
	data, err := src.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	return Load(data)
}

// New validates items and builds the lookup tables and cached aggregates.
func New(items []models.Item) (*Catalog, error) {
	c := &Catalog{
		items:    make([]*models.Item, 0, len(items)),
		byID:     make(map[string]*models.Item, len(items)),
		loadedAt: time.Now().UTC(),
	}

	for i := range items {
		item := items[i]
		if err := validate(&item); err != nil {
			return nil, err
		}
		if _, dup := c.byID[item.ID]; dup {
			return nil, apperr.DataLoad("duplicate item id %q", item.ID)
		}
		c.items = append(c.items, &item)
		c.byID[item.ID] = &item
	}

	c.categories, c.stats = aggregate(c.items)
	return c, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func validate(item *models.Item) error {
	switch {
	case item.ID == "":
		return apperr.DataLoad("item %q has no id", item.Name)
	case item.Name == "":
		return apperr.DataLoad("item %q has no name", item.ID)
	case item.Category == "":
		return apperr.DataLoad("item %q has no category", item.ID)
	case item.Calories != nil && !finite(*item.Calories):
		return apperr.DataLoad("item %q has non-finite calories", item.ID)
	case item.Calories != nil && *item.Calories < 0:
		return apperr.DataLoad("item %q has negative calories", item.ID)
	case !finite(item.Price):
		return apperr.DataLoad("item %q has non-finite price", item.ID)
	case item.Price < 0:
		return apperr.DataLoad("item %q has negative price", item.ID)
	}
	return nil
}

func aggregate(items []*models.Item) ([]string, models.Statistics) {
	perCategory := make(map[string]int)
	var calorieSum float64
	var withCalories int

	for _, item := range items {
		perCategory[item.Category]++
		if item.Calories != nil {
			calorieSum += *item.Calories
			withCalories++
		}
	}

	categories := make([]string, 0, len(perCategory))
	for name := range perCategory {
		categories = append(categories, name)
	}
	sort.Strings(categories)

	stats := models.Statistics{
		TotalItems:       len(items),
		CategoryCount:    len(categories),
		Categories:       categories,
		PerCategoryCount: perCategory,
	}
	if withCalories > 0 {
		stats.AverageCalories = math.Round(calorieSum/float64(withCalories)*100) / 100
	}
	return categories, stats
}

// Items returns every item in insertion order. Callers must not modify the slice.
func (c *Catalog) Items() []*models.Item {
	return c.items
}

func (c *Catalog) Len() int {
	return len(c.items)
}

func (c *Catalog) LoadedAt() time.Time {
	return c.loadedAt
}

// GetByID returns the item with the given identifier.
func (c *Catalog) GetByID(id string) (*models.Item, bool) {
	item, ok := c.byID[strings.TrimSpace(id)]
	return item, ok
}

// List returns the filtered items in insertion order, paginated, together
// with the number of items that matched before pagination.
func (c *Catalog) List(filter models.Filter, limit, offset int) ([]*models.Item, int, error) {
	if limit <= 0 {
		return nil, 0, apperr.Invalid("limit must be positive, got %d", limit)
	}
	if offset < 0 {
		return nil, 0, apperr.Invalid("offset must not be negative, got %d", offset)
	}
	if err := filter.Validate(); err != nil {
		return nil, 0, err
	}

	excluded := filter.ExcludeSet()
	var matched []*models.Item
	for _, item := range c.items {
		if filter.Allows(item, excluded) {
			matched = append(matched, item)
		}
	}

	total := len(matched)
	if offset >= total {
		return []*models.Item{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

// Categories returns the distinct category labels, sorted.
func (c *Catalog) Categories() []string {
	out := make([]string, len(c.categories))
	copy(out, c.categories)
	return out
}

// Statistics returns the aggregates computed at load time.
func (c *Catalog) Statistics() models.Statistics {
	stats := c.stats
	stats.Categories = c.Categories()
	stats.PerCategoryCount = make(map[string]int, len(c.stats.PerCategoryCount))
	for k, v := range c.stats.PerCategoryCount {
		stats.PerCategoryCount[k] = v
	}
	return stats
}
