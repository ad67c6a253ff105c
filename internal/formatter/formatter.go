// internal/formatter/formatter.go
package formatter

import (
	"fmt"
	"strconv"
	"strings"

	"nutrimood/internal/models"
)

const DefaultMaxChars = 2000

// Formatter renders candidates into a bounded prompt block.
type Formatter struct {
	maxChars int
}

func New(maxChars int) *Formatter {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Formatter{maxChars: maxChars}
}

// Format returns the prompt text and the full structured list. Lines are
// emitted in rank order until the next one would exceed the budget; that
// line and all later ones are dropped whole. The structured list is never
// truncated.
func (f *Formatter) Format(cands []models.MatchCandidate) (string, []models.ItemSummary) {
	var b strings.Builder
	items := make([]models.ItemSummary, 0, len(cands))
	full := false

	for i, c := range cands {
		items = append(items, Summary(c))
		if full {
			continue
		}

		line := Line(i+1, c.Item)
		size := len(line)
		if b.Len() > 0 {
			size++
		}
		if b.Len()+size > f.maxChars {
			full = true
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
	}
	return b.String(), items
}

// Line renders one candidate with the fixed template.
func Line(index int, item *models.Item) string {
	calories := "n/a"
	if item.Calories != nil {
		calories = strconv.FormatFloat(*item.Calories, 'f', -1, 64)
	}
	dietary := "no dietary tags"
	if len(item.Dietary) > 0 {
		dietary = strings.Join(item.Dietary, ", ")
	}
	return fmt.Sprintf("%d. %s [id: %s] | %s | %s kcal | %s",
		index, item.Name, item.ID, item.Category, calories, dietary)
}

func Summary(c models.MatchCandidate) models.ItemSummary {
	return models.ItemSummary{
		ID:          c.Item.ID,
		Name:        c.Item.Name,
		Description: c.Item.Description,
		Category:    c.Item.Category,
		Calories:    c.Item.Calories,
		Price:       c.Item.Price,
		Dietary:     c.Item.Dietary,
		Score:       c.Score,
		Rank:        c.Rank,
	}
}
