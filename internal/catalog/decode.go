// internal/catalog/decode.go
package catalog

import (
	"bytes"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"nutrimood/internal/apperr"
	"nutrimood/internal/models"
)

// Accepted spellings per field. The first group entry is the canonical name,
// the rest come from the kiosk menu export.
var (
	idFields          = []string{"id", "Id", "ID", "food_id"}
	nameFields        = []string{"name", "ProductName", "product_name"}
	descriptionFields = []string{"description", "Description"}
	categoryFields    = []string{"category", "KioskCategoryName", "kiosk_category_name"}
	subCategoryFields = []string{"sub_category", "SubCategoryName", "subcategory"}
	caloriesFields    = []string{"calories", "Calories"}
	priceFields       = []string{"price", "Price"}
	macroFields       = []string{"macronutrients", "Macronutrients"}
	dietaryFields     = []string{"dietary", "Dietary", "dietary_tags"}
	ingredientFields  = []string{"ingredients", "Ingredients"}
	popularFields     = []string{"popular", "isPopular", "IsPopular"}
)

var quotedToken = regexp.MustCompile(`"([^"]+)"`)

// decodeItems coerces the loosely structured source records into items.
// The source is either a JSON array of records or an object holding one
// under "items" or "foods".
func decodeItems(data []byte) ([]models.Item, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, apperr.DataLoad("catalog source is empty")
	}
	if !gjson.ValidBytes(data) {
		return nil, apperr.DataLoad("catalog source is not valid JSON")
	}

	root := gjson.ParseBytes(data)
	records := root
	if root.IsObject() {
		records = firstOf(root, "items", "foods")
	}
	if !records.IsArray() {
		return nil, apperr.DataLoad("catalog source must be a JSON array of records")
	}

	var items []models.Item
	for idx, rec := range records.Array() {
		if !rec.IsObject() {
			return nil, apperr.DataLoad("record %d is not an object", idx)
		}
		item, err := decodeItem(rec)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", idx, err)
		}
		items = append(items, item)
	}
	return items, nil
}

func decodeItem(rec gjson.Result) (models.Item, error) {
	item := models.Item{
		ID:          text(rec, idFields),
		Name:        text(rec, nameFields),
		Description: text(rec, descriptionFields),
		Category:    text(rec, categoryFields),
		SubCategory: text(rec, subCategoryFields),
		Dietary:     stringList(firstOf(rec, dietaryFields...)),
		Ingredients: stringList(firstOf(rec, ingredientFields...)),
		Popular:     firstOf(rec, popularFields...).Bool(),
	}

	calories, err := number(firstOf(rec, caloriesFields...))
	if err != nil {
		return item, apperr.DataLoad("calories: %v", err)
	}
	item.Calories = calories

	price, err := number(firstOf(rec, priceFields...))
	if err != nil {
		return item, apperr.DataLoad("price: %v", err)
	}
	if price != nil {
		item.Price = *price
	}

	item.Macronutrients = stringMap(firstOf(rec, macroFields...))
	if item.Dietary == nil {
		item.Dietary = []string{}
	}
	return item, nil
}

func firstOf(rec gjson.Result, names ...string) gjson.Result {
	for _, name := range names {
		if r := rec.Get(name); r.Exists() && r.Type != gjson.Null {
			return r
		}
	}
	return gjson.Result{}
}

func text(rec gjson.Result, names []string) string {
	return strings.TrimSpace(firstOf(rec, names...).String())
}

// number accepts JSON numbers and finite numeric strings. Empty, "null" and
// "n/a" strings count as absent.
func number(r gjson.Result) (*float64, error) {
	switch r.Type {
	case gjson.Number:
		v := r.Float()
		return &v, nil
	case gjson.String:
		s := strings.TrimSpace(r.Str)
		switch strings.ToLower(s) {
		case "", "null", "n/a", "na", "none":
			return nil, nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%q is not a finite number", s)
		}
		return &v, nil
	case gjson.Null:
		return nil, nil
	default:
		if !r.Exists() {
			return nil, nil
		}
		return nil, fmt.Errorf("unexpected value %s", r.Raw)
	}
}

// stringList reads a JSON array or a string that encodes one. Encoded arrays
// with a trailing comma fall back to collecting the quoted tokens.
func stringList(r gjson.Result) []string {
	if !r.Exists() {
		return nil
	}
	if r.IsArray() {
		return collect(r.Array())
	}
	if r.Type != gjson.String {
		return nil
	}

	s := strings.TrimSpace(r.Str)
	if s == "" {
		return nil
	}
	if strings.HasPrefix(s, "[") {
		if gjson.Valid(s) {
			return collect(gjson.Parse(s).Array())
		}
		var out []string
		for _, m := range quotedToken.FindAllStringSubmatch(s, -1) {
			if v := strings.TrimSpace(m[1]); v != "" {
				out = append(out, v)
			}
		}
		return out
	}

	var out []string
	for _, part := range strings.Split(s, ",") {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func collect(values []gjson.Result) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if s := strings.TrimSpace(v.String()); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// stringMap reads a JSON object or a string that encodes one.
func stringMap(r gjson.Result) map[string]string {
	if r.Type == gjson.String {
		s := strings.TrimSpace(r.Str)
		if !strings.HasPrefix(s, "{") || !gjson.Valid(s) {
			return nil
		}
		r = gjson.Parse(s)
	}
	if !r.IsObject() {
		return nil
	}

	out := make(map[string]string)
	r.ForEach(func(key, value gjson.Result) bool {
		out[key.String()] = strings.TrimSpace(value.String())
		return true
	})
	return out
}
