// internal/matching/tokenize.go
package matching

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "or": {}, "the": {}, "i": {}, "im": {}, "me": {}, "my": {},
	"we": {}, "you": {}, "your": {}, "it": {}, "is": {}, "are": {}, "am": {}, "be": {},
	"to": {}, "of": {}, "in": {}, "on": {}, "at": {}, "for": {}, "with": {}, "from": {},
	"some": {}, "something": {}, "anything": {}, "any": {}, "want": {}, "wanna": {},
	"like": {}, "would": {}, "could": {}, "can": {}, "please": {}, "give": {}, "show": {},
	"get": {}, "have": {}, "has": {}, "what": {}, "which": {}, "that": {}, "this": {},
	"these": {}, "those": {}, "do": {}, "does": {}, "need": {}, "feel": {}, "feeling": {},
	"food": {}, "foods": {}, "eat": {}, "recommend": {}, "suggest": {}, "today": {},
	"now": {}, "hi": {}, "hello": {}, "hey": {}, "thanks": {}, "ok": {}, "about": {},
	"more": {}, "tell": {}, "much": {}, "how": {}, "under": {}, "below": {}, "less": {},
	"than": {}, "over": {}, "above": {}, "cal": {}, "cals": {}, "kcal": {}, "calorie": {},
	"calories": {}, "item": {}, "items": {}, "menu": {}, "also": {}, "maybe": {}, "up": {},
}

var (
	calorieAmount = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:kcal|k?cals?\b|calories\b|calorie\b)`)
	calorieBound  = regexp.MustCompile(`(?:under|below|less than|max(?:imum)?|up to|upto|around|about)\s+(\d+(?:\.\d+)?)`)
)

// tokens splits text into lowercase letter/digit runs.
func tokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Keywords returns the de-duplicated content words of text in first-seen order.
func Keywords(text string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, tok := range tokens(text) {
		if len([]rune(tok)) < 2 {
			continue
		}
		if _, skip := stopwords[tok]; skip {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// stem folds simple English plurals so "snacks" meets "snack" and "fries" meets "fry".
func stem(word string) string {
	n := len(word)
	switch {
	case n > 4 && strings.HasSuffix(word, "ies"):
		return word[:n-3] + "y"
	case n > 3 && strings.HasSuffix(word, "s") && !strings.HasSuffix(word, "ss"):
		return word[:n-1]
	}
	return word
}

func stems(text string) []string {
	toks := tokens(text)
	for i, t := range toks {
		toks[i] = stem(t)
	}
	return toks
}

// minPrefixRunes is the shortest keyword allowed to match as a token prefix.
const minPrefixRunes = 4

// matches reports whether the stemmed keyword equals one of the stemmed field
// tokens, or prefixes one when the keyword is long enough to be distinctive.
func matches(kw string, field []string) bool {
	return occurrences(kw, field) > 0
}

// nameMatches also accepts a keyword anywhere inside the normalized name, so
// "cake" meets "Cheesecake".
func nameMatches(kw string, nameTokens []string, normalizedName string) bool {
	return strings.Contains(normalizedName, kw) || matches(kw, nameTokens)
}

// normalize lowercases text and collapses non letter/digit runs to one space.
func normalize(text string) string {
	return strings.Join(tokens(text), " ")
}

func occurrences(kw string, field []string) int {
	n := 0
	for _, tok := range field {
		if tok == kw || (utf8.RuneCountInString(kw) >= minPrefixRunes && strings.HasPrefix(tok, kw)) {
			n++
		}
	}
	return n
}

var popularWords = map[string]struct{}{
	"special": {}, "signature": {}, "popular": {}, "famous": {}, "bestseller": {},
}

// asksForPopular reports whether the text asks for the house favourites,
// e.g. "your specials" or "something must-try".
func asksForPopular(text string) bool {
	for _, tok := range stems(text) {
		if _, ok := popularWords[tok]; ok {
			return true
		}
	}
	return strings.Contains(normalize(text), "must try")
}

// inferCalories reads a numeric calorie target from the query text, e.g.
// "350 kcal" or "under 400".
func inferCalories(text string) (float64, bool) {
	lower := strings.ToLower(text)
	for _, re := range []*regexp.Regexp{calorieAmount, calorieBound} {
		if m := re.FindStringSubmatch(lower); m != nil {
			if v, err := strconv.ParseFloat(m[1], 64); err == nil {
				return v, true
			}
		}
	}
	return 0, false
}
