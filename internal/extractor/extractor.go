// internal/extractor/extractor.go
package extractor

import (
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"nutrimood/internal/models"
)

var parenthetical = regexp.MustCompile(`\s*\([^)]*\)\s*$`)

// Extract returns the identifiers of candidates that the generated text
// refers to, in order of first appearance. A candidate is referenced by its
// identifier or by its name, with or without a trailing parenthetical such
// as "(6 Pcs)". Failing that, two of its significant name words, or its
// longest name word when no other candidate shares it, also count. Only
// candidate identifiers are ever returned.
func Extract(text string, cands []models.MatchCandidate) []string {
	if text == "" || len(cands) == 0 {
		return []string{}
	}
	haystack := " " + normalize(text) + " "

	type hit struct {
		id   string
		pos  int
		rank int
	}
	var hits []hit
	seen := make(map[string]struct{})
	shared := wordOwners(cands)

	for i, c := range cands {
		if c.Item == nil {
			continue
		}
		if _, dup := seen[c.Item.ID]; dup {
			continue
		}
		pos := -1
		for _, form := range forms(c.Item) {
			if p := strings.Index(haystack, " "+form+" "); p >= 0 && (pos < 0 || p < pos) {
				pos = p
			}
		}
		if pos < 0 {
			pos = wordMention(haystack, significantWords(c.Item.Name), shared)
		}
		if pos < 0 {
			continue
		}
		seen[c.Item.ID] = struct{}{}
		hits = append(hits, hit{id: c.Item.ID, pos: pos, rank: i})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].pos != hits[j].pos {
			return hits[i].pos < hits[j].pos
		}
		return hits[i].rank < hits[j].rank
	})

	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.id
	}
	return out
}

// forms lists the normalized strings that count as a mention of item.
func forms(item *models.Item) []string {
	var out []string
	add := func(s string) {
		if n := normalize(s); n != "" {
			for _, existing := range out {
				if existing == n {
					return
				}
			}
			out = append(out, n)
		}
	}
	add(item.ID)
	add(item.Name)
	add(parenthetical.ReplaceAllString(item.Name, ""))
	return out
}

// minSignificantRunes is the shortest name word that counts on its own.
const minSignificantRunes = 4

// significantWords returns the name words, parenthetical dropped, longer than
// three runes.
func significantWords(name string) []string {
	var out []string
	for _, w := range strings.Fields(normalize(parenthetical.ReplaceAllString(name, ""))) {
		if utf8.RuneCountInString(w) >= minSignificantRunes {
			out = append(out, w)
		}
	}
	return out
}

// wordOwners counts how many candidates use each significant name word.
func wordOwners(cands []models.MatchCandidate) map[string]int {
	owners := make(map[string]int)
	for _, c := range cands {
		if c.Item == nil {
			continue
		}
		words := make(map[string]struct{})
		for _, w := range significantWords(c.Item.Name) {
			words[w] = struct{}{}
		}
		for w := range words {
			owners[w]++
		}
	}
	return owners
}

// wordMention finds a looser reference to a name: at least two of its
// significant words, or one of its longest words (over four runes) that
// belongs to this candidate alone. It returns the earliest position, or -1.
func wordMention(haystack string, words []string, owners map[string]int) int {
	pos, found := -1, 0
	for _, w := range words {
		if p := strings.Index(haystack, " "+w+" "); p >= 0 {
			found++
			if pos < 0 || p < pos {
				pos = p
			}
		}
	}
	if len(words) >= 2 && found >= 2 {
		return pos
	}

	longest := 0
	for _, w := range words {
		longest = max(longest, utf8.RuneCountInString(w))
	}
	if longest <= minSignificantRunes {
		return -1
	}
	pos = -1
	for _, w := range words {
		if utf8.RuneCountInString(w) != longest || owners[w] > 1 {
			continue
		}
		if p := strings.Index(haystack, " "+w+" "); p >= 0 && (pos < 0 || p < pos) {
			pos = p
		}
	}
	return pos
}

// normalize lowercases and collapses every run of non letters/digits into a
// single space so punctuation and hyphenation differences do not matter.
func normalize(s string) string {
	return strings.Join(strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}), " ")
}
