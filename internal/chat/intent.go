// internal/chat/intent.go
package chat

import (
	"strings"

	"nutrimood/internal/llm"
	"nutrimood/internal/matching"
)

var greetings = map[string]struct{}{
	"hi": {}, "hii": {}, "hiii": {}, "hello": {}, "helo": {}, "hey": {}, "yo": {},
	"good morning": {}, "good evening": {}, "good afternoon": {},
}

var referenceWords = map[string]struct{}{
	"it": {}, "these": {}, "those": {}, "them": {}, "that": {}, "this": {}, "which": {},
	"they": {}, "their": {},
}

var followUpPhrases = []string{
	"calorie", "nutrient", "health", "protein", "benefit", "ingredient", "price",
	"cost", "how much", "what about", "tell me", "more about", "which one", "compare",
}

var detailPhrases = []string{
	"detail", "explain", "compare", "tell me more", "all options", "breakdown", "difference",
}

const followUpMaxWords = 8

// classify decides how the reply should be framed. Follow-ups need a prior
// recommendation to refer to.
func classify(message string, hasPrevious bool) llm.Intent {
	lower := strings.ToLower(strings.TrimSpace(message))
	bare := strings.TrimRight(lower, "!.? ")
	if _, ok := greetings[bare]; ok {
		return llm.IntentGreeting
	}
	if hasPrevious && isFollowUp(lower) {
		return llm.IntentFollowUp
	}
	for _, p := range detailPhrases {
		if strings.Contains(lower, p) {
			return llm.IntentDetail
		}
	}
	return llm.IntentRecommend
}

// isFollowUp reports a short question that refers back to earlier items
// without asking for anything new on the menu.
func isFollowUp(lower string) bool {
	words := strings.Fields(lower)
	if len(words) == 0 || len(words) > followUpMaxWords {
		return false
	}

	referent := false
	for _, w := range words {
		if _, ok := referenceWords[strings.Trim(w, "?!.,")]; ok {
			referent = true
			break
		}
	}
	if !referent {
		for _, p := range followUpPhrases {
			if strings.Contains(lower, p) {
				referent = true
				break
			}
		}
	}
	if !referent {
		return false
	}

	// "what about something spicy" names new content, so it is a fresh request.
	for _, kw := range matching.Keywords(lower) {
		if !isFollowUpVocabulary(kw) {
			return false
		}
	}
	return true
}

func isFollowUpVocabulary(word string) bool {
	if _, ok := referenceWords[word]; ok {
		return true
	}
	for _, p := range followUpPhrases {
		if strings.HasPrefix(word, p) || strings.HasPrefix(p, word) {
			return true
		}
	}
	switch word {
	case "else", "one", "ones", "many", "healthy", "good", "cost", "costs", "price", "prices":
		return true
	}
	return false
}
