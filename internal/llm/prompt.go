// internal/llm/prompt.go
package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

const historyTurns = 6

const noMatches = "No matching menu items were found for this request."

// BuildSystemPrompt returns the assistant persona and menu rules.
func BuildSystemPrompt() string {
	return `You are NutriMood, the friendly food guide of this restaurant.

Personality:
- Warm, enthusiastic and helpful, like a friend who loves food.
- Conversational everyday language, contractions welcome, one or two emojis at most.
- No asterisk actions and no placeholders such as [Name].

Menu rules:
1. Only recommend items listed under AVAILABLE MENU ITEMS.
2. Use the exact item names as they appear in that list.
3. Never invent dishes, prices or nutrition facts.

Context:
- When the guest says "these", "those", "them", "it" or "that" they mean the items you recommended last.
- Answer questions about earlier recommendations instead of suggesting new items.

Length: greetings 40-50 words, recommendations 50-70 words, detailed comparisons up to 100 words.`
}

// BuildUserPrompt lays out history, guest details, menu block, request and
// per-intent instructions.
func BuildUserPrompt(req Request) string {
	var parts []string

	if len(req.History) > 0 {
		parts = append(parts, "=== CONVERSATION HISTORY ===")
		history := req.History
		if len(history) > historyTurns {
			history = history[len(history)-historyTurns:]
		}
		for _, t := range history {
			parts = append(parts, fmt.Sprintf("%s: %s", capitalize(string(t.Role)), t.Content))
		}
		parts = append(parts, "")
	}

	if req.CustomerName != "" {
		parts = append(parts,
			"=== CUSTOMER INFO ===",
			"Customer name: "+req.CustomerName,
			"(Use their name naturally when it fits)",
			"")
	}

	if prefs := preferencesWithoutName(req.Preferences); len(prefs) > 0 {
		encoded, err := json.MarshalIndent(prefs, "", "  ")
		if err == nil {
			parts = append(parts, "=== USER PREFERENCES ===", string(encoded), "")
		}
	}

	menu := req.ContextBlock
	if strings.TrimSpace(menu) == "" {
		menu = noMatches
	}
	parts = append(parts,
		"=== AVAILABLE MENU ITEMS ===", menu, "",
		"=== CURRENT USER REQUEST ===", fmt.Sprintf("%q", req.UserMessage), "",
		"=== INSTRUCTIONS FOR THIS RESPONSE ===")
	parts = append(parts, instructions(req)...)

	return strings.Join(parts, "\n")
}

func instructions(req Request) []string {
	switch req.Intent {
	case IntentGreeting:
		who := "them"
		if req.CustomerName != "" {
			who = req.CustomerName
		}
		return []string{
			fmt.Sprintf("- This is a GREETING: welcome %s warmly and ask what they are craving.", who),
			"- Keep it to 40-50 words.",
		}
	case IntentFollowUp:
		return []string{
			"- This is a FOLLOW-UP about items you already recommended.",
			"- Answer about those items only; do not suggest new ones unless asked.",
			"- Keep it to 40-60 words.",
		}
	case IntentDetail:
		return []string{
			"- This needs a DETAILED answer: recommend 1-3 items with good descriptions.",
			"- Up to 100 words.",
		}
	default:
		return []string{
			"- This is a FOOD RECOMMENDATION request: suggest 2-3 items from the menu above.",
			"- Use exact item names with a short appetising description.",
			"- Keep it to 50-70 words.",
		}
	}
}

func preferencesWithoutName(prefs map[string]any) map[string]any {
	out := make(map[string]any, len(prefs))
	for k, v := range prefs {
		if k == "name" || k == "user_id" {
			continue
		}
		out[k] = v
	}
	return out
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
