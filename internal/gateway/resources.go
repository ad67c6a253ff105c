// internal/gateway/resources.go
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"

	"nutrimood/internal/apperr"
	"nutrimood/internal/models"
)

const jsonMime = "application/json"

var resources = []protocol.Resource{
	{URI: resourceScheme + "foods", Name: "All Foods", Description: "The food catalog, first 100 items", MimeType: jsonMime},
	{URI: resourceScheme + "categories", Name: "Food Categories", Description: "List of all food categories", MimeType: jsonMime},
	{URI: resourceScheme + "statistics", Name: "Catalog Statistics", Description: "Statistics about the food catalog", MimeType: jsonMime},
}

var prompts = []protocol.Prompt{
	{
		Name:        "food_recommendation",
		Description: "Generate a food recommendation based on user preferences",
		Arguments: []protocol.PromptArgument{
			{Name: "mood", Description: "User's current mood"},
			{Name: "dietary_preference", Description: "Dietary preference (vegetarian, vegan, etc.)"},
			{Name: "calorie_goal", Description: "Target calorie range"},
		},
	},
	{
		Name:        "meal_planning",
		Description: "Help plan meals for specific requirements",
		Arguments: []protocol.PromptArgument{
			{Name: "meal_type", Description: "Type of meal (breakfast, lunch, dinner, snack)", Required: true},
			{Name: "dietary_restrictions", Description: "Any dietary restrictions"},
		},
	},
}

// Info is the initialize handshake answer: server identity and capabilities.
func (g *Gateway) Info() *protocol.InitializeResult {
	return protocol.NewInitializeResult(
		protocol.Implementation{Name: ServerName, Version: ServerVersion},
		protocol.ServerCapabilities{
			Prompts:   &protocol.PromptsCapability{},
			Resources: &protocol.ResourcesCapability{},
			Tools:     &protocol.ToolsCapability{},
		},
		"Food catalog search and mood-based recommendations.",
	)
}

func (g *Gateway) Resources() []protocol.Resource {
	out := make([]protocol.Resource, len(resources))
	copy(out, resources)
	return out
}

// ReadResource accepts either the full URI or its bare name ("foods") and
// returns the resource as JSON text.
func (g *Gateway) ReadResource(ctx context.Context, uri string) (*protocol.ReadResourceResult, error) {
	if !strings.HasPrefix(uri, resourceScheme) {
		uri = resourceScheme + uri
	}
	cat, err := g.catalogs.Current()
	if err != nil {
		return nil, err
	}

	var content any
	switch uri {
	case resourceScheme + "foods":
		items, _, err := cat.List(models.Filter{}, resourceFoodsCap, 0)
		if err != nil {
			return nil, err
		}
		content = items
	case resourceScheme + "categories":
		content = cat.Categories()
	case resourceScheme + "statistics":
		content = cat.Statistics()
	default:
		return nil, apperr.NotFound("resource %q", uri)
	}

	data, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("encode resource %s: %w", uri, err)
	}
	return protocol.NewReadResourceResult([]protocol.ResourceContents{
		protocol.TextResourceContents{URI: uri, MimeType: jsonMime, Text: string(data)},
	}), nil
}

func (g *Gateway) Prompts() []protocol.Prompt {
	out := make([]protocol.Prompt, len(prompts))
	copy(out, prompts)
	return out
}

// Prompt renders the named prompt template as a single user message.
func (g *Gateway) Prompt(name string, args map[string]string) (*protocol.GetPromptResult, error) {
	var def *protocol.Prompt
	for i := range prompts {
		if prompts[i].Name == name {
			def = &prompts[i]
			break
		}
	}
	if def == nil {
		return nil, apperr.NotFound("prompt %q", name)
	}
	for _, arg := range def.Arguments {
		if arg.Required && strings.TrimSpace(args[arg.Name]) == "" {
			return nil, apperr.Invalid("prompt %s requires %q", name, arg.Name)
		}
	}

	var b strings.Builder
	switch name {
	case "food_recommendation":
		b.WriteString("Generate a food recommendation based on the following:\n")
		for _, field := range []struct{ key, label string }{
			{"mood", "User's mood"},
			{"dietary_preference", "Dietary preference"},
			{"calorie_goal", "Calorie goal"},
		} {
			if v := args[field.key]; v != "" {
				fmt.Fprintf(&b, "- %s: %s\n", field.label, v)
			}
		}
		b.WriteString("\nProvide 3-5 food recommendations with explanations.")
	case "meal_planning":
		fmt.Fprintf(&b, "Help plan a %s with the following requirements:\n", args["meal_type"])
		if v := args["dietary_restrictions"]; v != "" {
			fmt.Fprintf(&b, "- Dietary restrictions: %s\n", v)
		}
		b.WriteString("\nProvide a complete meal plan with food items from the menu.")
	}
	return protocol.NewGetPromptResult([]protocol.PromptMessage{{
		Role:    protocol.RoleUser,
		Content: protocol.TextContent{Type: "text", Text: b.String()},
	}}, def.Description), nil
}
