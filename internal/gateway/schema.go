// internal/gateway/schema.go
package gateway

import (
	"context"
	"encoding/json"
	"math"
	"sort"

	"github.com/ThinkInAIXYZ/go-mcp/protocol"

	"nutrimood/internal/apperr"
	"nutrimood/internal/catalog"
)

// Property describes one argument in a tool's input schema.
type Property struct {
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	Items       *Property `json:"items,omitempty"`
	Minimum     *float64  `json:"minimum,omitempty"`
	Maximum     *float64  `json:"maximum,omitempty"`
	Default     any       `json:"default,omitempty"`
}

type toolHandler func(context.Context, *catalog.Catalog, map[string]any) (any, error)

// tool pairs a published tool with the schema its arguments are checked
// against and the handler that runs it.
type tool struct {
	name        string
	description string
	properties  map[string]Property
	required    []string
	handler     toolHandler
}

func (t tool) definition() *protocol.Tool {
	props := make(map[string]interface{}, len(t.properties))
	for name, prop := range t.properties {
		props[name] = prop
	}
	return &protocol.Tool{
		Name:        t.name,
		Description: t.description,
		InputSchema: protocol.InputSchema{
			Type:       protocol.Object,
			Properties: props,
			Required:   t.required,
		},
	}
}

// validate checks args against the schema. Unknown fields are rejected.
func (t tool) validate(args map[string]any) error {
	for _, name := range t.required {
		if v, ok := args[name]; !ok || v == nil {
			return apperr.Invalid("missing required argument %q", name)
		}
	}

	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		prop, ok := t.properties[name]
		if !ok {
			return apperr.Invalid("unknown argument %q", name)
		}
		if args[name] == nil {
			continue
		}
		if err := prop.check(name, args[name]); err != nil {
			return err
		}
	}
	return nil
}

func (p Property) check(name string, v any) error {
	switch p.Type {
	case "string":
		if _, ok := v.(string); !ok {
			return apperr.Invalid("argument %q must be a string", name)
		}
	case "number", "integer":
		n, ok := toFloat(v)
		if !ok {
			return apperr.Invalid("argument %q must be a number", name)
		}
		if p.Type == "integer" && n != math.Trunc(n) {
			return apperr.Invalid("argument %q must be an integer", name)
		}
		if p.Minimum != nil && n < *p.Minimum {
			return apperr.Invalid("argument %q must be at least %v", name, *p.Minimum)
		}
		if p.Maximum != nil && n > *p.Maximum {
			return apperr.Invalid("argument %q must be at most %v", name, *p.Maximum)
		}
	case "boolean":
		if _, ok := v.(bool); !ok {
			return apperr.Invalid("argument %q must be a boolean", name)
		}
	case "object":
		if _, ok := v.(map[string]any); !ok {
			return apperr.Invalid("argument %q must be an object", name)
		}
	case "array":
		list, ok := toSlice(v)
		if !ok {
			return apperr.Invalid("argument %q must be an array", name)
		}
		if p.Items != nil {
			for _, item := range list {
				if err := p.Items.check(name+"[]", item); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// toFloat accepts the numeric shapes produced by encoding/json and by Go callers.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func toSlice(v any) ([]any, bool) {
	switch list := v.(type) {
	case []any:
		return list, true
	case []string:
		out := make([]any, len(list))
		for i, s := range list {
			out[i] = s
		}
		return out, true
	}
	return nil, false
}

func bound(v float64) *float64 { return &v }
