// internal/llm/config.go
package llm

import (
	"context"
	"fmt"
)

// Config selects and tunes the generative backend.
type Config struct {
	Provider    string  `yaml:"provider"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	TopP        float64 `yaml:"top_p"`
	TimeoutSecs int     `yaml:"timeout_secs"`

	// bedrock
	Region string `yaml:"region"`

	// openai-compatible
	BaseURL   string `yaml:"base_url"`
	APIKeyEnv string `yaml:"api_key_env"`
	APIKey    string `yaml:"-"`

	// gemini: Vertex AI when project and location are set, Gemini API otherwise
	GCPProject  string `yaml:"gcp_project"`
	GCPLocation string `yaml:"gcp_location"`
}

// New builds the configured generator.
func New(ctx context.Context, cfg Config) (Generator, error) {
	switch cfg.Provider {
	case "", "mock":
		return &MockGenerator{}, nil
	case "bedrock":
		return NewBedrockGenerator(ctx, cfg)
	case "gemini":
		return NewGeminiGenerator(ctx, cfg)
	case "openai":
		return NewOpenAIGenerator(cfg), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
