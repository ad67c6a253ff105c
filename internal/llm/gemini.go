// internal/llm/gemini.go
package llm

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"google.golang.org/genai"
)

// GeminiModels is the subset of genai.Models used here.
type GeminiModels interface {
	GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error]
}

// GeminiGenerator streams replies from Gemini through the genai SDK.
type GeminiGenerator struct {
	models GeminiModels
	cfg    Config
}

func NewGeminiGenerator(ctx context.Context, cfg Config) (*GeminiGenerator, error) {
	clientCfg := &genai.ClientConfig{}
	if cfg.GCPProject != "" && cfg.GCPLocation != "" {
		clientCfg.Project = cfg.GCPProject
		clientCfg.Location = cfg.GCPLocation
		clientCfg.Backend = genai.BackendVertexAI
	} else {
		clientCfg.APIKey = cfg.APIKey
		clientCfg.Backend = genai.BackendGeminiAPI
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}
	return NewGeminiGeneratorWithModels(client.Models, cfg), nil
}

func NewGeminiGeneratorWithModels(models GeminiModels, cfg Config) *GeminiGenerator {
	return &GeminiGenerator{models: models, cfg: cfg}
}

func (g *GeminiGenerator) Name() string { return "gemini" }

func (g *GeminiGenerator) Stream(ctx context.Context, req Request, emit func(string) error) error {
	temp := float32(g.cfg.Temperature)
	topP := float32(g.cfg.TopP)
	genCfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(BuildSystemPrompt(), genai.RoleUser),
		Temperature:       &temp,
		TopP:              &topP,
		MaxOutputTokens:   int32(g.cfg.MaxTokens),
	}
	contents := []*genai.Content{genai.NewContentFromText(BuildUserPrompt(req), genai.RoleUser)}

	for res, err := range g.models.GenerateContentStream(ctx, g.cfg.Model, contents, genCfg) {
		if err != nil {
			return classifyGeminiError(err)
		}
		if text := res.Text(); text != "" {
			if err := emit(text); err != nil {
				return err
			}
		}
	}
	return nil
}

// classifyGeminiError treats quota exhaustion as throttling.
func classifyGeminiError(err error) error {
	msg := err.Error()
	if strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED") {
		return rateLimited("gemini", err)
	}
	return unavailable("gemini", err)
}
