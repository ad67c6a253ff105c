package llm

import (
	"context"
	"errors"
	"iter"
	"testing"

	"google.golang.org/genai"

	"nutrimood/internal/apperr"
)

type fakeModels struct {
	texts []string
	err   error
	model string
}

func (f *fakeModels) GenerateContentStream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
	f.model = model
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		for _, text := range f.texts {
			res := &genai.GenerateContentResponse{
				Candidates: []*genai.Candidate{{
					Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
				}},
			}
			if !yield(res, nil) {
				return
			}
		}
		if f.err != nil {
			yield(nil, f.err)
		}
	}
}

func TestGeminiGeneratorStreams(t *testing.T) {
	models := &fakeModels{texts: []string{"Try the ", "Fruit Salad"}}
	gen := NewGeminiGeneratorWithModels(models, Config{Model: "gemini-2.5-flash", MaxTokens: 256})

	text, err := Collect(context.Background(), gen, Request{UserMessage: "dessert", ContextBlock: menu}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if text != "Try the Fruit Salad" || models.model != "gemini-2.5-flash" {
		t.Errorf("Collect() = %q via %q", text, models.model)
	}
}

func TestGeminiGeneratorMidStreamFailure(t *testing.T) {
	models := &fakeModels{texts: []string{"Try the "}, err: errors.New("Error 503, Status: UNAVAILABLE")}
	gen := NewGeminiGeneratorWithModels(models, Config{Model: "m"})

	if _, err := Collect(context.Background(), gen, Request{}, nil); !errors.Is(err, apperr.ErrBackendUnavailable) {
		t.Fatalf("Collect() err = %v", err)
	}
}
