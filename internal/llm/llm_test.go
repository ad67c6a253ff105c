package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"nutrimood/internal/apperr"
	"nutrimood/internal/models"
)

const menu = "1. Fruit Salad [id: D1] | DESSERTS | 150 kcal | vegan\n2. Chocolate Lava Cake [id: D2] | DESSERTS | 520 kcal | vegetarian"

func TestCollectAccumulatesFragments(t *testing.T) {
	var seen []string
	text, err := Collect(context.Background(), &MockGenerator{}, Request{ContextBlock: menu}, func(f string) error {
		seen = append(seen, f)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if text != "You should try the Fruit Salad. It fits what you asked for!" {
		t.Errorf("Collect() = %q", text)
	}
	if len(seen) < 2 || strings.Join(seen, "") != text {
		t.Errorf("fragments %q do not rebuild the reply", seen)
	}
}

func TestCollectFailureIsTerminal(t *testing.T) {
	gen := &MockGenerator{Reply: "Try the Fruit Salad today", Err: fmt.Errorf("mock: %w", apperr.ErrBackendUnavailable), FailAfter: 2}
	var streamed string
	text, err := Collect(context.Background(), gen, Request{}, func(f string) error {
		streamed += f
		return nil
	})
	if !errors.Is(err, apperr.ErrBackendUnavailable) {
		t.Fatalf("Collect() err = %v", err)
	}
	if text != "" {
		t.Errorf("partial reply returned as complete: %q", text)
	}
	if streamed != "Try the " {
		t.Errorf("streamed = %q", streamed)
	}
}

func TestAccumulatorBeforeFinish(t *testing.T) {
	var acc Accumulator
	acc.Add("half")
	if _, err := acc.Text(); err == nil {
		t.Fatal("Text() before Finish must fail")
	}
	if acc.Partial() != "half" {
		t.Errorf("Partial() = %q", acc.Partial())
	}
	acc.Finish(nil)
	if text, err := acc.Text(); err != nil || text != "half" {
		t.Errorf("Text() = %q, %v", text, err)
	}
}

func TestBuildUserPrompt(t *testing.T) {
	var history []models.Turn
	for i := 0; i < 8; i++ {
		history = append(history, models.Turn{Role: models.RoleUser, Content: fmt.Sprintf("turn %d", i)})
	}
	prompt := BuildUserPrompt(Request{
		UserMessage:  "what about these?",
		ContextBlock: menu,
		History:      history,
		CustomerName: "Sam",
		Preferences:  map[string]any{"name": "Sam", "mood": "tired"},
		Intent:       IntentFollowUp,
	})

	for _, want := range []string{"User: turn 7", "Customer name: Sam", `"mood": "tired"`, menu, `"what about these?"`, "FOLLOW-UP"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}
	if strings.Contains(prompt, "turn 1") {
		t.Error("prompt should keep only the last six turns")
	}
	if strings.Contains(prompt, `"name"`) {
		t.Error("name should not be repeated under preferences")
	}

	empty := BuildUserPrompt(Request{UserMessage: "sushi"})
	if !strings.Contains(empty, noMatches) {
		t.Error("empty menu block should be replaced by the no-match note")
	}
}

func TestDecodeChunk(t *testing.T) {
	text, done, err := decodeChunk([]byte(`{"type":"content_block_delta","delta":{"type":"text_delta","text":"Hi"}}`))
	if err != nil || text != "Hi" || done {
		t.Errorf("delta: %q %v %v", text, done, err)
	}
	if _, done, _ := decodeChunk([]byte(`{"type":"message_stop"}`)); !done {
		t.Error("message_stop should end the stream")
	}
	if _, _, err := decodeChunk([]byte(`{`)); err == nil {
		t.Error("bad chunk should fail")
	}
}

func bedrockEvents(raw ...string) <-chan types.ResponseStream {
	ch := make(chan types.ResponseStream, len(raw))
	for _, r := range raw {
		ch <- &types.ResponseStreamMemberChunk{Value: types.PayloadPart{Bytes: []byte(r)}}
	}
	close(ch)
	return ch
}

func TestReadEvents(t *testing.T) {
	delta := `{"type":"content_block_delta","delta":{"type":"text_delta","text":"Try the Peri"}}`

	var got string
	done, err := readEvents(bedrockEvents(delta, `{"type":"message_stop"}`), func(f string) error {
		got += f
		return nil
	})
	if err != nil || !done || got != "Try the Peri" {
		t.Errorf("complete stream: done=%v err=%v text=%q", done, err, got)
	}

	done, err = readEvents(bedrockEvents(delta), func(string) error { return nil })
	if err != nil || done {
		t.Errorf("stream without message_stop: done=%v err=%v", done, err)
	}
}

func TestClassifyErrors(t *testing.T) {
	throttled := fmt.Errorf("invoke: %w", &types.ThrottlingException{Message: aws.String("slow down")})
	if err := classifyBedrockError(throttled); !errors.Is(err, apperr.ErrRateLimited) {
		t.Errorf("throttling: %v", err)
	}
	if err := classifyBedrockError(errors.New("connection reset")); !errors.Is(err, apperr.ErrBackendUnavailable) {
		t.Errorf("other bedrock error: %v", err)
	}
	if err := classifyGeminiError(errors.New("Error 429, Status: RESOURCE_EXHAUSTED")); !errors.Is(err, apperr.ErrRateLimited) {
		t.Errorf("gemini quota: %v", err)
	}
	if err := unavailable("x", context.Canceled); !errors.Is(err, context.Canceled) || errors.Is(err, apperr.ErrBackendUnavailable) {
		t.Errorf("cancellation should pass through: %v", err)
	}
}

func TestOpenAIGeneratorStreams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" || r.Header.Get("Authorization") != "Bearer k" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Try the \"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Fruit Salad\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	gen := NewOpenAIGenerator(Config{BaseURL: srv.URL, APIKey: "k", Model: "m"})
	text, err := Collect(context.Background(), gen, Request{UserMessage: "dessert", ContextBlock: menu}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if text != "Try the Fruit Salad" {
		t.Errorf("Collect() = %q", text)
	}
}

func TestOpenAIGeneratorTruncatedStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Try the Peri\"}}]}\n\n")
	}))
	defer srv.Close()

	gen := NewOpenAIGenerator(Config{BaseURL: srv.URL})
	var streamed string
	text, err := Collect(context.Background(), gen, Request{}, func(f string) error {
		streamed += f
		return nil
	})
	if !errors.Is(err, apperr.ErrBackendUnavailable) {
		t.Fatalf("Collect() err = %v, want backend unavailable", err)
	}
	if text != "" || streamed != "Try the Peri" {
		t.Errorf("text = %q, streamed = %q", text, streamed)
	}
}

func TestOpenAIGeneratorFinishReasonCompletes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Fruit Salad\"},\"finish_reason\":\"stop\"}]}\n\n")
	}))
	defer srv.Close()

	text, err := Collect(context.Background(), NewOpenAIGenerator(Config{BaseURL: srv.URL}), Request{}, nil)
	if err != nil || text != "Fruit Salad" {
		t.Errorf("Collect() = %q, %v", text, err)
	}
}

func TestOpenAIGeneratorClassifiesStatus(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusTooManyRequests, apperr.ErrRateLimited},
		{http.StatusBadGateway, apperr.ErrBackendUnavailable},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tt.status)
		}))
		gen := NewOpenAIGenerator(Config{BaseURL: srv.URL})
		_, err := Collect(context.Background(), gen, Request{}, nil)
		srv.Close()
		if !errors.Is(err, tt.want) {
			t.Errorf("status %d: err = %v, want %v", tt.status, err, tt.want)
		}
	}
}

func TestNewSelectsProvider(t *testing.T) {
	g, err := New(context.Background(), Config{Provider: "mock"})
	if err != nil || g.Name() != "mock" {
		t.Fatalf("New(mock) = %v, %v", g, err)
	}
	g, err = New(context.Background(), Config{Provider: "openai", BaseURL: "http://localhost:1"})
	if err != nil || g.Name() != "openai" {
		t.Fatalf("New(openai) = %v, %v", g, err)
	}
	if _, err := New(context.Background(), Config{Provider: "carrier-pigeon"}); err == nil {
		t.Fatal("unknown provider should fail")
	}
}
