// internal/llm/bedrock.go
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

const anthropicVersion = "bedrock-2023-05-31"

// StreamInvoker is the subset of the Bedrock runtime client used here.
type StreamInvoker interface {
	InvokeModelWithResponseStream(ctx context.Context, params *bedrockruntime.InvokeModelWithResponseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelWithResponseStreamOutput, error)
}

// BedrockGenerator streams Claude replies from Amazon Bedrock.
type BedrockGenerator struct {
	client StreamInvoker
	cfg    Config
}

func NewBedrockGenerator(ctx context.Context, cfg Config) (*BedrockGenerator, error) {
	opts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewBedrockGeneratorWithClient(bedrockruntime.NewFromConfig(awsCfg), cfg), nil
}

func NewBedrockGeneratorWithClient(client StreamInvoker, cfg Config) *BedrockGenerator {
	return &BedrockGenerator{client: client, cfg: cfg}
}

func (b *BedrockGenerator) Name() string { return "bedrock" }

type bedrockMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type bedrockBody struct {
	AnthropicVersion string           `json:"anthropic_version"`
	MaxTokens        int              `json:"max_tokens"`
	Temperature      float64          `json:"temperature"`
	TopP             float64          `json:"top_p"`
	System           string           `json:"system"`
	Messages         []bedrockMessage `json:"messages"`
}

func (b *BedrockGenerator) requestBody(req Request) ([]byte, error) {
	return json.Marshal(bedrockBody{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        b.cfg.MaxTokens,
		Temperature:      b.cfg.Temperature,
		TopP:             b.cfg.TopP,
		System:           BuildSystemPrompt(),
		Messages:         []bedrockMessage{{Role: "user", Content: BuildUserPrompt(req)}},
	})
}

func (b *BedrockGenerator) Stream(ctx context.Context, req Request, emit func(string) error) error {
	body, err := b.requestBody(req)
	if err != nil {
		return fmt.Errorf("encode bedrock request: %w", err)
	}

	out, err := b.client.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId:     aws.String(b.cfg.Model),
		ContentType: aws.String("application/json"),
		Accept:      aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return classifyBedrockError(err)
	}

	stream := out.GetStream()
	defer stream.Close()

	done, err := readEvents(stream.Events(), emit)
	if err != nil {
		return err
	}
	if err := stream.Err(); err != nil {
		return classifyBedrockError(err)
	}
	if !done {
		return unavailable("bedrock", fmt.Errorf("stream ended before message_stop: %w", io.ErrUnexpectedEOF))
	}
	return nil
}

// readEvents emits text deltas until message_stop or the channel closes, and
// reports whether message_stop was seen.
func readEvents(events <-chan types.ResponseStream, emit func(string) error) (bool, error) {
	for event := range events {
		chunk, ok := event.(*types.ResponseStreamMemberChunk)
		if !ok {
			continue
		}
		text, done, err := decodeChunk(chunk.Value.Bytes)
		if err != nil {
			return false, unavailable("bedrock", err)
		}
		if text != "" {
			if err := emit(text); err != nil {
				return false, err
			}
		}
		if done {
			return true, nil
		}
	}
	return false, nil
}

type bedrockChunk struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}

// decodeChunk reads one Anthropic streaming event.
func decodeChunk(raw []byte) (string, bool, error) {
	var chunk bedrockChunk
	if err := json.Unmarshal(raw, &chunk); err != nil {
		return "", false, fmt.Errorf("decode stream chunk: %w", err)
	}
	switch chunk.Type {
	case "content_block_delta":
		if chunk.Delta.Type == "text_delta" {
			return chunk.Delta.Text, false, nil
		}
	case "message_stop":
		return "", true, nil
	}
	return "", false, nil
}

func classifyBedrockError(err error) error {
	var throttled *types.ThrottlingException
	if errors.As(err, &throttled) {
		return rateLimited("bedrock", err)
	}
	return unavailable("bedrock", err)
}
