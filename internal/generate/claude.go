package generate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// ClaudeGenerator implements Generator with the Anthropic Claude API.
type ClaudeGenerator struct {
	client *anthropic.Client
	model  string
	logger *slog.Logger
}

// NewClaudeGenerator creates a Claude-backed generator.
func NewClaudeGenerator(apiKey, model string, logger *slog.Logger) *ClaudeGenerator {
	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &ClaudeGenerator{
		client: &client,
		model:  model,
		logger: logger,
	}
}

// Generate performs one blocking completion call.
func (g *ClaudeGenerator) Generate(ctx context.Context, system, prompt string, maxTokens int) (string, error) {
	resp, err := g.client.Messages.New(ctx, g.params(system, prompt, maxTokens))
	if err != nil {
		return "", fmt.Errorf("calling Claude API: %w", err)
	}

	var text string
	for _, block := range resp.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return "", fmt.Errorf("empty response from Claude")
	}
	g.logger.Debug("claude response", "model", g.model, "chars", len(text))
	return text, nil
}

// GenerateStream performs a streaming completion call, invoking onChunk for
// each text delta, and returns the accumulated full text.
func (g *ClaudeGenerator) GenerateStream(ctx context.Context, system, prompt string, maxTokens int, onChunk func(chunk string)) (string, error) {
	stream := g.client.Messages.NewStreaming(ctx, g.params(system, prompt, maxTokens))

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			return "", fmt.Errorf("accumulating stream event: %w", err)
		}
		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && onChunk != nil && delta.Text != "" {
				onChunk(delta.Text)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return "", fmt.Errorf("streaming from Claude API: %w", err)
	}

	var text string
	for _, block := range message.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return "", fmt.Errorf("empty response from Claude")
	}
	return text, nil
}

func (g *ClaudeGenerator) params(system, prompt string, maxTokens int) anthropic.MessageNewParams {
	return anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
		System: []anthropic.TextBlockParam{
			{Text: system},
		},
	}
}
