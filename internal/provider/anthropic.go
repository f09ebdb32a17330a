package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicConfig configures an AnthropicProvider.
type AnthropicConfig struct {
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// AnthropicProvider streams Claude completions. It carries no tool-calling,
// vision, or extended-thinking support: this module's agentic loop extracts
// tool calls from plain streamed text, so the adapter only needs to move
// text in and text out.
type AnthropicProvider struct {
	client       anthropic.Client
	defaultModel string
}

// NewAnthropicProvider builds an AnthropicProvider. APIKey is required.
func NewAnthropicProvider(cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("anthropic: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "claude-sonnet-4-20250514"
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicProvider{
		client:       anthropic.NewClient(opts...),
		defaultModel: cfg.DefaultModel,
	}, nil
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Models() []Model {
	return []Model{
		{ID: "claude-sonnet-4-20250514", Name: "Claude Sonnet 4", ContextSize: 200000},
		{ID: "claude-opus-4-20250514", Name: "Claude Opus 4", ContextSize: 200000},
		{ID: "claude-3-5-haiku-20241022", Name: "Claude 3.5 Haiku", ContextSize: 200000},
	}
}

func (p *AnthropicProvider) model(requested string) string {
	if requested != "" {
		return requested
	}
	return p.defaultModel
}

func (p *AnthropicProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	model := p.model(req.Model)
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	var messages []anthropic.MessageParam
	for _, msg := range req.Messages {
		if msg.Role == "system" {
			continue
		}
		block := anthropic.NewTextBlock(msg.Content)
		if msg.Role == "assistant" {
			messages = append(messages, anthropic.NewAssistantMessage(block))
		} else {
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		Messages:  messages,
		MaxTokens: int64(maxTokens),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Type: "text", Text: req.System}}
	}

	stream := p.client.Messages.NewStreaming(ctx, params)

	chunks := make(chan *CompletionChunk)
	go func() {
		defer close(chunks)
		var inputTokens, outputTokens int
		for stream.Next() {
			event := stream.Current()
			switch event.Type {
			case "message_start":
				if ms := event.AsMessageStart(); ms.Message.Usage.InputTokens > 0 {
					inputTokens = int(ms.Message.Usage.InputTokens)
				}
			case "content_block_delta":
				if delta := event.AsContentBlockDelta().Delta; delta.Type == "text_delta" && delta.Text != "" {
					chunks <- &CompletionChunk{Text: delta.Text}
				}
			case "message_delta":
				if u := event.AsMessageDelta().Usage; u.OutputTokens > 0 {
					outputTokens = int(u.OutputTokens)
				}
			case "message_stop":
				chunks <- &CompletionChunk{Done: true, InputTokens: inputTokens, OutputTokens: outputTokens}
				return
			case "error":
				chunks <- &CompletionChunk{Error: fmt.Errorf("anthropic: stream error for model %s", model)}
				return
			}
		}
		if err := stream.Err(); err != nil {
			chunks <- &CompletionChunk{Error: fmt.Errorf("anthropic: %w", err)}
		}
	}()

	return chunks, nil
}
