package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAICompatConfig configures an OpenAICompatProvider. OpenAI itself,
// Azure OpenAI, OpenRouter, Ollama (via its OpenAI-compatible endpoint),
// and a local Copilot proxy all speak the same chat-completions wire shape
// and differ only in base URL, auth, and model naming — so one adapter
// covers all five rather than one near-duplicate file per vendor.
type OpenAICompatConfig struct {
	// Name identifies the provider for logging/metrics (e.g. "openai", "azure").
	Name string

	APIKey       string
	BaseURL      string
	AzureAPIVersion string // set only for the Azure deployment shape
	DefaultModel string
}

// OpenAICompatProvider streams chat completions from any OpenAI-compatible
// endpoint.
type OpenAICompatProvider struct {
	client       *openai.Client
	name         string
	defaultModel string
}

// NewOpenAICompatProvider builds an OpenAICompatProvider from cfg.
func NewOpenAICompatProvider(cfg OpenAICompatConfig) (*OpenAICompatProvider, error) {
	if cfg.Name == "" {
		return nil, errors.New("openaicompat: Name is required")
	}

	var clientConfig openai.ClientConfig
	switch {
	case cfg.AzureAPIVersion != "":
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("openaicompat: %s requires a base URL", cfg.Name)
		}
		clientConfig = openai.DefaultAzureConfig(cfg.APIKey, cfg.BaseURL)
		clientConfig.APIVersion = cfg.AzureAPIVersion
	default:
		apiKey := cfg.APIKey
		if apiKey == "" {
			apiKey = "n/a" // some local proxies don't check the key at all
		}
		clientConfig = openai.DefaultConfig(apiKey)
		if strings.TrimSpace(cfg.BaseURL) != "" {
			clientConfig.BaseURL = cfg.BaseURL
		}
	}

	return &OpenAICompatProvider{
		client:       openai.NewClientWithConfig(clientConfig),
		name:         cfg.Name,
		defaultModel: cfg.DefaultModel,
	}, nil
}

func (p *OpenAICompatProvider) Name() string { return p.name }

func (p *OpenAICompatProvider) Models() []Model {
	if p.defaultModel == "" {
		return nil
	}
	return []Model{{ID: p.defaultModel, Name: p.defaultModel}}
}

func (p *OpenAICompatProvider) model(requested string) string {
	if requested != "" {
		return requested
	}
	return p.defaultModel
}

func (p *OpenAICompatProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.System})
	}
	for _, msg := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content})
	}

	chatReq := openai.ChatCompletionRequest{
		Model:    p.model(req.Model),
		Messages: messages,
		Stream:   true,
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.name, err)
	}

	chunks := make(chan *CompletionChunk)
	go func() {
		defer close(chunks)
		defer stream.Close()
		for {
			resp, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) {
					chunks <- &CompletionChunk{Done: true}
					return
				}
				chunks <- &CompletionChunk{Error: fmt.Errorf("%s: %w", p.name, err)}
				return
			}
			if len(resp.Choices) == 0 {
				continue
			}
			if content := resp.Choices[0].Delta.Content; content != "" {
				chunks <- &CompletionChunk{Text: content}
			}
			if resp.Usage != nil {
				chunks <- &CompletionChunk{InputTokens: resp.Usage.PromptTokens, OutputTokens: resp.Usage.CompletionTokens}
			}
		}
	}()

	return chunks, nil
}
