package provider

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"
)

// GeminiConfig configures a GeminiProvider.
type GeminiConfig struct {
	APIKey       string
	DefaultModel string
}

// GeminiProvider streams completions from Google's Gemini API.
type GeminiProvider struct {
	client       *genai.Client
	defaultModel string
}

// NewGeminiProvider builds a GeminiProvider. APIKey is required.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini: API key is required")
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gemini-2.0-flash"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	return &GeminiProvider{client: client, defaultModel: cfg.DefaultModel}, nil
}

func (p *GeminiProvider) Name() string { return "google" }

func (p *GeminiProvider) Models() []Model {
	return []Model{
		{ID: "gemini-2.0-flash", Name: "Gemini 2.0 Flash", ContextSize: 1000000},
		{ID: "gemini-1.5-pro", Name: "Gemini 1.5 Pro", ContextSize: 2000000},
	}
}

func (p *GeminiProvider) model(requested string) string {
	if requested != "" {
		return requested
	}
	return p.defaultModel
}

func (p *GeminiProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	model := p.model(req.Model)

	var contents []*genai.Content
	for _, msg := range req.Messages {
		role := genai.RoleUser
		if msg.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}

	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}

	streamIter := p.client.Models.GenerateContentStream(ctx, model, contents, config)

	chunks := make(chan *CompletionChunk)
	go func() {
		defer close(chunks)
		for resp, err := range streamIter {
			select {
			case <-ctx.Done():
				chunks <- &CompletionChunk{Error: ctx.Err()}
				return
			default:
			}
			if err != nil {
				chunks <- &CompletionChunk{Error: fmt.Errorf("gemini: %w", err)}
				return
			}
			if resp == nil {
				continue
			}
			for _, candidate := range resp.Candidates {
				if candidate == nil || candidate.Content == nil {
					continue
				}
				for _, part := range candidate.Content.Parts {
					if part != nil && part.Text != "" {
						chunks <- &CompletionChunk{Text: part.Text}
					}
				}
			}
		}
		chunks <- &CompletionChunk{Done: true}
	}()

	return chunks, nil
}
