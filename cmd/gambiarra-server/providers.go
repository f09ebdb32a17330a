package main

import (
	"context"
	"fmt"

	"github.com/trustgraph-ai/gambiarra/internal/config"
	"github.com/trustgraph-ai/gambiarra/internal/provider"
)

// openAICompatKinds names the provider kinds that share the OpenAI
// chat-completions wire shape and so share one adapter, keyed by config name
// to the Azure API-version flag that distinguishes the Azure deployment form.
var openAICompatKinds = map[string]bool{
	"openai":        false,
	"azure":         true,
	"openrouter":    false,
	"ollama":        false,
	"copilot_proxy": false,
}

// buildProviders instantiates one provider.LLMProvider per entry in
// cfg.Providers, keyed by the same name the routing rules and default/
// fallback-chain fields reference. The provider name selects which
// constructor runs; unrecognized names are rejected rather than silently
// skipped so a typo in config surfaces immediately at startup.
func buildProviders(ctx context.Context, cfg config.LLMConfig) (map[string]provider.LLMProvider, error) {
	out := make(map[string]provider.LLMProvider, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		p, err := buildProvider(ctx, name, pc)
		if err != nil {
			return nil, fmt.Errorf("provider %q: %w", name, err)
		}
		out[name] = p
	}
	return out, nil
}

func buildProvider(ctx context.Context, name string, pc config.LLMProviderConfig) (provider.LLMProvider, error) {
	if isAzure, ok := openAICompatKinds[name]; ok {
		cfg := provider.OpenAICompatConfig{
			Name:         name,
			APIKey:       pc.APIKey,
			BaseURL:      pc.BaseURL,
			DefaultModel: pc.DefaultModel,
		}
		if isAzure {
			cfg.AzureAPIVersion = pc.APIVersion
			if cfg.AzureAPIVersion == "" {
				cfg.AzureAPIVersion = "2024-02-01"
			}
		}
		return provider.NewOpenAICompatProvider(cfg)
	}

	switch name {
	case "anthropic":
		return provider.NewAnthropicProvider(provider.AnthropicConfig{
			APIKey:       pc.APIKey,
			BaseURL:      pc.BaseURL,
			DefaultModel: pc.DefaultModel,
		})
	case "bedrock":
		// config.LLMProviderConfig has no dedicated region field; bedrock
		// entries repurpose base_url to carry the AWS region instead.
		return provider.NewBedrockProvider(ctx, provider.BedrockConfig{
			Region:       pc.BaseURL,
			DefaultModel: pc.DefaultModel,
		})
	case "google":
		return provider.NewGeminiProvider(ctx, provider.GeminiConfig{
			APIKey:       pc.APIKey,
			DefaultModel: pc.DefaultModel,
		})
	default:
		return nil, fmt.Errorf("unknown provider kind %q (expected one of: anthropic, openai, bedrock, google, azure, openrouter, ollama, copilot_proxy)", name)
	}
}
