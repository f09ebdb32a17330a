package provider

import (
	"context"
	"fmt"
	"math"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// BedrockConfig configures a BedrockProvider.
type BedrockConfig struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	DefaultModel    string
}

// BedrockProvider streams completions from foundation models hosted on AWS
// Bedrock via the Converse API. Authentication goes through the AWS SDK's
// default credential chain unless explicit keys are given.
type BedrockProvider struct {
	client       *bedrockruntime.Client
	defaultModel string
}

// NewBedrockProvider builds a BedrockProvider.
func NewBedrockProvider(ctx context.Context, cfg BedrockConfig) (*BedrockProvider, error) {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "anthropic.claude-3-sonnet-20240229-v1:0"
	}

	var awsCfg aws.Config
	var err error
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(cfg.Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken,
			)),
		)
	} else {
		awsCfg, err = config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	}
	if err != nil {
		return nil, fmt.Errorf("bedrock: failed to load AWS config: %w", err)
	}

	return &BedrockProvider{
		client:       bedrockruntime.NewFromConfig(awsCfg),
		defaultModel: cfg.DefaultModel,
	}, nil
}

func (p *BedrockProvider) Name() string { return "bedrock" }

func (p *BedrockProvider) Models() []Model {
	return []Model{
		{ID: "anthropic.claude-3-opus-20240229-v1:0", Name: "Claude 3 Opus (Bedrock)", ContextSize: 200000},
		{ID: "anthropic.claude-3-sonnet-20240229-v1:0", Name: "Claude 3 Sonnet (Bedrock)", ContextSize: 200000},
		{ID: "anthropic.claude-3-haiku-20240307-v1:0", Name: "Claude 3 Haiku (Bedrock)", ContextSize: 200000},
		{ID: "amazon.titan-text-express-v1", Name: "Titan Text Express", ContextSize: 8192},
		{ID: "meta.llama3-70b-instruct-v1:0", Name: "Llama 3 70B (Bedrock)", ContextSize: 8192},
	}
}

func (p *BedrockProvider) model(requested string) string {
	if requested != "" {
		return requested
	}
	return p.defaultModel
}

func (p *BedrockProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	model := p.model(req.Model)

	messages := make([]types.Message, 0, len(req.Messages))
	for _, msg := range req.Messages {
		if msg.Role == "system" {
			continue
		}
		role := types.ConversationRoleUser
		if msg.Role == "assistant" {
			role = types.ConversationRoleAssistant
		}
		messages = append(messages, types.Message{
			Role:    role,
			Content: []types.ContentBlock{&types.ContentBlockMemberText{Value: msg.Content}},
		})
	}

	converseReq := &bedrockruntime.ConverseStreamInput{
		ModelId:  aws.String(model),
		Messages: messages,
	}
	if req.System != "" {
		converseReq.System = []types.SystemContentBlock{&types.SystemContentBlockMemberText{Value: req.System}}
	}
	if req.MaxTokens > 0 {
		maxTokens := min(req.MaxTokens, math.MaxInt32)
		converseReq.InferenceConfig = &types.InferenceConfiguration{MaxTokens: aws.Int32(int32(maxTokens))}
	}

	stream, err := p.client.ConverseStream(ctx, converseReq)
	if err != nil {
		return nil, fmt.Errorf("bedrock: %w", err)
	}

	chunks := make(chan *CompletionChunk)
	go p.processStream(ctx, stream, chunks)

	return chunks, nil
}

func (p *BedrockProvider) processStream(ctx context.Context, stream *bedrockruntime.ConverseStreamOutput, chunks chan<- *CompletionChunk) {
	defer close(chunks)

	eventStream := stream.GetStream()
	defer eventStream.Close()

	eventChan := eventStream.Events()
	for {
		select {
		case <-ctx.Done():
			chunks <- &CompletionChunk{Error: ctx.Err()}
			return
		case event, ok := <-eventChan:
			if !ok {
				if err := eventStream.Err(); err != nil {
					chunks <- &CompletionChunk{Error: fmt.Errorf("bedrock: %w", err)}
				} else {
					chunks <- &CompletionChunk{Done: true}
				}
				return
			}
			switch ev := event.(type) {
			case *types.ConverseStreamOutputMemberContentBlockDelta:
				if delta, ok := ev.Value.Delta.(*types.ContentBlockDeltaMemberText); ok && delta.Value != "" {
					chunks <- &CompletionChunk{Text: delta.Value}
				}
			case *types.ConverseStreamOutputMemberMessageStop:
				chunks <- &CompletionChunk{Done: true}
				return
			}
		}
	}
}
