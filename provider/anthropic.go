package provider

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/aws/aws-sdk-go-v2/config"
)

const (
	defaultAnthropicModel     = "claude-sonnet-4-20250514"
	defaultAnthropicMaxTokens = 4096
)

// AnthropicConfig holds configuration for the Anthropic provider.
type AnthropicConfig struct {
	APIKey    string
	Model     string
	BaseURL   string
	MaxTokens int
	// Bedrock routes requests through AWS Bedrock using the default AWS
	// credential chain instead of an API key.
	Bedrock    bool
	AWSRegion  string
	AWSProfile string
	HTTPClient *http.Client
}

// AnthropicProvider implements Provider using the Anthropic Messages API.
type AnthropicProvider struct {
	client    anthropic.Client
	name      string
	model     anthropic.Model
	maxTokens int64
}

// NewAnthropicProvider creates a new Anthropic provider with the given config.
func NewAnthropicProvider(ctx context.Context, cfg AnthropicConfig) (*AnthropicProvider, error) {
	if cfg.Model == "" {
		cfg.Model = defaultAnthropicModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultAnthropicMaxTokens
	}

	var opts []option.RequestOption
	name := "anthropic"
	model := anthropic.Model(cfg.Model)
	if cfg.Bedrock {
		var loadOpts []func(*config.LoadOptions) error
		if cfg.AWSRegion != "" {
			loadOpts = append(loadOpts, config.WithRegion(cfg.AWSRegion))
		}
		if cfg.AWSProfile != "" {
			loadOpts = append(loadOpts, config.WithSharedConfigProfile(cfg.AWSProfile))
		}
		opts = append(opts, bedrock.WithLoadDefaultConfig(ctx, loadOpts...))
		name = "bedrock"
		model = bedrockModel(cfg.Model)
	} else {
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("anthropic: api key is required")
		}
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &AnthropicProvider{
		client:    anthropic.NewClient(opts...),
		name:      name,
		model:     model,
		maxTokens: int64(cfg.MaxTokens),
	}, nil
}

// bedrockModel converts an Anthropic model id to a Bedrock cross-region
// inference profile id. Ids already in Bedrock form pass through.
func bedrockModel(model string) anthropic.Model {
	if strings.Contains(model, "anthropic.") {
		return anthropic.Model(model)
	}
	return anthropic.Model("us.anthropic." + model + "-v1:0")
}

func (p *AnthropicProvider) Name() string { return p.name }

func (p *AnthropicProvider) Chat(ctx context.Context, messages []Message) (*Response, error) {
	system, turns := splitSystem(messages)

	params := anthropic.MessageNewParams{
		Model:     p.model,
		MaxTokens: p.maxTokens,
		Messages:  make([]anthropic.MessageParam, 0, len(turns)),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	for _, m := range turns {
		block := anthropic.NewTextBlock(m.Content)
		if m.Role == RoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
		}
	}

	resp, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%s: messages: %w", p.name, err)
	}

	var sb strings.Builder
	for _, block := range resp.Content {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			sb.WriteString(text.Text)
		}
	}
	return &Response{
		Content: sb.String(),
		Usage: Usage{
			InputTokens:  int(resp.Usage.InputTokens),
			OutputTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}
