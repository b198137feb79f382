package provider

import (
	"context"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

const defaultGeminiModel = "gemini-1.5-pro"

// GeminiConfig holds configuration for the Gemini provider.
type GeminiConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// GeminiProvider implements Provider using the Gemini API.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// NewGeminiProvider creates a new Gemini provider with the given config.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = defaultGeminiModel
	}
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: cfg.HTTPClient,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &GeminiProvider{client: client, model: cfg.Model}, nil
}

func (p *GeminiProvider) Name() string { return "gemini" }

func (p *GeminiProvider) Chat(ctx context.Context, messages []Message) (*Response, error) {
	system, contents := geminiContents(messages)
	var gcfg *genai.GenerateContentConfig
	if system != nil {
		gcfg = &genai.GenerateContentConfig{SystemInstruction: system}
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, contents, gcfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: generate content: %w", err)
	}
	out := &Response{Content: resp.Text()}
	if resp.UsageMetadata != nil {
		out.Usage = Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return out, nil
}

// geminiContents maps a conversation onto Gemini's user/model roles, with
// system turns carried as the system instruction.
func geminiContents(messages []Message) (*genai.Content, []*genai.Content) {
	system, turns := splitSystem(messages)
	var sys *genai.Content
	if system != "" {
		sys = genai.NewContentFromText(system, genai.RoleUser)
	}
	contents := make([]*genai.Content, 0, len(turns))
	for _, m := range turns {
		role := genai.Role(genai.RoleUser)
		if m.Role == RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	return sys, contents
}
