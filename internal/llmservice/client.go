package llmservice

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
	"google.golang.org/genai"

	"intellidoc/internal/config"
	"intellidoc/internal/models"
)

const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"

	defaultMaxTokens = 1024
)

var thinkRe = regexp.MustCompile(models.ThinkTag)

// New builds the generator selected by cfg.Provider.
func New(ctx context.Context, cfg config.LLMConfig) (models.Generator, error) {
	log.Debug().Str("provider", cfg.Provider).Str("model", cfg.Model).Msg("Creating generator")
	switch cfg.Provider {
	case ProviderOllama, "":
		llm, err := ollama.New(ollama.WithServerURL(cfg.BaseURL), ollama.WithModel(cfg.Model))
		if err != nil {
			return nil, fmt.Errorf("llm: ollama: %w", err)
		}
		return &LangchainGenerator{llm: llm, cfg: cfg}, nil
	case ProviderOpenAI:
		opts := []openai.Option{
			openai.WithToken(strings.TrimPrefix(cfg.Key, "Bearer ")),
			openai.WithModel(cfg.Model),
		}
		if cfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("llm: openai: %w", err)
		}
		return &LangchainGenerator{llm: llm, cfg: cfg}, nil
	case ProviderAnthropic:
		return NewAnthropicGenerator(cfg), nil
	case ProviderGemini:
		return NewGeminiGenerator(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: unknown llm provider %q", models.ErrInvalidInput, cfg.Provider)
	}
}

// LangchainGenerator wraps any langchaingo model.
type LangchainGenerator struct {
	llm llms.Model
	cfg config.LLMConfig
}

func NewLangchainGenerator(llm llms.Model, cfg config.LLMConfig) *LangchainGenerator {
	return &LangchainGenerator{llm: llm, cfg: cfg}
}

func (g *LangchainGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	opts := []llms.CallOption{llms.WithTemperature(g.cfg.Temperature)}
	if g.cfg.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(g.cfg.MaxTokens))
	}
	out, err := llms.GenerateFromSinglePrompt(ctx, g.llm, prompt, opts...)
	if err != nil {
		return "", fmt.Errorf("llm: %s: %w", g.cfg.Provider, err)
	}
	return Clean(out), nil
}

// AnthropicGenerator calls the Messages API.
type AnthropicGenerator struct {
	client anthropic.Client
	cfg    config.LLMConfig
}

func NewAnthropicGenerator(cfg config.LLMConfig) *AnthropicGenerator {
	opts := []option.RequestOption{option.WithAPIKey(cfg.Key)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Model == "" {
		cfg.Model = "claude-sonnet-4-5"
	}
	return &AnthropicGenerator{client: anthropic.NewClient(opts...), cfg: cfg}
}

func (g *AnthropicGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	maxTokens := g.cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.cfg.Model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}
	if g.cfg.Temperature > 0 {
		params.Temperature = anthropic.Float(g.cfg.Temperature)
	}
	resp, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("llm: anthropic: %w", err)
	}
	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("llm: anthropic: empty response")
	}
	return Clean(text.String()), nil
}

// GeminiGenerator calls generateContent.
type GeminiGenerator struct {
	client *genai.Client
	cfg    config.LLMConfig
}

func NewGeminiGenerator(ctx context.Context, cfg config.LLMConfig) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.Key,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("llm: failed to initialize genai client: %w", err)
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	return &GeminiGenerator{client: client, cfg: cfg}, nil
}

func (g *GeminiGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	genCfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(g.cfg.Temperature)),
	}
	if g.cfg.MaxTokens > 0 {
		genCfg.MaxOutputTokens = int32(g.cfg.MaxTokens)
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.Model, []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}, genCfg)
	if err != nil {
		return "", fmt.Errorf("llm: gemini: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("llm: gemini: empty response")
	}
	return Clean(resp.Text()), nil
}

// Clean drops reasoning blocks that some local models emit before the answer.
func Clean(s string) string {
	return strings.TrimSpace(thinkRe.ReplaceAllString(s, ""))
}
