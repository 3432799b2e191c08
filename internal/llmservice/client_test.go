package llmservice

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"intellidoc/internal/config"
	"intellidoc/internal/models"
)

type fakeModel struct {
	reply  string
	err    error
	prompt string
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	for _, m := range messages {
		for _, p := range m.Parts {
			if tc, ok := p.(llms.TextContent); ok {
				f.prompt = tc.Text
			}
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: f.reply}}}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, f, prompt, options...)
}

func TestLangchainGeneratorStripsThinking(t *testing.T) {
	m := &fakeModel{reply: "<think>\nlet me see\n</think>\nThe rate is 9.5%."}
	g := NewLangchainGenerator(m, config.LLMConfig{Provider: ProviderOllama, MaxTokens: 64})

	out, err := g.Complete(context.Background(), "What is the rate?")
	require.NoError(t, err)
	assert.Equal(t, "The rate is 9.5%.", out)
	assert.Equal(t, "What is the rate?", m.prompt)
}

func TestLangchainGeneratorError(t *testing.T) {
	boom := errors.New("connection refused")
	g := NewLangchainGenerator(&fakeModel{err: boom}, config.LLMConfig{Provider: ProviderOllama})

	_, err := g.Complete(context.Background(), "q")
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "llm: ollama")
}

func TestNewUnknownProvider(t *testing.T) {
	_, err := New(context.Background(), config.LLMConfig{Provider: "cohere"})
	assert.ErrorIs(t, err, models.ErrInvalidInput)
}

func TestNewAnthropicDefaults(t *testing.T) {
	g := NewAnthropicGenerator(config.LLMConfig{Key: "k"})
	assert.Equal(t, "claude-sonnet-4-5", g.cfg.Model)
}

func TestClean(t *testing.T) {
	assert.Equal(t, "answer", Clean("  <think>a</think> answer \n"))
	assert.Equal(t, "plain", Clean("plain"))
}
