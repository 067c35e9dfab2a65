// Package llm summarizes news through a language model behind a guardrail
// that keeps investment advice out of both prompts and answers.
package llm

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sashabaranov/go-openai"

	"stockwatch/internal/errors"
)

// Provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Default models per provider.
const (
	DefaultOpenAIModel    = "gpt-4o-mini"
	DefaultAnthropicModel = "claude-haiku-4-5"
)

// Completer sends one system+user exchange to a model.
type Completer interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Provider() string
	Model() string
}

// ClientConfig holds model client configuration.
type ClientConfig struct {
	Provider  string
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
	// BaseURL overrides the provider endpoint.
	BaseURL string
}

// NewCompleter builds the client for the configured provider.
func NewCompleter(cfg ClientConfig) (Completer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s api key: %w", cfg.Provider, errors.ErrNotConfigured)
	}
	switch cfg.Provider {
	case ProviderOpenAI:
		return NewOpenAIClient(cfg), nil
	case ProviderAnthropic:
		return NewAnthropicClient(cfg), nil
	default:
		return nil, fmt.Errorf("llm provider %q: %w", cfg.Provider, errors.ErrConfigInvalid)
	}
}

// OpenAIClient implements Completer using the OpenAI API.
type OpenAIClient struct {
	client    *openai.Client
	model     string
	maxTokens int
}

// NewOpenAIClient creates a new OpenAI client.
func NewOpenAIClient(cfg ClientConfig) *OpenAIClient {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		oc.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Model == "" {
		cfg.Model = DefaultOpenAIModel
	}

	return &OpenAIClient{
		client:    openai.NewClientWithConfig(oc),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
}

// Complete sends a prompt with system message to the model.
func (c *OpenAIClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		var apiErr *openai.APIError
		status := 0
		if errors.As(err, &apiErr) {
			status = apiErr.HTTPStatusCode
		}
		return "", errors.NewProviderError(ProviderOpenAI, "chat.completions", status, err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.NewProviderError(ProviderOpenAI, "chat.completions", 0, fmt.Errorf("no response from openai"))
	}
	return resp.Choices[0].Message.Content, nil
}

// Provider returns the provider name.
func (c *OpenAIClient) Provider() string { return ProviderOpenAI }

// Model returns the model name.
func (c *OpenAIClient) Model() string { return c.model }

// AnthropicClient implements Completer using the Anthropic API.
type AnthropicClient struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropicClient creates a new Anthropic client.
func NewAnthropicClient(cfg ClientConfig) *AnthropicClient {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	if cfg.Model == "" {
		cfg.Model = DefaultAnthropicModel
	}
	maxTokens := int64(cfg.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	return &AnthropicClient{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: maxTokens,
	}
}

// Complete sends a prompt with system message to the model.
func (c *AnthropicClient) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		status := 0
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		return "", errors.NewProviderError(ProviderAnthropic, "messages", status, err)
	}

	var b strings.Builder
	for _, block := range resp.Content {
		b.WriteString(block.Text)
	}
	if b.Len() == 0 {
		return "", errors.NewProviderError(ProviderAnthropic, "messages", 0, fmt.Errorf("no response from anthropic"))
	}
	return b.String(), nil
}

// Provider returns the provider name.
func (c *AnthropicClient) Provider() string { return ProviderAnthropic }

// Model returns the model name.
func (c *AnthropicClient) Model() string { return c.model }

// cleanJSONResponse strips code fences and surrounding prose from a model answer.
func cleanJSONResponse(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		content = content[start : end+1]
	}
	return content
}
