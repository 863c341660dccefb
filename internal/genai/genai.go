// Package genai provides LLM-backed text generation used to rewrite invite copy.
//
// Two providers are supported: OpenAI chat completions and Anthropic messages. Both satisfy
// TextGenerator; Copywriter adapts either one to the personalization agent.
package genai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Error variables for better error handling and testability
var (
	ErrMissingAPIKey      = errors.New("API key not provided")
	ErrNoChoicesReturned  = errors.New("no choices returned")
	ErrNoTextReturned     = errors.New("no text content returned")
	ErrUnknownProvider    = errors.New("unknown genai provider")
	ErrGeneratedTooLong   = errors.New("generated copy exceeds length limit")
	ErrGeneratedCopyEmpty = errors.New("generated copy is empty")
)

// Provider names accepted by NewTextGenerator.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// TextGenerator produces a completion for a system and user prompt.
type TextGenerator interface {
	Provider() string
	GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Opts holds configuration shared by both providers.
type Opts struct {
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int64
}

// Option defines a configuration option for a GenAI client.
type Option func(*Opts)

// WithAPIKey sets the API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel overrides the provider's default model.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(o *Opts) { o.Temperature = t }
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int64) Option {
	return func(o *Opts) { o.MaxTokens = n }
}

func resolveOpts(envKey string, opts []Option) Opts {
	cfg := Opts{Temperature: 0.7, MaxTokens: 256}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv(envKey)
	}
	return cfg
}

// chatService is the slice of the OpenAI SDK the Client needs.
type chatService interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// Client wraps OpenAI chat completions.
type Client struct {
	chat chatService
	opts Opts
}

var _ TextGenerator = (*Client)(nil)

// NewClient creates an OpenAI-backed generator. The key falls back to OPENAI_API_KEY.
func NewClient(opts ...Option) (*Client, error) {
	cfg := resolveOpts("OPENAI_API_KEY", opts)
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: %w", ErrMissingAPIKey)
	}
	if cfg.Model == "" {
		cfg.Model = openai.ChatModelGPT4oMini
	}
	cli := openai.NewClient(option.WithAPIKey(cfg.APIKey))
	return &Client{chat: &cli.Chat.Completions, opts: cfg}, nil
}

// Provider implements TextGenerator.
func (c *Client) Provider() string { return ProviderOpenAI }

// GenerateText implements TextGenerator.
func (c *Client) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: c.opts.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(userPrompt),
		},
		Temperature:         openai.Float(c.opts.Temperature),
		MaxCompletionTokens: openai.Int(c.opts.MaxTokens),
	}
	resp, err := c.chat.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai chat completion failed: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	return resp.Choices[0].Message.Content, nil
}

// messageService is the slice of the Anthropic SDK the AnthropicClient needs.
type messageService interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...anthropicoption.RequestOption) (*anthropic.Message, error)
}

// AnthropicClient wraps the Anthropic Messages API.
type AnthropicClient struct {
	messages messageService
	opts     Opts
}

var _ TextGenerator = (*AnthropicClient)(nil)

// NewAnthropicClient creates an Anthropic-backed generator. The key falls back to ANTHROPIC_API_KEY.
func NewAnthropicClient(opts ...Option) (*AnthropicClient, error) {
	cfg := resolveOpts("ANTHROPIC_API_KEY", opts)
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic: %w", ErrMissingAPIKey)
	}
	if cfg.Model == "" {
		cfg.Model = string(anthropic.ModelClaude3_5Sonnet20241022)
	}
	cli := anthropic.NewClient(anthropicoption.WithAPIKey(cfg.APIKey))
	return &AnthropicClient{messages: &cli.Messages, opts: cfg}, nil
}

// Provider implements TextGenerator.
func (c *AnthropicClient) Provider() string { return ProviderAnthropic }

// GenerateText implements TextGenerator.
func (c *AnthropicClient) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.opts.Model),
		MaxTokens:   c.opts.MaxTokens,
		Temperature: anthropic.Float(c.opts.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}
	resp, err := c.messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("anthropic api error: %w", err)
	}
	if resp == nil {
		return "", ErrNoTextReturned
	}
	var parts []string
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	if len(parts) == 0 {
		return "", ErrNoTextReturned
	}
	return strings.Join(parts, ""), nil
}

// NewTextGenerator builds the generator for provider.
func NewTextGenerator(provider string, opts ...Option) (TextGenerator, error) {
	switch strings.ToLower(provider) {
	case ProviderOpenAI:
		return NewClient(opts...)
	case ProviderAnthropic:
		return NewAnthropicClient(opts...)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
}
