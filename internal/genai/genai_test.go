package genai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// mockChatService implements chatService for testing.
type mockChatService struct {
	resp   *openai.ChatCompletion
	err    error
	params openai.ChatCompletionNewParams
}

func (m *mockChatService) New(_ context.Context, params openai.ChatCompletionNewParams, _ ...option.RequestOption) (*openai.ChatCompletion, error) {
	m.params = params
	return m.resp, m.err
}

type mockMessageService struct {
	resp   *anthropic.Message
	err    error
	params anthropic.MessageNewParams
}

func (m *mockMessageService) New(_ context.Context, params anthropic.MessageNewParams, _ ...anthropicoption.RequestOption) (*anthropic.Message, error) {
	m.params = params
	return m.resp, m.err
}

func TestOpenAIGenerateText_Success(t *testing.T) {
	chat := &mockChatService{resp: &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{{Message: openai.ChatCompletionMessage{Content: "Hello World"}}},
	}}
	client := &Client{chat: chat, opts: Opts{Model: openai.ChatModelGPT4oMini, MaxTokens: 64}}

	out, err := client.GenerateText(context.Background(), "system prompt", "user prompt")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "Hello World" {
		t.Errorf("expected 'Hello World', got '%s'", out)
	}
	if len(chat.params.Messages) != 2 {
		t.Errorf("expected system and user messages, got %d", len(chat.params.Messages))
	}
}

func TestOpenAIGenerateText_ServiceError(t *testing.T) {
	client := &Client{chat: &mockChatService{err: errors.New("service failure")}}
	_, err := client.GenerateText(context.Background(), "sys", "usr")
	if err == nil || !strings.Contains(err.Error(), "service failure") {
		t.Errorf("expected service failure error, got %v", err)
	}
}

func TestOpenAIGenerateText_NoChoices(t *testing.T) {
	client := &Client{chat: &mockChatService{resp: &openai.ChatCompletion{}}}
	_, err := client.GenerateText(context.Background(), "sys", "usr")
	if !errors.Is(err, ErrNoChoicesReturned) {
		t.Errorf("expected ErrNoChoicesReturned, got %v", err)
	}
}

func TestAnthropicGenerateText_JoinsTextBlocks(t *testing.T) {
	msgs := &mockMessageService{resp: &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{
			{Type: "text", Text: "Join "},
			{Type: "tool_use", Name: "ignored"},
			{Type: "text", Text: "me"},
		},
	}}
	client := &AnthropicClient{messages: msgs, opts: Opts{Model: "claude-test", MaxTokens: 64}}

	out, err := client.GenerateText(context.Background(), "be brief", "hi")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "Join me" {
		t.Errorf("expected 'Join me', got %q", out)
	}
	if len(msgs.params.System) != 1 || msgs.params.System[0].Text != "be brief" {
		t.Errorf("system prompt not forwarded: %+v", msgs.params.System)
	}
}

func TestAnthropicGenerateText_NoText(t *testing.T) {
	client := &AnthropicClient{messages: &mockMessageService{resp: &anthropic.Message{}}}
	if _, err := client.GenerateText(context.Background(), "", "hi"); !errors.Is(err, ErrNoTextReturned) {
		t.Errorf("expected ErrNoTextReturned, got %v", err)
	}
}

func TestNewClient_NoKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewClient(); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}
	t.Setenv("ANTHROPIC_API_KEY", "")
	if _, err := NewAnthropicClient(); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("expected ErrMissingAPIKey, got %v", err)
	}
}

func TestNewTextGenerator(t *testing.T) {
	gen, err := NewTextGenerator("OpenAI", WithAPIKey("test-key"))
	if err != nil {
		t.Fatalf("expected no error with API key, got %v", err)
	}
	if gen.Provider() != ProviderOpenAI {
		t.Errorf("expected openai provider, got %s", gen.Provider())
	}

	gen, err = NewTextGenerator(ProviderAnthropic, WithAPIKey("test-key"), WithModel("claude-x"))
	if err != nil {
		t.Fatalf("expected no error with API key, got %v", err)
	}
	if gen.(*AnthropicClient).opts.Model != "claude-x" {
		t.Errorf("model override not applied")
	}

	if _, err := NewTextGenerator("bard"); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("expected ErrUnknownProvider, got %v", err)
	}
}
