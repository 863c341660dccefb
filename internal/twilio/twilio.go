// Package twilio wraps the Twilio REST API for SMS and WhatsApp invite delivery.
package twilio

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	twiliogo "github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// WhatsAppPrefix marks a Twilio address as a WhatsApp number.
const WhatsAppPrefix = "whatsapp:"

// Sender sends one text message. A "whatsapp:" prefixed recipient is delivered over WhatsApp,
// anything else as SMS.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Opts holds configuration options for the Twilio client.
type Opts struct {
	AccountSID string
	AuthToken  string
	From       string
}

// Option defines a configuration option for the Twilio client.
type Option func(*Opts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) Option {
	return func(o *Opts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) Option {
	return func(o *Opts) { o.AuthToken = token }
}

// WithFrom sets the sending number in E.164 form.
func WithFrom(from string) Option {
	return func(o *Opts) { o.From = from }
}

// Client wraps the Twilio REST client.
type Client struct {
	client *twiliogo.RestClient
	from   string
}

var _ Sender = (*Client)(nil)

// NewClient creates a Twilio client. Unset options fall back to TWILIO_ACCOUNT_SID,
// TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.From == "" {
		cfg.From = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("twilio.NewClient: config loaded",
		"account_sid_set", cfg.AccountSID != "",
		"auth_token_set", cfg.AuthToken != "",
		"from_set", cfg.From != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("from number must be provided")
	}

	client := twiliogo.NewRestClientWithParams(twiliogo.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &Client{client: client, from: strings.TrimPrefix(cfg.From, WhatsAppPrefix)}, nil
}

// SendMessage sends body to to, matching the from address to the recipient's channel.
func (c *Client) SendMessage(ctx context.Context, to string, body string) error {
	from := c.from
	if strings.HasPrefix(to, WhatsAppPrefix) {
		from = WhatsAppPrefix + from
	}
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(from)
	params.SetBody(body)

	resp, err := c.client.Api.CreateMessage(params)
	if err != nil {
		slog.Error("Client.SendMessage: Twilio request failed", "to", to, "error", err)
		return fmt.Errorf("failed to send message to %s: %w", to, err)
	}
	sid := ""
	if resp != nil && resp.Sid != nil {
		sid = *resp.Sid
	}
	slog.Debug("Client.SendMessage: message accepted", "to", to, "sid", sid)
	return nil
}

// SentMessage is a message captured by MockClient.
type SentMessage struct {
	To   string
	Body string
}

// MockClient records messages instead of sending them.
type MockClient struct {
	mu   sync.Mutex
	sent []SentMessage
	Err  error
}

var _ Sender = (*MockClient)(nil)

// NewMockClient creates an empty MockClient.
func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) SendMessage(_ context.Context, to string, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.sent = append(m.sent, SentMessage{To: to, Body: body})
	return nil
}

// Sent returns a copy of the recorded messages.
func (m *MockClient) Sent() []SentMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SentMessage(nil), m.sent...)
}
