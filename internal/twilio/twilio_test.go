package twilio

import (
	"context"
	"errors"
	"testing"
)

func TestMockClient_SendMessage(t *testing.T) {
	ctx := context.Background()
	mock := NewMockClient()

	if err := mock.SendMessage(ctx, "+15550001111", "Hello Test"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sent := mock.Sent()
	if len(sent) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sent))
	}
	if sent[0].Body != "Hello Test" {
		t.Errorf("expected body %q, got %q", "Hello Test", sent[0].Body)
	}

	mock.Err = errors.New("rejected")
	if err := mock.SendMessage(ctx, "+15550001111", "again"); err == nil {
		t.Fatal("expected configured error")
	}
	if len(mock.Sent()) != 1 {
		t.Error("failed send must not be recorded")
	}
}

func TestNewClientRequiresCredentials(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "")
	t.Setenv("TWILIO_AUTH_TOKEN", "")
	t.Setenv("TWILIO_FROM_NUMBER", "")

	if _, err := NewClient(); err == nil {
		t.Fatal("expected error without credentials")
	}
	if _, err := NewClient(WithAccountSID("AC123"), WithAuthToken("secret")); err == nil {
		t.Fatal("expected error without a from number")
	}
	c, err := NewClient(WithAccountSID("AC123"), WithAuthToken("secret"), WithFrom("whatsapp:+15550009999"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.from != "+15550009999" {
		t.Errorf("expected whatsapp prefix stripped from sender, got %q", c.from)
	}
}
