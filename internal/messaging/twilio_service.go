package messaging

import (
	"context"
	"log/slog"
	"sync"

	"github.com/BTreeMap/LoopPipe/internal/twilio"
)

// TwilioService delivers over Twilio, as SMS or as WhatsApp depending on its channel.
type TwilioService struct {
	client  twilio.Sender
	channel string
	mu      sync.RWMutex
	stopped bool
}

var _ Service = (*TwilioService)(nil)

// NewTwilioService creates a Twilio-backed service for ChannelSMS or ChannelWhatsApp.
func NewTwilioService(client twilio.Sender, channel string) *TwilioService {
	if channel != ChannelWhatsApp {
		channel = ChannelSMS
	}
	return &TwilioService{client: client, channel: channel}
}

func (s *TwilioService) Name() string { return "twilio-" + s.channel }

// ValidateAndCanonicalizeRecipient returns the number in E.164 form.
func (s *TwilioService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	digits, err := canonicalPhone(recipient)
	if err != nil {
		return "", err
	}
	canonical := "+" + digits
	if canonical != recipient {
		slog.Debug("TwilioService.ValidateAndCanonicalizeRecipient: canonicalized", "original", recipient, "canonical", canonical)
	}
	return canonical, nil
}

// Start is a no-op.
func (s *TwilioService) Start(ctx context.Context) error { return nil }

func (s *TwilioService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	return nil
}

func (s *TwilioService) SendMessage(ctx context.Context, to string, body string) error {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return ErrServiceStopped
	}

	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		slog.Error("TwilioService.SendMessage: invalid recipient", "error", err, "to", to)
		return err
	}
	address := canonical
	if s.channel == ChannelWhatsApp {
		address = twilio.WhatsAppPrefix + canonical
	}
	if err := s.client.SendMessage(ctx, address, body); err != nil {
		return err
	}
	slog.Info("TwilioService.SendMessage: sent", "to", canonical, "channel", s.channel)
	return nil
}
