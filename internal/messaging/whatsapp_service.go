package messaging

import (
	"context"
	"log/slog"
	"sync"

	"github.com/BTreeMap/LoopPipe/internal/whatsapp"
)

// WhatsAppService delivers through a linked WhatsApp device.
type WhatsAppService struct {
	client  whatsapp.Sender
	mu      sync.RWMutex
	stopped bool
}

var _ Service = (*WhatsAppService)(nil)

// NewWhatsAppService wraps a whatsmeow sender.
func NewWhatsAppService(client whatsapp.Sender) *WhatsAppService {
	return &WhatsAppService{client: client}
}

func (s *WhatsAppService) Name() string { return "whatsmeow" }

// ValidateAndCanonicalizeRecipient returns the number as bare digits, the form JIDs use.
func (s *WhatsAppService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalPhone(recipient)
}

func (s *WhatsAppService) Start(ctx context.Context) error {
	slog.Debug("WhatsAppService.Start: ready")
	return nil
}

// Stop disconnects a real client; mocks are left alone.
func (s *WhatsAppService) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil
	}
	s.stopped = true
	if c, ok := s.client.(*whatsapp.Client); ok {
		c.Disconnect()
	}
	slog.Info("WhatsAppService.Stop: stopped")
	return nil
}

func (s *WhatsAppService) SendMessage(ctx context.Context, to string, body string) error {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return ErrServiceStopped
	}
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	if err := s.client.SendMessage(ctx, canonical, body); err != nil {
		slog.Error("WhatsAppService.SendMessage: send failed", "error", err, "to", canonical)
		return err
	}
	slog.Info("WhatsAppService.SendMessage: sent", "to", canonical)
	return nil
}
