package messaging

import (
	"context"
	"log/slog"
	"sync"
)

// LogService logs messages instead of sending them. It is the default for local runs.
type LogService struct {
	logger *slog.Logger
	mu     sync.Mutex
	sent   []SentMessage
}

// SentMessage is one message handled by LogService.
type SentMessage struct {
	To   string
	Body string
}

var _ Service = (*LogService)(nil)

// NewLogService creates a LogService writing to logger, or slog.Default when nil.
func NewLogService(logger *slog.Logger) *LogService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogService{logger: logger}
}

func (s *LogService) Name() string { return ChannelLog }

func (s *LogService) ValidateAndCanonicalizeRecipient(recipient string) (string, error) {
	return canonicalPhone(recipient)
}

func (s *LogService) Start(context.Context) error { return nil }

func (s *LogService) Stop() error { return nil }

func (s *LogService) SendMessage(_ context.Context, to string, body string) error {
	canonical, err := s.ValidateAndCanonicalizeRecipient(to)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.sent = append(s.sent, SentMessage{To: canonical, Body: body})
	s.mu.Unlock()
	s.logger.Info("LogService.SendMessage: invite", "to", canonical, "body", body)
	return nil
}

// Sent returns a copy of every message handled so far.
func (s *LogService) Sent() []SentMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SentMessage(nil), s.sent...)
}
