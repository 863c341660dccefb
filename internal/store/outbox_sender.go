package store

import (
	"context"
	"log/slog"
	"time"
)

// OutboxSendFunc performs the actual delivery of one outbox message.
type OutboxSendFunc func(ctx context.Context, msg OutboxMessage) error

// SenderOpts holds configuration for an OutboxSender.
type SenderOpts struct {
	PollInterval   time.Duration
	StaleThreshold time.Duration
	ClaimLimit     int
	MaxAttempts    int
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
}

// SenderOption configures an OutboxSender.
type SenderOption func(*SenderOpts)

// WithPollInterval sets how often due messages are claimed.
func WithPollInterval(d time.Duration) SenderOption {
	return func(o *SenderOpts) { o.PollInterval = d }
}

// WithMaxAttempts sets how many sends are tried before a message is abandoned.
func WithMaxAttempts(n int) SenderOption {
	return func(o *SenderOpts) { o.MaxAttempts = n }
}

// WithBackoff sets the first retry delay and its ceiling.
func WithBackoff(base, max time.Duration) SenderOption {
	return func(o *SenderOpts) {
		o.BaseBackoff = base
		o.MaxBackoff = max
	}
}

// OutboxSender periodically claims due outbox messages and attempts to send them.
type OutboxSender struct {
	repo     OutboxRepo
	sendFunc OutboxSendFunc
	opts     SenderOpts
	now      func() time.Time
}

// NewOutboxSender creates a new OutboxSender.
func NewOutboxSender(repo OutboxRepo, sendFunc OutboxSendFunc, opts ...SenderOption) *OutboxSender {
	cfg := SenderOpts{
		PollInterval:   5 * time.Second,
		StaleThreshold: 5 * time.Minute,
		ClaimLimit:     10,
		MaxAttempts:    5,
		BaseBackoff:    10 * time.Second,
		MaxBackoff:     30 * time.Minute,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	return &OutboxSender{repo: repo, sendFunc: sendFunc, opts: cfg, now: time.Now}
}

// RecoverStaleMessages requeues messages stuck in sending state (crash recovery).
// Should be called once at startup.
func (s *OutboxSender) RecoverStaleMessages() error {
	n, err := s.repo.RequeueStaleSendingMessages(s.now().Add(-s.opts.StaleThreshold))
	if err != nil {
		return err
	}
	if n > 0 {
		slog.Info("OutboxSender.RecoverStaleMessages: requeued stale messages", "count", n)
	}
	return nil
}

// Run starts the polling loop. It blocks until the context is cancelled.
func (s *OutboxSender) Run(ctx context.Context) {
	slog.Info("OutboxSender.Run: starting outbox sender", "pollInterval", s.opts.PollInterval)

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("OutboxSender.Run: stopping")
			return
		case <-ticker.C:
			s.Poll(ctx)
		}
	}
}

// Poll claims and sends one batch of due messages, returning how many were claimed.
func (s *OutboxSender) Poll(ctx context.Context) int {
	now := s.now()
	msgs, err := s.repo.ClaimDueOutboxMessages(now, s.opts.ClaimLimit)
	if err != nil {
		slog.Error("OutboxSender.Poll: claim failed", "error", err)
		return 0
	}

	for _, msg := range msgs {
		slog.Debug("OutboxSender.Poll: sending message", "id", msg.ID, "channel", msg.Channel, "attempt", msg.Attempts+1)
		err := s.sendFunc(ctx, msg)
		if err == nil {
			if err := s.repo.MarkOutboxMessageSent(msg.ID); err != nil {
				slog.Error("OutboxSender.Poll: mark sent error", "id", msg.ID, "error", err)
			}
			continue
		}

		if msg.Attempts+1 >= s.opts.MaxAttempts {
			slog.Error("OutboxSender.Poll: giving up on message", "id", msg.ID, "attempts", msg.Attempts+1, "error", err)
			if err := s.repo.AbandonOutboxMessage(msg.ID, err.Error()); err != nil {
				slog.Error("OutboxSender.Poll: abandon message error", "id", msg.ID, "error", err)
			}
			continue
		}
		slog.Warn("OutboxSender.Poll: send failed, will retry", "id", msg.ID, "error", err)
		if err := s.repo.FailOutboxMessage(msg.ID, err.Error(), now.Add(s.backoff(msg.Attempts))); err != nil {
			slog.Error("OutboxSender.Poll: fail message error", "id", msg.ID, "error", err)
		}
	}
	return len(msgs)
}

// backoff doubles BaseBackoff per prior attempt up to MaxBackoff.
func (s *OutboxSender) backoff(attempts int) time.Duration {
	d := s.opts.BaseBackoff
	for i := 0; i < attempts; i++ {
		d *= 2
		if s.opts.MaxBackoff > 0 && d >= s.opts.MaxBackoff {
			return s.opts.MaxBackoff
		}
	}
	return d
}
