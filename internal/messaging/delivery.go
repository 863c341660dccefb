package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/LoopPipe/internal/events"
	"github.com/BTreeMap/LoopPipe/internal/models"
	"github.com/BTreeMap/LoopPipe/internal/store"
)

// InviteDelivery queues a message for every generated invite that names an invitee phone.
type InviteDelivery struct {
	outbox store.OutboxRepo
}

var _ events.Handler = (*InviteDelivery)(nil)

// NewInviteDelivery creates the subscriber. Subscribe it to models.EventInviteGenerated.
func NewInviteDelivery(outbox store.OutboxRepo) *InviteDelivery {
	return &InviteDelivery{outbox: outbox}
}

// Handle enqueues one outbox message per invite, deduplicated by short code.
func (d *InviteDelivery) Handle(_ context.Context, ev models.ViralEvent) error {
	if ev.EventType != models.EventInviteGenerated {
		return nil
	}
	str := func(key string) string {
		s, _ := ev.Payload[key].(string)
		return s
	}
	phone := str("inviteePhone")
	if phone == "" {
		slog.Debug("InviteDelivery.Handle: no invitee phone, skipping", "short_code", str("shortCode"))
		return nil
	}

	payload := OutboxPayload{
		Body:      FormatInvite(str("headline"), str("message"), str("cta"), str("link")),
		ShortCode: str("shortCode"),
		LoopID:    str("loopId"),
		UserID:    str("userId"),
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode invite payload: %w", err)
	}
	id, err := d.outbox.EnqueueOutboxMessage(phone, str("channel"), string(raw), "invite:"+payload.ShortCode)
	if err != nil {
		return fmt.Errorf("failed to enqueue invite %s: %w", payload.ShortCode, err)
	}
	slog.Info("InviteDelivery.Handle: invite queued", "outbox_id", id, "short_code", payload.ShortCode, "channel", str("channel"))
	return nil
}

// FormatInvite renders the text message sent to an invitee.
func FormatInvite(headline, message, cta, link string) string {
	var b strings.Builder
	for _, line := range []string{headline, message} {
		if line != "" {
			b.WriteString(line)
			b.WriteString("\n\n")
		}
	}
	if cta != "" {
		b.WriteString(cta)
		b.WriteString(": ")
	}
	b.WriteString(link)
	return b.String()
}
