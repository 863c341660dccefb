// Package messaging delivers generated invites to invitees over SMS or WhatsApp.
//
// Invites are never sent inline with trigger processing: an InviteDelivery subscriber turns
// invite.generated events into outbox rows, and the outbox sender hands each row to the
// Router, which picks the Service registered for the row's channel.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Delivery channels.
const (
	ChannelSMS      = "sms"
	ChannelWhatsApp = "whatsapp"
	ChannelLog      = "log"
)

var (
	// ErrServiceStopped is returned by services after Stop.
	ErrServiceStopped = errors.New("messaging service stopped")
	// ErrNoService is returned when no service is registered for a channel.
	ErrNoService = errors.New("no messaging service for channel")
)

var nonDigits = regexp.MustCompile(`[^0-9]`)

// Service is a pluggable message delivery backend.
type Service interface {
	// Name identifies the backend in logs.
	Name() string
	// ValidateAndCanonicalizeRecipient returns the recipient in the backend's canonical form.
	ValidateAndCanonicalizeRecipient(recipient string) (string, error)
	// SendMessage delivers body to a recipient.
	SendMessage(ctx context.Context, to string, body string) error
	// Start begins any background processing.
	Start(ctx context.Context) error
	// Stop releases resources. Later sends fail with ErrServiceStopped.
	Stop() error
}

// canonicalPhone strips everything but digits and requires a plausible length.
func canonicalPhone(recipient string) (string, error) {
	if recipient == "" {
		return "", fmt.Errorf("recipient cannot be empty")
	}
	digits := nonDigits.ReplaceAllString(recipient, "")
	if digits == "" {
		return "", fmt.Errorf("invalid phone number: no digits found in recipient %q", recipient)
	}
	if len(digits) < 6 {
		return "", fmt.Errorf("invalid phone number: %q is too short (minimum 6 digits required)", digits)
	}
	return digits, nil
}
