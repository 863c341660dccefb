package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/BTreeMap/LoopPipe/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanOutboxMessage scans an OutboxMessage in the column order used by every outbox query.
func scanOutboxMessage(row rowScanner) (OutboxMessage, error) {
	var m OutboxMessage
	var payloadJSON, dedupeKey, lastError sql.NullString
	var nextAttemptAt, lockedAt sql.NullTime
	err := row.Scan(
		&m.ID, &m.Recipient, &m.Channel, &payloadJSON, &m.Status, &m.Attempts,
		&nextAttemptAt, &dedupeKey, &lockedAt, &lastError, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return m, fmt.Errorf("scan outbox message failed: %w", err)
	}
	m.PayloadJSON = payloadJSON.String
	m.DedupeKey = dedupeKey.String
	m.LastError = lastError.String
	if nextAttemptAt.Valid {
		m.NextAttemptAt = &nextAttemptAt.Time
	}
	if lockedAt.Valid {
		m.LockedAt = &lockedAt.Time
	}
	return m, nil
}

const outboxColumns = `id, recipient, channel, payload_json, status, attempts, next_attempt_at, dedupe_key, locked_at, last_error, created_at, updated_at`

const linkColumns = `short_code, full_url, user_id, loop_id, persona, fvm_type, utm_source, utm_medium, utm_campaign, context_json, clicks, created_at`

// scanLink scans a SmartLink in linkColumns order.
func scanLink(row rowScanner) (models.SmartLink, int, error) {
	var l models.SmartLink
	var clicks int
	var contextJSON sql.NullString
	err := row.Scan(
		&l.ShortCode, &l.FullURL, &l.UserID, &l.LoopID, &l.Persona, &l.FVMType,
		&l.UTM.Source, &l.UTM.Medium, &l.UTM.Campaign, &contextJSON, &clicks, &l.CreatedAt,
	)
	if err != nil {
		return l, 0, err
	}
	if contextJSON.Valid && contextJSON.String != "" {
		if err := json.Unmarshal([]byte(contextJSON.String), &l.Context); err != nil {
			return l, 0, fmt.Errorf("decode link context failed: %w", err)
		}
	}
	return l, clicks, nil
}

func encodeLinkContext(tc models.TriggerContext) (string, error) {
	raw, err := json.Marshal(tc)
	if err != nil {
		return "", fmt.Errorf("encode link context failed: %w", err)
	}
	if string(raw) == "{}" {
		return "", nil
	}
	return string(raw), nil
}

// scanEvent scans a ViralEvent from id, event_type, timestamp, payload_json.
func scanEvent(row rowScanner) (models.ViralEvent, error) {
	var ev models.ViralEvent
	var payloadJSON sql.NullString
	if err := row.Scan(&ev.ID, &ev.EventType, &ev.Timestamp, &payloadJSON); err != nil {
		return ev, fmt.Errorf("scan event failed: %w", err)
	}
	ev.Timestamp = ev.Timestamp.UTC()
	ev.Payload = map[string]any{}
	if payloadJSON.Valid && payloadJSON.String != "" {
		if err := json.Unmarshal([]byte(payloadJSON.String), &ev.Payload); err != nil {
			return ev, fmt.Errorf("decode event payload failed: %w", err)
		}
	}
	return ev, nil
}

// reverseEvents flips newest-first query results into publish order.
func reverseEvents(evs []models.ViralEvent) {
	for i, j := 0, len(evs)-1; i < j; i, j = i+1, j-1 {
		evs[i], evs[j] = evs[j], evs[i]
	}
}
