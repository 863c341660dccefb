package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/LoopPipe/internal/util"
)

// Compile-time check that SQLiteStore implements OutboxRepo.
var _ OutboxRepo = (*SQLiteStore)(nil)

func (s *SQLiteStore) EnqueueOutboxMessage(recipient, channel, payloadJSON, dedupeKey string) (string, error) {
	id := util.GenerateOutboxID()
	now := time.Now()

	if dedupeKey != "" {
		var existingID string
		err := s.db.QueryRow(
			`SELECT id FROM outbox_messages WHERE dedupe_key = ? AND status NOT IN ('sent', 'canceled', 'failed')`,
			dedupeKey,
		).Scan(&existingID)
		if err == nil {
			slog.Debug("SQLiteStore.EnqueueOutboxMessage: dedupe hit", "dedupeKey", dedupeKey, "existingID", existingID)
			return existingID, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("outbox dedupe check failed: %w", err)
		}
	}

	_, err := s.db.Exec(
		`INSERT INTO outbox_messages (id, recipient, channel, payload_json, status, attempts, dedupe_key, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 'queued', 0, ?, ?, ?)`,
		id, recipient, channel, payloadJSON, nilIfEmpty(dedupeKey), now, now,
	)
	if err != nil {
		return "", fmt.Errorf("enqueue outbox message failed: %w", err)
	}
	slog.Debug("SQLiteStore.EnqueueOutboxMessage", "id", id, "channel", channel)
	return id, nil
}

func (s *SQLiteStore) GetOutboxMessage(id string) (*OutboxMessage, error) {
	m, err := scanOutboxMessage(s.db.QueryRow(`SELECT `+outboxColumns+` FROM outbox_messages WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ClaimDueOutboxMessages selects and marks inside one transaction; SQLite serializes writers,
// so no other claimer can interleave.
func (s *SQLiteStore) ClaimDueOutboxMessages(now time.Time, limit int) ([]OutboxMessage, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin claim transaction failed: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.Query(
		`SELECT `+outboxColumns+`
		 FROM outbox_messages WHERE status = 'queued' AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
		 ORDER BY created_at ASC LIMIT ?`,
		now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim due outbox messages failed: %w", err)
	}
	var msgs []OutboxMessage
	for rows.Next() {
		m, err := scanOutboxMessage(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		msgs = append(msgs, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("claim outbox iteration failed: %w", err)
	}

	for i := range msgs {
		if _, err := tx.Exec(
			`UPDATE outbox_messages SET status = 'sending', locked_at = ?, updated_at = ? WHERE id = ?`,
			now, now, msgs[i].ID,
		); err != nil {
			return nil, fmt.Errorf("mark outbox sending failed: %w", err)
		}
		msgs[i].Status = OutboxStatusSending
		lockedAt := now
		msgs[i].LockedAt = &lockedAt
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim transaction failed: %w", err)
	}
	return msgs, nil
}

func (s *SQLiteStore) MarkOutboxMessageSent(id string) error {
	_, err := s.db.Exec(
		`UPDATE outbox_messages SET status = 'sent', locked_at = NULL, updated_at = ? WHERE id = ?`,
		time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("mark outbox sent failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FailOutboxMessage(id string, errMsg string, nextAttemptAt time.Time) error {
	_, err := s.db.Exec(
		`UPDATE outbox_messages SET status = 'queued', attempts = attempts + 1, last_error = ?, next_attempt_at = ?, locked_at = NULL, updated_at = ? WHERE id = ?`,
		errMsg, nextAttemptAt, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("fail outbox message failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AbandonOutboxMessage(id string, errMsg string) error {
	_, err := s.db.Exec(
		`UPDATE outbox_messages SET status = 'failed', attempts = attempts + 1, last_error = ?, locked_at = NULL, updated_at = ? WHERE id = ?`,
		errMsg, time.Now(), id,
	)
	if err != nil {
		return fmt.Errorf("abandon outbox message failed: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RequeueStaleSendingMessages(staleBefore time.Time) (int, error) {
	result, err := s.db.Exec(
		`UPDATE outbox_messages SET status = 'queued', locked_at = NULL, updated_at = ? WHERE status = 'sending' AND locked_at < ?`,
		time.Now(), staleBefore,
	)
	if err != nil {
		return 0, fmt.Errorf("requeue stale outbox messages failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n > 0 {
		slog.Info("SQLiteStore.RequeueStaleSendingMessages", "requeued", n)
	}
	return int(n), nil
}
