package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Compile-time check that SQLiteStore implements DedupRepo.
var _ DedupRepo = (*SQLiteStore)(nil)

func (s *SQLiteStore) IsDuplicate(key string) (bool, error) {
	var found string
	err := s.db.QueryRow(`SELECT idempotency_key FROM trigger_dedup WHERE idempotency_key = ?`, key).Scan(&found)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("dedup check failed: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) RecordTrigger(key, userID string) (bool, error) {
	result, err := s.db.Exec(
		`INSERT OR IGNORE INTO trigger_dedup (idempotency_key, user_id, received_at) VALUES (?, ?, ?)`,
		key, userID, time.Now(),
	)
	if err != nil {
		return false, fmt.Errorf("record trigger failed: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("dedup rows affected check failed: %w", err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) MarkProcessed(key string) error {
	_, err := s.db.Exec(`UPDATE trigger_dedup SET processed_at = ? WHERE idempotency_key = ?`, time.Now(), key)
	if err != nil {
		return fmt.Errorf("mark processed failed: %w", err)
	}
	return nil
}
